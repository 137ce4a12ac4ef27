// Package bloomfilter wraps a fixed-size Bloom filter with the version
// counter and canonical byte encoding the orchestrator uses to decide when
// to redistribute the authoritative uniqueness set to workers.
package bloomfilter

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/igentai/genorch/core"
)

// defaultCapacity and defaultFalsePositiveRate size the filter for a topic
// expected to enumerate up to about a hundred thousand unique attributes.
// The filter never grows: past that count its false-positive rate rises.
const (
	defaultCapacity         = 100_000
	defaultFalsePositiveRate = 0.001
)

// Filter is a version-stamped Bloom filter whose size is fixed when it is
// created; it does not grow as values are added. Every mutation bumps
// Version, which the uniqueness tracker uses to decide whether a
// SyncCheck needs to carry new filter bytes (see the always-distribute
// policy in the uniqueness package).
type Filter struct {
	mu      sync.RWMutex
	bloom   *bloom.BloomFilter
	version uint64
}

// New creates an empty filter sized for defaultCapacity at
// defaultFalsePositiveRate.
func New() *Filter {
	return &Filter{bloom: bloom.NewWithEstimates(defaultCapacity, defaultFalsePositiveRate)}
}

// NewWithCapacity creates an empty filter sized for the given expected
// element count. Used by the worker-side fallback rebuild path, which sizes
// itself off max(10000, 2*len(seen_values)) rather than the default.
func NewWithCapacity(expectedElements uint) *Filter {
	return &Filter{bloom: bloom.NewWithEstimates(expectedElements, defaultFalsePositiveRate)}
}

// Contains reports whether value has possibly been added before. A false
// result is certain; a true result carries the filter's configured false
// positive rate.
func (f *Filter) Contains(value string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.bloom.TestString(value)
}

// Add inserts value and bumps Version. Safe to call even if value may
// already be present; Bloom filters are idempotent under re-insertion.
func (f *Filter) Add(value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bloom.AddString(value)
	f.version++
}

// TestAndAdd reports whether value was already (possibly) present, then
// inserts it regardless. This is the hot path for enumerating unique
// attributes: one lock acquisition instead of two.
func (f *Filter) TestAndAdd(value string) (alreadyPresent bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	alreadyPresent = f.bloom.TestString(value)
	f.bloom.AddString(value)
	if !alreadyPresent {
		f.version++
	}
	return alreadyPresent
}

// Version returns the current mutation counter. Workers compare this
// against the version they last synced to decide whether a SyncCheck's
// bloom bytes are newer than what they already hold.
func (f *Filter) Version() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.version
}

// Marshal serializes the filter to its canonical byte form for inclusion in
// a SyncCheck. The encoding is gob, the same format bloom.BloomFilter uses
// for its own GobEncode/GobDecode, kept stable across calls so two
// marshalings of an unchanged filter produce identical bytes.
func (f *Filter) Marshal() ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(f.bloom); err != nil {
		return nil, fmt.Errorf("%w: marshal bloom filter: %v", core.ErrEncodeFailed, err)
	}
	return buf.Bytes(), nil
}

// Unmarshal replaces the filter's contents with the bytes produced by a
// prior Marshal, and sets version to the given value (taken from the
// SyncCheck's bloom_version field, since the encoded bytes carry no version
// of their own).
func (f *Filter) Unmarshal(data []byte, version uint64) error {
	bf := &bloom.BloomFilter{}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(bf); err != nil {
		return fmt.Errorf("%w: unmarshal bloom filter: %v", core.ErrDecodeFailed, err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bloom = bf
	f.version = version
	return nil
}

// Rebuild replaces the filter's contents by re-inserting every value in
// values, sized at max(10000, 2*len(values)) capacity. This is the worker's
// fallback path when a SyncCheck asks it to dedup against seen_values
// directly rather than bloom bytes (e.g. early in a topic, before the
// authoritative filter is large enough to be worth shipping).
func Rebuild(values []string) *Filter {
	capacity := uint(2 * len(values))
	if capacity < 10_000 {
		capacity = 10_000
	}
	f := NewWithCapacity(capacity)
	for _, v := range values {
		f.bloom.AddString(v)
	}
	f.version = 1
	return f
}
