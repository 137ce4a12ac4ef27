// Package uniqueness implements the orchestrator's authoritative dedup
// engine and the worker's local mirror of it: a bloom filter backed by an
// ordered list of every accepted attribute, plus the text-normalization
// rules a worker applies to raw provider output before it ever reaches the
// bloom.
package uniqueness

import (
	"sync"

	"github.com/igentai/genorch/internal/bloomfilter"
)

// Tracker is the orchestrator-side uniqueness engine: one authoritative
// bloom filter plus the ordered list of every string it has ever accepted.
// The ordered list, not the bloom, is the source of truth for the output
// file and for reconstructing a worker's bloom from scratch.
type Tracker struct {
	mu               sync.Mutex
	filter           *bloomfilter.Filter
	ordered          []string
	iterationAccum   []string
	lastDistributed  uint64
}

// New creates an empty Tracker.
func New() *Tracker {
	return &Tracker{filter: bloomfilter.New()}
}

// FilterUnique tests each candidate against the bloom in arrival order; an
// absent candidate is inserted, appended to the ordered list and the
// current iteration's accumulator, and included in the result. The result
// preserves input order modulo drops — duplicates (true bloom hits, or
// false positives at the configured ~0.1% FP rate) are silently skipped.
func (t *Tracker) FilterUnique(candidates []string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	unique := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if t.filter.TestAndAdd(c) {
			continue
		}
		t.ordered = append(t.ordered, c)
		t.iterationAccum = append(t.iterationAccum, c)
		unique = append(unique, c)
	}
	return unique
}

// DrainIteration returns everything accumulated since the last call and
// resets the accumulator. Called at each iteration boundary to append to
// output.txt.
func (t *Tracker) DrainIteration() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	drained := t.iterationAccum
	t.iterationAccum = nil
	return drained
}

// Ordered returns a copy of the full accepted list, in acceptance order.
// The orchestrator does not call it: its output files are written from
// FilterUnique's result and DrainIteration, and it sends no seen_values.
func (t *Tracker) Ordered() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.ordered))
	copy(out, t.ordered)
	return out
}

// Count returns the number of accepted attributes so far.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.ordered)
}

// GetBloomFilterData returns the canonical serialization of the current
// bloom, for inclusion in a SyncCheck.
func (t *Tracker) GetBloomFilterData() ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.filter.Marshal()
}

// Version returns the bloom's current mutation counter.
func (t *Tracker) Version() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.filter.Version()
}

// ShouldDistributeBloomFilter reports whether the version has advanced
// since the last call to MarkDistributed. The policy hook this implements
// is deliberately unconditional: every version bump is worth shipping, so
// this is equivalent to "bloom sync is due whenever the bloom changed."
func (t *Tracker) ShouldDistributeBloomFilter() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.filter.Version() != t.lastDistributed
}

// MarkDistributed records that the current version has been shipped to
// workers, so ShouldDistributeBloomFilter returns false until the next
// accepted attribute bumps the version again.
func (t *Tracker) MarkDistributed() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastDistributed = t.filter.Version()
}
