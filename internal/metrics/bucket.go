// Package metrics implements the orchestrator's rolling performance window:
// a deque of 30-second buckets covering the last five minutes, the derived
// per-worker/per-provider/total statistics computed from it, and the trend
// analysis the optimizer consumes to adapt routing and prompts.
package metrics

import (
	"time"

	"github.com/igentai/genorch/internal/sharedtypes"
)

const (
	bucketDuration = 30 * time.Second
	maxBuckets     = 10
	recomputeEvery = 5 * time.Second
)

// Aggregate is the set of raw counters tracked for a worker, a provider, or
// the bucket total.
type Aggregate struct {
	UniqueAttributes uint64
	TotalAttributes  uint64
	Tokens           uint64
	CostUSD          float64
	RequestCount     uint64
}

func (a *Aggregate) add(unique, total, tokens uint64, cost float64) {
	a.UniqueAttributes += unique
	a.TotalAttributes += total
	a.Tokens += tokens
	a.CostUSD += cost
	a.RequestCount++
}

// TimeBucket is one 30-second slice of the rolling window.
type TimeBucket struct {
	Start    time.Time
	Total    Aggregate
	ByWorker map[uint32]*Aggregate
	ByProvider map[sharedtypes.ProviderID]*Aggregate
}

func newBucket(start time.Time) *TimeBucket {
	return &TimeBucket{
		Start:      start,
		ByWorker:   make(map[uint32]*Aggregate),
		ByProvider: make(map[sharedtypes.ProviderID]*Aggregate),
	}
}

func (b *TimeBucket) full(now time.Time) bool {
	return now.Sub(b.Start) >= bucketDuration
}

func (b *TimeBucket) record(worker uint32, provider sharedtypes.ProviderID, unique, total, tokens uint64, cost float64) {
	b.Total.add(unique, total, tokens, cost)

	w, ok := b.ByWorker[worker]
	if !ok {
		w = &Aggregate{}
		b.ByWorker[worker] = w
	}
	w.add(unique, total, tokens, cost)

	p, ok := b.ByProvider[provider]
	if !ok {
		p = &Aggregate{}
		b.ByProvider[provider] = p
	}
	p.add(unique, total, tokens, cost)
}
