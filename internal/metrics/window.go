package metrics

import (
	"math"
	"sync"
	"time"

	"github.com/igentai/genorch/internal/sharedtypes"
)

// Direction is a trend's verdict for one metric axis.
type Direction string

const (
	Improving Direction = "improving"
	Stable    Direction = "stable"
	Declining Direction = "declining"
)

// trendThreshold is the ±5% change that flips a trend's direction.
const trendThreshold = 0.05

// DerivedMetrics are the per-aggregate figures the optimizer and dashboard
// consume, computed from an Aggregate plus the number of minutes the
// covering buckets span.
type DerivedMetrics struct {
	UAM               float64
	TokensPerMinute   float64
	CostPerMinute     float64
	RequestRate       float64
	UniquePerDollar   float64
	UniquePer1KTokens float64
	UniquenessRatio   float64
}

func deriveFrom(a Aggregate, minutes float64) DerivedMetrics {
	if minutes < 1 {
		minutes = 1
	}
	d := DerivedMetrics{
		UAM:             float64(a.UniqueAttributes) / minutes,
		TokensPerMinute: float64(a.Tokens) / minutes,
		CostPerMinute:   a.CostUSD / minutes,
		RequestRate:     float64(a.RequestCount) / minutes,
	}
	if a.CostUSD > 0 {
		d.UniquePerDollar = float64(a.UniqueAttributes) / a.CostUSD
	}
	if a.Tokens > 0 {
		d.UniquePer1KTokens = float64(a.UniqueAttributes) / float64(a.Tokens) * 1000
	}
	if a.TotalAttributes > 0 {
		d.UniquenessRatio = float64(a.UniqueAttributes) / float64(a.TotalAttributes)
	}
	return d
}

// TrendSummary reports the direction of change for each tracked axis,
// comparing the first half of the window to the second half, plus an
// overall stability score in [0,1].
type TrendSummary struct {
	UAM         Direction
	Cost        Direction
	Efficiency  Direction
	Stability   float64
}

// EfficiencySummary is the best observed value of each axis across all
// providers in the current window.
type EfficiencySummary struct {
	BestUAM             float64
	BestUniquePerDollar float64
	BestUniquenessRatio float64
}

// PerformanceStats is the window's derived view, recomputed at most every
// 5 seconds.
type PerformanceStats struct {
	ByWorker   map[uint32]DerivedMetrics
	ByProvider map[sharedtypes.ProviderID]DerivedMetrics
	Total      DerivedMetrics
	Efficiency EfficiencySummary
	Trends     TrendSummary
}

// Window is the rolling 5-minute (10 x 30s) performance window.
type Window struct {
	mu            sync.Mutex
	buckets       []*TimeBucket
	lastRecompute time.Time
	stats         PerformanceStats
}

// New creates an empty window.
func New() *Window {
	return &Window{}
}

// RecordContribution prices tokens under the provider's cost model, files
// the contribution into the current (or a freshly created) bucket, and
// recomputes derived stats if at least 5 seconds have passed since the last
// recomputation.
func (w *Window) RecordContribution(worker uint32, provider sharedtypes.ProviderID, uniqueCount, totalCount uint64, tokens sharedtypes.TokenUsage) {
	cost := Cost(provider, tokens)
	now := sharedtypes.Now()

	w.mu.Lock()
	defer w.mu.Unlock()

	bucket := w.currentBucket(now)
	bucket.record(worker, provider, uniqueCount, totalCount, tokens.Total(), cost)

	if w.lastRecompute.IsZero() || now.Sub(w.lastRecompute) >= recomputeEvery {
		w.recompute(now)
		w.lastRecompute = now
	}
}

func (w *Window) currentBucket(now time.Time) *TimeBucket {
	if len(w.buckets) == 0 || w.buckets[len(w.buckets)-1].full(now) {
		w.buckets = append(w.buckets, newBucket(now))
		if len(w.buckets) > maxBuckets {
			w.buckets = w.buckets[len(w.buckets)-maxBuckets:]
		}
	}
	return w.buckets[len(w.buckets)-1]
}

// Stats returns the most recently computed PerformanceStats. Safe to call
// at any time; it reflects whatever RecordContribution last recomputed (or
// the zero value if nothing has been recorded yet).
func (w *Window) Stats() PerformanceStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// Reset clears the window on a topic transition.
func (w *Window) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buckets = nil
	w.lastRecompute = time.Time{}
	w.stats = PerformanceStats{}
}

func (w *Window) recompute(now time.Time) {
	if len(w.buckets) == 0 {
		w.stats = PerformanceStats{}
		return
	}

	minutes := now.Sub(w.buckets[0].Start).Minutes()

	total := Aggregate{}
	byWorker := map[uint32]Aggregate{}
	byProvider := map[sharedtypes.ProviderID]Aggregate{}

	for _, b := range w.buckets {
		total.add(b.Total.UniqueAttributes, b.Total.TotalAttributes, b.Total.Tokens, b.Total.CostUSD)
		for id, a := range b.ByWorker {
			acc := byWorker[id]
			acc.add(a.UniqueAttributes, a.TotalAttributes, a.Tokens, a.CostUSD)
			byWorker[id] = acc
		}
		for id, a := range b.ByProvider {
			acc := byProvider[id]
			acc.add(a.UniqueAttributes, a.TotalAttributes, a.Tokens, a.CostUSD)
			byProvider[id] = acc
		}
	}

	stats := PerformanceStats{
		ByWorker:   make(map[uint32]DerivedMetrics, len(byWorker)),
		ByProvider: make(map[sharedtypes.ProviderID]DerivedMetrics, len(byProvider)),
		Total:      deriveFrom(total, minutes),
	}
	for id, a := range byWorker {
		stats.ByWorker[id] = deriveFrom(a, minutes)
	}
	for id, a := range byProvider {
		dm := deriveFrom(a, minutes)
		stats.ByProvider[id] = dm
		if dm.UAM > stats.Efficiency.BestUAM {
			stats.Efficiency.BestUAM = dm.UAM
		}
		if dm.UniquePerDollar > stats.Efficiency.BestUniquePerDollar {
			stats.Efficiency.BestUniquePerDollar = dm.UniquePerDollar
		}
		if dm.UniquenessRatio > stats.Efficiency.BestUniquenessRatio {
			stats.Efficiency.BestUniquenessRatio = dm.UniquenessRatio
		}
	}

	stats.Trends = computeTrends(w.buckets)
	w.stats = stats
}

// computeTrends compares the first half of the bucket deque to the second
// half. A ±5% change flips the direction; cost's direction is inverted
// (lower cost is improvement). Stability is 1 minus the coefficient of
// variation of the per-bucket unique-attribute counts, clamped to [0,1].
func computeTrends(buckets []*TimeBucket) TrendSummary {
	if len(buckets) < 2 {
		return TrendSummary{UAM: Stable, Cost: Stable, Efficiency: Stable, Stability: 1}
	}

	mid := len(buckets) / 2
	firstUnique, firstCost, firstTotal := sumHalf(buckets[:mid])
	secondUnique, secondCost, secondTotal := sumHalf(buckets[mid:])

	uamDir := direction(firstUnique, secondUnique, false)
	costDir := direction(firstCost, secondCost, true)

	firstEff := ratio(firstUnique, firstTotal)
	secondEff := ratio(secondUnique, secondTotal)
	effDir := direction(firstEff, secondEff, false)

	stability := 1 - meanCV(buckets)
	if stability < 0 {
		stability = 0
	}
	if stability > 1 {
		stability = 1
	}

	return TrendSummary{UAM: uamDir, Cost: costDir, Efficiency: effDir, Stability: stability}
}

func sumHalf(buckets []*TimeBucket) (unique, cost, total float64) {
	for _, b := range buckets {
		unique += float64(b.Total.UniqueAttributes)
		cost += b.Total.CostUSD
		total += float64(b.Total.TotalAttributes)
	}
	return
}

func ratio(numerator, denominator float64) float64 {
	if denominator == 0 {
		return 0
	}
	return numerator / denominator
}

// direction compares before/after under a ±5% threshold. invert flips the
// sense of improvement (used for cost, where a decrease is an improvement).
func direction(before, after float64, invert bool) Direction {
	if before == 0 {
		if after == 0 {
			return Stable
		}
		if invert {
			return Declining
		}
		return Improving
	}

	change := (after - before) / before
	if change > trendThreshold {
		if invert {
			return Declining
		}
		return Improving
	}
	if change < -trendThreshold {
		if invert {
			return Improving
		}
		return Declining
	}
	return Stable
}

// meanCV computes the coefficient of variation (stdev/mean) of the buckets'
// total unique-attribute counts, as a measure of how noisy the window has
// been. Only that one axis is measured.
func meanCV(buckets []*TimeBucket) float64 {
	n := float64(len(buckets))
	if n == 0 {
		return 0
	}

	var sum float64
	for _, b := range buckets {
		sum += float64(b.Total.UniqueAttributes)
	}
	mean := sum / n
	if mean == 0 {
		return 0
	}

	var variance float64
	for _, b := range buckets {
		diff := float64(b.Total.UniqueAttributes) - mean
		variance += diff * diff
	}
	variance /= n
	return math.Sqrt(variance) / mean
}
