package metrics

import (
	"testing"

	"github.com/igentai/genorch/internal/sharedtypes"
)

func TestCostUnknownProviderIsZero(t *testing.T) {
	if c := Cost(sharedtypes.ProviderID("bogus"), sharedtypes.TokenUsage{Input: 1000, Output: 1000}); c != 0 {
		t.Fatalf("got %v, want 0", c)
	}
}

func TestCostKnownProvider(t *testing.T) {
	c := Cost(sharedtypes.ProviderOpenAI, sharedtypes.TokenUsage{Input: 1000, Output: 1000})
	want := 0.0015 + 0.002
	if c != want {
		t.Fatalf("got %v, want %v", c, want)
	}
}

func TestRecordContributionAccumulatesIntoTotal(t *testing.T) {
	w := New()
	w.RecordContribution(1, sharedtypes.ProviderOpenAI, 5, 10, sharedtypes.TokenUsage{Input: 100, Output: 100})
	w.RecordContribution(2, sharedtypes.ProviderAnthropic, 3, 6, sharedtypes.TokenUsage{Input: 50, Output: 50})

	// The second contribution lands inside the 5-second recompute interval,
	// so force the recompute that Stats would otherwise only see later.
	w.mu.Lock()
	w.recompute(sharedtypes.Now())
	w.mu.Unlock()

	stats := w.Stats()
	if stats.Total.UAM == 0 {
		t.Fatal("expected non-zero UAM after recording contributions")
	}
	if len(stats.ByWorker) != 2 {
		t.Fatalf("got %d workers, want 2", len(stats.ByWorker))
	}
	if len(stats.ByProvider) != 2 {
		t.Fatalf("got %d providers, want 2", len(stats.ByProvider))
	}
}

func TestDeriveFromFloorsAtOneMinute(t *testing.T) {
	a := Aggregate{UniqueAttributes: 30}
	d := deriveFrom(a, 0.1)
	if d.UAM != 30 {
		t.Fatalf("got %v, want 30 (floored to 1 minute divisor)", d.UAM)
	}
}

func TestDeriveFromZeroCostAndTokensDontDivideByZero(t *testing.T) {
	a := Aggregate{UniqueAttributes: 5, TotalAttributes: 10}
	d := deriveFrom(a, 1)
	if d.UniquePerDollar != 0 || d.UniquePer1KTokens != 0 {
		t.Fatalf("got %+v, want zero for cost/tokens-derived fields", d)
	}
	if d.UniquenessRatio != 0.5 {
		t.Fatalf("got %v, want 0.5", d.UniquenessRatio)
	}
}

func TestResetClearsWindow(t *testing.T) {
	w := New()
	w.RecordContribution(1, sharedtypes.ProviderOpenAI, 5, 10, sharedtypes.TokenUsage{Input: 100, Output: 100})
	w.Reset()

	stats := w.Stats()
	if stats.Total.UAM != 0 || len(stats.ByWorker) != 0 {
		t.Fatalf("expected zero stats after reset, got %+v", stats)
	}
}

func TestComputeTrendsShortWindowIsStable(t *testing.T) {
	trends := computeTrends(nil)
	if trends.UAM != Stable || trends.Cost != Stable || trends.Efficiency != Stable {
		t.Fatalf("got %+v, want all stable for an empty window", trends)
	}
	if trends.Stability != 1 {
		t.Fatalf("stability = %v, want 1 for an empty window", trends.Stability)
	}
}

func TestDirectionThresholds(t *testing.T) {
	if d := direction(100, 104, false); d != Stable {
		t.Fatalf("4%% change should be stable, got %v", d)
	}
	if d := direction(100, 106, false); d != Improving {
		t.Fatalf("6%% increase should be improving, got %v", d)
	}
	if d := direction(100, 94, false); d != Declining {
		t.Fatalf("6%% decrease should be declining, got %v", d)
	}
	if d := direction(100, 94, true); d != Improving {
		t.Fatalf("inverted: 6%% cost decrease should be improving, got %v", d)
	}
	if d := direction(100, 106, true); d != Declining {
		t.Fatalf("inverted: 6%% cost increase should be declining, got %v", d)
	}
}

func TestDirectionFromZeroBaseline(t *testing.T) {
	if d := direction(0, 0, false); d != Stable {
		t.Fatalf("got %v, want stable", d)
	}
	if d := direction(0, 5, false); d != Improving {
		t.Fatalf("got %v, want improving", d)
	}
}
