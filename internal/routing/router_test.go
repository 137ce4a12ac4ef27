package routing

import (
	"testing"

	"github.com/igentai/genorch/internal/sharedtypes"
)

func TestSelectProviderBackoff(t *testing.T) {
	r := New(sharedtypes.Backoff(sharedtypes.ProviderAnthropic))
	for i := 0; i < 3; i++ {
		p, err := r.SelectProvider()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p != sharedtypes.ProviderAnthropic {
			t.Fatalf("call %d: got %s, want anthropic", i, p)
		}
	}
}

func TestSelectProviderRoundRobinLockStep(t *testing.T) {
	order := []sharedtypes.ProviderID{sharedtypes.ProviderOpenAI, sharedtypes.ProviderAnthropic, sharedtypes.ProviderGemini}
	r := New(sharedtypes.RoundRobin(order))

	for i := 0; i < len(order)*2; i++ {
		p, err := r.SelectProvider()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if want := order[i%len(order)]; p != want {
			t.Fatalf("call %d: got %s, want %s", i, p, want)
		}
	}
}

func TestSelectProviderPriorityOrderReturnsFirstOnly(t *testing.T) {
	order := []sharedtypes.ProviderID{sharedtypes.ProviderAnthropic, sharedtypes.ProviderOpenAI}
	r := New(sharedtypes.PriorityOrder(order))

	for i := 0; i < 3; i++ {
		p, err := r.SelectProvider()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p != sharedtypes.ProviderAnthropic {
			t.Fatalf("call %d: got %s, want anthropic (first in priority)", i, p)
		}
	}
}

func TestPriorityFallThroughReturnsFullOrder(t *testing.T) {
	order := []sharedtypes.ProviderID{sharedtypes.ProviderAnthropic, sharedtypes.ProviderOpenAI, sharedtypes.ProviderGemini}
	r := New(sharedtypes.PriorityOrder(order))

	fallthroughOrder, err := r.PriorityFallThrough()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fallthroughOrder) != len(order) {
		t.Fatalf("got %v, want %v", fallthroughOrder, order)
	}
	for i, p := range order {
		if fallthroughOrder[i] != p {
			t.Fatalf("fallthroughOrder[%d] = %s, want %s", i, fallthroughOrder[i], p)
		}
	}
}

func TestPriorityFallThroughSingleForNonPriority(t *testing.T) {
	r := New(sharedtypes.Backoff(sharedtypes.ProviderGemini))
	order, err := r.PriorityFallThrough()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order) != 1 || order[0] != sharedtypes.ProviderGemini {
		t.Fatalf("got %v, want [gemini]", order)
	}
}

func TestSelectProviderWeightedOnlySelectsWeightedProviders(t *testing.T) {
	weights := map[sharedtypes.ProviderID]float32{
		sharedtypes.ProviderOpenAI:    0.9,
		sharedtypes.ProviderAnthropic: 0.1,
	}
	r := New(sharedtypes.Weighted(weights))

	seen := map[sharedtypes.ProviderID]int{}
	for i := 0; i < 500; i++ {
		p, err := r.SelectProvider()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		seen[p]++
	}

	if seen[sharedtypes.ProviderGemini] != 0 {
		t.Fatalf("gemini was never weighted, should never be selected")
	}
	if seen[sharedtypes.ProviderOpenAI] == 0 {
		t.Fatal("expected openai (weight 0.9) to be selected at least once across 500 draws")
	}
}

func TestSelectProviderEmptyWeightsIsConfigError(t *testing.T) {
	r := New(sharedtypes.Weighted(nil))
	_, err := r.SelectProvider()
	if err == nil {
		t.Fatal("expected a configuration error for empty weights")
	}
}

func TestSetStrategyResetsRoundRobinIndex(t *testing.T) {
	order := []sharedtypes.ProviderID{sharedtypes.ProviderOpenAI, sharedtypes.ProviderAnthropic}
	r := New(sharedtypes.RoundRobin(order))

	_, _ = r.SelectProvider() // advances index to 1
	r.SetStrategy(sharedtypes.RoundRobin(order))

	p, err := r.SelectProvider()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != order[0] {
		t.Fatalf("got %s, want %s after SetStrategy reset the index", p, order[0])
	}
}

func TestRecordRequestAccumulatesStats(t *testing.T) {
	r := New(sharedtypes.Backoff(sharedtypes.ProviderOpenAI))

	r.RecordRequest(sharedtypes.ProviderOpenAI, true, 0)
	r.RecordRequest(sharedtypes.ProviderOpenAI, false, 0)
	r.RecordRequest(sharedtypes.ProviderOpenAI, true, 0)

	stats := r.ProviderStats()[sharedtypes.ProviderOpenAI]
	if stats.RequestsSent != 3 || stats.Successes != 2 || stats.Failures != 1 {
		t.Fatalf("got %+v", stats)
	}
}
