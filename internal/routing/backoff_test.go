package routing

import (
	"math/rand"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/igentai/genorch/internal/sharedtypes"
)

func TestExtractBackoffDelayOpenAI(t *testing.T) {
	body := []byte(`{"error":{"message":"Please try again in 442ms"}}`)
	delay, ok := ExtractBackoffDelay(sharedtypes.ProviderOpenAI, http.Header{}, body)
	if !ok {
		t.Fatal("expected a hint to be extracted")
	}
	if delay != 442*time.Millisecond {
		t.Fatalf("delay = %v, want 442ms", delay)
	}
}

func TestExtractBackoffDelayOpenAINoHint(t *testing.T) {
	_, ok := ExtractBackoffDelay(sharedtypes.ProviderOpenAI, http.Header{}, []byte(`{"error":{"message":"rate limited"}}`))
	if ok {
		t.Fatal("expected no hint when the pattern is absent")
	}
}

func TestExtractBackoffDelayAnthropicRetryAfter(t *testing.T) {
	h := http.Header{}
	h.Set("retry-after", "5")
	delay, ok := ExtractBackoffDelay(sharedtypes.ProviderAnthropic, h, nil)
	if !ok || delay != 5*time.Second {
		t.Fatalf("delay = %v, ok = %v, want 5s, true", delay, ok)
	}
}

func TestExtractBackoffDelayAnthropicTokensReset(t *testing.T) {
	h := http.Header{}
	resetAt := time.Now().Add(3 * time.Second).Unix()
	h.Set("anthropic-ratelimit-tokens-reset", itoa64(resetAt))
	delay, ok := ExtractBackoffDelay(sharedtypes.ProviderAnthropic, h, nil)
	if !ok {
		t.Fatal("expected a hint to be extracted")
	}
	if delay < 2*time.Second || delay > 3*time.Second {
		t.Fatalf("delay = %v, want ~3s", delay)
	}
}

func TestExtractBackoffDelayAnthropicTokensResetMinimum(t *testing.T) {
	h := http.Header{}
	resetAt := time.Now().Add(-10 * time.Second).Unix() // already past
	h.Set("anthropic-ratelimit-tokens-reset", itoa64(resetAt))
	delay, ok := ExtractBackoffDelay(sharedtypes.ProviderAnthropic, h, nil)
	if !ok || delay != time.Second {
		t.Fatalf("delay = %v, ok = %v, want 1s floor, true", delay, ok)
	}
}

func TestExtractBackoffDelayGemini(t *testing.T) {
	h := http.Header{}
	h.Set("retry-after", "2")
	delay, ok := ExtractBackoffDelay(sharedtypes.ProviderGemini, h, nil)
	if !ok || delay != 2*time.Second {
		t.Fatalf("delay = %v, ok = %v, want 2s, true", delay, ok)
	}
}

func TestExtractBackoffDelayRandomNeverRateLimits(t *testing.T) {
	_, ok := ExtractBackoffDelay(sharedtypes.ProviderRandom, http.Header{}, nil)
	if ok {
		t.Fatal("random provider should never yield a backoff hint")
	}
}

func TestExponentialBackoffBounded(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for attempt := 0; attempt < 20; attempt++ {
		delay := ExponentialBackoff(attempt, rng)
		if delay > 66_000*time.Millisecond {
			t.Fatalf("attempt %d: delay %v exceeds 66s bound", attempt, delay)
		}
		if delay < 0 {
			t.Fatalf("attempt %d: negative delay %v", attempt, delay)
		}
	}
}

func TestExponentialBackoffMonotonicInExpectation(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	prevBase := time.Duration(0)
	for attempt := 0; attempt < 6; attempt++ {
		// Compare against the jitter-free base to check growth, since a single
		// sample can fall either side of ±10%.
		base := time.Duration(minFloat(60_000, 1000*pow2(attempt))) * time.Millisecond
		if attempt > 0 && base < prevBase {
			t.Fatalf("attempt %d: base delay %v not >= previous %v", attempt, base, prevBase)
		}
		prevBase = base
		_ = ExponentialBackoff(attempt, rng)
	}
}

func itoa64(v int64) string {
	return strconv.FormatInt(v, 10)
}

func pow2(n int) float64 {
	result := 1.0
	for i := 0; i < n; i++ {
		result *= 2
	}
	return result
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
