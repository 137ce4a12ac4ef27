package routing

import (
	"math"
	"math/rand"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/igentai/genorch/internal/sharedtypes"
)

// openAIRetryPattern matches the literal "try again in <N>ms" substring
// OpenAI embeds in error.message on a 429 response body.
var openAIRetryPattern = regexp.MustCompile(`try again in (\d+)ms`)

// ExtractBackoffDelay implements the §4.3 provider hint table: given the
// response headers and body a provider returned, it returns the delay the
// provider itself asked for. ok is false when no hint is extractable, in
// which case the caller should fall back to ExponentialBackoff.
func ExtractBackoffDelay(provider sharedtypes.ProviderID, headers http.Header, body []byte) (delay time.Duration, ok bool) {
	switch provider {
	case sharedtypes.ProviderOpenAI:
		m := openAIRetryPattern.FindSubmatch(body)
		if m == nil {
			return 0, false
		}
		ms, err := strconv.Atoi(string(m[1]))
		if err != nil {
			return 0, false
		}
		return time.Duration(ms) * time.Millisecond, true

	case sharedtypes.ProviderAnthropic:
		if secs, ok := parseRetryAfterSeconds(headers); ok {
			return secs, true
		}
		if resetAt, ok := parseUnixSecondsHeader(headers, "anthropic-ratelimit-tokens-reset"); ok {
			until := time.Until(resetAt)
			if until < time.Second {
				until = time.Second
			}
			return until, true
		}
		return 0, false

	case sharedtypes.ProviderGemini:
		if secs, ok := parseRetryAfterSeconds(headers); ok {
			return secs, true
		}
		return 0, false

	case sharedtypes.ProviderRandom:
		// Random never rate-limits.
		return 0, false

	default:
		return 0, false
	}
}

func parseRetryAfterSeconds(headers http.Header) (time.Duration, bool) {
	raw := headers.Get("retry-after")
	if raw == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

func parseUnixSecondsHeader(headers http.Header, name string) (time.Time, bool) {
	raw := headers.Get(name)
	if raw == "" {
		return time.Time{}, false
	}
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(secs, 0), true
}

// ExponentialBackoff computes delay_ms = min(60_000, 1000 * 2^attempt) *
// uniform(0.9, 1.1), attempt counting from 0. Used whenever a provider gives
// no usable rate-limit hint.
func ExponentialBackoff(attempt int, rng *rand.Rand) time.Duration {
	base := math.Min(60_000, 1000*math.Pow(2, float64(attempt)))
	jitter := 0.9 + rng.Float64()*0.2
	return time.Duration(base*jitter) * time.Millisecond
}
