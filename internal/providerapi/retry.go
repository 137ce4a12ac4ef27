package providerapi

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/igentai/genorch/core"
	"github.com/igentai/genorch/internal/routing"
	"github.com/igentai/genorch/internal/sharedtypes"
)

// GenerateWithRetry wraps a single Generate call in the request-plane retry
// loop: authentication failures, a missing API key and unparseable response
// bodies are terminal; rate limiting and service unavailability retry using
// the provider's own backoff hint (or exponential backoff when none is
// extractable); any other error (network
// failure, timeout) also retries with exponential backoff. Unlike
// control-plane message retries, this loop has no attempt ceiling — it
// continues until the error is terminal or ctx is canceled.
func GenerateWithRetry(ctx context.Context, client Client, provider sharedtypes.ProviderID, model, prompt string, rng *rand.Rand) (Response, error) {
	for attempt := 0; ; attempt++ {
		resp, err := client.Generate(ctx, model, prompt)
		if err == nil {
			return resp, nil
		}

		if errors.Is(err, core.ErrAuthenticationFailed) || errors.Is(err, core.ErrNoAPIKey) || errors.Is(err, core.ErrProviderParseFailed) {
			return Response{}, err
		}

		delay := delayFor(err, provider, attempt, rng)

		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case <-time.After(delay):
		}
	}
}

func delayFor(err error, provider sharedtypes.ProviderID, attempt int, rng *rand.Rand) time.Duration {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		if hint, ok := routing.ExtractBackoffDelay(provider, httpErr.Headers, httpErr.Body); ok {
			return hint
		}
	}
	return routing.ExponentialBackoff(attempt, rng)
}
