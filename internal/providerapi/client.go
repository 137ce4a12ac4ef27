// Package providerapi implements make_provider_request: composing a prompt,
// dispatching it to a provider-specific HTTP client, and parsing the
// provider's JSON response shape into a uniform Response. Retry and
// backoff live here too, since the provider-specific rate-limit hints
// (internal/routing's ExtractBackoffDelay table) are meaningless without
// the raw HTTP response each client produces.
package providerapi

import (
	"context"
	"net/http"
	"time"

	"github.com/igentai/genorch/internal/sharedtypes"
)

// Response is what every provider client normalizes its reply into.
type Response struct {
	Content      string
	Tokens       sharedtypes.TokenUsage
	ModelUsed    string
	ResponseTime time.Duration
}

// Client dispatches one completion request to a single LLM provider.
type Client interface {
	Generate(ctx context.Context, model, prompt string) (Response, error)
}

// HTTPError wraps a non-2xx provider response with enough detail
// (status, headers, body) for the routing package's backoff-hint
// extraction to work, while still satisfying errors.Is against the core
// sentinel the status code maps to.
type HTTPError struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	Err        error
}

func (e *HTTPError) Error() string { return e.Err.Error() }
func (e *HTTPError) Unwrap() error { return e.Err }
