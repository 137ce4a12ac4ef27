package providerapi

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/igentai/genorch/core"
)

// requestTimeout is the provider-wide timeout on every HTTP call to an LLM.
// A call that exceeds this fails with core.ErrConnectionFailed and enters
// the retry path, same as any other transient failure.
const requestTimeout = 30 * time.Second

// newHTTPClient wraps the default transport with otelhttp so every provider
// round trip carries a span child to whatever span the caller's context
// already has active (see worker/generation.go's per-request span), with no
// extra instrumentation at each call site.
func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout:   requestTimeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// classifyStatus turns a non-2xx response into an *HTTPError wrapping the
// core sentinel matching §7's error taxonomy: 401 is terminal
// authentication failure, 429 is retryable rate limiting, 503 is retryable
// service unavailability, and anything else is treated as that same
// retryable service error rather than guessed at.
func classifyStatus(resp *http.Response, body []byte) error {
	var base error
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		base = core.ErrAuthenticationFailed
	case http.StatusTooManyRequests:
		base = core.ErrRateLimited
	case http.StatusServiceUnavailable:
		base = core.ErrServiceUnavailable
	default:
		base = core.ErrServiceUnavailable
	}
	return &HTTPError{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       body,
		Err:        fmt.Errorf("%w: status %d: %s", base, resp.StatusCode, truncate(body, 500)),
	}
}

func readBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response body: %v", core.ErrConnectionFailed, err)
	}
	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
