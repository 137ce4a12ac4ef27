package providerapi

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/igentai/genorch/core"
	"github.com/igentai/genorch/internal/sharedtypes"
)

func TestNewRejectsUnknownProvider(t *testing.T) {
	_, err := New(sharedtypes.ProviderID("bogus"), "key")
	if !errors.Is(err, core.ErrInvalidConfiguration) {
		t.Fatalf("got %v, want ErrInvalidConfiguration", err)
	}
}

func TestRandomClientNeedsNoKeyAndNeverFails(t *testing.T) {
	c, err := New(sharedtypes.ProviderRandom, "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	resp, err := c.Generate(context.Background(), "random-stub", "name a bird")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Content == "" {
		t.Fatal("expected non-empty content")
	}
}

func TestOpenAIClientMissingKeyIsNoAPIKeyError(t *testing.T) {
	c := NewOpenAIClient("")
	_, err := c.Generate(context.Background(), "gpt-3.5-turbo", "hi")
	if !errors.Is(err, core.ErrNoAPIKey) {
		t.Fatalf("got %v, want ErrNoAPIKey", err)
	}
}

func TestOpenAIResponseShapeParsesIntoTokensAndContent(t *testing.T) {
	raw := []byte(`{"choices":[{"message":{"role":"assistant","content":"sparrow\nrobin"}}],"usage":{"prompt_tokens":5,"completion_tokens":7}}`)

	var parsed openAIResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content != "sparrow\nrobin" {
		t.Fatalf("got %+v", parsed)
	}
	if parsed.Usage.PromptTokens != 5 || parsed.Usage.CompletionTokens != 7 {
		t.Fatalf("got usage %+v", parsed.Usage)
	}
}

func TestClassifyStatusSurfacesRateLimitFromHTTPResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer srv.Close()

	resp, err := srv.Client().Post(srv.URL, "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	body, err := readBody(resp)
	if err != nil {
		t.Fatalf("readBody: %v", err)
	}
	classified := classifyStatus(resp, body)
	if !errors.Is(classified, core.ErrRateLimited) {
		t.Fatalf("got %v, want ErrRateLimited", classified)
	}
}

func TestClassifyStatusMapsAuthAndRateLimit(t *testing.T) {
	authResp := &http.Response{StatusCode: http.StatusUnauthorized, Header: http.Header{}}
	if err := classifyStatus(authResp, nil); !errors.Is(err, core.ErrAuthenticationFailed) {
		t.Fatalf("got %v, want ErrAuthenticationFailed", err)
	}

	rateResp := &http.Response{StatusCode: http.StatusTooManyRequests, Header: http.Header{}}
	if err := classifyStatus(rateResp, nil); !errors.Is(err, core.ErrRateLimited) {
		t.Fatalf("got %v, want ErrRateLimited", err)
	}
}

func TestGenerateWithRetryReturnsImmediatelyOnSuccess(t *testing.T) {
	c, _ := New(sharedtypes.ProviderRandom, "")
	resp, err := GenerateWithRetry(context.Background(), c, sharedtypes.ProviderRandom, "random-stub", "x", rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("GenerateWithRetry: %v", err)
	}
	if resp.Content == "" {
		t.Fatal("expected content")
	}
}

func TestGenerateWithRetryStopsOnAuthFailure(t *testing.T) {
	c := NewOpenAIClient("") // triggers ErrNoAPIKey immediately, not retried
	_, err := GenerateWithRetry(context.Background(), c, sharedtypes.ProviderOpenAI, "gpt-3.5-turbo", "x", rand.New(rand.NewSource(1)))
	if err == nil {
		t.Fatal("expected an error")
	}
}

func TestGenerateWithRetryRespectsContextCancellation(t *testing.T) {
	failing := failingClient{}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := GenerateWithRetry(ctx, failing, sharedtypes.ProviderOpenAI, "m", "p", rand.New(rand.NewSource(1)))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, want context.DeadlineExceeded", err)
	}
}

type failingClient struct{}

func (failingClient) Generate(ctx context.Context, model, prompt string) (Response, error) {
	return Response{}, &HTTPError{
		StatusCode: http.StatusServiceUnavailable,
		Headers:    http.Header{},
		Err:        core.ErrServiceUnavailable,
	}
}
