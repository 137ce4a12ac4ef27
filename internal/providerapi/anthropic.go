package providerapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/igentai/genorch/core"
	"github.com/igentai/genorch/internal/sharedtypes"
)

const anthropicBaseURL = "https://api.anthropic.com/v1/messages"

// AnthropicClient calls the Messages API.
type AnthropicClient struct {
	apiKey     string
	httpClient *http.Client
}

// NewAnthropicClient creates a client authenticated with apiKey.
func NewAnthropicClient(apiKey string) *AnthropicClient {
	return &AnthropicClient{apiKey: apiKey, httpClient: newHTTPClient()}
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	Messages  []anthropicMessage `json:"messages"`
	MaxTokens int                `json:"max_tokens"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Generate asks the model to continue prompt and returns its single
// response string plus token usage.
func (c *AnthropicClient) Generate(ctx context.Context, model, prompt string) (Response, error) {
	if c.apiKey == "" {
		return Response{}, fmt.Errorf("%w: anthropic", core.ErrNoAPIKey)
	}

	reqBody := anthropicRequest{
		Model:     model,
		Messages:  []anthropicMessage{{Role: "user", Content: prompt}},
		MaxTokens: 1000,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return Response{}, fmt.Errorf("%w: marshal anthropic request: %v", core.ErrEncodeFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, anthropicBaseURL, bytes.NewReader(payload))
	if err != nil {
		return Response{}, fmt.Errorf("%w: build anthropic request: %v", core.ErrConnectionFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return Response{}, fmt.Errorf("%w: anthropic request: %v", core.ErrConnectionFailed, err)
	}

	body, err := readBody(resp)
	if err != nil {
		return Response{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Response{}, classifyStatus(resp, body)
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Response{}, fmt.Errorf("%w: anthropic response: %v", core.ErrProviderParseFailed, err)
	}
	if len(parsed.Content) == 0 {
		return Response{}, fmt.Errorf("%w: anthropic response had no content blocks", core.ErrProviderParseFailed)
	}

	return Response{
		Content:   parsed.Content[0].Text,
		ModelUsed: model,
		Tokens: sharedtypes.TokenUsage{
			Input:  uint64(parsed.Usage.InputTokens),
			Output: uint64(parsed.Usage.OutputTokens),
		},
		ResponseTime: elapsed,
	}, nil
}
