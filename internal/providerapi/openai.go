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

const openAIBaseURL = "https://api.openai.com/v1/chat/completions"

// OpenAIClient calls the Chat Completions API.
type OpenAIClient struct {
	apiKey     string
	httpClient *http.Client
}

// NewOpenAIClient creates a client authenticated with apiKey.
func NewOpenAIClient(apiKey string) *OpenAIClient {
	return &OpenAIClient{apiKey: apiKey, httpClient: newHTTPClient()}
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float32         `json:"temperature"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Generate asks the model to continue prompt and returns its single
// response string plus token usage.
func (c *OpenAIClient) Generate(ctx context.Context, model, prompt string) (Response, error) {
	if c.apiKey == "" {
		return Response{}, fmt.Errorf("%w: openai", core.ErrNoAPIKey)
	}

	reqBody := openAIRequest{
		Model:       model,
		Messages:    []openAIMessage{{Role: "user", Content: prompt}},
		MaxTokens:   1000,
		Temperature: 0.7,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return Response{}, fmt.Errorf("%w: marshal openai request: %v", core.ErrEncodeFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, openAIBaseURL, bytes.NewReader(payload))
	if err != nil {
		return Response{}, fmt.Errorf("%w: build openai request: %v", core.ErrConnectionFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return Response{}, fmt.Errorf("%w: openai request: %v", core.ErrConnectionFailed, err)
	}

	body, err := readBody(resp)
	if err != nil {
		return Response{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Response{}, classifyStatus(resp, body)
	}

	var parsed openAIResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Response{}, fmt.Errorf("%w: openai response: %v", core.ErrProviderParseFailed, err)
	}
	if len(parsed.Choices) == 0 {
		return Response{}, fmt.Errorf("%w: openai response had no choices", core.ErrProviderParseFailed)
	}

	return Response{
		Content:   parsed.Choices[0].Message.Content,
		ModelUsed: model,
		Tokens: sharedtypes.TokenUsage{
			Input:  uint64(parsed.Usage.PromptTokens),
			Output: uint64(parsed.Usage.CompletionTokens),
		},
		ResponseTime: elapsed,
	}, nil
}
