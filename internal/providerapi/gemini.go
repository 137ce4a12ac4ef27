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

const geminiBaseURLTemplate = "https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent?key=%s"

// GeminiClient calls the GenerateContent API.
type GeminiClient struct {
	apiKey     string
	httpClient *http.Client
}

// NewGeminiClient creates a client authenticated with apiKey.
func NewGeminiClient(apiKey string) *GeminiClient {
	return &GeminiClient{apiKey: apiKey, httpClient: newHTTPClient()}
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

// Generate asks the model to continue prompt and returns its single
// response string plus token usage.
func (c *GeminiClient) Generate(ctx context.Context, model, prompt string) (Response, error) {
	if c.apiKey == "" {
		return Response{}, fmt.Errorf("%w: gemini", core.ErrNoAPIKey)
	}

	reqBody := geminiRequest{Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}}}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return Response{}, fmt.Errorf("%w: marshal gemini request: %v", core.ErrEncodeFailed, err)
	}

	url := fmt.Sprintf(geminiBaseURLTemplate, model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return Response{}, fmt.Errorf("%w: build gemini request: %v", core.ErrConnectionFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return Response{}, fmt.Errorf("%w: gemini request: %v", core.ErrConnectionFailed, err)
	}

	body, err := readBody(resp)
	if err != nil {
		return Response{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Response{}, classifyStatus(resp, body)
	}

	var parsed geminiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Response{}, fmt.Errorf("%w: gemini response: %v", core.ErrProviderParseFailed, err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return Response{}, fmt.Errorf("%w: gemini response had no candidates", core.ErrProviderParseFailed)
	}

	return Response{
		Content:   parsed.Candidates[0].Content.Parts[0].Text,
		ModelUsed: model,
		Tokens: sharedtypes.TokenUsage{
			Input:  uint64(parsed.UsageMetadata.PromptTokenCount),
			Output: uint64(parsed.UsageMetadata.CandidatesTokenCount),
		},
		ResponseTime: elapsed,
	}, nil
}
