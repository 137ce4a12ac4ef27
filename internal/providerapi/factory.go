package providerapi

import (
	"fmt"

	"github.com/igentai/genorch/core"
	"github.com/igentai/genorch/internal/sharedtypes"
)

// New builds the Client for provider, authenticated with apiKey. apiKey is
// ignored for Random, which needs none.
func New(provider sharedtypes.ProviderID, apiKey string) (Client, error) {
	switch provider {
	case sharedtypes.ProviderOpenAI:
		return NewOpenAIClient(apiKey), nil
	case sharedtypes.ProviderAnthropic:
		return NewAnthropicClient(apiKey), nil
	case sharedtypes.ProviderGemini:
		return NewGeminiClient(apiKey), nil
	case sharedtypes.ProviderRandom:
		return NewRandomClient(), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", core.ErrInvalidConfiguration, provider)
	}
}
