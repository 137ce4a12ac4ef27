package metrics

import "github.com/igentai/genorch/internal/sharedtypes"

// providerRate is a provider's per-1K-token pricing.
type providerRate struct {
	inputPer1K  float64
	outputPer1K float64
}

// costTable holds the per-1K-token input/output rates used to price a
// contribution. An unknown provider prices at zero rather than failing the
// request path, since cost accounting is advisory to the optimizer, not a
// billing system of record.
var costTable = map[sharedtypes.ProviderID]providerRate{
	sharedtypes.ProviderOpenAI:    {inputPer1K: 0.0015, outputPer1K: 0.002},
	sharedtypes.ProviderAnthropic: {inputPer1K: 0.008, outputPer1K: 0.024},
	sharedtypes.ProviderGemini:    {inputPer1K: 0.0005, outputPer1K: 0.0015},
	sharedtypes.ProviderRandom:    {inputPer1K: 0, outputPer1K: 0},
}

// Cost prices a token usage under the given provider's rate table.
func Cost(provider sharedtypes.ProviderID, tokens sharedtypes.TokenUsage) float64 {
	rate, ok := costTable[provider]
	if !ok {
		return 0
	}
	return float64(tokens.Input)/1000*rate.inputPer1K + float64(tokens.Output)/1000*rate.outputPer1K
}
