// Package optimizer derives routing strategy and generation config updates
// from the metrics window's current performance stats, following a strict
// fallback hierarchy that never overrides an explicit operator choice.
package optimizer

import (
	"fmt"
	"sort"

	"github.com/igentai/genorch/internal/metrics"
	"github.com/igentai/genorch/internal/sharedtypes"
)

// Plan is the optimizer's output: a recommended prompt, routing strategy,
// and generation config, plus the confidence and rationale behind them.
type Plan struct {
	Prompt               string
	RoutingStrategy      sharedtypes.RoutingStrategy
	GenerationConfig     sharedtypes.GenerationConfig
	PartitioningStrategy string
	Confidence           float64
	Rationale            string
	ExpectedImprovements map[string]float64
}

// Input bundles everything Derive needs: the current window stats, the
// optimization mode in force, any explicit routing overrides (topic-level
// takes precedence over orchestrator-level default), the base prompt to
// tune, and the bootstrap provider list a fresh topic starts with before
// enough data has accumulated to compare providers.
type Input struct {
	Stats                metrics.PerformanceStats
	Mode                 sharedtypes.OptimizationMode
	TopicOverride        *sharedtypes.RoutingStrategy
	OrchestratorDefault  *sharedtypes.RoutingStrategy
	BasePrompt           string
	BootstrapProviders   []sharedtypes.ProviderID
	UAMWeight            float32
	CostWeight           float32
	HistoricalSuccess    float64
}

// Derive produces an OptimizationPlan. Routing choice follows the fallback
// hierarchy in order: topic override, orchestrator default, then a
// performance-derived strategy chosen by Mode.
func Derive(in Input) Plan {
	strategy, rationale := deriveRoutingStrategy(in)
	config := deriveGenerationConfig(in.Stats.Total, in.Mode)
	confidence := deriveConfidence(in)

	return Plan{
		Prompt:               in.BasePrompt,
		RoutingStrategy:      strategy,
		GenerationConfig:     config,
		PartitioningStrategy: "even",
		Confidence:           confidence,
		Rationale:            rationale,
		ExpectedImprovements: expectedImprovements(in.Stats),
	}
}

func deriveRoutingStrategy(in Input) (sharedtypes.RoutingStrategy, string) {
	if in.TopicOverride != nil {
		return *in.TopicOverride, "topic-level routing override in force"
	}
	if in.OrchestratorDefault != nil {
		return *in.OrchestratorDefault, "orchestrator-level default routing in force"
	}

	if len(in.Stats.ByProvider) == 0 {
		if len(in.BootstrapProviders) == 1 {
			return sharedtypes.Backoff(in.BootstrapProviders[0]), "single-provider bootstrap, no performance data yet"
		}
		if len(in.BootstrapProviders) > 1 {
			return sharedtypes.RoundRobin(in.BootstrapProviders), "multi-provider bootstrap, no performance data yet"
		}
		return sharedtypes.Backoff(sharedtypes.ProviderRandom), "no providers configured, defaulting to random"
	}

	switch in.Mode {
	case sharedtypes.ModeMaximizeUAM:
		return priorityByUAM(in.Stats), "prioritizing providers by unique-attributes-per-minute"

	case sharedtypes.ModeMinimizeCost:
		return weightedByUniquePerDollar(in.Stats), "weighting providers by unique attributes per dollar"

	case sharedtypes.ModeMaximizeEfficiency:
		return weightedByEfficiencyScore(in.Stats), "weighting providers by a blended UAM/efficiency score"

	case sharedtypes.ModeWeighted:
		return weightedCustomMix(in.Stats, in.UAMWeight, in.CostWeight), "custom weighted mix of UAM and cost"

	default:
		return sharedtypes.Backoff(sharedtypes.ProviderRandom), "unrecognized optimization mode, defaulting to random"
	}
}

func priorityByUAM(stats metrics.PerformanceStats) sharedtypes.RoutingStrategy {
	providers := providerKeys(stats.ByProvider)
	sort.Slice(providers, func(i, j int) bool {
		return stats.ByProvider[providers[i]].UAM > stats.ByProvider[providers[j]].UAM
	})
	return sharedtypes.PriorityOrder(providers)
}

func weightedByUniquePerDollar(stats metrics.PerformanceStats) sharedtypes.RoutingStrategy {
	scores := make(map[sharedtypes.ProviderID]float64, len(stats.ByProvider))
	for id, dm := range stats.ByProvider {
		scores[id] = dm.UniquePerDollar
	}
	return sharedtypes.Weighted(normalizeWeights(scores))
}

func weightedByEfficiencyScore(stats metrics.PerformanceStats) sharedtypes.RoutingStrategy {
	scores := make(map[sharedtypes.ProviderID]float64, len(stats.ByProvider))
	for id, dm := range stats.ByProvider {
		uamScore := safeRatio(dm.UAM, stats.Efficiency.BestUAM)
		effScore := safeRatio(dm.UniquenessRatio, stats.Efficiency.BestUniquenessRatio)
		scores[id] = 0.6*uamScore + 0.4*effScore
	}
	return sharedtypes.Weighted(normalizeWeights(scores))
}

func weightedCustomMix(stats metrics.PerformanceStats, uamWeight, costWeight float32) sharedtypes.RoutingStrategy {
	scores := make(map[sharedtypes.ProviderID]float64, len(stats.ByProvider))
	for id, dm := range stats.ByProvider {
		uamScore := safeRatio(dm.UAM, stats.Efficiency.BestUAM)
		costScore := safeRatio(dm.UniquePerDollar, stats.Efficiency.BestUniquePerDollar)
		scores[id] = float64(uamWeight)*uamScore + float64(costWeight)*costScore
	}
	return sharedtypes.Weighted(normalizeWeights(scores))
}

func safeRatio(value, best float64) float64 {
	if best == 0 {
		return 0
	}
	return value / best
}

func normalizeWeights(scores map[sharedtypes.ProviderID]float64) map[sharedtypes.ProviderID]float32 {
	var sum float64
	for _, s := range scores {
		sum += s
	}

	weights := make(map[sharedtypes.ProviderID]float32, len(scores))
	if sum <= 0 {
		// No signal to weight by: split evenly across observed providers.
		even := float32(1) / float32(len(scores))
		for id := range scores {
			weights[id] = even
		}
		return weights
	}

	for id, s := range scores {
		weights[id] = float32(s / sum)
	}
	return weights
}

func providerKeys(m map[sharedtypes.ProviderID]metrics.DerivedMetrics) []sharedtypes.ProviderID {
	keys := make([]sharedtypes.ProviderID, 0, len(m))
	for id := range m {
		keys = append(keys, id)
	}
	return keys
}

// deriveGenerationConfig tunes request shape from the uniqueness ratio: a
// low ratio (providers are mostly returning duplicates) calls for a hotter,
// smaller request to shake loose more variety; a high ratio can afford a
// larger, more efficient request. Mode then clamps the result.
func deriveGenerationConfig(total metrics.DerivedMetrics, mode sharedtypes.OptimizationMode) sharedtypes.GenerationConfig {
	cfg := sharedtypes.DefaultGenerationConfig()

	switch {
	case total.UniquenessRatio > 0 && total.UniquenessRatio < 0.3:
		cfg.Temperature = 0.9
		cfg.RequestSize = 25
	case total.UniquenessRatio >= 0.3 && total.UniquenessRatio < 0.7:
		// leave defaults
	case total.UniquenessRatio >= 0.7:
		cfg.RequestSize = 80
		cfg.MaxTokens = 250
		cfg.BatchSize = 2
	}

	switch mode {
	case sharedtypes.ModeMinimizeCost:
		if cfg.MaxTokens > 500 {
			cfg.MaxTokens = 500
		}
		if cfg.RequestSize > 80 {
			cfg.RequestSize = 80
		}
	case sharedtypes.ModeMaximizeUAM:
		if cfg.RequestSize < 120 {
			cfg.RequestSize = 120
		}
		if cfg.BatchSize < 2 {
			cfg.BatchSize = 2
		}
	}

	return cfg
}

// deriveConfidence assembles the plan's confidence additively: a 0.5
// baseline, +0.2 once at least 3 providers have been observed, +0.2 when
// stability exceeds 0.7, up to +0.2 scaled by historical success, and -0.1
// when either axis sits at an extreme (0 or 1), clamped to [0,1].
func deriveConfidence(in Input) float64 {
	confidence := 0.5

	if len(in.Stats.ByProvider) >= 3 {
		confidence += 0.2
	}
	if in.Stats.Trends.Stability > 0.7 {
		confidence += 0.2
	}
	confidence += 0.2 * clamp01(in.HistoricalSuccess)

	if isExtreme(in.Stats.Total.UniquenessRatio) || isExtreme(in.Stats.Trends.Stability) {
		confidence -= 0.1
	}

	return clamp01(confidence)
}

func isExtreme(v float64) bool {
	return v <= 0 || v >= 1
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func expectedImprovements(stats metrics.PerformanceStats) map[string]float64 {
	return map[string]float64{
		"uam":              stats.Total.UAM,
		"cost_per_minute":  stats.Total.CostPerMinute,
		"uniqueness_ratio": stats.Total.UniquenessRatio,
	}
}

// Describe renders a one-line human summary of a plan, used in log lines
// and the dashboard's StatisticsUpdate payload.
func Describe(p Plan) string {
	return fmt.Sprintf("routing=%s confidence=%.2f rationale=%q", p.RoutingStrategy.Kind, p.Confidence, p.Rationale)
}
