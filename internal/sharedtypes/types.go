// Package sharedtypes holds the data-model types referenced across the
// routing, wire, metrics, optimizer, orchestrator, and worker packages, so
// those packages can depend on a common vocabulary without import cycles.
package sharedtypes

import "time"

// ProviderID is the closed enumeration of LLM providers a worker can route
// requests to. Random is a deterministic in-process stub used for keyless
// testing; it never rate-limits.
type ProviderID string

const (
	ProviderOpenAI    ProviderID = "openai"
	ProviderAnthropic ProviderID = "anthropic"
	ProviderGemini    ProviderID = "gemini"
	ProviderRandom    ProviderID = "random"
)

// Valid reports whether p is one of the four known provider ids.
func (p ProviderID) Valid() bool {
	switch p {
	case ProviderOpenAI, ProviderAnthropic, ProviderGemini, ProviderRandom:
		return true
	}
	return false
}

// TokenUsage is the input/output token count of a single provider response.
type TokenUsage struct {
	Input  uint64 `json:"input" msgpack:"input"`
	Output uint64 `json:"output" msgpack:"output"`
}

// Total returns input+output tokens.
func (t TokenUsage) Total() uint64 { return t.Input + t.Output }

// ProviderMetadata is attached to every attribute batch a worker emits.
type ProviderMetadata struct {
	ProviderID       ProviderID `json:"provider_id" msgpack:"provider_id"`
	Model            string     `json:"model" msgpack:"model"`
	ResponseTimeMS   uint64     `json:"response_time_ms" msgpack:"response_time_ms"`
	Tokens           TokenUsage `json:"tokens" msgpack:"tokens"`
	RequestTimestamp int64      `json:"request_timestamp" msgpack:"request_timestamp"`
}

// RoutingKind discriminates the four RoutingStrategy variants.
type RoutingKind string

const (
	RoutingBackoff       RoutingKind = "backoff"
	RoutingRoundRobin    RoutingKind = "roundrobin"
	RoutingPriorityOrder RoutingKind = "priority"
	RoutingWeighted      RoutingKind = "weighted"
)

// RoutingStrategy is the sum type governing provider selection inside a
// worker's router. Only the field matching Kind is meaningful.
type RoutingStrategy struct {
	Kind      RoutingKind           `json:"kind" msgpack:"kind"`
	Provider  ProviderID            `json:"provider,omitempty" msgpack:"provider,omitempty"`
	Providers []ProviderID          `json:"providers,omitempty" msgpack:"providers,omitempty"`
	Weights   map[ProviderID]float32 `json:"weights,omitempty" msgpack:"weights,omitempty"`
}

// Backoff builds a single-provider Backoff strategy.
func Backoff(p ProviderID) RoutingStrategy {
	return RoutingStrategy{Kind: RoutingBackoff, Provider: p}
}

// RoundRobin builds a RoundRobin strategy over ps, in order.
func RoundRobin(ps []ProviderID) RoutingStrategy {
	return RoutingStrategy{Kind: RoutingRoundRobin, Providers: ps}
}

// PriorityOrder builds a PriorityOrder strategy over ps, in order.
func PriorityOrder(ps []ProviderID) RoutingStrategy {
	return RoutingStrategy{Kind: RoutingPriorityOrder, Providers: ps}
}

// Weighted builds a Weighted strategy from the given weight map.
func Weighted(w map[ProviderID]float32) RoutingStrategy {
	return RoutingStrategy{Kind: RoutingWeighted, Weights: w}
}

// GenerationConfig parameterizes a worker's request shape.
type GenerationConfig struct {
	Model          string  `json:"model" msgpack:"model"`
	BatchSize      int     `json:"batch_size" msgpack:"batch_size"`
	ContextWindow  int     `json:"context_window" msgpack:"context_window"`
	MaxTokens      int     `json:"max_tokens" msgpack:"max_tokens"`
	Temperature    float32 `json:"temperature" msgpack:"temperature"`
	RequestSize    int     `json:"request_size" msgpack:"request_size"`
}

// DefaultGenerationConfig mirrors the original's default request shape
// (gpt-3.5-turbo, moderate batch/context sizing).
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		Model:         "gpt-3.5-turbo",
		BatchSize:     1,
		ContextWindow: 4096,
		MaxTokens:     150,
		Temperature:   0.7,
		RequestSize:   50,
	}
}

// OptimizationMode selects the optimizer's routing-derivation policy when
// no explicit routing override is in force.
type OptimizationMode string

const (
	ModeMaximizeUAM        OptimizationMode = "maximize_uam"
	ModeMinimizeCost        OptimizationMode = "minimize_cost"
	ModeMaximizeEfficiency  OptimizationMode = "maximize_efficiency"
	ModeWeighted            OptimizationMode = "weighted"
)

// GenerationConstraints bound a topic's run.
type GenerationConstraints struct {
	MaxRuntimeSeconds  *uint64  `json:"max_runtime_seconds,omitempty"`
	MinUAM             float64  `json:"min_uam"`
	MaxCostPerMinute   float64  `json:"max_cost_per_minute"`
	UAMWeight          float32  `json:"uam_weight,omitempty"`
	CostWeight         float32  `json:"cost_weight,omitempty"`
}

// WorkerStatus is the orchestrator's view of a worker's lifecycle state.
type WorkerStatus string

const (
	WorkerStarting WorkerStatus = "starting"
	WorkerRunning  WorkerStatus = "running"
	WorkerStopping WorkerStatus = "stopping"
	WorkerStopped  WorkerStatus = "stopped"
	WorkerFailed   WorkerStatus = "failed"
)

// CompletionReason explains why a GenerationComplete update was emitted.
type CompletionReason struct {
	Kind      string `json:"kind"` // "iteration_limit" | "manual_stop" | "all_producers_failed" | "system_error"
	SystemMsg string `json:"system_msg,omitempty"`
}

func IterationLimitReached() CompletionReason { return CompletionReason{Kind: "iteration_limit"} }
func ManualStop() CompletionReason            { return CompletionReason{Kind: "manual_stop"} }
func AllProducersFailed() CompletionReason    { return CompletionReason{Kind: "all_producers_failed"} }
func SystemError(msg string) CompletionReason {
	return CompletionReason{Kind: "system_error", SystemMsg: msg}
}

// Now is a seam so callers can stamp wall-clock time without importing
// "time" directly in message-construction call sites that tests replay.
func Now() time.Time { return time.Now() }
