package routing

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/igentai/genorch/core"
	"github.com/igentai/genorch/internal/sharedtypes"
)

const weightTolerance = 0.01

func parseProviderName(name string) (sharedtypes.ProviderID, error) {
	p := sharedtypes.ProviderID(strings.ToLower(strings.TrimSpace(name)))
	if !p.Valid() {
		return "", core.NewFrameworkError("routing.parseProviderName", "config", core.ErrInvalidRoutingConfig).WithID(name)
	}
	return p, nil
}

func parseProviders(raw string) ([]sharedtypes.ProviderID, error) {
	parts := strings.Split(raw, "+")
	out := make([]sharedtypes.ProviderID, 0, len(parts))
	for _, part := range parts {
		p, err := parseProviderName(part)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil, core.NewFrameworkError("routing.parseProviders", "config", core.ErrInvalidRoutingConfig)
	}
	return out, nil
}

func parseWeights(raw string) (map[sharedtypes.ProviderID]float32, error) {
	weights := make(map[sharedtypes.ProviderID]float32)
	var total float32

	for _, entry := range strings.Split(raw, "+") {
		kv := strings.SplitN(entry, ":", 2)
		if len(kv) != 2 {
			return nil, core.NewFrameworkError("routing.parseWeights", "config", core.ErrInvalidRoutingConfig).WithID(entry)
		}
		p, err := parseProviderName(kv[0])
		if err != nil {
			return nil, err
		}
		w, err := strconv.ParseFloat(strings.TrimSpace(kv[1]), 32)
		if err != nil || w < 0 {
			return nil, core.NewFrameworkError("routing.parseWeights", "config", core.ErrInvalidRoutingConfig).WithID(entry)
		}
		weights[p] = float32(w)
		total += float32(w)
	}

	if len(weights) == 0 {
		return nil, core.NewFrameworkError("routing.parseWeights", "config", core.ErrInvalidRoutingConfig)
	}
	if total < 1.0-weightTolerance || total > 1.0+weightTolerance {
		return nil, core.NewFrameworkError("routing.parseWeights", "config", core.ErrWeightsNotNormalized).
			WithID(fmt.Sprintf("sum=%.4f", total))
	}
	return weights, nil
}

// ParseConfigString parses the flat routing config grammar from §6.2:
//
//	strategy:(backoff|roundrobin|priority|weighted),(provider:<name> | providers:<name>(+<name>)* | weights:<name>:<f32>(+<name>:<f32>)*)
//
// Parse failure is fatal: the caller should treat any error as a
// configuration error and abort startup.
func ParseConfigString(raw string) (sharedtypes.RoutingStrategy, error) {
	fields := strings.Split(raw, ",")
	values := make(map[string]string, len(fields))
	for _, f := range fields {
		kv := strings.SplitN(f, ":", 2)
		if len(kv) != 2 {
			return sharedtypes.RoutingStrategy{}, core.NewFrameworkError("routing.ParseConfigString", "config", core.ErrInvalidRoutingConfig).WithID(raw)
		}
		values[strings.TrimSpace(kv[0])] = kv[1]
	}

	strategy, ok := values["strategy"]
	if !ok {
		return sharedtypes.RoutingStrategy{}, core.NewFrameworkError("routing.ParseConfigString", "config", core.ErrInvalidRoutingConfig).WithID(raw)
	}

	switch strategy {
	case "backoff":
		provider, ok := values["provider"]
		if !ok {
			return sharedtypes.RoutingStrategy{}, core.NewFrameworkError("routing.ParseConfigString", "config", core.ErrInvalidRoutingConfig)
		}
		p, err := parseProviderName(provider)
		if err != nil {
			return sharedtypes.RoutingStrategy{}, err
		}
		return sharedtypes.Backoff(p), nil

	case "roundrobin":
		providersRaw, ok := values["providers"]
		if !ok {
			return sharedtypes.RoutingStrategy{}, core.NewFrameworkError("routing.ParseConfigString", "config", core.ErrInvalidRoutingConfig)
		}
		ps, err := parseProviders(providersRaw)
		if err != nil {
			return sharedtypes.RoutingStrategy{}, err
		}
		return sharedtypes.RoundRobin(ps), nil

	case "priority":
		providersRaw, ok := values["providers"]
		if !ok {
			return sharedtypes.RoutingStrategy{}, core.NewFrameworkError("routing.ParseConfigString", "config", core.ErrInvalidRoutingConfig)
		}
		ps, err := parseProviders(providersRaw)
		if err != nil {
			return sharedtypes.RoutingStrategy{}, err
		}
		return sharedtypes.PriorityOrder(ps), nil

	case "weighted":
		weightsRaw, ok := values["weights"]
		if !ok {
			return sharedtypes.RoutingStrategy{}, core.NewFrameworkError("routing.ParseConfigString", "config", core.ErrInvalidRoutingConfig)
		}
		w, err := parseWeights(weightsRaw)
		if err != nil {
			return sharedtypes.RoutingStrategy{}, err
		}
		return sharedtypes.Weighted(w), nil

	default:
		return sharedtypes.RoutingStrategy{}, core.NewFrameworkError("routing.ParseConfigString", "config", core.ErrInvalidRoutingConfig).WithID(strategy)
	}
}

// FormatConfigString renders strategy back into the flat §6.2 grammar, the
// inverse of ParseConfigString. The orchestrator uses this to build the
// --routing-config argument for a worker it is about to spawn, since a
// strategy the optimizer derived exists only as an in-memory RoutingStrategy
// until it needs to cross a process boundary.
func FormatConfigString(strategy sharedtypes.RoutingStrategy) string {
	switch strategy.Kind {
	case sharedtypes.RoutingBackoff:
		return fmt.Sprintf("strategy:backoff,provider:%s", strategy.Provider)

	case sharedtypes.RoutingRoundRobin:
		return fmt.Sprintf("strategy:roundrobin,providers:%s", joinProviders(strategy.Providers))

	case sharedtypes.RoutingPriorityOrder:
		return fmt.Sprintf("strategy:priority,providers:%s", joinProviders(strategy.Providers))

	case sharedtypes.RoutingWeighted:
		return fmt.Sprintf("strategy:weighted,weights:%s", joinWeights(strategy.Weights))

	default:
		return fmt.Sprintf("strategy:backoff,provider:%s", sharedtypes.ProviderRandom)
	}
}

func joinProviders(ps []sharedtypes.ProviderID) string {
	parts := make([]string, len(ps))
	for i, p := range ps {
		parts[i] = string(p)
	}
	return strings.Join(parts, "+")
}

func joinWeights(w map[sharedtypes.ProviderID]float32) string {
	parts := make([]string, 0, len(w))
	for p, f := range w {
		parts = append(parts, fmt.Sprintf("%s:%.4f", p, f))
	}
	sort.Strings(parts)
	return strings.Join(parts, "+")
}

// ParseEnv builds a RoutingStrategy from the alternative env-var form
// (§6.3), read by workers when no --routing-config flag was passed.
// Absence of all four env vars yields the default Backoff{Random}.
func ParseEnv() (sharedtypes.RoutingStrategy, error) {
	strategy := strings.ToLower(strings.TrimSpace(os.Getenv("ROUTING_STRATEGY")))
	primary := os.Getenv("ROUTING_PRIMARY_PROVIDER")
	providersEnv := os.Getenv("ROUTING_PROVIDERS")
	weightsEnv := os.Getenv("ROUTING_WEIGHTS")

	if strategy == "" && primary == "" && providersEnv == "" && weightsEnv == "" {
		return sharedtypes.Backoff(sharedtypes.ProviderRandom), nil
	}

	switch strategy {
	case "", "backoff":
		if primary == "" {
			primary = "random"
		}
		p, err := parseProviderName(primary)
		if err != nil {
			return sharedtypes.RoutingStrategy{}, err
		}
		return sharedtypes.Backoff(p), nil

	case "roundrobin":
		ps, err := parseProviders(strings.ReplaceAll(providersEnv, ",", "+"))
		if err != nil {
			return sharedtypes.RoutingStrategy{}, err
		}
		return sharedtypes.RoundRobin(ps), nil

	case "priority":
		ps, err := parseProviders(strings.ReplaceAll(providersEnv, ",", "+"))
		if err != nil {
			return sharedtypes.RoutingStrategy{}, err
		}
		return sharedtypes.PriorityOrder(ps), nil

	case "weighted":
		w, err := parseWeights(strings.ReplaceAll(weightsEnv, ",", "+"))
		if err != nil {
			return sharedtypes.RoutingStrategy{}, err
		}
		return sharedtypes.Weighted(w), nil

	default:
		return sharedtypes.RoutingStrategy{}, core.NewFrameworkError("routing.ParseEnv", "config", core.ErrInvalidRoutingConfig).WithID(strategy)
	}
}
