package routing

import (
	"math/rand"
	"sync"
	"time"

	"github.com/igentai/genorch/core"
	"github.com/igentai/genorch/internal/sharedtypes"
)

// Stats accumulates per-provider observations for a worker's router.
type Stats struct {
	RequestsSent int
	Successes    int
	Failures     int
	LastLatency  time.Duration
}

// Router owns a worker's current routing policy, round-robin cursor,
// per-provider statistics, API keys, prompt template, and per-provider
// request config. It is safe for concurrent use.
type Router struct {
	mu sync.RWMutex

	strategy       sharedtypes.RoutingStrategy
	roundRobinIdx  int
	stats          map[sharedtypes.ProviderID]*Stats
	apiKeys        map[sharedtypes.ProviderID]string
	prompt         string
	requestConfigs map[sharedtypes.ProviderID]sharedtypes.GenerationConfig

	rng *rand.Rand
}

// New creates a Router with the given initial strategy.
func New(strategy sharedtypes.RoutingStrategy) *Router {
	defaults := sharedtypes.DefaultGenerationConfig()
	return &Router{
		strategy: strategy,
		stats:    make(map[sharedtypes.ProviderID]*Stats),
		apiKeys:  make(map[sharedtypes.ProviderID]string),
		requestConfigs: map[sharedtypes.ProviderID]sharedtypes.GenerationConfig{
			sharedtypes.ProviderOpenAI:    defaults,
			sharedtypes.ProviderAnthropic: defaults,
			sharedtypes.ProviderGemini:    defaults,
			sharedtypes.ProviderRandom:    defaults,
		},
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetAPIKeys replaces the provider -> API key map wholesale.
func (r *Router) SetAPIKeys(keys map[sharedtypes.ProviderID]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.apiKeys = keys
}

// APIKey returns the configured key for a provider, or "" if none.
func (r *Router) APIKey(p sharedtypes.ProviderID) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.apiKeys[p]
}

// SetStrategy replaces the routing strategy in force.
func (r *Router) SetStrategy(s sharedtypes.RoutingStrategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategy = s
	r.roundRobinIdx = 0
}

// Strategy returns a copy of the current strategy.
func (r *Router) Strategy() sharedtypes.RoutingStrategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.strategy
}

// SetPrompt replaces the stored base prompt.
func (r *Router) SetPrompt(prompt string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prompt = prompt
}

// Prompt returns the stored base prompt.
func (r *Router) Prompt() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.prompt
}

// SetGenerationConfig applies cfg to every provider's request config.
func (r *Router) SetGenerationConfig(cfg sharedtypes.GenerationConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for p := range r.requestConfigs {
		r.requestConfigs[p] = cfg
	}
}

// RequestConfig returns the generation config for a given provider.
func (r *Router) RequestConfig(p sharedtypes.ProviderID) sharedtypes.GenerationConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.requestConfigs[p]
}

// SelectProvider picks the next provider per the current strategy:
//   - Backoff{p} -> always p.
//   - RoundRobin{ps} -> ps[index++ mod len].
//   - PriorityOrder{ps} -> ps[0]; fall-through happens in the retry loop.
//   - Weighted{w} -> weighted random; empty weights is a configuration error.
func (r *Router) SelectProvider() (sharedtypes.ProviderID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.strategy.Kind {
	case sharedtypes.RoutingBackoff:
		return r.strategy.Provider, nil

	case sharedtypes.RoutingRoundRobin:
		if len(r.strategy.Providers) == 0 {
			return "", core.NewFrameworkError("Router.SelectProvider", "config", core.ErrInvalidRoutingConfig)
		}
		p := r.strategy.Providers[r.roundRobinIdx%len(r.strategy.Providers)]
		r.roundRobinIdx = (r.roundRobinIdx + 1) % len(r.strategy.Providers)
		return p, nil

	case sharedtypes.RoutingPriorityOrder:
		if len(r.strategy.Providers) == 0 {
			return "", core.NewFrameworkError("Router.SelectProvider", "config", core.ErrInvalidRoutingConfig)
		}
		return r.strategy.Providers[0], nil

	case sharedtypes.RoutingWeighted:
		if len(r.strategy.Weights) == 0 {
			return "", core.NewFrameworkError("Router.SelectProvider", "config", core.ErrInvalidRoutingConfig)
		}
		var total float32
		for _, w := range r.strategy.Weights {
			total += w
		}
		roll := r.rng.Float32() * total
		var first sharedtypes.ProviderID
		for p, w := range r.strategy.Weights {
			if first == "" {
				first = p
			}
			roll -= w
			if roll <= 0 {
				return p, nil
			}
		}
		return first, nil

	default:
		return "", core.NewFrameworkError("Router.SelectProvider", "config", core.ErrInvalidRoutingConfig)
	}
}

// PriorityFallThrough returns the providers to try, in order, for the
// current strategy, honoring PriorityOrder's fall-through-on-failure
// semantics. For every other strategy it returns a single-element slice
// from SelectProvider.
func (r *Router) PriorityFallThrough() ([]sharedtypes.ProviderID, error) {
	r.mu.RLock()
	strategy := r.strategy
	r.mu.RUnlock()

	if strategy.Kind == sharedtypes.RoutingPriorityOrder {
		if len(strategy.Providers) == 0 {
			return nil, core.NewFrameworkError("Router.PriorityFallThrough", "config", core.ErrInvalidRoutingConfig)
		}
		return strategy.Providers, nil
	}

	p, err := r.SelectProvider()
	if err != nil {
		return nil, err
	}
	return []sharedtypes.ProviderID{p}, nil
}

// RecordRequest tallies one attempt against a provider's stats.
func (r *Router) RecordRequest(p sharedtypes.ProviderID, success bool, latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stats[p]
	if !ok {
		s = &Stats{}
		r.stats[p] = s
	}
	s.RequestsSent++
	s.LastLatency = latency
	if success {
		s.Successes++
	} else {
		s.Failures++
	}
}

// ProviderStats returns a snapshot of all per-provider stats.
func (r *Router) ProviderStats() map[sharedtypes.ProviderID]Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[sharedtypes.ProviderID]Stats, len(r.stats))
	for p, s := range r.stats {
		out[p] = *s
	}
	return out
}
