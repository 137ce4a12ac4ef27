// Package worker implements a producer process: it receives Commands from
// the orchestrator over its own listener, runs the generation loop composed
// in §4.3's closing paragraph (select provider, call it with retry, dedup
// locally, ship new values home), and applies any SyncCheck it receives to
// its local bloom mirror. The orchestrator in this module sends none, so the
// mirror holds only what this worker has itself seen.
package worker

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/igentai/genorch/core"
	"github.com/igentai/genorch/internal/providerapi"
	"github.com/igentai/genorch/internal/routing"
	"github.com/igentai/genorch/internal/sharedtypes"
	"github.com/igentai/genorch/internal/uniqueness"
	"github.com/igentai/genorch/internal/wire"
	"github.com/igentai/genorch/resilience"
)

// Config bundles everything a Worker needs at construction.
type Config struct {
	ID               uint32
	OrchestratorAddr string
	ListenPort       uint16
	Model            string
	InitialStrategy  sharedtypes.RoutingStrategy
	ProviderTimeout  time.Duration
	APIKeys          map[sharedtypes.ProviderID]string
	Logger           core.Logger
	Telemetry        core.Telemetry
}

// Worker is one producer process's local state: its router, its mirror of
// the authoritative bloom, and the single in-flight generation loop (at
// most one topic runs at a time, matching the orchestrator's own
// single-topic model).
type Worker struct {
	id         uint32
	orchAddr   string
	listenAddr string
	listenPort uint16
	model      string
	timeout    time.Duration
	logger     core.Logger
	telemetry  core.Telemetry
	rng        *rand.Rand

	router    *routing.Router
	processor *uniqueness.Processor

	listener *wire.Listener

	mu       sync.Mutex
	topic    string
	prompt   string
	running  bool
	stopCh   chan struct{}
	clients  map[sharedtypes.ProviderID]providerapi.Client
	breakers map[sharedtypes.ProviderID]core.CircuitBreaker
}

// New creates a Worker from cfg. It does not bind anything yet; call Run.
func New(cfg Config) *Worker {
	if cfg.Logger == nil {
		cfg.Logger = &core.NoOpLogger{}
	}
	if cfg.Telemetry == nil {
		cfg.Telemetry = &core.NoOpTelemetry{}
	}
	if cfg.ProviderTimeout == 0 {
		cfg.ProviderTimeout = 30 * time.Second
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-3.5-turbo"
	}

	router := routing.New(cfg.InitialStrategy)
	router.SetAPIKeys(cfg.APIKeys)

	return &Worker{
		id:         cfg.ID,
		orchAddr:   cfg.OrchestratorAddr,
		listenAddr: fmt.Sprintf("127.0.0.1:%d", cfg.ListenPort),
		listenPort: cfg.ListenPort,
		model:      cfg.Model,
		timeout:    cfg.ProviderTimeout,
		logger:     cfg.Logger,
		telemetry:  cfg.Telemetry,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		router:     router,
		processor:  uniqueness.NewProcessor(),
		clients:    make(map[sharedtypes.ProviderID]providerapi.Client),
		breakers:   make(map[sharedtypes.ProviderID]core.CircuitBreaker),
	}
}

// Run binds the command listener, sends the readiness handshake, and blocks
// until ctx is canceled. Per §4.6, the listener must be accepting before
// Ready is sent: only then does the orchestrator know it is safe to flush
// queued commands.
func (w *Worker) Run(ctx context.Context) error {
	ln, err := wire.Listen(w.listenAddr, wire.CommandMaxFrame)
	if err != nil {
		return fmt.Errorf("worker: bind listener: %w", err)
	}
	w.listener = ln
	defer ln.Close()

	go ln.Serve(func(payload []byte) {
		var cmd wire.Command
		if err := wire.Decode(payload, &cmd); err != nil {
			w.logger.Warn("dropping undecodable command", map[string]interface{}{"error": err.Error()})
			return
		}
		w.handleCommand(ctx, cmd)
	})

	if err := w.sendReady(); err != nil {
		w.logger.Error("failed to send readiness handshake", map[string]interface{}{"error": err.Error()})
	}

	<-ctx.Done()
	w.mu.Lock()
	running := w.running
	stopCh := w.stopCh
	w.mu.Unlock()
	if running {
		close(stopCh)
	}
	return ctx.Err()
}

func (w *Worker) sendReady() error {
	return wire.SendUpdate(w.orchAddr, wire.Update{Ready: &wire.WorkerReady{WorkerID: w.id, ListenPort: w.listenPort}})
}

// clientFor lazily constructs and caches the Client for a provider.
func (w *Worker) clientFor(p sharedtypes.ProviderID) (providerapi.Client, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if c, ok := w.clients[p]; ok {
		return c, nil
	}
	c, err := providerapi.New(p, w.router.APIKey(p))
	if err != nil {
		return nil, err
	}
	w.clients[p] = c
	return c, nil
}

// breakerFor lazily constructs a per-provider circuit breaker so a provider
// that is failing consistently stops being hammered even while it is still
// reachable in PriorityFallThrough's chain; providers recover to half-open
// once SleepWindow elapses.
func (w *Worker) breakerFor(p sharedtypes.ProviderID) (core.CircuitBreaker, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if cb, ok := w.breakers[p]; ok {
		return cb, nil
	}
	cfg := resilience.DefaultConfig()
	cfg.Name = fmt.Sprintf("worker-%d-%s", w.id, p)
	cfg.Logger = w.logger
	cb, err := resilience.NewCircuitBreaker(cfg)
	if err != nil {
		return nil, err
	}
	w.breakers[p] = cb
	return cb, nil
}

func (w *Worker) sendStatus(status sharedtypes.WorkerStatus, message string) {
	var msgPtr *string
	if message != "" {
		msgPtr = &message
	}
	upd := wire.Update{StatusUpdate: &wire.StatusUpdate{WorkerID: w.id, Status: status, Message: msgPtr}}
	if err := wire.SendUpdate(w.orchAddr, upd); err != nil {
		w.logger.Warn("failed to send status update", map[string]interface{}{"error": err.Error()})
	}
}

func (w *Worker) sendError(code, message string, commandID *string) {
	upd := wire.Update{Error: &wire.WorkerError{WorkerID: w.id, ErrorCode: code, Message: message, CommandID: commandID}}
	if err := wire.SendUpdate(w.orchAddr, upd); err != nil {
		w.logger.Warn("failed to send error update", map[string]interface{}{"error": err.Error()})
	}
}
