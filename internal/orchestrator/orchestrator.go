package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/igentai/genorch/core"
	"github.com/igentai/genorch/internal/metrics"
	"github.com/igentai/genorch/internal/optimizer"
	"github.com/igentai/genorch/internal/output"
	"github.com/igentai/genorch/internal/procsup"
	"github.com/igentai/genorch/internal/sharedtypes"
	"github.com/igentai/genorch/internal/uniqueness"
	"github.com/igentai/genorch/internal/wire"
)

// Config bundles everything Initialize needs to wire the orchestrator's
// listeners and child-process spawning.
type Config struct {
	DashboardListenAddr string // orchestrator's own address, for dashboard -> orchestrator requests
	WorkerUpdateAddr    string // orchestrator's own address, for worker -> orchestrator updates
	WorkerBasePort      int

	OutputRoot         string
	WorkerBinaryPath   string
	DashboardBinaryPath string
	DashboardHTTPPort  int

	DefaultWorkerCount int
	BootstrapProviders []sharedtypes.ProviderID
	DefaultMode        sharedtypes.OptimizationMode
	DefaultRouting     *sharedtypes.RoutingStrategy

	MetricsTick time.Duration
	HealthTick  time.Duration

	Logger     core.Logger
	Supervisor procsup.Supervisor
}

// Orchestrator is the single-goroutine state machine described in §4.1.
// Every field it mutates in response to worker updates, dashboard requests,
// or timer ticks is touched only from Run's select loop or under mu; the
// two are never mixed for the same field.
type Orchestrator struct {
	cfg        Config
	logger     core.Logger
	supervisor procsup.Supervisor
	ports      *procsup.PortAllocator

	tracker *uniqueness.Tracker
	window  *metrics.Window

	dashboardListener *wire.Listener
	updateListener    *wire.Listener

	workerUpdateCh   chan wire.Update
	dashboardReqCh   chan wire.DashboardRequest
	shutdownCh       chan struct{}

	mu              sync.Mutex
	workers         map[uint32]*WorkerRecord
	nextWorkerID    uint32
	pending         map[uint32]wire.Command
	gen             GenerationContext
	writer          output.Writer
	dashboardHandle *procsup.Handle
	dashboardAddr   string
	dashboardReady  bool
}

// New creates an Orchestrator from cfg, filling in defaults for anything
// left zero.
func New(cfg Config) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = &core.NoOpLogger{}
	}
	if cfg.Supervisor == nil {
		cfg.Supervisor = procsup.NewOSSupervisor(cfg.Logger)
	}
	if cfg.WorkerBasePort == 0 {
		cfg.WorkerBasePort = 9000
	}
	if cfg.MetricsTick == 0 {
		cfg.MetricsTick = 3 * time.Second
	}
	if cfg.HealthTick == 0 {
		cfg.HealthTick = 10 * time.Second
	}
	if cfg.DefaultWorkerCount == 0 {
		cfg.DefaultWorkerCount = 1
	}
	if cfg.DefaultMode == "" {
		cfg.DefaultMode = sharedtypes.ModeMaximizeUAM
	}

	return &Orchestrator{
		cfg:            cfg,
		logger:         cfg.Logger,
		supervisor:     cfg.Supervisor,
		ports:          procsup.NewPortAllocator(cfg.WorkerBasePort),
		tracker:        uniqueness.New(),
		window:         metrics.New(),
		workerUpdateCh: make(chan wire.Update, 1000),
		dashboardReqCh: make(chan wire.DashboardRequest, 100),
		shutdownCh:     make(chan struct{}, 1),
		workers:        make(map[uint32]*WorkerRecord),
		nextWorkerID:   1,
		pending:        make(map[uint32]wire.Command),
	}
}

// Initialize binds the dashboard-request and worker-update listeners and
// spawns the dashboard process. It must complete before Run is called.
func (o *Orchestrator) Initialize() error {
	dl, err := wire.Listen(o.cfg.DashboardListenAddr, wire.MaxControlFrame)
	if err != nil {
		return fmt.Errorf("orchestrator: bind dashboard listener: %w", err)
	}
	ul, err := wire.Listen(o.cfg.WorkerUpdateAddr, wire.UpdateMaxFrame)
	if err != nil {
		dl.Close()
		return fmt.Errorf("orchestrator: bind worker-update listener: %w", err)
	}

	o.dashboardListener = dl
	o.updateListener = ul

	go dl.Serve(func(payload []byte) {
		var req wire.DashboardRequest
		if err := wire.Decode(payload, &req); err != nil {
			o.logger.Warn("dropping undecodable dashboard request", map[string]interface{}{"error": err.Error()})
			return
		}
		o.dashboardReqCh <- req
	})
	go ul.Serve(func(payload []byte) {
		var upd wire.Update
		if err := wire.Decode(payload, &upd); err != nil {
			o.logger.Warn("dropping undecodable worker update", map[string]interface{}{"error": err.Error()})
			return
		}
		o.workerUpdateCh <- upd
	})

	if o.cfg.DashboardBinaryPath != "" {
		if err := o.spawnDashboard(); err != nil {
			return fmt.Errorf("orchestrator: spawn dashboard: %w", err)
		}
	}

	o.logger.Info("orchestrator initialized", map[string]interface{}{
		"dashboard_addr": o.cfg.DashboardListenAddr,
		"worker_addr":    o.cfg.WorkerUpdateAddr,
	})
	return nil
}

// Run drives the event loop until ctx is canceled or a shutdown is
// requested. It multiplexes worker updates, dashboard requests, the metrics
// tick, and the health tick, per §4.1.
func (o *Orchestrator) Run(ctx context.Context) error {
	metricsTicker := time.NewTicker(o.cfg.MetricsTick)
	healthTicker := time.NewTicker(o.cfg.HealthTick)
	defer metricsTicker.Stop()
	defer healthTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.shutdown()
			return ctx.Err()

		case <-o.shutdownCh:
			o.shutdown()
			return nil

		case upd := <-o.workerUpdateCh:
			o.handleWorkerUpdate(upd)

		case req := <-o.dashboardReqCh:
			o.handleDashboardRequest(req)

		case <-metricsTicker.C:
			o.onMetricsTick()

		case <-healthTicker.C:
			o.onHealthTick()
		}
	}
}

func (o *Orchestrator) handleWorkerUpdate(upd wire.Update) {
	switch {
	case upd.AttributeBatch != nil:
		o.onAttributeBatch(upd.AttributeBatch)
	case upd.StatusUpdate != nil:
		o.onStatusUpdate(upd.StatusUpdate)
	case upd.Ready != nil:
		o.onWorkerReady(upd.Ready)
	case upd.SyncAck != nil:
		o.onSyncAck(upd.SyncAck)
	case upd.Pong != nil:
		o.onPong(upd.Pong)
	case upd.Error != nil:
		o.onWorkerError(upd.Error)
	}
}

func (o *Orchestrator) handleDashboardRequest(req wire.DashboardRequest) {
	switch {
	case req.StartGeneration != nil:
		r := req.StartGeneration
		err := o.StartGeneration(r.Topic, r.Prompt, o.cfg.DefaultWorkerCount, r.RoutingStrategy, r.Constraints, 0)
		o.sendDashboardUpdate(wire.DashboardUpdate{RequestAck: &wire.RequestAck{Accepted: err == nil, Reason: errString(err)}})

	case req.StopGeneration != nil:
		o.StopGeneration(sharedtypes.ManualStop())
		o.sendDashboardUpdate(wire.DashboardUpdate{RequestAck: &wire.RequestAck{Accepted: true}})

	case req.GetStatus != nil:
		o.mu.Lock()
		topic := o.gen.Topic
		o.mu.Unlock()
		o.sendDashboardUpdate(wire.DashboardUpdate{StatisticsUpdate: &wire.StatisticsUpdate{Topic: topic, Stats: statsToMap(o.window.Stats())}})

	case req.UpdateConfig != nil:
		o.applyConfigUpdate(req.UpdateConfig)
		o.sendDashboardUpdate(wire.DashboardUpdate{RequestAck: &wire.RequestAck{Accepted: true}})

	case req.Ready != nil:
		o.mu.Lock()
		o.dashboardReady = true
		o.dashboardAddr = fmt.Sprintf("127.0.0.1:%d", req.Ready.ListenPort)
		o.mu.Unlock()
		o.logger.Info("dashboard ready", map[string]interface{}{"listen_port": req.Ready.ListenPort, "http_port": req.Ready.HTTPPort})
	}
}

func (o *Orchestrator) applyConfigUpdate(upd *wire.DashboardUpdateConfig) {
	o.mu.Lock()
	if upd.RoutingStrategy != nil {
		o.gen.RoutingOverride = upd.RoutingStrategy
	}
	ids := make([]uint32, 0, len(o.workers))
	for id, rec := range o.workers {
		if rec.Ready {
			ids = append(ids, id)
		}
	}
	o.mu.Unlock()

	cmd := wire.Command{UpdateConfig: &wire.UpdateConfig{
		CommandID:        uuid.NewString(),
		RoutingStrategy:  upd.RoutingStrategy,
		GenerationConfig: upd.GenerationConfig,
	}}
	for _, id := range ids {
		o.dispatchDirect(id, cmd)
	}
}

// onMetricsTick ships a StatisticsUpdate built from the window's most
// recently computed stats, but only while a topic is active and at least one
// worker is running; an idle orchestrator has nothing useful to report. It
// does not itself recompute the stats: the window recomputes them only when
// a contribution is recorded.
func (o *Orchestrator) onMetricsTick() {
	o.mu.Lock()
	active := o.gen.Active
	topic := o.gen.Topic
	running := o.anyWorkerRunningLocked()
	o.mu.Unlock()

	if !active || !running {
		return
	}
	o.sendDashboardUpdate(wire.DashboardUpdate{StatisticsUpdate: &wire.StatisticsUpdate{Topic: topic, Stats: statsToMap(o.window.Stats())}})
}

func (o *Orchestrator) anyWorkerRunningLocked() bool {
	for _, rec := range o.workers {
		if rec.Status == sharedtypes.WorkerRunning {
			return true
		}
	}
	return false
}

// onHealthTick polls every worker and the dashboard, restarting anything
// that is no longer running, per §5.
func (o *Orchestrator) onHealthTick() {
	o.mu.Lock()
	records := make([]*WorkerRecord, 0, len(o.workers))
	for _, rec := range o.workers {
		records = append(records, rec)
	}
	dashHandle := o.dashboardHandle
	active := o.gen.Active
	topic := o.gen.Topic
	o.mu.Unlock()

	failed := 0
	for _, rec := range records {
		if rec.Handle == nil {
			continue
		}
		if o.supervisor.Status(rec.Handle) != procsup.StatusRunning {
			failed++
			o.restartWorker(rec)
		}
	}
	if failed > 0 && active {
		o.sendDashboardUpdate(wire.DashboardUpdate{ErrorNotification: &wire.ErrorNotification{
			Topic:   topic,
			Message: fmt.Sprintf("%d producer(s) failed and were restarted", failed),
		}})
	}

	if dashHandle != nil && o.supervisor.Status(dashHandle) != procsup.StatusRunning {
		o.logger.Warn("dashboard process is down, restarting", nil)
		if err := o.spawnDashboard(); err != nil {
			o.logger.Error("failed to restart dashboard", map[string]interface{}{"error": err.Error()})
		}
	}
}

func (o *Orchestrator) restartWorker(old *WorkerRecord) {
	o.mu.Lock()
	topic, prompt := o.gen.Topic, o.gen.BasePrompt
	mode := o.gen.OptimizationMode
	override := o.gen.RoutingOverride
	bootstrap := o.cfg.BootstrapProviders
	active := o.gen.Active
	delete(o.workers, old.ID)
	o.mu.Unlock()

	if !active {
		return
	}

	plan := optimizer.Derive(optimizer.Input{
		Stats:               o.window.Stats(),
		Mode:                mode,
		OrchestratorDefault: override,
		BasePrompt:          prompt,
		BootstrapProviders:  bootstrap,
	})

	if err := o.spawnWorker(old.ID, topic, plan); err != nil {
		o.logger.Error("failed to restart worker", map[string]interface{}{"worker_id": old.ID, "error": err.Error()})
	}
}

// shutdown kills every child process and closes every listener and file. It
// is invoked exactly once, from Run's own goroutine.
func (o *Orchestrator) shutdown() {
	o.mu.Lock()
	handles := make([]*procsup.Handle, 0, len(o.workers)+1)
	for _, rec := range o.workers {
		if rec.Handle != nil {
			handles = append(handles, rec.Handle)
		}
	}
	if o.dashboardHandle != nil {
		handles = append(handles, o.dashboardHandle)
	}
	writer := o.writer
	o.mu.Unlock()

	for _, h := range handles {
		if err := o.supervisor.Kill(h); err != nil {
			o.logger.Warn("child process did not exit cleanly", map[string]interface{}{"id": h.ID, "error": err.Error()})
		}
	}
	if o.dashboardListener != nil {
		o.dashboardListener.Close()
	}
	if o.updateListener != nil {
		o.updateListener.Close()
	}
	if writer != nil {
		writer.Close()
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// statsToMap converts PerformanceStats to the loosely-typed payload the
// wire's StatisticsUpdate and DashboardUpdate messages carry, via a JSON
// round trip: the dashboard's own decoding is out of scope, so the wire
// contract deliberately stays untyped on this side of the boundary.
func statsToMap(stats metrics.PerformanceStats) map[string]interface{} {
	data, err := json.Marshal(stats)
	if err != nil {
		return map[string]interface{}{}
	}
	out := make(map[string]interface{})
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]interface{}{}
	}
	return out
}
