package orchestrator

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/igentai/genorch/core"
	"github.com/igentai/genorch/internal/optimizer"
	"github.com/igentai/genorch/internal/output"
	"github.com/igentai/genorch/internal/routing"
	"github.com/igentai/genorch/internal/sharedtypes"
	"github.com/igentai/genorch/internal/uniqueness"
	"github.com/igentai/genorch/internal/wire"
)

// StartGeneration begins a new topic: it resets the uniqueness tracker and
// metrics window, opens the topic's output files, and spawns workerCount
// fresh worker processes, each handed a Start command built by the
// optimizer once it reports Ready. Only one topic runs at a time; calling
// this while a topic is already active returns a state error wrapping
// core.ErrAlreadyStarted.
func (o *Orchestrator) StartGeneration(topic, prompt string, workerCount int, routingOverride sharedtypes.RoutingStrategy, constraints sharedtypes.GenerationConstraints, iterationLimit int) error {
	o.mu.Lock()
	if o.gen.Active {
		o.mu.Unlock()
		return core.NewFrameworkError("Orchestrator.StartGeneration", "state", core.ErrAlreadyStarted).WithID(topic)
	}
	if workerCount <= 0 {
		workerCount = o.cfg.DefaultWorkerCount
	}

	writer, err := output.NewFileWriter(o.cfg.OutputRoot, topic)
	if err != nil {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator: open output writer for %s: %w", topic, err)
	}

	var override *sharedtypes.RoutingStrategy
	if routingOverride.Kind != "" {
		override = &routingOverride
	} else {
		override = o.cfg.DefaultRouting
	}

	o.gen = GenerationContext{
		Active:           true,
		Topic:            topic,
		BasePrompt:       prompt,
		OptimizationMode: o.cfg.DefaultMode,
		RoutingOverride:  override,
		Constraints:      constraints,
		IterationLimit:   iterationLimit,
		WorkerCount:      workerCount,
		StartedAt:        sharedtypes.Now(),
	}
	o.writer = writer
	o.workers = make(map[uint32]*WorkerRecord)
	o.pending = make(map[uint32]wire.Command)
	o.tracker = uniqueness.New()
	o.mu.Unlock()

	o.window.Reset()

	writer.WriteMetadata(output.Metadata{
		Topic:     topic,
		CreatedAt: sharedtypes.Now(),
		Version:   "1.0",
		UpdatedAt: sharedtypes.Now(),
	})

	stats := o.window.Stats()
	plan := optimizer.Derive(optimizer.Input{
		Stats:               stats,
		Mode:                o.cfg.DefaultMode,
		OrchestratorDefault: override,
		BasePrompt:          prompt,
		BootstrapProviders:  o.cfg.BootstrapProviders,
	})

	for i := 0; i < workerCount; i++ {
		o.mu.Lock()
		id := o.nextWorkerID
		o.nextWorkerID++
		o.mu.Unlock()

		if err := o.spawnWorker(id, topic, plan); err != nil {
			o.logger.Error("failed to spawn worker", map[string]interface{}{"worker_id": id, "error": err.Error()})
		}
	}

	o.logger.Info("generation started", map[string]interface{}{"topic": topic, "workers": workerCount})
	return nil
}

// StopGeneration halts the active topic: every worker is killed, final
// performance snapshots are written, and a GenerationComplete update is sent
// to the dashboard. Calling this with no active topic is a no-op.
func (o *Orchestrator) StopGeneration(reason sharedtypes.CompletionReason) {
	o.mu.Lock()
	if !o.gen.Active {
		o.mu.Unlock()
		return
	}
	records := make([]*WorkerRecord, 0, len(o.workers))
	for _, rec := range o.workers {
		records = append(records, rec)
	}
	o.mu.Unlock()

	for _, rec := range records {
		if rec.Handle != nil {
			o.supervisor.Kill(rec.Handle)
		}
	}

	o.completeGeneration(reason)
}

func (o *Orchestrator) completeGeneration(reason sharedtypes.CompletionReason) {
	o.mu.Lock()
	topic := o.gen.Topic
	history := append([]output.CycleStats(nil), o.gen.CycleHistory...)
	writer := o.writer
	o.gen.Active = false
	o.mu.Unlock()

	total := o.tracker.Count()

	if writer != nil {
		writer.WriteCyclePerformance(output.CyclePerformance{
			Topic:       topic,
			TotalCycles: len(history),
			Cycles:      history,
			Summary: map[string]interface{}{
				"final_unique_count": total,
				"total_iterations":   len(history),
				"reason":             reason.Kind,
			},
		})
		writer.WriteProviderPerformance(o.providerPerformanceSnapshot())
		writer.WriteMetadata(output.Metadata{Topic: topic, Version: "1.0", TotalAttributes: total, UpdatedAt: sharedtypes.Now()})
	}

	o.sendDashboardUpdate(wire.DashboardUpdate{GenerationComplete: &wire.GenerationComplete{Topic: topic, Reason: reason}})
	o.logger.Info("generation complete", map[string]interface{}{"topic": topic, "reason": reason.Kind, "total_unique": total})
}

func (o *Orchestrator) providerPerformanceSnapshot() []output.ProviderPerformance {
	stats := o.window.Stats()
	out := make([]output.ProviderPerformance, 0, len(stats.ByProvider))
	for id, dm := range stats.ByProvider {
		out = append(out, output.ProviderPerformance{
			Provider: id,
			UAM:      dm.UAM,
			CostUSD:  dm.CostPerMinute,
		})
	}
	return out
}

// spawnWorker allocates a listen port, spawns the worker binary with the
// flags described in §6.1, and registers a WorkerRecord pending its Ready
// handshake. The Start command itself is queued, not sent yet: it is
// flushed by onWorkerReady once the worker's own listener is confirmed up.
func (o *Orchestrator) spawnWorker(id uint32, topic string, plan optimizer.Plan) error {
	port := o.ports.Next()
	args := []string{
		"--id", fmt.Sprintf("%d", id),
		"--orchestrator-addr", o.cfg.WorkerUpdateAddr,
		"--listen-port", fmt.Sprintf("%d", port),
		"--routing-config", routing.FormatConfigString(plan.RoutingStrategy),
		"--model", plan.GenerationConfig.Model,
	}

	handle, err := o.supervisor.Spawn(o.cfg.WorkerBinaryPath, args, nil)
	if err != nil {
		return err
	}

	rec := &WorkerRecord{ID: id, Handle: handle, Status: sharedtypes.WorkerStarting, LastActivity: sharedtypes.Now()}

	o.mu.Lock()
	o.workers[id] = rec
	o.pending[id] = wire.Command{Start: &wire.Start{
		CommandID:        uuid.NewString(),
		Topic:            topic,
		Prompt:           plan.Prompt,
		RoutingStrategy:  plan.RoutingStrategy,
		GenerationConfig: plan.GenerationConfig,
	}}
	o.mu.Unlock()

	o.logger.Info("spawned worker", map[string]interface{}{"worker_id": id, "listen_port": port})
	return nil
}

func (o *Orchestrator) spawnDashboard() error {
	args := []string{
		"--orchestrator-addr", o.cfg.DashboardListenAddr,
		"--port", fmt.Sprintf("%d", o.cfg.DashboardHTTPPort),
	}
	handle, err := o.supervisor.Spawn(o.cfg.DashboardBinaryPath, args, nil)
	if err != nil {
		return err
	}
	o.mu.Lock()
	o.dashboardHandle = handle
	o.dashboardReady = false
	o.mu.Unlock()
	return nil
}
