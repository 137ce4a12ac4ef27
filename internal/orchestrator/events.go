package orchestrator

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/igentai/genorch/internal/optimizer"
	"github.com/igentai/genorch/internal/output"
	"github.com/igentai/genorch/internal/sharedtypes"
	"github.com/igentai/genorch/internal/uniqueness"
	"github.com/igentai/genorch/internal/wire"
)

// onAttributeBatch implements §4.1's AttributeBatch case: dedup through the
// authoritative tracker, persist new values, record the metrics
// contribution, notify the dashboard, then advance the iteration counter.
func (o *Orchestrator) onAttributeBatch(b *wire.AttributeBatch) {
	o.mu.Lock()
	active := o.gen.Active
	topic := o.gen.Topic
	tracker := o.tracker
	writer := o.writer
	o.mu.Unlock()

	if !active || tracker == nil {
		return
	}

	unique := tracker.FilterUnique(b.Attributes)
	now := sharedtypes.Now()
	if writer != nil {
		for _, attr := range unique {
			writer.AppendJSONL(output.AttributeRecord{
				Attribute: attr,
				Model:     b.ProviderMetadata.Model,
				Provider:  b.ProviderMetadata.ProviderID,
				Timestamp: now,
			})
		}
	}

	o.window.RecordContribution(b.WorkerID, b.ProviderMetadata.ProviderID, uint64(len(unique)), uint64(len(b.Attributes)), b.ProviderMetadata.Tokens)

	if len(unique) > 0 {
		o.sendDashboardUpdate(wire.DashboardUpdate{NewAttributes: &wire.NewAttributes{Topic: topic, Attributes: unique}})
	}

	limitReached, reason := o.incrementIteration(tracker, writer)
	if limitReached {
		o.completeGeneration(reason)
		select {
		case o.shutdownCh <- struct{}{}:
		default:
		}
	}
}

// incrementIteration implements §4.1's per-batch iteration accounting.
// "Attempted" is deliberately sourced from the tracker's own per-iteration
// accumulator (only unique-accepted strings), the same quantity new_values
// is derived from — a quirk inherited unchanged from the original
// accounting, where every accepted batch is by definition 100% efficient
// unless it contributed no new values at all.
func (o *Orchestrator) incrementIteration(tracker *uniqueness.Tracker, writer output.Writer) (bool, sharedtypes.CompletionReason) {
	drained := tracker.DrainIteration()
	if writer != nil && len(drained) > 0 {
		writer.AppendText(drained)
	}

	currentUnique := uint64(tracker.Count())
	attempted := uint64(len(drained))

	o.mu.Lock()
	newValues := currentUnique - o.gen.PreviousUniqueCount
	var efficiency float64
	if attempted > 0 {
		efficiency = float64(newValues) / float64(attempted) * 100
	}
	var delta float64
	if n := len(o.gen.CycleHistory); n > 0 {
		delta = efficiency - o.gen.CycleHistory[n-1].Efficiency
	}
	duplicate := attempted - newValues

	now := sharedtypes.Now()
	duration := 0.0
	if !o.gen.lastIterationAt.IsZero() {
		duration = now.Sub(o.gen.lastIterationAt).Seconds()
	}
	o.gen.lastIterationAt = now
	o.gen.CurrentIteration++

	stats := output.CycleStats{
		Iteration:       o.gen.CurrentIteration,
		TotalValues:     int(currentUnique),
		NewValues:       int(newValues),
		DuplicateValues: int(duplicate),
		Efficiency:      efficiency,
		EfficiencyDelta: delta,
		Timestamp:       now,
		DurationS:       duration,
	}
	o.gen.CycleHistory = append(o.gen.CycleHistory, stats)
	o.gen.PreviousUniqueCount = currentUnique

	limit := o.gen.IterationLimit
	reached := limit > 0 && o.gen.CurrentIteration >= limit
	o.mu.Unlock()

	if reached {
		return true, sharedtypes.IterationLimitReached()
	}
	return false, sharedtypes.CompletionReason{}
}

// onStatusUpdate records a worker's reported status. A transition into
// Running that the orchestrator hasn't already issued a live Start for
// (i.e. a post-restart worker announcing itself) triggers a fresh Start
// built from current stats, healing the worker back into the active topic.
func (o *Orchestrator) onStatusUpdate(s *wire.StatusUpdate) {
	o.mu.Lock()
	rec, ok := o.workers[s.WorkerID]
	if !ok {
		o.mu.Unlock()
		return
	}
	rec.Status = s.Status
	rec.LastActivity = sharedtypes.Now()

	needsFreshStart := s.Status == sharedtypes.WorkerRunning && !rec.StartedForCurrentTopic && o.gen.Active
	if s.Status == sharedtypes.WorkerRunning {
		rec.StartedForCurrentTopic = true
	}

	topic, prompt := o.gen.Topic, o.gen.BasePrompt
	mode, override := o.gen.OptimizationMode, o.gen.RoutingOverride
	bootstrap := o.cfg.BootstrapProviders
	o.mu.Unlock()

	if !needsFreshStart {
		return
	}

	plan := optimizer.Derive(optimizer.Input{
		Stats:               o.window.Stats(),
		Mode:                mode,
		OrchestratorDefault: override,
		BasePrompt:          prompt,
		BootstrapProviders:  bootstrap,
	})
	cmd := wire.Command{Start: &wire.Start{
		CommandID:        uuid.NewString(),
		Topic:            topic,
		Prompt:           plan.Prompt,
		RoutingStrategy:  plan.RoutingStrategy,
		GenerationConfig: plan.GenerationConfig,
	}}
	o.dispatchDirect(s.WorkerID, cmd)
}

// onWorkerReady records the worker's advertised listen port and flushes any
// command the orchestrator had queued for it (normally its initial Start).
func (o *Orchestrator) onWorkerReady(r *wire.WorkerReady) {
	o.mu.Lock()
	if rec, ok := o.workers[r.WorkerID]; ok {
		rec.Addr = addrForPort(r.ListenPort)
		rec.Ready = true
		rec.LastActivity = sharedtypes.Now()
	}
	cmd, hasPending := o.pending[r.WorkerID]
	if hasPending {
		delete(o.pending, r.WorkerID)
	}
	o.mu.Unlock()

	if hasPending {
		o.dispatchDirect(r.WorkerID, cmd)
	}
}

func (o *Orchestrator) onSyncAck(a *wire.SyncAck) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if rec, ok := o.workers[a.WorkerID]; ok {
		rec.LastActivity = sharedtypes.Now()
		if a.BloomVersion != nil {
			rec.LastSyncVersion = *a.BloomVersion
		}
	}
}

func (o *Orchestrator) onPong(p *wire.Pong) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if rec, ok := o.workers[p.WorkerID]; ok {
		rec.LastActivity = sharedtypes.Now()
	}
}

func (o *Orchestrator) onWorkerError(e *wire.WorkerError) {
	o.logger.Error("worker reported error", map[string]interface{}{
		"worker_id": e.WorkerID, "code": e.ErrorCode, "message": e.Message,
	})
	o.mu.Lock()
	defer o.mu.Unlock()
	if rec, ok := o.workers[e.WorkerID]; ok {
		rec.Status = sharedtypes.WorkerFailed
		rec.LastActivity = sharedtypes.Now()
	}
}

func addrForPort(port uint16) string {
	return fmt.Sprintf("127.0.0.1:%d", port)
}
