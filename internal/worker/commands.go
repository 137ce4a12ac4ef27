package worker

import (
	"context"

	"github.com/igentai/genorch/internal/sharedtypes"
	"github.com/igentai/genorch/internal/wire"
)

// handleCommand implements the worker's side of §4.6's command catalog.
func (w *Worker) handleCommand(ctx context.Context, cmd wire.Command) {
	switch {
	case cmd.Start != nil:
		w.onStart(ctx, cmd.Start)
	case cmd.Stop != nil:
		w.onStop()
	case cmd.UpdateConfig != nil:
		w.onUpdateConfig(cmd.UpdateConfig)
	case cmd.SyncCheck != nil:
		w.onSyncCheck(cmd.SyncCheck)
	case cmd.Ping != nil:
		w.onPing(cmd.Ping)
	}
}

func (w *Worker) onStart(ctx context.Context, start *wire.Start) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.topic = start.Topic
	w.prompt = start.Prompt
	w.running = true
	w.stopCh = make(chan struct{})
	stopCh := w.stopCh
	w.mu.Unlock()

	w.router.SetStrategy(start.RoutingStrategy)
	w.router.SetPrompt(start.Prompt)
	w.router.SetGenerationConfig(start.GenerationConfig)

	w.sendStatus(sharedtypes.WorkerRunning, "")
	go w.runGenerationLoop(ctx, stopCh)
}

func (w *Worker) onStop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	w.mu.Unlock()

	w.sendStatus(sharedtypes.WorkerStopped, "")
}

func (w *Worker) onUpdateConfig(upd *wire.UpdateConfig) {
	if upd.RoutingStrategy != nil {
		w.router.SetStrategy(*upd.RoutingStrategy)
	}
	if upd.GenerationConfig != nil {
		w.router.SetGenerationConfig(*upd.GenerationConfig)
	}
	if upd.Prompt != nil {
		w.router.SetPrompt(*upd.Prompt)
		w.mu.Lock()
		w.prompt = *upd.Prompt
		w.mu.Unlock()
	}
}

func (w *Worker) onSyncCheck(sync *wire.SyncCheck) {
	status := "ok"
	if len(sync.BloomFilter) > 0 && sync.BloomVersion != nil {
		if err := w.processor.ApplyBloomBytes(sync.BloomFilter, *sync.BloomVersion); err != nil {
			w.logger.Warn("sync bloom bytes failed to deserialize, rebuilding from seen_values", map[string]interface{}{"error": err.Error()})
			w.processor.RebuildFromSeenValues(sync.SeenValues)
			status = "rebuilt"
		}
	} else if len(sync.SeenValues) > 0 {
		w.processor.RebuildFromSeenValues(sync.SeenValues)
		status = "rebuilt"
	}

	ack := wire.Update{SyncAck: &wire.SyncAck{WorkerID: w.id, SyncID: sync.SyncID, BloomVersion: sync.BloomVersion, Status: status}}
	if err := wire.SendUpdate(w.orchAddr, ack); err != nil {
		w.logger.Warn("failed to send sync ack", map[string]interface{}{"error": err.Error()})
	}
}

func (w *Worker) onPing(ping *wire.Ping) {
	pong := wire.Update{Pong: &wire.Pong{WorkerID: w.id, PingID: ping.PingID}}
	if err := wire.SendUpdate(w.orchAddr, pong); err != nil {
		w.logger.Warn("failed to send pong", map[string]interface{}{"error": err.Error()})
	}
}
