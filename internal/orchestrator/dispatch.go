package orchestrator

import (
	"fmt"
	"time"

	"github.com/igentai/genorch/core"
	"github.com/igentai/genorch/internal/wire"
)

// controlPlaneRetries and controlPlaneBackoffUnit implement §7's control
// message retry policy: up to 3 retries after the initial attempt, with a
// linear backoff of 50*n ms before the nth retry.
const (
	controlPlaneRetries    = 3
	controlPlaneBackoffUnit = 50 * time.Millisecond
)

// dispatchDirect sends cmd to the worker identified by workerID if its
// address is known and it has completed its readiness handshake; otherwise
// the command is queued and flushed by onWorkerReady once it arrives.
func (o *Orchestrator) dispatchDirect(workerID uint32, cmd wire.Command) {
	o.mu.Lock()
	rec, exists := o.workers[workerID]
	var addr string
	var ready bool
	if exists {
		addr, ready = rec.Addr, rec.Ready
	}
	o.mu.Unlock()

	if !exists || !ready {
		o.mu.Lock()
		o.pending[workerID] = cmd
		o.mu.Unlock()
		return
	}

	if err := sendCommandWithRetry(addr, cmd); err != nil {
		o.logger.Error("failed to dispatch command to worker after retries", map[string]interface{}{
			"worker_id": workerID, "error": err.Error(),
		})
	}
}

// sendCommandWithRetry sends cmd to addr, retrying up to controlPlaneRetries
// times with a 50*n ms linear backoff before the nth retry.
func sendCommandWithRetry(addr string, cmd wire.Command) error {
	var lastErr error
	for attempt := 0; attempt <= controlPlaneRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * controlPlaneBackoffUnit)
		}
		if err := wire.SendCommand(addr, cmd); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("%w: %v", core.ErrMaxRetriesExceeded, lastErr)
}

// sendDashboardUpdate ships upd to the dashboard if its readiness handshake
// has completed; updates are silently dropped otherwise (the dashboard's
// own reconnection/backfill behavior is out of scope).
func (o *Orchestrator) sendDashboardUpdate(upd wire.DashboardUpdate) {
	o.mu.Lock()
	addr, ready := o.dashboardAddr, o.dashboardReady
	o.mu.Unlock()
	if !ready {
		return
	}
	if err := wire.SendDashboardUpdate(addr, upd); err != nil {
		o.logger.Warn("failed to send dashboard update", map[string]interface{}{"error": err.Error()})
	}
}
