// Package orchestrator implements the event loop described in §4.1: it owns
// the authoritative uniqueness tracker, the rolling metrics window, and the
// process-manager collaborator that spawns and supervises producer workers
// and the dashboard, multiplexing worker updates, dashboard requests, and
// two timer ticks onto a single goroutine.
package orchestrator

import (
	"time"

	"github.com/igentai/genorch/internal/output"
	"github.com/igentai/genorch/internal/procsup"
	"github.com/igentai/genorch/internal/sharedtypes"
)

// WorkerRecord is everything the orchestrator tracks about one spawned
// worker process.
type WorkerRecord struct {
	ID              uint32
	Handle          *procsup.Handle
	Addr            string // 127.0.0.1:<listen_port>, set once Ready arrives
	Ready           bool
	Status          sharedtypes.WorkerStatus
	LastActivity    time.Time
	LastSyncVersion uint64

	// StartedForCurrentTopic is set by the first StatusUpdate{Running} the
	// worker reports for the active topic. onStatusUpdate sends a fresh
	// Start only when that update arrives while the flag is still unset.
	StartedForCurrentTopic bool
}

// GenerationContext holds the state of the single active topic. The
// orchestrator runs at most one topic at a time; StartGeneration resets
// this wholesale, per §4.1's "reset uniqueness tracker and metrics window on
// topic transition" rule.
type GenerationContext struct {
	Active bool

	Topic            string
	BasePrompt       string
	OptimizationMode sharedtypes.OptimizationMode
	RoutingOverride  *sharedtypes.RoutingStrategy
	Constraints      sharedtypes.GenerationConstraints
	IterationLimit   int

	WorkerCount int

	CurrentIteration    int
	PreviousUniqueCount uint64
	CycleHistory        []output.CycleStats
	lastIterationAt     time.Time

	StartedAt time.Time
}
