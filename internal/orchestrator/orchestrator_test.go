package orchestrator

import (
	"sync"
	"testing"
	"time"

	"github.com/igentai/genorch/internal/procsup"
	"github.com/igentai/genorch/internal/sharedtypes"
	"github.com/igentai/genorch/internal/wire"
)

// fakeSupervisor never actually spawns an OS process; it hands out handles
// keyed by a counter and reports whatever status the test pre-seeds.
type fakeSupervisor struct {
	mu       sync.Mutex
	spawned  int
	statuses map[string]procsup.Status
}

func newFakeSupervisor() *fakeSupervisor {
	return &fakeSupervisor{statuses: make(map[string]procsup.Status)}
}

func (f *fakeSupervisor) Spawn(path string, args []string, env []string) (*procsup.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spawned++
	id := path
	f.statuses[id] = procsup.StatusRunning
	return &procsup.Handle{ID: id}, nil
}

func (f *fakeSupervisor) Status(h *procsup.Handle) procsup.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statuses[h.ID]
}

func (f *fakeSupervisor) Kill(h *procsup.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[h.ID] = procsup.StatusExited
	return nil
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *fakeSupervisor) {
	t.Helper()
	sup := newFakeSupervisor()
	o := New(Config{
		DashboardListenAddr: "127.0.0.1:0",
		WorkerUpdateAddr:    "127.0.0.1:0",
		OutputRoot:          t.TempDir(),
		WorkerBinaryPath:    "worker-binary",
		DefaultWorkerCount:  1,
		BootstrapProviders:  []sharedtypes.ProviderID{sharedtypes.ProviderRandom},
		Supervisor:          sup,
	})
	if err := o.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	t.Cleanup(func() {
		o.dashboardListener.Close()
		o.updateListener.Close()
	})
	return o, sup
}

func TestStartGenerationSpawnsConfiguredWorkerCount(t *testing.T) {
	o, sup := newTestOrchestrator(t)

	if err := o.StartGeneration("birds", "name a bird", 3, sharedtypes.RoutingStrategy{}, sharedtypes.GenerationConstraints{}, 0); err != nil {
		t.Fatalf("StartGeneration: %v", err)
	}

	if sup.spawned != 3 {
		t.Fatalf("got %d spawns, want 3", sup.spawned)
	}
	o.mu.Lock()
	n := len(o.workers)
	active := o.gen.Active
	o.mu.Unlock()
	if n != 3 || !active {
		t.Fatalf("got %d workers, active=%v", n, active)
	}
}

func TestStartGenerationRejectsSecondTopicWhileActive(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	if err := o.StartGeneration("birds", "p", 1, sharedtypes.RoutingStrategy{}, sharedtypes.GenerationConstraints{}, 0); err != nil {
		t.Fatalf("StartGeneration: %v", err)
	}
	if err := o.StartGeneration("dogs", "p", 1, sharedtypes.RoutingStrategy{}, sharedtypes.GenerationConstraints{}, 0); err == nil {
		t.Fatal("expected an error starting a second topic while one is active")
	}
}

func TestAttributeBatchDedupsAndAdvancesIteration(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	if err := o.StartGeneration("birds", "p", 1, sharedtypes.RoutingStrategy{}, sharedtypes.GenerationConstraints{}, 0); err != nil {
		t.Fatalf("StartGeneration: %v", err)
	}

	var workerID uint32
	o.mu.Lock()
	for id := range o.workers {
		workerID = id
	}
	o.mu.Unlock()

	o.onAttributeBatch(&wire.AttributeBatch{
		WorkerID:         workerID,
		BatchID:          "b1",
		Attributes:       []string{"sparrow", "robin", "sparrow"},
		ProviderMetadata: sharedtypes.ProviderMetadata{ProviderID: sharedtypes.ProviderRandom, Model: "random-stub"},
	})

	if got := o.tracker.Count(); got != 2 {
		t.Fatalf("got %d unique attributes, want 2", got)
	}

	o.mu.Lock()
	iterations := len(o.gen.CycleHistory)
	last := o.gen.CycleHistory[len(o.gen.CycleHistory)-1]
	o.mu.Unlock()

	if iterations != 1 {
		t.Fatalf("got %d iterations, want 1", iterations)
	}
	if last.NewValues != 2 || last.DuplicateValues != 0 {
		t.Fatalf("got %+v, want 2 new values and 0 duplicates (batch-level duplicates never reach the accumulator)", last)
	}
	if last.Efficiency != 100 {
		t.Fatalf("got efficiency %v, want 100 (attempted is sourced from the unique-only accumulator)", last.Efficiency)
	}
}

func TestIterationLimitStopsGenerationAndTripsShutdown(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	if err := o.StartGeneration("birds", "p", 1, sharedtypes.RoutingStrategy{}, sharedtypes.GenerationConstraints{}, 1); err != nil {
		t.Fatalf("StartGeneration: %v", err)
	}

	var workerID uint32
	o.mu.Lock()
	for id := range o.workers {
		workerID = id
	}
	o.mu.Unlock()

	o.onAttributeBatch(&wire.AttributeBatch{
		WorkerID:         workerID,
		BatchID:          "b1",
		Attributes:       []string{"sparrow"},
		ProviderMetadata: sharedtypes.ProviderMetadata{ProviderID: sharedtypes.ProviderRandom, Model: "random-stub"},
	})

	o.mu.Lock()
	active := o.gen.Active
	o.mu.Unlock()
	if active {
		t.Fatal("expected generation to be complete after reaching the iteration limit")
	}

	select {
	case <-o.shutdownCh:
	case <-time.After(time.Second):
		t.Fatal("expected the shutdown channel to be tripped")
	}
}

func TestHealthTickRestartsFailedWorker(t *testing.T) {
	o, sup := newTestOrchestrator(t)
	if err := o.StartGeneration("birds", "p", 1, sharedtypes.RoutingStrategy{}, sharedtypes.GenerationConstraints{}, 0); err != nil {
		t.Fatalf("StartGeneration: %v", err)
	}

	var oldID uint32
	o.mu.Lock()
	for id := range o.workers {
		oldID = id
	}
	o.mu.Unlock()

	sup.mu.Lock()
	sup.statuses["worker-binary"] = procsup.StatusFailed
	sup.mu.Unlock()

	o.onHealthTick()

	o.mu.Lock()
	defer o.mu.Unlock()
	rec, ok := o.workers[oldID]
	if !ok {
		t.Fatal("expected a fresh record for the restarted worker's id")
	}
	if rec.Status != sharedtypes.WorkerStarting {
		t.Fatalf("got status %v, want a freshly-spawned worker to be Starting", rec.Status)
	}
	if len(o.workers) != 1 {
		t.Fatalf("got %d workers after restart, want 1", len(o.workers))
	}
}
