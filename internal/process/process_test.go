package process

import "testing"

func TestWorkerIDString(t *testing.T) {
	resetForTest()
	id := InitWorker(3)
	if got, want := id.String(), "Worker(3)"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
	if n, ok := id.IsWorker(); !ok || n != 3 {
		t.Fatalf("IsWorker() = (%d, %v), want (3, true)", n, ok)
	}
}

func TestOrchestratorString(t *testing.T) {
	resetForTest()
	id := InitOrchestrator()
	if got, want := id.String(), "Orchestrator"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
	if _, ok := id.IsWorker(); ok {
		t.Fatalf("IsWorker() = true for Orchestrator id")
	}
}

func TestCurrentPanicsBeforeInit(t *testing.T) {
	resetForTest()
	defer func() {
		if recover() == nil {
			t.Fatal("expected Current() to panic before Init*")
		}
	}()
	Current()
}

func TestInitTwicePanics(t *testing.T) {
	resetForTest()
	InitOrchestrator()
	defer func() {
		if recover() == nil {
			t.Fatal("expected second Init* to panic")
		}
	}()
	InitWebServer()
}
