package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/igentai/genorch/internal/sharedtypes"
	"github.com/igentai/genorch/internal/wire"
)

func newTestWorker(t *testing.T, orchAddr string) *Worker {
	t.Helper()
	return New(Config{
		ID:               1,
		OrchestratorAddr: orchAddr,
		ListenPort:       0,
		Model:            "random-stub",
		InitialStrategy:  sharedtypes.Backoff(sharedtypes.ProviderRandom),
		ProviderTimeout:  time.Second,
	})
}

func TestRunOneRequestSendsAttributeBatchOnNewValues(t *testing.T) {
	ln, err := wire.Listen("127.0.0.1:0", wire.UpdateMaxFrame)
	require.NoError(t, err)
	defer ln.Close()

	batches := make(chan wire.AttributeBatch, 10)
	go ln.Serve(func(payload []byte) {
		var upd wire.Update
		if err := wire.Decode(payload, &upd); err != nil {
			return
		}
		if upd.AttributeBatch != nil {
			batches <- *upd.AttributeBatch
		}
	})

	w := newTestWorker(t, ln.Addr().String())
	w.topic = "birds"
	w.prompt = "name a bird"

	require.NoError(t, w.runOneRequest(context.Background()))

	select {
	case b := <-batches:
		assert.Equal(t, w.id, b.WorkerID)
		assert.NotEmpty(t, b.Attributes)
		assert.Equal(t, sharedtypes.ProviderRandom, b.ProviderMetadata.ProviderID)
	case <-time.After(2 * time.Second):
		t.Fatal("expected an attribute batch update")
	}
}

func TestRunOneRequestSkipsSendWhenEverythingIsADuplicate(t *testing.T) {
	ln, err := wire.Listen("127.0.0.1:0", wire.UpdateMaxFrame)
	require.NoError(t, err)
	defer ln.Close()

	batches := make(chan wire.AttributeBatch, 10)
	go ln.Serve(func(payload []byte) {
		var upd wire.Update
		if err := wire.Decode(payload, &upd); err != nil {
			return
		}
		if upd.AttributeBatch != nil {
			batches <- *upd.AttributeBatch
		}
	})

	w := newTestWorker(t, ln.Addr().String())
	w.topic = "birds"
	w.prompt = "name a bird"

	// Pre-seed the mirror with every adjective/noun phrase the random stub
	// can possibly produce, so this run's candidates all report as already
	// seen, exercising the no-new-values branch.
	adjectives := []string{"red", "blue", "swift", "quiet", "golden", "ancient", "tiny", "bold"}
	nouns := []string{"sparrow", "river", "lantern", "comet", "meadow", "anchor", "willow", "forge"}
	var seen []string
	for _, a := range adjectives {
		for _, n := range nouns {
			seen = append(seen, a+" "+n, n+" "+a)
		}
	}
	w.processor.RebuildFromSeenValues(seen)

	require.NoError(t, w.runOneRequest(context.Background()))

	select {
	case b := <-batches:
		t.Fatalf("expected no attribute batch, got %+v", b)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestRunGenerationLoopStopsOnStopChannel(t *testing.T) {
	ln, err := wire.Listen("127.0.0.1:0", wire.UpdateMaxFrame)
	require.NoError(t, err)
	defer ln.Close()
	go ln.Serve(func(payload []byte) {})

	w := newTestWorker(t, ln.Addr().String())
	w.topic = "birds"
	w.prompt = "name a bird"

	stopCh := make(chan struct{})
	done := make(chan struct{})
	go func() {
		w.runGenerationLoop(context.Background(), stopCh)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	close(stopCh)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected runGenerationLoop to return after stopCh closes")
	}
}
