package wire

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/igentai/genorch/core"
	"github.com/igentai/genorch/internal/sharedtypes"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("hello worker")
	if err := WriteFrame(&buf, payload); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	got, err := ReadFrame(&buf, MaxControlFrame)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("got %q, want %q", got, payload)
	}
}

func TestReadFrameOversizeDropped(t *testing.T) {
	var buf bytes.Buffer
	payload := make([]byte, 100)
	if err := WriteFrame(&buf, payload); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	_, err := ReadFrame(&buf, 10)
	if !errors.Is(err, core.ErrFrameTooLarge) {
		t.Fatalf("got %v, want ErrFrameTooLarge", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected oversize frame to be fully drained, %d bytes remain", buf.Len())
	}
}

func TestReadFrameEOF(t *testing.T) {
	var buf bytes.Buffer
	_, err := ReadFrame(&buf, MaxControlFrame)
	if err != io.EOF {
		t.Fatalf("got %v, want io.EOF", err)
	}
}

func TestCommandEncodeDecodeRoundTrip(t *testing.T) {
	cmd := Command{Start: &Start{
		CommandID:       "cmd-1",
		Topic:           "birds",
		Prompt:          "name a bird",
		RoutingStrategy: sharedtypes.Backoff(sharedtypes.ProviderOpenAI),
		GenerationConfig: sharedtypes.DefaultGenerationConfig(),
	}}

	payload, err := Encode(cmd)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var got Command
	if err := Decode(payload, &got); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Start == nil || got.Start.Topic != "birds" {
		t.Fatalf("got %+v", got)
	}
	if got.Start.RoutingStrategy.Provider != sharedtypes.ProviderOpenAI {
		t.Fatalf("routing strategy lost provider: %+v", got.Start.RoutingStrategy)
	}
}

func TestUpdateEncodeDecodeRoundTrip(t *testing.T) {
	upd := Update{Ready: &WorkerReady{WorkerID: 3, ListenPort: 9003}}
	payload, err := Encode(upd)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var got Update
	if err := Decode(payload, &got); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Ready == nil || got.Ready.WorkerID != 3 || got.Ready.ListenPort != 9003 {
		t.Fatalf("got %+v", got)
	}
}

func TestDecodeGarbageFails(t *testing.T) {
	var got Command
	err := Decode([]byte{0xff, 0xff, 0xff}, &got)
	if !errors.Is(err, core.ErrDecodeFailed) {
		t.Fatalf("got %v, want ErrDecodeFailed", err)
	}
}

func TestListenerServeAndSend(t *testing.T) {
	ln, err := Listen("127.0.0.1:0", MaxControlFrame)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	var mu sync.Mutex
	var received []Update

	go func() {
		_ = ln.Serve(func(payload []byte) {
			var upd Update
			if err := Decode(payload, &upd); err != nil {
				return
			}
			mu.Lock()
			received = append(received, upd)
			mu.Unlock()
		})
	}()

	addr := ln.Addr().String()
	if err := SendUpdate(addr, Update{Pong: &Pong{WorkerID: 1, PingID: "p1"}}); err != nil {
		t.Fatalf("SendUpdate: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(received)
		mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 || received[0].Pong == nil || received[0].Pong.PingID != "p1" {
		t.Fatalf("got %+v", received)
	}
}

func TestSendDialFailureWrapsConnectionFailed(t *testing.T) {
	// Port 1 on loopback should refuse immediately.
	err := Send("127.0.0.1:1", []byte("x"))
	if !errors.Is(err, core.ErrConnectionFailed) {
		t.Fatalf("got %v, want ErrConnectionFailed", err)
	}
}
