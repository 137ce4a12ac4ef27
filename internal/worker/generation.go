package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/igentai/genorch/internal/providerapi"
	"github.com/igentai/genorch/internal/sharedtypes"
	"github.com/igentai/genorch/internal/wire"
)

// runGenerationLoop implements §4.3's make_provider_request composition:
// pick a provider (honoring PriorityOrder's fall-through-on-failure), call
// it with the request-plane retry wrapper, run the raw content through the
// local dedup mirror, and ship whatever is new back to the orchestrator.
// One request in flight at a time, back to back, until Stop fires.
func (w *Worker) runGenerationLoop(ctx context.Context, stopCh chan struct{}) {
	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		if err := w.runOneRequest(ctx); err != nil {
			w.logger.Warn("generation request failed", map[string]interface{}{"error": err.Error()})
		}

		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (w *Worker) runOneRequest(ctx context.Context) error {
	providers, err := w.router.PriorityFallThrough()
	if err != nil {
		return fmt.Errorf("select provider: %w", err)
	}

	w.mu.Lock()
	topic, prompt := w.topic, w.prompt
	w.mu.Unlock()

	var lastErr error
	for _, provider := range providers {
		client, err := w.clientFor(provider)
		if err != nil {
			lastErr = err
			continue
		}
		breaker, err := w.breakerFor(provider)
		if err != nil {
			lastErr = err
			continue
		}
		if !breaker.CanExecute() {
			lastErr = fmt.Errorf("%s: circuit open", provider)
			continue
		}

		spanCtx, span := w.telemetry.StartSpan(ctx, "provider.generate")
		span.SetAttribute("provider", string(provider))

		var resp providerapi.Response
		var latency time.Duration
		execErr := breaker.Execute(spanCtx, func() error {
			reqCtx, cancel := context.WithTimeout(spanCtx, w.timeout)
			defer cancel()
			start := time.Now()
			var genErr error
			resp, genErr = providerapi.GenerateWithRetry(reqCtx, client, provider, w.router.RequestConfig(provider).Model, composePrompt(prompt, topic), w.rng)
			latency = time.Since(start)
			return genErr
		})

		if execErr != nil {
			span.RecordError(execErr)
		}
		span.End()
		w.telemetry.RecordMetric("provider.request.latency_ms", float64(latency.Milliseconds()), map[string]string{"provider": string(provider)})

		w.router.RecordRequest(provider, execErr == nil, latency)

		if execErr != nil {
			lastErr = execErr
			if errors.Is(execErr, context.Canceled) || errors.Is(execErr, context.DeadlineExceeded) {
				return execErr
			}
			continue
		}

		w.handleResponse(provider, resp)
		return nil
	}

	return fmt.Errorf("all providers in fall-through chain failed: %w", lastErr)
}

func composePrompt(basePrompt, topic string) string {
	return basePrompt + "\n\nTopic: " + topic
}

func (w *Worker) handleResponse(provider sharedtypes.ProviderID, resp providerapi.Response) {
	stats := w.processor.ProcessResponse(provider, resp.Content)
	if len(stats.NewValues) == 0 {
		return
	}

	batch := wire.Update{AttributeBatch: &wire.AttributeBatch{
		WorkerID:   w.id,
		BatchID:    uuid.NewString(),
		Attributes: stats.NewValues,
		ProviderMetadata: sharedtypes.ProviderMetadata{
			ProviderID:       provider,
			Model:            resp.ModelUsed,
			ResponseTimeMS:   uint64(resp.ResponseTime.Milliseconds()),
			Tokens:           resp.Tokens,
			RequestTimestamp: sharedtypes.Now().Unix(),
		},
	}}

	if err := wire.SendUpdate(w.orchAddr, batch); err != nil {
		w.logger.Warn("failed to send attribute batch", map[string]interface{}{"error": err.Error()})
	}
}
