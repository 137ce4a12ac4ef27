package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/igentai/genorch/core"
	"github.com/igentai/genorch/internal/process"
	"github.com/igentai/genorch/internal/routing"
	"github.com/igentai/genorch/internal/sharedtypes"
	"github.com/igentai/genorch/internal/worker"
	"github.com/igentai/genorch/telemetry"
)

func main() {
	var (
		id               uint32
		orchestratorAddr string
		listenPort       int
		logLevel         string
		routingConfig    string
		model            string
		traceEP          string
	)

	root := &cobra.Command{
		Use:   "worker",
		Short: "Runs a single producer process that enumerates attributes for a topic",
		RunE: func(cmd *cobra.Command, args []string) error {
			processID := process.InitWorker(id)

			cfg, err := core.NewConfig(
				core.WithRole("worker"),
				core.WithWorkerID(id),
				core.WithOrchestratorAddr(orchestratorAddr),
				core.WithListenPort(listenPort),
				core.WithRoutingConfig(routingConfig),
				core.WithModel(model),
				core.WithLogLevel(logLevel),
				core.WithTraceEndpoint(traceEP),
			)
			if err != nil {
				return fmt.Errorf("worker: load config: %w", err)
			}

			logger := cfg.Logger()
			if tagged, ok := logger.(core.ComponentAwareLogger); ok {
				logger = tagged.WithComponent(processID.String())
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("worker: invalid config: %w", err)
			}

			strategy, err := resolveRoutingStrategy(cfg.Worker.RoutingConfig)
			if err != nil {
				return fmt.Errorf("worker: routing config: %w", err)
			}

			var tel core.Telemetry = &core.NoOpTelemetry{}
			if cfg.Telemetry.Enabled {
				provider, err := telemetry.NewOTelProvider(fmt.Sprintf("worker-%d", cfg.Worker.ID), cfg.Telemetry.TraceEP)
				if err != nil {
					logger.Warn("failed to start telemetry provider, continuing without tracing", map[string]interface{}{"error": err.Error()})
				} else {
					tel = provider
					defer provider.Shutdown(context.Background())
				}
			}

			w := worker.New(worker.Config{
				ID:               cfg.Worker.ID,
				OrchestratorAddr: cfg.Worker.OrchestratorAddr,
				ListenPort:       uint16(cfg.Worker.ListenPort),
				Model:            cfg.Worker.Model,
				InitialStrategy:  strategy,
				ProviderTimeout:  cfg.Worker.ProviderTimeout,
				APIKeys: map[sharedtypes.ProviderID]string{
					sharedtypes.ProviderOpenAI:    os.Getenv("OPENAI_API_KEY"),
					sharedtypes.ProviderAnthropic: os.Getenv("ANTHROPIC_API_KEY"),
					sharedtypes.ProviderGemini:    os.Getenv("GOOGLE_API_KEY"),
				},
				Logger:    logger,
				Telemetry: tel,
			})

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if err := w.Run(ctx); err != nil && ctx.Err() == nil {
				return fmt.Errorf("worker: run: %w", err)
			}
			return nil
		},
	}

	flags := root.Flags()
	flags.Uint32Var(&id, "id", 0, "worker id assigned by the orchestrator")
	flags.StringVar(&orchestratorAddr, "orchestrator-addr", "", "host:port of the orchestrator's worker-update listener")
	flags.IntVar(&listenPort, "listen-port", 0, "port this worker listens for commands on")
	flags.StringVar(&logLevel, "log-level", "info", "trace|debug|info|warn|error")
	flags.StringVar(&routingConfig, "routing-config", "", "flat routing config string (see routing grammar)")
	flags.StringVar(&model, "model", "gpt-3.5-turbo", "model name passed to the selected provider")
	flags.StringVar(&traceEP, "trace-ep", "", "optional OpenTelemetry collector endpoint")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// resolveRoutingStrategy implements §6.2/§6.3: prefer the explicit flag,
// fall back to the ROUTING_* environment override, and default to
// Backoff{Random} when neither is present.
func resolveRoutingStrategy(flagValue string) (sharedtypes.RoutingStrategy, error) {
	if flagValue != "" {
		return routing.ParseConfigString(flagValue)
	}
	return routing.ParseEnv()
}
