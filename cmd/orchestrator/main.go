package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/igentai/genorch/core"
	"github.com/igentai/genorch/internal/orchestrator"
	"github.com/igentai/genorch/internal/process"
	"github.com/igentai/genorch/internal/procsup"
	"github.com/igentai/genorch/internal/routing"
	"github.com/igentai/genorch/internal/sharedtypes"
)

func main() {
	var (
		configFile       string
		dashboardAddr    string
		workerAddr       string
		workerBasePort   int
		outputRoot       string
		workerBinary     string
		dashboardBinary  string
		dashboardHTTP    int
		workerCount      int
		iterationLimit   int
		optimizationMode string
		routingOverride  string
		logLevel         string
		topic            string
		prompt           string
	)

	root := &cobra.Command{
		Use:   "orchestrator",
		Short: "Supervises producer workers and the optional dashboard for one topic run",
		RunE: func(cmd *cobra.Command, args []string) error {
			processID := process.InitOrchestrator()

			opts := []core.Option{
				core.WithRole("orchestrator"),
				core.WithConfigFile(configFile),
				core.WithIterationLimit(iterationLimit),
				core.WithLogLevel(logLevel),
			}
			if dashboardAddr != "" {
				opts = append(opts, core.WithDashboardAddr(dashboardAddr))
			}
			if workerAddr != "" {
				opts = append(opts, core.WithWorkerAddr(workerAddr))
			}
			if outputRoot != "" {
				opts = append(opts, core.WithOutputRoot(outputRoot))
			}
			if workerBinary != "" {
				opts = append(opts, core.WithWorkerBinaryPath(workerBinary))
			}
			if dashboardBinary != "" {
				opts = append(opts, core.WithDashboardBinaryPath(dashboardBinary))
			}
			if workerCount > 0 {
				opts = append(opts, core.WithDefaultWorkerCount(workerCount))
			}
			cfg, err := core.NewConfig(opts...)
			if err != nil {
				return fmt.Errorf("orchestrator: load config: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("orchestrator: invalid config: %w", err)
			}

			logger := cfg.Logger()
			if tagged, ok := logger.(core.ComponentAwareLogger); ok {
				logger = tagged.WithComponent(processID.String())
			}

			var override *sharedtypes.RoutingStrategy
			if routingOverride != "" {
				strategy, err := routing.ParseConfigString(routingOverride)
				if err != nil {
					return fmt.Errorf("orchestrator: routing-override: %w", err)
				}
				override = &strategy
			}

			o := orchestrator.New(orchestrator.Config{
				DashboardListenAddr: cfg.Orchestrator.DashboardAddr,
				WorkerUpdateAddr:    cfg.Orchestrator.WorkerAddr,
				WorkerBasePort:      firstNonZero(workerBasePort, cfg.Orchestrator.WorkerBasePort),
				OutputRoot:          cfg.Orchestrator.OutputRoot,
				WorkerBinaryPath:    cfg.Orchestrator.WorkerBinaryPath,
				DashboardBinaryPath: cfg.Orchestrator.DashboardBinaryPath,
				DashboardHTTPPort:   dashboardHTTP,
				DefaultWorkerCount:  cfg.Orchestrator.DefaultWorkerCount,
				BootstrapProviders:  []sharedtypes.ProviderID{sharedtypes.ProviderRandom},
				DefaultMode:         sharedtypes.OptimizationMode(optimizationModeOrDefault(optimizationMode, cfg.Orchestrator.OptimizationMode)),
				DefaultRouting:      override,
				Logger:              logger,
				Supervisor:          procsup.NewOSSupervisor(logger),
			})

			if err := o.Initialize(); err != nil {
				return fmt.Errorf("orchestrator: initialize: %w", err)
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if topic != "" {
				strategy := sharedtypes.RoutingStrategy{}
				if override != nil {
					strategy = *override
				}
				if err := o.StartGeneration(topic, prompt, cfg.Orchestrator.DefaultWorkerCount, strategy, sharedtypes.GenerationConstraints{}, cfg.Orchestrator.IterationLimit); err != nil {
					return fmt.Errorf("orchestrator: start generation: %w", err)
				}
			}

			return o.Run(ctx)
		},
	}

	flags := root.Flags()
	flags.StringVar(&configFile, "config", "", "optional YAML config file overlaying defaults/env")
	flags.StringVar(&dashboardAddr, "dashboard-addr", "", "address the orchestrator binds for dashboard requests")
	flags.StringVar(&workerAddr, "worker-addr", "", "address the orchestrator binds for worker updates")
	flags.IntVar(&workerBasePort, "worker-base-port", 0, "first port handed to spawned workers")
	flags.StringVar(&outputRoot, "output-root", "", "directory under which per-topic output files are written")
	flags.StringVar(&workerBinary, "worker-binary", "", "path to the worker executable")
	flags.StringVar(&dashboardBinary, "dashboard-binary", "", "path to the dashboard executable (omit to run headless)")
	flags.IntVar(&dashboardHTTP, "dashboard-http-port", 8080, "HTTP port passed to the spawned dashboard")
	flags.IntVar(&workerCount, "worker-count", 0, "number of producer workers to spawn for the topic")
	flags.IntVar(&iterationLimit, "iteration-limit", 0, "stop after this many accepted batches (0 = unbounded)")
	flags.StringVar(&optimizationMode, "optimization-mode", "", "maximize_uam|minimize_cost|maximize_efficiency|weighted")
	flags.StringVar(&routingOverride, "routing-config", "", "flat routing config string pinning the strategy for every worker")
	flags.StringVar(&logLevel, "log-level", "info", "trace|debug|info|warn|error")
	flags.StringVar(&topic, "topic", "", "if set, starts this topic immediately instead of waiting for a dashboard request")
	flags.StringVar(&prompt, "prompt", "", "base prompt used alongside --topic")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func optimizationModeOrDefault(flagValue, configValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return configValue
}

func firstNonZero(a, b int) int {
	if a != 0 {
		return a
	}
	return b
}
