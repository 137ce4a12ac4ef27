// Command dashboard is a minimal stand-in for the operator-facing HTTP/
// websocket surface: its internals are explicitly out of this module's
// scope. It exists so the orchestrator's spawn/readiness contract (§6.1,
// §6.5) has a real process on the other end — it exposes the latest
// StatisticsUpdate/GenerationComplete/ErrorNotification it has received as
// plain JSON and forwards StartGeneration/StopGeneration HTTP requests to
// the orchestrator's IPC listener.
package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/igentai/genorch/core"
	"github.com/igentai/genorch/internal/process"
	"github.com/igentai/genorch/internal/wire"
)

type state struct {
	mu      sync.Mutex
	stats   *wire.StatisticsUpdate
	last    *wire.GenerationComplete
	errors  []wire.ErrorNotification
	logger  core.Logger
}

func (s *state) record(upd wire.DashboardUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case upd.StatisticsUpdate != nil:
		s.stats = upd.StatisticsUpdate
	case upd.GenerationComplete != nil:
		s.last = upd.GenerationComplete
	case upd.ErrorNotification != nil:
		s.errors = append(s.errors, *upd.ErrorNotification)
		if len(s.errors) > 50 {
			s.errors = s.errors[len(s.errors)-50:]
		}
	}
}

func (s *state) snapshot() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]interface{}{
		"statistics":           s.stats,
		"last_generation":      s.last,
		"recent_errors":        s.errors,
	}
}

func main() {
	var (
		httpPort         int
		listenPort       int
		orchestratorAddr string
		staticDir        string
		logLevel         string
	)

	root := &cobra.Command{
		Use:   "dashboard",
		Short: "Reports orchestrator status over HTTP and forwards operator commands to it",
		RunE: func(cmd *cobra.Command, args []string) error {
			processID := process.InitWebServer()

			cfg, err := core.NewConfig(
				core.WithRole("dashboard"),
				core.WithOrchestratorAddr(orchestratorAddr),
				core.WithLogLevel(logLevel),
			)
			if err != nil {
				return fmt.Errorf("dashboard: load config: %w", err)
			}
			if listenPort != 0 {
				cfg.Dashboard.ListenPort = listenPort
			}
			if httpPort != 0 {
				cfg.Dashboard.HTTPPort = httpPort
			}
			if staticDir != "" {
				cfg.Dashboard.StaticDir = staticDir
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("dashboard: invalid config: %w", err)
			}

			logger := cfg.Logger()
			if tagged, ok := logger.(core.ComponentAwareLogger); ok {
				logger = tagged.WithComponent(processID.String())
			}

			st := &state{logger: logger}

			ln, err := wire.Listen(fmt.Sprintf("127.0.0.1:%d", cfg.Dashboard.ListenPort), wire.MaxControlFrame)
			if err != nil {
				return fmt.Errorf("dashboard: bind ipc listener: %w", err)
			}
			defer ln.Close()

			go ln.Serve(func(payload []byte) {
				var upd wire.DashboardUpdate
				if err := wire.Decode(payload, &upd); err != nil {
					logger.Warn("dropping undecodable dashboard update", map[string]interface{}{"error": err.Error()})
					return
				}
				st.record(upd)
			})

			mux := http.NewServeMux()
			mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(st.snapshot())
			})
			mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
				var req wire.StartGenerationRequest
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					http.Error(w, err.Error(), http.StatusBadRequest)
					return
				}
				if err := wire.SendDashboardRequest(cfg.Dashboard.OrchestratorAddr, wire.DashboardRequest{StartGeneration: &req}); err != nil {
					http.Error(w, err.Error(), http.StatusBadGateway)
					return
				}
				w.WriteHeader(http.StatusAccepted)
			})
			mux.HandleFunc("/stop", func(w http.ResponseWriter, r *http.Request) {
				req := wire.StopGenerationRequest{}
				if err := wire.SendDashboardRequest(cfg.Dashboard.OrchestratorAddr, wire.DashboardRequest{StopGeneration: &req}); err != nil {
					http.Error(w, err.Error(), http.StatusBadGateway)
					return
				}
				w.WriteHeader(http.StatusAccepted)
			})
			if cfg.Dashboard.StaticDir != "" {
				if _, err := os.Stat(cfg.Dashboard.StaticDir); err == nil {
					mux.Handle("/", http.FileServer(http.Dir(cfg.Dashboard.StaticDir)))
				}
			}

			server := &http.Server{
				Addr:    fmt.Sprintf(":%d", cfg.Dashboard.HTTPPort),
				Handler: mux,
			}

			ready := wire.DashboardRequest{Ready: &wire.DashboardReady{
				ListenPort: uint16(cfg.Dashboard.ListenPort),
				HTTPPort:   uint16(cfg.Dashboard.HTTPPort),
			}}
			if err := wire.SendDashboardRequest(cfg.Dashboard.OrchestratorAddr, ready); err != nil {
				logger.Warn("failed to send readiness handshake", map[string]interface{}{"error": err.Error()})
			}

			errCh := make(chan error, 1)
			go func() { errCh <- server.ListenAndServe() }()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			select {
			case err := <-errCh:
				if err != nil && err != http.ErrServerClosed {
					return fmt.Errorf("dashboard: http server: %w", err)
				}
			case <-sigCh:
				server.Close()
			}
			return nil
		},
	}

	flags := root.Flags()
	flags.IntVar(&httpPort, "port", 8080, "http port operators browse to")
	flags.IntVar(&listenPort, "listen-port", 6003, "ipc port the orchestrator sends updates to")
	flags.StringVar(&orchestratorAddr, "orchestrator-addr", "", "host:port of the orchestrator's dashboard listener")
	flags.StringVar(&staticDir, "static-dir", "", "optional directory of static assets to serve at /")
	flags.StringVar(&logLevel, "log-level", "info", "trace|debug|info|warn|error")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
