package core

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds configuration for one of the three process roles
// (orchestrator, worker, dashboard). It supports the same three-layer
// configuration priority as the rest of the stack:
//  1. Default values (lowest priority)
//  2. Environment variables (medium priority)
//  3. Functional options (highest priority, usually parsed CLI flags)
//
// Example usage:
//
//	cfg, err := NewConfig(
//	    WithRole("worker"),
//	    WithWorkerID(3),
//	    WithOrchestratorAddr("127.0.0.1:7000"),
//	    WithListenPort(9003),
//	)
type Config struct {
	// Role selects which sub-config is authoritative: "orchestrator",
	// "worker", or "dashboard".
	Role string `json:"role" env:"PROCESS_ROLE"`

	Orchestrator OrchestratorConfig `json:"orchestrator"`
	Worker       WorkerConfig       `json:"worker"`
	Dashboard    DashboardConfig    `json:"dashboard"`

	Logging     LoggingConfig     `json:"logging"`
	Telemetry   TelemetryConfig   `json:"telemetry"`
	Development DevelopmentConfig `json:"development"`

	// logger is excluded from JSON; set once NewConfig resolves the
	// logging layer.
	logger Logger `json:"-"`
}

// OrchestratorConfig configures the orchestrator process: the two listener
// addresses it binds and the defaults applied to new topics.
type OrchestratorConfig struct {
	DashboardAddr       string        `json:"dashboard_addr" env:"DASHBOARD_ADDR" default:"127.0.0.1:6003"`
	WorkerAddr          string        `json:"worker_addr" env:"WORKER_ADDR" default:"127.0.0.1:7000"`
	WorkerBasePort      int           `json:"worker_base_port" env:"WORKER_BASE_PORT" default:"9000"`
	RoutingOverride     string        `json:"routing_override" env:"ROUTING_OVERRIDE"`
	IterationLimit      int           `json:"iteration_limit" env:"ITERATION_LIMIT" default:"0"`
	OptimizationMode    string        `json:"optimization_mode" env:"OPTIMIZATION_MODE" default:"maximize_uam"`
	MetricsTick         time.Duration `json:"metrics_tick" default:"3s"`
	HealthTick          time.Duration `json:"health_tick" default:"10s"`
	OutputRoot          string        `json:"output_root" env:"OUTPUT_ROOT" default:"./output"`
	WorkerBinaryPath    string        `json:"worker_binary_path" env:"WORKER_BINARY_PATH"`
	DashboardBinaryPath string        `json:"dashboard_binary_path" env:"DASHBOARD_BINARY_PATH"`
	DefaultWorkerCount  int           `json:"default_worker_count" env:"DEFAULT_WORKER_COUNT" default:"3"`
}

// WorkerConfig configures a single worker (producer) process.
type WorkerConfig struct {
	ID               uint32        `json:"id" env:"WORKER_ID"`
	OrchestratorAddr string        `json:"orchestrator_addr" env:"ORCHESTRATOR_ADDR"`
	ListenPort       int           `json:"listen_port" env:"LISTEN_PORT"`
	RoutingConfig    string        `json:"routing_config" env:"ROUTING_CONFIG"`
	Model            string        `json:"model" env:"MODEL" default:"gpt-3.5-turbo"`
	ProviderTimeout  time.Duration `json:"provider_timeout" default:"30s"`
}

// DashboardConfig configures the (out-of-scope) dashboard process as seen
// from the orchestrator's point of view — it only needs enough to spawn
// and address the child; the HTTP/websocket internals live behind an
// interface this module does not implement.
type DashboardConfig struct {
	HTTPPort         int    `json:"http_port" env:"HTTP_PORT" default:"8080"`
	ListenPort       int    `json:"listen_port" env:"DASHBOARD_LISTEN_PORT" default:"6003"`
	OrchestratorAddr string `json:"orchestrator_addr" env:"ORCHESTRATOR_ADDR"`
	StaticDir        string `json:"static_dir" env:"STATIC_DIR" default:"./static"`
}

// LoggingConfig controls the process-tagged structured logger.
type LoggingConfig struct {
	Level  string `json:"level" env:"LOG_LEVEL" default:"info"`
	Format string `json:"format" env:"LOG_FORMAT" default:"json"`
	Output string `json:"output" env:"LOG_OUTPUT" default:"stdout"`
}

// TelemetryConfig controls the optional OpenTelemetry tracer used around
// provider HTTP calls.
type TelemetryConfig struct {
	Enabled     bool   `json:"enabled" env:"TELEMETRY_ENABLED" default:"false"`
	TraceEP     string `json:"trace_ep" env:"TRACE_EP"`
	ServiceName string `json:"service_name"`
}

// DevelopmentConfig enables local-only conveniences.
type DevelopmentConfig struct {
	DebugLogging bool `json:"debug_logging" env:"DEBUG_LOGGING" default:"false"`
}

// Option mutates a Config during NewConfig. An Option returning an error
// aborts construction.
type Option func(*Config) error

// DefaultConfig returns a Config populated with the struct-tag defaults.
func DefaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	cfg.Orchestrator.DashboardAddr = "127.0.0.1:6003"
	cfg.Orchestrator.WorkerAddr = "127.0.0.1:7000"
	cfg.Orchestrator.WorkerBasePort = 9000
	cfg.Orchestrator.OptimizationMode = "maximize_uam"
	cfg.Orchestrator.OutputRoot = "./output"
	cfg.Orchestrator.DefaultWorkerCount = 3
	cfg.Orchestrator.MetricsTick = 3 * time.Second
	cfg.Orchestrator.HealthTick = 10 * time.Second

	cfg.Worker.Model = "gpt-3.5-turbo"
	cfg.Worker.ProviderTimeout = 30 * time.Second

	cfg.Dashboard.HTTPPort = 8080
	cfg.Dashboard.ListenPort = 6003
	cfg.Dashboard.StaticDir = "./static"

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	cfg.Logging.Output = "stdout"
}

// LoadFromEnv overlays values found in the environment on top of the
// current config. NewConfig applies it before Options, so Options retain
// highest priority.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("PROCESS_ROLE"); v != "" {
		c.Role = v
	}
	if v := os.Getenv("DASHBOARD_ADDR"); v != "" {
		c.Orchestrator.DashboardAddr = v
	}
	if v := os.Getenv("WORKER_ADDR"); v != "" {
		c.Orchestrator.WorkerAddr = v
	}
	if v := os.Getenv("WORKER_BASE_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Orchestrator.WorkerBasePort = n
		}
	}
	if v := os.Getenv("ROUTING_OVERRIDE"); v != "" {
		c.Orchestrator.RoutingOverride = v
	}
	if v := os.Getenv("ITERATION_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Orchestrator.IterationLimit = n
		}
	}
	if v := os.Getenv("OPTIMIZATION_MODE"); v != "" {
		c.Orchestrator.OptimizationMode = v
	}
	if v := os.Getenv("OUTPUT_ROOT"); v != "" {
		c.Orchestrator.OutputRoot = v
	}
	if v := os.Getenv("WORKER_BINARY_PATH"); v != "" {
		c.Orchestrator.WorkerBinaryPath = v
	}
	if v := os.Getenv("DASHBOARD_BINARY_PATH"); v != "" {
		c.Orchestrator.DashboardBinaryPath = v
	}
	if v := os.Getenv("DEFAULT_WORKER_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Orchestrator.DefaultWorkerCount = n
		}
	}

	if v := os.Getenv("WORKER_ID"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			c.Worker.ID = uint32(n)
		}
	}
	if v := os.Getenv("ORCHESTRATOR_ADDR"); v != "" {
		c.Worker.OrchestratorAddr = v
		c.Dashboard.OrchestratorAddr = v
	}
	if v := os.Getenv("LISTEN_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Worker.ListenPort = n
		}
	}
	if v := os.Getenv("ROUTING_CONFIG"); v != "" {
		c.Worker.RoutingConfig = v
	}
	if v := os.Getenv("MODEL"); v != "" {
		c.Worker.Model = v
	}

	if v := os.Getenv("HTTP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Dashboard.HTTPPort = n
		}
	}
	if v := os.Getenv("DASHBOARD_LISTEN_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Dashboard.ListenPort = n
		}
	}
	if v := os.Getenv("STATIC_DIR"); v != "" {
		c.Dashboard.StaticDir = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("LOG_OUTPUT"); v != "" {
		c.Logging.Output = v
	}
	if v := os.Getenv("TRACE_EP"); v != "" {
		c.Telemetry.TraceEP = v
		c.Telemetry.Enabled = true
	}
	if v := os.Getenv("DEBUG_LOGGING"); v != "" {
		c.Development.DebugLogging = parseBool(v)
	}

	return nil
}

// Validate checks that the config carries the fields required by its Role.
// Configuration errors are fatal at startup and never recovered.
func (c *Config) Validate() error {
	switch c.Role {
	case "orchestrator":
		if c.Orchestrator.DashboardAddr == "" || c.Orchestrator.WorkerAddr == "" {
			return NewFrameworkError("Config.Validate", "config", ErrMissingConfiguration)
		}
	case "worker":
		if c.Worker.OrchestratorAddr == "" {
			return NewFrameworkError("Config.Validate", "config", ErrMissingConfiguration)
		}
		if c.Worker.ListenPort <= 0 {
			return NewFrameworkError("Config.Validate", "config", ErrMissingConfiguration)
		}
	case "dashboard":
		if c.Dashboard.OrchestratorAddr == "" {
			return NewFrameworkError("Config.Validate", "config", ErrMissingConfiguration)
		}
	default:
		return NewFrameworkError("Config.Validate", "config", ErrInvalidConfiguration).WithID(c.Role)
	}
	return nil
}

func parseBool(s string) bool {
	b, err := strconv.ParseBool(s)
	return err == nil && b
}

// --- Functional options ---

// WithRole sets the process role.
func WithRole(role string) Option {
	return func(c *Config) error {
		c.Role = role
		return nil
	}
}

// WithWorkerID sets the worker's 1-based id.
func WithWorkerID(id uint32) Option {
	return func(c *Config) error {
		c.Worker.ID = id
		return nil
	}
}

// WithOrchestratorAddr sets the address a worker or dashboard dials to
// reach the orchestrator's update listener.
func WithOrchestratorAddr(addr string) Option {
	return func(c *Config) error {
		c.Worker.OrchestratorAddr = addr
		c.Dashboard.OrchestratorAddr = addr
		return nil
	}
}

// WithListenPort sets the worker's own listen port.
func WithListenPort(port int) Option {
	return func(c *Config) error {
		if port <= 0 || port > 65535 {
			return NewFrameworkError("WithListenPort", "config", ErrInvalidConfiguration)
		}
		c.Worker.ListenPort = port
		return nil
	}
}

// WithRoutingConfig sets the flat routing config string (§6.2 grammar).
func WithRoutingConfig(routing string) Option {
	return func(c *Config) error {
		c.Worker.RoutingConfig = routing
		return nil
	}
}

// WithModel sets the default model name.
func WithModel(model string) Option {
	return func(c *Config) error {
		c.Worker.Model = model
		return nil
	}
}

// WithDashboardAddr sets the orchestrator's dashboard listener address.
func WithDashboardAddr(addr string) Option {
	return func(c *Config) error {
		c.Orchestrator.DashboardAddr = addr
		return nil
	}
}

// WithWorkerAddr sets the orchestrator's worker-update listener address.
func WithWorkerAddr(addr string) Option {
	return func(c *Config) error {
		c.Orchestrator.WorkerAddr = addr
		return nil
	}
}

// WithIterationLimit sets the CLI-provided iteration budget (0 = unbounded).
func WithIterationLimit(n int) Option {
	return func(c *Config) error {
		c.Orchestrator.IterationLimit = n
		return nil
	}
}

// WithOutputRoot sets the directory under which per-topic output
// directories (§6.4) are created.
func WithOutputRoot(root string) Option {
	return func(c *Config) error {
		c.Orchestrator.OutputRoot = root
		return nil
	}
}

// WithWorkerBinaryPath sets the executable the orchestrator spawns for
// each producer process.
func WithWorkerBinaryPath(path string) Option {
	return func(c *Config) error {
		c.Orchestrator.WorkerBinaryPath = path
		return nil
	}
}

// WithDashboardBinaryPath sets the executable the orchestrator spawns for
// the (out-of-scope) dashboard process.
func WithDashboardBinaryPath(path string) Option {
	return func(c *Config) error {
		c.Orchestrator.DashboardBinaryPath = path
		return nil
	}
}

// WithDefaultWorkerCount sets how many producers a topic starts with when
// the caller doesn't specify a count explicitly.
func WithDefaultWorkerCount(n int) Option {
	return func(c *Config) error {
		c.Orchestrator.DefaultWorkerCount = n
		return nil
	}
}

// fileConfig is the subset of Config an orchestrator operator can pin in a
// YAML file instead of repeating flags on every invocation. Only process-
// level fields (addresses, ports, binary paths, output root, mode, logging)
// are exposed; tick intervals and per-topic parameters are not.
type fileConfig struct {
	DashboardAddr       string `yaml:"dashboard_addr"`
	WorkerAddr          string `yaml:"worker_addr"`
	WorkerBasePort      int    `yaml:"worker_base_port"`
	WorkerBinaryPath    string `yaml:"worker_binary_path"`
	DashboardBinaryPath string `yaml:"dashboard_binary_path"`
	DashboardHTTPPort   int    `yaml:"dashboard_http_port"`
	OutputRoot          string `yaml:"output_root"`
	OptimizationMode    string `yaml:"optimization_mode"`
	LogLevel            string `yaml:"log_level"`
	LogFormat           string `yaml:"log_format"`
}

// WithConfigFile overlays a YAML file's values onto the config. Apply it
// before any flag-derived Options so flags retain the highest priority.
func WithConfigFile(path string) Option {
	return func(c *Config) error {
		if path == "" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return NewFrameworkError("WithConfigFile", "config", ErrMissingConfiguration).WithID(path)
		}
		var fc fileConfig
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return NewFrameworkError("WithConfigFile", "config", ErrInvalidConfiguration).WithID(path)
		}

		if fc.DashboardAddr != "" {
			c.Orchestrator.DashboardAddr = fc.DashboardAddr
		}
		if fc.WorkerAddr != "" {
			c.Orchestrator.WorkerAddr = fc.WorkerAddr
		}
		if fc.WorkerBasePort != 0 {
			c.Orchestrator.WorkerBasePort = fc.WorkerBasePort
		}
		if fc.WorkerBinaryPath != "" {
			c.Orchestrator.WorkerBinaryPath = fc.WorkerBinaryPath
		}
		if fc.DashboardBinaryPath != "" {
			c.Orchestrator.DashboardBinaryPath = fc.DashboardBinaryPath
		}
		if fc.DashboardHTTPPort != 0 {
			c.Dashboard.HTTPPort = fc.DashboardHTTPPort
		}
		if fc.OutputRoot != "" {
			c.Orchestrator.OutputRoot = fc.OutputRoot
		}
		if fc.OptimizationMode != "" {
			c.Orchestrator.OptimizationMode = fc.OptimizationMode
		}
		if fc.LogLevel != "" {
			c.Logging.Level = fc.LogLevel
		}
		if fc.LogFormat != "" {
			c.Logging.Format = fc.LogFormat
		}
		return nil
	}
}

// WithLogLevel sets the logging level (trace|debug|info|warn|error).
func WithLogLevel(level string) Option {
	return func(c *Config) error {
		c.Logging.Level = strings.ToLower(level)
		return nil
	}
}

// WithLogFormat sets the logging format (json|text).
func WithLogFormat(format string) Option {
	return func(c *Config) error {
		c.Logging.Format = format
		return nil
	}
}

// WithTraceEndpoint enables tracing and sets the collector endpoint.
func WithTraceEndpoint(ep string) Option {
	return func(c *Config) error {
		c.Telemetry.TraceEP = ep
		c.Telemetry.Enabled = ep != ""
		return nil
	}
}

// WithLogger injects a pre-built logger, bypassing ProductionLogger
// construction. Primarily used by tests.
func WithLogger(logger Logger) Option {
	return func(c *Config) error {
		c.logger = logger
		return nil
	}
}

// NewConfig builds a Config by applying defaults, then environment
// variables, then the supplied options (highest priority), then resolving
// the logger. It does not validate the result; callers call Validate once
// any remaining overrides are applied.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, NewFrameworkError("NewConfig", "config", err)
		}
	}

	if cfg.logger == nil {
		serviceName := cfg.Role
		logger := NewProductionLogger(cfg.Logging, cfg.Development, serviceName)
		if prodLogger, ok := logger.(*ProductionLogger); ok {
			trackLogger(prodLogger)
		}
		cfg.logger = logger
	}

	return cfg, nil
}

// Logger returns the resolved logger for this config.
func (c *Config) Logger() Logger {
	return c.logger
}

// ============================================================================
// ProductionLogger: layered, process-tagged structured logging.
// ============================================================================

// ProductionLogger writes structured log lines tagged with the owning
// process's component and, once telemetry registers itself, emits a
// low-cardinality operation counter alongside every line.
type ProductionLogger struct {
	level       string
	debug       bool
	serviceName string
	component   string
	format      string
	output      io.Writer

	metricsEnabled bool
}

// NewProductionLogger creates a logger from LoggingConfig.
func NewProductionLogger(logging LoggingConfig, dev DevelopmentConfig, serviceName string) Logger {
	var output io.Writer = os.Stdout
	if logging.Output == "stderr" {
		output = os.Stderr
	}

	return &ProductionLogger{
		level:          strings.ToLower(logging.Level),
		debug:          dev.DebugLogging || logging.Level == "debug",
		serviceName:    serviceName,
		component:      serviceName,
		format:         logging.Format,
		output:         output,
		metricsEnabled: false,
	}
}

// WithComponent returns a logger tagged with a narrower component name
// while sharing the base serviceName and output.
func (p *ProductionLogger) WithComponent(component string) Logger {
	clone := *p
	clone.component = component
	return &clone
}

// EnableMetrics is called by the telemetry package once it registers a
// MetricsRegistry.
func (p *ProductionLogger) EnableMetrics() {
	p.metricsEnabled = true
}

func (p *ProductionLogger) Info(msg string, fields map[string]interface{}) {
	p.logEvent("INFO", msg, fields, nil)
}

func (p *ProductionLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("INFO", msg, fields, ctx)
}

func (p *ProductionLogger) Error(msg string, fields map[string]interface{}) {
	p.logEvent("ERROR", msg, fields, nil)
}

func (p *ProductionLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("ERROR", msg, fields, ctx)
}

func (p *ProductionLogger) Warn(msg string, fields map[string]interface{}) {
	p.logEvent("WARN", msg, fields, nil)
}

func (p *ProductionLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("WARN", msg, fields, ctx)
}

func (p *ProductionLogger) Debug(msg string, fields map[string]interface{}) {
	if p.debug {
		p.logEvent("DEBUG", msg, fields, nil)
	}
}

func (p *ProductionLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	if p.debug {
		p.logEvent("DEBUG", msg, fields, ctx)
	}
}

func (p *ProductionLogger) logEvent(level, msg string, fields map[string]interface{}, ctx context.Context) {
	timestamp := time.Now().Format(time.RFC3339)

	if p.format == "json" {
		logEntry := map[string]interface{}{
			"timestamp": timestamp,
			"level":     level,
			"process":   p.serviceName,
			"component": p.component,
			"message":   msg,
		}

		if ctx != nil && p.metricsEnabled {
			if baggage := getContextBaggage(ctx); len(baggage) > 0 {
				for k, v := range baggage {
					logEntry["trace."+k] = v
				}
			}
		}

		for k, v := range fields {
			logEntry[k] = v
		}

		if data, err := json.Marshal(logEntry); err == nil {
			fmt.Fprintln(p.output, string(data))
		}
	} else {
		traceInfo := ""
		if ctx != nil && p.metricsEnabled {
			if baggage := getContextBaggage(ctx); baggage["request_id"] != "" {
				traceInfo = fmt.Sprintf("[req=%s] ", baggage["request_id"])
			}
		}

		var fieldStr strings.Builder
		if len(fields) > 0 {
			fieldStr.WriteString(" ")
			for k, v := range fields {
				fieldStr.WriteString(fmt.Sprintf("%s=%v ", k, v))
			}
		}

		fmt.Fprintf(p.output, "%s [%s] [%s] %s%s%s\n",
			timestamp, level, p.component, traceInfo, msg, fieldStr.String())
	}

	if p.metricsEnabled {
		p.emitFrameworkMetric(level, msg, fields, ctx)
	}
}

func (p *ProductionLogger) emitFrameworkMetric(level, msg string, fields map[string]interface{}, ctx context.Context) {
	labels := []string{
		"level", level,
		"process", p.serviceName,
		"component", p.component,
	}

	for k, v := range fields {
		switch k {
		case "operation", "status", "error_type", "provider", "worker_id":
			labels = append(labels, k, fmt.Sprintf("%v", v))
		}
	}

	if ctx != nil {
		emitMetricWithContext(ctx, "orchestrator.operations", 1.0, labels...)
	} else {
		emitMetric("orchestrator.operations", 1.0, labels...)
	}
}

func emitMetric(name string, value float64, labels ...string) {
	if globalMetricsRegistry != nil {
		globalMetricsRegistry.Counter(name, labels...)
	}
}

func emitMetricWithContext(ctx context.Context, name string, value float64, labels ...string) {
	if globalMetricsRegistry != nil {
		globalMetricsRegistry.EmitWithContext(ctx, name, value, labels...)
	}
}

func getContextBaggage(ctx context.Context) map[string]string {
	if globalMetricsRegistry != nil {
		return globalMetricsRegistry.GetBaggage(ctx)
	}
	return make(map[string]string)
}
