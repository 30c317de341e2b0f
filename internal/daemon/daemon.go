// Package daemon wires the tool host together and runs it: registry,
// executor, loader, health monitor, directory watcher and gateway.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/toolhost/internal/config"
	"github.com/harun/toolhost/internal/logger"
	"github.com/harun/toolhost/internal/metrics"
	"github.com/harun/toolhost/internal/observability"
	"github.com/harun/toolhost/internal/tracing"
	"github.com/harun/toolhost/pkg/executor"
	"github.com/harun/toolhost/pkg/gateway"
	"github.com/harun/toolhost/pkg/loader"
	"github.com/harun/toolhost/pkg/plugin"
	"github.com/harun/toolhost/pkg/registry"
	"github.com/harun/toolhost/pkg/tools"
)

// Options carries what the configuration file cannot.
type Options struct {
	// Version is the host version checked against manifest host constraints.
	Version string
	// Launch starts directory plugins; nil uses loader.LaunchPlugin.
	Launch loader.LaunchFunc
}

// Status is a point-in-time view of the daemon.
type Status struct {
	Running   bool          `json:"running"`
	StartTime time.Time     `json:"start_time,omitempty"`
	Uptime    time.Duration `json:"uptime"`
	Tools     int           `json:"tools"`
	Healthy   int           `json:"healthy"`
	Addr      string        `json:"addr,omitempty"`
}

// Daemon represents the toolhost service
type Daemon struct {
	config *config.Config
	logger *logger.Logger
	log    zerolog.Logger

	metrics   *metrics.Metrics
	audit     *observability.AuditLogger
	registry  *registry.Registry
	executor  *executor.Executor
	loader    *loader.Loader
	monitor   *registry.HealthMonitor
	watcher   *loader.Watcher
	gateway   *gateway.Server
	lifecycle *LifecycleManager

	startTime  time.Time
	running    bool
	lastLoad   loader.LoadResult
	mu         sync.RWMutex
	tracingOn  bool
	shutdownMu sync.Mutex
}

// New creates a new daemon instance
func New(cfg *config.Config, log *logger.Logger, opts Options) (_ *Daemon, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	d := &Daemon{
		config: cfg,
		logger: log,
		log:    log.Component("daemon"),
	}
	defer func() {
		if err != nil {
			_ = d.Close()
		}
	}()

	if cfg.Tracing.Enabled {
		if err := tracing.InitOpenTelemetry(cfg.Tracing.ServiceName); err != nil {
			d.log.Warn().Err(err).Msg("Failed to initialize tracing, continuing without distributed tracing")
		} else {
			d.tracingOn = true
			d.log.Info().Msg("Tracing initialized successfully")
		}
	}

	d.metrics = metrics.NewMetrics()

	observers := executor.Observers{d.metrics}
	if cfg.Logging.AuditFile != "" {
		audit, err := observability.OpenAuditLog(cfg.Logging.AuditFile)
		if err != nil {
			return nil, err
		}
		d.audit = audit
		observers = append(observers, audit)
	}

	d.registry = registry.New(log.Component("registry"))
	d.registry.SetObserver(d.metrics)

	d.executor = executor.New(d.registry, executor.Options{
		DefaultTimeout:  cfg.Tools.DefaultTimeout(),
		CancelOnTimeout: cfg.Tools.CancelOnTimeout,
		Observer:        observers,
	}, log.Zerolog())

	discoverer, err := d.discoverer(opts)
	if err != nil {
		return nil, err
	}
	d.loader = loader.New(d.registry, discoverer, loader.Options{
		Concurrency: cfg.Tools.LoadConcurrency,
		Observer:    d.metrics,
	}, log.Zerolog())

	d.monitor, err = registry.NewHealthMonitor(d.registry, cfg.Tools.HealthCheckSchedule, cfg.Tools.HealthCheckTimeout(), log.Zerolog())
	if err != nil {
		return nil, fmt.Errorf("failed to create health monitor: %w", err)
	}

	if cfg.Tools.Watch {
		d.watcher, err = loader.NewWatcher(cfg.Tools.Dir, d.loader, cfg.Tools.WatchDebounce(), log.Zerolog())
		if err != nil {
			return nil, fmt.Errorf("failed to create tool watcher: %w", err)
		}
	}

	d.gateway, err = gateway.NewServer(gateway.Config{
		Host:              cfg.Server.Host,
		Port:              cfg.Server.Port,
		AuthToken:         cfg.Server.AuthToken,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		RequestsPerMinute: cfg.Server.RequestsPerMinute,
		MaxConcurrent:     cfg.Server.MaxConcurrent,
		Registry:          d.registry,
		Executor:          d.executor,
		Reloader:          d.reloader(),
		Sweeper:           d.monitor,
		Metrics:           d.metrics.Handler(),
		Logger:            log.Zerolog(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway server: %w", err)
	}

	d.lifecycle = NewLifecycleManager(cfg.DataDir, d.log)

	return d, nil
}

// discoverer combines the configured built-ins with the plugin directory.
// Built-ins come first, so they shadow plugins of the same name.
func (d *Daemon) discoverer(opts Options) (loader.Discoverer, error) {
	builtins := make([]loader.Candidate, 0, len(d.config.Tools.Builtins))
	for _, name := range d.config.Tools.Builtins {
		newTool, ok := tools.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("unknown builtin tool: %s", name)
		}
		builtins = append(builtins, loader.Builtin(name, newTool))
	}

	sources := loader.MultiDiscovery{loader.NewStaticDiscovery(builtins...)}
	if d.config.Tools.Dir != "" {
		manifests := plugin.NewManifestLoader(opts.Version, d.logger.Zerolog())
		sources = append(sources, loader.NewDirectoryDiscovery(d.config.Tools.Dir, manifests, opts.Launch, d.logger.Zerolog()))
	}
	return sources, nil
}

// reloader records gateway reloads in the audit log when one is open.
func (d *Daemon) reloader() gateway.Reloader {
	if d.audit == nil {
		return d.loader
	}
	return auditedReloader{loader: d.loader, audit: d.audit}
}

type auditedReloader struct {
	loader *loader.Loader
	audit  *observability.AuditLogger
}

func (r auditedReloader) ReloadTool(ctx context.Context, name string) error {
	err := r.loader.ReloadTool(ctx, name)
	r.audit.ToolReloaded(name, err)
	return err
}

// Close releases what New opened. Stop calls it; callers that never
// Start, such as one-shot CLI commands, call it directly.
func (d *Daemon) Close() error {
	if d.audit == nil {
		return nil
	}
	return d.audit.Close()
}

// Start loads every tool and starts the background services
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	logger := d.log.With().Str("trace_id", tracing.NewTraceID()).Logger()
	logger.Info().Msg("Starting toolhost")

	if err := d.lifecycle.Start(); err != nil {
		d.markStopped()
		return fmt.Errorf("failed to start lifecycle manager: %w", err)
	}

	result := d.loader.LoadAll(ctx)
	d.mu.Lock()
	d.lastLoad = result
	d.mu.Unlock()
	logger.Info().
		Strs("loaded", result.Loaded).
		Strs("failed", result.Failed).
		Msg("Tools loaded")

	d.monitor.Start()

	if d.watcher != nil {
		if err := d.watcher.Start(); err != nil {
			logger.Warn().Err(err).Msg("Failed to start tool watcher")
		} else {
			logger.Info().Str("dir", d.config.Tools.Dir).Msg("Tool watcher started")
		}
	}

	if err := d.gateway.Start(); err != nil {
		_ = d.Stop(context.Background())
		return fmt.Errorf("failed to start gateway server: %w", err)
	}

	logger.Info().Str("addr", d.gateway.Addr()).Msg("Toolhost started")
	return nil
}

// Stop shuts every service down in reverse start order
func (d *Daemon) Stop(ctx context.Context) error {
	d.shutdownMu.Lock()
	defer d.shutdownMu.Unlock()

	d.mu.RLock()
	running := d.running
	d.mu.RUnlock()
	if !running {
		return fmt.Errorf("daemon is not running")
	}

	logger := d.log.With().Str("trace_id", tracing.NewTraceID()).Logger()
	logger.Info().Msg("Stopping toolhost")

	var errs []error

	if err := d.gateway.Stop(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to stop gateway server")
		errs = append(errs, err)
	}

	if d.watcher != nil {
		if err := d.watcher.Stop(); err != nil {
			logger.Error().Err(err).Msg("Failed to stop tool watcher")
			errs = append(errs, err)
		}
	}

	if err := d.monitor.Stop(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to stop health monitor")
		errs = append(errs, err)
	}

	if err := d.loader.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("Failed to shut down tools")
		errs = append(errs, err)
	}

	if d.tracingOn {
		if err := tracing.ShutdownOpenTelemetry(ctx); err != nil {
			logger.Error().Err(err).Msg("Failed to shutdown tracing")
		}
		d.tracingOn = false
	}

	if err := d.lifecycle.Stop(); err != nil {
		errs = append(errs, err)
	}

	if err := d.Close(); err != nil {
		errs = append(errs, err)
	}

	d.markStopped()
	logger.Info().Msg("Toolhost stopped")

	return errors.Join(errs...)
}

func (d *Daemon) markStopped() {
	d.mu.Lock()
	d.running = false
	d.mu.Unlock()
}

// Status returns the daemon status
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{
		Running: d.running,
		Tools:   d.registry.Len(),
		Healthy: len(d.registry.Healthy()),
	}

	if d.running {
		status.Uptime = time.Since(d.startTime)
		status.StartTime = d.startTime
		status.Addr = d.gateway.Addr()
	}

	return status
}

// LastLoad returns the result of the startup load pass.
func (d *Daemon) LastLoad() loader.LoadResult {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastLoad
}

// Wait blocks until SIGINT or SIGTERM, then stops the daemon within
// shutdownTimeout.
func (d *Daemon) Wait(shutdownTimeout time.Duration) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	sig := <-sigChan
	d.log.Info().Str("signal", sig.String()).Msg("Received signal")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return d.Stop(ctx)
}

// GetConfig returns the daemon configuration
func (d *Daemon) GetConfig() *config.Config {
	return d.config
}

// GetRegistry returns the tool registry
func (d *Daemon) GetRegistry() *registry.Registry {
	return d.registry
}

// GetExecutor returns the executor
func (d *Daemon) GetExecutor() *executor.Executor {
	return d.executor
}

// GetLoader returns the tool loader
func (d *Daemon) GetLoader() *loader.Loader {
	return d.loader
}

// GetGatewayServer returns the gateway server
func (d *Daemon) GetGatewayServer() *gateway.Server {
	return d.gateway
}
