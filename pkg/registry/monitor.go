package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultHealthSchedule runs a sweep every thirty seconds.
const DefaultHealthSchedule = "@every 30s"

// HealthMonitor runs registry health sweeps on a cron schedule.
type HealthMonitor struct {
	registry *Registry
	logger   zerolog.Logger
	cron     *cron.Cron
	timeout  time.Duration

	mu      sync.Mutex
	running bool
}

// NewHealthMonitor creates a monitor sweeping reg on schedule, which accepts
// standard five-field cron expressions and descriptors such as "@every 1m".
// Each sweep is bounded by timeout when it is positive.
func NewHealthMonitor(reg *Registry, schedule string, timeout time.Duration, logger zerolog.Logger) (*HealthMonitor, error) {
	if schedule == "" {
		schedule = DefaultHealthSchedule
	}

	m := &HealthMonitor{
		registry: reg,
		logger:   logger.With().Str("component", "health-monitor").Logger(),
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		timeout:  timeout,
	}

	if _, err := m.cron.AddFunc(schedule, m.sweep); err != nil {
		return nil, fmt.Errorf("invalid health check schedule %q: %w", schedule, err)
	}

	return m, nil
}

// Start begins scheduled sweeps. Calling Start twice is a no-op.
func (m *HealthMonitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}
	m.cron.Start()
	m.running = true
	m.logger.Info().Msg("Health monitor started")
}

// Stop halts scheduling and waits for an in-flight sweep or ctx, whichever
// comes first.
func (m *HealthMonitor) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	m.mu.Unlock()

	done := m.cron.Stop()
	select {
	case <-done.Done():
		m.logger.Info().Msg("Health monitor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunNow performs one sweep synchronously.
func (m *HealthMonitor) RunNow(ctx context.Context) map[string]bool {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}
	return m.registry.HealthCheck(ctx)
}

func (m *HealthMonitor) sweep() {
	results := m.RunNow(context.Background())

	unhealthy := 0
	for _, healthy := range results {
		if !healthy {
			unhealthy++
		}
	}
	m.logger.Debug().
		Int("checked", len(results)).
		Int("unhealthy", unhealthy).
		Msg("Scheduled health sweep completed")
}
