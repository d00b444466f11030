// Package health implements the storage connection health monitor: a
// background probe loop that detects outages, drives reconnection with
// capped exponential backoff, and signals recovery or terminal failure to
// the rest of the process.
package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/emberhollow/emberhollow-core/pkg/logger"
)

// Probe is the monitored gateway surface. Implemented by the postgres
// Connection.
type Probe interface {
	// Ping checks liveness without holding a connection across waits.
	Ping(ctx context.Context) error

	// Reconnect rebuilds the underlying pool.
	Reconnect(ctx context.Context) error

	// ResetBreaker closes the gateway's circuit after confirmed recovery.
	ResetBreaker()
}

// Config holds monitor tuning.
type Config struct {
	// ProbeInterval is the healthy-state probe cadence.
	ProbeInterval time.Duration

	// BackoffBase is the first retry delay after a failed probe.
	BackoffBase time.Duration

	// BackoffCap bounds the exponential delay growth.
	BackoffCap time.Duration

	// MaxRetries is the consecutive failure count after which the outage
	// is declared terminal and the monitor stops retrying.
	MaxRetries int

	// ProbeTimeout bounds one probe attempt.
	ProbeTimeout time.Duration
}

// DefaultConfig returns monitor defaults.
func DefaultConfig() Config {
	return Config{
		ProbeInterval: 15 * time.Second,
		BackoffBase:   5 * time.Second,
		BackoffCap:    300 * time.Second,
		MaxRetries:    10,
		ProbeTimeout:  5 * time.Second,
	}
}

// Monitor watches storage liveness from its own goroutine. While healthy it
// probes on a fixed cadence; on failure it switches to exponential backoff
// and reconnection attempts, and after MaxRetries consecutive failures it
// fires the terminal signal and stops. A success during backoff fires the
// recovery signal and returns to the healthy cadence.
type Monitor struct {
	probe  Probe
	config Config
	log    *slog.Logger

	mu      sync.RWMutex
	healthy bool

	recovered chan struct{}
	terminal  chan struct{}

	wg sync.WaitGroup
}

// NewMonitor creates the monitor. It does not probe until Start.
func NewMonitor(probe Probe, cfg Config, log *slog.Logger) *Monitor {
	if cfg.ProbeInterval <= 0 {
		cfg = DefaultConfig()
	}
	return &Monitor{
		probe:     probe,
		config:    cfg,
		log:       log,
		healthy:   true,
		recovered: make(chan struct{}, 1),
		terminal:  make(chan struct{}),
	}
}

// Start launches the probe loop. It runs until ctx is cancelled or the
// outage is declared terminal.
func (m *Monitor) Start(ctx context.Context) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.run(ctx)
	}()
}

// Wait blocks until the probe loop exits.
func (m *Monitor) Wait() {
	m.wg.Wait()
}

// Healthy reports the last observed liveness.
func (m *Monitor) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.healthy
}

// Recovered signals each transition from outage back to healthy.
func (m *Monitor) Recovered() <-chan struct{} {
	return m.recovered
}

// Terminal is closed when MaxRetries consecutive failures exhaust the
// monitor. No automatic remediation follows; the operator takes over.
func (m *Monitor) Terminal() <-chan struct{} {
	return m.terminal
}

// Backoff returns the delay before the given retry attempt (1-based):
// BackoffBase doubled per prior failure, capped at BackoffCap.
func (m *Monitor) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := m.config.BackoffBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= m.config.BackoffCap {
			return m.config.BackoffCap
		}
	}
	if delay > m.config.BackoffCap {
		return m.config.BackoffCap
	}
	return delay
}

func (m *Monitor) run(ctx context.Context) {
	ticker := time.NewTicker(m.config.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if m.probeOnce(ctx) {
			continue
		}

		// Outage: leave the cadence loop and drive reconnection with
		// backoff until recovery, terminal failure, or shutdown.
		if !m.reconnectLoop(ctx) {
			return
		}
		ticker.Reset(m.config.ProbeInterval)
	}
}

// probeOnce runs a single bounded probe.
func (m *Monitor) probeOnce(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, m.config.ProbeTimeout)
	err := m.probe.Ping(probeCtx)
	cancel()

	if err != nil {
		m.log.Warn("storage probe failed", logger.Err(err))
		m.setHealthy(false)
		return false
	}
	m.setHealthy(true)
	return true
}

// reconnectLoop retries with backoff. Returns true on recovery, false when
// the outage is terminal or ctx is cancelled.
func (m *Monitor) reconnectLoop(ctx context.Context) bool {
	for attempt := 1; ; attempt++ {
		if attempt > m.config.MaxRetries {
			m.log.Error("storage outage is terminal, manual intervention required",
				logger.RetryCount(attempt-1))
			close(m.terminal)
			return false
		}

		delay := m.Backoff(attempt)
		m.log.Info("storage reconnect scheduled",
			logger.RetryCount(attempt),
			slog.String("delay", delay.String()))

		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}

		probeCtx, cancel := context.WithTimeout(ctx, m.config.ProbeTimeout)
		err := m.probe.Reconnect(probeCtx)
		cancel()
		if err != nil {
			m.log.Warn("storage reconnect failed",
				logger.RetryCount(attempt), logger.Err(err))
			continue
		}

		m.probe.ResetBreaker()
		m.setHealthy(true)

		select {
		case m.recovered <- struct{}{}:
		default:
		}
		m.log.Info("storage recovered", logger.RetryCount(attempt))
		return true
	}
}

func (m *Monitor) setHealthy(v bool) {
	m.mu.Lock()
	m.healthy = v
	m.mu.Unlock()
}
