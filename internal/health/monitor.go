package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/blueberrycongee/aihub/internal/store"
	provreg "github.com/blueberrycongee/aihub/internal/provider"
)

const (
	defaultProbeInterval = 30 * time.Second
	defaultProbeTimeout  = 5 * time.Second
)

// Config controls the probe loop cadence.
type Config struct {
	Interval   time.Duration
	Timeout    time.Duration
	Thresholds Thresholds
}

func DefaultConfig() Config {
	return Config{Interval: defaultProbeInterval, Timeout: defaultProbeTimeout, Thresholds: DefaultThresholds()}
}

// Monitor tracks one ProviderHealth per connection and actively probes
// every connection that isn't currently HEALTHY. Healthy connections
// are observed passively: the request pipeline calls ReportSuccess /
// ReportFailure on every real call, so active probing is reserved for
// connections already known to be unwell.
type Monitor struct {
	cfg      Config
	store    *store.Store
	registry *provreg.Registry
	logger   *slog.Logger

	mu     sync.Mutex
	states map[string]*ProviderHealth
}

// NewMonitor constructs a Monitor. logger defaults to slog.Default() if nil.
func NewMonitor(cfg Config, s *store.Store, registry *provreg.Registry, logger *slog.Logger) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultProbeInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultProbeTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		cfg:      cfg,
		store:    s,
		registry: registry,
		logger:   logger,
		states:   make(map[string]*ProviderHealth),
	}
}

func (m *Monitor) healthFor(connectionID string) *ProviderHealth {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.states[connectionID]
	if !ok {
		h = newProviderHealth(m.cfg.Thresholds)
		m.states[connectionID] = h
	}
	return h
}

// State returns the current state for a connection, HEALTHY if unseen.
func (m *Monitor) State(connectionID string) State {
	return m.healthFor(connectionID).State()
}

// ReportSuccess records a real request's success against a connection.
func (m *Monitor) ReportSuccess(connectionID string) State {
	return m.healthFor(connectionID).RecordSuccess()
}

// ReportFailure records a real request's failure against a connection.
func (m *Monitor) ReportFailure(connectionID string) State {
	return m.healthFor(connectionID).RecordFailure()
}

// Start runs the probe loop until ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	go m.run(ctx)
}

func (m *Monitor) run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	m.runOnce(ctx)
	for {
		select {
		case <-ticker.C:
			m.runOnce(ctx)
		case <-ctx.Done():
			m.logger.Info("health monitor stopped")
			return
		}
	}
}

func (m *Monitor) runOnce(ctx context.Context) {
	connections, err := m.store.ListConnections()
	if err != nil {
		m.logger.Warn("health monitor: list connections failed", "error", err)
		return
	}

	for _, c := range connections {
		if ctx.Err() != nil {
			return
		}
		if !c.Enabled {
			continue
		}
		if m.State(c.ID) == StateHealthy {
			continue
		}
		m.probe(ctx, c)
	}
}

func (m *Monitor) probe(ctx context.Context, c *store.Connection) {
	p, ok := m.registry.GetProvider(c.ID)
	if !ok {
		m.logger.Warn("health monitor: no provider instance for connection", "connection_id", c.ID)
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	_, err := p.Probe(probeCtx)
	var newState State
	if err != nil {
		newState = m.ReportFailure(c.ID)
		m.logger.Warn("health probe failed", "connection_id", c.ID, "service_key", c.ServiceKey, "error", err, "state", newState)
		return
	}
	newState = m.ReportSuccess(c.ID)
	m.logger.Info("health probe succeeded", "connection_id", c.ID, "service_key", c.ServiceKey, "state", newState)
}
