// Package alert runs the periodic condition checks that raise and
// auto-resolve dashboard alerts, and dispatches newly raised alerts to
// configured notification channels.
package alert

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/blueberrycongee/aihub/internal/metrics"
	"github.com/blueberrycongee/aihub/internal/store"
)

const defaultCheckInterval = 60 * time.Second

// Config controls the check loop cadence and condition thresholds.
type Config struct {
	Interval                  time.Duration
	ConsecutiveErrorThreshold int
	LatencySpikeMultiplier    float64
	BudgetThresholdPercent    float64
}

func DefaultConfig() Config {
	return Config{
		Interval:                  defaultCheckInterval,
		ConsecutiveErrorThreshold: 3,
		LatencySpikeMultiplier:    3,
		BudgetThresholdPercent:    90,
	}
}

// Manager evaluates the three alert conditions for every enabled
// connection on a fixed interval and dispatches newly raised alerts.
type Manager struct {
	cfg       Config
	store     *store.Store
	notifiers []Notifier
	logger    *slog.Logger
}

func NewManager(cfg Config, s *store.Store, logger *slog.Logger, notifiers ...Notifier) *Manager {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultCheckInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{cfg: cfg, store: s, notifiers: notifiers, logger: logger}
}

// Start runs the check loop until ctx is cancelled.
func (m *Manager) Start(ctx context.Context) {
	go m.run(ctx)
}

func (m *Manager) run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	m.runOnce(ctx)
	for {
		select {
		case <-ticker.C:
			m.runOnce(ctx)
		case <-ctx.Done():
			m.logger.Info("alert manager stopped")
			return
		}
	}
}

func (m *Manager) runOnce(ctx context.Context) {
	connections, err := m.store.ListConnections()
	if err != nil {
		m.logger.Warn("alert manager: list connections failed", "error", err)
		return
	}

	for _, c := range connections {
		if ctx.Err() != nil {
			return
		}
		if !c.Enabled {
			continue
		}
		m.evaluate(ctx, c, store.AlertConsecutiveErrors, m.checkConsecutiveErrors(c))
		m.evaluate(ctx, c, store.AlertLatencySpike, m.checkLatencySpike(c))
		m.evaluate(ctx, c, store.AlertBudgetThreshold, m.checkBudgetThreshold(c))
	}
}

// condition is the outcome of evaluating one alert rule: whether it
// currently fires, and if so the severity/message to raise it with.
type condition struct {
	fires    bool
	severity string
	message  string
}

// evaluate raises or resolves the alert for (c.ID, kind) based on cond,
// implementing the dedup-while-active and auto-resolve-on-clear rules.
func (m *Manager) evaluate(ctx context.Context, c *store.Connection, kind store.AlertKind, cond condition) {
	if !cond.fires {
		m.resolveIfActive(c.ID, kind)
		return
	}

	raised, created, err := m.store.AlertUpsertActive(&store.Alert{
		ConnectionID: c.ID,
		Kind:         kind,
		Severity:     cond.severity,
		Message:      cond.message,
	})
	if err != nil {
		m.logger.Warn("alert manager: upsert alert failed", "connection_id", c.ID, "kind", kind, "error", err)
		return
	}
	if !created {
		return
	}

	metrics.AlertsTotal.WithLabelValues(string(kind)).Inc()

	for _, n := range m.notifiers {
		if err := n.Notify(ctx, raised); err != nil {
			m.logger.Warn("alert manager: notify failed", "connection_id", c.ID, "kind", kind, "error", err)
		}
	}
}

func (m *Manager) resolveIfActive(connectionID string, kind store.AlertKind) {
	active, err := m.store.AlertListActive()
	if err != nil {
		m.logger.Warn("alert manager: list active alerts failed", "error", err)
		return
	}
	for _, a := range active {
		if a.ConnectionID == connectionID && a.Kind == kind {
			if err := m.store.AlertResolve(a.ID); err != nil {
				m.logger.Warn("alert manager: resolve alert failed", "alert_id", a.ID, "error", err)
			}
		}
	}
}

const consecutiveErrorWindow = 10 * time.Minute

func (m *Manager) checkConsecutiveErrors(c *store.Connection) condition {
	recent, err := m.store.RecentRequestsForConnection(c.ID, m.cfg.ConsecutiveErrorThreshold)
	if err != nil || len(recent) < m.cfg.ConsecutiveErrorThreshold {
		return condition{}
	}
	cutoff := time.Now().Add(-consecutiveErrorWindow)
	for _, r := range recent {
		if r.Success || r.CreatedAt.Before(cutoff) {
			return condition{}
		}
	}
	return condition{
		fires:    true,
		severity: "error",
		message:  "the last requests against this connection all failed in the last 10 minutes",
	}
}

func (m *Manager) checkLatencySpike(c *store.Connection) condition {
	const sampleSize = 10
	const baselineSize = 100

	recent, err := m.store.RecentSuccessfulLatencies(c.ID, 0, sampleSize)
	if err != nil || len(recent) < sampleSize {
		return condition{}
	}
	baseline, err := m.store.RecentSuccessfulLatencies(c.ID, sampleSize, baselineSize)
	if err != nil || len(baseline) == 0 {
		return condition{}
	}

	recentMean := mean(recent)
	baselineMedian := median(baseline)
	if baselineMedian <= 0 {
		return condition{}
	}

	if recentMean >= baselineMedian*m.cfg.LatencySpikeMultiplier {
		return condition{
			fires:    true,
			severity: "warning",
			message:  "recent latency is well above this connection's baseline",
		}
	}
	return condition{}
}

func (m *Manager) checkBudgetThreshold(c *store.Connection) condition {
	windows := []struct {
		name  string
		win   store.Window
		limit float64
	}{
		{"daily", store.Window24h, c.DailyLimitUSD},
		{"weekly", store.Window7d, c.WeeklyLimitUSD},
		{"monthly", store.Window30d, c.MonthlyLimitUSD},
	}

	for _, w := range windows {
		if w.limit <= 0 {
			continue
		}
		spent, err := m.store.AggregateSpend(c.ID, w.win)
		if err != nil {
			continue
		}
		metrics.BudgetUtilization.WithLabelValues(c.ID, w.name).Set(spent / w.limit)
		if spent/w.limit*100 >= m.cfg.BudgetThresholdPercent {
			return condition{
				fires:    true,
				severity: "warning",
				message:  "connection has consumed most of its " + w.name + " budget",
			}
		}
	}
	return condition{}
}

func mean(values []int64) float64 {
	var sum int64
	for _, v := range values {
		sum += v
	}
	return float64(sum) / float64(len(values))
}

func median(values []int64) float64 {
	sorted := append([]int64(nil), values...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	n := len(sorted)
	if n%2 == 1 {
		return float64(sorted[n/2])
	}
	return (float64(sorted[n/2-1]) + float64(sorted[n/2])) / 2
}
