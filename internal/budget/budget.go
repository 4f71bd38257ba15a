// Package budget enforces the per-connection daily/weekly/monthly USD
// spend limits before a request is dispatched upstream.
package budget

import (
	"time"

	"github.com/blueberrycongee/aihub/internal/store"
	aerrors "github.com/blueberrycongee/aihub/pkg/errors"
)

// window pairs a spend window with the limit configured for it.
type window struct {
	name  string
	win   store.Window
	limit float64
}

// Check runs the budget enforcer's pre-flight check for a connection:
// for each window whose limit is non-zero, and whose override isn't
// currently active, compare current spend against the limit. The first
// exceeded window fails the whole check. Windows are checked in
// daily, weekly, monthly order so the tightest, most actionable window
// surfaces first.
func Check(s *store.Store, c *store.Connection, now time.Time) error {
	if c.BudgetOverrideUntil != nil && now.Before(*c.BudgetOverrideUntil) {
		return nil
	}

	windows := []window{
		{name: "daily", win: store.Window24h, limit: c.DailyLimitUSD},
		{name: "weekly", win: store.Window7d, limit: c.WeeklyLimitUSD},
		{name: "monthly", win: store.Window30d, limit: c.MonthlyLimitUSD},
	}

	for _, w := range windows {
		if w.limit <= 0 {
			continue
		}
		spent, err := s.AggregateSpend(c.ID, w.win)
		if err != nil {
			return aerrors.Wrap(aerrors.KindInternal, err, "aggregate spend")
		}
		if spent >= w.limit {
			return aerrors.NewBudgetExceeded(w.name, w.limit, spent).WithMetadata(map[string]any{
				"connection_id": c.ID,
			})
		}
	}
	return nil
}

// Override sets the connection's budget_override_until to now+duration,
// suspending enforcement until it naturally expires. It is not reversed
// by any other operation.
func Override(s *store.Store, connectionID string, duration time.Duration) error {
	until := time.Now().UTC().Add(duration)
	return s.SetBudgetOverride(connectionID, &until)
}
