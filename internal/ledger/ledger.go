// Package ledger derives the cumulative daily realized-PnL series from settled positions.
package ledger

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mselser95/polymarket-whalesim/pkg/types"
)

// DateLayout is the calendar-day key format used for ledger rows.
const DateLayout = "2006-01-02"

// Build groups realized PnL by UTC day of settlement and returns the running total per day,
// sorted ascending. Calling it twice on the same input yields the same output.
func Build(entries []types.RealizedPnL) []types.LedgerPoint {
	if len(entries) == 0 {
		return nil
	}

	daily := make(map[string]decimal.Decimal)
	for _, e := range entries {
		day := DayOf(e.ResolvedAt)
		daily[day] = daily[day].Add(e.PnL)
	}

	days := make([]string, 0, len(daily))
	for day := range daily {
		days = append(days, day)
	}
	sort.Strings(days)

	points := make([]types.LedgerPoint, 0, len(days))
	running := decimal.Zero
	for _, day := range days {
		running = running.Add(daily[day])
		points = append(points, types.LedgerPoint{
			Date:          day,
			CumulativePnL: running,
		})
	}

	return points
}

// DayOf returns the UTC calendar day of t.
func DayOf(t time.Time) string {
	return t.UTC().Format(DateLayout)
}
