package portfolio

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/asanchez/btcfolio/internal/domain"
)

// ValuePoint is one dated portfolio value, the drawdown scan's input.
type ValuePoint struct {
	Date  time.Time
	Value decimal.Decimal
}

// DrawdownResult describes the deepest peak-to-trough decline.
// MaxDrawdownPct is non-positive; dates are nil for empty input.
type DrawdownResult struct {
	MaxDrawdownPct decimal.Decimal
	PeakDate       *time.Time
	PeakValue      decimal.Decimal
	TroughDate     *time.Time
	TroughValue    decimal.Decimal
}

// ComputeDrawdown scans dated values in order, tracking the running
// maximum and the worst decline from it. Zero drawdown means the series
// never fell below a previous high.
func ComputeDrawdown(points []ValuePoint) DrawdownResult {
	var res DrawdownResult
	if len(points) == 0 {
		return res
	}

	runningMax := points[0]
	worst := decimal.Zero
	for _, p := range points {
		if p.Value.GreaterThan(runningMax.Value) {
			runningMax = p
		}
		if !runningMax.Value.IsPositive() {
			continue
		}
		dd := p.Value.Sub(runningMax.Value).Div(runningMax.Value)
		if dd.LessThan(worst) {
			worst = dd
			peak, trough := runningMax, p
			res.PeakDate = &peak.Date
			res.PeakValue = peak.Value
			res.TroughDate = &trough.Date
			res.TroughValue = trough.Value
		}
	}
	res.MaxDrawdownPct = domain.RoundPct(worst.Mul(decimal.NewFromInt(100)))
	return res
}
