package portfolio

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/asanchez/btcfolio/internal/config"
	"github.com/asanchez/btcfolio/internal/domain"
)

// DCACadence is the simulated purchase frequency.
type DCACadence string

const (
	CadenceWeekly  DCACadence = "weekly"
	CadenceMonthly DCACadence = "monthly"
)

func (c DCACadence) step() (time.Duration, error) {
	switch c {
	case CadenceWeekly:
		return 7 * 24 * time.Hour, nil
	case CadenceMonthly:
		return 30 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown cadence %q", c)
	}
}

// CurvePoint is one step of an accumulation curve.
type CurvePoint struct {
	Date     time.Time       `json:"date"`
	Quantity decimal.Decimal `json:"cum_quantity"`
}

// DCASimulation contrasts the real buy history with a perfectly regular
// schedule spending the same total capital.
type DCASimulation struct {
	Cadence         DCACadence      `json:"cadence"`
	RealInvestedUSD decimal.Decimal `json:"real_invested_usd"`
	PerPeriodUSD    decimal.Decimal `json:"per_period_usd"`
	Periods         int             `json:"periods"`
	RealCurve       []CurvePoint    `json:"real_curve"`
	SimulatedCurve  []CurvePoint    `json:"simulated_curve"`
	RealQty         decimal.Decimal `json:"real_qty"`
	SimulatedQty    decimal.Decimal `json:"simulated_qty"`
	DiffQty         decimal.Decimal `json:"diff_qty"`
	DiffPct         decimal.Decimal `json:"diff_pct"`
	DiffValueUSD    decimal.Decimal `json:"diff_value_usd"`
	DiffValueEUR    decimal.Decimal `json:"diff_value_eur"`
}

// SimulateDCA replays the account's BTC buy history as if the same total
// capital had been spent on a fixed weekly or monthly schedule starting
// at the first real buy. Each simulated purchase executes at the closest
// daily close within a 5-day forward window; dates with no price in the
// window are skipped without spending.
func (s *Service) SimulateDCA(accountID uuid.UUID, cadence DCACadence) (*DCASimulation, error) {
	step, err := cadence.step()
	if err != nil {
		return nil, err
	}

	txns, err := s.transactions.ForAsset(accountID, "BTC")
	if err != nil {
		return nil, err
	}
	buys, _ := splitBuysSells(txns)
	if len(buys) == 0 {
		return nil, fmt.Errorf("no buy history to simulate")
	}

	totalInvested := decimal.Zero
	realQty := decimal.Zero
	realCurve := make([]CurvePoint, 0, len(buys))
	for _, b := range buys {
		totalInvested = totalInvested.Add(b.ValueUSD())
		realQty = realQty.Add(b.Quantity)
		realCurve = append(realCurve, CurvePoint{Date: b.ExecutedAt, Quantity: realQty})
	}

	now := s.now().UTC()
	firstBuy := buys[0].ExecutedAt
	var simDates []time.Time
	for d := firstBuy; !d.After(now); d = d.Add(step) {
		simDates = append(simDates, d)
	}
	perPeriod := domain.RoundMoney(totalInvested.Div(decimal.NewFromInt(int64(len(simDates)))))

	candles, err := s.prices.Range("BTCUSDT", "1d", config.HistoryEpoch, now)
	if err != nil {
		return nil, err
	}

	simQty := decimal.Zero
	simCurve := make([]CurvePoint, 0, len(simDates))
	for _, d := range simDates {
		if price, ok := closestForwardClose(candles, d, 5*24*time.Hour); ok {
			simQty = simQty.Add(perPeriod.Div(price))
		}
		simCurve = append(simCurve, CurvePoint{Date: d, Quantity: domain.RoundQty(simQty)})
	}
	simQty = domain.RoundQty(simQty)

	currentPrice, _, err := s.prices.LatestClose("BTCUSDT")
	if err != nil {
		return nil, err
	}
	eurUSD := s.eurUSDRate()

	diff := realQty.Sub(simQty)
	diffValueUSD := domain.RoundMoney(diff.Mul(currentPrice))
	return &DCASimulation{
		Cadence:         cadence,
		RealInvestedUSD: domain.RoundMoney(totalInvested),
		PerPeriodUSD:    perPeriod,
		Periods:         len(simDates),
		RealCurve:       realCurve,
		SimulatedCurve:  simCurve,
		RealQty:         realQty,
		SimulatedQty:    simQty,
		DiffQty:         domain.RoundQty(diff),
		DiffPct:         domain.Pct(diff, simQty),
		DiffValueUSD:    diffValueUSD,
		DiffValueEUR:    domain.RoundMoney(diffValueUSD.Div(eurUSD)),
	}, nil
}

// closestForwardClose finds the close of the first candle with open time
// in [at, at+window).
func closestForwardClose(candles []domain.Candle, at time.Time, window time.Duration) (decimal.Decimal, bool) {
	limit := at.Add(window)
	for _, c := range candles {
		if !c.OpenAt.Before(at) && c.OpenAt.Before(limit) {
			return c.Close, true
		}
	}
	return decimal.Zero, false
}
