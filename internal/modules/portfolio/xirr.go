package portfolio

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// Cashflow is one dated flow for the XIRR solver. Investments are
// negative, realizations positive.
type Cashflow struct {
	Date   time.Time
	Amount decimal.Decimal
}

const (
	xirrGuess     = 0.10
	xirrMaxIters  = 200
	xirrStepEps   = 1e-10
	xirrDerivEps  = 1e-12
	xirrLowerRate = -1.0
	xirrUpperRate = 100.0
)

// ComputeXIRR solves the annualized internal rate of return for
// irregularly dated cashflows with Newton-Raphson on the NPV function.
// Returns nil when there are fewer than two flows, the iteration fails
// to converge, or the solution falls outside (-1, 100]. The result is
// a percentage with 4 fractional digits. Floats live only inside the
// iteration; inputs and the result are exact decimals.
func ComputeXIRR(flows []Cashflow) *decimal.Decimal {
	if len(flows) < 2 {
		return nil
	}

	t0 := flows[0].Date
	amounts := make([]float64, len(flows))
	years := make([]float64, len(flows))
	for i, f := range flows {
		amounts[i], _ = f.Amount.Float64()
		years[i] = f.Date.Sub(t0).Hours() / 24 / 365.25
	}

	rate := xirrGuess
	for i := 0; i < xirrMaxIters; i++ {
		npv, deriv := 0.0, 0.0
		for j := range amounts {
			base := math.Pow(1+rate, years[j])
			npv += amounts[j] / base
			deriv -= years[j] * amounts[j] / (base * (1 + rate))
		}
		if math.Abs(deriv) < xirrDerivEps {
			return nil
		}
		step := npv / deriv
		rate -= step
		if math.Abs(step) < xirrStepEps {
			if rate <= xirrLowerRate || rate > xirrUpperRate || math.IsNaN(rate) || math.IsInf(rate, 0) {
				return nil
			}
			out := decimal.NewFromFloat(rate * 100).Round(4)
			return &out
		}
	}
	return nil
}
