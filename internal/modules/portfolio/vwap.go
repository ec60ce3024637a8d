package portfolio

import (
	"github.com/shopspring/decimal"

	"github.com/asanchez/btcfolio/internal/domain"
)

// ComputeVWAP is the volume-weighted average USD price of the given
// buys. Transactions with a zero USD unit cost are skipped (untracked
// transfers have no cost information). Returns zero when nothing
// contributes.
func ComputeVWAP(buys []domain.Transaction) decimal.Decimal {
	totalCost, totalQty := decimal.Zero, decimal.Zero
	for _, b := range buys {
		cost := usdUnitCost(b)
		if cost.IsZero() {
			continue
		}
		totalCost = totalCost.Add(cost.Mul(b.Quantity))
		totalQty = totalQty.Add(b.Quantity)
	}
	if !totalQty.IsPositive() {
		return decimal.Zero
	}
	return domain.RoundMoney(totalCost.Div(totalQty))
}
