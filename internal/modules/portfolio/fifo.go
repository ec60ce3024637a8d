// Package portfolio computes portfolio analytics: pure numeric kernels
// (FIFO, VWAP, drawdown, XIRR) and the services composing them with
// persisted transactions, balances, and price history.
package portfolio

import (
	"github.com/shopspring/decimal"

	"github.com/asanchez/btcfolio/internal/domain"
)

// Lot is an unconsumed acquisition tranche in the FIFO queue.
type Lot struct {
	Quantity    decimal.Decimal
	UnitCostUSD decimal.Decimal
	UnitCostEUR decimal.Decimal
}

// FIFOResult is the outcome of consuming sells against the lot queue.
type FIFOResult struct {
	RemainingLots  []Lot
	RealizedPnLUSD decimal.Decimal
	CostBasisUSD   decimal.Decimal
	CostBasisEUR   decimal.Decimal
	RemainingQty   decimal.Decimal
}

// usdUnitCost derives the per-unit USD cost of a transaction: enriched
// total value divided by quantity when available, else the stored price
// taken as USD-equivalent, else zero.
func usdUnitCost(t domain.Transaction) decimal.Decimal {
	if t.TotalValueUSD.Valid && t.Quantity.IsPositive() {
		return domain.RoundMoney(t.TotalValueUSD.Decimal.Div(t.Quantity))
	}
	if t.Price.Valid {
		return t.Price.Decimal
	}
	return decimal.Zero
}

// eurUnitCost derives the per-unit EUR cost. EUR-quoted trades carry it
// exactly; everything else divides the USD cost by the current EUR/USD
// rate, the best approximation absent per-transaction historical rates.
func eurUnitCost(t domain.Transaction, eurUSD decimal.Decimal) decimal.Decimal {
	if t.QuoteAsset == "EUR" && t.Price.Valid {
		return t.Price.Decimal
	}
	if eurUSD.IsPositive() {
		return domain.RoundMoney(usdUnitCost(t).Div(eurUSD))
	}
	return decimal.Zero
}

// ComputeFIFO consumes sell-like events against buy-like lots oldest
// first. Inputs must already be in chronological order. Sells exceeding
// the available lots are silently discarded, a deliberate tolerance for
// history gaps (transfers in from elsewhere, pre-tracking activity).
func ComputeFIFO(buys, sells []domain.Transaction, eurUSD decimal.Decimal) FIFOResult {
	lots := make([]Lot, 0, len(buys))
	for _, b := range buys {
		lots = append(lots, Lot{
			Quantity:    b.Quantity,
			UnitCostUSD: usdUnitCost(b),
			UnitCostEUR: eurUnitCost(b, eurUSD),
		})
	}

	realized := decimal.Zero
	for _, s := range sells {
		sellPrice := usdUnitCost(s)
		remaining := s.Quantity
		for remaining.IsPositive() && len(lots) > 0 {
			head := lots[0]
			if head.Quantity.LessThanOrEqual(remaining) {
				realized = realized.Add(sellPrice.Sub(head.UnitCostUSD).Mul(head.Quantity))
				remaining = remaining.Sub(head.Quantity)
				lots = lots[1:]
			} else {
				realized = realized.Add(sellPrice.Sub(head.UnitCostUSD).Mul(remaining))
				lots[0].Quantity = head.Quantity.Sub(remaining)
				remaining = decimal.Zero
			}
		}
	}

	basisUSD, basisEUR, qty := decimal.Zero, decimal.Zero, decimal.Zero
	for _, lot := range lots {
		basisUSD = basisUSD.Add(lot.Quantity.Mul(lot.UnitCostUSD))
		basisEUR = basisEUR.Add(lot.Quantity.Mul(lot.UnitCostEUR))
		qty = qty.Add(lot.Quantity)
	}

	return FIFOResult{
		RemainingLots:  lots,
		RealizedPnLUSD: domain.RoundMoney(realized),
		CostBasisUSD:   domain.RoundMoney(basisUSD),
		CostBasisEUR:   domain.RoundMoney(basisEUR),
		RemainingQty:   qty,
	}
}
