// Package sync orchestrates the full exchange download: balances,
// prices, trades, transfers, and fiat orders, each step isolated so one
// failure never aborts the rest, followed by USD enrichment.
package sync

import "time"

// Stats accumulates one sync run's counters and step errors.
type Stats struct {
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
	BalancesSaved    int       `json:"balances_saved"`
	PricesSaved      int       `json:"prices_saved"`
	TradesSaved      int       `json:"trades_saved"`
	DepositsSaved    int       `json:"deposits_saved"`
	WithdrawalsSaved int       `json:"withdrawals_saved"`
	FiatOrdersSaved  int       `json:"fiat_orders_saved"`
	Enriched         int       `json:"enriched"`
	Errors           []string  `json:"errors"`
}

// TotalRecords sums everything persisted during the run.
func (s *Stats) TotalRecords() int {
	return s.BalancesSaved + s.PricesSaved + s.TradesSaved +
		s.DepositsSaved + s.WithdrawalsSaved + s.FiatOrdersSaved
}

// HasErrors reports whether any step recorded a failure.
func (s *Stats) HasErrors() bool {
	return len(s.Errors) > 0
}
