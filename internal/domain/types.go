// Package domain holds the exchange-agnostic types shared by the sync
// pipeline and the analytics services: transaction taxonomy, balance and
// price records, and the exact-decimal rounding contracts.
package domain

// TxType classifies a transaction row.
type TxType string

const (
	TxBuy           TxType = "buy"
	TxSell          TxType = "sell"
	TxDeposit       TxType = "deposit"
	TxWithdrawal    TxType = "withdrawal"
	TxConvert       TxType = "convert"
	TxEarnInterest  TxType = "earn_interest"
	TxStakingReward TxType = "staking_reward"
)

// BuyTypes are the acquisition-like types that create FIFO lots.
var BuyTypes = map[TxType]bool{
	TxBuy:           true,
	TxDeposit:       true,
	TxEarnInterest:  true,
	TxStakingReward: true,
}

// SellTypes are the disposal-like types that consume FIFO lots.
var SellTypes = map[TxType]bool{
	TxSell:       true,
	TxWithdrawal: true,
}

// USDQuoteAssets are quote currencies treated as 1:1 with USD.
var USDQuoteAssets = map[string]bool{
	"USDT": true, "USDC": true, "BUSD": true, "FDUSD": true,
	"DAI": true, "TUSD": true, "USDP": true, "USD": true,
}

// FiatAndStablecoins holds assets whose disposal counts as capital leaving
// the portfolio (used by invested-capital and cashflow calculations).
var FiatAndStablecoins = map[string]bool{
	"EUR": true, "USD": true, "GBP": true, "CHF": true,
	"USDT": true, "USDC": true, "BUSD": true, "FDUSD": true,
	"DAI": true, "TUSD": true, "USDP": true,
}

// Stablecoins valued 1:1 against USD.
var Stablecoins = map[string]bool{
	"USDT": true, "USDC": true, "BUSD": true, "FDUSD": true, "DAI": true, "TUSD": true,
}

// SyncStatus is the account-level sync state machine.
type SyncStatus string

const (
	SyncIdle    SyncStatus = "idle"
	SyncSyncing SyncStatus = "syncing"
	SyncError   SyncStatus = "error"
)
