package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account is the single configured exchange account.
type Account struct {
	ID                 uuid.UUID
	Name               string
	APIKeyEncrypted    string
	APISecretEncrypted string
	LastSyncAt         *time.Time
	SyncStatus         SyncStatus
	CreatedAt          time.Time
}

// Transaction is one exchange event (trade, transfer, fiat order).
// Monetary fields are exact decimals; optional ones use NullDecimal.
type Transaction struct {
	ID            uuid.UUID
	AccountID     uuid.UUID
	ExchangeID    string // exchange-native id, unique when non-empty
	Type          TxType
	BaseAsset     string
	QuoteAsset    string // empty for transfers
	Quantity      decimal.Decimal
	Price         decimal.NullDecimal
	TotalValueUSD decimal.NullDecimal
	FeeAsset      string
	FeeAmount     decimal.NullDecimal
	ExecutedAt    time.Time
	RawData       json.RawMessage // original exchange payload, keeps the full pair for trades
}

// ValueUSD resolves the transaction's USD amount: total_value_usd when
// set, else price*quantity, else zero.
func (t Transaction) ValueUSD() decimal.Decimal {
	if t.TotalValueUSD.Valid {
		return t.TotalValueUSD.Decimal
	}
	if t.Price.Valid {
		return t.Price.Decimal.Mul(t.Quantity)
	}
	return decimal.Zero
}

// BalanceSnapshot is an append-only per-asset balance observation.
type BalanceSnapshot struct {
	AccountID  uuid.UUID
	Asset      string
	Free       decimal.Decimal
	Locked     decimal.Decimal
	ValueUSD   decimal.NullDecimal
	SnapshotAt time.Time
}

// Total is the spendable balance: free + locked.
func (b BalanceSnapshot) Total() decimal.Decimal {
	return b.Free.Add(b.Locked)
}

// Candle is one OHLCV row keyed by (symbol, interval, open_at).
type Candle struct {
	Symbol   string
	Interval string // 1d | 1w | 1M
	OpenAt   time.Time
	Open     decimal.Decimal
	High     decimal.Decimal
	Low      decimal.Decimal
	Close    decimal.Decimal
	Volume   decimal.Decimal
}

// PortfolioSnapshot caches one day's portfolio totals.
type PortfolioSnapshot struct {
	AccountID        uuid.UUID
	SnapshotDate     time.Time // date, midnight UTC
	TotalValueUSD    decimal.Decimal
	InvestedUSD      decimal.Decimal
	PnLUnrealizedUSD decimal.Decimal
	PnLRealizedUSD   decimal.Decimal
	BTCQuantity      decimal.NullDecimal
	BTCAvgBuyPrice   decimal.NullDecimal
	Composition      json.RawMessage
}
