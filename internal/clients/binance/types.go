package binance

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// AccountInfo is the signed /api/v3/account response.
type AccountInfo struct {
	Balances []Balance `json:"balances"`
}

// Balance is one asset's free and locked amounts.
type Balance struct {
	Asset  string          `json:"asset"`
	Free   decimal.Decimal `json:"free"`
	Locked decimal.Decimal `json:"locked"`
}

// Trade is one fill from /api/v3/myTrades. The endpoint does not return
// base/quote assets; callers derive them from Symbol.
type Trade struct {
	ID              int64           `json:"id"`
	Symbol          string          `json:"symbol"`
	OrderID         int64           `json:"orderId"`
	Price           decimal.Decimal `json:"price"`
	Qty             decimal.Decimal `json:"qty"`
	QuoteQty        decimal.Decimal `json:"quoteQty"`
	Commission      decimal.Decimal `json:"commission"`
	CommissionAsset string          `json:"commissionAsset"`
	Time            int64           `json:"time"` // epoch ms
	IsBuyer         bool            `json:"isBuyer"`
}

// Deposit is one row from /sapi/v1/capital/deposit/hisrec.
type Deposit struct {
	ID         string          `json:"id"`
	TxID       string          `json:"txId"`
	Coin       string          `json:"coin"`
	Amount     decimal.Decimal `json:"amount"`
	Status     int             `json:"status"`
	InsertTime int64           `json:"insertTime"` // epoch ms
}

// Withdrawal is one row from /sapi/v1/capital/withdraw/history.
type Withdrawal struct {
	ID             string          `json:"id"`
	TxID           string          `json:"txId"`
	Coin           string          `json:"coin"`
	Amount         decimal.Decimal `json:"amount"`
	TransactionFee decimal.Decimal `json:"transactionFee"`
	Status         int             `json:"status"`
	ApplyTime      string          `json:"applyTime"` // "2006-01-02 15:04:05" UTC
}

// FiatOrder is one row from /sapi/v1/fiat/orders.
type FiatOrder struct {
	OrderNo      string          `json:"orderNo"`
	FiatCurrency string          `json:"fiatCurrency"`
	Amount       decimal.Decimal `json:"amount"`
	TotalFee     decimal.Decimal `json:"totalFee"`
	Status       string          `json:"status"`
	CreateTime   int64           `json:"createTime"` // epoch ms
}

// Completed reports whether the order actually settled. The endpoint
// also returns failed and expired orders.
func (o FiatOrder) Completed() bool {
	return o.Status == "Successful" || o.Status == "Completed"
}

// fiatOrdersResponse wraps the fiat endpoint's envelope.
type fiatOrdersResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Data    []FiatOrder `json:"data"`
	Total   int         `json:"total"`
}

// TickerPrice is the /api/v3/ticker/price response.
type TickerPrice struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
}

// Kline is one OHLCV candle. The exchange serializes klines as
// heterogeneous JSON arrays, so the type carries a custom unmarshaller.
type Kline struct {
	OpenTime  int64 // epoch ms
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
	CloseTime int64
}

// UnmarshalJSON decodes the exchange's positional kline array:
// [openTime, open, high, low, close, volume, closeTime, ...].
func (k *Kline) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) < 7 {
		return fmt.Errorf("kline array too short: %d fields", len(raw))
	}
	if err := json.Unmarshal(raw[0], &k.OpenTime); err != nil {
		return fmt.Errorf("kline open time: %w", err)
	}
	fields := []struct {
		idx int
		dst *decimal.Decimal
	}{
		{1, &k.Open}, {2, &k.High}, {3, &k.Low}, {4, &k.Close}, {5, &k.Volume},
	}
	for _, f := range fields {
		if err := json.Unmarshal(raw[f.idx], f.dst); err != nil {
			return fmt.Errorf("kline field %d: %w", f.idx, err)
		}
	}
	if err := json.Unmarshal(raw[6], &k.CloseTime); err != nil {
		return fmt.Errorf("kline close time: %w", err)
	}
	return nil
}

// IntervalStep returns the duration one interval advances the kline
// cursor by.
func IntervalStep(interval string) int64 {
	const day = 24 * 60 * 60 * 1000
	switch interval {
	case "1w":
		return 7 * day
	case "1M":
		return 30 * day
	default: // 1d
		return day
	}
}
