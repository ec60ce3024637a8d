package sync

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/asanchez/btcfolio/internal/clients/binance"
	"github.com/asanchez/btcfolio/internal/domain"
)

const withdrawalTimeLayout = "2006-01-02 15:04:05"

var one = decimal.NewFromInt(1)

// mapTrade converts one exchange fill. Base and quote are derived from
// the symbol; the raw payload keeps the full pair for cursor queries.
// USD-pegged quotes are valued immediately; EUR quotes wait for the
// enrichment pass and its historical rate.
func mapTrade(accountID uuid.UUID, t binance.Trade) domain.Transaction {
	base, quote := binance.ParseSymbol(t.Symbol)
	txType := domain.TxSell
	if t.IsBuyer {
		txType = domain.TxBuy
	}
	raw, _ := json.Marshal(t)

	tx := domain.Transaction{
		ID:         uuid.New(),
		AccountID:  accountID,
		ExchangeID: strconv.FormatInt(t.ID, 10),
		Type:       txType,
		BaseAsset:  base,
		QuoteAsset: quote,
		Quantity:   t.Qty,
		Price:      decimal.NullDecimal{Decimal: t.Price, Valid: true},
		FeeAsset:   t.CommissionAsset,
		FeeAmount:  decimal.NullDecimal{Decimal: t.Commission, Valid: true},
		ExecutedAt: time.UnixMilli(t.Time).UTC(),
		RawData:    raw,
	}
	if domain.USDQuoteAssets[quote] {
		tx.TotalValueUSD = decimal.NullDecimal{
			Decimal: domain.RoundMoney(t.Price.Mul(t.Qty)),
			Valid:   true,
		}
	}
	return tx
}

// mapDeposit converts one on-chain or internal deposit. Stablecoin and
// fiat deposits get a unit price in their own currency so the USD
// enrichment pass can value them; other coins carry no cost information.
func mapDeposit(accountID uuid.UUID, d binance.Deposit) domain.Transaction {
	raw, _ := json.Marshal(d)
	tx := domain.Transaction{
		ID:         uuid.New(),
		AccountID:  accountID,
		ExchangeID: depositExchangeID(d),
		Type:       domain.TxDeposit,
		BaseAsset:  d.Coin,
		Quantity:   d.Amount,
		ExecutedAt: time.UnixMilli(d.InsertTime).UTC(),
		RawData:    raw,
	}
	if domain.FiatAndStablecoins[d.Coin] {
		tx.QuoteAsset = d.Coin
		tx.Price = decimal.NullDecimal{Decimal: one, Valid: true}
	}
	return tx
}

func depositExchangeID(d binance.Deposit) string {
	if d.ID != "" {
		return "dep-" + d.ID
	}
	return "dep-" + d.TxID
}

// mapWithdrawal converts one withdrawal. ApplyTime arrives as a
// formatted UTC string rather than epoch ms.
func mapWithdrawal(accountID uuid.UUID, w binance.Withdrawal) (domain.Transaction, error) {
	executedAt, err := time.ParseInLocation(withdrawalTimeLayout, w.ApplyTime, time.UTC)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("withdrawal %s: unparsable apply time %q: %w", w.ID, w.ApplyTime, err)
	}

	raw, _ := json.Marshal(w)
	tx := domain.Transaction{
		ID:         uuid.New(),
		AccountID:  accountID,
		ExchangeID: "wd-" + w.ID,
		Type:       domain.TxWithdrawal,
		BaseAsset:  w.Coin,
		Quantity:   w.Amount,
		FeeAsset:   w.Coin,
		FeeAmount:  decimal.NullDecimal{Decimal: w.TransactionFee, Valid: true},
		ExecutedAt: executedAt,
		RawData:    raw,
	}
	if domain.FiatAndStablecoins[w.Coin] {
		tx.QuoteAsset = w.Coin
		tx.Price = decimal.NullDecimal{Decimal: one, Valid: true}
	}
	return tx, nil
}

// mapFiatOrder converts one fiat gateway order into a deposit or
// withdrawal in the order's currency, unit-priced so enrichment can
// convert EUR amounts with the historical rate.
func mapFiatOrder(accountID uuid.UUID, o binance.FiatOrder, txType domain.TxType) domain.Transaction {
	raw, _ := json.Marshal(o)
	return domain.Transaction{
		ID:         uuid.New(),
		AccountID:  accountID,
		ExchangeID: "fiat-" + o.OrderNo,
		Type:       txType,
		BaseAsset:  o.FiatCurrency,
		QuoteAsset: o.FiatCurrency,
		Quantity:   o.Amount,
		Price:      decimal.NullDecimal{Decimal: one, Valid: true},
		FeeAsset:   o.FiatCurrency,
		FeeAmount:  decimal.NullDecimal{Decimal: o.TotalFee, Valid: true},
		ExecutedAt: time.UnixMilli(o.CreateTime).UTC(),
		RawData:    raw,
	}
}

// mapKline converts one candle for persistence.
func mapKline(symbol, interval string, k binance.Kline) domain.Candle {
	return domain.Candle{
		Symbol:   symbol,
		Interval: interval,
		OpenAt:   time.UnixMilli(k.OpenTime).UTC(),
		Open:     k.Open,
		High:     k.High,
		Low:      k.Low,
		Close:    k.Close,
		Volume:   k.Volume,
	}
}
