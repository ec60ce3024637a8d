package sync

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asanchez/btcfolio/internal/clients/binance"
	"github.com/asanchez/btcfolio/internal/domain"
)

func TestMapTrade_BuySide(t *testing.T) {
	accountID := uuid.New()
	trade := binance.Trade{
		ID:              42,
		Symbol:          "BTCEUR",
		Price:           decimal.NewFromInt(28000),
		Qty:             decimal.NewFromFloat(0.25),
		Commission:      decimal.NewFromFloat(0.001),
		CommissionAsset: "BNB",
		Time:            1672656000000, // 2023-01-02 10:40 UTC
		IsBuyer:         true,
	}

	tx := mapTrade(accountID, trade)

	assert.Equal(t, "42", tx.ExchangeID)
	assert.Equal(t, domain.TxBuy, tx.Type)
	assert.Equal(t, "BTC", tx.BaseAsset)
	assert.Equal(t, "EUR", tx.QuoteAsset)
	assert.True(t, tx.Price.Decimal.Equal(decimal.NewFromInt(28000)))
	assert.Equal(t, "BNB", tx.FeeAsset)
	assert.Equal(t, time.UnixMilli(1672656000000).UTC(), tx.ExecutedAt)
	// EUR quotes wait for the historical-rate enrichment pass.
	assert.False(t, tx.TotalValueUSD.Valid)
	// The raw payload keeps the full pair for cursor queries.
	assert.Contains(t, string(tx.RawData), `"symbol":"BTCEUR"`)
}

func TestMapTrade_StableQuoteValuedImmediately(t *testing.T) {
	tx := mapTrade(uuid.New(), binance.Trade{
		ID: 7, Symbol: "BTCUSDT", Price: decimal.NewFromInt(30000),
		Qty: decimal.NewFromFloat(0.5), IsBuyer: true, Time: 1672656000000,
	})

	require.True(t, tx.TotalValueUSD.Valid)
	assert.Equal(t, "15000.00000000", tx.TotalValueUSD.Decimal.String())
}

func TestMapTrade_SellSide(t *testing.T) {
	tx := mapTrade(uuid.New(), binance.Trade{ID: 1, Symbol: "BTCUSDT", IsBuyer: false})
	assert.Equal(t, domain.TxSell, tx.Type)
}

func TestMapDeposit_StablecoinGetsUnitPrice(t *testing.T) {
	tx := mapDeposit(uuid.New(), binance.Deposit{
		ID: "d1", Coin: "USDT", Amount: decimal.NewFromInt(1000), InsertTime: 1672656000000,
	})

	assert.Equal(t, "dep-d1", tx.ExchangeID)
	assert.Equal(t, domain.TxDeposit, tx.Type)
	assert.Equal(t, "USDT", tx.QuoteAsset)
	require.True(t, tx.Price.Valid)
	assert.True(t, tx.Price.Decimal.Equal(decimal.NewFromInt(1)))
}

func TestMapDeposit_CryptoCarriesNoCost(t *testing.T) {
	tx := mapDeposit(uuid.New(), binance.Deposit{
		TxID: "0xabc", Coin: "BTC", Amount: decimal.NewFromFloat(0.5),
	})

	// Falls back to the chain tx id when the exchange id is absent.
	assert.Equal(t, "dep-0xabc", tx.ExchangeID)
	assert.Empty(t, tx.QuoteAsset)
	assert.False(t, tx.Price.Valid)
}

func TestMapWithdrawal_ParsesApplyTime(t *testing.T) {
	tx, err := mapWithdrawal(uuid.New(), binance.Withdrawal{
		ID: "w1", Coin: "BTC", Amount: decimal.NewFromFloat(0.1),
		TransactionFee: decimal.NewFromFloat(0.0005), ApplyTime: "2023-03-01 08:30:00",
	})
	require.NoError(t, err)

	assert.Equal(t, "wd-w1", tx.ExchangeID)
	assert.Equal(t, domain.TxWithdrawal, tx.Type)
	assert.Equal(t, time.Date(2023, 3, 1, 8, 30, 0, 0, time.UTC), tx.ExecutedAt)
	assert.Equal(t, "BTC", tx.FeeAsset)
}

func TestMapWithdrawal_RejectsUnparsableApplyTime(t *testing.T) {
	_, err := mapWithdrawal(uuid.New(), binance.Withdrawal{ID: "w1", ApplyTime: "yesterday"})
	assert.Error(t, err)
}

func TestMapFiatOrder_UnitPricedInOwnCurrency(t *testing.T) {
	tx := mapFiatOrder(uuid.New(), binance.FiatOrder{
		OrderNo: "f1", FiatCurrency: "EUR", Amount: decimal.NewFromInt(500),
		TotalFee: decimal.NewFromInt(2), CreateTime: 1672656000000,
	}, domain.TxDeposit)

	assert.Equal(t, "fiat-f1", tx.ExchangeID)
	assert.Equal(t, "EUR", tx.BaseAsset)
	assert.Equal(t, "EUR", tx.QuoteAsset)
	require.True(t, tx.Price.Valid)
	assert.True(t, tx.Price.Decimal.Equal(decimal.NewFromInt(1)))
	require.True(t, tx.FeeAmount.Valid)
	assert.True(t, tx.FeeAmount.Decimal.Equal(decimal.NewFromInt(2)))
}
