package transactions

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asanchez/btcfolio/internal/database"
	"github.com/asanchez/btcfolio/internal/domain"
)

func testRepo(t *testing.T) (*Repository, *sql.DB, uuid.UUID) {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.New(database.Config{
		Path: fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
		Name: "test",
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	accountID := uuid.New()
	_, err = db.Conn().Exec(`INSERT INTO accounts (id, name, sync_status, created_at) VALUES (?, 'test', 'idle', 0)`,
		accountID.String())
	require.NoError(t, err)

	return NewRepository(db.Conn(), zerolog.Nop()), db.Conn(), accountID
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func nd(s string) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: dec(s), Valid: true}
}

func day(s string) time.Time {
	d, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		panic(err)
	}
	return d
}

func makeTrade(accountID uuid.UUID, exchangeID, symbol, quote, executed string) domain.Transaction {
	raw, _ := json.Marshal(map[string]string{"symbol": symbol})
	return domain.Transaction{
		ID:         uuid.New(),
		AccountID:  accountID,
		ExchangeID: exchangeID,
		Type:       domain.TxBuy,
		BaseAsset:  "BTC",
		QuoteAsset: quote,
		Quantity:   dec("0.1"),
		Price:      nd("30000"),
		ExecutedAt: day(executed),
		RawData:    raw,
	}
}

func seedDailyClose(t *testing.T, conn *sql.DB, symbol, date, close string) {
	t.Helper()
	_, err := conn.Exec(`
		INSERT INTO price_history (symbol, interval, open_at, open, high, low, close, volume)
		VALUES (?, '1d', ?, ?, ?, ?, ?, '0')`,
		symbol, day(date).UnixMilli(), close, close, close, close)
	require.NoError(t, err)
}

func TestUpsert_SecondRunInsertsNothing(t *testing.T) {
	repo, _, accountID := testRepo(t)

	batch := []domain.Transaction{
		makeTrade(accountID, "1", "BTCUSDT", "USDT", "2023-01-01"),
		makeTrade(accountID, "2", "BTCUSDT", "USDT", "2023-01-02"),
	}

	inserted, err := repo.Upsert(batch)
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)

	// Re-running the identical batch must be a no-op.
	inserted, err = repo.Upsert(batch)
	require.NoError(t, err)
	assert.Equal(t, 0, inserted)

	all, err := repo.ForAccount(accountID)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestUpsert_AllowsMultipleRowsWithoutExchangeID(t *testing.T) {
	repo, _, accountID := testRepo(t)

	a := makeTrade(accountID, "", "BTCUSDT", "USDT", "2023-01-01")
	b := makeTrade(accountID, "", "BTCUSDT", "USDT", "2023-01-02")

	inserted, err := repo.Upsert([]domain.Transaction{a, b})
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)
}

func TestLastTradeID_MatchesFullPairNotBaseAsset(t *testing.T) {
	repo, _, accountID := testRepo(t)

	_, err := repo.Upsert([]domain.Transaction{
		makeTrade(accountID, "5", "BTCUSDT", "USDT", "2023-01-01"),
		makeTrade(accountID, "9", "BTCUSDT", "USDT", "2023-01-02"),
		makeTrade(accountID, "100", "BTCEUR", "EUR", "2023-01-03"),
	})
	require.NoError(t, err)

	last, ok, err := repo.LastTradeID(accountID, "BTCUSDT")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(9), last)

	last, ok, err = repo.LastTradeID(accountID, "BTCEUR")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(100), last)

	_, ok, err = repo.LastTradeID(accountID, "BTCFDUSD")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFirstTradeTime_OldestWins(t *testing.T) {
	repo, _, accountID := testRepo(t)

	_, err := repo.Upsert([]domain.Transaction{
		makeTrade(accountID, "2", "BTCUSDT", "USDT", "2023-03-01"),
		makeTrade(accountID, "1", "BTCUSDT", "USDT", "2023-01-15"),
	})
	require.NoError(t, err)

	first, ok, err := repo.FirstTradeTime(accountID, "BTCUSDT")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, day("2023-01-15"), first)
}

func TestLastTimestamp_PerType(t *testing.T) {
	repo, _, accountID := testRepo(t)

	dep := makeTrade(accountID, "dep-1", "", "USDT", "2023-02-01")
	dep.Type = domain.TxDeposit
	dep.BaseAsset = "USDT"
	dep.RawData = nil

	_, err := repo.Upsert([]domain.Transaction{
		makeTrade(accountID, "1", "BTCUSDT", "USDT", "2023-01-01"),
		dep,
	})
	require.NoError(t, err)

	last, ok, err := repo.LastTimestamp(accountID, domain.TxDeposit)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, day("2023-02-01").UnixMilli(), last)

	_, ok, err = repo.LastTimestamp(accountID, domain.TxWithdrawal)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEnrichTotalValueUSD_StablecoinQuote(t *testing.T) {
	repo, _, accountID := testRepo(t)

	tx := makeTrade(accountID, "1", "BTCUSDT", "USDT", "2023-01-01")
	tx.Quantity = dec("0.5")
	tx.Price = nd("30000")
	_, err := repo.Upsert([]domain.Transaction{tx})
	require.NoError(t, err)

	enriched, err := repo.EnrichTotalValueUSD(accountID)
	require.NoError(t, err)
	assert.Equal(t, 1, enriched)

	all, err := repo.ForAccount(accountID)
	require.NoError(t, err)
	require.True(t, all[0].TotalValueUSD.Valid)
	assert.Equal(t, "15000.00000000", all[0].TotalValueUSD.Decimal.String())
}

func TestEnrichTotalValueUSD_EURQuoteUsesHistoricalClose(t *testing.T) {
	repo, conn, accountID := testRepo(t)

	seedDailyClose(t, conn, "EURUSDT", "2023-01-01", "1.10")

	tx := makeTrade(accountID, "1", "BTCEUR", "EUR", "2023-01-01")
	tx.Quantity = dec("0.1")
	tx.Price = nd("50000")
	_, err := repo.Upsert([]domain.Transaction{tx})
	require.NoError(t, err)

	enriched, err := repo.EnrichTotalValueUSD(accountID)
	require.NoError(t, err)
	assert.Equal(t, 1, enriched)

	all, err := repo.ForAccount(accountID)
	require.NoError(t, err)
	require.True(t, all[0].TotalValueUSD.Valid)
	// 50000 * 0.1 * 1.10
	assert.Equal(t, "5500.00000000", all[0].TotalValueUSD.Decimal.String())
}

func TestEnrichTotalValueUSD_EURQuoteWithoutCloseStaysNull(t *testing.T) {
	repo, _, accountID := testRepo(t)

	tx := makeTrade(accountID, "1", "BTCEUR", "EUR", "2023-01-01")
	_, err := repo.Upsert([]domain.Transaction{tx})
	require.NoError(t, err)

	enriched, err := repo.EnrichTotalValueUSD(accountID)
	require.NoError(t, err)
	assert.Equal(t, 0, enriched)

	all, err := repo.ForAccount(accountID)
	require.NoError(t, err)
	assert.False(t, all[0].TotalValueUSD.Valid)
}

func TestEnrichTotalValueUSD_OnlyTouchesNullRows(t *testing.T) {
	repo, _, accountID := testRepo(t)

	done := makeTrade(accountID, "1", "BTCUSDT", "USDT", "2023-01-01")
	done.TotalValueUSD = nd("3333.00000000")
	fresh := makeTrade(accountID, "2", "BTCUSDT", "USDT", "2023-01-02")

	_, err := repo.Upsert([]domain.Transaction{done, fresh})
	require.NoError(t, err)

	enriched, err := repo.EnrichTotalValueUSD(accountID)
	require.NoError(t, err)
	assert.Equal(t, 1, enriched)

	// A second pass finds nothing left to fill.
	enriched, err = repo.EnrichTotalValueUSD(accountID)
	require.NoError(t, err)
	assert.Equal(t, 0, enriched)

	all, err := repo.ForAccount(accountID)
	require.NoError(t, err)
	assert.Equal(t, "3333.00000000", all[0].TotalValueUSD.Decimal.String())
}

func TestBuysUntil_FiltersTypeAndBoundary(t *testing.T) {
	repo, _, accountID := testRepo(t)

	sell := makeTrade(accountID, "2", "BTCUSDT", "USDT", "2023-01-05")
	sell.Type = domain.TxSell
	late := makeTrade(accountID, "3", "BTCUSDT", "USDT", "2023-06-01")

	_, err := repo.Upsert([]domain.Transaction{
		makeTrade(accountID, "1", "BTCUSDT", "USDT", "2023-01-01"),
		sell,
		late,
	})
	require.NoError(t, err)

	buys, err := repo.BuysUntil(accountID, day("2023-02-01"))
	require.NoError(t, err)
	require.Len(t, buys, 1)
	assert.Equal(t, "1", buys[0].ExchangeID)
}

func TestSellsBetween_InclusiveRange(t *testing.T) {
	repo, _, accountID := testRepo(t)

	mk := func(id, date string) domain.Transaction {
		s := makeTrade(accountID, id, "BTCUSDT", "USDT", date)
		s.Type = domain.TxSell
		return s
	}
	_, err := repo.Upsert([]domain.Transaction{
		mk("1", "2022-12-31"), mk("2", "2023-01-01"), mk("3", "2023-12-31"), mk("4", "2024-01-01"),
	})
	require.NoError(t, err)

	sells, err := repo.SellsBetween(accountID, day("2023-01-01"), day("2023-12-31"))
	require.NoError(t, err)
	require.Len(t, sells, 2)
	assert.Equal(t, "2", sells[0].ExchangeID)
	assert.Equal(t, "3", sells[1].ExchangeID)
}
