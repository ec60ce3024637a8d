package portfolio

import (
	"database/sql"
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
	"github.com/asanchez/btcfolio/internal/modules/balances"
	"github.com/asanchez/btcfolio/internal/modules/prices"
	"github.com/asanchez/btcfolio/internal/modules/transactions"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.New(database.Config{
		Path: fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
		Name: "test",
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db.Conn()
}

type fixture struct {
	svc       *Service
	txRepo    *transactions.Repository
	balRepo   *balances.Repository
	priceRepo *prices.Repository
	accountID uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := testDB(t)
	log := zerolog.Nop()

	accountID := uuid.New()
	_, err := conn.Exec(`INSERT INTO accounts (id, name, sync_status, created_at) VALUES (?, 'test', 'idle', 0)`,
		accountID.String())
	require.NoError(t, err)

	txRepo := transactions.NewRepository(conn, log)
	balRepo := balances.NewRepository(conn, log)
	priceRepo := prices.NewRepository(conn, log)
	snapRepo := NewSnapshotRepository(conn, log)

	return &fixture{
		svc:       NewService(txRepo, balRepo, priceRepo, snapRepo, log),
		txRepo:    txRepo,
		balRepo:   balRepo,
		priceRepo: priceRepo,
		accountID: accountID,
	}
}

func (f *fixture) seedTx(t *testing.T, txType domain.TxType, day, asset, quote, qty, price, totalUSD string) {
	t.Helper()
	executedAt, _ := time.ParseInLocation("2006-01-02", day, time.UTC)
	tx := domain.Transaction{
		ID:         uuid.New(),
		AccountID:  f.accountID,
		ExchangeID: uuid.NewString(),
		Type:       txType,
		BaseAsset:  asset,
		QuoteAsset: quote,
		Quantity:   dec(qty),
		ExecutedAt: executedAt,
	}
	if price != "" {
		tx.Price = decimal.NullDecimal{Decimal: dec(price), Valid: true}
	}
	if totalUSD != "" {
		tx.TotalValueUSD = decimal.NullDecimal{Decimal: dec(totalUSD), Valid: true}
	}
	_, err := f.txRepo.Upsert([]domain.Transaction{tx})
	require.NoError(t, err)
}

func (f *fixture) seedBalance(t *testing.T, asset, free string, at time.Time) {
	t.Helper()
	require.NoError(t, f.balRepo.Append([]domain.BalanceSnapshot{{
		AccountID:  f.accountID,
		Asset:      asset,
		Free:       dec(free),
		Locked:     decimal.Zero,
		SnapshotAt: at,
	}}))
}

func (f *fixture) seedDailyClose(t *testing.T, symbol, day, close string) {
	t.Helper()
	openAt, _ := time.ParseInLocation("2006-01-02", day, time.UTC)
	_, err := f.priceRepo.Upsert([]domain.Candle{{
		Symbol: symbol, Interval: "1d", OpenAt: openAt,
		Open: dec(close), High: dec(close), Low: dec(close),
		Close: dec(close), Volume: decimal.Zero,
	}})
	require.NoError(t, err)
}

func TestAssetMetrics_FIFOAgainstCurrentPrice(t *testing.T) {
	f := newFixture(t)
	now := time.Now().UTC()

	f.seedTx(t, domain.TxBuy, "2023-01-10", "BTC", "USDT", "1.0", "30000", "30000")
	f.seedBalance(t, "BTC", "1.0", now)
	f.seedDailyClose(t, "BTCUSDT", now.Format("2006-01-02"), "40000")

	metrics, err := f.svc.AssetMetrics(f.accountID)
	require.NoError(t, err)
	require.Len(t, metrics, 1)

	m := metrics[0]
	assert.Equal(t, "BTC", m.Asset)
	assert.True(t, m.ValueUSD.Equal(dec("40000")), "value = %s", m.ValueUSD)
	assert.True(t, m.CostBasisUSD.Equal(dec("30000")))
	assert.True(t, m.PnLUSD.Equal(dec("10000")))
	assert.True(t, m.PnLPct.Equal(dec("33.33")))
	assert.True(t, m.PortfolioPct.Equal(dec("100.00")))
}

func TestAssetMetrics_SkipsZeroBalances(t *testing.T) {
	f := newFixture(t)
	now := time.Now().UTC()

	f.seedBalance(t, "BTC", "0", now)
	f.seedBalance(t, "USDT", "500", now)

	metrics, err := f.svc.AssetMetrics(f.accountID)
	require.NoError(t, err)
	require.Len(t, metrics, 1)
	assert.Equal(t, "USDT", metrics[0].Asset)
	assert.True(t, metrics[0].ValueUSD.Equal(dec("500")))
}

func TestOverview_InvestedAndROI(t *testing.T) {
	f := newFixture(t)
	now := time.Now().UTC()

	// 10k USDT in, all spent on 0.5 BTC now worth 25k.
	f.seedTx(t, domain.TxDeposit, "2023-01-01", "USDT", "USDT", "10000", "1", "10000")
	f.seedTx(t, domain.TxBuy, "2023-01-05", "BTC", "USDT", "0.5", "20000", "10000")
	f.seedBalance(t, "BTC", "0.5", now)
	f.seedDailyClose(t, "BTCUSDT", now.Format("2006-01-02"), "50000")

	overview, err := f.svc.Overview(f.accountID)
	require.NoError(t, err)

	assert.True(t, overview.TotalValueUSD.Equal(dec("25000")), "total = %s", overview.TotalValueUSD)
	assert.True(t, overview.InvestedUSD.Equal(dec("20000")), "invested = %s", overview.InvestedUSD)
	assert.True(t, overview.PnLUSD.Equal(dec("5000")))
	assert.True(t, overview.ROIPct.Equal(dec("25.00")))
	assert.NotNil(t, overview.IRRAnnualPct)
}

func TestOverview_FiatSellDoesNotReduceInvested(t *testing.T) {
	f := newFixture(t)

	// 1000 EUR deposited (worth 1100 USD), 500 EUR later sold for USDT,
	// 200 EUR withdrawn. Only the withdrawal takes capital out.
	f.seedTx(t, domain.TxDeposit, "2023-01-01", "EUR", "EUR", "1000", "1", "1100")
	f.seedTx(t, domain.TxSell, "2023-02-01", "EUR", "USDT", "500", "1.10", "550")
	f.seedTx(t, domain.TxWithdrawal, "2023-03-01", "EUR", "EUR", "200", "1", "200")

	overview, err := f.svc.Overview(f.accountID)
	require.NoError(t, err)

	assert.True(t, overview.InvestedUSD.Equal(dec("900")), "invested = %s", overview.InvestedUSD)
}

func TestPerformanceHistory_SyntheticSeries(t *testing.T) {
	f := newFixture(t)

	f.seedDailyClose(t, "BTCUSDT", "2023-01-01", "30000")
	f.seedDailyClose(t, "BTCUSDT", "2023-01-02", "35000")
	f.seedDailyClose(t, "BTCUSDT", "2023-01-03", "28000")
	f.seedTx(t, domain.TxBuy, "2023-01-02", "BTC", "USDT", "1.0", "35000", "35000")

	from, _ := time.ParseInLocation("2006-01-02", "2023-01-01", time.UTC)
	to, _ := time.ParseInLocation("2006-01-02", "2023-01-04", time.UTC)

	points, err := f.svc.PerformanceHistory(f.accountID, from, to)
	require.NoError(t, err)

	// The day before the first buy produces no point.
	require.Len(t, points, 2)
	assert.Equal(t, "2023-01-02", points[0].Date.Format("2006-01-02"))
	assert.True(t, points[0].ValueUSD.Equal(dec("35000")))
	assert.True(t, points[0].InvestedUSD.Equal(dec("35000")))
	assert.True(t, points[1].ValueUSD.Equal(dec("28000")))
	assert.True(t, points[1].PnLUSD.Equal(dec("-7000")))
}

func TestDCAAnalysis_CumulativeTable(t *testing.T) {
	f := newFixture(t)

	f.seedTx(t, domain.TxBuy, "2023-01-01", "BTC", "USDT", "1.0", "30000", "30000")
	f.seedTx(t, domain.TxBuy, "2023-02-01", "BTC", "USDT", "1.0", "50000", "50000")

	analysis, err := f.svc.DCAAnalysis(f.accountID, "BTC")
	require.NoError(t, err)
	require.Len(t, analysis.Rows, 2)

	assert.True(t, analysis.Rows[0].VWAPUSD.Equal(dec("30000")))
	assert.True(t, analysis.Rows[1].CumQuantity.Equal(dec("2.0")))
	assert.True(t, analysis.Rows[1].CumCostUSD.Equal(dec("80000")))
	assert.True(t, analysis.Rows[1].VWAPUSD.Equal(dec("40000")))
	assert.True(t, analysis.VWAPUSD.Equal(dec("40000")))
	// No balance snapshot: falls back to net transacted quantity.
	assert.True(t, analysis.CurrentQty.Equal(dec("2.0")))
}

func TestFiscalYear_UsesPreYearLots(t *testing.T) {
	f := newFixture(t)

	// Bought in 2022, sold in 2023: the 2022 lot determines the basis.
	f.seedTx(t, domain.TxBuy, "2022-06-01", "BTC", "USDT", "1.0", "20000", "20000")
	f.seedTx(t, domain.TxSell, "2023-03-01", "BTC", "USDT", "1.0", "30000", "30000")

	report, err := f.svc.FiscalYear(f.accountID, 2023)
	require.NoError(t, err)
	require.Len(t, report.Assets, 1)

	assert.Equal(t, "BTC", report.Assets[0].Asset)
	assert.True(t, report.Assets[0].RealizedPnLUSD.Equal(dec("10000")),
		"realized = %s", report.Assets[0].RealizedPnLUSD)
	assert.True(t, report.TotalPnLUSD.Equal(dec("10000")))
	assert.Equal(t, 1, report.TotalSellCount)
}

func TestFiscalYear_RejectsFutureYear(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.FiscalYear(f.accountID, time.Now().UTC().Year()+1)
	assert.Error(t, err)
}
