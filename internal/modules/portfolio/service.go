package portfolio

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/asanchez/btcfolio/internal/config"
	"github.com/asanchez/btcfolio/internal/domain"
	"github.com/asanchez/btcfolio/internal/modules/balances"
	"github.com/asanchez/btcfolio/internal/modules/prices"
	"github.com/asanchez/btcfolio/internal/modules/transactions"
)

// AssetMetric is one row of the per-asset portfolio view.
type AssetMetric struct {
	Asset          string          `json:"asset"`
	Quantity       decimal.Decimal `json:"quantity"`
	CurrentPrice   decimal.Decimal `json:"current_price_usd"`
	ValueUSD       decimal.Decimal `json:"value_usd"`
	CostBasisUSD   decimal.Decimal `json:"cost_basis_usd"`
	CostBasisEUR   decimal.Decimal `json:"cost_basis_eur"`
	RealizedPnLUSD decimal.Decimal `json:"realized_pnl_usd"`
	PnLUSD         decimal.Decimal `json:"pnl_usd"`
	PnLPct         decimal.Decimal `json:"pnl_pct"`
	PortfolioPct   decimal.Decimal `json:"portfolio_pct"`
}

// Overview aggregates the whole portfolio.
type Overview struct {
	TotalValueUSD  decimal.Decimal  `json:"total_value_usd"`
	InvestedUSD    decimal.Decimal  `json:"invested_usd"`
	PnLUSD         decimal.Decimal  `json:"pnl_usd"`
	ROIPct         decimal.Decimal  `json:"roi_pct"`
	IRRAnnualPct   *decimal.Decimal `json:"irr_annual_pct"`
	RealizedPnLUSD decimal.Decimal  `json:"realized_pnl_usd"`
	Assets         []AssetMetric    `json:"assets"`
}

// DCARow is one cumulative step of the dollar-cost-average table.
type DCARow struct {
	Date        time.Time       `json:"date"`
	Quantity    decimal.Decimal `json:"quantity"`
	CostUSD     decimal.Decimal `json:"cost_usd"`
	CumQuantity decimal.Decimal `json:"cum_quantity"`
	CumCostUSD  decimal.Decimal `json:"cum_cost_usd"`
	VWAPUSD     decimal.Decimal `json:"vwap_usd"`
	CumCostEUR  decimal.Decimal `json:"cum_cost_eur"`
	VWAPEUR     decimal.Decimal `json:"vwap_eur"`
}

// DCAAnalysis is the dollar-cost-average view for one asset.
type DCAAnalysis struct {
	Asset          string          `json:"asset"`
	CurrentQty     decimal.Decimal `json:"current_qty"`
	CurrentPrice   decimal.Decimal `json:"current_price_usd"`
	ValueUSD       decimal.Decimal `json:"value_usd"`
	VWAPUSD        decimal.Decimal `json:"vwap_usd"`
	CostBasisUSD   decimal.Decimal `json:"cost_basis_usd"`
	CostBasisEUR   decimal.Decimal `json:"cost_basis_eur"`
	RealizedPnLUSD decimal.Decimal `json:"realized_pnl_usd"`
	Rows           []DCARow        `json:"rows"`
}

// PerformancePoint is one day of portfolio value history.
type PerformancePoint struct {
	Date        time.Time       `json:"date"`
	ValueUSD    decimal.Decimal `json:"value_usd"`
	InvestedUSD decimal.Decimal `json:"invested_usd"`
	PnLUSD      decimal.Decimal `json:"pnl_usd"`
	PnLPct      decimal.Decimal `json:"pnl_pct"`
}

// LiquidBalance is one stablecoin or fiat position valued live.
type LiquidBalance struct {
	Asset    string          `json:"asset"`
	Quantity decimal.Decimal `json:"quantity"`
	ValueUSD decimal.Decimal `json:"value_usd"`
	ValueEUR decimal.Decimal `json:"value_eur"`
}

// LiquidView is the stablecoin/fiat slice of the portfolio.
type LiquidView struct {
	Balances    []LiquidBalance `json:"balances"`
	TotalUSD    decimal.Decimal `json:"total_usd"`
	TotalEUR    decimal.Decimal `json:"total_eur"`
	EURUSDClose decimal.Decimal `json:"eur_usd_rate"`
}

// FiscalAssetPnL is one asset's realized result inside a fiscal year.
type FiscalAssetPnL struct {
	Asset          string          `json:"asset"`
	QuantitySold   decimal.Decimal `json:"quantity_sold"`
	RealizedPnLUSD decimal.Decimal `json:"realized_pnl_usd"`
}

// FiscalYearReport aggregates realized P&L for one calendar year under
// FIFO accounting.
type FiscalYearReport struct {
	Year           int              `json:"year"`
	Assets         []FiscalAssetPnL `json:"assets"`
	TotalPnLUSD    decimal.Decimal  `json:"total_realized_pnl_usd"`
	TotalSellCount int              `json:"total_sell_count"`
}

// Service composes the pure kernels with persistence into the portfolio
// views. It only reads; the sync orchestrator is the writer.
type Service struct {
	transactions *transactions.Repository
	balances     *balances.Repository
	prices       *prices.Repository
	snapshots    *SnapshotRepository
	log          zerolog.Logger
	now          func() time.Time
}

// NewService creates the portfolio service.
func NewService(
	txRepo *transactions.Repository,
	balRepo *balances.Repository,
	priceRepo *prices.Repository,
	snapRepo *SnapshotRepository,
	log zerolog.Logger,
) *Service {
	return &Service{
		transactions: txRepo,
		balances:     balRepo,
		prices:       priceRepo,
		snapshots:    snapRepo,
		log:          log.With().Str("service", "portfolio").Logger(),
		now:          time.Now,
	}
}

// eurUSDRate returns the newest EURUSDT daily close, or 1 when no rate
// has been synced yet so EUR figures degrade to USD parity instead of
// collapsing to zero.
func (s *Service) eurUSDRate() decimal.Decimal {
	rate, ok, err := s.prices.LatestClose("EURUSDT")
	if err != nil || !ok || !rate.IsPositive() {
		return decimal.NewFromInt(1)
	}
	return rate
}

// currentPriceUSD resolves an asset's live USD price from the newest
// daily closes. Stablecoins and USD are pinned to 1; EUR uses the
// EURUSDT close; everything else looks up <ASSET>USDT.
func (s *Service) currentPriceUSD(asset string, closes map[string]decimal.Decimal, eurUSD decimal.Decimal) decimal.Decimal {
	if asset == "USD" || domain.Stablecoins[asset] {
		return decimal.NewFromInt(1)
	}
	if asset == "EUR" {
		return eurUSD
	}
	if p, ok := closes[asset+"USDT"]; ok {
		return p
	}
	return decimal.Zero
}

func splitBuysSells(txns []domain.Transaction) (buys, sells []domain.Transaction) {
	for _, t := range txns {
		switch {
		case domain.BuyTypes[t.Type]:
			buys = append(buys, t)
		case domain.SellTypes[t.Type]:
			sells = append(sells, t)
		}
	}
	return buys, sells
}

// AssetMetrics returns FIFO-based metrics for every asset currently held
// with a positive balance, sorted by USD value descending.
func (s *Service) AssetMetrics(accountID uuid.UUID) ([]AssetMetric, error) {
	held, err := s.balances.LatestQuantities(accountID)
	if err != nil {
		return nil, err
	}
	closes, err := s.prices.LatestCloses()
	if err != nil {
		return nil, err
	}
	eurUSD := s.eurUSDRate()

	var metrics []AssetMetric
	for asset, qty := range held {
		if !qty.IsPositive() {
			continue
		}
		txns, err := s.transactions.ForAsset(accountID, asset)
		if err != nil {
			return nil, err
		}
		buys, sells := splitBuysSells(txns)
		fifo := ComputeFIFO(buys, sells, eurUSD)

		price := s.currentPriceUSD(asset, closes, eurUSD)
		value := domain.RoundMoney(qty.Mul(price))
		pnl := domain.RoundMoney(value.Sub(fifo.CostBasisUSD))

		metrics = append(metrics, AssetMetric{
			Asset:          asset,
			Quantity:       qty,
			CurrentPrice:   price,
			ValueUSD:       value,
			CostBasisUSD:   fifo.CostBasisUSD,
			CostBasisEUR:   fifo.CostBasisEUR,
			RealizedPnLUSD: fifo.RealizedPnLUSD,
			PnLUSD:         pnl,
			PnLPct:         domain.Pct(pnl, fifo.CostBasisUSD),
		})
	}

	sort.Slice(metrics, func(i, j int) bool {
		return metrics[i].ValueUSD.GreaterThan(metrics[j].ValueUSD)
	})

	total := decimal.Zero
	for _, m := range metrics {
		total = total.Add(m.ValueUSD)
	}
	for i := range metrics {
		metrics[i].PortfolioPct = domain.Pct(metrics[i].ValueUSD, total)
	}
	return metrics, nil
}

// Overview aggregates per-asset metrics with invested capital, ROI, and
// the annualized internal rate of return.
func (s *Service) Overview(accountID uuid.UUID) (*Overview, error) {
	assets, err := s.AssetMetrics(accountID)
	if err != nil {
		return nil, err
	}

	totalValue, realized := decimal.Zero, decimal.Zero
	for _, m := range assets {
		totalValue = totalValue.Add(m.ValueUSD)
		realized = realized.Add(m.RealizedPnLUSD)
	}

	txns, err := s.transactions.ForAccount(accountID)
	if err != nil {
		return nil, err
	}

	invested := decimal.Zero
	var flows []Cashflow
	for _, t := range txns {
		amount := t.ValueUSD()
		switch {
		case t.Type == domain.TxBuy || t.Type == domain.TxDeposit:
			invested = invested.Add(amount)
			flows = append(flows, Cashflow{Date: t.ExecutedAt, Amount: amount.Neg()})
		case domain.SellTypes[t.Type] && domain.FiatAndStablecoins[t.BaseAsset]:
			// Sells of fiat or stablecoins are money coming back out for
			// the IRR, but only withdrawals reduce invested capital.
			if t.Type == domain.TxWithdrawal {
				invested = invested.Sub(amount)
			}
			flows = append(flows, Cashflow{Date: t.ExecutedAt, Amount: amount})
		}
	}
	invested = domain.RoundMoney(invested)

	var irr *decimal.Decimal
	if len(flows) > 0 {
		flows = append(flows, Cashflow{Date: s.now().UTC(), Amount: totalValue})
		irr = ComputeXIRR(flows)
	}

	pnl := domain.RoundMoney(totalValue.Sub(invested))
	return &Overview{
		TotalValueUSD:  totalValue,
		InvestedUSD:    invested,
		PnLUSD:         pnl,
		ROIPct:         domain.Pct(pnl, invested),
		IRRAnnualPct:   irr,
		RealizedPnLUSD: realized,
		Assets:         assets,
	}, nil
}

// DCAAnalysis builds the cumulative dollar-cost-average table for one
// asset. Current quantity prefers the latest balance snapshot and falls
// back to net transacted quantity.
func (s *Service) DCAAnalysis(accountID uuid.UUID, asset string) (*DCAAnalysis, error) {
	txns, err := s.transactions.ForAsset(accountID, asset)
	if err != nil {
		return nil, err
	}
	buys, sells := splitBuysSells(txns)
	eurUSD := s.eurUSDRate()
	fifo := ComputeFIFO(buys, sells, eurUSD)
	vwap := ComputeVWAP(buys)

	rows := make([]DCARow, 0, len(buys))
	cumQty, cumUSD, cumEUR := decimal.Zero, decimal.Zero, decimal.Zero
	for _, b := range buys {
		costUSD := usdUnitCost(b).Mul(b.Quantity)
		cumQty = cumQty.Add(b.Quantity)
		cumUSD = cumUSD.Add(costUSD)
		cumEUR = cumEUR.Add(eurUnitCost(b, eurUSD).Mul(b.Quantity))

		row := DCARow{
			Date:        b.ExecutedAt,
			Quantity:    b.Quantity,
			CostUSD:     domain.RoundMoney(costUSD),
			CumQuantity: cumQty,
			CumCostUSD:  domain.RoundMoney(cumUSD),
			CumCostEUR:  domain.RoundMoney(cumEUR),
		}
		if cumQty.IsPositive() {
			row.VWAPUSD = domain.RoundMoney(cumUSD.Div(cumQty))
			row.VWAPEUR = domain.RoundMoney(cumEUR.Div(cumQty))
		}
		rows = append(rows, row)
	}

	currentQty, ok, err := s.latestQuantity(accountID, asset)
	if err != nil {
		return nil, err
	}
	if !ok {
		for _, b := range buys {
			currentQty = currentQty.Add(b.Quantity)
		}
		for _, sl := range sells {
			currentQty = currentQty.Sub(sl.Quantity)
		}
	}

	closes, err := s.prices.LatestCloses()
	if err != nil {
		return nil, err
	}
	price := s.currentPriceUSD(asset, closes, eurUSD)

	return &DCAAnalysis{
		Asset:          asset,
		CurrentQty:     currentQty,
		CurrentPrice:   price,
		ValueUSD:       domain.RoundMoney(currentQty.Mul(price)),
		VWAPUSD:        vwap,
		CostBasisUSD:   fifo.CostBasisUSD,
		CostBasisEUR:   fifo.CostBasisEUR,
		RealizedPnLUSD: fifo.RealizedPnLUSD,
		Rows:           rows,
	}, nil
}

func (s *Service) latestQuantity(accountID uuid.UUID, asset string) (decimal.Decimal, bool, error) {
	held, err := s.balances.LatestQuantities(accountID)
	if err != nil {
		return decimal.Zero, false, err
	}
	qty, ok := held[asset]
	return qty, ok, nil
}

// PerformanceHistory returns daily portfolio values in [from, to]. Real
// snapshots win when present; otherwise the series is synthesized from
// BTC price history and the BTC transaction log.
func (s *Service) PerformanceHistory(accountID uuid.UUID, from, to time.Time) ([]PerformancePoint, error) {
	snaps, err := s.snapshots.Range(accountID, from, to)
	if err != nil {
		return nil, err
	}
	if len(snaps) > 0 {
		points := make([]PerformancePoint, 0, len(snaps))
		for _, snap := range snaps {
			pnl := domain.RoundMoney(snap.TotalValueUSD.Sub(snap.InvestedUSD))
			points = append(points, PerformancePoint{
				Date:        snap.SnapshotDate,
				ValueUSD:    snap.TotalValueUSD,
				InvestedUSD: snap.InvestedUSD,
				PnLUSD:      pnl,
				PnLPct:      domain.Pct(pnl, snap.InvestedUSD),
			})
		}
		return points, nil
	}
	return s.syntheticHistory(accountID, from, to)
}

// syntheticHistory reconstructs daily BTC-only portfolio values: a
// cursor walks the transaction log alongside the BTCUSDT daily closes,
// accumulating held quantity and invested capital. Invested never
// decreases; points before the first transaction or with nothing held
// are skipped.
func (s *Service) syntheticHistory(accountID uuid.UUID, from, to time.Time) ([]PerformancePoint, error) {
	candles, err := s.prices.Range("BTCUSDT", "1d", from, to)
	if err != nil {
		return nil, err
	}
	txns, err := s.transactions.ForAssetUntil(accountID, "BTC", to)
	if err != nil {
		return nil, err
	}
	if len(candles) == 0 || len(txns) == 0 {
		return nil, nil
	}

	firstTx := txns[0].ExecutedAt
	cursor := 0
	cumQty, cumInvested := decimal.Zero, decimal.Zero

	var points []PerformancePoint
	for _, c := range candles {
		dayEnd := c.OpenAt.Add(24 * time.Hour)
		for cursor < len(txns) && txns[cursor].ExecutedAt.Before(dayEnd) {
			t := txns[cursor]
			switch {
			case domain.BuyTypes[t.Type]:
				cumQty = cumQty.Add(t.Quantity)
				cumInvested = cumInvested.Add(t.ValueUSD())
			case domain.SellTypes[t.Type]:
				cumQty = cumQty.Sub(t.Quantity)
			}
			cursor++
		}
		if c.OpenAt.Before(firstTx.Truncate(24*time.Hour)) || !cumQty.IsPositive() {
			continue
		}
		value := domain.RoundMoney(cumQty.Mul(c.Close))
		pnl := domain.RoundMoney(value.Sub(cumInvested))
		points = append(points, PerformancePoint{
			Date:        c.OpenAt,
			ValueUSD:    value,
			InvestedUSD: domain.RoundMoney(cumInvested),
			PnLUSD:      pnl,
			PnLPct:      domain.Pct(pnl, cumInvested),
		})
	}
	return points, nil
}

// Drawdown computes the deepest decline over real snapshots when they
// exist, else over the synthetic series since the history epoch.
func (s *Service) Drawdown(accountID uuid.UUID) (*DrawdownResult, error) {
	now := s.now().UTC()
	snaps, err := s.snapshots.Range(accountID, config.HistoryEpoch, now)
	if err != nil {
		return nil, err
	}

	var points []ValuePoint
	if len(snaps) > 0 {
		for _, snap := range snaps {
			points = append(points, ValuePoint{Date: snap.SnapshotDate, Value: snap.TotalValueUSD})
		}
	} else {
		history, err := s.syntheticHistory(accountID, config.HistoryEpoch, now)
		if err != nil {
			return nil, err
		}
		for _, p := range history {
			points = append(points, ValuePoint{Date: p.Date, Value: p.ValueUSD})
		}
	}

	res := ComputeDrawdown(points)
	return &res, nil
}

// LiquidBalances returns the stablecoin and fiat positions valued in
// USD and EUR from the latest balance snapshots.
func (s *Service) LiquidBalances(accountID uuid.UUID) (*LiquidView, error) {
	latest, err := s.balances.Latest(accountID)
	if err != nil {
		return nil, err
	}
	eurUSD := s.eurUSDRate()

	view := &LiquidView{EURUSDClose: eurUSD}
	for _, b := range latest {
		qty := b.Total()
		if !domain.FiatAndStablecoins[b.Asset] || !qty.IsPositive() {
			continue
		}
		valueUSD := domain.RoundMoney(qty.Mul(s.currentPriceUSD(b.Asset, nil, eurUSD)))
		view.Balances = append(view.Balances, LiquidBalance{
			Asset:    b.Asset,
			Quantity: qty,
			ValueUSD: valueUSD,
			ValueEUR: domain.RoundMoney(valueUSD.Div(eurUSD)),
		})
		view.TotalUSD = view.TotalUSD.Add(valueUSD)
	}
	view.TotalUSD = domain.RoundMoney(view.TotalUSD)
	view.TotalEUR = domain.RoundMoney(view.TotalUSD.Div(eurUSD))
	return view, nil
}

// FiscalYear computes realized P&L for one calendar year. FIFO runs with
// every buy up to the year's end so lot consumption reflects the full
// pre-year history, while only sells inside the year are consumed.
func (s *Service) FiscalYear(accountID uuid.UUID, year int) (*FiscalYearReport, error) {
	if year < 2009 || year > s.now().UTC().Year() {
		return nil, fmt.Errorf("fiscal year %d out of range", year)
	}

	start := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(year, 12, 31, 23, 59, 59, 999999999, time.UTC)

	buys, err := s.transactions.BuysUntil(accountID, end)
	if err != nil {
		return nil, err
	}
	sells, err := s.transactions.SellsBetween(accountID, start, end)
	if err != nil {
		return nil, err
	}

	buysByAsset := make(map[string][]domain.Transaction)
	for _, b := range buys {
		buysByAsset[b.BaseAsset] = append(buysByAsset[b.BaseAsset], b)
	}
	sellsByAsset := make(map[string][]domain.Transaction)
	for _, sl := range sells {
		sellsByAsset[sl.BaseAsset] = append(sellsByAsset[sl.BaseAsset], sl)
	}

	eurUSD := s.eurUSDRate()
	report := &FiscalYearReport{Year: year}
	for asset, assetSells := range sellsByAsset {
		fifo := ComputeFIFO(buysByAsset[asset], assetSells, eurUSD)
		sold := decimal.Zero
		for _, sl := range assetSells {
			sold = sold.Add(sl.Quantity)
		}
		report.Assets = append(report.Assets, FiscalAssetPnL{
			Asset:          asset,
			QuantitySold:   sold,
			RealizedPnLUSD: fifo.RealizedPnLUSD,
		})
		report.TotalPnLUSD = report.TotalPnLUSD.Add(fifo.RealizedPnLUSD)
		report.TotalSellCount += len(assetSells)
	}
	sort.Slice(report.Assets, func(i, j int) bool {
		return report.Assets[i].Asset < report.Assets[j].Asset
	})
	report.TotalPnLUSD = domain.RoundMoney(report.TotalPnLUSD)
	return report, nil
}
