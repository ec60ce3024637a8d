package portfolio

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/asanchez/btcfolio/internal/config"
	"github.com/asanchez/btcfolio/internal/domain"
)

// MAPoint is one day of price with its moving averages. A nil average
// means the window is not yet full.
type MAPoint struct {
	Date  time.Time        `json:"date"`
	Close decimal.Decimal  `json:"close"`
	MA50  *decimal.Decimal `json:"ma50"`
	MA200 *decimal.Decimal `json:"ma200"`
}

// TimedBuy is one BTC acquisition annotated with market timing.
type TimedBuy struct {
	Date       time.Time        `json:"date"`
	Quantity   decimal.Decimal  `json:"quantity"`
	PriceUSD   decimal.Decimal  `json:"price_usd"`
	ValueUSD   decimal.Decimal  `json:"value_usd"`
	Percentile *decimal.Decimal `json:"timing_percentile"`
	AboveMA200 *bool            `json:"above_ma200"`
}

// TimingSummary aggregates buy timing across the whole history.
type TimingSummary struct {
	AveragePercentile *decimal.Decimal `json:"average_percentile"`
	Label             string           `json:"label"`
	Quartiles         [4]int           `json:"quartiles"`
	BuysBelowMA200    int              `json:"buys_below_ma200"`
	BuysAboveMA200    int              `json:"buys_above_ma200"`
}

// PriceBucket is one $5k-wide histogram bar of acquired BTC.
type PriceBucket struct {
	Label    string          `json:"label"`
	MinUSD   int64           `json:"min_usd"`
	MaxUSD   int64           `json:"max_usd"`
	Quantity decimal.Decimal `json:"quantity"`
	BuyCount int             `json:"buy_count"`
}

// MonthCell is one (year, month) cell of the buy heatmap.
type MonthCell struct {
	Year        int             `json:"year"`
	Month       int             `json:"month"`
	InvestedUSD decimal.Decimal `json:"invested_usd"`
	Quantity    decimal.Decimal `json:"quantity"`
	BuyCount    int             `json:"buy_count"`
}

// BuyStats summarizes the buy history against the current price.
type BuyStats struct {
	TotalBuys       int              `json:"total_buys"`
	BuysInProfitPct decimal.Decimal  `json:"buys_in_profit_pct"`
	FirstBuyDate    *time.Time       `json:"first_buy_date"`
	LastBuyDate     *time.Time       `json:"last_buy_date"`
	BestEntryPrice  *decimal.Decimal `json:"best_entry_price"`
	BestEntryGain   *decimal.Decimal `json:"best_entry_gain_pct"`
	WorstEntryPrice *decimal.Decimal `json:"worst_entry_price"`
	WorstEntryGain  *decimal.Decimal `json:"worst_entry_gain_pct"`
}

// BTCInsights is the full BTC market-timing dashboard payload.
type BTCInsights struct {
	CurrentPrice decimal.Decimal `json:"current_price_usd"`
	MovingAvgs   []MAPoint       `json:"moving_averages"`
	Buys         []TimedBuy      `json:"buys"`
	Timing       TimingSummary   `json:"timing"`
	Histogram    []PriceBucket   `json:"price_histogram"`
	Heatmap      []MonthCell     `json:"monthly_heatmap"`
	Stats        BuyStats        `json:"buy_stats"`
}

const (
	timingWindow = 30
	bucketWidth  = 5000
)

// ComputeMovingAverages produces MA50 and MA200 over daily closes with
// running sums, O(n). Averages are nil until their window fills.
func ComputeMovingAverages(candles []domain.Candle) []MAPoint {
	points := make([]MAPoint, 0, len(candles))
	sum50, sum200 := decimal.Zero, decimal.Zero
	for i, c := range candles {
		sum50 = sum50.Add(c.Close)
		sum200 = sum200.Add(c.Close)
		if i >= 50 {
			sum50 = sum50.Sub(candles[i-50].Close)
		}
		if i >= 200 {
			sum200 = sum200.Sub(candles[i-200].Close)
		}

		p := MAPoint{Date: c.OpenAt, Close: c.Close}
		if i >= 49 {
			ma := sum50.Div(decimal.NewFromInt(50)).Round(2)
			p.MA50 = &ma
		}
		if i >= 199 {
			ma := sum200.Div(decimal.NewFromInt(200)).Round(2)
			p.MA200 = &ma
		}
		points = append(points, p)
	}
	return points
}

// TimingPercentile places a buy price inside the range of the closes
// from the preceding 30 days: 0 at the low, 100 at the high, clamped.
// Returns nil with no prior data, 50 when the range is degenerate.
func TimingPercentile(buyPrice decimal.Decimal, priorCloses []decimal.Decimal) *decimal.Decimal {
	if len(priorCloses) == 0 {
		return nil
	}
	low, high := priorCloses[0], priorCloses[0]
	for _, c := range priorCloses[1:] {
		if c.LessThan(low) {
			low = c
		}
		if c.GreaterThan(high) {
			high = c
		}
	}
	if high.Equal(low) {
		fifty := decimal.NewFromInt(50)
		return &fifty
	}
	pct := buyPrice.Sub(low).Div(high.Sub(low)).Mul(decimal.NewFromInt(100))
	hundred := decimal.NewFromInt(100)
	if pct.LessThan(decimal.Zero) {
		pct = decimal.Zero
	} else if pct.GreaterThan(hundred) {
		pct = hundred
	}
	pct = domain.RoundPct(pct)
	return &pct
}

// BTCInsights assembles the market-timing view: per-buy percentiles
// against the trailing 30-day range, quartile distribution with a
// behavior label, the $5k acquisition histogram, the monthly heatmap,
// and summary buy stats.
func (s *Service) BTCInsights(accountID uuid.UUID) (*BTCInsights, error) {
	candles, err := s.prices.Range("BTCUSDT", "1d", config.HistoryEpoch, s.now().UTC())
	if err != nil {
		return nil, err
	}
	txns, err := s.transactions.ForAsset(accountID, "BTC")
	if err != nil {
		return nil, err
	}
	buys, _ := splitBuysSells(txns)

	currentPrice, _, err := s.prices.LatestClose("BTCUSDT")
	if err != nil {
		return nil, err
	}

	maPoints := ComputeMovingAverages(candles)
	closeByDay := make(map[string]decimal.Decimal, len(candles))
	ma200ByDay := make(map[string]decimal.Decimal)
	dates := make([]string, 0, len(candles))
	for i, c := range candles {
		day := c.OpenAt.Format("2006-01-02")
		closeByDay[day] = c.Close
		dates = append(dates, day)
		if maPoints[i].MA200 != nil {
			ma200ByDay[day] = *maPoints[i].MA200
		}
	}

	insights := &BTCInsights{CurrentPrice: currentPrice, MovingAvgs: maPoints}

	var percentileSum decimal.Decimal
	percentileCount := 0
	for _, b := range buys {
		price := usdUnitCost(b)
		if !price.IsPositive() {
			continue
		}
		day := b.ExecutedAt.Format("2006-01-02")
		tb := TimedBuy{
			Date:     b.ExecutedAt,
			Quantity: b.Quantity,
			PriceUSD: price,
			ValueUSD: domain.RoundMoney(price.Mul(b.Quantity)),
		}

		tb.Percentile = TimingPercentile(price, priorCloses(dates, closeByDay, day))
		if tb.Percentile != nil {
			percentileSum = percentileSum.Add(*tb.Percentile)
			percentileCount++
			q := quartileIndex(*tb.Percentile)
			insights.Timing.Quartiles[q]++
		}
		if ma, ok := ma200ByDay[day]; ok {
			above := price.GreaterThan(ma)
			tb.AboveMA200 = &above
			if above {
				insights.Timing.BuysAboveMA200++
			} else {
				insights.Timing.BuysBelowMA200++
			}
		}
		insights.Buys = append(insights.Buys, tb)
	}

	insights.Timing.Label = "Neutral"
	if percentileCount > 0 {
		avg := domain.RoundPct(percentileSum.Div(decimal.NewFromInt(int64(percentileCount))))
		insights.Timing.AveragePercentile = &avg
		switch {
		case avg.LessThan(decimal.NewFromInt(33)):
			insights.Timing.Label = "Dip Buyer"
		case avg.GreaterThan(decimal.NewFromInt(67)):
			insights.Timing.Label = "FOMO Buyer"
		}
	}

	insights.Histogram = buildHistogram(insights.Buys)
	insights.Heatmap = buildHeatmap(insights.Buys)
	insights.Stats = buildBuyStats(insights.Buys, currentPrice)
	return insights, nil
}

// priorCloses returns up to 30 closes strictly before the given day,
// skipping days without a candle.
func priorCloses(dates []string, closeByDay map[string]decimal.Decimal, day string) []decimal.Decimal {
	idx := sort.SearchStrings(dates, day)
	start := idx - timingWindow
	if start < 0 {
		start = 0
	}
	out := make([]decimal.Decimal, 0, idx-start)
	for _, d := range dates[start:idx] {
		out = append(out, closeByDay[d])
	}
	return out
}

func quartileIndex(pct decimal.Decimal) int {
	switch {
	case pct.LessThanOrEqual(decimal.NewFromInt(25)):
		return 0
	case pct.LessThanOrEqual(decimal.NewFromInt(50)):
		return 1
	case pct.LessThanOrEqual(decimal.NewFromInt(75)):
		return 2
	default:
		return 3
	}
}

func buildHistogram(buys []TimedBuy) []PriceBucket {
	byMin := make(map[int64]*PriceBucket)
	for _, b := range buys {
		min := b.PriceUSD.IntPart() / bucketWidth * bucketWidth
		bucket, ok := byMin[min]
		if !ok {
			bucket = &PriceBucket{
				Label:  fmt.Sprintf("$%dk-%dk", min/1000, (min+bucketWidth)/1000),
				MinUSD: min,
				MaxUSD: min + bucketWidth,
			}
			byMin[min] = bucket
		}
		bucket.Quantity = bucket.Quantity.Add(b.Quantity)
		bucket.BuyCount++
	}

	out := make([]PriceBucket, 0, len(byMin))
	for _, b := range byMin {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MinUSD < out[j].MinUSD })
	return out
}

func buildHeatmap(buys []TimedBuy) []MonthCell {
	type ym struct{ y, m int }
	byMonth := make(map[ym]*MonthCell)
	for _, b := range buys {
		key := ym{b.Date.UTC().Year(), int(b.Date.UTC().Month())}
		cell, ok := byMonth[key]
		if !ok {
			cell = &MonthCell{Year: key.y, Month: key.m}
			byMonth[key] = cell
		}
		cell.InvestedUSD = domain.RoundMoney(cell.InvestedUSD.Add(b.ValueUSD))
		cell.Quantity = cell.Quantity.Add(b.Quantity)
		cell.BuyCount++
	}

	out := make([]MonthCell, 0, len(byMonth))
	for _, c := range byMonth {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		return out[i].Month < out[j].Month
	})
	return out
}

func buildBuyStats(buys []TimedBuy, currentPrice decimal.Decimal) BuyStats {
	stats := BuyStats{TotalBuys: len(buys)}
	if len(buys) == 0 {
		return stats
	}

	first, last := buys[0], buys[0]
	best, worst := buys[0], buys[0]
	inProfit := 0
	for _, b := range buys {
		if b.Date.Before(first.Date) {
			first = b
		}
		if b.Date.After(last.Date) {
			last = b
		}
		if b.PriceUSD.LessThan(best.PriceUSD) {
			best = b
		}
		if b.PriceUSD.GreaterThan(worst.PriceUSD) {
			worst = b
		}
		if currentPrice.GreaterThan(b.PriceUSD) {
			inProfit++
		}
	}

	stats.BuysInProfitPct = domain.Pct(decimal.NewFromInt(int64(inProfit)), decimal.NewFromInt(int64(len(buys))))
	stats.FirstBuyDate = &first.Date
	stats.LastBuyDate = &last.Date
	stats.BestEntryPrice = &best.PriceUSD
	stats.WorstEntryPrice = &worst.PriceUSD
	bestGain := domain.Pct(currentPrice.Sub(best.PriceUSD), best.PriceUSD)
	worstGain := domain.Pct(currentPrice.Sub(worst.PriceUSD), worst.PriceUSD)
	stats.BestEntryGain = &bestGain
	stats.WorstEntryGain = &worstGain
	return stats
}
