package binance

import (
	"context"
	"time"
)

// Paginators are lazy, finite sequences of batches. Each Next call issues
// at most one HTTP request (fiat pages aside); a nil batch with a nil
// error means the sequence is exhausted. Rebuilding a pager with the same
// arguments re-issues the same calls.

const ninetyDaysMs = int64(90) * 24 * 60 * 60 * 1000

// TradesByIDPager pages /api/v3/myTrades by fromId. Used for incremental
// syncs once a last trade id is known locally.
type TradesByIDPager struct {
	client *Client
	symbol string
	fromID int64
	done   bool
}

// TradesByID starts an id-based pager at fromID.
func (c *Client) TradesByID(symbol string, fromID int64) *TradesByIDPager {
	return &TradesByIDPager{client: c, symbol: symbol, fromID: fromID}
}

// Next returns the next batch, or (nil, nil) when exhausted. A batch
// shorter than the page size ends the sequence.
func (p *TradesByIDPager) Next(ctx context.Context) ([]Trade, error) {
	if p.done {
		return nil, nil
	}
	batch, err := p.client.getTrades(ctx, p.symbol, p.fromID, -1)
	if err != nil {
		return nil, err
	}
	if len(batch) == 0 {
		p.done = true
		return nil, nil
	}
	if len(batch) < pageLimit {
		p.done = true
	} else {
		p.fromID = batch[len(batch)-1].ID + 1
	}
	return batch, nil
}

// TradesByTimePager pages /api/v3/myTrades by startTime only, advancing
// to the last trade's time + 1ms. Used for the initial full download and
// for gap backfills.
type TradesByTimePager struct {
	client    *Client
	symbol    string
	startTime int64
	done      bool
}

// TradesByTime starts a time-based pager at startMs.
func (c *Client) TradesByTime(symbol string, startMs int64) *TradesByTimePager {
	return &TradesByTimePager{client: c, symbol: symbol, startTime: startMs}
}

// Next returns the next batch, or (nil, nil) when exhausted.
func (p *TradesByTimePager) Next(ctx context.Context) ([]Trade, error) {
	if p.done {
		return nil, nil
	}
	batch, err := p.client.getTrades(ctx, p.symbol, -1, p.startTime)
	if err != nil {
		return nil, err
	}
	if len(batch) == 0 {
		p.done = true
		return nil, nil
	}
	if len(batch) < pageLimit {
		p.done = true
	} else {
		p.startTime = batch[len(batch)-1].Time + 1
	}
	return batch, nil
}

// DepositsPager iterates 90-day windows from a since epoch-ms to now,
// one call per window. Empty windows are skipped.
type DepositsPager struct {
	client      *Client
	windowStart int64
	endMs       int64
}

// Deposits starts a windowed deposit pager at sinceMs.
func (c *Client) Deposits(sinceMs int64) *DepositsPager {
	return &DepositsPager{client: c, windowStart: sinceMs, endMs: c.now().UnixMilli()}
}

// Next returns the next non-empty window's batch, or (nil, nil) once all
// windows are consumed.
func (p *DepositsPager) Next(ctx context.Context) ([]Deposit, error) {
	for p.windowStart < p.endMs {
		windowEnd := min64(p.windowStart+ninetyDaysMs, p.endMs)
		batch, err := p.client.getDeposits(ctx, p.windowStart, windowEnd)
		if err != nil {
			return nil, err
		}
		p.windowStart = windowEnd + 1
		if len(batch) > 0 {
			return batch, nil
		}
	}
	return nil, nil
}

// WithdrawalsPager mirrors DepositsPager for withdrawal history.
type WithdrawalsPager struct {
	client      *Client
	windowStart int64
	endMs       int64
}

// Withdrawals starts a windowed withdrawal pager at sinceMs.
func (c *Client) Withdrawals(sinceMs int64) *WithdrawalsPager {
	return &WithdrawalsPager{client: c, windowStart: sinceMs, endMs: c.now().UnixMilli()}
}

// Next returns the next non-empty window's batch, or (nil, nil) once all
// windows are consumed.
func (p *WithdrawalsPager) Next(ctx context.Context) ([]Withdrawal, error) {
	for p.windowStart < p.endMs {
		windowEnd := min64(p.windowStart+ninetyDaysMs, p.endMs)
		batch, err := p.client.getWithdrawals(ctx, p.windowStart, windowEnd)
		if err != nil {
			return nil, err
		}
		p.windowStart = windowEnd + 1
		if len(batch) > 0 {
			return batch, nil
		}
	}
	return nil, nil
}

// FiatOrdersPager iterates 90-day windows; inside each window it walks
// page=1.. until an empty or short page.
type FiatOrdersPager struct {
	client          *Client
	transactionType int
	windowStart     int64
	endMs           int64
	page            int
	inWindow        bool
}

// FiatOrders starts a fiat order pager (0=deposits, 1=withdrawals) at sinceMs.
func (c *Client) FiatOrders(transactionType int, sinceMs int64) *FiatOrdersPager {
	return &FiatOrdersPager{
		client:          c,
		transactionType: transactionType,
		windowStart:     sinceMs,
		endMs:           c.now().UnixMilli(),
	}
}

// Next returns the next non-empty page, or (nil, nil) once all windows
// are consumed.
func (p *FiatOrdersPager) Next(ctx context.Context) ([]FiatOrder, error) {
	for {
		if !p.inWindow {
			if p.windowStart >= p.endMs {
				return nil, nil
			}
			p.page = 1
			p.inWindow = true
		}

		windowEnd := min64(p.windowStart+ninetyDaysMs, p.endMs)
		batch, err := p.client.getFiatOrders(ctx, p.transactionType, p.page, p.windowStart, windowEnd)
		if err != nil {
			return nil, err
		}

		if len(batch) == 0 || len(batch) < fiatRows {
			// Window finished; advance to the next one.
			p.inWindow = false
			p.windowStart = windowEnd + 1
		} else {
			p.page++
		}

		if len(batch) > 0 {
			return batch, nil
		}
	}
}

// KlinesPager pages /api/v3/klines from a start time, advancing the
// cursor past the last kline's open time by one interval step.
type KlinesPager struct {
	client    *Client
	symbol    string
	interval  string
	startTime int64
	done      bool
}

// Klines starts a kline pager at startMs.
func (c *Client) Klines(symbol, interval string, startMs int64) *KlinesPager {
	return &KlinesPager{client: c, symbol: symbol, interval: interval, startTime: startMs}
}

// Next returns the next batch of up to 1000 klines, or (nil, nil) when
// exhausted.
func (p *KlinesPager) Next(ctx context.Context) ([]Kline, error) {
	if p.done {
		return nil, nil
	}
	batch, err := p.client.getKlines(ctx, p.symbol, p.interval, p.startTime)
	if err != nil {
		return nil, err
	}
	if len(batch) == 0 {
		p.done = true
		return nil, nil
	}
	if len(batch) < pageLimit {
		p.done = true
	} else {
		p.startTime = batch[len(batch)-1].OpenTime + IntervalStep(p.interval)
	}
	return batch, nil
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// clockNow is a seam for pager construction in tests.
func (c *Client) withClock(now func() time.Time) *Client {
	c.now = now
	c.governor.now = now
	return c
}
