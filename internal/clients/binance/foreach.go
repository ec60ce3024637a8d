package binance

import "context"

// ForEach wrappers drain a pager to completion, handing each batch to
// the callback. The first callback error stops iteration and is
// returned verbatim, so callers can abort with sentinel errors.

// ForEachTradesByID walks id-paged trades starting at fromID.
func (c *Client) ForEachTradesByID(ctx context.Context, symbol string, fromID int64, fn func([]Trade) error) error {
	pager := c.TradesByID(symbol, fromID)
	for {
		batch, err := pager.Next(ctx)
		if err != nil {
			return err
		}
		if batch == nil {
			return nil
		}
		if err := fn(batch); err != nil {
			return err
		}
	}
}

// ForEachTradesByTime walks time-paged trades starting at startMs.
func (c *Client) ForEachTradesByTime(ctx context.Context, symbol string, startMs int64, fn func([]Trade) error) error {
	pager := c.TradesByTime(symbol, startMs)
	for {
		batch, err := pager.Next(ctx)
		if err != nil {
			return err
		}
		if batch == nil {
			return nil
		}
		if err := fn(batch); err != nil {
			return err
		}
	}
}

// ForEachDeposits walks 90-day deposit windows from sinceMs to now.
func (c *Client) ForEachDeposits(ctx context.Context, sinceMs int64, fn func([]Deposit) error) error {
	pager := c.Deposits(sinceMs)
	for {
		batch, err := pager.Next(ctx)
		if err != nil {
			return err
		}
		if batch == nil {
			return nil
		}
		if err := fn(batch); err != nil {
			return err
		}
	}
}

// ForEachWithdrawals walks 90-day withdrawal windows from sinceMs to now.
func (c *Client) ForEachWithdrawals(ctx context.Context, sinceMs int64, fn func([]Withdrawal) error) error {
	pager := c.Withdrawals(sinceMs)
	for {
		batch, err := pager.Next(ctx)
		if err != nil {
			return err
		}
		if batch == nil {
			return nil
		}
		if err := fn(batch); err != nil {
			return err
		}
	}
}

// ForEachFiatOrders walks fiat order pages (0=deposits, 1=withdrawals).
func (c *Client) ForEachFiatOrders(ctx context.Context, transactionType int, sinceMs int64, fn func([]FiatOrder) error) error {
	pager := c.FiatOrders(transactionType, sinceMs)
	for {
		batch, err := pager.Next(ctx)
		if err != nil {
			return err
		}
		if batch == nil {
			return nil
		}
		if err := fn(batch); err != nil {
			return err
		}
	}
}

// ForEachKlines walks kline pages from startMs until the series catches
// up with now.
func (c *Client) ForEachKlines(ctx context.Context, symbol, interval string, startMs int64, fn func([]Kline) error) error {
	pager := c.Klines(symbol, interval, startMs)
	for {
		batch, err := pager.Next(ctx)
		if err != nil {
			return err
		}
		if batch == nil {
			return nil
		}
		if err := fn(batch); err != nil {
			return err
		}
	}
}
