// Package prices persists OHLCV candle history keyed by
// (symbol, interval, open time).
package prices

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/asanchez/btcfolio/internal/domain"
)

// Repository handles candle persistence.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new price history repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "prices").Logger(),
	}
}

// Upsert inserts candles ignoring rows already present for the same
// (symbol, interval, open time). Returns the number inserted.
func (r *Repository) Upsert(candles []domain.Candle) (int, error) {
	if len(candles) == 0 {
		return 0, nil
	}

	dbTx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin candle upsert: %w", err)
	}
	defer dbTx.Rollback()

	stmt, err := dbTx.Prepare(`
		INSERT OR IGNORE INTO price_history
			(symbol, interval, open_at, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare candle insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, c := range candles {
		res, err := stmt.Exec(
			c.Symbol, c.Interval, c.OpenAt.UnixMilli(),
			c.Open.String(), c.High.String(), c.Low.String(),
			c.Close.String(), c.Volume.String(),
		)
		if err != nil {
			return inserted, fmt.Errorf("failed to insert candle %s@%d: %w", c.Symbol, c.OpenAt.UnixMilli(), err)
		}
		affected, _ := res.RowsAffected()
		inserted += int(affected)
	}

	if err := dbTx.Commit(); err != nil {
		return inserted, fmt.Errorf("failed to commit candle upsert: %w", err)
	}
	return inserted, nil
}

// LastOpenTime returns the most recent candle open time for the series,
// used as the incremental sync cursor.
func (r *Repository) LastOpenTime(symbol, interval string) (time.Time, bool, error) {
	row := r.db.QueryRow(`
		SELECT MAX(open_at) FROM price_history
		WHERE symbol = ? AND interval = ?`,
		symbol, interval)

	var last sql.NullInt64
	if err := row.Scan(&last); err != nil {
		return time.Time{}, false, fmt.Errorf("failed to query last open time: %w", err)
	}
	if !last.Valid {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(last.Int64).UTC(), true, nil
}

// Range returns candles with open time in [from, to], oldest first.
func (r *Repository) Range(symbol, interval string, from, to time.Time) ([]domain.Candle, error) {
	return r.query(`
		SELECT symbol, interval, open_at, open, high, low, close, volume
		FROM price_history
		WHERE symbol = ? AND interval = ? AND open_at >= ? AND open_at <= ?
		ORDER BY open_at`,
		symbol, interval, from.UnixMilli(), to.UnixMilli())
}

// All returns the full series for a symbol and interval, oldest first.
func (r *Repository) All(symbol, interval string) ([]domain.Candle, error) {
	return r.query(`
		SELECT symbol, interval, open_at, open, high, low, close, volume
		FROM price_history
		WHERE symbol = ? AND interval = ?
		ORDER BY open_at`,
		symbol, interval)
}

// LatestClose returns the close of the newest daily candle for a symbol.
func (r *Repository) LatestClose(symbol string) (decimal.Decimal, bool, error) {
	row := r.db.QueryRow(`
		SELECT close FROM price_history
		WHERE symbol = ? AND interval = '1d'
		ORDER BY open_at DESC LIMIT 1`,
		symbol)

	var raw string
	err := row.Scan(&raw)
	if err == sql.ErrNoRows {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("failed to query latest close: %w", err)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("corrupt close: %w", err)
	}
	return d, true, nil
}

// LatestCloses returns symbol -> newest daily close for every symbol in
// the store.
func (r *Repository) LatestCloses() (map[string]decimal.Decimal, error) {
	rows, err := r.db.Query(`
		SELECT p.symbol, p.close
		FROM price_history p
		JOIN (
			SELECT symbol, MAX(open_at) AS open_at
			FROM price_history
			WHERE interval = '1d'
			GROUP BY symbol
		) latest ON latest.symbol = p.symbol AND latest.open_at = p.open_at
		WHERE p.interval = '1d'`)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest closes: %w", err)
	}
	defer rows.Close()

	out := make(map[string]decimal.Decimal)
	for rows.Next() {
		var symbol, raw string
		if err := rows.Scan(&symbol, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan latest close: %w", err)
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("corrupt close for %s: %w", symbol, err)
		}
		out[symbol] = d
	}
	return out, rows.Err()
}

// CloseOn returns the daily close for the UTC date of the given moment.
func (r *Repository) CloseOn(symbol string, at time.Time) (decimal.Decimal, bool, error) {
	day := at.UTC().Truncate(24 * time.Hour)
	row := r.db.QueryRow(`
		SELECT close FROM price_history
		WHERE symbol = ? AND interval = '1d'
		  AND open_at >= ? AND open_at < ?
		LIMIT 1`,
		symbol, day.UnixMilli(), day.Add(24*time.Hour).UnixMilli())

	var raw string
	err := row.Scan(&raw)
	if err == sql.ErrNoRows {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("failed to query close on date: %w", err)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("corrupt close: %w", err)
	}
	return d, true, nil
}

func (r *Repository) query(q string, args ...any) ([]domain.Candle, error) {
	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query candles: %w", err)
	}
	defer rows.Close()

	var out []domain.Candle
	for rows.Next() {
		var (
			c      domain.Candle
			openAt int64
			o, h   string
			l, cl  string
			vol    string
		)
		if err := rows.Scan(&c.Symbol, &c.Interval, &openAt, &o, &h, &l, &cl, &vol); err != nil {
			return nil, fmt.Errorf("failed to scan candle: %w", err)
		}
		c.OpenAt = time.UnixMilli(openAt).UTC()
		if c.Open, err = decimal.NewFromString(o); err != nil {
			return nil, fmt.Errorf("corrupt open: %w", err)
		}
		if c.High, err = decimal.NewFromString(h); err != nil {
			return nil, fmt.Errorf("corrupt high: %w", err)
		}
		if c.Low, err = decimal.NewFromString(l); err != nil {
			return nil, fmt.Errorf("corrupt low: %w", err)
		}
		if c.Close, err = decimal.NewFromString(cl); err != nil {
			return nil, fmt.Errorf("corrupt close: %w", err)
		}
		if c.Volume, err = decimal.NewFromString(vol); err != nil {
			return nil, fmt.Errorf("corrupt volume: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
