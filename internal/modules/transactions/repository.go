// Package transactions persists exchange-sourced transaction rows:
// idempotent upserts keyed by the exchange-native id, sync cursors, and
// the historical-FX enrichment of total_value_usd.
package transactions

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/asanchez/btcfolio/internal/domain"
)

// Repository handles transaction persistence. The sync orchestrator is
// the sole writer; analytics only read through the query methods.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new transaction repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "transactions").Logger(),
	}
}

// Upsert inserts rows ignoring duplicates on the exchange id, and
// returns the number of rows actually inserted. Running the same batch
// twice is a no-op.
func (r *Repository) Upsert(txns []domain.Transaction) (int, error) {
	if len(txns) == 0 {
		return 0, nil
	}

	dbTx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	stmt, err := dbTx.Prepare(`
		INSERT OR IGNORE INTO transactions (
			id, account_id, exchange_id, type, base_asset, quote_asset,
			quantity, price, total_value_usd, fee_asset, fee_amount,
			executed_at, raw_data
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, t := range txns {
		res, err := stmt.Exec(
			t.ID.String(),
			t.AccountID.String(),
			nullString(t.ExchangeID),
			string(t.Type),
			t.BaseAsset,
			nullString(t.QuoteAsset),
			t.Quantity.String(),
			nullDecimalString(t.Price),
			nullDecimalString(t.TotalValueUSD),
			nullString(t.FeeAsset),
			nullDecimalString(t.FeeAmount),
			t.ExecutedAt.UnixMilli(),
			nullBytes(t.RawData),
		)
		if err != nil {
			return inserted, fmt.Errorf("failed to insert transaction %s: %w", t.ExchangeID, err)
		}
		affected, _ := res.RowsAffected()
		inserted += int(affected)
	}

	if err := dbTx.Commit(); err != nil {
		return inserted, fmt.Errorf("failed to commit upsert: %w", err)
	}
	return inserted, nil
}

// LastTradeID returns the highest numeric exchange id among trades for
// the full pair. The pair is matched against the stored payload, not the
// parsed base asset, so colliding pairs stay separate.
func (r *Repository) LastTradeID(accountID uuid.UUID, symbol string) (int64, bool, error) {
	row := r.db.QueryRow(`
		SELECT MAX(CAST(exchange_id AS INTEGER))
		FROM transactions
		WHERE account_id = ?
		  AND type IN ('buy', 'sell')
		  AND json_extract(raw_data, '$.symbol') = ?`,
		accountID.String(), symbol)

	var last sql.NullInt64
	if err := row.Scan(&last); err != nil {
		return 0, false, fmt.Errorf("failed to query last trade id: %w", err)
	}
	return last.Int64, last.Valid, nil
}

// FirstTradeTime returns the oldest executed_at among trades for the
// full pair, used to decide whether a history backfill is needed.
func (r *Repository) FirstTradeTime(accountID uuid.UUID, symbol string) (time.Time, bool, error) {
	row := r.db.QueryRow(`
		SELECT MIN(executed_at)
		FROM transactions
		WHERE account_id = ?
		  AND type IN ('buy', 'sell')
		  AND json_extract(raw_data, '$.symbol') = ?`,
		accountID.String(), symbol)

	var first sql.NullInt64
	if err := row.Scan(&first); err != nil {
		return time.Time{}, false, fmt.Errorf("failed to query first trade time: %w", err)
	}
	if !first.Valid {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(first.Int64).UTC(), true, nil
}

// LastTimestamp returns the executed_at of the most recent transaction
// of the given type, as a resumable epoch-ms boundary.
func (r *Repository) LastTimestamp(accountID uuid.UUID, txType domain.TxType) (int64, bool, error) {
	row := r.db.QueryRow(`
		SELECT MAX(executed_at) FROM transactions
		WHERE account_id = ? AND type = ?`,
		accountID.String(), string(txType))

	var last sql.NullInt64
	if err := row.Scan(&last); err != nil {
		return 0, false, fmt.Errorf("failed to query last timestamp: %w", err)
	}
	return last.Int64, last.Valid, nil
}

// ForAccount returns every transaction ordered chronologically, ties
// broken by exchange id. This total order is what FIFO consumes.
func (r *Repository) ForAccount(accountID uuid.UUID) ([]domain.Transaction, error) {
	return r.query(`
		SELECT `+txColumns+` FROM transactions
		WHERE account_id = ?
		ORDER BY executed_at, exchange_id`,
		accountID.String())
}

// ForAsset returns the account's transactions for one base asset in
// chronological order.
func (r *Repository) ForAsset(accountID uuid.UUID, asset string) ([]domain.Transaction, error) {
	return r.query(`
		SELECT `+txColumns+` FROM transactions
		WHERE account_id = ? AND base_asset = ?
		ORDER BY executed_at, exchange_id`,
		accountID.String(), asset)
}

// ForAssetUntil returns the asset's transactions executed at or before
// the boundary, in chronological order.
func (r *Repository) ForAssetUntil(accountID uuid.UUID, asset string, until time.Time) ([]domain.Transaction, error) {
	return r.query(`
		SELECT `+txColumns+` FROM transactions
		WHERE account_id = ? AND base_asset = ? AND executed_at <= ?
		ORDER BY executed_at, exchange_id`,
		accountID.String(), asset, until.UnixMilli())
}

// BuysUntil returns every buy-like transaction executed at or before the
// boundary, ordered by asset then time. Fiscal-year FIFO feeds on the
// full pre-boundary history.
func (r *Repository) BuysUntil(accountID uuid.UUID, until time.Time) ([]domain.Transaction, error) {
	return r.query(`
		SELECT `+txColumns+` FROM transactions
		WHERE account_id = ? AND type IN ('buy', 'deposit', 'earn_interest', 'staking_reward')
		  AND executed_at <= ?
		ORDER BY base_asset, executed_at, exchange_id`,
		accountID.String(), until.UnixMilli())
}

// SellsBetween returns every sell-like transaction inside [from, to],
// ordered by asset then time.
func (r *Repository) SellsBetween(accountID uuid.UUID, from, to time.Time) ([]domain.Transaction, error) {
	return r.query(`
		SELECT `+txColumns+` FROM transactions
		WHERE account_id = ? AND type IN ('sell', 'withdrawal')
		  AND executed_at >= ? AND executed_at <= ?
		ORDER BY base_asset, executed_at, exchange_id`,
		accountID.String(), from.UnixMilli(), to.UnixMilli())
}

// EnrichTotalValueUSD backfills total_value_usd on rows that still lack
// it. USD-quoted rows get price*quantity; EUR-quoted rows additionally
// multiply by the EURUSDT daily close of the execution date. Idempotent:
// only NULL rows are touched. The arithmetic runs in Go on exact
// decimals; SQLite would coerce the TEXT-stored values to binary floats.
func (r *Repository) EnrichTotalValueUSD(accountID uuid.UUID) (int, error) {
	dbTx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin enrichment: %w", err)
	}
	defer dbTx.Rollback()

	type pending struct {
		id    string
		value decimal.Decimal
	}
	var updates []pending

	// USD-equivalent quotes: direct conversion.
	rows, err := dbTx.Query(`
		SELECT id, price, quantity FROM transactions
		WHERE account_id = ?
		  AND total_value_usd IS NULL
		  AND quote_asset IN ('USDT', 'USDC', 'BUSD', 'FDUSD', 'DAI', 'TUSD', 'USDP', 'USD')
		  AND price IS NOT NULL`,
		accountID.String())
	if err != nil {
		return 0, fmt.Errorf("failed to query usd-quoted rows: %w", err)
	}
	for rows.Next() {
		var id, priceRaw, qtyRaw string
		if err := rows.Scan(&id, &priceRaw, &qtyRaw); err != nil {
			rows.Close()
			return 0, err
		}
		price, qty, err := parsePriceQty(priceRaw, qtyRaw)
		if err != nil {
			rows.Close()
			return 0, err
		}
		updates = append(updates, pending{id, domain.RoundMoney(price.Mul(qty))})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	// EUR quotes: join the EURUSDT daily close of the same UTC date.
	// Both timestamps are epoch ms so the date match is integer division.
	rows, err = dbTx.Query(`
		SELECT t.id, t.price, t.quantity, ph.close
		FROM transactions t
		JOIN price_history ph
		  ON ph.symbol = 'EURUSDT'
		 AND ph.interval = '1d'
		 AND ph.open_at / 86400000 = t.executed_at / 86400000
		WHERE t.account_id = ?
		  AND t.total_value_usd IS NULL
		  AND t.quote_asset = 'EUR'
		  AND t.price IS NOT NULL`,
		accountID.String())
	if err != nil {
		return 0, fmt.Errorf("failed to query eur-quoted rows: %w", err)
	}
	for rows.Next() {
		var id, priceRaw, qtyRaw, closeRaw string
		if err := rows.Scan(&id, &priceRaw, &qtyRaw, &closeRaw); err != nil {
			rows.Close()
			return 0, err
		}
		price, qty, err := parsePriceQty(priceRaw, qtyRaw)
		if err != nil {
			rows.Close()
			return 0, err
		}
		eurUSD, err := decimal.NewFromString(closeRaw)
		if err != nil {
			rows.Close()
			return 0, fmt.Errorf("corrupt eurusdt close: %w", err)
		}
		updates = append(updates, pending{id, domain.RoundMoney(price.Mul(qty).Mul(eurUSD))})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	stmt, err := dbTx.Prepare(`UPDATE transactions SET total_value_usd = ? WHERE id = ?`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare enrichment update: %w", err)
	}
	defer stmt.Close()
	for _, u := range updates {
		if _, err := stmt.Exec(u.value.String(), u.id); err != nil {
			return 0, fmt.Errorf("failed to enrich transaction %s: %w", u.id, err)
		}
	}

	if err := dbTx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit enrichment: %w", err)
	}
	return len(updates), nil
}

const txColumns = `id, account_id, exchange_id, type, base_asset, quote_asset,
	quantity, price, total_value_usd, fee_asset, fee_amount, executed_at, raw_data`

func (r *Repository) query(q string, args ...any) ([]domain.Transaction, error) {
	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTransaction(rows *sql.Rows) (domain.Transaction, error) {
	var (
		t          domain.Transaction
		id, acct   string
		exchangeID sql.NullString
		txType     string
		quoteAsset sql.NullString
		qtyRaw     string
		price      sql.NullString
		totalUSD   sql.NullString
		feeAsset   sql.NullString
		feeAmount  sql.NullString
		executedAt int64
		rawData    sql.NullString
	)
	if err := rows.Scan(&id, &acct, &exchangeID, &txType, &t.BaseAsset, &quoteAsset,
		&qtyRaw, &price, &totalUSD, &feeAsset, &feeAmount, &executedAt, &rawData); err != nil {
		return t, fmt.Errorf("failed to scan transaction: %w", err)
	}

	var err error
	if t.ID, err = uuid.Parse(id); err != nil {
		return t, fmt.Errorf("corrupt transaction id: %w", err)
	}
	if t.AccountID, err = uuid.Parse(acct); err != nil {
		return t, fmt.Errorf("corrupt account id: %w", err)
	}
	t.ExchangeID = exchangeID.String
	t.Type = domain.TxType(txType)
	t.QuoteAsset = quoteAsset.String
	if t.Quantity, err = decimal.NewFromString(qtyRaw); err != nil {
		return t, fmt.Errorf("corrupt quantity: %w", err)
	}
	if t.Price, err = scanNullDecimal(price); err != nil {
		return t, fmt.Errorf("corrupt price: %w", err)
	}
	if t.TotalValueUSD, err = scanNullDecimal(totalUSD); err != nil {
		return t, fmt.Errorf("corrupt total_value_usd: %w", err)
	}
	t.FeeAsset = feeAsset.String
	if t.FeeAmount, err = scanNullDecimal(feeAmount); err != nil {
		return t, fmt.Errorf("corrupt fee_amount: %w", err)
	}
	t.ExecutedAt = time.UnixMilli(executedAt).UTC()
	if rawData.Valid {
		t.RawData = []byte(rawData.String)
	}
	return t, nil
}

func scanNullDecimal(ns sql.NullString) (decimal.NullDecimal, error) {
	if !ns.Valid {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(ns.String)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}, nil
}

func parsePriceQty(priceRaw, qtyRaw string) (decimal.Decimal, decimal.Decimal, error) {
	price, err := decimal.NewFromString(priceRaw)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("corrupt price: %w", err)
	}
	qty, err := decimal.NewFromString(qtyRaw)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("corrupt quantity: %w", err)
	}
	return price, qty, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullDecimalString(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
