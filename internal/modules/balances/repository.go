// Package balances persists append-only per-asset balance snapshots and
// serves the latest observation per asset.
package balances

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/asanchez/btcfolio/internal/domain"
)

// Repository handles balance snapshot persistence.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new balance snapshot repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "balances").Logger(),
	}
}

// Append stores one snapshot row per asset. Snapshots are never updated;
// history accumulates and readers pick the latest per asset.
func (r *Repository) Append(snapshots []domain.BalanceSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	dbTx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin snapshot append: %w", err)
	}
	defer dbTx.Rollback()

	stmt, err := dbTx.Prepare(`
		INSERT OR IGNORE INTO balance_snapshots
			(account_id, asset, free, locked, value_usd, snapshot_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare snapshot insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range snapshots {
		var valueUSD any
		if s.ValueUSD.Valid {
			valueUSD = s.ValueUSD.Decimal.String()
		}
		_, err := stmt.Exec(
			s.AccountID.String(),
			s.Asset,
			s.Free.String(),
			s.Locked.String(),
			valueUSD,
			s.SnapshotAt.UnixMilli(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert snapshot for %s: %w", s.Asset, err)
		}
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot append: %w", err)
	}
	return nil
}

// Latest returns the most recent snapshot of every asset the account has
// ever held, including assets whose latest balance is zero.
func (r *Repository) Latest(accountID uuid.UUID) ([]domain.BalanceSnapshot, error) {
	rows, err := r.db.Query(`
		SELECT b.account_id, b.asset, b.free, b.locked, b.value_usd, b.snapshot_at
		FROM balance_snapshots b
		JOIN (
			SELECT asset, MAX(snapshot_at) AS snapshot_at
			FROM balance_snapshots
			WHERE account_id = ?
			GROUP BY asset
		) latest ON latest.asset = b.asset AND latest.snapshot_at = b.snapshot_at
		WHERE b.account_id = ?
		ORDER BY b.asset`,
		accountID.String(), accountID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query latest balances: %w", err)
	}
	defer rows.Close()

	var out []domain.BalanceSnapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// LatestQuantities returns asset -> free+locked from the latest snapshot
// of each asset. Zero balances are included; callers filter.
func (r *Repository) LatestQuantities(accountID uuid.UUID) (map[string]decimal.Decimal, error) {
	latest, err := r.Latest(accountID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]decimal.Decimal, len(latest))
	for _, s := range latest {
		out[s.Asset] = s.Total()
	}
	return out, nil
}

func scanSnapshot(rows *sql.Rows) (domain.BalanceSnapshot, error) {
	var (
		s          domain.BalanceSnapshot
		acct       string
		freeRaw    string
		lockedRaw  string
		valueUSD   sql.NullString
		snapshotAt int64
	)
	if err := rows.Scan(&acct, &s.Asset, &freeRaw, &lockedRaw, &valueUSD, &snapshotAt); err != nil {
		return s, fmt.Errorf("failed to scan snapshot: %w", err)
	}

	var err error
	if s.AccountID, err = uuid.Parse(acct); err != nil {
		return s, fmt.Errorf("corrupt account id: %w", err)
	}
	if s.Free, err = decimal.NewFromString(freeRaw); err != nil {
		return s, fmt.Errorf("corrupt free balance: %w", err)
	}
	if s.Locked, err = decimal.NewFromString(lockedRaw); err != nil {
		return s, fmt.Errorf("corrupt locked balance: %w", err)
	}
	if valueUSD.Valid {
		d, err := decimal.NewFromString(valueUSD.String)
		if err != nil {
			return s, fmt.Errorf("corrupt value_usd: %w", err)
		}
		s.ValueUSD = decimal.NullDecimal{Decimal: d, Valid: true}
	}
	s.SnapshotAt = time.UnixMilli(snapshotAt).UTC()
	return s, nil
}
