package portfolio

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/asanchez/btcfolio/internal/domain"
)

const snapshotDateLayout = "2006-01-02"

// SnapshotRepository persists daily portfolio snapshots, one row per
// account and date.
type SnapshotRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewSnapshotRepository creates a new portfolio snapshot repository.
func NewSnapshotRepository(db *sql.DB, log zerolog.Logger) *SnapshotRepository {
	return &SnapshotRepository{
		db:  db,
		log: log.With().Str("repo", "portfolio_snapshots").Logger(),
	}
}

// Upsert writes the snapshot for its date, replacing any earlier write
// of the same day.
func (r *SnapshotRepository) Upsert(s domain.PortfolioSnapshot) error {
	var btcQty, btcAvg, composition any
	if s.BTCQuantity.Valid {
		btcQty = s.BTCQuantity.Decimal.String()
	}
	if s.BTCAvgBuyPrice.Valid {
		btcAvg = s.BTCAvgBuyPrice.Decimal.String()
	}
	if len(s.Composition) > 0 {
		composition = string(s.Composition)
	}

	_, err := r.db.Exec(`
		INSERT INTO portfolio_snapshots
			(account_id, snapshot_date, total_value_usd, invested_usd,
			 pnl_unrealized_usd, pnl_realized_usd, btc_quantity,
			 btc_avg_buy_price, composition)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (account_id, snapshot_date) DO UPDATE SET
			total_value_usd    = excluded.total_value_usd,
			invested_usd       = excluded.invested_usd,
			pnl_unrealized_usd = excluded.pnl_unrealized_usd,
			pnl_realized_usd   = excluded.pnl_realized_usd,
			btc_quantity       = excluded.btc_quantity,
			btc_avg_buy_price  = excluded.btc_avg_buy_price,
			composition        = excluded.composition`,
		s.AccountID.String(),
		s.SnapshotDate.UTC().Format(snapshotDateLayout),
		s.TotalValueUSD.String(),
		s.InvestedUSD.String(),
		s.PnLUnrealizedUSD.String(),
		s.PnLRealizedUSD.String(),
		btcQty, btcAvg, composition,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert portfolio snapshot: %w", err)
	}
	return nil
}

// Range returns snapshots with date in [from, to], oldest first.
func (r *SnapshotRepository) Range(accountID uuid.UUID, from, to time.Time) ([]domain.PortfolioSnapshot, error) {
	rows, err := r.db.Query(`
		SELECT account_id, snapshot_date, total_value_usd, invested_usd,
		       pnl_unrealized_usd, pnl_realized_usd, btc_quantity,
		       btc_avg_buy_price, composition
		FROM portfolio_snapshots
		WHERE account_id = ? AND snapshot_date >= ? AND snapshot_date <= ?
		ORDER BY snapshot_date`,
		accountID.String(),
		from.UTC().Format(snapshotDateLayout),
		to.UTC().Format(snapshotDateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolio snapshots: %w", err)
	}
	defer rows.Close()

	var out []domain.PortfolioSnapshot
	for rows.Next() {
		var (
			s           domain.PortfolioSnapshot
			acct, date  string
			total, inv  string
			unreal      string
			realized    string
			btcQty      sql.NullString
			btcAvg      sql.NullString
			composition sql.NullString
		)
		if err := rows.Scan(&acct, &date, &total, &inv, &unreal, &realized,
			&btcQty, &btcAvg, &composition); err != nil {
			return nil, fmt.Errorf("failed to scan portfolio snapshot: %w", err)
		}
		if s.AccountID, err = uuid.Parse(acct); err != nil {
			return nil, fmt.Errorf("corrupt account id: %w", err)
		}
		if s.SnapshotDate, err = time.ParseInLocation(snapshotDateLayout, date, time.UTC); err != nil {
			return nil, fmt.Errorf("corrupt snapshot date: %w", err)
		}
		if s.TotalValueUSD, err = decimal.NewFromString(total); err != nil {
			return nil, fmt.Errorf("corrupt total_value_usd: %w", err)
		}
		if s.InvestedUSD, err = decimal.NewFromString(inv); err != nil {
			return nil, fmt.Errorf("corrupt invested_usd: %w", err)
		}
		if s.PnLUnrealizedUSD, err = decimal.NewFromString(unreal); err != nil {
			return nil, fmt.Errorf("corrupt pnl_unrealized_usd: %w", err)
		}
		if s.PnLRealizedUSD, err = decimal.NewFromString(realized); err != nil {
			return nil, fmt.Errorf("corrupt pnl_realized_usd: %w", err)
		}
		if btcQty.Valid {
			d, err := decimal.NewFromString(btcQty.String)
			if err != nil {
				return nil, fmt.Errorf("corrupt btc_quantity: %w", err)
			}
			s.BTCQuantity = decimal.NullDecimal{Decimal: d, Valid: true}
		}
		if btcAvg.Valid {
			d, err := decimal.NewFromString(btcAvg.String)
			if err != nil {
				return nil, fmt.Errorf("corrupt btc_avg_buy_price: %w", err)
			}
			s.BTCAvgBuyPrice = decimal.NullDecimal{Decimal: d, Valid: true}
		}
		if composition.Valid {
			s.Composition = []byte(composition.String)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
