package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/asanchez/btcfolio/internal/clients/binance"
	"github.com/asanchez/btcfolio/internal/config"
	"github.com/asanchez/btcfolio/internal/domain"
	"github.com/asanchez/btcfolio/internal/modules/accounts"
	"github.com/asanchez/btcfolio/internal/modules/balances"
	"github.com/asanchez/btcfolio/internal/modules/prices"
	"github.com/asanchez/btcfolio/internal/modules/transactions"
)

// ExchangeClient is the slice of the exchange API the orchestrator
// consumes. Satisfied by *binance.Client; tests substitute a fake.
type ExchangeClient interface {
	GetAccount(ctx context.Context) (*binance.AccountInfo, error)
	ForEachTradesByID(ctx context.Context, symbol string, fromID int64, fn func([]binance.Trade) error) error
	ForEachTradesByTime(ctx context.Context, symbol string, startMs int64, fn func([]binance.Trade) error) error
	ForEachDeposits(ctx context.Context, sinceMs int64, fn func([]binance.Deposit) error) error
	ForEachWithdrawals(ctx context.Context, sinceMs int64, fn func([]binance.Withdrawal) error) error
	ForEachFiatOrders(ctx context.Context, transactionType int, sinceMs int64, fn func([]binance.FiatOrder) error) error
	ForEachKlines(ctx context.Context, symbol, interval string, startMs int64, fn func([]binance.Kline) error) error
	Close()
}

// errBackfillDone aborts a time pager once it catches up with already
// known history.
var errBackfillDone = errors.New("backfill caught up")

// ErrNoCredentials means the account has no stored API keys yet.
var ErrNoCredentials = errors.New("account has no API credentials configured")

// Service downloads the account's full exchange state. Steps run
// strictly in sequence; each is isolated so one failure is recorded and
// the rest still run. Only credential decryption or a database outage
// aborts the run.
type Service struct {
	cfg          *config.Config
	accounts     *accounts.Repository
	transactions *transactions.Repository
	balances     *balances.Repository
	prices       *prices.Repository
	secrets      *accounts.SecretBox
	newClient    func(apiKey, apiSecret string) ExchangeClient
	log          zerolog.Logger
	now          func() time.Time
}

// NewService creates the sync orchestrator.
func NewService(
	cfg *config.Config,
	accountRepo *accounts.Repository,
	txRepo *transactions.Repository,
	balRepo *balances.Repository,
	priceRepo *prices.Repository,
	secrets *accounts.SecretBox,
	log zerolog.Logger,
) *Service {
	scoped := log.With().Str("service", "sync").Logger()
	return &Service{
		cfg:          cfg,
		accounts:     accountRepo,
		transactions: txRepo,
		balances:     balRepo,
		prices:       priceRepo,
		secrets:      secrets,
		newClient: func(apiKey, apiSecret string) ExchangeClient {
			return binance.New(apiKey, apiSecret, cfg.ExchangeBaseURL, scoped)
		},
		log: scoped,
		now: time.Now,
	}
}

// SyncAll runs the full download sequence for the account. The returned
// stats always carry per-step error strings; the error return is
// reserved for aborts (bad credentials, storage failure).
func (s *Service) SyncAll(ctx context.Context) (*Stats, error) {
	stats := &Stats{StartedAt: s.now().UTC()}

	account, err := s.accounts.Get()
	if err != nil {
		return stats, err
	}
	if account.APIKeyEncrypted == "" || account.APISecretEncrypted == "" {
		return stats, ErrNoCredentials
	}
	apiKey, err := s.secrets.Decrypt(account.APIKeyEncrypted)
	if err != nil {
		return stats, err
	}
	apiSecret, err := s.secrets.Decrypt(account.APISecretEncrypted)
	if err != nil {
		return stats, err
	}

	if err := s.accounts.SetSyncStatus(account.ID, domain.SyncSyncing); err != nil {
		return stats, err
	}

	client := s.newClient(apiKey, apiSecret)
	defer client.Close()

	s.runStep(stats, "balances", func() error {
		return s.syncBalances(ctx, client, account.ID, stats)
	})
	s.runStep(stats, "prices", func() error {
		return s.syncPrices(ctx, client, stats)
	})
	s.runStep(stats, "trades", func() error {
		return s.syncTrades(ctx, client, account.ID, stats)
	})
	s.runStep(stats, "deposits", func() error {
		return s.syncDeposits(ctx, client, account.ID, stats)
	})
	s.runStep(stats, "withdrawals", func() error {
		return s.syncWithdrawals(ctx, client, account.ID, stats)
	})
	s.runStep(stats, "fiat_deposits", func() error {
		return s.syncFiatOrders(ctx, client, account.ID, 0, domain.TxDeposit, stats)
	})
	s.runStep(stats, "fiat_withdrawals", func() error {
		return s.syncFiatOrders(ctx, client, account.ID, 1, domain.TxWithdrawal, stats)
	})
	s.runStep(stats, "enrich_usd", func() error {
		n, err := s.transactions.EnrichTotalValueUSD(account.ID)
		stats.Enriched = n
		return err
	})

	stats.FinishedAt = s.now().UTC()

	finalStatus := domain.SyncIdle
	if stats.HasErrors() {
		finalStatus = domain.SyncError
	}
	if err := s.accounts.SetSyncStatus(account.ID, finalStatus); err != nil {
		return stats, err
	}

	s.log.Info().
		Int("total_records", stats.TotalRecords()).
		Int("errors", len(stats.Errors)).
		Dur("elapsed", stats.FinishedAt.Sub(stats.StartedAt)).
		Msg("Sync finished")
	return stats, nil
}

// runStep isolates one step: its error lands in stats and the sequence
// continues.
func (s *Service) runStep(stats *Stats, name string, fn func() error) {
	if err := fn(); err != nil {
		s.log.Error().Err(err).Str("step", name).Msg("Sync step failed")
		stats.Errors = append(stats.Errors, fmt.Sprintf("%s: %v", name, err))
		return
	}
	s.log.Debug().Str("step", name).Msg("Sync step completed")
}

func (s *Service) syncBalances(ctx context.Context, client ExchangeClient, accountID uuid.UUID, stats *Stats) error {
	info, err := client.GetAccount(ctx)
	if err != nil {
		return err
	}

	tracked := s.cfg.TrackedAssetSet()
	snapshotAt := s.now().UTC()
	var snaps []domain.BalanceSnapshot
	for _, b := range info.Balances {
		if !tracked[b.Asset] || !b.Free.Add(b.Locked).IsPositive() {
			continue
		}
		snaps = append(snaps, domain.BalanceSnapshot{
			AccountID:  accountID,
			Asset:      b.Asset,
			Free:       b.Free,
			Locked:     b.Locked,
			SnapshotAt: snapshotAt,
		})
	}
	if err := s.balances.Append(snaps); err != nil {
		return err
	}
	stats.BalancesSaved += len(snaps)
	return nil
}

// syncPrices downloads daily klines for every trade symbol plus EURUSDT
// (needed by the EUR enrichment join), resuming from the last stored
// candle.
func (s *Service) syncPrices(ctx context.Context, client ExchangeClient, stats *Stats) error {
	symbols := append([]string{}, s.cfg.TradeSymbols...)
	symbols = append(symbols, "EURUSDT")

	seen := make(map[string]bool, len(symbols))
	for _, symbol := range symbols {
		if seen[symbol] {
			continue
		}
		seen[symbol] = true

		startMs := config.HistoryEpoch.UnixMilli()
		if last, ok, err := s.prices.LastOpenTime(symbol, "1d"); err != nil {
			return err
		} else if ok {
			startMs = last.UnixMilli() + binance.IntervalStep("1d")
		}

		err := client.ForEachKlines(ctx, symbol, "1d", startMs, func(batch []binance.Kline) error {
			candles := make([]domain.Candle, 0, len(batch))
			for _, k := range batch {
				candles = append(candles, mapKline(symbol, "1d", k))
			}
			n, err := s.prices.Upsert(candles)
			stats.PricesSaved += n
			return err
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// syncTrades downloads fills per configured symbol. With a known last
// trade id the id pager resumes incrementally; otherwise the time pager
// downloads everything since the history epoch. When history starts
// after the epoch but an id cursor exists, a one-off time-paged backfill
// fills the gap, stopping once it reaches known history.
func (s *Service) syncTrades(ctx context.Context, client ExchangeClient, accountID uuid.UUID, stats *Stats) error {
	epochMs := config.HistoryEpoch.UnixMilli()

	for _, symbol := range s.cfg.TradeSymbols {
		lastID, hasCursor, err := s.transactions.LastTradeID(accountID, symbol)
		if err != nil {
			return err
		}

		save := func(batch []binance.Trade) error {
			txns := make([]domain.Transaction, 0, len(batch))
			for _, t := range batch {
				txns = append(txns, mapTrade(accountID, t))
			}
			n, err := s.transactions.Upsert(txns)
			stats.TradesSaved += n
			return err
		}

		if !hasCursor {
			if err := client.ForEachTradesByTime(ctx, symbol, epochMs, save); err != nil {
				return err
			}
			continue
		}

		firstSeen, ok, err := s.transactions.FirstTradeTime(accountID, symbol)
		if err != nil {
			return err
		}
		if ok && firstSeen.UnixMilli() > epochMs {
			firstSeenMs := firstSeen.UnixMilli()
			err := client.ForEachTradesByTime(ctx, symbol, epochMs, func(batch []binance.Trade) error {
				if err := save(batch); err != nil {
					return err
				}
				if batch[len(batch)-1].Time >= firstSeenMs {
					return errBackfillDone
				}
				return nil
			})
			if err != nil && !errors.Is(err, errBackfillDone) {
				return err
			}
		}

		if err := client.ForEachTradesByID(ctx, symbol, lastID+1, save); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) syncDeposits(ctx context.Context, client ExchangeClient, accountID uuid.UUID, stats *Stats) error {
	since := s.resumePoint(accountID, domain.TxDeposit)
	tracked := s.cfg.TrackedAssetSet()

	return client.ForEachDeposits(ctx, since, func(batch []binance.Deposit) error {
		txns := make([]domain.Transaction, 0, len(batch))
		for _, d := range batch {
			if !tracked[d.Coin] {
				continue
			}
			txns = append(txns, mapDeposit(accountID, d))
		}
		n, err := s.transactions.Upsert(txns)
		stats.DepositsSaved += n
		return err
	})
}

func (s *Service) syncWithdrawals(ctx context.Context, client ExchangeClient, accountID uuid.UUID, stats *Stats) error {
	since := s.resumePoint(accountID, domain.TxWithdrawal)
	tracked := s.cfg.TrackedAssetSet()

	return client.ForEachWithdrawals(ctx, since, func(batch []binance.Withdrawal) error {
		txns := make([]domain.Transaction, 0, len(batch))
		for _, w := range batch {
			if !tracked[w.Coin] {
				continue
			}
			tx, err := mapWithdrawal(accountID, w)
			if err != nil {
				return err
			}
			txns = append(txns, tx)
		}
		n, err := s.transactions.Upsert(txns)
		stats.WithdrawalsSaved += n
		return err
	})
}

// syncFiatOrders downloads fiat gateway orders. API keys without the
// fiat permission return a specific error code family; that is a clean
// skip, not a failure.
func (s *Service) syncFiatOrders(ctx context.Context, client ExchangeClient, accountID uuid.UUID, transactionType int, txType domain.TxType, stats *Stats) error {
	err := client.ForEachFiatOrders(ctx, transactionType, config.HistoryEpoch.UnixMilli(), func(batch []binance.FiatOrder) error {
		txns := make([]domain.Transaction, 0, len(batch))
		for _, o := range batch {
			if !o.Completed() {
				continue
			}
			txns = append(txns, mapFiatOrder(accountID, o, txType))
		}
		n, err := s.transactions.Upsert(txns)
		stats.FiatOrdersSaved += n
		return err
	})
	if binance.IsFiatPermissionError(err) {
		s.log.Warn().Int("transaction_type", transactionType).
			Msg("API key lacks fiat permission, skipping fiat orders")
		return nil
	}
	return err
}

// resumePoint returns last-known-timestamp+1 for a transaction type, or
// the history epoch on first run. Lookup failures fall back to the epoch
// since re-downloading is idempotent.
func (s *Service) resumePoint(accountID uuid.UUID, txType domain.TxType) int64 {
	last, ok, err := s.transactions.LastTimestamp(accountID, txType)
	if err != nil || !ok {
		return config.HistoryEpoch.UnixMilli()
	}
	return last + 1
}
