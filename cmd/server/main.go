package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/asanchez/btcfolio/internal/clients/liveprice"
	"github.com/asanchez/btcfolio/internal/config"
	"github.com/asanchez/btcfolio/internal/database"
	"github.com/asanchez/btcfolio/internal/modules/accounts"
	"github.com/asanchez/btcfolio/internal/modules/balances"
	"github.com/asanchez/btcfolio/internal/modules/portfolio"
	"github.com/asanchez/btcfolio/internal/modules/prices"
	"github.com/asanchez/btcfolio/internal/modules/transactions"
	"github.com/asanchez/btcfolio/internal/scheduler"
	"github.com/asanchez/btcfolio/internal/server"
	syncsvc "github.com/asanchez/btcfolio/internal/sync"
	"github.com/asanchez/btcfolio/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	log.Info().Msg("Starting btcfolio")

	db, err := database.New(database.Config{Path: cfg.DatabasePath, Name: "btcfolio"})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	secrets, err := accounts.NewSecretBox(cfg.EncryptionKey)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid encryption key")
	}

	accountRepo := accounts.NewRepository(db.Conn(), log)
	txRepo := transactions.NewRepository(db.Conn(), log)
	balRepo := balances.NewRepository(db.Conn(), log)
	priceRepo := prices.NewRepository(db.Conn(), log)
	snapRepo := portfolio.NewSnapshotRepository(db.Conn(), log)

	if _, err := accountRepo.Bootstrap("Binance"); err != nil {
		log.Fatal().Err(err).Msg("Failed to bootstrap account")
	}

	portfolioSvc := portfolio.NewService(txRepo, balRepo, priceRepo, snapRepo, log)
	syncService := syncsvc.NewService(cfg, accountRepo, txRepo, balRepo, priceRepo, secrets, log)
	registry := syncsvc.NewRegistry()
	livePrice := liveprice.New(log)

	sched := scheduler.New(log)
	schedule := fmt.Sprintf("0 */%d * * * *", cfg.SyncIntervalMinutes)
	if err := sched.AddJob(schedule, scheduler.NewExchangeSyncJob(syncService, registry, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register sync job")
	}
	sched.Start()
	defer sched.Stop()

	srv := server.New(server.Config{
		Log:       log,
		Config:    cfg,
		Accounts:  accountRepo,
		Secrets:   secrets,
		Portfolio: portfolioSvc,
		Sync:      syncService,
		Registry:  registry,
		LivePrice: livePrice,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server stopped")
}
