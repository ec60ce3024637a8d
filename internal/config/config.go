// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// HistoryEpoch is the earliest point history is fetched from:
// 2021-01-01 00:00:00 UTC.
var HistoryEpoch = time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)

// Config holds application configuration. Loaded once at startup and
// passed explicitly to constructors; never mutated afterwards.
type Config struct {
	DataDir             string // base directory for the sqlite database
	DatabasePath        string
	AppPassword         string // dashboard login password (single user)
	SecretKey           string // signs bearer tokens
	EncryptionKey       string // base64 url-safe 32-byte AES key for stored API credentials
	LogLevel            string
	Port                int
	DevMode             bool
	SyncIntervalMinutes int    // exchange sync cadence, minimum 5
	ExchangeBaseURL     string // allows pointing at a testnet
	TrackedAssets       []string
	TradeSymbols        []string
	TokenTTL            time.Duration
	CORSOrigins         []string
}

// Load reads configuration from environment variables (.env supported).
func Load() (*Config, error) {
	_ = godotenv.Load()

	dataDir := getEnv("BTCFOLIO_DATA_DIR", "./data")
	absDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data dir: %w", err)
	}
	if err := os.MkdirAll(absDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	port, err := strconv.Atoi(getEnv("PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}

	syncInterval, err := strconv.Atoi(getEnv("SYNC_INTERVAL_MINUTES", "15"))
	if err != nil {
		return nil, fmt.Errorf("invalid SYNC_INTERVAL_MINUTES: %w", err)
	}
	if syncInterval < 5 {
		return nil, fmt.Errorf("SYNC_INTERVAL_MINUTES must be >= 5, got %d", syncInterval)
	}

	tokenTTLMin, err := strconv.Atoi(getEnv("ACCESS_TOKEN_EXPIRE_MINUTES", "60"))
	if err != nil {
		return nil, fmt.Errorf("invalid ACCESS_TOKEN_EXPIRE_MINUTES: %w", err)
	}

	cfg := &Config{
		DataDir:             absDir,
		DatabasePath:        filepath.Join(absDir, "btcfolio.db"),
		AppPassword:         os.Getenv("APP_PASSWORD"),
		SecretKey:           os.Getenv("SECRET_KEY"),
		EncryptionKey:       os.Getenv("ENCRYPTION_KEY"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		Port:                port,
		DevMode:             getEnv("APP_ENV", "production") == "development",
		SyncIntervalMinutes: syncInterval,
		ExchangeBaseURL:     getEnv("EXCHANGE_API_BASE_URL", "https://api.binance.com"),
		TrackedAssets:       splitList(getEnv("TRACKED_ASSETS", "BTC,USDT,USDC,BUSD,FDUSD,EUR,USD")),
		TradeSymbols:        splitList(getEnv("TRADE_SYMBOLS", "BTCUSDT,BTCEUR,BTCBUSD,BTCFDUSD")),
		TokenTTL:            time.Duration(tokenTTLMin) * time.Minute,
		CORSOrigins:         splitList(getEnv("CORS_ORIGINS", "http://localhost:3000")),
	}

	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("SECRET_KEY is required")
	}
	if cfg.EncryptionKey == "" {
		return nil, fmt.Errorf("ENCRYPTION_KEY is required")
	}
	if cfg.AppPassword == "" {
		return nil, fmt.Errorf("APP_PASSWORD is required")
	}

	return cfg, nil
}

// TrackedAssetSet returns the tracked assets as a lookup set.
func (c *Config) TrackedAssetSet() map[string]bool {
	set := make(map[string]bool, len(c.TrackedAssets))
	for _, a := range c.TrackedAssets {
		set[a] = true
	}
	return set
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
