// Package liveprice fetches the current BTC price in EUR and USD from
// public ticker providers, with CoinGecko first and Kraken as fallback.
package liveprice

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
)

const (
	coingeckoURL = "https://api.coingecko.com/api/v3/simple/price"
	krakenURL    = "https://api.kraken.com/0/public/Ticker"
)

// Quote is the live BTC price. Nil fields mean no provider answered.
type Quote struct {
	BTCEUR *decimal.Decimal
	BTCUSD *decimal.Decimal
	Source string
}

// Client queries the providers in priority order. The primary provider
// sits behind a circuit breaker so repeated CoinGecko failures skip
// straight to Kraken instead of burning the timeout every call.
type Client struct {
	http         *http.Client
	breaker      *gobreaker.CircuitBreaker
	log          zerolog.Logger
	coingeckoURL string
	krakenURL    string
}

// New creates a live price client with a 6s request timeout.
func New(log zerolog.Logger) *Client {
	return &Client{
		http: &http.Client{Timeout: 6 * time.Second},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "coingecko",
			Timeout: 2 * time.Minute,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
		log:          log.With().Str("client", "liveprice").Logger(),
		coingeckoURL: coingeckoURL,
		krakenURL:    krakenURL,
	}
}

// GetBTCPrice returns the live BTC price in EUR and USD. Never returns an
// error: when every provider fails the quote carries nil prices and
// source "unavailable".
func (c *Client) GetBTCPrice(ctx context.Context) Quote {
	if result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetchCoinGecko(ctx)
	}); err == nil {
		q := result.(Quote)
		q.Source = "coingecko"
		return q
	} else {
		c.log.Warn().Err(err).Msg("CoinGecko unavailable, falling back to Kraken")
	}

	if q, err := c.fetchKraken(ctx); err == nil {
		q.Source = "kraken"
		return q
	} else {
		c.log.Warn().Err(err).Msg("Kraken unavailable")
	}

	return Quote{Source: "unavailable"}
}

func (c *Client) fetchCoinGecko(ctx context.Context) (Quote, error) {
	params := url.Values{
		"ids":           {"bitcoin"},
		"vs_currencies": {"eur,usd"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.coingeckoURL+"?"+params.Encode(), nil)
	if err != nil {
		return Quote{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Quote{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Quote{}, fmt.Errorf("coingecko status %d", resp.StatusCode)
	}

	var payload struct {
		Bitcoin struct {
			EUR *decimal.Decimal `json:"eur"`
			USD *decimal.Decimal `json:"usd"`
		} `json:"bitcoin"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Quote{}, err
	}
	if payload.Bitcoin.EUR == nil || payload.Bitcoin.USD == nil {
		return Quote{}, fmt.Errorf("coingecko response missing prices")
	}
	return Quote{BTCEUR: payload.Bitcoin.EUR, BTCUSD: payload.Bitcoin.USD}, nil
}

func (c *Client) fetchKraken(ctx context.Context) (Quote, error) {
	params := url.Values{"pair": {"XBTEUR,XBTUSD"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.krakenURL+"?"+params.Encode(), nil)
	if err != nil {
		return Quote{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Quote{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Quote{}, fmt.Errorf("kraken status %d", resp.StatusCode)
	}

	var payload struct {
		Error  []string `json:"error"`
		Result map[string]struct {
			C []decimal.Decimal `json:"c"` // [last trade price, lot volume]
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Quote{}, err
	}
	if len(payload.Error) > 0 {
		return Quote{}, fmt.Errorf("kraken error: %s", strings.Join(payload.Error, "; "))
	}

	var q Quote
	// Kraken keys pairs like XXBTZEUR / XXBTZUSD; match by suffix.
	for key, ticker := range payload.Result {
		if len(ticker.C) == 0 {
			continue
		}
		price := ticker.C[0]
		switch {
		case strings.HasSuffix(key, "EUR"):
			q.BTCEUR = &price
		case strings.HasSuffix(key, "USD"):
			q.BTCUSD = &price
		}
	}
	if q.BTCEUR == nil || q.BTCUSD == nil {
		return Quote{}, fmt.Errorf("kraken response missing pairs")
	}
	return q, nil
}
