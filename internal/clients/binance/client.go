// Package binance provides an authenticated, rate-limit-aware client for
// the exchange REST API: signed account/trade/transfer history calls,
// public klines and tickers, and lazy paginators over every history
// endpoint.
package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	maxRetries  = 3
	baseBackoff = 2 * time.Second
	recvWindow  = "5000"
	pageLimit   = 1000
	fiatRows    = 500
)

// Client issues requests against the exchange REST API. One in-flight
// request at a time per instance; the rate-limit governor is shared by
// all calls. Credentials are never logged.
type Client struct {
	apiKey    string
	apiSecret string
	baseURL   string
	http      *http.Client
	governor  *rateLimitGovernor
	log       zerolog.Logger

	// injectable for tests
	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// New creates an exchange client bound to one account's credentials.
func New(apiKey, apiSecret, baseURL string, log zerolog.Logger) *Client {
	scoped := log.With().Str("client", "exchange").Logger()
	return &Client{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		baseURL:   strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
		governor: newRateLimitGovernor(scoped),
		log:      scoped,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// Close releases idle connections held by the client's pool. Safe to call
// on every exit path.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

// sign copies params, appends timestamp and recvWindow, and computes the
// HMAC-SHA256 signature over the exact query string that goes on the
// wire. The caller's values are never mutated. Returns the final
// RawQuery including the signature.
func (c *Client) sign(params url.Values) string {
	signed := url.Values{}
	for key, vals := range params {
		for _, v := range vals {
			signed.Add(key, v)
		}
	}
	signed.Set("timestamp", strconv.FormatInt(c.now().UnixMilli(), 10))
	signed.Set("recvWindow", recvWindow)

	query := signed.Encode()
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(query))
	signature := hex.EncodeToString(mac.Sum(nil))

	return query + "&signature=" + signature
}

// do executes one request with rate-limit governance and retry:
//   - 429/418: sleep Retry-After (default 60s), re-sign with a fresh
//     timestamp, retry
//   - network errors and timeouts: exponential backoff 2s, 4s, 8s
//   - 401: AuthError, not retried
//   - other 4xx/5xx: APIError with the exchange code and msg verbatim
func (c *Client) do(ctx context.Context, path string, params url.Values, signed bool) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		if err := c.governor.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return nil, err
		}
		if signed {
			// Fresh timestamp and signature on every attempt.
			req.URL.RawQuery = c.sign(params)
		} else {
			req.URL.RawQuery = params.Encode()
		}
		req.Header.Set("X-MBX-APIKEY", c.apiKey)

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			backoff := baseBackoff << attempt
			c.log.Warn().Err(err).Str("path", path).Int("attempt", attempt).
				Dur("backoff", backoff).Msg("Network error")
			lastErr = err
			if attempt < maxRetries-1 {
				if serr := c.sleep(ctx, backoff); serr != nil {
					return nil, serr
				}
			}
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		c.governor.Update(resp.Header.Get("X-MBX-USED-WEIGHT-1M"))
		if readErr != nil {
			lastErr = readErr
			continue
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == 418:
			retryAfter := 60
			if raw := resp.Header.Get("Retry-After"); raw != "" {
				if parsed, perr := strconv.Atoi(raw); perr == nil {
					retryAfter = parsed
				}
			}
			c.log.Warn().Int("status", resp.StatusCode).Int("retry_after", retryAfter).
				Int("attempt", attempt).Str("path", path).Msg("Rate limit hit")
			if attempt < maxRetries-1 {
				if serr := c.sleep(ctx, time.Duration(retryAfter)*time.Second); serr != nil {
					return nil, serr
				}
				continue
			}
			return nil, &RateLimitError{StatusCode: resp.StatusCode, RetryAfter: retryAfter}

		case resp.StatusCode == http.StatusUnauthorized:
			code, msg := parseErrorBody(body)
			return nil, &AuthError{APIError{StatusCode: resp.StatusCode, Code: code, Msg: msg}}

		case resp.StatusCode >= 400:
			code, msg := parseErrorBody(body)
			return nil, &APIError{StatusCode: resp.StatusCode, Code: code, Msg: msg}
		}

		return body, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("max retries exceeded for %s", path)
	}
	return nil, lastErr
}

func parseErrorBody(body []byte) (int, string) {
	var payload struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.Msg == "" {
		return -1, strings.TrimSpace(string(body))
	}
	return payload.Code, payload.Msg
}

// GetAccount fetches current balances for all assets (signed).
func (c *Client) GetAccount(ctx context.Context) (*AccountInfo, error) {
	body, err := c.do(ctx, "/api/v3/account", url.Values{}, true)
	if err != nil {
		return nil, err
	}
	var info AccountInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("decode account: %w", err)
	}
	return &info, nil
}

// GetTickerPrice fetches the current price for one symbol (public).
func (c *Client) GetTickerPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	params := url.Values{"symbol": {symbol}}
	body, err := c.do(ctx, "/api/v3/ticker/price", params, false)
	if err != nil {
		return decimal.Zero, err
	}
	var ticker TickerPrice
	if err := json.Unmarshal(body, &ticker); err != nil {
		return decimal.Zero, fmt.Errorf("decode ticker: %w", err)
	}
	return ticker.Price, nil
}

// getTrades issues one /api/v3/myTrades call. fromID takes priority over
// startTime; endTime is deliberately never sent (the exchange rejects
// windows over 24h with code -1127).
func (c *Client) getTrades(ctx context.Context, symbol string, fromID, startTime int64) ([]Trade, error) {
	params := url.Values{
		"symbol": {symbol},
		"limit":  {strconv.Itoa(pageLimit)},
	}
	if fromID >= 0 {
		params.Set("fromId", strconv.FormatInt(fromID, 10))
	} else if startTime >= 0 {
		params.Set("startTime", strconv.FormatInt(startTime, 10))
	}
	body, err := c.do(ctx, "/api/v3/myTrades", params, true)
	if err != nil {
		return nil, err
	}
	var trades []Trade
	if err := json.Unmarshal(body, &trades); err != nil {
		return nil, fmt.Errorf("decode trades: %w", err)
	}
	return trades, nil
}

// getKlines issues one /api/v3/klines call (public).
func (c *Client) getKlines(ctx context.Context, symbol, interval string, startTime int64) ([]Kline, error) {
	params := url.Values{
		"symbol":   {symbol},
		"interval": {interval},
		"limit":    {strconv.Itoa(pageLimit)},
	}
	if startTime >= 0 {
		params.Set("startTime", strconv.FormatInt(startTime, 10))
	}
	body, err := c.do(ctx, "/api/v3/klines", params, false)
	if err != nil {
		return nil, err
	}
	var klines []Kline
	if err := json.Unmarshal(body, &klines); err != nil {
		return nil, fmt.Errorf("decode klines: %w", err)
	}
	return klines, nil
}

// getDeposits issues one windowed /sapi/v1/capital/deposit/hisrec call.
func (c *Client) getDeposits(ctx context.Context, startTime, endTime int64) ([]Deposit, error) {
	params := url.Values{
		"limit":     {strconv.Itoa(pageLimit)},
		"startTime": {strconv.FormatInt(startTime, 10)},
		"endTime":   {strconv.FormatInt(endTime, 10)},
	}
	body, err := c.do(ctx, "/sapi/v1/capital/deposit/hisrec", params, true)
	if err != nil {
		return nil, err
	}
	var deposits []Deposit
	if err := json.Unmarshal(body, &deposits); err != nil {
		return nil, fmt.Errorf("decode deposits: %w", err)
	}
	return deposits, nil
}

// getWithdrawals issues one windowed /sapi/v1/capital/withdraw/history call.
func (c *Client) getWithdrawals(ctx context.Context, startTime, endTime int64) ([]Withdrawal, error) {
	params := url.Values{
		"limit":     {strconv.Itoa(pageLimit)},
		"startTime": {strconv.FormatInt(startTime, 10)},
		"endTime":   {strconv.FormatInt(endTime, 10)},
	}
	body, err := c.do(ctx, "/sapi/v1/capital/withdraw/history", params, true)
	if err != nil {
		return nil, err
	}
	var withdrawals []Withdrawal
	if err := json.Unmarshal(body, &withdrawals); err != nil {
		return nil, fmt.Errorf("decode withdrawals: %w", err)
	}
	return withdrawals, nil
}

// getFiatOrders issues one /sapi/v1/fiat/orders call.
// transactionType: 0 = fiat deposit, 1 = fiat withdrawal. Requires the
// "Enable Fiat" permission on the API key.
func (c *Client) getFiatOrders(ctx context.Context, transactionType, page int, beginTime, endTime int64) ([]FiatOrder, error) {
	params := url.Values{
		"transactionType": {strconv.Itoa(transactionType)},
		"page":            {strconv.Itoa(page)},
		"rows":            {strconv.Itoa(fiatRows)},
		"beginTime":       {strconv.FormatInt(beginTime, 10)},
		"endTime":         {strconv.FormatInt(endTime, 10)},
	}
	body, err := c.do(ctx, "/sapi/v1/fiat/orders", params, true)
	if err != nil {
		return nil, err
	}
	var resp fiatOrdersResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode fiat orders: %w", err)
	}
	return resp.Data, nil
}
