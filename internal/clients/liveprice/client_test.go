package liveprice

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, coingecko, kraken http.Handler) *Client {
	t.Helper()
	c := New(zerolog.Nop())
	if coingecko != nil {
		srv := httptest.NewServer(coingecko)
		t.Cleanup(srv.Close)
		c.coingeckoURL = srv.URL
	} else {
		c.coingeckoURL = "http://127.0.0.1:1" // closed port
	}
	if kraken != nil {
		srv := httptest.NewServer(kraken)
		t.Cleanup(srv.Close)
		c.krakenURL = srv.URL
	} else {
		c.krakenURL = "http://127.0.0.1:1"
	}
	return c
}

func coingeckoOK(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte(`{"bitcoin":{"eur":58000.12,"usd":63000.45}}`))
}

func krakenOK(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte(`{"error":[],"result":{
		"XXBTZEUR":{"c":["57900.00","0.1"]},
		"XXBTZUSD":{"c":["62900.00","0.1"]}}}`))
}

func TestGetBTCPrice_PrimaryProvider(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(coingeckoOK), nil)

	q := c.GetBTCPrice(context.Background())

	assert.Equal(t, "coingecko", q.Source)
	require.NotNil(t, q.BTCEUR)
	require.NotNil(t, q.BTCUSD)
	assert.Equal(t, "58000.12", q.BTCEUR.String())
	assert.Equal(t, "63000.45", q.BTCUSD.String())
}

func TestGetBTCPrice_FallsBackToKraken(t *testing.T) {
	c := newTestClient(t, nil, http.HandlerFunc(krakenOK))

	q := c.GetBTCPrice(context.Background())

	assert.Equal(t, "kraken", q.Source)
	require.NotNil(t, q.BTCEUR)
	require.NotNil(t, q.BTCUSD)
	assert.Equal(t, "57900", q.BTCEUR.String())
	assert.Equal(t, "62900", q.BTCUSD.String())
}

func TestGetBTCPrice_PrimaryErrorStatusFallsBack(t *testing.T) {
	rateLimited := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	c := newTestClient(t, rateLimited, http.HandlerFunc(krakenOK))

	q := c.GetBTCPrice(context.Background())
	assert.Equal(t, "kraken", q.Source)
}

func TestGetBTCPrice_AllProvidersDown(t *testing.T) {
	c := newTestClient(t, nil, nil)

	q := c.GetBTCPrice(context.Background())

	assert.Equal(t, "unavailable", q.Source)
	assert.Nil(t, q.BTCEUR)
	assert.Nil(t, q.BTCUSD)
}

func TestGetBTCPrice_KrakenErrorPayload(t *testing.T) {
	krakenErr := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":["EGeneral:Internal error"],"result":{}}`))
	})
	c := newTestClient(t, nil, krakenErr)

	q := c.GetBTCPrice(context.Background())
	assert.Equal(t, "unavailable", q.Source)
}

func TestGetBTCPrice_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	coingeckoCalls := 0
	failing := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		coingeckoCalls++
		w.WriteHeader(http.StatusInternalServerError)
	})
	c := newTestClient(t, failing, http.HandlerFunc(krakenOK))

	for i := 0; i < 5; i++ {
		q := c.GetBTCPrice(context.Background())
		assert.Equal(t, "kraken", q.Source)
	}

	// After three consecutive failures the breaker short-circuits the
	// primary instead of issuing more requests.
	assert.Equal(t, 3, coingeckoCalls)
}
