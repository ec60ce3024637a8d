package binance

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSymbol(t *testing.T) {
	tests := []struct {
		symbol string
		base   string
		quote  string
	}{
		{"BTCUSDT", "BTC", "USDT"},
		{"BTCEUR", "BTC", "EUR"},
		{"BTCBUSD", "BTC", "BUSD"},
		{"BTCFDUSD", "BTC", "FDUSD"},
		{"ETHBTC", "ETH", "BTC"},
		{"SOLBNB", "SOL", "BNB"},
		{"EURUSDT", "EUR", "USDT"},
		// No recognized suffix: whole symbol as base, USDT default quote.
		{"WEIRDPAIR", "WEIRDPAIR", "USDT"},
	}

	for _, tt := range tests {
		t.Run(tt.symbol, func(t *testing.T) {
			base, quote := ParseSymbol(tt.symbol)
			assert.Equal(t, tt.base, base)
			assert.Equal(t, tt.quote, quote)
		})
	}
}

func TestParseSymbol_QuoteOnlySymbolIsNotSplitEmpty(t *testing.T) {
	// A symbol equal to a quote asset must not produce an empty base.
	base, quote := ParseSymbol("USDT")
	assert.Equal(t, "USDT", base)
	assert.Equal(t, "USDT", quote)
}
