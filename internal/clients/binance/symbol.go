package binance

// quoteAssets are the recognized quote currencies, matched against the
// symbol suffix in this order.
var quoteAssets = []string{"USDT", "BUSD", "FDUSD", "BTC", "ETH", "BNB", "EUR", "USD"}

// ParseSymbol splits an exchange pair into base and quote assets, e.g.
// BTCUSDT -> (BTC, USDT), ETHBTC -> (ETH, BTC). The myTrades endpoint does
// not return base/quote so they must be derived from the symbol. When no
// known quote suffix matches, the whole symbol is taken as the base with
// USDT as a conservative default quote; callers keep the full pair in the
// stored payload so collisions stay recoverable.
func ParseSymbol(symbol string) (base, quote string) {
	for _, q := range quoteAssets {
		if len(symbol) > len(q) && symbol[len(symbol)-len(q):] == q {
			return symbol[:len(symbol)-len(q)], q
		}
	}
	return symbol, "USDT"
}
