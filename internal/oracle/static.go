package oracle

// staticPrices is the offline fallback table used when no live source is
// reachable. Values are plausible reference prices, not quotes.
var staticPrices = map[string]float64{
	"AAPL":  150.0,
	"MSFT":  330.0,
	"GOOGL": 130.0,
	"AMZN":  135.0,
	"META":  300.0,
	"NVDA":  450.0,
	"TSLA":  250.0,
	"NFLX":  420.0,
	"AMD":   110.0,
	"INTC":  35.0,
	"BABA":  85.0,
	"ORCL":  115.0,
	"CRM":   210.0,
	"UBER":  45.0,
	"COIN":  75.0,
	"SPY":   440.0,
	"QQQ":   370.0,
}

// StaticPrice exposes a single static table lookup.
func StaticPrice(symbol string) (float64, bool) {
	price, ok := staticPrices[symbol]
	return price, ok
}
