package backtest

// Built-in signal functions. Each constructor captures its configuration
// and per-symbol state in the returned closure, so a Strategy value is
// single-use per Run.

// MomentumStrategy buys when price crosses above its moving average and
// sells the full position when it crosses back below.
func MomentumStrategy(lookback int, quantity float64) Strategy {
	if lookback < 2 {
		lookback = 2
	}
	windows := make(map[string][]float64)

	return Strategy{
		ID: "momentum",
		Signal: func(tick Tick, portfolio *Portfolio) Signal {
			w := append(windows[tick.Symbol], tick.Price)
			if len(w) > lookback {
				w = w[len(w)-lookback:]
			}
			windows[tick.Symbol] = w

			if len(w) < lookback {
				return Signal{Action: Hold}
			}

			avg := mean(w)
			pos, held := portfolio.Positions[tick.Symbol]

			if tick.Price > avg && !held {
				return Signal{Action: Buy, Quantity: quantity}
			}
			if tick.Price < avg && held {
				return Signal{Action: Sell, Quantity: pos.Quantity}
			}
			return Signal{Action: Hold}
		},
	}
}

// MeanReversionStrategy buys when price dips below the moving average by
// the threshold fraction and sells when it stretches above by the same
// amount.
func MeanReversionStrategy(lookback int, threshold, quantity float64) Strategy {
	if lookback < 2 {
		lookback = 2
	}
	windows := make(map[string][]float64)

	return Strategy{
		ID: "mean_reversion",
		Signal: func(tick Tick, portfolio *Portfolio) Signal {
			w := append(windows[tick.Symbol], tick.Price)
			if len(w) > lookback {
				w = w[len(w)-lookback:]
			}
			windows[tick.Symbol] = w

			if len(w) < lookback {
				return Signal{Action: Hold}
			}

			avg := mean(w)
			pos, held := portfolio.Positions[tick.Symbol]

			if tick.Price < avg*(1-threshold) && !held {
				return Signal{Action: Buy, Quantity: quantity}
			}
			if tick.Price > avg*(1+threshold) && held {
				return Signal{Action: Sell, Quantity: pos.Quantity}
			}
			return Signal{Action: Hold}
		},
	}
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
