// Package analytics derives performance statistics from a user's order
// log. Everything here is a pure function of the log: nothing is cached
// or incrementally maintained, and running a computation twice over an
// unchanged log yields identical numbers.
package analytics

import (
	"math"
	"sort"

	"github.com/papertrade-simulator/internal/models"
)

// Report aggregates the standard performance measures over an order log.
type Report struct {
	TotalOrders     int     `json:"total_orders"`
	ClosingTrades   int     `json:"closing_trades"`
	WinningTrades   int     `json:"winning_trades"`
	LosingTrades    int     `json:"losing_trades"`
	WinRate         float64 `json:"win_rate"`
	AvgWin          float64 `json:"avg_win"`
	AvgLoss         float64 `json:"avg_loss"`
	ProfitFactor    float64 `json:"profit_factor"`
	Expectancy      float64 `json:"expectancy"`
	KellyFraction   float64 `json:"kelly_fraction"`
	SharpeRatio     float64 `json:"sharpe_ratio"`
	MaxDrawdown     float64 `json:"max_drawdown"`
	TotalRealizedPL float64 `json:"total_realized_pl"`
	TotalCommission float64 `json:"total_commission"`
}

// Compute builds a Report from the order history. Empty or single-entry
// histories produce zeros (and an infinite profit factor when there are
// wins but no losses) rather than errors.
func Compute(orders []models.Order, initialCapital float64) Report {
	var report Report
	report.TotalOrders = len(orders)

	var grossProfit, grossLoss float64
	for _, o := range orders {
		report.TotalCommission += o.Commission
		if !o.IsClosing() {
			continue
		}

		pl := *o.RealizedPL
		report.ClosingTrades++
		report.TotalRealizedPL += pl
		if pl > 0 {
			report.WinningTrades++
			grossProfit += pl
		} else if pl < 0 {
			report.LosingTrades++
			grossLoss += -pl
		}
	}

	if report.ClosingTrades > 0 {
		report.WinRate = float64(report.WinningTrades) / float64(report.ClosingTrades)
	}
	if report.WinningTrades > 0 {
		report.AvgWin = grossProfit / float64(report.WinningTrades)
	}
	if report.LosingTrades > 0 {
		report.AvgLoss = grossLoss / float64(report.LosingTrades)
	}

	switch {
	case grossLoss > 0:
		report.ProfitFactor = grossProfit / grossLoss
	case grossProfit > 0:
		report.ProfitFactor = math.Inf(1)
	}

	report.Expectancy = report.WinRate*report.AvgWin - (1-report.WinRate)*report.AvgLoss

	// Kelly is reported raw: callers decide whether to floor at zero.
	if report.AvgLoss > 0 && report.AvgWin > 0 {
		payoff := report.AvgWin / report.AvgLoss
		report.KellyFraction = report.WinRate - (1-report.WinRate)/payoff
	} else if report.AvgLoss == 0 && report.WinningTrades > 0 {
		report.KellyFraction = report.WinRate
	}

	snapshots := equityCurve(orders, initialCapital)
	report.SharpeRatio = sharpe(snapshots)
	report.MaxDrawdown = maxDrawdown(snapshots)

	return report
}

// equityCurve replays the order log and records the portfolio value after
// each transaction: cash plus every open quantity marked at the symbol's
// last execution price.
func equityCurve(orders []models.Order, initialCapital float64) []float64 {
	cash := initialCapital
	quantities := make(map[string]float64)
	lastPrice := make(map[string]float64)

	curve := make([]float64, 0, len(orders)+1)
	curve = append(curve, initialCapital)

	for _, o := range orders {
		notional := o.Notional()
		if o.Side == models.OrderSideBuy {
			cash -= notional + o.Commission
			quantities[o.Symbol] += o.Quantity
		} else {
			cash += notional - o.Commission
			quantities[o.Symbol] -= o.Quantity
			if quantities[o.Symbol] <= 0 {
				delete(quantities, o.Symbol)
			}
		}
		lastPrice[o.Symbol] = o.Price

		value := cash
		for symbol, qty := range quantities {
			value += qty * lastPrice[symbol]
		}
		curve = append(curve, value)
	}

	return curve
}

// sharpe is the mean of period returns over their standard deviation,
// not annualized.
func sharpe(snapshots []float64) float64 {
	returns := periodReturns(snapshots)
	if len(returns) < 2 {
		return 0
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))

	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}
	return mean / std
}

// maxDrawdown is the largest peak-to-trough fractional decline across the
// snapshot sequence.
func maxDrawdown(snapshots []float64) float64 {
	var peak, worst float64
	for _, v := range snapshots {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			if dd := (peak - v) / peak; dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

func periodReturns(snapshots []float64) []float64 {
	returns := make([]float64, 0, len(snapshots))
	for i := 1; i < len(snapshots); i++ {
		if snapshots[i-1] == 0 {
			continue
		}
		returns = append(returns, (snapshots[i]-snapshots[i-1])/snapshots[i-1])
	}
	return returns
}

// ValueAtRisk returns the potential loss at the given confidence level as
// a positive amount of current capital, from the historical distribution
// of per-trade returns. An empty history yields 0.
func ValueAtRisk(orders []models.Order, initialCapital, currentCapital, confidence float64) float64 {
	if confidence <= 0 || confidence >= 1 || initialCapital <= 0 {
		return 0
	}

	returns := make([]float64, 0)
	for _, o := range orders {
		if o.IsClosing() {
			returns = append(returns, *o.RealizedPL/initialCapital)
		}
	}
	if len(returns) == 0 {
		return 0
	}

	sort.Float64s(returns)
	idx := int(math.Floor((1 - confidence) * float64(len(returns))))
	if idx >= len(returns) {
		idx = len(returns) - 1
	}

	p := returns[idx]
	if p > 0 {
		return 0
	}
	return -p * currentCapital
}
