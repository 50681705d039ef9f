package analytics_test

import (
	"math"
	"testing"
	"time"

	"github.com/papertrade-simulator/internal/analytics"
	"github.com/papertrade-simulator/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buy(symbol string, qty, price float64) models.Order {
	return models.Order{
		Symbol:     symbol,
		Side:       models.OrderSideBuy,
		Quantity:   qty,
		Price:      price,
		Commission: qty * price * 0.001,
		CreatedAt:  time.Now(),
	}
}

func sell(symbol string, qty, price, realizedPL float64) models.Order {
	return models.Order{
		Symbol:     symbol,
		Side:       models.OrderSideSell,
		Quantity:   qty,
		Price:      price,
		Commission: qty * price * 0.001,
		RealizedPL: &realizedPL,
		CreatedAt:  time.Now(),
	}
}

func TestComputeEmptyHistory(t *testing.T) {
	report := analytics.Compute(nil, 100000)

	assert.Zero(t, report.TotalOrders)
	assert.Zero(t, report.ClosingTrades)
	assert.Zero(t, report.WinRate)
	assert.Zero(t, report.ProfitFactor)
	assert.Zero(t, report.SharpeRatio)
	assert.Zero(t, report.MaxDrawdown)
}

func TestComputeCountsOnlyClosingTrades(t *testing.T) {
	orders := []models.Order{
		buy("AAPL", 10, 100),
		sell("AAPL", 5, 110, 49.45),
		buy("MSFT", 10, 300),
		sell("AAPL", 5, 90, -50.45),
	}

	report := analytics.Compute(orders, 100000)
	assert.Equal(t, 4, report.TotalOrders)
	assert.Equal(t, 2, report.ClosingTrades)
	assert.Equal(t, 1, report.WinningTrades)
	assert.Equal(t, 1, report.LosingTrades)
	assert.InDelta(t, 0.5, report.WinRate, 1e-9)
	assert.InDelta(t, 49.45, report.AvgWin, 1e-9)
	assert.InDelta(t, 50.45, report.AvgLoss, 1e-9)
	assert.InDelta(t, 49.45/50.45, report.ProfitFactor, 1e-9)
	assert.InDelta(t, -1.0, report.TotalRealizedPL, 1e-9)
}

func TestComputeProfitFactorInfiniteWithNoLosses(t *testing.T) {
	orders := []models.Order{
		buy("AAPL", 10, 100),
		sell("AAPL", 10, 110, 98.9),
	}

	report := analytics.Compute(orders, 100000)
	assert.True(t, math.IsInf(report.ProfitFactor, 1))
	assert.InDelta(t, 1.0, report.WinRate, 1e-9)
	// With no losses Kelly degrades to the win rate.
	assert.InDelta(t, 1.0, report.KellyFraction, 1e-9)
}

func TestComputeExpectancyAndKelly(t *testing.T) {
	// 2 wins of 100, 2 losses of 50: win rate 0.5, payoff 2.
	orders := []models.Order{
		sell("A", 1, 10, 100),
		sell("A", 1, 10, 100),
		sell("A", 1, 10, -50),
		sell("A", 1, 10, -50),
	}

	report := analytics.Compute(orders, 100000)
	assert.InDelta(t, 0.5*100-0.5*50, report.Expectancy, 1e-9)
	// Kelly = w - (1-w)/payoff = 0.5 - 0.5/2
	assert.InDelta(t, 0.25, report.KellyFraction, 1e-9)
}

func TestComputeIsIdempotent(t *testing.T) {
	orders := []models.Order{
		buy("AAPL", 10, 100),
		sell("AAPL", 10, 95, -50.95),
		buy("TSLA", 5, 200),
		sell("TSLA", 5, 220, 98.9),
	}

	first := analytics.Compute(orders, 100000)
	second := analytics.Compute(orders, 100000)
	assert.Equal(t, first, second)
}

func TestComputeMaxDrawdown(t *testing.T) {
	// Buy at 100, price doubles, then collapses to 50 before the close.
	orders := []models.Order{
		buy("AAPL", 100, 100),
		sell("AAPL", 50, 200, 4990),
		sell("AAPL", 50, 50, -2502.5),
	}

	report := analytics.Compute(orders, 100000)
	assert.Greater(t, report.MaxDrawdown, 0.0)
	assert.Less(t, report.MaxDrawdown, 1.0)
}

func TestValueAtRisk(t *testing.T) {
	orders := make([]models.Order, 0, 10)
	// Losses from -1000 to -100, then wins.
	pls := []float64{-1000, -800, -600, -400, -200, 100, 200, 300, 400, 500}
	for _, pl := range pls {
		orders = append(orders, sell("A", 1, 10, pl))
	}

	// 85% confidence over 10 trades: index floor(0.15*10)=1, the second
	// worst return (-800/100000), scaled by current capital.
	v := analytics.ValueAtRisk(orders, 100000, 100000, 0.85)
	assert.InDelta(t, 800.0, v, 1e-6)

	// Scaling by grown capital.
	v = analytics.ValueAtRisk(orders, 100000, 200000, 0.85)
	assert.InDelta(t, 1600.0, v, 1e-6)

	// At very high confidence the estimate degrades to the worst trade.
	v = analytics.ValueAtRisk(orders, 100000, 100000, 0.99)
	assert.InDelta(t, 1000.0, v, 1e-6)
}

func TestValueAtRiskAllWinners(t *testing.T) {
	orders := []models.Order{
		sell("A", 1, 10, 100),
		sell("A", 1, 10, 200),
	}
	assert.Zero(t, analytics.ValueAtRisk(orders, 100000, 100000, 0.95))
}

func TestValueAtRiskEmptyHistory(t *testing.T) {
	assert.Zero(t, analytics.ValueAtRisk(nil, 100000, 100000, 0.95))

	// Open positions alone do not contribute.
	orders := []models.Order{buy("AAPL", 10, 100)}
	assert.Zero(t, analytics.ValueAtRisk(orders, 100000, 100000, 0.95))
}

func TestValueAtRiskRejectsBadConfidence(t *testing.T) {
	orders := []models.Order{sell("A", 1, 10, -100)}
	assert.Zero(t, analytics.ValueAtRisk(orders, 100000, 100000, 0))
	assert.Zero(t, analytics.ValueAtRisk(orders, 100000, 100000, 1))
}

func TestSharpeZeroForFlatCurve(t *testing.T) {
	// A single round trip with no net movement produces too few distinct
	// returns for a meaningful ratio.
	orders := []models.Order{
		buy("AAPL", 1, 100),
	}
	report := analytics.Compute(orders, 100000)
	assert.Zero(t, report.SharpeRatio)
	require.Equal(t, 1, report.TotalOrders)
}
