package risk_test

import (
	"testing"
	"time"

	"github.com/papertrade-simulator/internal/models"
	"github.com/papertrade-simulator/internal/risk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T, params risk.Parameters) *risk.Manager {
	t.Helper()
	m, err := risk.NewManager(params)
	require.NoError(t, err)
	return m
}

func TestNewManagerRejectsInvalidParameters(t *testing.T) {
	params := risk.DefaultParameters()
	params.MaxPositionSizeFraction = 1.5
	_, err := risk.NewManager(params)
	assert.Error(t, err)
}

func TestCheckOrderPositionSizeLimit(t *testing.T) {
	m := newManager(t, risk.DefaultParameters()) // 20% of capital
	stats := risk.AccountStats{InitialCapital: 100000}

	// 20000 exactly at the limit passes, a cent over does not.
	assert.NoError(t, m.CheckOrder(stats, 100, 200))
	assert.ErrorIs(t, m.CheckOrder(stats, 100, 200.01), risk.ErrLimitExceeded)
}

func TestCheckOrderSizeLimitIgnoresCurrentBalance(t *testing.T) {
	// The limit is a fraction of initial capital even when the account has
	// grown enough to afford more.
	m := newManager(t, risk.DefaultParameters())
	stats := risk.AccountStats{InitialCapital: 100000}
	assert.ErrorIs(t, m.CheckOrder(stats, 300, 100), risk.ErrLimitExceeded)
}

func TestCheckOrderDailyLossBreaker(t *testing.T) {
	m := newManager(t, risk.DefaultParameters()) // 5% daily loss
	stats := risk.AccountStats{InitialCapital: 100000, TodayLoss: 5001}
	assert.ErrorIs(t, m.CheckOrder(stats, 1, 100), risk.ErrLimitExceeded)

	stats.TodayLoss = 4999
	assert.NoError(t, m.CheckOrder(stats, 1, 100))
}

func TestCheckOrderConsecutiveLosses(t *testing.T) {
	m := newManager(t, risk.DefaultParameters()) // 3 in a row
	stats := risk.AccountStats{InitialCapital: 100000, ConsecutiveLosses: 3}
	assert.ErrorIs(t, m.CheckOrder(stats, 1, 100), risk.ErrLimitExceeded)

	stats.ConsecutiveLosses = 2
	assert.NoError(t, m.CheckOrder(stats, 1, 100))
}

func TestEvaluateTrailingStopBoundary(t *testing.T) {
	m := newManager(t, risk.DefaultParameters()) // 3% trailing

	pos := &models.Position{
		Symbol:           "AAPL",
		Quantity:         10,
		AvgCost:          150,
		HighestPriceSeen: 160,
		OpenedAt:         time.Now(),
	}

	// Floor is 160 * 0.97 = 155.2; at the floor the stop fires.
	a := m.Evaluate(pos, 155.2, 0.01)
	assert.Equal(t, risk.ActionSell, a.Action)
	assert.InDelta(t, 1.0, a.SellFraction, 1e-9)

	// A tenth above the floor holds.
	a = m.Evaluate(pos, 155.3, 0.01)
	assert.Equal(t, risk.ActionHold, a.Action)
}

func TestEvaluateAdvancesHighWaterMark(t *testing.T) {
	m := newManager(t, risk.DefaultParameters())

	pos := &models.Position{
		Symbol:           "AAPL",
		Quantity:         10,
		AvgCost:          150,
		HighestPriceSeen: 150,
		OpenedAt:         time.Now(),
	}

	a := m.Evaluate(pos, 158, 0.01)
	assert.Equal(t, risk.ActionHold, a.Action)
	assert.InDelta(t, 158.0, pos.HighestPriceSeen, 1e-9)
}

func TestEvaluateVolatilityWidensFixedStop(t *testing.T) {
	params := risk.DefaultParameters()
	params.TrailingStopFraction = 0 // isolate the fixed stop
	m := newManager(t, params)

	pos := &models.Position{
		Symbol:           "TSLA",
		Quantity:         10,
		AvgCost:          100,
		HighestPriceSeen: 100,
		OpenedAt:         time.Now(),
	}

	// Down 8%: with calm prices the 5% stop fires.
	a := m.Evaluate(pos, 92, 0.02)
	assert.Equal(t, risk.ActionSell, a.Action)

	// The same drawdown with 20% volatility widens the stop to 10%.
	pos.HighestPriceSeen = 100
	a = m.Evaluate(pos, 92, 0.20)
	assert.Equal(t, risk.ActionHold, a.Action)
}

func TestVolatilityThresholdCapsStopWidening(t *testing.T) {
	params := risk.DefaultParameters()
	params.TrailingStopFraction = 0
	m := newManager(t, params) // threshold 0.10

	pos := &models.Position{
		Symbol:           "TSLA",
		Quantity:         10,
		AvgCost:          100,
		HighestPriceSeen: 100,
		OpenedAt:         time.Now(),
	}

	// 40% volatility would widen the stop to 20%; the threshold caps it
	// at 10%, so a 12% drawdown still triggers.
	a := m.Evaluate(pos, 88, 0.40)
	assert.Equal(t, risk.ActionSell, a.Action)

	// Raising the threshold lets the same volatility hold the position.
	params.VolatilityThreshold = 0.30
	require.NoError(t, m.SetParameters(params))
	pos.HighestPriceSeen = 100
	a = m.Evaluate(pos, 88, 0.40)
	assert.Equal(t, risk.ActionHold, a.Action)
}

func TestEvaluateTakeProfit(t *testing.T) {
	m := newManager(t, risk.DefaultParameters()) // 15% target

	pos := &models.Position{
		Symbol:           "AAPL",
		Quantity:         10,
		AvgCost:          100,
		HighestPriceSeen: 100,
		OpenedAt:         time.Now(),
	}

	a := m.Evaluate(pos, 115, 0.01)
	assert.Equal(t, risk.ActionSell, a.Action)
	assert.InDelta(t, 1.0, a.SellFraction, 1e-9)
}

func TestEvaluateTimeStopPartialExit(t *testing.T) {
	params := risk.DefaultParameters()
	params.TrailingStopFraction = 0
	m := newManager(t, params)

	pos := &models.Position{
		Symbol:           "MSFT",
		Quantity:         10,
		AvgCost:          100,
		HighestPriceSeen: 100,
		OpenedAt:         time.Now().Add(-6 * 24 * time.Hour),
	}

	// Slightly under water for six days: not enough for the stop loss,
	// but the time stop recommends selling half.
	a := m.Evaluate(pos, 99, 0.01)
	assert.Equal(t, risk.ActionSell, a.Action)
	assert.InDelta(t, 0.5, a.SellFraction, 1e-9)

	// The same position in profit is left alone.
	a = m.Evaluate(pos, 101, 0.01)
	assert.Equal(t, risk.ActionHold, a.Action)
}

func TestEstimateVolatility(t *testing.T) {
	// Too few samples falls back to the flat default.
	assert.InDelta(t, 0.05, risk.EstimateVolatility([]float64{100, 101}), 1e-9)
	assert.InDelta(t, 0.05, risk.EstimateVolatility(nil), 1e-9)

	// Constant prices have zero volatility.
	assert.InDelta(t, 0.0, risk.EstimateVolatility([]float64{100, 100, 100, 100, 100, 100}), 1e-9)

	// Alternating moves produce a positive estimate.
	v := risk.EstimateVolatility([]float64{100, 110, 100, 110, 100, 110})
	assert.Greater(t, v, 0.01)
}

func TestSetParametersValidates(t *testing.T) {
	m := newManager(t, risk.DefaultParameters())

	bad := risk.DefaultParameters()
	bad.MaxDailyLossFraction = -1
	assert.Error(t, m.SetParameters(bad))

	good := risk.DefaultParameters()
	good.StopLossFraction = 0.08
	require.NoError(t, m.SetParameters(good))
	assert.InDelta(t, 0.08, m.Parameters().StopLossFraction, 1e-9)
}
