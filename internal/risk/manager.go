package risk

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/papertrade-simulator/internal/models"
)

var (
	// ErrLimitExceeded is the pre-trade gate rejection, distinct from
	// insufficient funds.
	ErrLimitExceeded = errors.New("risk limit exceeded")
)

const (
	// defaultVolatility is assumed when a symbol has too few price samples.
	defaultVolatility = 0.05
	// minVolatilitySamples is the number of prices needed before the
	// estimator trusts its own output.
	minVolatilitySamples = 5
	// timeStopHoldingPeriod is how long a losing position may be held
	// before the time stop recommends a partial exit.
	timeStopHoldingPeriod = 5 * 24 * time.Hour
	// timeStopSellFraction is the share of the position the time stop
	// recommends selling.
	timeStopSellFraction = 0.5
)

// Action is the monitor's recommendation for a position.
type Action string

const (
	ActionHold Action = "HOLD"
	ActionSell Action = "SELL_RECOMMENDED"
)

// Assessment is one evaluation cycle's outcome for one position. It is
// advisory: the caller decides whether to auto-execute the exit, and the
// position returns to HOLD on the next cycle if conditions clear.
type Assessment struct {
	Symbol       string  `json:"symbol"`
	Action       Action  `json:"action"`
	SellFraction float64 `json:"sell_fraction,omitempty"`
	Reason       string  `json:"reason"`
}

// AccountStats is the pre-trade snapshot the gate checks against.
type AccountStats struct {
	InitialCapital    float64
	TodayLoss         float64
	ConsecutiveLosses int
}

// Manager evaluates pre-trade gates and post-trade exit conditions.
type Manager struct {
	mu     sync.RWMutex
	params Parameters
}

// NewManager creates a risk manager with validated parameters.
func NewManager(params Parameters) (*Manager, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid risk parameters: %w", err)
	}
	log.Printf("[Risk] manager initialized: stop_loss=%.1f%% trailing=%.1f%% max_position=%.0f%%",
		params.StopLossFraction*100, params.TrailingStopFraction*100, params.MaxPositionSizeFraction*100)
	return &Manager{params: params}, nil
}

// Parameters returns a copy of the active parameters.
func (m *Manager) Parameters() Parameters {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.params
}

// SetParameters replaces the active parameters after validation.
func (m *Manager) SetParameters(params Parameters) error {
	if err := params.Validate(); err != nil {
		return fmt.Errorf("invalid risk parameters: %w", err)
	}
	m.mu.Lock()
	m.params = params
	m.mu.Unlock()
	return nil
}

// CheckOrder is the pre-trade gate for buys. A rejection is fatal to this
// order only. Position-size is checked against initial capital regardless
// of current balance sufficiency.
func (m *Manager) CheckOrder(stats AccountStats, quantity, price float64) error {
	params := m.Parameters()

	notional := quantity * price
	if maxSize := stats.InitialCapital * params.MaxPositionSizeFraction; notional > maxSize {
		return fmt.Errorf("%w: order value %.2f exceeds position size limit %.2f",
			ErrLimitExceeded, notional, maxSize)
	}

	if maxLoss := stats.InitialCapital * params.MaxDailyLossFraction; stats.TodayLoss > maxLoss {
		return fmt.Errorf("%w: daily loss %.2f has tripped the circuit breaker (limit %.2f)",
			ErrLimitExceeded, stats.TodayLoss, maxLoss)
	}

	if params.MaxConsecutiveLosses > 0 && stats.ConsecutiveLosses >= params.MaxConsecutiveLosses {
		return fmt.Errorf("%w: %d consecutive losing trades (limit %d)",
			ErrLimitExceeded, stats.ConsecutiveLosses, params.MaxConsecutiveLosses)
	}

	return nil
}

// Evaluate runs one monitoring cycle for an open position against the
// current price. It advances the position's trailing high-water mark as a
// side effect; the caller persists the position afterwards.
//
// Checks run in a fixed order: trailing stop, then the
// volatility-adjusted fixed stop, then the take-profit target, then the
// time stop. The first one that fires wins the cycle.
func (m *Manager) Evaluate(pos *models.Position, currentPrice, volatility float64) Assessment {
	params := m.Parameters()

	if currentPrice > pos.HighestPriceSeen {
		pos.HighestPriceSeen = currentPrice
	}

	hold := Assessment{Symbol: pos.Symbol, Action: ActionHold, Reason: "within risk limits"}
	if pos.Quantity <= 0 {
		return hold
	}

	// Trailing stop references the highest price observed, not the entry.
	trailingFloor := pos.HighestPriceSeen * (1 - params.TrailingStopFraction)
	if params.TrailingStopFraction > 0 && currentPrice <= trailingFloor {
		return Assessment{
			Symbol:       pos.Symbol,
			Action:       ActionSell,
			SellFraction: 1,
			Reason: fmt.Sprintf("position below trailing stop: price %.2f <= %.2f (high %.2f)",
				currentPrice, trailingFloor, pos.HighestPriceSeen),
		}
	}

	plFraction := pos.UnrealizedPLFraction(currentPrice)

	// A volatile symbol widens its own stop so routine noise does not
	// shake the position out, capped at the volatility threshold so a
	// wild estimate cannot disable the stop entirely.
	widening := volatility * 0.5
	if params.VolatilityThreshold > 0 && widening > params.VolatilityThreshold {
		widening = params.VolatilityThreshold
	}
	dynamicStop := math.Max(params.StopLossFraction, widening)
	if plFraction < -dynamicStop {
		return Assessment{
			Symbol:       pos.Symbol,
			Action:       ActionSell,
			SellFraction: 1,
			Reason: fmt.Sprintf("stop loss: unrealized %.2f%% below dynamic stop %.2f%%",
				plFraction*100, dynamicStop*100),
		}
	}

	if params.TakeProfitFraction > 0 && plFraction >= params.TakeProfitFraction {
		return Assessment{
			Symbol:       pos.Symbol,
			Action:       ActionSell,
			SellFraction: 1,
			Reason: fmt.Sprintf("take profit: unrealized %.2f%% above target %.2f%%",
				plFraction*100, params.TakeProfitFraction*100),
		}
	}

	if plFraction < 0 && time.Since(pos.OpenedAt) > timeStopHoldingPeriod {
		return Assessment{
			Symbol:       pos.Symbol,
			Action:       ActionSell,
			SellFraction: timeStopSellFraction,
			Reason: fmt.Sprintf("time stop: held %.0f days with unrealized %.2f%%",
				time.Since(pos.OpenedAt).Hours()/24, plFraction*100),
		}
	}

	return hold
}

// EstimateVolatility returns the standard deviation of period-over-period
// returns for a symbol's own execution prices. With fewer than five
// samples the estimator returns a flat default.
func EstimateVolatility(prices []float64) float64 {
	if len(prices) < minVolatilitySamples {
		return defaultVolatility
	}

	returns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] == 0 {
			continue
		}
		returns = append(returns, (prices[i]-prices[i-1])/prices[i-1])
	}
	if len(returns) == 0 {
		return defaultVolatility
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

	return math.Sqrt(variance)
}
