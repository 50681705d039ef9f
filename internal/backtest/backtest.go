// Package backtest replays historical price series through a signal
// function against an isolated, disposable ledger. The live account is
// never touched; cost, commission, and PL arithmetic mirror the
// execution engine exactly so backtested numbers are comparable.
package backtest

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/papertrade-simulator/internal/analytics"
	"github.com/papertrade-simulator/internal/models"
)

var (
	ErrNoSeries   = errors.New("empty historical series")
	ErrNoStrategy = errors.New("strategy has no signal function")
)

// Tick is one point of a historical price series.
type Tick struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

// Action is a signal's instruction for one tick.
type Action string

const (
	Hold Action = "hold"
	Buy  Action = "buy"
	Sell Action = "sell"
)

// Signal is the output of a strategy for one tick.
type Signal struct {
	Action   Action
	Quantity float64
}

// SimPosition is an open holding inside the simulated ledger.
type SimPosition struct {
	Quantity         float64
	AvgCost          float64
	HighestPriceSeen float64
	OpenedAt         time.Time
}

// Portfolio is the read view handed to the signal function each tick.
type Portfolio struct {
	Cash      float64
	Positions map[string]*SimPosition
}

// SignalFunc decides an action from the current tick and open positions.
// Strategy configuration is captured by the closure.
type SignalFunc func(tick Tick, portfolio *Portfolio) Signal

// Strategy pairs an identifier with its signal function.
type Strategy struct {
	ID     string
	Signal SignalFunc
}

// Result is the disposable outcome of one run: the simulated trade list
// and its aggregated performance. Nothing here is merged into any live
// account.
type Result struct {
	StrategyID   string           `json:"strategy_id"`
	Ticks        int              `json:"ticks"`
	Orders       []models.Order   `json:"orders"`
	FinalEquity  float64          `json:"final_equity"`
	TotalReturn  float64          `json:"total_return_pct"`
	Report       analytics.Report `json:"report"`
}

// Engine runs strategies against historical series.
type Engine struct {
	initialCapital float64
	commissionRate float64
}

// NewEngine creates a backtest engine with the same capital and
// commission settings as the live execution engine.
func NewEngine(initialCapital, commissionRate float64) *Engine {
	if initialCapital <= 0 {
		initialCapital = models.DefaultInitialCapital
	}
	return &Engine{
		initialCapital: initialCapital,
		commissionRate: commissionRate,
	}
}

// Run iterates the series in timestamp order, invoking the strategy once
// per tick. A buy is accepted only if simulated capital covers its cost,
// a sell only against an existing simulated position; any other signal is
// a no-op tick, never an error, so historical replay cannot halt.
func (e *Engine) Run(strategy Strategy, series []Tick) (*Result, error) {
	if strategy.Signal == nil {
		return nil, ErrNoStrategy
	}
	if len(series) == 0 {
		return nil, ErrNoSeries
	}

	ticks := make([]Tick, len(series))
	copy(ticks, series)
	sort.SliceStable(ticks, func(i, j int) bool {
		return ticks[i].Timestamp.Before(ticks[j].Timestamp)
	})

	portfolio := &Portfolio{
		Cash:      e.initialCapital,
		Positions: make(map[string]*SimPosition),
	}
	lastPrice := make(map[string]float64)
	orders := make([]models.Order, 0)

	for _, tick := range ticks {
		if tick.Symbol == "" || tick.Price <= 0 {
			continue
		}
		lastPrice[tick.Symbol] = tick.Price

		if pos, ok := portfolio.Positions[tick.Symbol]; ok && tick.Price > pos.HighestPriceSeen {
			pos.HighestPriceSeen = tick.Price
		}

		signal := strategy.Signal(tick, portfolio)
		switch signal.Action {
		case Buy:
			if order, ok := e.applyBuy(portfolio, tick, signal.Quantity); ok {
				orders = append(orders, order)
			}
		case Sell:
			if order, ok := e.applySell(portfolio, tick, signal.Quantity); ok {
				orders = append(orders, order)
			}
		}
	}

	equity := portfolio.Cash
	for symbol, pos := range portfolio.Positions {
		equity += pos.Quantity * lastPrice[symbol]
	}

	result := &Result{
		StrategyID:  strategy.ID,
		Ticks:       len(ticks),
		Orders:      orders,
		FinalEquity: equity,
		TotalReturn: (equity - e.initialCapital) / e.initialCapital * 100,
		Report:      analytics.Compute(orders, e.initialCapital),
	}

	log.Printf("[Backtest] strategy=%s ticks=%d trades=%d final_equity=%.2f",
		strategy.ID, len(ticks), len(orders), equity)
	return result, nil
}

func (e *Engine) applyBuy(portfolio *Portfolio, tick Tick, quantity float64) (models.Order, bool) {
	if quantity <= 0 {
		return models.Order{}, false
	}

	notional := quantity * tick.Price
	commission := notional * e.commissionRate
	totalCost := notional + commission
	if portfolio.Cash < totalCost {
		return models.Order{}, false
	}

	pos, ok := portfolio.Positions[tick.Symbol]
	if !ok {
		pos = &SimPosition{
			AvgCost:          tick.Price,
			HighestPriceSeen: tick.Price,
			OpenedAt:         tick.Timestamp,
		}
		pos.Quantity = quantity
		portfolio.Positions[tick.Symbol] = pos
	} else {
		total := pos.Quantity + quantity
		pos.AvgCost = (pos.AvgCost*pos.Quantity + tick.Price*quantity) / total
		pos.Quantity = total
	}

	portfolio.Cash -= totalCost
	return e.record(tick, models.OrderSideBuy, quantity, commission, nil), true
}

func (e *Engine) applySell(portfolio *Portfolio, tick Tick, quantity float64) (models.Order, bool) {
	pos, ok := portfolio.Positions[tick.Symbol]
	if !ok || quantity <= 0 || pos.Quantity < quantity {
		return models.Order{}, false
	}

	notional := quantity * tick.Price
	commission := notional * e.commissionRate
	realizedPL := (tick.Price-pos.AvgCost)*quantity - commission

	pos.Quantity -= quantity
	if pos.Quantity <= 0 {
		delete(portfolio.Positions, tick.Symbol)
	}

	portfolio.Cash += notional - commission
	return e.record(tick, models.OrderSideSell, quantity, commission, &realizedPL), true
}

func (e *Engine) record(tick Tick, side models.OrderSide, quantity, commission float64, realizedPL *float64) models.Order {
	return models.Order{
		ClientOrderID: uuid.New().String(),
		Symbol:        tick.Symbol,
		Side:          side,
		Quantity:      quantity,
		Price:         tick.Price,
		Commission:    commission,
		RealizedPL:    realizedPL,
		CreatedAt:     tick.Timestamp,
	}
}

// ByName resolves a built-in strategy from its name and parameters,
// for callers driving backtests over the HTTP boundary.
func ByName(name string, params map[string]float64) (Strategy, error) {
	get := func(key string, fallback float64) float64 {
		if v, ok := params[key]; ok && v > 0 {
			return v
		}
		return fallback
	}

	switch name {
	case "momentum":
		return MomentumStrategy(int(get("lookback", 10)), get("quantity", 10)), nil
	case "mean_reversion":
		return MeanReversionStrategy(int(get("lookback", 20)), get("threshold", 0.02), get("quantity", 10)), nil
	default:
		return Strategy{}, fmt.Errorf("unknown strategy %q", name)
	}
}
