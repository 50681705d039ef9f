package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/papertrade-simulator/internal/analytics"
	"github.com/papertrade-simulator/internal/config"
	"github.com/papertrade-simulator/internal/models"
	"github.com/papertrade-simulator/internal/risk"
)

const volatilitySampleLimit = 30

// TradingService is the execution engine: the only writer to account and
// position state. Every other component that wants to move balances goes
// through ExecuteBuy/ExecuteSell so the ledger invariants are checked in
// exactly one place.
type TradingService struct {
	accounts  AccountStore
	positions PositionStore
	orders    OrderStore
	prices    PriceSource
	risk      *risk.Manager
	cfg       config.EngineConfig

	// Mutations for one user are serialized; different users' accounts
	// are fully independent.
	userLocks map[uint]*sync.Mutex
	locksMux  sync.Mutex
}

// NewTradingService creates a new TradingService
func NewTradingService(
	accounts AccountStore,
	positions PositionStore,
	orders OrderStore,
	prices PriceSource,
	riskManager *risk.Manager,
	cfg config.EngineConfig,
) *TradingService {
	if cfg.InitialCapital <= 0 {
		cfg.InitialCapital = models.DefaultInitialCapital
	}
	if cfg.CommissionRate < 0 {
		cfg.CommissionRate = 0
	}
	return &TradingService{
		accounts:  accounts,
		positions: positions,
		orders:    orders,
		prices:    prices,
		risk:      riskManager,
		cfg:       cfg,
		userLocks: make(map[uint]*sync.Mutex),
	}
}

// RiskManager exposes the risk layer for the monitoring worker and the
// risk endpoints.
func (s *TradingService) RiskManager() *risk.Manager {
	return s.risk
}

func (s *TradingService) userLock(userID uint) *sync.Mutex {
	s.locksMux.Lock()
	defer s.locksMux.Unlock()

	mu, ok := s.userLocks[userID]
	if !ok {
		mu = &sync.Mutex{}
		s.userLocks[userID] = mu
	}
	return mu
}

// ExecuteBuy validates and executes a buy against the user's ledger.
// The cash debit, position update, and order append happen as a unit
// under the account lock.
func (s *TradingService) ExecuteBuy(ctx context.Context, userID uint, symbol string, quantity float64, priceOverride *float64) (*models.Order, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, ErrInvalidSymbol
	}
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	if priceOverride != nil && *priceOverride <= 0 {
		return nil, ErrInvalidPrice
	}

	// Warm the cache before taking the lock; GetPrice itself never
	// performs I/O, so the mutation below cannot stall on the network.
	if priceOverride == nil {
		s.prices.Prefetch(ctx, []string{symbol})
	}

	mu := s.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	account, err := s.getOrCreateAccount(userID)
	if err != nil {
		return nil, err
	}

	price := s.resolvePrice(symbol, priceOverride)
	notional := quantity * price
	commission := notional * s.cfg.CommissionRate
	totalCost := notional + commission

	stats, err := s.accountStats(account)
	if err != nil {
		return nil, err
	}
	if err := s.risk.CheckOrder(stats, quantity, price); err != nil {
		return nil, err
	}

	if account.CashBalance < totalCost {
		return nil, fmt.Errorf("%w: need %.2f, have %.2f", ErrInsufficientFunds, totalCost, account.CashBalance)
	}

	position, err := s.positions.GetByUserIDAndSymbol(userID, symbol)
	if err == nil && position != nil {
		position.AddLot(quantity, price)
		if err := s.positions.Update(position); err != nil {
			return nil, fmt.Errorf("failed to update position: %w", err)
		}
	} else {
		position = &models.Position{
			UserID:           userID,
			Symbol:           symbol,
			Quantity:         quantity,
			AvgCost:          price,
			HighestPriceSeen: price,
			OpenedAt:         time.Now(),
		}
		if err := s.positions.Create(position); err != nil {
			return nil, fmt.Errorf("failed to create position: %w", err)
		}
	}

	account.CashBalance -= totalCost
	if err := s.accounts.Update(account); err != nil {
		return nil, fmt.Errorf("failed to update account: %w", err)
	}

	order := &models.Order{
		ClientOrderID: uuid.New().String(),
		UserID:        userID,
		Symbol:        symbol,
		Side:          models.OrderSideBuy,
		Quantity:      quantity,
		Price:         price,
		Commission:    commission,
		CreatedAt:     time.Now(),
	}
	if err := s.orders.Create(order); err != nil {
		return nil, fmt.Errorf("failed to record order: %w", err)
	}

	log.Printf("[Engine] user=%d BUY %s qty=%.4f price=%.2f commission=%.4f", userID, symbol, quantity, price, commission)
	return order, nil
}

// ExecuteSell validates and executes a sell. Proceeds are credited net of
// commission; realized PL accumulates on the position and is stamped on
// the order record. A sell that exhausts the quantity removes the
// position entirely.
func (s *TradingService) ExecuteSell(ctx context.Context, userID uint, symbol string, quantity float64, priceOverride *float64) (*models.Order, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, ErrInvalidSymbol
	}
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	if priceOverride != nil && *priceOverride <= 0 {
		return nil, ErrInvalidPrice
	}

	if priceOverride == nil {
		s.prices.Prefetch(ctx, []string{symbol})
	}

	mu := s.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	account, err := s.getOrCreateAccount(userID)
	if err != nil {
		return nil, err
	}

	position, err := s.positions.GetByUserIDAndSymbol(userID, symbol)
	if err != nil || position == nil {
		return nil, fmt.Errorf("%w: no open position in %s", ErrInsufficientPosition, symbol)
	}
	if position.Quantity < quantity {
		return nil, fmt.Errorf("%w: have %.4f, selling %.4f", ErrInsufficientPosition, position.Quantity, quantity)
	}

	price := s.resolvePrice(symbol, priceOverride)
	notional := quantity * price
	commission := notional * s.cfg.CommissionRate
	proceeds := notional - commission
	realizedPL := (price-position.AvgCost)*quantity - commission

	// A sell never changes AvgCost, only quantity and realized PL.
	position.Quantity -= quantity
	position.RealizedPL += realizedPL

	if position.Quantity <= 0 {
		if err := s.positions.Delete(position.ID); err != nil {
			return nil, fmt.Errorf("failed to remove position: %w", err)
		}
	} else {
		if err := s.positions.Update(position); err != nil {
			return nil, fmt.Errorf("failed to update position: %w", err)
		}
	}

	account.CashBalance += proceeds
	if err := s.accounts.Update(account); err != nil {
		return nil, fmt.Errorf("failed to update account: %w", err)
	}

	order := &models.Order{
		ClientOrderID: uuid.New().String(),
		UserID:        userID,
		Symbol:        symbol,
		Side:          models.OrderSideSell,
		Quantity:      quantity,
		Price:         price,
		Commission:    commission,
		RealizedPL:    &realizedPL,
		CreatedAt:     time.Now(),
	}
	if err := s.orders.Create(order); err != nil {
		return nil, fmt.Errorf("failed to record order: %w", err)
	}

	log.Printf("[Engine] user=%d SELL %s qty=%.4f price=%.2f realized_pl=%.4f", userID, symbol, quantity, price, realizedPL)
	return order, nil
}

// getOrCreateAccount lazily creates the account on the user's first trade.
func (s *TradingService) getOrCreateAccount(userID uint) (*models.Account, error) {
	account, err := s.accounts.GetByUserID(userID)
	if err == nil {
		return account, nil
	}

	account = &models.Account{
		UserID:         userID,
		CashBalance:    s.cfg.InitialCapital,
		InitialCapital: s.cfg.InitialCapital,
	}
	if err := s.accounts.Create(account); err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	log.Printf("[Engine] created account for user=%d with capital %.2f", userID, s.cfg.InitialCapital)
	return account, nil
}

func (s *TradingService) resolvePrice(symbol string, priceOverride *float64) float64 {
	if priceOverride != nil && *priceOverride > 0 {
		return *priceOverride
	}
	price, _ := s.prices.GetPrice(symbol)
	return price
}

func (s *TradingService) accountStats(account *models.Account) (risk.AccountStats, error) {
	todayLoss, err := s.orders.GetTodayRealizedLoss(account.UserID, time.Now())
	if err != nil {
		return risk.AccountStats{}, fmt.Errorf("failed to compute daily loss: %w", err)
	}

	streak, err := s.consecutiveLosses(account.UserID)
	if err != nil {
		return risk.AccountStats{}, err
	}

	return risk.AccountStats{
		InitialCapital:    account.InitialCapital,
		TodayLoss:         todayLoss,
		ConsecutiveLosses: streak,
	}, nil
}

// consecutiveLosses counts the trailing run of losing closes in the log.
func (s *TradingService) consecutiveLosses(userID uint) (int, error) {
	orders, err := s.orders.GetByUserID(userID)
	if err != nil {
		return 0, fmt.Errorf("failed to load order history: %w", err)
	}

	streak := 0
	for i := len(orders) - 1; i >= 0; i-- {
		if !orders[i].IsClosing() {
			continue
		}
		if *orders[i].RealizedPL >= 0 {
			break
		}
		streak++
	}
	return streak, nil
}

// GetAccountState returns the account with mark-to-market equity. Users
// that have never traded see the default state without an account being
// persisted.
func (s *TradingService) GetAccountState(ctx context.Context, userID uint) (*models.AccountState, error) {
	account, err := s.accounts.GetByUserID(userID)
	if err != nil {
		return &models.AccountState{
			UserID:         userID,
			CashBalance:    s.cfg.InitialCapital,
			InitialCapital: s.cfg.InitialCapital,
			Equity:         s.cfg.InitialCapital,
		}, nil
	}

	views, err := s.GetPositions(ctx, userID)
	if err != nil {
		return nil, err
	}

	state := &models.AccountState{
		UserID:         userID,
		CashBalance:    account.CashBalance,
		InitialCapital: account.InitialCapital,
	}
	for _, v := range views {
		state.PositionValue += v.Quantity * v.MarkPrice
		state.UnrealizedPL += v.UnrealizedPL
	}
	state.Equity = state.CashBalance + state.PositionValue
	if account.InitialCapital > 0 {
		state.TotalReturnPct = (state.Equity - account.InitialCapital) / account.InitialCapital * 100
	}
	return state, nil
}

// GetPositions returns the user's open positions marked at current prices.
func (s *TradingService) GetPositions(ctx context.Context, userID uint) ([]models.PositionView, error) {
	positions, err := s.positions.GetByUserID(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load positions: %w", err)
	}

	symbols := make([]string, 0, len(positions))
	for _, p := range positions {
		symbols = append(symbols, p.Symbol)
	}
	if len(symbols) > 0 {
		s.prices.Prefetch(ctx, symbols)
	}

	views := make([]models.PositionView, 0, len(positions))
	for _, p := range positions {
		mark, _ := s.prices.GetPrice(p.Symbol)
		views = append(views, models.PositionView{
			Symbol:           p.Symbol,
			Quantity:         p.Quantity,
			AvgCost:          p.AvgCost,
			MarkPrice:        mark,
			UnrealizedPL:     p.UnrealizedPL(mark),
			RealizedPL:       p.RealizedPL,
			HighestPriceSeen: p.HighestPriceSeen,
			OpenedAt:         p.OpenedAt,
		})
	}
	return views, nil
}

// GetOrders returns a page of the user's order history.
func (s *TradingService) GetOrders(userID uint, page, pageSize int) ([]models.Order, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}
	return s.orders.GetByUserIDPaginated(userID, page, pageSize)
}

// OrderHistory returns the full order log in execution sequence, for the
// analytics layer.
func (s *TradingService) OrderHistory(userID uint) ([]models.Order, error) {
	return s.orders.GetByUserID(userID)
}

// EvaluateRisk runs one monitoring cycle over every open position and
// returns the advisory assessments. Trailing high-water marks advanced
// during evaluation are persisted.
func (s *TradingService) EvaluateRisk(ctx context.Context, userID uint) ([]risk.Assessment, error) {
	// Warm the cache before taking the lock, same as the execution paths.
	// The symbol list read here is only used for prefetching.
	warm, err := s.positions.GetByUserID(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load positions: %w", err)
	}
	symbols := make([]string, 0, len(warm))
	for _, p := range warm {
		symbols = append(symbols, p.Symbol)
	}
	if len(symbols) > 0 {
		s.prices.Prefetch(ctx, symbols)
	}

	mu := s.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	// Re-read under the lock: a trade may have executed during the
	// prefetch, and persisting a snapshot from before it would undo the
	// trade's position mutation.
	positions, err := s.positions.GetByUserID(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load positions: %w", err)
	}

	assessments := make([]risk.Assessment, 0, len(positions))
	for i := range positions {
		p := &positions[i]
		price, _ := s.prices.GetPrice(p.Symbol)

		samples, err := s.orders.GetRecentPrices(userID, p.Symbol, volatilitySampleLimit)
		if err != nil {
			return nil, fmt.Errorf("failed to load price samples: %w", err)
		}
		volatility := risk.EstimateVolatility(samples)

		assessment := s.risk.Evaluate(p, price, volatility)
		if err := s.positions.Update(p); err != nil {
			return nil, fmt.Errorf("failed to persist trailing mark: %w", err)
		}
		assessments = append(assessments, assessment)
	}
	return assessments, nil
}

// Report computes the user's performance statistics from the order log.
func (s *TradingService) Report(userID uint) (analytics.Report, error) {
	orders, err := s.orders.GetByUserID(userID)
	if err != nil {
		return analytics.Report{}, fmt.Errorf("failed to load order history: %w", err)
	}
	return analytics.Compute(orders, s.initialCapitalFor(userID)), nil
}

// ValueAtRisk estimates the loss amount at the given confidence from the
// historical per-trade return distribution, scaled by current equity.
func (s *TradingService) ValueAtRisk(ctx context.Context, userID uint, confidence float64) (float64, error) {
	orders, err := s.orders.GetByUserID(userID)
	if err != nil {
		return 0, fmt.Errorf("failed to load order history: %w", err)
	}

	state, err := s.GetAccountState(ctx, userID)
	if err != nil {
		return 0, err
	}
	return analytics.ValueAtRisk(orders, s.initialCapitalFor(userID), state.Equity, confidence), nil
}

func (s *TradingService) initialCapitalFor(userID uint) float64 {
	if account, err := s.accounts.GetByUserID(userID); err == nil {
		return account.InitialCapital
	}
	return s.cfg.InitialCapital
}
