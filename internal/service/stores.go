package service

import (
	"context"
	"time"

	"github.com/papertrade-simulator/internal/models"
	"github.com/papertrade-simulator/internal/oracle"
)

// Store interfaces decouple the engine from gorm so tests can run against
// in-memory fakes. The repository package provides the database-backed
// implementations.

// AccountStore persists accounts.
type AccountStore interface {
	Create(account *models.Account) error
	GetByUserID(userID uint) (*models.Account, error)
	Update(account *models.Account) error
}

// PositionStore persists positions.
type PositionStore interface {
	Create(position *models.Position) error
	GetByUserID(userID uint) ([]models.Position, error)
	GetByUserIDAndSymbol(userID uint, symbol string) (*models.Position, error)
	Update(position *models.Position) error
	Delete(id uint) error
}

// OrderStore persists the append-only order log.
type OrderStore interface {
	Create(order *models.Order) error
	GetByUserID(userID uint) ([]models.Order, error)
	GetByUserIDPaginated(userID uint, page, pageSize int) ([]models.Order, int64, error)
	GetTodayRealizedLoss(userID uint, now time.Time) (float64, error)
	GetRecentPrices(userID uint, symbol string, limit int) ([]float64, error)
}

// PriceSource is the engine's view of the price oracle: a non-blocking
// cached read plus an explicit prefetch for when a fresh quote is wanted.
type PriceSource interface {
	GetPrice(symbol string) (float64, oracle.Source)
	Prefetch(ctx context.Context, symbols []string)
}
