package repository

import (
	"errors"
	"time"

	"github.com/papertrade-simulator/internal/models"
	"gorm.io/gorm"
)

var (
	ErrOrderNotFound = errors.New("order not found")
)

// OrderRepository handles the append-only order log
type OrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates a new OrderRepository
func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create appends an order record. Orders are never updated or deleted.
func (r *OrderRepository) Create(order *models.Order) error {
	return r.db.Create(order).Error
}

// GetByID retrieves an order by ID
func (r *OrderRepository) GetByID(id uint) (*models.Order, error) {
	var order models.Order
	result := r.db.First(&order, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, result.Error
	}
	return &order, nil
}

// GetByUserID retrieves a user's full order history in execution sequence.
func (r *OrderRepository) GetByUserID(userID uint) ([]models.Order, error) {
	var orders []models.Order
	result := r.db.Where("user_id = ?", userID).Order("id ASC").Find(&orders)
	return orders, result.Error
}

// GetByUserIDPaginated retrieves a page of a user's order history,
// newest first.
func (r *OrderRepository) GetByUserIDPaginated(userID uint, page, pageSize int) ([]models.Order, int64, error) {
	var orders []models.Order
	var total int64

	if err := r.db.Model(&models.Order{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	result := r.db.Where("user_id = ?", userID).
		Order("id DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&orders)
	if result.Error != nil {
		return nil, 0, result.Error
	}

	return orders, total, nil
}

// GetTodayRealizedLoss sums the negative realized PL of today's closing
// orders. Feeds the daily-loss circuit breaker.
func (r *OrderRepository) GetTodayRealizedLoss(userID uint, now time.Time) (float64, error) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	var total struct {
		Sum float64
	}
	err := r.db.Model(&models.Order{}).
		Select("COALESCE(SUM(realized_pl), 0) as sum").
		Where("user_id = ? AND created_at >= ? AND realized_pl < 0", userID, dayStart).
		Scan(&total).Error
	return -total.Sum, err
}

// GetRecentPrices returns the execution prices of a symbol's most recent
// orders for the user, oldest first. Used for volatility estimation.
func (r *OrderRepository) GetRecentPrices(userID uint, symbol string, limit int) ([]float64, error) {
	var orders []models.Order
	result := r.db.Where("user_id = ? AND symbol = ?", userID, symbol).
		Order("id DESC").
		Limit(limit).
		Find(&orders)
	if result.Error != nil {
		return nil, result.Error
	}

	prices := make([]float64, 0, len(orders))
	for i := len(orders) - 1; i >= 0; i-- {
		prices = append(prices, orders[i].Price)
	}
	return prices, nil
}
