package repository

import (
	"errors"

	"github.com/papertrade-simulator/internal/models"
	"gorm.io/gorm"
)

var (
	ErrPositionNotFound = errors.New("position not found")
)

// PositionRepository handles position data access
type PositionRepository struct {
	db *gorm.DB
}

// NewPositionRepository creates a new PositionRepository
func NewPositionRepository(db *gorm.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// Create creates a new position
func (r *PositionRepository) Create(position *models.Position) error {
	return r.db.Create(position).Error
}

// GetByUserID retrieves all open positions for a user
func (r *PositionRepository) GetByUserID(userID uint) ([]models.Position, error) {
	var positions []models.Position
	result := r.db.Where("user_id = ?", userID).Order("symbol").Find(&positions)
	return positions, result.Error
}

// GetByUserIDAndSymbol retrieves one position by its (user, symbol) key
func (r *PositionRepository) GetByUserIDAndSymbol(userID uint, symbol string) (*models.Position, error) {
	var position models.Position
	result := r.db.Where("user_id = ? AND symbol = ?", userID, symbol).First(&position)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrPositionNotFound
		}
		return nil, result.Error
	}
	return &position, nil
}

// Update updates a position
func (r *PositionRepository) Update(position *models.Position) error {
	return r.db.Save(position).Error
}

// Delete removes a fully closed position
func (r *PositionRepository) Delete(id uint) error {
	return r.db.Delete(&models.Position{}, id).Error
}

// GetActiveUserIDs lists the users that currently hold open positions.
// The risk monitor iterates this set each cycle.
func (r *PositionRepository) GetActiveUserIDs() ([]uint, error) {
	var ids []uint
	err := r.db.Model(&models.Position{}).Distinct("user_id").Pluck("user_id", &ids).Error
	return ids, err
}
