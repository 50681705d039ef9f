package models

import (
	"time"

	"gorm.io/gorm"
)

// Position represents the open holding of one symbol in one account.
// A position only exists while quantity > 0: a sell that exhausts the
// quantity deletes the row, and the next buy starts a fresh position.
type Position struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	UserID           uint           `gorm:"index:idx_user_symbol,unique;not null" json:"user_id"`
	Symbol           string         `gorm:"index:idx_user_symbol,unique;size:20;not null" json:"symbol"`
	Quantity         float64        `gorm:"type:decimal(20,8);not null" json:"quantity"`
	AvgCost          float64        `gorm:"type:decimal(20,8);not null" json:"avg_cost"`
	RealizedPL       float64        `gorm:"type:decimal(20,8);default:0" json:"realized_pl"`
	HighestPriceSeen float64        `gorm:"type:decimal(20,8)" json:"highest_price_seen"`
	OpenedAt         time.Time      `json:"opened_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for Position model
func (Position) TableName() string {
	return "positions"
}

// AddLot folds a buy into the position using the quantity-weighted average
// entry price. Sells never touch AvgCost.
func (p *Position) AddLot(quantity, price float64) {
	total := p.Quantity + quantity
	p.AvgCost = (p.AvgCost*p.Quantity + price*quantity) / total
	p.Quantity = total
	if price > p.HighestPriceSeen {
		p.HighestPriceSeen = price
	}
}

// UnrealizedPL is the mark-to-market profit on the open quantity.
func (p *Position) UnrealizedPL(markPrice float64) float64 {
	return (markPrice - p.AvgCost) * p.Quantity
}

// UnrealizedPLFraction returns the unrealized profit as a fraction of cost
// basis, the quantity the risk monitor compares against stop thresholds.
func (p *Position) UnrealizedPLFraction(markPrice float64) float64 {
	if p.AvgCost == 0 {
		return 0
	}
	return (markPrice - p.AvgCost) / p.AvgCost
}

// PositionView is the marked-up position returned by read endpoints.
type PositionView struct {
	Symbol           string    `json:"symbol"`
	Quantity         float64   `json:"quantity"`
	AvgCost          float64   `json:"avg_cost"`
	MarkPrice        float64   `json:"mark_price"`
	UnrealizedPL     float64   `json:"unrealized_pl"`
	RealizedPL       float64   `json:"realized_pl"`
	HighestPriceSeen float64   `json:"highest_price_seen"`
	OpenedAt         time.Time `json:"opened_at"`
}
