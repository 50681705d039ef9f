package models

import (
	"time"
)

// OrderSide represents the order side
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// Valid reports whether the side is one of the two known values.
func (s OrderSide) Valid() bool {
	return s == OrderSideBuy || s == OrderSideSell
}

// Order is the immutable record of one execution. Orders are created only
// by the execution engine, in the exact sequence their mutations were
// applied, and are never updated or deleted; the analytics layer replays
// this log.
type Order struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	ClientOrderID string    `gorm:"size:50;index" json:"client_order_id"`
	UserID        uint      `gorm:"index;not null" json:"user_id"`
	Symbol        string    `gorm:"size:20;not null;index" json:"symbol"`
	Side          OrderSide `gorm:"size:10;not null" json:"side"`
	Quantity      float64   `gorm:"type:decimal(20,8);not null" json:"quantity"`
	Price         float64   `gorm:"type:decimal(20,8);not null" json:"price"`
	Commission    float64   `gorm:"type:decimal(20,8);not null" json:"commission"`
	RealizedPL    *float64  `gorm:"type:decimal(20,8)" json:"realized_pl"`
	CreatedAt     time.Time `gorm:"index" json:"created_at"`
}

// TableName specifies the table name for Order model
func (Order) TableName() string {
	return "orders"
}

// Notional returns the pre-commission value of the execution.
func (o *Order) Notional() float64 {
	return o.Quantity * o.Price
}

// IsClosing reports whether this order realized profit or loss.
func (o *Order) IsClosing() bool {
	return o.Side == OrderSideSell && o.RealizedPL != nil
}
