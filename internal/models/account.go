package models

import (
	"time"

	"gorm.io/gorm"
)

// DefaultInitialCapital is credited to an account created lazily on its
// owner's first trade.
const DefaultInitialCapital = 100000.0

// Account represents a single user's virtual trading account. CashBalance
// and the user's positions are only ever mutated together, inside the
// execution engine, so the two are never observed out of sync.
type Account struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	UserID         uint           `gorm:"uniqueIndex;not null" json:"user_id"`
	CashBalance    float64        `gorm:"type:decimal(20,8);not null" json:"cash_balance"`
	InitialCapital float64        `gorm:"type:decimal(20,8);not null" json:"initial_capital"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`

	// Relations
	User User `gorm:"foreignKey:UserID" json:"-"`
}

// TableName specifies the table name for Account model
func (Account) TableName() string {
	return "accounts"
}

// AccountState is the read-side view of an account, including mark-to-market
// numbers derived from current prices.
type AccountState struct {
	UserID         uint    `json:"user_id"`
	CashBalance    float64 `json:"cash_balance"`
	InitialCapital float64 `json:"initial_capital"`
	PositionValue  float64 `json:"position_value"`
	UnrealizedPL   float64 `json:"unrealized_pl"`
	Equity         float64 `json:"equity"`
	TotalReturnPct float64 `json:"total_return_pct"`
}
