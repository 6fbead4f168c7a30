package models

import (
	"time"

	"github.com/google/uuid"
)

// StockLevel tracks on-hand/reserved counts per (product, warehouse) pair.
// Rows are created on first receipt and soft-zeroed rather than deleted.
// Invariant after every public ledger operation: 0 <= reserved <= on_hand.
type StockLevel struct {
	ProductID       uuid.UUID  `gorm:"column:product_id;type:uuid;primaryKey"`
	WarehouseID     uuid.UUID  `gorm:"column:warehouse_id;type:uuid;primaryKey"`
	OnHand          int        `gorm:"column:on_hand;not null;default:0"`
	Reserved        int        `gorm:"column:reserved;not null;default:0"`
	LocationCode    *string    `gorm:"column:location_code"`
	LastRestockedAt *time.Time `gorm:"column:last_restocked_at"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// Available returns the quantity not yet earmarked for an order.
func (s StockLevel) Available() int {
	return s.OnHand - s.Reserved
}
