package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stockroomhq/stockroom-backend/pkg/enums"
)

// StockTransaction is the immutable ledger entry explaining every stock level
// change. Positive quantities are inbound, negative outbound. For shipment
// debits at most one row may exist per (reference_type, reference_id); the
// partial unique index in the migrations is the storage-level backstop for
// the in-transaction existence check.
type StockTransaction struct {
	ID            uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	ProductID     uuid.UUID             `gorm:"column:product_id;type:uuid;not null;index:ix_stock_transactions_product_warehouse"`
	WarehouseID   uuid.UUID             `gorm:"column:warehouse_id;type:uuid;not null;index:ix_stock_transactions_product_warehouse"`
	Type          enums.TransactionType `gorm:"column:transaction_type;type:text;not null"`
	Quantity      int                   `gorm:"column:quantity;not null"`
	UnitCost      *decimal.Decimal      `gorm:"column:unit_cost;type:numeric(12,4)"`
	ReferenceType *string               `gorm:"column:reference_type"`
	ReferenceID   *uuid.UUID            `gorm:"column:reference_id;type:uuid"`
	Notes         *string               `gorm:"column:notes"`
	PerformedBy   uuid.UUID             `gorm:"column:performed_by;type:uuid;not null"`
	CreatedAt     time.Time             `gorm:"column:created_at;autoCreateTime"`
}
