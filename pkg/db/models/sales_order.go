package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/stockroomhq/stockroom-backend/pkg/enums"
)

// SalesOrder is the reduced outbound aggregate: reservation is placed at
// creation and consumed when the order ships.
type SalesOrder struct {
	ID          uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	WarehouseID uuid.UUID              `gorm:"column:warehouse_id;type:uuid;not null"`
	Status      enums.SalesOrderStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	CreatedBy   uuid.UUID              `gorm:"column:created_by;type:uuid;not null"`
	Items       []SalesOrderItem       `gorm:"foreignKey:SalesOrderID;constraint:OnDelete:CASCADE"`
	ShippedAt   *time.Time             `gorm:"column:shipped_at"`
	CreatedAt   time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

// SalesOrderItem is one product line owned by a sales order.
type SalesOrderItem struct {
	ID           uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	SalesOrderID uuid.UUID `gorm:"column:sales_order_id;type:uuid;not null;index"`
	ProductID    uuid.UUID `gorm:"column:product_id;type:uuid;not null"`
	Qty          int       `gorm:"column:qty;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
}
