package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/stockroomhq/stockroom-backend/pkg/enums"
)

// Shipment is the outbound aggregate whose status transitions drive ledger
// effects. The fulfillment state machine is the sole writer of Status.
type Shipment struct {
	ID           uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	WarehouseID  uuid.UUID            `gorm:"column:warehouse_id;type:uuid;not null"`
	SalesOrderID *uuid.UUID           `gorm:"column:sales_order_id;type:uuid;index"`
	Status       enums.ShipmentStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	CreatedBy    uuid.UUID            `gorm:"column:created_by;type:uuid;not null"`
	Items        []ShipmentItem       `gorm:"foreignKey:ShipmentID;constraint:OnDelete:CASCADE"`
	DeliveredAt  *time.Time           `gorm:"column:delivered_at"`
	ClosedAt     *time.Time           `gorm:"column:closed_at"`
	CreatedAt    time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

// ShipmentItem is one product line owned by a shipment.
type ShipmentItem struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ShipmentID uuid.UUID `gorm:"column:shipment_id;type:uuid;not null;index"`
	ProductID  uuid.UUID `gorm:"column:product_id;type:uuid;not null"`
	Qty        int       `gorm:"column:qty;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

// ShipmentEvent is the append-only tracking history row written on every
// status transition.
type ShipmentEvent struct {
	ID         uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	ShipmentID uuid.UUID            `gorm:"column:shipment_id;type:uuid;not null;index"`
	FromStatus enums.ShipmentStatus `gorm:"column:from_status;type:text;not null"`
	ToStatus   enums.ShipmentStatus `gorm:"column:to_status;type:text;not null"`
	Notes      *string              `gorm:"column:notes"`
	ActorID    uuid.UUID            `gorm:"column:actor_id;type:uuid;not null"`
	CreatedAt  time.Time            `gorm:"column:created_at;autoCreateTime"`
}
