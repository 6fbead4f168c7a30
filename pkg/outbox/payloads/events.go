package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/stockroomhq/stockroom-backend/pkg/enums"
)

// InventoryChangedEvent is emitted whenever a stock counter moves.
type InventoryChangedEvent struct {
	ProductID       uuid.UUID             `json:"product_id"`
	WarehouseID     uuid.UUID             `json:"warehouse_id"`
	TransactionID   uuid.UUID             `json:"transaction_id"`
	TransactionType enums.TransactionType `json:"transaction_type"`
	Quantity        int                   `json:"quantity"`
	OnHand          int                   `json:"on_hand"`
	Reserved        int                   `json:"reserved"`
}

// ShipmentStatusChangedEvent reports a shipment lifecycle transition.
type ShipmentStatusChangedEvent struct {
	ShipmentID   uuid.UUID            `json:"shipment_id"`
	SalesOrderID *uuid.UUID           `json:"sales_order_id,omitempty"`
	WarehouseID  uuid.UUID            `json:"warehouse_id"`
	FromStatus   enums.ShipmentStatus `json:"from_status"`
	ToStatus     enums.ShipmentStatus `json:"to_status"`
	OccurredAt   time.Time            `json:"occurred_at"`
}

// SalesOrderStatusChangedEvent reports an order lifecycle transition.
type SalesOrderStatusChangedEvent struct {
	SalesOrderID uuid.UUID              `json:"sales_order_id"`
	WarehouseID  uuid.UUID              `json:"warehouse_id"`
	FromStatus   enums.SalesOrderStatus `json:"from_status"`
	ToStatus     enums.SalesOrderStatus `json:"to_status"`
	OccurredAt   time.Time              `json:"occurred_at"`
}

// ShipmentDriftReconciledEvent is emitted once per shipment repaired by the
// reconciliation sweep.
type ShipmentDriftReconciledEvent struct {
	ShipmentID    uuid.UUID `json:"shipment_id"`
	WarehouseID   uuid.UUID `json:"warehouse_id"`
	RepairedLines int       `json:"repaired_lines"`
	RepairedAt    time.Time `json:"repaired_at"`
}

// StockReservationReleasedEvent reports reserved quantity returned to the
// available pool.
type StockReservationReleasedEvent struct {
	ProductID   uuid.UUID `json:"product_id"`
	WarehouseID uuid.UUID `json:"warehouse_id"`
	Quantity    int       `json:"quantity"`
	Reason      string    `json:"reason,omitempty"`
}
