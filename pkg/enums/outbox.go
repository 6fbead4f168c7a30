package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateStockLevel OutboxAggregateType = "stock_level"
	AggregateShipment   OutboxAggregateType = "shipment"
	AggregateSalesOrder OutboxAggregateType = "sales_order"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateStockLevel,
	AggregateShipment,
	AggregateSalesOrder,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventInventoryChanged         OutboxEventType = "inventory_changed"
	EventShipmentStatusChanged    OutboxEventType = "shipment_status_changed"
	EventSalesOrderStatusChanged  OutboxEventType = "sales_order_status_changed"
	EventShipmentDriftReconciled  OutboxEventType = "shipment_drift_reconciled"
	EventStockReservationReleased OutboxEventType = "stock_reservation_released"
)

var validOutboxEventTypes = []OutboxEventType{
	EventInventoryChanged,
	EventShipmentStatusChanged,
	EventSalesOrderStatusChanged,
	EventShipmentDriftReconciled,
	EventStockReservationReleased,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
