package fulfillment

import (
	"github.com/stockroomhq/stockroom-backend/pkg/enums"
)

// shipmentTransitions is the forward edge set of the shipment state machine.
// Terminal statuses have no outgoing edges except delivered, which admits the
// post-delivery dispute path to returned.
var shipmentTransitions = map[enums.ShipmentStatus][]enums.ShipmentStatus{
	enums.ShipmentStatusPending:        {enums.ShipmentStatusPicked, enums.ShipmentStatusCancelled},
	enums.ShipmentStatusPicked:         {enums.ShipmentStatusPacked, enums.ShipmentStatusCancelled},
	enums.ShipmentStatusPacked:         {enums.ShipmentStatusInTransit, enums.ShipmentStatusCancelled},
	enums.ShipmentStatusInTransit:      {enums.ShipmentStatusOutForDelivery, enums.ShipmentStatusDelivered, enums.ShipmentStatusCancelled, enums.ShipmentStatusFailed},
	enums.ShipmentStatusOutForDelivery: {enums.ShipmentStatusDelivered, enums.ShipmentStatusFailed},
	enums.ShipmentStatusDelivered:      {enums.ShipmentStatusReturned},
}

// salesOrderTransitions is the linear order lifecycle.
var salesOrderTransitions = map[enums.SalesOrderStatus][]enums.SalesOrderStatus{
	enums.SalesOrderStatusPending: {enums.SalesOrderStatusPicking},
	enums.SalesOrderStatusPicking: {enums.SalesOrderStatusPacked},
	enums.SalesOrderStatusPacked:  {enums.SalesOrderStatusShipped},
}

func canTransitionShipment(from, to enums.ShipmentStatus) bool {
	for _, allowed := range shipmentTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func canTransitionSalesOrder(from, to enums.SalesOrderStatus) bool {
	for _, allowed := range salesOrderTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
