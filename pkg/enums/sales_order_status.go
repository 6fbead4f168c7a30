package enums

import "fmt"

// SalesOrderStatus tracks the lifecycle of an outbound sales order.
type SalesOrderStatus string

const (
	SalesOrderStatusPending SalesOrderStatus = "pending"
	SalesOrderStatusPicking SalesOrderStatus = "picking"
	SalesOrderStatusPacked  SalesOrderStatus = "packed"
	SalesOrderStatusShipped SalesOrderStatus = "shipped"
)

var validSalesOrderStatuses = []SalesOrderStatus{
	SalesOrderStatusPending,
	SalesOrderStatusPicking,
	SalesOrderStatusPacked,
	SalesOrderStatusShipped,
}

// String implements fmt.Stringer.
func (s SalesOrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known SalesOrderStatus.
func (s SalesOrderStatus) IsValid() bool {
	for _, candidate := range validSalesOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseSalesOrderStatus converts raw input into a SalesOrderStatus.
func ParseSalesOrderStatus(value string) (SalesOrderStatus, error) {
	for _, candidate := range validSalesOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid sales order status %q", value)
}
