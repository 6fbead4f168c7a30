package enums

// AuditAction labels the operation recorded by an audit entry.
type AuditAction string

const (
	AuditActionStockAdjusted      AuditAction = "stock_adjusted"
	AuditActionStockReserved      AuditAction = "stock_reserved"
	AuditActionStockReleased      AuditAction = "stock_released"
	AuditActionStatusTransitioned AuditAction = "status_transitioned"
	AuditActionDriftRepaired      AuditAction = "drift_repaired"
)

// String implements fmt.Stringer.
func (a AuditAction) String() string {
	return string(a)
}
