package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/stockroomhq/stockroom-backend/pkg/enums"
)

// AuditRecord captures one best-effort audit entry per ledger mutation or
// status transition. Writes are fire-and-forget; failures never abort the
// mutation they describe.
type AuditRecord struct {
	ID         uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	EntityType string            `gorm:"column:entity_type;not null"`
	EntityID   uuid.UUID         `gorm:"column:entity_id;type:uuid;not null"`
	Action     enums.AuditAction `gorm:"column:action;type:text;not null"`
	ActorID    uuid.UUID         `gorm:"column:actor_id;type:uuid;not null"`
	Payload    json.RawMessage   `gorm:"column:payload;type:jsonb"`
	CreatedAt  time.Time         `gorm:"column:created_at;autoCreateTime"`
}
