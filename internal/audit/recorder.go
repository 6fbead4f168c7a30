package audit

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stockroomhq/stockroom-backend/pkg/db/models"
	"github.com/stockroomhq/stockroom-backend/pkg/enums"
	"github.com/stockroomhq/stockroom-backend/pkg/logger"
)

// Entry describes one auditable action.
type Entry struct {
	EntityType string
	EntityID   uuid.UUID
	Action     enums.AuditAction
	ActorID    uuid.UUID
	Payload    any
}

// Recorder persists audit entries. Failures are logged and swallowed so an
// audit outage never aborts the mutation being recorded.
type Recorder struct {
	db   *gorm.DB
	logg *logger.Logger
}

// NewRecorder builds an audit recorder.
func NewRecorder(db *gorm.DB, logg *logger.Logger) *Recorder {
	return &Recorder{db: db, logg: logg}
}

// Record writes the entry using tx when provided, the base connection
// otherwise.
func (r *Recorder) Record(ctx context.Context, tx *gorm.DB, entry Entry) {
	conn := r.db
	if tx != nil {
		conn = tx
	}
	if conn == nil {
		return
	}

	var payload json.RawMessage
	if entry.Payload != nil {
		data, err := json.Marshal(entry.Payload)
		if err != nil {
			r.warn(ctx, "audit payload marshal failed", err)
			return
		}
		payload = data
	}

	row := models.AuditRecord{
		ID:         uuid.New(),
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Action:     entry.Action,
		ActorID:    entry.ActorID,
		Payload:    payload,
	}
	if err := conn.WithContext(ctx).Create(&row).Error; err != nil {
		r.warn(ctx, "audit record write failed", err)
	}
}

// ListForEntity returns audit history newest-first.
func (r *Recorder) ListForEntity(ctx context.Context, entityType string, entityID uuid.UUID, limit int) ([]models.AuditRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.AuditRecord
	err := r.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *Recorder) warn(ctx context.Context, msg string, err error) {
	if r.logg == nil {
		return
	}
	logCtx := r.logg.WithField(ctx, "error", err.Error())
	r.logg.Warn(logCtx, msg)
}
