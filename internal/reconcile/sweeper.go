package reconcile

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/stockroomhq/stockroom-backend/internal/audit"
	"github.com/stockroomhq/stockroom-backend/internal/fulfillment"
	"github.com/stockroomhq/stockroom-backend/internal/ledger"
	dbpkg "github.com/stockroomhq/stockroom-backend/pkg/db"
	"github.com/stockroomhq/stockroom-backend/pkg/db/models"
	"github.com/stockroomhq/stockroom-backend/pkg/enums"
	pkgerrors "github.com/stockroomhq/stockroom-backend/pkg/errors"
	"github.com/stockroomhq/stockroom-backend/pkg/logger"
	"github.com/stockroomhq/stockroom-backend/pkg/outbox"
	"github.com/stockroomhq/stockroom-backend/pkg/outbox/payloads"
)

// JobName identifies the sweep in cron metrics and logs.
const JobName = "reconcile-drift-sweep"

const defaultBatchSize = 200

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type auditRecorder interface {
	Record(ctx context.Context, tx *gorm.DB, entry audit.Entry)
}

type repairedCounter interface {
	AddRepaired(job string, count int)
}

// Result summarizes one sweep run.
type Result struct {
	Scanned  int
	Repaired int
}

// Sweeper finds delivered shipments whose ledger debits never landed and
// repairs them. Each repair replays the delivered effect through the same
// existence check the live path uses, so running the sweep twice fixes
// nothing twice.
type Sweeper struct {
	shipments fulfillment.Repository
	stock     ledger.Repository
	tx        txRunner
	outbox    outboxPublisher
	audit     auditRecorder
	metrics   repairedCounter
	logg      *logger.Logger
	batchSize int
	actorID   uuid.UUID
}

// NewSweeper builds the reconciliation sweep. actorID is the system account
// used for sweep events and as the repair attribution fallback when a
// shipment has no known creator.
func NewSweeper(shipments fulfillment.Repository, stock ledger.Repository, tx txRunner, outboxSvc outboxPublisher, auditRec auditRecorder, metrics repairedCounter, logg *logger.Logger, batchSize int, actorID uuid.UUID) *Sweeper {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Sweeper{
		shipments: shipments,
		stock:     stock,
		tx:        tx,
		outbox:    outboxSvc,
		audit:     auditRec,
		metrics:   metrics,
		logg:      logg,
		batchSize: batchSize,
		actorID:   actorID,
	}
}

// Name implements cron.Job.
func (s *Sweeper) Name() string {
	return JobName
}

// Run implements cron.Job.
func (s *Sweeper) Run(ctx context.Context) error {
	_, err := s.Sweep(ctx)
	return err
}

// Sweep walks delivered shipments in batches and repairs missing debits. A
// failing shipment is reported but does not stop the rest of the batch.
func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	var result Result
	var errs error

	offset := 0
	for {
		batch, err := s.shipments.ListShipmentsByStatus(ctx, enums.ShipmentStatusDelivered, s.batchSize, offset)
		if err != nil {
			return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list delivered shipments")
		}
		if len(batch) == 0 {
			break
		}

		for i := range batch {
			shipment := batch[i]
			result.Scanned++

			repaired, err := s.repairShipment(ctx, &shipment)
			if err != nil {
				errs = multierr.Append(errs, err)
				if s.logg != nil {
					logCtx := s.logg.WithFields(ctx, map[string]any{
						"shipment_id": shipment.ID.String(),
						"error":       err.Error(),
					})
					s.logg.Warn(logCtx, "drift repair failed")
				}
				continue
			}
			result.Repaired += repaired
		}

		if len(batch) < s.batchSize {
			break
		}
		offset += s.batchSize
	}

	if s.metrics != nil {
		s.metrics.AddRepaired(JobName, result.Repaired)
	}
	if s.logg != nil && result.Repaired > 0 {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"scanned":  result.Scanned,
			"repaired": result.Repaired,
		})
		s.logg.Info(logCtx, "reconciliation sweep repaired drift")
	}
	return result, errs
}

// repairShipment re-applies the delivered ledger effect for lines that have
// no shipment transaction yet. Returns the number of repaired lines.
func (s *Sweeper) repairShipment(ctx context.Context, shipment *models.Shipment) (int, error) {
	// Cheap read outside the transaction: skip shipments with no drift.
	refType := "shipment"
	missing := make([]models.ShipmentItem, 0)
	for _, item := range shipment.Items {
		exists, err := s.stock.ShipmentTransactionExists(ctx, refType, shipment.ID, item.ProductID)
		if err != nil {
			return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check shipment transaction")
		}
		if !exists {
			missing = append(missing, item)
		}
	}
	if len(missing) == 0 {
		return 0, nil
	}

	repaired := 0
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		stock := s.stock.WithTx(tx)
		repaired = 0

		for _, item := range missing {
			// Re-check inside the transaction; the live delivered path may
			// have landed since the scan.
			exists, err := stock.ShipmentTransactionExists(ctx, refType, shipment.ID, item.ProductID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "recheck shipment transaction")
			}
			if exists {
				continue
			}

			refID := shipment.ID
			notes := "reconciliation repair"
			row := models.StockTransaction{
				ID:            uuid.New(),
				ProductID:     item.ProductID,
				WarehouseID:   shipment.WarehouseID,
				Type:          enums.TransactionTypeShipment,
				Quantity:      -item.Qty,
				ReferenceType: &refType,
				ReferenceID:   &refID,
				Notes:         &notes,
				PerformedBy:   repairActor(shipment, s.actorID),
			}
			if err := stock.InsertTransaction(ctx, &row); err != nil {
				if dbpkg.IsUniqueViolation(err, "ux_stock_transactions_shipment_reference") {
					continue
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert repair transaction")
			}
			if err := stock.ConsumeReservation(ctx, item.ProductID, shipment.WarehouseID, item.Qty); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "consume reservation")
			}
			repaired++
		}
		if repaired == 0 {
			return nil
		}

		if s.outbox != nil {
			event := outbox.DomainEvent{
				EventType:     enums.EventShipmentDriftReconciled,
				AggregateType: enums.AggregateShipment,
				AggregateID:   shipment.ID,
				Actor:         &outbox.ActorRef{UserID: s.actorID},
				Data: payloads.ShipmentDriftReconciledEvent{
					ShipmentID:    shipment.ID,
					WarehouseID:   shipment.WarehouseID,
					RepairedLines: repaired,
					RepairedAt:    time.Now(),
				},
				Version: 1,
			}
			if err := s.outbox.EmitIfNotExists(ctx, tx, event); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit drift event")
			}
		}

		if s.audit != nil {
			s.audit.Record(ctx, tx, audit.Entry{
				EntityType: "shipment",
				EntityID:   shipment.ID,
				Action:     enums.AuditActionDriftRepaired,
				ActorID:    s.actorID,
				Payload: map[string]any{
					"repaired_lines": repaired,
				},
			})
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return repaired, nil
}

// repairActor attributes the repair transaction to whoever created the
// shipment; the sweep's system actor is only used when the creator is
// unknown.
func repairActor(shipment *models.Shipment, fallback uuid.UUID) uuid.UUID {
	if shipment.CreatedBy != uuid.Nil {
		return shipment.CreatedBy
	}
	return fallback
}
