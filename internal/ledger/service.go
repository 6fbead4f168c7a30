package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/stockroomhq/stockroom-backend/internal/audit"
	"github.com/stockroomhq/stockroom-backend/internal/catalog"
	dbpkg "github.com/stockroomhq/stockroom-backend/pkg/db"
	"github.com/stockroomhq/stockroom-backend/pkg/db/models"
	"github.com/stockroomhq/stockroom-backend/pkg/enums"
	pkgerrors "github.com/stockroomhq/stockroom-backend/pkg/errors"
	"github.com/stockroomhq/stockroom-backend/pkg/outbox"
	"github.com/stockroomhq/stockroom-backend/pkg/outbox/payloads"
	"github.com/stockroomhq/stockroom-backend/pkg/pagination"
)

const conflictRetryBackoff = 50 * time.Millisecond

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type auditRecorder interface {
	Record(ctx context.Context, tx *gorm.DB, entry audit.Entry)
}

// AdjustInput captures one manual stock movement.
type AdjustInput struct {
	ProductID     uuid.UUID
	WarehouseID   uuid.UUID
	Quantity      int
	Type          enums.TransactionType
	UnitCost      *decimal.Decimal
	ReferenceType *string
	ReferenceID   *uuid.UUID
	Notes         *string
	ActorID       uuid.UUID
}

// AdjustResult reports the counters after the movement landed.
type AdjustResult struct {
	TransactionID uuid.UUID
	OnHand        int
	Reserved      int
}

// ReservationInput earmarks or returns quantity for one product line.
type ReservationInput struct {
	ProductID   uuid.UUID
	WarehouseID uuid.UUID
	Quantity    int
	ActorID     uuid.UUID
	Reason      string
}

// Service is the stock ledger: every on-hand movement flows through Adjust
// and lands in the transaction log; Reserve/Release move the reserved
// counter only and leave no log entry.
type Service interface {
	Adjust(ctx context.Context, input AdjustInput) (*AdjustResult, error)
	Reserve(ctx context.Context, input ReservationInput) error
	Release(ctx context.Context, input ReservationInput) (int, error)
	GetLevel(ctx context.Context, productID, warehouseID uuid.UUID) (*models.StockLevel, error)
	ListLevels(ctx context.Context, warehouseID uuid.UUID, limit, offset int) ([]models.StockLevel, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]models.StockTransaction, string, error)
}

type service struct {
	repo    Repository
	tx      txRunner
	catalog catalog.Service
	outbox  outboxPublisher
	audit   auditRecorder
}

// NewService builds the ledger service.
func NewService(repo Repository, tx txRunner, catalogSvc catalog.Service, outboxSvc outboxPublisher, auditRec auditRecorder) Service {
	return &service{repo: repo, tx: tx, catalog: catalogSvc, outbox: outboxSvc, audit: auditRec}
}

func (s *service) Adjust(ctx context.Context, input AdjustInput) (*AdjustResult, error) {
	if input.Quantity == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be non-zero")
	}
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid transaction type")
	}
	if input.Type == enums.TransactionTypeShipment {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipment transactions are owned by fulfillment")
	}

	var result AdjustResult
	err := s.runWithConflictRetry(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if _, err := s.catalog.EnsureActiveProduct(ctx, tx, input.ProductID); err != nil {
			return err
		}
		if _, err := s.catalog.EnsureActiveWarehouse(ctx, tx, input.WarehouseID); err != nil {
			return err
		}

		level, err := repo.GetOrCreateStockLevel(ctx, input.ProductID, input.WarehouseID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stock level")
		}

		restocked := input.Quantity > 0 && input.Type == enums.TransactionTypeReceipt
		ok, err := repo.ApplyOnHandDelta(ctx, input.ProductID, input.WarehouseID, input.Quantity, restocked)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply stock delta")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeInsufficientStock, "adjustment would drop on-hand below reserved").
				WithDetails(map[string]int{
					"on_hand":   level.OnHand,
					"reserved":  level.Reserved,
					"requested": input.Quantity,
				})
		}

		row := models.StockTransaction{
			ID:            uuid.New(),
			ProductID:     input.ProductID,
			WarehouseID:   input.WarehouseID,
			Type:          input.Type,
			Quantity:      input.Quantity,
			UnitCost:      input.UnitCost,
			ReferenceType: input.ReferenceType,
			ReferenceID:   input.ReferenceID,
			Notes:         input.Notes,
			PerformedBy:   input.ActorID,
		}
		if err := repo.InsertTransaction(ctx, &row); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert stock transaction")
		}

		updated, err := repo.GetStockLevel(ctx, input.ProductID, input.WarehouseID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload stock level")
		}
		result = AdjustResult{
			TransactionID: row.ID,
			OnHand:        updated.OnHand,
			Reserved:      updated.Reserved,
		}

		if s.outbox != nil {
			event := outbox.DomainEvent{
				EventType:     enums.EventInventoryChanged,
				AggregateType: enums.AggregateStockLevel,
				AggregateID:   row.ID,
				Actor:         &outbox.ActorRef{UserID: input.ActorID},
				Data: payloads.InventoryChangedEvent{
					ProductID:       input.ProductID,
					WarehouseID:     input.WarehouseID,
					TransactionID:   row.ID,
					TransactionType: input.Type,
					Quantity:        input.Quantity,
					OnHand:          updated.OnHand,
					Reserved:        updated.Reserved,
				},
				Version: 1,
			}
			if err := s.outbox.Emit(ctx, tx, event); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit inventory event")
			}
		}

		if s.audit != nil {
			s.audit.Record(ctx, tx, audit.Entry{
				EntityType: "stock_level",
				EntityID:   input.ProductID,
				Action:     enums.AuditActionStockAdjusted,
				ActorID:    input.ActorID,
				Payload: map[string]any{
					"warehouse_id":     input.WarehouseID,
					"transaction_type": input.Type,
					"quantity":         input.Quantity,
				},
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *service) Reserve(ctx context.Context, input ReservationInput) error {
	if input.Quantity <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	return s.runWithConflictRetry(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if _, err := s.catalog.EnsureActiveProduct(ctx, tx, input.ProductID); err != nil {
			return err
		}
		if _, err := s.catalog.EnsureActiveWarehouse(ctx, tx, input.WarehouseID); err != nil {
			return err
		}

		// Reservation needs an existing row; only Adjust creates levels.
		level, err := repo.GetStockLevel(ctx, input.ProductID, input.WarehouseID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "stock level not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stock level")
		}

		ok, err := repo.Reserve(ctx, input.ProductID, input.WarehouseID, input.Quantity)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve stock")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock to reserve").
				WithDetails(map[string]int{
					"available": level.Available(),
					"requested": input.Quantity,
				})
		}

		if s.audit != nil {
			s.audit.Record(ctx, tx, audit.Entry{
				EntityType: "stock_level",
				EntityID:   input.ProductID,
				Action:     enums.AuditActionStockReserved,
				ActorID:    input.ActorID,
				Payload: map[string]any{
					"warehouse_id": input.WarehouseID,
					"quantity":     input.Quantity,
				},
			})
		}
		return nil
	})
}

func (s *service) Release(ctx context.Context, input ReservationInput) (int, error) {
	if input.Quantity <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	released := 0
	err := s.runWithConflictRetry(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		level, err := repo.GetStockLevel(ctx, input.ProductID, input.WarehouseID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				released = 0
				return nil
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stock level")
		}

		released = input.Quantity
		if level.Reserved < released {
			released = level.Reserved
		}
		if released == 0 {
			return nil
		}

		if err := repo.Release(ctx, input.ProductID, input.WarehouseID, input.Quantity); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release stock")
		}

		if s.outbox != nil {
			event := outbox.DomainEvent{
				EventType:     enums.EventStockReservationReleased,
				AggregateType: enums.AggregateStockLevel,
				AggregateID:   input.ProductID,
				Actor:         &outbox.ActorRef{UserID: input.ActorID},
				Data: payloads.StockReservationReleasedEvent{
					ProductID:   input.ProductID,
					WarehouseID: input.WarehouseID,
					Quantity:    released,
					Reason:      input.Reason,
				},
				Version: 1,
			}
			if err := s.outbox.Emit(ctx, tx, event); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit release event")
			}
		}

		if s.audit != nil {
			s.audit.Record(ctx, tx, audit.Entry{
				EntityType: "stock_level",
				EntityID:   input.ProductID,
				Action:     enums.AuditActionStockReleased,
				ActorID:    input.ActorID,
				Payload: map[string]any{
					"warehouse_id": input.WarehouseID,
					"quantity":     released,
				},
			})
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return released, nil
}

func (s *service) GetLevel(ctx context.Context, productID, warehouseID uuid.UUID) (*models.StockLevel, error) {
	level, err := s.repo.GetStockLevel(ctx, productID, warehouseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "stock level not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stock level")
	}
	return level, nil
}

func (s *service) ListLevels(ctx context.Context, warehouseID uuid.UUID, limit, offset int) ([]models.StockLevel, error) {
	levels, err := s.repo.ListStockLevels(ctx, warehouseID, limit, offset)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stock levels")
	}
	return levels, nil
}

func (s *service) ListTransactions(ctx context.Context, filter TransactionFilter) ([]models.StockTransaction, string, error) {
	rows, next, err := s.repo.ListTransactions(ctx, filter)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stock transactions")
	}
	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}
	return rows, cursor, nil
}

// runWithConflictRetry executes fn in a transaction and retries exactly once
// when the database reports a lock conflict.
func (s *service) runWithConflictRetry(ctx context.Context, fn func(tx *gorm.DB) error) error {
	backoff := retry.WithMaxRetries(1, retry.NewConstant(conflictRetryBackoff))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := s.tx.WithTx(ctx, fn)
		if err == nil {
			return nil
		}
		if dbpkg.IsLockTimeout(err) {
			return retry.RetryableError(pkgerrors.Wrap(pkgerrors.CodeConflict, err, "concurrent stock modification"))
		}
		return err
	})
}
