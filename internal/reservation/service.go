package reservation

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stockroomhq/stockroom-backend/internal/audit"
	"github.com/stockroomhq/stockroom-backend/internal/catalog"
	"github.com/stockroomhq/stockroom-backend/internal/ledger"
	"github.com/stockroomhq/stockroom-backend/pkg/enums"
	pkgerrors "github.com/stockroomhq/stockroom-backend/pkg/errors"
	"github.com/stockroomhq/stockroom-backend/pkg/outbox"
	"github.com/stockroomhq/stockroom-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type auditRecorder interface {
	Record(ctx context.Context, tx *gorm.DB, entry audit.Entry)
}

// Line is one product/quantity pair inside an order-level request.
type Line struct {
	ProductID uuid.UUID
	Qty       int
}

// OrderInput carries the lines of one order-scoped reservation request.
type OrderInput struct {
	OrderID     uuid.UUID
	WarehouseID uuid.UUID
	Lines       []Line
	ActorID     uuid.UUID
	Reason      string
}

// FailedLine reports why one line could not be reserved.
type FailedLine struct {
	ProductID uuid.UUID `json:"product_id"`
	Requested int       `json:"requested"`
	Available int       `json:"available"`
}

// Service places and releases order-scoped reservations. Reservation is
// all-or-nothing: if any line lacks stock the whole batch rolls back and the
// failed lines are reported in the error details.
type Service interface {
	ReserveForOrder(ctx context.Context, input OrderInput) error
	ReleaseForOrder(ctx context.Context, input OrderInput) error
}

type service struct {
	repo    ledger.Repository
	tx      txRunner
	catalog catalog.Service
	outbox  outboxPublisher
	audit   auditRecorder
}

// NewService builds the reservation service on top of the ledger repository.
func NewService(repo ledger.Repository, tx txRunner, catalogSvc catalog.Service, outboxSvc outboxPublisher, auditRec auditRecorder) Service {
	return &service{repo: repo, tx: tx, catalog: catalogSvc, outbox: outboxSvc, audit: auditRec}
}

func (s *service) ReserveForOrder(ctx context.Context, input OrderInput) error {
	if err := validateLines(input.Lines); err != nil {
		return err
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if _, err := s.catalog.EnsureActiveWarehouse(ctx, tx, input.WarehouseID); err != nil {
			return err
		}

		var failed []FailedLine
		for _, line := range input.Lines {
			if _, err := s.catalog.EnsureActiveProduct(ctx, tx, line.ProductID); err != nil {
				return err
			}
			level, err := repo.GetStockLevel(ctx, line.ProductID, input.WarehouseID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return pkgerrors.New(pkgerrors.CodeNotFound, "stock level not found").
						WithDetails(map[string]string{"product_id": line.ProductID.String()})
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stock level")
			}
			ok, err := repo.Reserve(ctx, line.ProductID, input.WarehouseID, line.Qty)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve stock")
			}
			if !ok {
				failed = append(failed, FailedLine{
					ProductID: line.ProductID,
					Requested: line.Qty,
					Available: level.Available(),
				})
			}
		}
		if len(failed) > 0 {
			// Returning an error rolls back every line reserved above.
			return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock for order").
				WithDetails(failed)
		}

		if s.audit != nil {
			s.audit.Record(ctx, tx, audit.Entry{
				EntityType: "sales_order",
				EntityID:   input.OrderID,
				Action:     enums.AuditActionStockReserved,
				ActorID:    input.ActorID,
				Payload: map[string]any{
					"warehouse_id": input.WarehouseID,
					"lines":        len(input.Lines),
				},
			})
		}
		return nil
	})
}

func (s *service) ReleaseForOrder(ctx context.Context, input OrderInput) error {
	if err := validateLines(input.Lines); err != nil {
		return err
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		for _, line := range input.Lines {
			if err := repo.Release(ctx, line.ProductID, input.WarehouseID, line.Qty); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release stock")
			}

			if s.outbox != nil {
				event := outbox.DomainEvent{
					EventType:     enums.EventStockReservationReleased,
					AggregateType: enums.AggregateStockLevel,
					AggregateID:   line.ProductID,
					Actor:         &outbox.ActorRef{UserID: input.ActorID},
					Data: payloads.StockReservationReleasedEvent{
						ProductID:   line.ProductID,
						WarehouseID: input.WarehouseID,
						Quantity:    line.Qty,
						Reason:      input.Reason,
					},
					Version: 1,
				}
				if err := s.outbox.Emit(ctx, tx, event); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit release event")
				}
			}
		}

		if s.audit != nil {
			s.audit.Record(ctx, tx, audit.Entry{
				EntityType: "sales_order",
				EntityID:   input.OrderID,
				Action:     enums.AuditActionStockReleased,
				ActorID:    input.ActorID,
				Payload: map[string]any{
					"warehouse_id": input.WarehouseID,
					"lines":        len(input.Lines),
					"reason":       input.Reason,
				},
			})
		}
		return nil
	})
}

func validateLines(lines []Line) error {
	if len(lines) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one line is required")
	}
	seen := make(map[uuid.UUID]struct{}, len(lines))
	for _, line := range lines {
		if line.Qty <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "line quantity must be positive")
		}
		if _, dup := seen[line.ProductID]; dup {
			return pkgerrors.New(pkgerrors.CodeValidation, "duplicate product line")
		}
		seen[line.ProductID] = struct{}{}
	}
	return nil
}
