package fulfillment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/stockroomhq/stockroom-backend/internal/audit"
	"github.com/stockroomhq/stockroom-backend/internal/catalog"
	"github.com/stockroomhq/stockroom-backend/internal/ledger"
	dbpkg "github.com/stockroomhq/stockroom-backend/pkg/db"
	"github.com/stockroomhq/stockroom-backend/pkg/db/models"
	"github.com/stockroomhq/stockroom-backend/pkg/enums"
	pkgerrors "github.com/stockroomhq/stockroom-backend/pkg/errors"
	"github.com/stockroomhq/stockroom-backend/pkg/logger"
	"github.com/stockroomhq/stockroom-backend/pkg/outbox"
	"github.com/stockroomhq/stockroom-backend/pkg/outbox/payloads"
)

const (
	conflictRetryBackoff = 50 * time.Millisecond

	referenceTypeShipment   = "shipment"
	referenceTypeSalesOrder = "sales_order"
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

// ItemInput is one product line on a new shipment or order.
type ItemInput struct {
	ProductID uuid.UUID
	Qty       int
}

// CreateShipmentInput carries everything needed to open a shipment. Stock is
// reserved for every line when the shipment is created.
type CreateShipmentInput struct {
	WarehouseID  uuid.UUID
	SalesOrderID *uuid.UUID
	Items        []ItemInput
	ActorID      uuid.UUID
}

// TransitionShipmentInput requests one state machine step.
type TransitionShipmentInput struct {
	ShipmentID uuid.UUID
	To         enums.ShipmentStatus
	Notes      *string
	ActorID    uuid.UUID
}

// CreateSalesOrderInput opens a sales order with reservation at creation.
type CreateSalesOrderInput struct {
	WarehouseID uuid.UUID
	Items       []ItemInput
	ActorID     uuid.UUID
}

// TransitionSalesOrderInput requests one order lifecycle step.
type TransitionSalesOrderInput struct {
	SalesOrderID uuid.UUID
	To           enums.SalesOrderStatus
	ActorID      uuid.UUID
}

// Service drives the fulfillment state machine. It is the only writer of
// shipment and sales order statuses and the only producer of shipment-type
// stock transactions.
type Service interface {
	CreateShipment(ctx context.Context, input CreateShipmentInput) (*models.Shipment, error)
	TransitionShipment(ctx context.Context, input TransitionShipmentInput) (*models.Shipment, error)
	GetShipment(ctx context.Context, id uuid.UUID) (*models.Shipment, error)
	ListShipmentEvents(ctx context.Context, shipmentID uuid.UUID) ([]models.ShipmentEvent, error)

	CreateSalesOrder(ctx context.Context, input CreateSalesOrderInput) (*models.SalesOrder, error)
	TransitionSalesOrder(ctx context.Context, input TransitionSalesOrderInput) (*models.SalesOrder, error)
	GetSalesOrder(ctx context.Context, id uuid.UUID) (*models.SalesOrder, error)
}

type service struct {
	repo    Repository
	stock   ledger.Repository
	tx      txRunner
	catalog catalog.Service
	outbox  outboxPublisher
	audit   auditRecorder
	logg    *logger.Logger
}

// NewService builds the fulfillment service.
func NewService(repo Repository, stock ledger.Repository, tx txRunner, catalogSvc catalog.Service, outboxSvc outboxPublisher, auditRec auditRecorder, logg *logger.Logger) Service {
	return &service{
		repo:    repo,
		stock:   stock,
		tx:      tx,
		catalog: catalogSvc,
		outbox:  outboxSvc,
		audit:   auditRec,
		logg:    logg,
	}
}

func (s *service) CreateShipment(ctx context.Context, input CreateShipmentInput) (*models.Shipment, error) {
	if err := validateItems(input.Items); err != nil {
		return nil, err
	}

	var created *models.Shipment
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		stock := s.stock.WithTx(tx)

		if _, err := s.catalog.EnsureActiveWarehouse(ctx, tx, input.WarehouseID); err != nil {
			return err
		}

		shipment := models.Shipment{
			ID:           uuid.New(),
			WarehouseID:  input.WarehouseID,
			SalesOrderID: input.SalesOrderID,
			Status:       enums.ShipmentStatusPending,
			CreatedBy:    input.ActorID,
		}
		for _, item := range input.Items {
			shipment.Items = append(shipment.Items, models.ShipmentItem{
				ID:        uuid.New(),
				ProductID: item.ProductID,
				Qty:       item.Qty,
			})
		}

		var failed []FailedLine
		for _, item := range input.Items {
			if _, err := s.catalog.EnsureActiveProduct(ctx, tx, item.ProductID); err != nil {
				return err
			}
			level, err := stock.GetOrCreateStockLevel(ctx, item.ProductID, input.WarehouseID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stock level")
			}
			ok, err := stock.Reserve(ctx, item.ProductID, input.WarehouseID, item.Qty)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve stock")
			}
			if !ok {
				failed = append(failed, FailedLine{
					ProductID: item.ProductID,
					Requested: item.Qty,
					Available: level.Available(),
				})
			}
		}
		if len(failed) > 0 {
			return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock for shipment").
				WithDetails(failed)
		}

		if err := repo.CreateShipment(ctx, &shipment); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create shipment")
		}

		if s.audit != nil {
			s.audit.Record(ctx, tx, audit.Entry{
				EntityType: "shipment",
				EntityID:   shipment.ID,
				Action:     enums.AuditActionStockReserved,
				ActorID:    input.ActorID,
				Payload: map[string]any{
					"warehouse_id": input.WarehouseID,
					"lines":        len(input.Items),
				},
			})
		}

		created = &shipment
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *service) TransitionShipment(ctx context.Context, input TransitionShipmentInput) (*models.Shipment, error) {
	if !input.To.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid shipment status")
	}

	var result *models.Shipment
	err := s.runWithConflictRetry(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		shipment, err := repo.FindShipmentByID(ctx, input.ShipmentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "shipment not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load shipment")
		}

		// Replayed delivered requests succeed without re-running effects.
		if shipment.Status == enums.ShipmentStatusDelivered && input.To == enums.ShipmentStatusDelivered {
			result = shipment
			return nil
		}

		if !canTransitionShipment(shipment.Status, input.To) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "invalid shipment transition").
				WithDetails(map[string]string{
					"from": shipment.Status.String(),
					"to":   input.To.String(),
				})
		}

		var deliveredAt, closedAt *time.Time
		now := time.Now()
		switch input.To {
		case enums.ShipmentStatusDelivered:
			deliveredAt = &now
		case enums.ShipmentStatusCancelled, enums.ShipmentStatusFailed:
			closedAt = &now
		}

		ok, err := repo.UpdateShipmentStatus(ctx, shipment.ID, shipment.Status, input.To, deliveredAt, closedAt)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update shipment status")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "shipment modified concurrently")
		}

		switch input.To {
		case enums.ShipmentStatusDelivered:
			if err := s.applyDeliveredEffects(ctx, tx, shipment, input.ActorID); err != nil {
				return err
			}
		case enums.ShipmentStatusCancelled, enums.ShipmentStatusFailed:
			if err := s.releaseShipmentReservations(ctx, tx, shipment, input.ActorID, "shipment "+input.To.String()); err != nil {
				return err
			}
		}

		event := models.ShipmentEvent{
			ID:         uuid.New(),
			ShipmentID: shipment.ID,
			FromStatus: shipment.Status,
			ToStatus:   input.To,
			Notes:      input.Notes,
			ActorID:    input.ActorID,
		}
		if err := repo.InsertShipmentEvent(ctx, &event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert shipment event")
		}

		if s.outbox != nil {
			domainEvent := outbox.DomainEvent{
				EventType:     enums.EventShipmentStatusChanged,
				AggregateType: enums.AggregateShipment,
				AggregateID:   shipment.ID,
				Actor:         &outbox.ActorRef{UserID: input.ActorID},
				Data: payloads.ShipmentStatusChangedEvent{
					ShipmentID:   shipment.ID,
					SalesOrderID: shipment.SalesOrderID,
					WarehouseID:  shipment.WarehouseID,
					FromStatus:   shipment.Status,
					ToStatus:     input.To,
					OccurredAt:   now,
				},
				Version: 1,
			}
			if err := s.outbox.Emit(ctx, tx, domainEvent); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit shipment event")
			}
		}

		if s.audit != nil {
			s.audit.Record(ctx, tx, audit.Entry{
				EntityType: "shipment",
				EntityID:   shipment.ID,
				Action:     enums.AuditActionStatusTransitioned,
				ActorID:    input.ActorID,
				Payload: map[string]any{
					"from": shipment.Status,
					"to":   input.To,
				},
			})
		}

		reloaded, err := repo.FindShipmentByID(ctx, shipment.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload shipment")
		}
		result = reloaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// applyDeliveredEffects debits on-hand and consumed reservations once per
// shipment line. The per-line existence check keeps replays from double
// debiting; the partial unique index on stock_transactions catches the race
// between two concurrent delivered transitions.
func (s *service) applyDeliveredEffects(ctx context.Context, tx *gorm.DB, shipment *models.Shipment, actorID uuid.UUID) error {
	stock := s.stock.WithTx(tx)
	refType := referenceTypeShipment

	for _, item := range shipment.Items {
		exists, err := stock.ShipmentTransactionExists(ctx, refType, shipment.ID, item.ProductID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check shipment transaction")
		}
		if exists {
			continue
		}

		refID := shipment.ID
		row := models.StockTransaction{
			ID:            uuid.New(),
			ProductID:     item.ProductID,
			WarehouseID:   shipment.WarehouseID,
			Type:          enums.TransactionTypeShipment,
			Quantity:      -item.Qty,
			ReferenceType: &refType,
			ReferenceID:   &refID,
			PerformedBy:   actorID,
		}
		if err := stock.InsertTransaction(ctx, &row); err != nil {
			if dbpkg.IsUniqueViolation(err, "ux_stock_transactions_shipment_reference") {
				continue
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert shipment transaction")
		}

		level, err := stock.GetStockLevel(ctx, item.ProductID, shipment.WarehouseID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stock level")
		}
		if level != nil && level.OnHand < item.Qty && s.logg != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"shipment_id": shipment.ID.String(),
				"product_id":  item.ProductID.String(),
				"on_hand":     level.OnHand,
				"quantity":    item.Qty,
			})
			s.logg.Warn(logCtx, "delivered quantity exceeds on-hand, clamping at zero")
		}

		if err := stock.ConsumeReservation(ctx, item.ProductID, shipment.WarehouseID, item.Qty); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "consume reservation")
		}
	}
	return nil
}

func (s *service) releaseShipmentReservations(ctx context.Context, tx *gorm.DB, shipment *models.Shipment, actorID uuid.UUID, reason string) error {
	stock := s.stock.WithTx(tx)
	for _, item := range shipment.Items {
		if err := stock.Release(ctx, item.ProductID, shipment.WarehouseID, item.Qty); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release reservation")
		}
		if s.outbox != nil {
			event := outbox.DomainEvent{
				EventType:     enums.EventStockReservationReleased,
				AggregateType: enums.AggregateStockLevel,
				AggregateID:   item.ProductID,
				Actor:         &outbox.ActorRef{UserID: actorID},
				Data: payloads.StockReservationReleasedEvent{
					ProductID:   item.ProductID,
					WarehouseID: shipment.WarehouseID,
					Quantity:    item.Qty,
					Reason:      reason,
				},
				Version: 1,
			}
			if err := s.outbox.Emit(ctx, tx, event); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit release event")
			}
		}
	}
	return nil
}

func (s *service) GetShipment(ctx context.Context, id uuid.UUID) (*models.Shipment, error) {
	shipment, err := s.repo.FindShipmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "shipment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load shipment")
	}
	return shipment, nil
}

func (s *service) ListShipmentEvents(ctx context.Context, shipmentID uuid.UUID) ([]models.ShipmentEvent, error) {
	events, err := s.repo.ListShipmentEvents(ctx, shipmentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list shipment events")
	}
	return events, nil
}

func (s *service) CreateSalesOrder(ctx context.Context, input CreateSalesOrderInput) (*models.SalesOrder, error) {
	if err := validateItems(input.Items); err != nil {
		return nil, err
	}

	var created *models.SalesOrder
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		stock := s.stock.WithTx(tx)

		if _, err := s.catalog.EnsureActiveWarehouse(ctx, tx, input.WarehouseID); err != nil {
			return err
		}

		order := models.SalesOrder{
			ID:          uuid.New(),
			WarehouseID: input.WarehouseID,
			Status:      enums.SalesOrderStatusPending,
			CreatedBy:   input.ActorID,
		}
		for _, item := range input.Items {
			order.Items = append(order.Items, models.SalesOrderItem{
				ID:        uuid.New(),
				ProductID: item.ProductID,
				Qty:       item.Qty,
			})
		}

		var failed []FailedLine
		for _, item := range input.Items {
			if _, err := s.catalog.EnsureActiveProduct(ctx, tx, item.ProductID); err != nil {
				return err
			}
			level, err := stock.GetOrCreateStockLevel(ctx, item.ProductID, input.WarehouseID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stock level")
			}
			ok, err := stock.Reserve(ctx, item.ProductID, input.WarehouseID, item.Qty)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve stock")
			}
			if !ok {
				failed = append(failed, FailedLine{
					ProductID: item.ProductID,
					Requested: item.Qty,
					Available: level.Available(),
				})
			}
		}
		if len(failed) > 0 {
			return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock for order").
				WithDetails(failed)
		}

		if err := repo.CreateSalesOrder(ctx, &order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create sales order")
		}

		created = &order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *service) TransitionSalesOrder(ctx context.Context, input TransitionSalesOrderInput) (*models.SalesOrder, error) {
	if !input.To.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid sales order status")
	}

	var result *models.SalesOrder
	err := s.runWithConflictRetry(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		order, err := repo.FindSalesOrderByID(ctx, input.SalesOrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "sales order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load sales order")
		}

		if order.Status == enums.SalesOrderStatusShipped && input.To == enums.SalesOrderStatusShipped {
			result = order
			return nil
		}

		if !canTransitionSalesOrder(order.Status, input.To) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "invalid sales order transition").
				WithDetails(map[string]string{
					"from": order.Status.String(),
					"to":   input.To.String(),
				})
		}

		var shippedAt *time.Time
		now := time.Now()
		if input.To == enums.SalesOrderStatusShipped {
			shippedAt = &now
		}

		ok, err := repo.UpdateSalesOrderStatus(ctx, order.ID, order.Status, input.To, shippedAt)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update sales order status")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "sales order modified concurrently")
		}

		if input.To == enums.SalesOrderStatusShipped {
			if err := s.applyShippedEffects(ctx, tx, order, input.ActorID); err != nil {
				return err
			}
		}

		if s.outbox != nil {
			event := outbox.DomainEvent{
				EventType:     enums.EventSalesOrderStatusChanged,
				AggregateType: enums.AggregateSalesOrder,
				AggregateID:   order.ID,
				Actor:         &outbox.ActorRef{UserID: input.ActorID},
				Data: payloads.SalesOrderStatusChangedEvent{
					SalesOrderID: order.ID,
					WarehouseID:  order.WarehouseID,
					FromStatus:   order.Status,
					ToStatus:     input.To,
					OccurredAt:   now,
				},
				Version: 1,
			}
			if err := s.outbox.Emit(ctx, tx, event); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order event")
			}
		}

		if s.audit != nil {
			s.audit.Record(ctx, tx, audit.Entry{
				EntityType: "sales_order",
				EntityID:   order.ID,
				Action:     enums.AuditActionStatusTransitioned,
				ActorID:    input.ActorID,
				Payload: map[string]any{
					"from": order.Status,
					"to":   input.To,
				},
			})
		}

		reloaded, err := repo.FindSalesOrderByID(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload sales order")
		}
		result = reloaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// applyShippedEffects consumes the order's reservations, mirroring the
// delivered path on shipments.
func (s *service) applyShippedEffects(ctx context.Context, tx *gorm.DB, order *models.SalesOrder, actorID uuid.UUID) error {
	stock := s.stock.WithTx(tx)
	refType := referenceTypeSalesOrder

	for _, item := range order.Items {
		exists, err := stock.ShipmentTransactionExists(ctx, refType, order.ID, item.ProductID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check order transaction")
		}
		if exists {
			continue
		}

		refID := order.ID
		row := models.StockTransaction{
			ID:            uuid.New(),
			ProductID:     item.ProductID,
			WarehouseID:   order.WarehouseID,
			Type:          enums.TransactionTypeShipment,
			Quantity:      -item.Qty,
			ReferenceType: &refType,
			ReferenceID:   &refID,
			PerformedBy:   actorID,
		}
		if err := stock.InsertTransaction(ctx, &row); err != nil {
			if dbpkg.IsUniqueViolation(err, "ux_stock_transactions_shipment_reference") {
				continue
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert order transaction")
		}

		if err := stock.ConsumeReservation(ctx, item.ProductID, order.WarehouseID, item.Qty); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "consume reservation")
		}
	}
	return nil
}

func (s *service) GetSalesOrder(ctx context.Context, id uuid.UUID) (*models.SalesOrder, error) {
	order, err := s.repo.FindSalesOrderByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "sales order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load sales order")
	}
	return order, nil
}

func (s *service) runWithConflictRetry(ctx context.Context, fn func(tx *gorm.DB) error) error {
	backoff := retry.WithMaxRetries(1, retry.NewConstant(conflictRetryBackoff))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := s.tx.WithTx(ctx, fn)
		if err == nil {
			return nil
		}
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeConflict {
			return retry.RetryableError(err)
		}
		if dbpkg.IsLockTimeout(err) {
			return retry.RetryableError(pkgerrors.Wrap(pkgerrors.CodeConflict, err, "concurrent modification"))
		}
		return err
	})
}

// FailedLine reports one line that could not be reserved.
type FailedLine struct {
	ProductID uuid.UUID `json:"product_id"`
	Requested int       `json:"requested"`
	Available int       `json:"available"`
}

func validateItems(items []ItemInput) error {
	if len(items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}
	seen := make(map[uuid.UUID]struct{}, len(items))
	for _, item := range items {
		if item.Qty <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "item quantity must be positive")
		}
		if _, dup := seen[item.ProductID]; dup {
			return pkgerrors.New(pkgerrors.CodeValidation, "duplicate product line")
		}
		seen[item.ProductID] = struct{}{}
	}
	return nil
}
