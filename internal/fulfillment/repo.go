package fulfillment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stockroomhq/stockroom-backend/pkg/db/models"
	"github.com/stockroomhq/stockroom-backend/pkg/enums"
)

// Repository owns shipment and sales order rows plus the tracking history.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateShipment(ctx context.Context, shipment *models.Shipment) error
	FindShipmentByID(ctx context.Context, id uuid.UUID) (*models.Shipment, error)
	// UpdateShipmentStatus flips status only when the row still carries the
	// expected value. Zero rows affected means a concurrent writer won.
	UpdateShipmentStatus(ctx context.Context, id uuid.UUID, from, to enums.ShipmentStatus, deliveredAt, closedAt *time.Time) (bool, error)
	ListShipmentsByStatus(ctx context.Context, status enums.ShipmentStatus, limit, offset int) ([]models.Shipment, error)

	InsertShipmentEvent(ctx context.Context, event *models.ShipmentEvent) error
	ListShipmentEvents(ctx context.Context, shipmentID uuid.UUID) ([]models.ShipmentEvent, error)

	CreateSalesOrder(ctx context.Context, order *models.SalesOrder) error
	FindSalesOrderByID(ctx context.Context, id uuid.UUID) (*models.SalesOrder, error)
	UpdateSalesOrderStatus(ctx context.Context, id uuid.UUID, from, to enums.SalesOrderStatus, shippedAt *time.Time) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a fulfillment repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateShipment(ctx context.Context, shipment *models.Shipment) error {
	if shipment.ID == uuid.Nil {
		shipment.ID = uuid.New()
	}
	for i := range shipment.Items {
		if shipment.Items[i].ID == uuid.Nil {
			shipment.Items[i].ID = uuid.New()
		}
		shipment.Items[i].ShipmentID = shipment.ID
	}
	return r.db.WithContext(ctx).Create(shipment).Error
}

func (r *repository) FindShipmentByID(ctx context.Context, id uuid.UUID) (*models.Shipment, error) {
	var shipment models.Shipment
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("id = ?", id).
		First(&shipment).Error
	if err != nil {
		return nil, err
	}
	return &shipment, nil
}

func (r *repository) UpdateShipmentStatus(ctx context.Context, id uuid.UUID, from, to enums.ShipmentStatus, deliveredAt, closedAt *time.Time) (bool, error) {
	updates := map[string]any{
		"status":     to,
		"updated_at": time.Now(),
	}
	if deliveredAt != nil {
		updates["delivered_at"] = *deliveredAt
	}
	if closedAt != nil {
		updates["closed_at"] = *closedAt
	}
	res := r.db.WithContext(ctx).Model(&models.Shipment{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) ListShipmentsByStatus(ctx context.Context, status enums.ShipmentStatus, limit, offset int) ([]models.Shipment, error) {
	var shipments []models.Shipment
	query := r.db.WithContext(ctx).
		Preload("Items").
		Where("status = ?", status).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	err := query.Find(&shipments).Error
	return shipments, err
}

func (r *repository) InsertShipmentEvent(ctx context.Context, event *models.ShipmentEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) ListShipmentEvents(ctx context.Context, shipmentID uuid.UUID) ([]models.ShipmentEvent, error) {
	var events []models.ShipmentEvent
	err := r.db.WithContext(ctx).
		Where("shipment_id = ?", shipmentID).
		Order("created_at ASC").
		Find(&events).Error
	return events, err
}

func (r *repository) CreateSalesOrder(ctx context.Context, order *models.SalesOrder) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	for i := range order.Items {
		if order.Items[i].ID == uuid.Nil {
			order.Items[i].ID = uuid.New()
		}
		order.Items[i].SalesOrderID = order.ID
	}
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindSalesOrderByID(ctx context.Context, id uuid.UUID) (*models.SalesOrder, error) {
	var order models.SalesOrder
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) UpdateSalesOrderStatus(ctx context.Context, id uuid.UUID, from, to enums.SalesOrderStatus, shippedAt *time.Time) (bool, error) {
	updates := map[string]any{
		"status":     to,
		"updated_at": time.Now(),
	}
	if shippedAt != nil {
		updates["shipped_at"] = *shippedAt
	}
	res := r.db.WithContext(ctx).Model(&models.SalesOrder{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
