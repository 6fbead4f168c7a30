package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/stockroomhq/stockroom-backend/internal/audit"
	"github.com/stockroomhq/stockroom-backend/internal/fulfillment"
	"github.com/stockroomhq/stockroom-backend/internal/ledger"
	dbpkg "github.com/stockroomhq/stockroom-backend/pkg/db"
	"github.com/stockroomhq/stockroom-backend/pkg/db/models"
	"github.com/stockroomhq/stockroom-backend/pkg/enums"
	"github.com/stockroomhq/stockroom-backend/pkg/outbox"
)

func TestSweepRepairsMissingDebit(t *testing.T) {
	t.Parallel()

	db, sweeper, productID, warehouseID := newTestSweeper(t)
	ctx := context.Background()

	// A delivered shipment whose ledger debit never landed: counters still
	// hold the reservation and no shipment transaction exists.
	seedDriftedShipment(t, db, productID, warehouseID, 4, 10)

	result, err := sweeper.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if result.Scanned != 1 || result.Repaired != 1 {
		t.Fatalf("unexpected result %+v", result)
	}

	var level models.StockLevel
	if err := db.First(&level, "product_id = ?", productID).Error; err != nil {
		t.Fatalf("load level: %v", err)
	}
	if level.OnHand != 6 || level.Reserved != 0 {
		t.Fatalf("expected repaired counters, got %+v", level)
	}

	var txCount int64
	if err := db.Model(&models.StockTransaction{}).
		Where("transaction_type = ?", enums.TransactionTypeShipment).
		Count(&txCount).Error; err != nil {
		t.Fatalf("count transactions: %v", err)
	}
	if txCount != 1 {
		t.Fatalf("expected 1 repair transaction, got %d", txCount)
	}

	var eventCount int64
	if err := db.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.EventShipmentDriftReconciled).
		Count(&eventCount).Error; err != nil {
		t.Fatalf("count drift events: %v", err)
	}
	if eventCount != 1 {
		t.Fatalf("expected 1 drift event, got %d", eventCount)
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	t.Parallel()

	db, sweeper, productID, warehouseID := newTestSweeper(t)
	ctx := context.Background()

	seedDriftedShipment(t, db, productID, warehouseID, 4, 10)

	if _, err := sweeper.Sweep(ctx); err != nil {
		t.Fatalf("first sweep failed: %v", err)
	}
	second, err := sweeper.Sweep(ctx)
	if err != nil {
		t.Fatalf("second sweep failed: %v", err)
	}
	if second.Repaired != 0 {
		t.Fatalf("second sweep must repair nothing, got %d", second.Repaired)
	}

	var level models.StockLevel
	if err := db.First(&level, "product_id = ?", productID).Error; err != nil {
		t.Fatalf("load level: %v", err)
	}
	if level.OnHand != 6 || level.Reserved != 0 {
		t.Fatalf("second sweep changed counters: %+v", level)
	}

	var txCount int64
	if err := db.Model(&models.StockTransaction{}).Count(&txCount).Error; err != nil {
		t.Fatalf("count transactions: %v", err)
	}
	if txCount != 1 {
		t.Fatalf("expected 1 transaction after double sweep, got %d", txCount)
	}

	var eventCount int64
	if err := db.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.EventShipmentDriftReconciled).
		Count(&eventCount).Error; err != nil {
		t.Fatalf("count drift events: %v", err)
	}
	if eventCount != 1 {
		t.Fatalf("expected 1 drift event after double sweep, got %d", eventCount)
	}
}

func TestSweepSkipsHealthyShipments(t *testing.T) {
	t.Parallel()

	db, sweeper, productID, warehouseID := newTestSweeper(t)
	ctx := context.Background()

	shipmentID := seedDriftedShipment(t, db, productID, warehouseID, 4, 10)

	// Land the debit manually so the shipment is healthy.
	refType := "shipment"
	refID := shipmentID
	row := models.StockTransaction{
		ID:            uuid.New(),
		ProductID:     productID,
		WarehouseID:   warehouseID,
		Type:          enums.TransactionTypeShipment,
		Quantity:      -4,
		ReferenceType: &refType,
		ReferenceID:   &refID,
		PerformedBy:   uuid.New(),
	}
	if err := db.Create(&row).Error; err != nil {
		t.Fatalf("seed transaction: %v", err)
	}

	result, err := sweeper.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if result.Scanned != 1 || result.Repaired != 0 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestSweepAttributesRepairToShipmentCreator(t *testing.T) {
	t.Parallel()

	db, sweeper, productID, warehouseID := newTestSweeper(t)
	ctx := context.Background()

	shipmentID := seedDriftedShipment(t, db, productID, warehouseID, 4, 10)

	var shipment models.Shipment
	if err := db.First(&shipment, "id = ?", shipmentID).Error; err != nil {
		t.Fatalf("load shipment: %v", err)
	}

	if _, err := sweeper.Sweep(ctx); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	var row models.StockTransaction
	if err := db.First(&row, "transaction_type = ?", enums.TransactionTypeShipment).Error; err != nil {
		t.Fatalf("load repair transaction: %v", err)
	}
	if row.PerformedBy != shipment.CreatedBy {
		t.Fatalf("repair attributed to %s, want creator %s", row.PerformedBy, shipment.CreatedBy)
	}
	if row.PerformedBy == sweeper.actorID {
		t.Fatal("repair must not fall back to the system actor when the creator is known")
	}
}

func TestSweepFallsBackToSystemActorWhenCreatorUnknown(t *testing.T) {
	t.Parallel()

	db, sweeper, productID, warehouseID := newTestSweeper(t)
	ctx := context.Background()

	shipmentID := seedDriftedShipment(t, db, productID, warehouseID, 4, 10)
	if err := db.Model(&models.Shipment{}).
		Where("id = ?", shipmentID).
		Update("created_by", uuid.Nil).Error; err != nil {
		t.Fatalf("clear creator: %v", err)
	}

	if _, err := sweeper.Sweep(ctx); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	var row models.StockTransaction
	if err := db.First(&row, "transaction_type = ?", enums.TransactionTypeShipment).Error; err != nil {
		t.Fatalf("load repair transaction: %v", err)
	}
	if row.PerformedBy != sweeper.actorID {
		t.Fatalf("repair attributed to %s, want system actor %s", row.PerformedBy, sweeper.actorID)
	}
}

// seedDriftedShipment creates a delivered shipment with qty reserved but no
// ledger debit. Returns the shipment ID.
func seedDriftedShipment(t *testing.T, db *gorm.DB, productID, warehouseID uuid.UUID, qty, onHand int) uuid.UUID {
	t.Helper()

	level := models.StockLevel{ProductID: productID, WarehouseID: warehouseID, OnHand: onHand, Reserved: qty}
	if err := db.Create(&level).Error; err != nil {
		t.Fatalf("seed stock level: %v", err)
	}

	deliveredAt := time.Now().Add(-time.Hour)
	shipment := models.Shipment{
		ID:          uuid.New(),
		WarehouseID: warehouseID,
		Status:      enums.ShipmentStatusDelivered,
		CreatedBy:   uuid.New(),
		DeliveredAt: &deliveredAt,
		Items: []models.ShipmentItem{
			{ID: uuid.New(), ProductID: productID, Qty: qty},
		},
	}
	if err := db.Create(&shipment).Error; err != nil {
		t.Fatalf("seed shipment: %v", err)
	}
	return shipment.ID
}

func newTestSweeper(t *testing.T) (*gorm.DB, *Sweeper, uuid.UUID, uuid.UUID) {
	t.Helper()

	dsn := "file:reconcile_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.AutoMigrate(
		&models.Product{},
		&models.Warehouse{},
		&models.StockLevel{},
		&models.StockTransaction{},
		&models.Shipment{},
		&models.ShipmentItem{},
		&models.ShipmentEvent{},
		&models.OutboxEvent{},
		&models.AuditRecord{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	product := models.Product{ID: uuid.New(), SKU: "SKU-" + uuid.NewString()[:8], Name: "Widget", IsActive: true}
	warehouse := models.Warehouse{ID: uuid.New(), Code: "WH-" + uuid.NewString()[:8], Name: "Main", IsActive: true}
	if err := conn.Create(&product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	if err := conn.Create(&warehouse).Error; err != nil {
		t.Fatalf("seed warehouse: %v", err)
	}

	client := dbpkg.NewWithConn(conn)
	outboxSvc := outbox.NewService(outbox.NewRepository(conn), nil)
	auditRec := audit.NewRecorder(conn, nil)
	sweeper := NewSweeper(
		fulfillment.NewRepository(conn),
		ledger.NewRepository(conn),
		client,
		outboxSvc,
		auditRec,
		nil,
		nil,
		50,
		uuid.New(),
	)
	return conn, sweeper, product.ID, warehouse.ID
}
