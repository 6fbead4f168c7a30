package reservation

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/stockroomhq/stockroom-backend/internal/audit"
	"github.com/stockroomhq/stockroom-backend/internal/catalog"
	"github.com/stockroomhq/stockroom-backend/internal/ledger"
	dbpkg "github.com/stockroomhq/stockroom-backend/pkg/db"
	"github.com/stockroomhq/stockroom-backend/pkg/db/models"
	pkgerrors "github.com/stockroomhq/stockroom-backend/pkg/errors"
	"github.com/stockroomhq/stockroom-backend/pkg/outbox"
)

func TestReserveForOrderAllOrNothing(t *testing.T) {
	t.Parallel()

	db, svc, warehouseID := newTestService(t)
	ctx := context.Background()

	productA := seedProduct(t, db)
	productB := seedProduct(t, db)
	seedLevel(t, db, productA, warehouseID, 10)
	seedLevel(t, db, productB, warehouseID, 1)

	err := svc.ReserveForOrder(ctx, OrderInput{
		OrderID:     uuid.New(),
		WarehouseID: warehouseID,
		Lines: []Line{
			{ProductID: productA, Qty: 3},
			{ProductID: productB, Qty: 2},
		},
		ActorID: uuid.New(),
	})
	if err == nil {
		t.Fatal("expected insufficient stock")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeInsufficientStock {
		t.Fatalf("unexpected error: %v", err)
	}
	failed, ok := typed.Details().([]FailedLine)
	if !ok || len(failed) != 1 {
		t.Fatalf("expected one failed line, got %#v", typed.Details())
	}
	if failed[0].ProductID != productB || failed[0].Requested != 2 || failed[0].Available != 1 {
		t.Fatalf("unexpected failed line %+v", failed[0])
	}

	// The passing line must have been rolled back with the failing one.
	var levelA models.StockLevel
	if err := db.First(&levelA, "product_id = ?", productA).Error; err != nil {
		t.Fatalf("load level: %v", err)
	}
	if levelA.Reserved != 0 {
		t.Fatalf("expected rollback, reserved=%d", levelA.Reserved)
	}
}

func TestReserveForOrderUnknownLevelReturnsNotFound(t *testing.T) {
	t.Parallel()

	db, svc, warehouseID := newTestService(t)
	ctx := context.Background()

	productA := seedProduct(t, db)
	productB := seedProduct(t, db)
	seedLevel(t, db, productA, warehouseID, 10)
	// productB has never been received, so no stock level row exists.

	err := svc.ReserveForOrder(ctx, OrderInput{
		OrderID:     uuid.New(),
		WarehouseID: warehouseID,
		Lines: []Line{
			{ProductID: productA, Qty: 3},
			{ProductID: productB, Qty: 2},
		},
		ActorID: uuid.New(),
	})
	if err == nil {
		t.Fatal("expected not found")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("unexpected error: %v", err)
	}

	var levelA models.StockLevel
	if err := db.First(&levelA, "product_id = ?", productA).Error; err != nil {
		t.Fatalf("load level: %v", err)
	}
	if levelA.Reserved != 0 {
		t.Fatalf("expected rollback, reserved=%d", levelA.Reserved)
	}

	var count int64
	if err := db.Model(&models.StockLevel{}).Where("product_id = ?", productB).Count(&count).Error; err != nil {
		t.Fatalf("count levels: %v", err)
	}
	if count != 0 {
		t.Fatalf("reserve must not create a stock level, got %d rows", count)
	}
}

func TestReserveForOrderSuccess(t *testing.T) {
	t.Parallel()

	db, svc, warehouseID := newTestService(t)
	ctx := context.Background()

	productA := seedProduct(t, db)
	productB := seedProduct(t, db)
	seedLevel(t, db, productA, warehouseID, 10)
	seedLevel(t, db, productB, warehouseID, 5)

	orderID := uuid.New()
	if err := svc.ReserveForOrder(ctx, OrderInput{
		OrderID:     orderID,
		WarehouseID: warehouseID,
		Lines: []Line{
			{ProductID: productA, Qty: 4},
			{ProductID: productB, Qty: 5},
		},
		ActorID: uuid.New(),
	}); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	var levelA, levelB models.StockLevel
	if err := db.First(&levelA, "product_id = ?", productA).Error; err != nil {
		t.Fatalf("load level a: %v", err)
	}
	if err := db.First(&levelB, "product_id = ?", productB).Error; err != nil {
		t.Fatalf("load level b: %v", err)
	}
	if levelA.Reserved != 4 || levelB.Reserved != 5 {
		t.Fatalf("unexpected reservations a=%d b=%d", levelA.Reserved, levelB.Reserved)
	}
}

func TestReleaseForOrderClamps(t *testing.T) {
	t.Parallel()

	db, svc, warehouseID := newTestService(t)
	ctx := context.Background()

	product := seedProduct(t, db)
	seedLevel(t, db, product, warehouseID, 10)

	orderID := uuid.New()
	if err := svc.ReserveForOrder(ctx, OrderInput{
		OrderID:     orderID,
		WarehouseID: warehouseID,
		Lines:       []Line{{ProductID: product, Qty: 3}},
		ActorID:     uuid.New(),
	}); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	// Releasing more than reserved clamps at zero instead of going negative.
	if err := svc.ReleaseForOrder(ctx, OrderInput{
		OrderID:     orderID,
		WarehouseID: warehouseID,
		Lines:       []Line{{ProductID: product, Qty: 8}},
		ActorID:     uuid.New(),
		Reason:      "order cancelled",
	}); err != nil {
		t.Fatalf("release failed: %v", err)
	}

	var level models.StockLevel
	if err := db.First(&level, "product_id = ?", product).Error; err != nil {
		t.Fatalf("load level: %v", err)
	}
	if level.Reserved != 0 || level.OnHand != 10 {
		t.Fatalf("unexpected counters %+v", level)
	}
}

func TestValidateLines(t *testing.T) {
	t.Parallel()

	_, svc, warehouseID := newTestService(t)
	ctx := context.Background()
	product := uuid.New()

	cases := []struct {
		name  string
		lines []Line
	}{
		{"empty", nil},
		{"zero qty", []Line{{ProductID: product, Qty: 0}}},
		{"duplicate", []Line{{ProductID: product, Qty: 1}, {ProductID: product, Qty: 2}}},
	}
	for _, tc := range cases {
		err := svc.ReserveForOrder(ctx, OrderInput{
			OrderID:     uuid.New(),
			WarehouseID: warehouseID,
			Lines:       tc.lines,
			ActorID:     uuid.New(),
		})
		if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
			t.Fatalf("%s: expected validation error, got %v", tc.name, err)
		}
	}
}

func newTestService(t *testing.T) (*gorm.DB, Service, uuid.UUID) {
	t.Helper()

	dsn := "file:reservation_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.AutoMigrate(
		&models.Product{},
		&models.Warehouse{},
		&models.StockLevel{},
		&models.StockTransaction{},
		&models.OutboxEvent{},
		&models.AuditRecord{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	warehouse := models.Warehouse{ID: uuid.New(), Code: "WH-" + uuid.NewString()[:8], Name: "Main", IsActive: true}
	if err := conn.Create(&warehouse).Error; err != nil {
		t.Fatalf("seed warehouse: %v", err)
	}

	client := dbpkg.NewWithConn(conn)
	outboxSvc := outbox.NewService(outbox.NewRepository(conn), nil)
	auditRec := audit.NewRecorder(conn, nil)
	catalogSvc := catalog.NewService(catalog.NewRepository(conn))
	svc := NewService(ledger.NewRepository(conn), client, catalogSvc, outboxSvc, auditRec)

	return conn, svc, warehouse.ID
}

func seedProduct(t *testing.T, db *gorm.DB) uuid.UUID {
	t.Helper()
	product := models.Product{ID: uuid.New(), SKU: "SKU-" + uuid.NewString()[:8], Name: "Widget", IsActive: true}
	if err := db.Create(&product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return product.ID
}

func seedLevel(t *testing.T, db *gorm.DB, productID, warehouseID uuid.UUID, onHand int) {
	t.Helper()
	level := models.StockLevel{ProductID: productID, WarehouseID: warehouseID, OnHand: onHand}
	if err := db.Create(&level).Error; err != nil {
		t.Fatalf("seed stock level: %v", err)
	}
}
