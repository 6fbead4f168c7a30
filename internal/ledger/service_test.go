package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/stockroomhq/stockroom-backend/internal/audit"
	"github.com/stockroomhq/stockroom-backend/internal/catalog"
	dbpkg "github.com/stockroomhq/stockroom-backend/pkg/db"
	"github.com/stockroomhq/stockroom-backend/pkg/db/models"
	"github.com/stockroomhq/stockroom-backend/pkg/enums"
	pkgerrors "github.com/stockroomhq/stockroom-backend/pkg/errors"
	"github.com/stockroomhq/stockroom-backend/pkg/outbox"
	"github.com/stockroomhq/stockroom-backend/pkg/pagination"
)

type testEnv struct {
	db          *gorm.DB
	svc         Service
	productID   uuid.UUID
	warehouseID uuid.UUID
	actorID     uuid.UUID
}

func TestAdjustCreatesLevelAndTransaction(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.svc.Adjust(ctx, AdjustInput{
		ProductID:   env.productID,
		WarehouseID: env.warehouseID,
		Quantity:    10,
		Type:        enums.TransactionTypeReceipt,
		ActorID:     env.actorID,
	})
	if err != nil {
		t.Fatalf("adjust failed: %v", err)
	}
	if result.OnHand != 10 || result.Reserved != 0 {
		t.Fatalf("unexpected counters %+v", result)
	}

	var level models.StockLevel
	if err := env.db.First(&level, "product_id = ?", env.productID).Error; err != nil {
		t.Fatalf("load level: %v", err)
	}
	if level.OnHand != 10 {
		t.Fatalf("expected on_hand 10, got %d", level.OnHand)
	}
	if level.LastRestockedAt == nil {
		t.Fatal("expected last_restocked_at set on receipt")
	}

	var txCount int64
	if err := env.db.Model(&models.StockTransaction{}).Count(&txCount).Error; err != nil {
		t.Fatalf("count transactions: %v", err)
	}
	if txCount != 1 {
		t.Fatalf("expected 1 transaction, got %d", txCount)
	}

	var outboxCount int64
	if err := env.db.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.EventInventoryChanged).
		Count(&outboxCount).Error; err != nil {
		t.Fatalf("count outbox events: %v", err)
	}
	if outboxCount != 1 {
		t.Fatalf("expected 1 outbox event, got %d", outboxCount)
	}
}

func TestReserveInsufficientStock(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.svc.Adjust(ctx, AdjustInput{
		ProductID:   env.productID,
		WarehouseID: env.warehouseID,
		Quantity:    5,
		Type:        enums.TransactionTypeReceipt,
		ActorID:     env.actorID,
	}); err != nil {
		t.Fatalf("seed stock: %v", err)
	}

	if err := env.svc.Reserve(ctx, ReservationInput{
		ProductID:   env.productID,
		WarehouseID: env.warehouseID,
		Quantity:    3,
		ActorID:     env.actorID,
	}); err != nil {
		t.Fatalf("first reserve failed: %v", err)
	}

	err := env.svc.Reserve(ctx, ReservationInput{
		ProductID:   env.productID,
		WarehouseID: env.warehouseID,
		Quantity:    3,
		ActorID:     env.actorID,
	})
	if err == nil {
		t.Fatal("expected insufficient stock")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeInsufficientStock {
		t.Fatalf("unexpected error: %v", err)
	}
	details, ok := typed.Details().(map[string]int)
	if !ok {
		t.Fatalf("expected detail map, got %T", typed.Details())
	}
	if details["available"] != 2 || details["requested"] != 3 {
		t.Fatalf("unexpected details %+v", details)
	}

	var level models.StockLevel
	if err := env.db.First(&level, "product_id = ?", env.productID).Error; err != nil {
		t.Fatalf("load level: %v", err)
	}
	if level.OnHand != 5 || level.Reserved != 3 {
		t.Fatalf("failed reserve must not change counters, got %+v", level)
	}
}

func TestReserveWithoutLevelReturnsNotFound(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	// No receipt has ever landed for this pair, so there is no row to
	// reserve against.
	err := env.svc.Reserve(ctx, ReservationInput{
		ProductID:   env.productID,
		WarehouseID: env.warehouseID,
		Quantity:    1,
		ActorID:     env.actorID,
	})
	if err == nil {
		t.Fatal("expected not found")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("unexpected error: %v", err)
	}

	var count int64
	if err := env.db.Model(&models.StockLevel{}).Count(&count).Error; err != nil {
		t.Fatalf("count levels: %v", err)
	}
	if count != 0 {
		t.Fatalf("reserve must not create a stock level, got %d rows", count)
	}
}

func TestAdjustCannotDropBelowReserved(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.svc.Adjust(ctx, AdjustInput{
		ProductID:   env.productID,
		WarehouseID: env.warehouseID,
		Quantity:    10,
		Type:        enums.TransactionTypeReceipt,
		ActorID:     env.actorID,
	}); err != nil {
		t.Fatalf("seed stock: %v", err)
	}
	if err := env.svc.Reserve(ctx, ReservationInput{
		ProductID:   env.productID,
		WarehouseID: env.warehouseID,
		Quantity:    6,
		ActorID:     env.actorID,
	}); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	_, err := env.svc.Adjust(ctx, AdjustInput{
		ProductID:   env.productID,
		WarehouseID: env.warehouseID,
		Quantity:    -5,
		Type:        enums.TransactionTypeAdjustment,
		ActorID:     env.actorID,
	})
	if err == nil {
		t.Fatal("expected insufficient stock")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeInsufficientStock {
		t.Fatalf("unexpected error: %v", err)
	}

	// -4 keeps on_hand at the reserved floor and must pass.
	if _, err := env.svc.Adjust(ctx, AdjustInput{
		ProductID:   env.productID,
		WarehouseID: env.warehouseID,
		Quantity:    -4,
		Type:        enums.TransactionTypeAdjustment,
		ActorID:     env.actorID,
	}); err != nil {
		t.Fatalf("boundary adjust failed: %v", err)
	}

	var level models.StockLevel
	if err := env.db.First(&level, "product_id = ?", env.productID).Error; err != nil {
		t.Fatalf("load level: %v", err)
	}
	if level.OnHand != 6 || level.Reserved != 6 {
		t.Fatalf("unexpected counters %+v", level)
	}
}

func TestReleaseClampsAtZero(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.svc.Adjust(ctx, AdjustInput{
		ProductID:   env.productID,
		WarehouseID: env.warehouseID,
		Quantity:    10,
		Type:        enums.TransactionTypeReceipt,
		ActorID:     env.actorID,
	}); err != nil {
		t.Fatalf("seed stock: %v", err)
	}
	if err := env.svc.Reserve(ctx, ReservationInput{
		ProductID:   env.productID,
		WarehouseID: env.warehouseID,
		Quantity:    4,
		ActorID:     env.actorID,
	}); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	released, err := env.svc.Release(ctx, ReservationInput{
		ProductID:   env.productID,
		WarehouseID: env.warehouseID,
		Quantity:    10,
		ActorID:     env.actorID,
	})
	if err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if released != 4 {
		t.Fatalf("expected 4 released, got %d", released)
	}

	var level models.StockLevel
	if err := env.db.First(&level, "product_id = ?", env.productID).Error; err != nil {
		t.Fatalf("load level: %v", err)
	}
	if level.Reserved != 0 || level.OnHand != 10 {
		t.Fatalf("unexpected counters %+v", level)
	}
}

func TestReleaseWithoutLevelIsNoop(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	released, err := env.svc.Release(context.Background(), ReservationInput{
		ProductID:   env.productID,
		WarehouseID: env.warehouseID,
		Quantity:    5,
		ActorID:     env.actorID,
	})
	if err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if released != 0 {
		t.Fatalf("expected 0 released, got %d", released)
	}
}

func TestAdjustValidation(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.svc.Adjust(ctx, AdjustInput{
		ProductID:   env.productID,
		WarehouseID: env.warehouseID,
		Quantity:    0,
		Type:        enums.TransactionTypeReceipt,
		ActorID:     env.actorID,
	}); err == nil {
		t.Fatal("expected validation error for zero quantity")
	}

	if _, err := env.svc.Adjust(ctx, AdjustInput{
		ProductID:   env.productID,
		WarehouseID: env.warehouseID,
		Quantity:    1,
		Type:        enums.TransactionTypeShipment,
		ActorID:     env.actorID,
	}); err == nil {
		t.Fatal("expected validation error for shipment type")
	}
}

func TestListTransactionsCursorWalksAllPages(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour).UTC()
	for i := 0; i < 5; i++ {
		row := models.StockTransaction{
			ID:          uuid.New(),
			ProductID:   env.productID,
			WarehouseID: env.warehouseID,
			Type:        enums.TransactionTypeReceipt,
			Quantity:    1,
			PerformedBy: env.actorID,
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		}
		if err := env.db.Create(&row).Error; err != nil {
			t.Fatalf("seed transaction: %v", err)
		}
	}

	filter := TransactionFilter{WarehouseID: &env.warehouseID, Limit: 2}
	seen := make(map[uuid.UUID]bool)
	var last *models.StockTransaction
	pages := 0
	for {
		rows, next, err := env.svc.ListTransactions(ctx, filter)
		if err != nil {
			t.Fatalf("list page %d: %v", pages, err)
		}
		pages++
		for i := range rows {
			if seen[rows[i].ID] {
				t.Fatalf("transaction %s returned twice", rows[i].ID)
			}
			seen[rows[i].ID] = true
			if last != nil && rows[i].CreatedAt.After(last.CreatedAt) {
				t.Fatalf("page %d out of order", pages)
			}
			last = &rows[i]
		}
		if next == "" {
			break
		}
		cursor, err := pagination.ParseCursor(next)
		if err != nil {
			t.Fatalf("parse cursor: %v", err)
		}
		filter.Cursor = cursor
	}

	if len(seen) != 5 {
		t.Fatalf("expected 5 transactions across pages, got %d", len(seen))
	}
	if pages != 3 {
		t.Fatalf("expected 3 pages of size 2, got %d", pages)
	}
}

func TestConcurrentAdjustsAreAllApplied(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	const workers = 50
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.Adjust(ctx, AdjustInput{
				ProductID:   env.productID,
				WarehouseID: env.warehouseID,
				Quantity:    1,
				Type:        enums.TransactionTypeReceipt,
				ActorID:     env.actorID,
			})
			if err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent adjust failed: %v", err)
	}

	var level models.StockLevel
	if err := env.db.First(&level, "product_id = ?", env.productID).Error; err != nil {
		t.Fatalf("load level: %v", err)
	}
	if level.OnHand != workers {
		t.Fatalf("expected on_hand %d, got %d", workers, level.OnHand)
	}

	var txCount int64
	if err := env.db.Model(&models.StockTransaction{}).Count(&txCount).Error; err != nil {
		t.Fatalf("count transactions: %v", err)
	}
	if txCount != workers {
		t.Fatalf("expected %d transactions, got %d", workers, txCount)
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := "file:ledger_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db handle: %v", err)
	}
	// A single connection keeps sqlite from returning busy errors under
	// concurrent writers.
	sqlDB.SetMaxOpenConns(1)

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
	catalogSvc := catalog.NewService(catalog.NewRepository(conn))
	svc := NewService(NewRepository(conn), client, catalogSvc, outboxSvc, auditRec)

	return &testEnv{
		db:          conn,
		svc:         svc,
		productID:   product.ID,
		warehouseID: warehouse.ID,
		actorID:     uuid.New(),
	}
}
