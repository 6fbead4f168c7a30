package catalog

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/stockroomhq/stockroom-backend/pkg/db/models"
	pkgerrors "github.com/stockroomhq/stockroom-backend/pkg/errors"
)

func TestEnsureActiveProduct(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	svc := NewService(NewRepository(db))

	active := models.Product{ID: uuid.New(), SKU: "SKU-1", Name: "Widget", IsActive: true}
	inactive := models.Product{ID: uuid.New(), SKU: "SKU-2", Name: "Retired", IsActive: false}
	for _, p := range []models.Product{active, inactive} {
		if err := db.Create(&p).Error; err != nil {
			t.Fatalf("seed product: %v", err)
		}
	}

	got, err := svc.EnsureActiveProduct(ctx, nil, active.ID)
	if err != nil {
		t.Fatalf("expected active product, got %v", err)
	}
	if got.SKU != "SKU-1" {
		t.Fatalf("unexpected product %+v", got)
	}

	if _, err := svc.EnsureActiveProduct(ctx, nil, inactive.ID); err == nil {
		t.Fatal("expected error for inactive product")
	} else if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := svc.EnsureActiveProduct(ctx, nil, uuid.New()); err == nil {
		t.Fatal("expected not found error")
	} else if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEnsureActiveWarehouse(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	svc := NewService(NewRepository(db))

	warehouse := models.Warehouse{ID: uuid.New(), Code: "WH-1", Name: "Main", IsActive: true}
	if err := db.Create(&warehouse).Error; err != nil {
		t.Fatalf("seed warehouse: %v", err)
	}

	if _, err := svc.EnsureActiveWarehouse(ctx, nil, warehouse.ID); err != nil {
		t.Fatalf("expected active warehouse, got %v", err)
	}
	if _, err := svc.EnsureActiveWarehouse(ctx, nil, uuid.New()); err == nil {
		t.Fatal("expected not found error")
	}
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:catalog_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.Product{}, &models.Warehouse{}); err != nil {
		t.Fatalf("migrate catalog: %v", err)
	}
	return db
}
