package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stockroomhq/stockroom-backend/pkg/db/models"
	pkgerrors "github.com/stockroomhq/stockroom-backend/pkg/errors"
)

// Service answers existence/active checks for products and warehouses.
type Service interface {
	EnsureActiveProduct(ctx context.Context, tx *gorm.DB, productID uuid.UUID) (*models.Product, error)
	EnsureActiveWarehouse(ctx context.Context, tx *gorm.DB, warehouseID uuid.UUID) (*models.Warehouse, error)
	ListWarehouses(ctx context.Context) ([]models.Warehouse, error)
}

type service struct {
	repo Repository
}

// NewService builds the catalog service.
func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) EnsureActiveProduct(ctx context.Context, tx *gorm.DB, productID uuid.UUID) (*models.Product, error) {
	repo := s.repo
	if tx != nil {
		repo = repo.WithTx(tx)
	}
	product, err := repo.FindProductByID(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	if !product.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "product is inactive")
	}
	return product, nil
}

func (s *service) EnsureActiveWarehouse(ctx context.Context, tx *gorm.DB, warehouseID uuid.UUID) (*models.Warehouse, error) {
	repo := s.repo
	if tx != nil {
		repo = repo.WithTx(tx)
	}
	warehouse, err := repo.FindWarehouseByID(ctx, warehouseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "warehouse not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load warehouse")
	}
	if !warehouse.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "warehouse is inactive")
	}
	return warehouse, nil
}

func (s *service) ListWarehouses(ctx context.Context) ([]models.Warehouse, error) {
	warehouses, err := s.repo.ListWarehouses(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list warehouses")
	}
	return warehouses, nil
}
