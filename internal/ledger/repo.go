package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stockroomhq/stockroom-backend/pkg/db/models"
	"github.com/stockroomhq/stockroom-backend/pkg/enums"
	"github.com/stockroomhq/stockroom-backend/pkg/pagination"
)

// Repository owns stock level counters and the transaction log. All counter
// mutations are single guarded UPDATE statements so concurrent writers
// serialize on the row without an explicit lock.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	GetStockLevel(ctx context.Context, productID, warehouseID uuid.UUID) (*models.StockLevel, error)
	GetOrCreateStockLevel(ctx context.Context, productID, warehouseID uuid.UUID) (*models.StockLevel, error)
	ListStockLevels(ctx context.Context, warehouseID uuid.UUID, limit, offset int) ([]models.StockLevel, error)

	// ApplyOnHandDelta adds delta to on_hand. Negative deltas are refused
	// when they would drop on_hand below reserved; the caller reads the
	// zero-rows result as insufficient stock.
	ApplyOnHandDelta(ctx context.Context, productID, warehouseID uuid.UUID, delta int, restocked bool) (bool, error)

	// Reserve earmarks qty when on_hand - reserved >= qty.
	Reserve(ctx context.Context, productID, warehouseID uuid.UUID, qty int) (bool, error)

	// Release returns qty to the available pool, clamping reserved at zero.
	Release(ctx context.Context, productID, warehouseID uuid.UUID, qty int) error

	// ConsumeReservation debits on_hand and reserved together for an
	// outbound shipment, clamping both at zero.
	ConsumeReservation(ctx context.Context, productID, warehouseID uuid.UUID, qty int) error

	InsertTransaction(ctx context.Context, row *models.StockTransaction) error
	ShipmentTransactionExists(ctx context.Context, referenceType string, referenceID, productID uuid.UUID) (bool, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]models.StockTransaction, *pagination.Cursor, error)
}

// TransactionFilter narrows transaction log reads.
type TransactionFilter struct {
	ProductID   *uuid.UUID
	WarehouseID *uuid.UUID
	Type        *enums.TransactionType
	Since       *time.Time
	Limit       int
	Cursor      *pagination.Cursor
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a ledger repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) GetStockLevel(ctx context.Context, productID, warehouseID uuid.UUID) (*models.StockLevel, error) {
	var level models.StockLevel
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND warehouse_id = ?", productID, warehouseID).
		First(&level).Error
	if err != nil {
		return nil, err
	}
	return &level, nil
}

func (r *repository) GetOrCreateStockLevel(ctx context.Context, productID, warehouseID uuid.UUID) (*models.StockLevel, error) {
	level, err := r.GetStockLevel(ctx, productID, warehouseID)
	if err == nil {
		return level, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	created := models.StockLevel{ProductID: productID, WarehouseID: warehouseID}
	if err := r.db.WithContext(ctx).Create(&created).Error; err != nil {
		return nil, err
	}
	return &created, nil
}

func (r *repository) ListStockLevels(ctx context.Context, warehouseID uuid.UUID, limit, offset int) ([]models.StockLevel, error) {
	var levels []models.StockLevel
	query := r.db.WithContext(ctx).Where("warehouse_id = ?", warehouseID).
		Order("product_id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	err := query.Find(&levels).Error
	return levels, err
}

func (r *repository) ApplyOnHandDelta(ctx context.Context, productID, warehouseID uuid.UUID, delta int, restocked bool) (bool, error) {
	restock := ""
	if restocked {
		restock = ", last_restocked_at = CURRENT_TIMESTAMP"
	}
	res := r.db.WithContext(ctx).Exec(`
		UPDATE stock_levels
		SET on_hand = on_hand + ?,
			updated_at = CURRENT_TIMESTAMP`+restock+`
		WHERE product_id = ? AND warehouse_id = ? AND on_hand + ? >= reserved
	`, delta, productID, warehouseID, delta)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) Reserve(ctx context.Context, productID, warehouseID uuid.UUID, qty int) (bool, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE stock_levels
		SET reserved = reserved + ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE product_id = ? AND warehouse_id = ? AND on_hand - reserved >= ?
	`, qty, productID, warehouseID, qty)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) Release(ctx context.Context, productID, warehouseID uuid.UUID, qty int) error {
	return r.db.WithContext(ctx).Exec(`
		UPDATE stock_levels
		SET reserved = CASE WHEN reserved >= ? THEN reserved - ? ELSE 0 END,
			updated_at = CURRENT_TIMESTAMP
		WHERE product_id = ? AND warehouse_id = ?
	`, qty, qty, productID, warehouseID).Error
}

func (r *repository) ConsumeReservation(ctx context.Context, productID, warehouseID uuid.UUID, qty int) error {
	return r.db.WithContext(ctx).Exec(`
		UPDATE stock_levels
		SET on_hand = CASE WHEN on_hand >= ? THEN on_hand - ? ELSE 0 END,
			reserved = CASE WHEN reserved >= ? THEN reserved - ? ELSE 0 END,
			updated_at = CURRENT_TIMESTAMP
		WHERE product_id = ? AND warehouse_id = ?
	`, qty, qty, qty, qty, productID, warehouseID).Error
}

func (r *repository) InsertTransaction(ctx context.Context, row *models.StockTransaction) error {
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(row).Error
}

func (r *repository) ShipmentTransactionExists(ctx context.Context, referenceType string, referenceID, productID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.StockTransaction{}).
		Where("transaction_type = ? AND reference_type = ? AND reference_id = ? AND product_id = ?",
			enums.TransactionTypeShipment, referenceType, referenceID, productID).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) ListTransactions(ctx context.Context, filter TransactionFilter) ([]models.StockTransaction, *pagination.Cursor, error) {
	limit := pagination.LimitWithBuffer(filter.Limit)
	normalized := pagination.NormalizeLimit(filter.Limit)

	query := r.db.WithContext(ctx).Model(&models.StockTransaction{})
	if filter.ProductID != nil {
		query = query.Where("product_id = ?", *filter.ProductID)
	}
	if filter.WarehouseID != nil {
		query = query.Where("warehouse_id = ?", *filter.WarehouseID)
	}
	if filter.Type != nil {
		query = query.Where("transaction_type = ?", *filter.Type)
	}
	if filter.Since != nil {
		query = query.Where("created_at >= ?", *filter.Since)
	}
	if filter.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", filter.Cursor.CreatedAt, filter.Cursor.ID)
	}

	var rows []models.StockTransaction
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, nil, err
	}

	if len(rows) > normalized {
		next := rows[normalized]
		rows = rows[:normalized]
		return rows, &pagination.Cursor{CreatedAt: next.CreatedAt, ID: next.ID}, nil
	}
	return rows, nil, nil
}
