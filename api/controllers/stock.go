package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stockroomhq/stockroom-backend/api/responses"
	"github.com/stockroomhq/stockroom-backend/api/validators"
	"github.com/stockroomhq/stockroom-backend/internal/ledger"
	"github.com/stockroomhq/stockroom-backend/pkg/db/models"
	"github.com/stockroomhq/stockroom-backend/pkg/enums"
	pkgerrors "github.com/stockroomhq/stockroom-backend/pkg/errors"
	"github.com/stockroomhq/stockroom-backend/pkg/logger"
	"github.com/stockroomhq/stockroom-backend/pkg/pagination"
)

// StockAdjust handles manual stock movements: receipts, corrections, returns.
func StockAdjust(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload adjustRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input, err := payload.toInput(actorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Adjust(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, adjustResponse{
			TransactionID: result.TransactionID,
			OnHand:        result.OnHand,
			Reserved:      result.Reserved,
		})
	}
}

// StockLevelFetch returns the counters for one (product, warehouse) pair.
func StockLevelFetch(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := parsePathUUID(chi.URLParam(r, "productId"), "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		warehouseID, err := parsePathUUID(chi.URLParam(r, "warehouseId"), "warehouseId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		level, err := svc.GetLevel(r.Context(), productID, warehouseID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, toStockLevelResponse(*level))
	}
}

// StockLevelList lists the counters for one warehouse.
func StockLevelList(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		warehouseID, err := validators.ParseQueryUUID(r, "warehouse_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if warehouseID == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "warehouse_id is required"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		offset, err := validators.ParseQueryInt(r, "offset", 0, 0, 1<<30)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		levels, err := svc.ListLevels(r.Context(), *warehouseID, pagination.NormalizeLimit(limit), offset)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]stockLevelResponse, 0, len(levels))
		for _, level := range levels {
			out = append(out, toStockLevelResponse(level))
		}
		responses.WriteSuccess(w, out)
	}
}

// StockReserve earmarks quantity for a single product line.
func StockReserve(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload reservationRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Reserve(r.Context(), payload.toInput(actorID)); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]string{"status": "reserved"})
	}
}

// StockRelease returns previously reserved quantity to the available pool.
func StockRelease(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload reservationRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		released, err := svc.Release(r.Context(), payload.toInput(actorID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]int{"released": released})
	}
}

// StockTransactionList pages through the ledger history.
func StockTransactionList(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := ledger.TransactionFilter{}

		productID, err := validators.ParseQueryUUID(r, "product_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter.ProductID = productID

		warehouseID, err := validators.ParseQueryUUID(r, "warehouse_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter.WarehouseID = warehouseID

		if raw := strings.TrimSpace(r.URL.Query().Get("type")); raw != "" {
			txType, err := enums.ParseTransactionType(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid transaction type"))
				return
			}
			filter.Type = &txType
		}

		since, err := validators.ParseQueryTime(r, "since")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter.Since = since

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter.Limit = pagination.NormalizeLimit(limit)

		cursor, err := pagination.ParseCursor(r.URL.Query().Get("cursor"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor"))
			return
		}
		filter.Cursor = cursor

		rows, next, err := svc.ListTransactions(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := transactionListResponse{
			Items:  make([]transactionResponse, 0, len(rows)),
			Cursor: next,
		}
		for _, row := range rows {
			out.Items = append(out.Items, toTransactionResponse(row))
		}
		responses.WriteSuccess(w, out)
	}
}

type adjustRequest struct {
	ProductID     string  `json:"product_id" validate:"required,uuid"`
	WarehouseID   string  `json:"warehouse_id" validate:"required,uuid"`
	Quantity      int     `json:"quantity" validate:"required"`
	Type          string  `json:"type" validate:"required"`
	UnitCost      *string `json:"unit_cost,omitempty"`
	ReferenceType *string `json:"reference_type,omitempty"`
	ReferenceID   *string `json:"reference_id,omitempty" validate:"omitempty,uuid"`
	Notes         *string `json:"notes,omitempty"`
}

func (req adjustRequest) toInput(actorID uuid.UUID) (ledger.AdjustInput, error) {
	txType, err := enums.ParseTransactionType(strings.TrimSpace(req.Type))
	if err != nil {
		return ledger.AdjustInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid transaction type")
	}

	input := ledger.AdjustInput{
		ProductID:     uuid.MustParse(req.ProductID),
		WarehouseID:   uuid.MustParse(req.WarehouseID),
		Quantity:      req.Quantity,
		Type:          txType,
		ReferenceType: req.ReferenceType,
		Notes:         req.Notes,
		ActorID:       actorID,
	}

	if req.UnitCost != nil {
		cost, err := decimal.NewFromString(*req.UnitCost)
		if err != nil {
			return ledger.AdjustInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid unit cost")
		}
		input.UnitCost = &cost
	}

	if req.ReferenceID != nil {
		refID := uuid.MustParse(*req.ReferenceID)
		input.ReferenceID = &refID
	}

	return input, nil
}

type reservationRequest struct {
	ProductID   string `json:"product_id" validate:"required,uuid"`
	WarehouseID string `json:"warehouse_id" validate:"required,uuid"`
	Quantity    int    `json:"quantity" validate:"required,gt=0"`
	Reason      string `json:"reason,omitempty"`
}

func (req reservationRequest) toInput(actorID uuid.UUID) ledger.ReservationInput {
	return ledger.ReservationInput{
		ProductID:   uuid.MustParse(req.ProductID),
		WarehouseID: uuid.MustParse(req.WarehouseID),
		Quantity:    req.Quantity,
		ActorID:     actorID,
		Reason:      req.Reason,
	}
}

type adjustResponse struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	OnHand        int       `json:"on_hand"`
	Reserved      int       `json:"reserved"`
}

type stockLevelResponse struct {
	ProductID       uuid.UUID  `json:"product_id"`
	WarehouseID     uuid.UUID  `json:"warehouse_id"`
	OnHand          int        `json:"on_hand"`
	Reserved        int        `json:"reserved"`
	Available       int        `json:"available"`
	LocationCode    *string    `json:"location_code,omitempty"`
	LastRestockedAt *time.Time `json:"last_restocked_at,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func toStockLevelResponse(level models.StockLevel) stockLevelResponse {
	return stockLevelResponse{
		ProductID:       level.ProductID,
		WarehouseID:     level.WarehouseID,
		OnHand:          level.OnHand,
		Reserved:        level.Reserved,
		Available:       level.Available(),
		LocationCode:    level.LocationCode,
		LastRestockedAt: level.LastRestockedAt,
		UpdatedAt:       level.UpdatedAt,
	}
}

type transactionListResponse struct {
	Items  []transactionResponse `json:"items"`
	Cursor string                `json:"cursor"`
}

type transactionResponse struct {
	ID            uuid.UUID  `json:"id"`
	ProductID     uuid.UUID  `json:"product_id"`
	WarehouseID   uuid.UUID  `json:"warehouse_id"`
	Type          string     `json:"type"`
	Quantity      int        `json:"quantity"`
	UnitCost      *string    `json:"unit_cost,omitempty"`
	ReferenceType *string    `json:"reference_type,omitempty"`
	ReferenceID   *uuid.UUID `json:"reference_id,omitempty"`
	Notes         *string    `json:"notes,omitempty"`
	PerformedBy   uuid.UUID  `json:"performed_by"`
	CreatedAt     time.Time  `json:"created_at"`
}

func toTransactionResponse(row models.StockTransaction) transactionResponse {
	out := transactionResponse{
		ID:            row.ID,
		ProductID:     row.ProductID,
		WarehouseID:   row.WarehouseID,
		Type:          string(row.Type),
		Quantity:      row.Quantity,
		ReferenceType: row.ReferenceType,
		ReferenceID:   row.ReferenceID,
		Notes:         row.Notes,
		PerformedBy:   row.PerformedBy,
		CreatedAt:     row.CreatedAt,
	}
	if row.UnitCost != nil {
		cost := row.UnitCost.String()
		out.UnitCost = &cost
	}
	return out
}
