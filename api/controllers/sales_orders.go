package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/stockroomhq/stockroom-backend/api/responses"
	"github.com/stockroomhq/stockroom-backend/api/validators"
	"github.com/stockroomhq/stockroom-backend/internal/fulfillment"
	"github.com/stockroomhq/stockroom-backend/pkg/db/models"
	"github.com/stockroomhq/stockroom-backend/pkg/enums"
	pkgerrors "github.com/stockroomhq/stockroom-backend/pkg/errors"
	"github.com/stockroomhq/stockroom-backend/pkg/logger"
)

// SalesOrderCreate opens a sales order and reserves stock for every line.
func SalesOrderCreate(svc fulfillment.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createSalesOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.CreateSalesOrder(r.Context(), fulfillment.CreateSalesOrderInput{
			WarehouseID: uuid.MustParse(payload.WarehouseID),
			Items:       toItemInputs(payload.Items),
			ActorID:     actorID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, toSalesOrderResponse(order))
	}
}

// SalesOrderTransition advances the order lifecycle one step.
func SalesOrderTransition(svc fulfillment.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orderID, err := parsePathUUID(chi.URLParam(r, "salesOrderId"), "salesOrderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload transitionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status, err := enums.ParseSalesOrderStatus(strings.TrimSpace(payload.Status))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid sales order status"))
			return
		}

		order, err := svc.TransitionSalesOrder(r.Context(), fulfillment.TransitionSalesOrderInput{
			SalesOrderID: orderID,
			To:           status,
			ActorID:      actorID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, toSalesOrderResponse(order))
	}
}

// SalesOrderFetch returns one order with its lines.
func SalesOrderFetch(svc fulfillment.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := parsePathUUID(chi.URLParam(r, "salesOrderId"), "salesOrderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.GetSalesOrder(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, toSalesOrderResponse(order))
	}
}

type createSalesOrderRequest struct {
	WarehouseID string            `json:"warehouse_id" validate:"required,uuid"`
	Items       []itemLineRequest `json:"items" validate:"required,min=1,dive"`
}

type salesOrderResponse struct {
	ID          uuid.UUID          `json:"id"`
	WarehouseID uuid.UUID          `json:"warehouse_id"`
	Status      string             `json:"status"`
	CreatedBy   uuid.UUID          `json:"created_by"`
	Items       []itemLineResponse `json:"items"`
	ShippedAt   *time.Time         `json:"shipped_at,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

func toSalesOrderResponse(order *models.SalesOrder) salesOrderResponse {
	items := make([]itemLineResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, itemLineResponse{ProductID: item.ProductID, Qty: item.Qty})
	}
	return salesOrderResponse{
		ID:          order.ID,
		WarehouseID: order.WarehouseID,
		Status:      string(order.Status),
		CreatedBy:   order.CreatedBy,
		Items:       items,
		ShippedAt:   order.ShippedAt,
		CreatedAt:   order.CreatedAt,
		UpdatedAt:   order.UpdatedAt,
	}
}
