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

// ShipmentCreate opens a shipment and reserves stock for every line.
func ShipmentCreate(svc fulfillment.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createShipmentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input, err := payload.toInput(actorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		shipment, err := svc.CreateShipment(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, toShipmentResponse(shipment))
	}
}

// ShipmentTransition advances the shipment state machine one step.
func ShipmentTransition(svc fulfillment.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		shipmentID, err := parsePathUUID(chi.URLParam(r, "shipmentId"), "shipmentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload transitionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status, err := enums.ParseShipmentStatus(strings.TrimSpace(payload.Status))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid shipment status"))
			return
		}

		shipment, err := svc.TransitionShipment(r.Context(), fulfillment.TransitionShipmentInput{
			ShipmentID: shipmentID,
			To:         status,
			Notes:      payload.Notes,
			ActorID:    actorID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, toShipmentResponse(shipment))
	}
}

// ShipmentFetch returns one shipment with its lines.
func ShipmentFetch(svc fulfillment.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shipmentID, err := parsePathUUID(chi.URLParam(r, "shipmentId"), "shipmentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		shipment, err := svc.GetShipment(r.Context(), shipmentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, toShipmentResponse(shipment))
	}
}

// ShipmentEventList returns the append-only tracking history.
func ShipmentEventList(svc fulfillment.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shipmentID, err := parsePathUUID(chi.URLParam(r, "shipmentId"), "shipmentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		events, err := svc.ListShipmentEvents(r.Context(), shipmentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]shipmentEventResponse, 0, len(events))
		for _, event := range events {
			out = append(out, shipmentEventResponse{
				ID:         event.ID,
				ShipmentID: event.ShipmentID,
				FromStatus: string(event.FromStatus),
				ToStatus:   string(event.ToStatus),
				Notes:      event.Notes,
				ActorID:    event.ActorID,
				CreatedAt:  event.CreatedAt,
			})
		}
		responses.WriteSuccess(w, out)
	}
}

type createShipmentRequest struct {
	WarehouseID  string            `json:"warehouse_id" validate:"required,uuid"`
	SalesOrderID *string           `json:"sales_order_id,omitempty" validate:"omitempty,uuid"`
	Items        []itemLineRequest `json:"items" validate:"required,min=1,dive"`
}

type itemLineRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Qty       int    `json:"qty" validate:"required,gt=0"`
}

type transitionRequest struct {
	Status string  `json:"status" validate:"required"`
	Notes  *string `json:"notes,omitempty"`
}

func (req createShipmentRequest) toInput(actorID uuid.UUID) (fulfillment.CreateShipmentInput, error) {
	input := fulfillment.CreateShipmentInput{
		WarehouseID: uuid.MustParse(req.WarehouseID),
		Items:       toItemInputs(req.Items),
		ActorID:     actorID,
	}
	if req.SalesOrderID != nil {
		orderID := uuid.MustParse(*req.SalesOrderID)
		input.SalesOrderID = &orderID
	}
	return input, nil
}

func toItemInputs(lines []itemLineRequest) []fulfillment.ItemInput {
	items := make([]fulfillment.ItemInput, 0, len(lines))
	for _, line := range lines {
		items = append(items, fulfillment.ItemInput{
			ProductID: uuid.MustParse(line.ProductID),
			Qty:       line.Qty,
		})
	}
	return items
}

type shipmentResponse struct {
	ID           uuid.UUID          `json:"id"`
	WarehouseID  uuid.UUID          `json:"warehouse_id"`
	SalesOrderID *uuid.UUID         `json:"sales_order_id,omitempty"`
	Status       string             `json:"status"`
	CreatedBy    uuid.UUID          `json:"created_by"`
	Items        []itemLineResponse `json:"items"`
	DeliveredAt  *time.Time         `json:"delivered_at,omitempty"`
	ClosedAt     *time.Time         `json:"closed_at,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

type itemLineResponse struct {
	ProductID uuid.UUID `json:"product_id"`
	Qty       int       `json:"qty"`
}

type shipmentEventResponse struct {
	ID         uuid.UUID  `json:"id"`
	ShipmentID uuid.UUID  `json:"shipment_id"`
	FromStatus string     `json:"from_status"`
	ToStatus   string     `json:"to_status"`
	Notes      *string    `json:"notes,omitempty"`
	ActorID    uuid.UUID  `json:"actor_id"`
	CreatedAt  time.Time  `json:"created_at"`
}

func toShipmentResponse(shipment *models.Shipment) shipmentResponse {
	items := make([]itemLineResponse, 0, len(shipment.Items))
	for _, item := range shipment.Items {
		items = append(items, itemLineResponse{ProductID: item.ProductID, Qty: item.Qty})
	}
	return shipmentResponse{
		ID:           shipment.ID,
		WarehouseID:  shipment.WarehouseID,
		SalesOrderID: shipment.SalesOrderID,
		Status:       string(shipment.Status),
		CreatedBy:    shipment.CreatedBy,
		Items:        items,
		DeliveredAt:  shipment.DeliveredAt,
		ClosedAt:     shipment.ClosedAt,
		CreatedAt:    shipment.CreatedAt,
		UpdatedAt:    shipment.UpdatedAt,
	}
}
