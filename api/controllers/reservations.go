package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/stockroomhq/stockroom-backend/api/responses"
	"github.com/stockroomhq/stockroom-backend/api/validators"
	"github.com/stockroomhq/stockroom-backend/internal/reservation"
	"github.com/stockroomhq/stockroom-backend/pkg/logger"
)

// OrderReserve places an all-or-nothing reservation across every line of an
// order. A single failing line rolls back the whole request.
func OrderReserve(svc reservation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload orderReservationRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.ReserveForOrder(r.Context(), payload.toInput(actorID)); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]string{"status": "reserved"})
	}
}

// OrderRelease returns every line of a previous order reservation.
func OrderRelease(svc reservation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload orderReservationRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.ReleaseForOrder(r.Context(), payload.toInput(actorID)); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "released"})
	}
}

type orderReservationRequest struct {
	OrderID     string            `json:"order_id" validate:"required,uuid"`
	WarehouseID string            `json:"warehouse_id" validate:"required,uuid"`
	Reason      string            `json:"reason,omitempty"`
	Lines       []itemLineRequest `json:"lines" validate:"required,min=1,dive"`
}

func (req orderReservationRequest) toInput(actorID uuid.UUID) reservation.OrderInput {
	lines := make([]reservation.Line, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, reservation.Line{
			ProductID: uuid.MustParse(line.ProductID),
			Qty:       line.Qty,
		})
	}
	return reservation.OrderInput{
		OrderID:     uuid.MustParse(req.OrderID),
		WarehouseID: uuid.MustParse(req.WarehouseID),
		Lines:       lines,
		ActorID:     actorID,
		Reason:      req.Reason,
	}
}
