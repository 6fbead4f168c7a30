package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/stockroomhq/stockroom-backend/api/responses"
	"github.com/stockroomhq/stockroom-backend/internal/catalog"
	"github.com/stockroomhq/stockroom-backend/pkg/logger"
)

// WarehouseList returns the active warehouses.
func WarehouseList(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		warehouses, err := svc.ListWarehouses(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]warehouseResponse, 0, len(warehouses))
		for _, wh := range warehouses {
			out = append(out, warehouseResponse{
				ID:       wh.ID,
				Code:     wh.Code,
				Name:     wh.Name,
				IsActive: wh.IsActive,
			})
		}
		responses.WriteSuccess(w, out)
	}
}

type warehouseResponse struct {
	ID       uuid.UUID `json:"id"`
	Code     string    `json:"code"`
	Name     string    `json:"name"`
	IsActive bool      `json:"is_active"`
}
