package controllers

import (
	"net/http"

	"github.com/stockroomhq/stockroom-backend/api/responses"
	"github.com/stockroomhq/stockroom-backend/internal/reconcile"
	"github.com/stockroomhq/stockroom-backend/pkg/logger"
)

// ReconciliationRun triggers one drift sweep on demand. The cron worker runs
// the same sweep on a schedule; this endpoint exists for operators.
func ReconciliationRun(sweeper *reconcile.Sweeper, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := sweeper.Sweep(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]int{
			"scanned":  result.Scanned,
			"repaired": result.Repaired,
		})
	}
}
