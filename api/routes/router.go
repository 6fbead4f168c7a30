package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stockroomhq/stockroom-backend/api/controllers"
	"github.com/stockroomhq/stockroom-backend/api/middleware"
	"github.com/stockroomhq/stockroom-backend/internal/catalog"
	"github.com/stockroomhq/stockroom-backend/internal/fulfillment"
	"github.com/stockroomhq/stockroom-backend/internal/ledger"
	"github.com/stockroomhq/stockroom-backend/internal/reconcile"
	"github.com/stockroomhq/stockroom-backend/internal/reservation"
	"github.com/stockroomhq/stockroom-backend/pkg/config"
	"github.com/stockroomhq/stockroom-backend/pkg/db"
	"github.com/stockroomhq/stockroom-backend/pkg/logger"
	"github.com/stockroomhq/stockroom-backend/pkg/redis"
)

const (
	writeRateLimit  = 120
	writeRateWindow = time.Minute
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	catalogService catalog.Service,
	ledgerService ledger.Service,
	reservationService reservation.Service,
	fulfillmentService fulfillment.Service,
	sweeper *reconcile.Sweeper,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	var redisP controllers.Pinger
	if redisClient != nil {
		redisP = redisClient
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/warehouses", controllers.WarehouseList(catalogService, logg))

		r.Route("/stock", func(r chi.Router) {
			r.Get("/levels", controllers.StockLevelList(ledgerService, logg))
			r.Get("/levels/{productId}/{warehouseId}", controllers.StockLevelFetch(ledgerService, logg))
			r.Get("/transactions", controllers.StockTransactionList(ledgerService, logg))

			r.Group(func(r chi.Router) {
				r.Use(middleware.RateLimit("stock-write", writeRateLimit, writeRateWindow, redisClient, logg))
				r.Post("/adjustments", controllers.StockAdjust(ledgerService, logg))
				r.Post("/reservations", controllers.StockReserve(ledgerService, logg))
				r.Post("/reservations/release", controllers.StockRelease(ledgerService, logg))
			})
		})

		r.Route("/reservations", func(r chi.Router) {
			r.Use(middleware.RateLimit("order-reserve", writeRateLimit, writeRateWindow, redisClient, logg))
			r.Post("/orders", controllers.OrderReserve(reservationService, logg))
			r.Post("/orders/release", controllers.OrderRelease(reservationService, logg))
		})

		r.Route("/shipments", func(r chi.Router) {
			r.Post("/", controllers.ShipmentCreate(fulfillmentService, logg))
			r.Get("/{shipmentId}", controllers.ShipmentFetch(fulfillmentService, logg))
			r.Post("/{shipmentId}/transitions", controllers.ShipmentTransition(fulfillmentService, logg))
			r.Get("/{shipmentId}/events", controllers.ShipmentEventList(fulfillmentService, logg))
		})

		r.Route("/sales-orders", func(r chi.Router) {
			r.Post("/", controllers.SalesOrderCreate(fulfillmentService, logg))
			r.Get("/{salesOrderId}", controllers.SalesOrderFetch(fulfillmentService, logg))
			r.Post("/{salesOrderId}/transitions", controllers.SalesOrderTransition(fulfillmentService, logg))
		})

		r.Post("/reconciliation/runs", controllers.ReconciliationRun(sweeper, logg))
	})

	return r
}
