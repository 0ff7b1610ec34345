package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gearstage/ops-api/internal/config"
	"github.com/gearstage/ops-api/internal/database"
	"github.com/gearstage/ops-api/internal/enum"
	"github.com/gearstage/ops-api/internal/handler"
	mw "github.com/gearstage/ops-api/internal/middleware"
	"github.com/gearstage/ops-api/internal/notify"
	"github.com/gearstage/ops-api/internal/service"
	"github.com/gearstage/ops-api/internal/ws"
)

// New creates a Chi router with all application routes wired up.
// Capability middleware is applied per route inside each handler's
// RegisterRoutes.
func New(cfg *config.Config, queries *database.Queries, pool *pgxpool.Pool, notifier *notify.Service, hub *ws.Hub) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// WebSocket route (handles auth internally via query param)
	r.Get("/ws/companies/{cid}/orders", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.JWTSecret, w, r)
	})

	orderService := service.NewOrderService(
		pool,
		func(db database.DBTX) service.OrderStore { return database.New(db) },
		notifier,
	)
	lineItemService := service.NewLineItemService(
		pool,
		func(db database.DBTX) service.LineItemStore { return database.New(db) },
		orderService,
	)

	// Protected routes (require authentication)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		orderHandler := handler.NewOrderHandler(orderService, queries, hub)
		lineItemHandler := handler.NewLineItemHandler(lineItemService, hub)
		notificationHandler := handler.NewNotificationHandler(notifier, queries)

		r.Route("/orders", func(r chi.Router) {
			orderHandler.RegisterRoutes(r)
			notificationHandler.RegisterOrderRoutes(r)

			r.Route("/{id}/line-items", func(r chi.Router) {
				r.Use(mw.RequireCapability(enum.CapLineItemsManage))
				lineItemHandler.RegisterRoutes(r)
			})
		})

		notificationHandler.RegisterRoutes(r)
	})

	return r
}
