package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hookrelay/engine/internal/dispatch"
	"github.com/hookrelay/engine/internal/live"
	"github.com/hookrelay/engine/internal/resilience"
	"github.com/hookrelay/engine/internal/store"
)

// Deps bundles the collaborators the router wires into handlers. Breaker,
// Depth, and Hub are optional: a nil value simply omits that piece of
// functionality (no circuit breaker info, no queue depth, no live feed).
type Deps struct {
	Store      store.Store
	Dispatcher *dispatch.Dispatcher
	Worker     deliveryRetrier
	Hub        *live.Hub
	Breaker    *resilience.CircuitBreaker
	Depth      depther
}

// NewRouter creates and configures the HTTP router.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))
	r.Use(corsMiddleware)

	endpointHandler := NewEndpointHandler(deps.Store, deps.Breaker)
	eventHandler := NewEventHandler(deps.Store, deps.Dispatcher)
	deliveryHandler := NewDeliveryHandler(deps.Store, deps.Worker)
	metricsHandler := NewMetricsHandler(deps.Depth, deps.Hub)

	if deps.Hub != nil {
		r.Get("/ws", deps.Hub.HandleWebSocket)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", HealthHandler())
		r.Get("/metrics", metricsHandler.Get)

		r.Route("/endpoints", func(r chi.Router) {
			r.Post("/", endpointHandler.Create)
			r.Get("/", endpointHandler.List)
			r.Get("/{id}", endpointHandler.Get)
			r.Patch("/{id}", endpointHandler.Update)
			r.Delete("/{id}", endpointHandler.Delete)
			r.Post("/{id}/rotate-secret", endpointHandler.RotateSecret)
			r.Post("/{id}/toggle-active", endpointHandler.ToggleActive)
			r.Get("/{id}/stats", endpointHandler.Stats)
		})

		r.Route("/events", func(r chi.Router) {
			r.Post("/", eventHandler.Create)
			r.Get("/{id}", eventHandler.Get)
		})

		r.Route("/deliveries", func(r chi.Router) {
			r.Get("/", deliveryHandler.List)
			r.Get("/{id}", deliveryHandler.Get)
			r.Post("/{id}/retry", deliveryHandler.Retry)
		})
	})

	return r
}

// corsMiddleware adds CORS headers for dashboard development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
