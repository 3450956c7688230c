package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rjmurr/movebook/internal/booking"
	"github.com/rjmurr/movebook/internal/config"
	"github.com/rjmurr/movebook/internal/linksync"
	"github.com/rjmurr/movebook/internal/movement"
	"github.com/rjmurr/movebook/internal/vkb"
	"github.com/rjmurr/movebook/internal/websocket"
	"github.com/rjmurr/movebook/pkg/logger"
)

// Router handles HTTP routing for the application
type Router struct {
	handler  *Handler
	config   *config.Config
	logger   *logger.Logger
	wsServer *websocket.Server
}

// NewRouter creates the application router
func NewRouter(
	movements *movement.Store,
	bookings *booking.Store,
	engine *linksync.Engine,
	vkbDB *vkb.DB,
	cfg *config.Config,
	log *logger.Logger,
	wsServer *websocket.Server,
) *Router {
	return &Router{
		handler:  NewHandler(movements, bookings, engine, vkbDB, cfg, log, wsServer),
		config:   cfg,
		logger:   log.Named("router"),
		wsServer: wsServer,
	}
}

// Routes builds the HTTP handler tree
func (rt *Router) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(corsMiddleware(rt.config.Server.CORSAllowedOrigins))

	r.Route("/api/v1", func(api chi.Router) {
		api.Route("/movements", func(mv chi.Router) {
			mv.Get("/", rt.handler.ListMovements)
			mv.Post("/", rt.handler.CreateMovement)
			mv.Get("/{id}", rt.handler.GetMovement)
			mv.Put("/{id}", rt.handler.UpdateMovement)
			mv.Delete("/{id}", rt.handler.DeleteMovement)
			mv.Post("/{id}/status", rt.handler.SetMovementStatus)
			mv.Put("/{id}/elements/{idx}", rt.handler.UpdateMovementElement)
			mv.Post("/{id}/produce-arrival", rt.handler.ProduceArrival)
		})

		api.Route("/bookings", func(bk chi.Router) {
			bk.Get("/", rt.handler.ListBookings)
			bk.Post("/", rt.handler.CreateBooking)
			bk.Get("/{id}", rt.handler.GetBooking)
			bk.Put("/{id}", rt.handler.UpdateBooking)
			bk.Delete("/{id}", rt.handler.DeleteBooking)
		})

		api.Post("/reconcile", rt.handler.Reconcile)
		api.Get("/station", rt.handler.GetStation)
		api.Get("/aircraft-types/{designator}", rt.handler.GetAircraftType)
		api.Get("/ws", rt.wsServer.HandleConnection)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}

// corsMiddleware applies the configured allowed origins. An empty list or
// a "*" entry allows any origin.
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	allowAll := len(allowedOrigins) == 0
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if origin == "*" {
			allowAll = true
		}
		allowed[origin] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && (allowAll || allowed[origin]) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
