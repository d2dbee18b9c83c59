package httpapi

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"civreg/internal/adminarea"
	eventhandler "civreg/internal/event/handler"
	"civreg/internal/platform/middleware"
	platformredis "civreg/internal/platform/redis"
)

// Dependencies carries everything the router wires together.
type Dependencies struct {
	Events    *eventhandler.Handler
	Areas     *adminarea.Handler
	Validator middleware.JWTValidator
	DB        *sql.DB
	Redis     *platformredis.Client
	Logger    *slog.Logger
}

// NewRouter wires all endpoints. Event and area routes require a valid token;
// health and metrics stay open for probes and scrapers.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)

	r.Get("/healthz", healthHandler(deps))
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(deps.Validator, deps.Logger))
		if deps.Redis != nil {
			r.Use(middleware.RateLimit(deps.Redis.Client, middleware.DefaultRateLimit, deps.Logger))
		}
		deps.Events.Register(r)
		deps.Areas.Register(r)
	})

	return r
}

func healthHandler(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if deps.DB != nil {
			if err := deps.DB.PingContext(ctx); err != nil {
				http.Error(w, "database unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		if deps.Redis != nil {
			if err := deps.Redis.Health(ctx); err != nil {
				http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}
