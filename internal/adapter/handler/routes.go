package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewRouter mounts the HTTP API. timeout bounds each request; zero disables it.
func NewRouter(h *HTTPHandler, logger *zap.Logger, timeout time.Duration) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(Instrument)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Idempotency-Key"},
		MaxAge:         300,
	}))
	if timeout > 0 {
		r.Use(middleware.Timeout(timeout))
	}

	r.Get("/", h.Root)
	r.Get("/health", h.HealthCheck)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/data", h.ListProducts)
	r.Get("/data/{id}", h.GetProduct)
	r.Get("/data/{id}/transfers", h.ProductTransfers)
	r.Get("/latestProducts", h.LatestProducts)
	r.Get("/search", h.Search)

	r.Post("/add-exports", h.AddExport)
	r.Get("/my-exports/{userId}", h.MyExports)
	r.Patch("/my-exports/{id}", h.UpdateExport)
	r.Delete("/my-exports/{id}", h.DeleteExport)

	r.Post("/import/{userId}", h.Import)
	r.Get("/my-imports/{userId}", h.MyImports)
	r.Delete("/my-imports/{id}", h.DeleteImport)
	r.Delete("/my-imports/{productId}/{userId}", h.DeleteUserImports)

	return r
}
