package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/hsn-classifier/app"
	appmiddleware "github.com/upb/hsn-classifier/middleware"
	"github.com/upb/hsn-classifier/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(appmiddleware.RequestLogger(deps.Logger))
	r.Use(middleware.Recoverer)

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health check endpoints
	r.Get("/healthz", deps.HealthHandler.HandleHealth)
	r.Get("/readyz", deps.HealthHandler.HandleReadiness)

	// Prometheus scrape endpoint
	r.Handle("/metrics", deps.Pipeline.Metrics.Handler())

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(deps.AuthMiddleware.RequireAuth)

		// Bulk uploads run one provider call per row, so they are bounded by
		// the per-row deadline instead of the request timeout. The handler also
		// clears the connection read and write deadlines.
		r.Post("/predict/bulk", deps.BatchHandler.HandleBulkPredict)

		r.Group(func(r chi.Router) {
			if timeout := deps.Config.Server.RequestTimeout; timeout > 0 {
				r.Use(middleware.Timeout(timeout))
			}

			r.Get("/status", deps.HealthHandler.HandleStatus)
			r.Post("/predict", deps.PredictionHandler.HandlePredict)
			r.Get("/predict/sample", deps.BatchHandler.HandleSample)
			r.Get("/predictions", deps.HistoryHandler.HandleList)
			r.Get("/predictions/{id}", deps.HistoryHandler.HandleGet)
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})

	return r
}
