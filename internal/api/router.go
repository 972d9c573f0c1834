package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/hlog"

	"github.com/kdimtricp/objdetect/internal/encoding"
)

func NewRouter(app *App) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(hlog.NewHandler(app.Logger))
	r.Use(hlog.RequestIDHandler("request_id", "X-Request-Id"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{encoding.HeaderTotalObjects, encoding.HeaderProcessingTime, "X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/", app.RootHandler)
	r.Get("/health", app.HealthHandler)
	r.Get("/classes", app.ClassesHandler)
	r.Get("/metrics", app.MetricsHandler)

	r.Post("/detect", app.DetectHandler)
	r.Post("/detect/annotated", app.DetectAnnotatedHandler)

	r.Get("/stats", app.StatsHandler)
	r.Get("/history", app.HistoryHandler)
	r.Get("/detection/{detection_id}", app.DetectionHandler)

	return r
}
