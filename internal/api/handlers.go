package api

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/hlog"

	"github.com/kdimtricp/objdetect/internal/encoding"
)

type rootResponse struct {
	Message   string            `json:"message"`
	Version   string            `json:"version"`
	Endpoints map[string]string `json:"endpoints"`
}

type healthResponse struct {
	Status       string    `json:"status"`
	ModelLoaded  bool      `json:"model_loaded"`
	ModelClasses int       `json:"model_classes"`
	Timestamp    time.Time `json:"timestamp"`
}

type classesResponse struct {
	TotalClasses int      `json:"total_classes"`
	Classes      []string `json:"classes"`
}

func (app *App) RootHandler(w http.ResponseWriter, r *http.Request) {
	encoding.WriteJSON(w, http.StatusOK, rootResponse{
		Message: "Object Detection API",
		Version: Version,
		Endpoints: map[string]string{
			"health":           "GET /health",
			"classes":          "GET /classes",
			"detect":           "POST /detect",
			"detect_annotated": "POST /detect/annotated",
			"stats":            "GET /stats",
			"history":          "GET /history",
			"detection":        "GET /detection/{detection_id}",
			"metrics":          "GET /metrics",
		},
	})
}

func (app *App) HealthHandler(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:    "unhealthy",
		Timestamp: time.Now().UTC(),
	}
	if classes, err := app.Detector.ClassNames(); err == nil {
		resp.Status = "healthy"
		resp.ModelLoaded = true
		resp.ModelClasses = len(classes)
	} else if loadErr := app.Detector.LoadError(); loadErr != nil {
		hlog.FromRequest(r).Warn().Err(loadErr).Msg("detection engine failed to load")
	}
	encoding.WriteJSON(w, http.StatusOK, resp)
}

func (app *App) ClassesHandler(w http.ResponseWriter, r *http.Request) {
	classes, err := app.Detector.ClassNames()
	if err != nil {
		writeNotReady(w)
		return
	}
	encoding.WriteJSON(w, http.StatusOK, classesResponse{TotalClasses: len(classes), Classes: classes})
}

// MetricsHandler reports engine session pool usage. Engines without a
// pool report an empty object.
func (app *App) MetricsHandler(w http.ResponseWriter, r *http.Request) {
	stats, ok := app.Detector.Stats()
	if !ok {
		encoding.WriteJSON(w, http.StatusOK, struct{}{})
		return
	}
	encoding.WriteJSON(w, http.StatusOK, stats)
}

func writeNotReady(w http.ResponseWriter) {
	encoding.WriteError(w, http.StatusServiceUnavailable, "model_not_ready", "Model not loaded")
}
