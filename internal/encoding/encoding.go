package encoding

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/kdimtricp/objdetect/internal/models"
)

const (
	HeaderTotalObjects   = "X-Total-Objects"
	HeaderProcessingTime = "X-Processing-Time"
)

type DetectionResponse struct {
	DetectionID         string             `json:"detection_id"`
	Filename            string             `json:"filename"`
	TotalObjects        int                `json:"total_objects"`
	ImageWidth          int                `json:"image_width"`
	ImageHeight         int                `json:"image_height"`
	ProcessingTime      float64            `json:"processing_time"`
	ConfidenceThreshold float64            `json:"confidence_threshold"`
	Detections          []models.Detection `json:"detections"`
	CreatedAt           time.Time          `json:"created_at"`
}

type SummaryResponse struct {
	DetectionID         string    `json:"detection_id"`
	Filename            string    `json:"filename"`
	TotalObjects        int       `json:"total_objects"`
	ImageWidth          int       `json:"image_width"`
	ImageHeight         int       `json:"image_height"`
	ProcessingTime      float64   `json:"processing_time"`
	ConfidenceThreshold float64   `json:"confidence_threshold"`
	CreatedAt           time.Time `json:"created_at"`
}

type HistoryResponse struct {
	TotalReturned int               `json:"total_returned"`
	Detections    []SummaryResponse `json:"detections"`
}

type ModelInfoResponse struct {
	Name         string `json:"name"`
	TotalClasses int    `json:"total_classes"`
	Version      string `json:"version"`
}

type StatsResponse struct {
	TotalDetections       int64             `json:"total_detections"`
	AverageProcessingTime float64           `json:"average_processing_time"`
	TotalObjectsDetected  int64             `json:"total_objects_detected"`
	ModelInfo             ModelInfoResponse `json:"model_info"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Record encodes a DetectionRecord with created_at in RFC 3339 UTC.
func Record(rec *models.DetectionRecord) DetectionResponse {
	detections := rec.Detections
	if detections == nil {
		detections = []models.Detection{}
	}
	return DetectionResponse{
		DetectionID:         rec.DetectionID,
		Filename:            rec.Filename,
		TotalObjects:        rec.TotalObjects,
		ImageWidth:          rec.ImageWidth,
		ImageHeight:         rec.ImageHeight,
		ProcessingTime:      rec.ProcessingTime,
		ConfidenceThreshold: rec.ConfidenceThreshold,
		Detections:          detections,
		CreatedAt:           rec.CreatedAt.UTC(),
	}
}

func Summary(s models.DetectionSummary) SummaryResponse {
	return SummaryResponse{
		DetectionID:         s.DetectionID,
		Filename:            s.Filename,
		TotalObjects:        s.TotalObjects,
		ImageWidth:          s.ImageWidth,
		ImageHeight:         s.ImageHeight,
		ProcessingTime:      s.ProcessingTime,
		ConfidenceThreshold: s.ConfidenceThreshold,
		CreatedAt:           s.CreatedAt.UTC(),
	}
}

func History(summaries []models.DetectionSummary) HistoryResponse {
	out := make([]SummaryResponse, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, Summary(s))
	}
	return HistoryResponse{TotalReturned: len(out), Detections: out}
}

func Stats(s models.Stats) StatsResponse {
	return StatsResponse{
		TotalDetections:       s.TotalDetections,
		AverageProcessingTime: s.AverageProcessingTime,
		TotalObjectsDetected:  s.TotalObjectsDetected,
		ModelInfo: ModelInfoResponse{
			Name:         s.ModelInfo.Name,
			TotalClasses: s.ModelInfo.TotalClasses,
			Version:      s.ModelInfo.Version,
		},
	}
}

func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, ErrorResponse{Code: code, Message: message})
}

// WriteAnnotated writes a JPEG body and carries the record's object
// count and processing time in headers.
func WriteAnnotated(w http.ResponseWriter, image []byte, rec *models.DetectionRecord) {
	h := w.Header()
	h.Set("Content-Type", "image/jpeg")
	h.Set("Content-Length", strconv.Itoa(len(image)))
	h.Set(HeaderTotalObjects, strconv.Itoa(rec.TotalObjects))
	h.Set(HeaderProcessingTime, strconv.FormatFloat(rec.ProcessingTime, 'f', -1, 64))
	w.WriteHeader(http.StatusOK)
	w.Write(image)
}
