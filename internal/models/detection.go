package models

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// BBox is an axis-aligned box in source-image pixel coordinates. It is
// encoded as [x1, y1, x2, y2].
type BBox struct {
	X1 float64
	Y1 float64
	X2 float64
	Y2 float64
}

func (b BBox) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]float64{b.X1, b.Y1, b.X2, b.Y2})
}

func (b *BBox) UnmarshalJSON(data []byte) error {
	var xyxy []float64
	if err := json.Unmarshal(data, &xyxy); err != nil {
		return fmt.Errorf("bbox: %w", err)
	}
	if len(xyxy) != 4 {
		return fmt.Errorf("bbox: want 4 coordinates, got %d", len(xyxy))
	}
	b.X1, b.Y1, b.X2, b.Y2 = xyxy[0], xyxy[1], xyxy[2], xyxy[3]
	return nil
}

type Detection struct {
	ClassID    int     `json:"class_id"`
	ClassName  string  `json:"class_name"`
	Confidence float64 `json:"confidence"`
	BBox       BBox    `json:"bbox"`
}

// DetectionRecord is the result of one inference request.
type DetectionRecord struct {
	DetectionID         string
	Filename            string
	TotalObjects        int
	ImageWidth          int
	ImageHeight         int
	ProcessingTime      float64
	ConfidenceThreshold float64
	Detections          []Detection
	CreatedAt           time.Time
}

// DetectionSummary is a DetectionRecord without its detections payload.
type DetectionSummary struct {
	DetectionID         string
	Filename            string
	TotalObjects        int
	ImageWidth          int
	ImageHeight         int
	ProcessingTime      float64
	ConfidenceThreshold float64
	CreatedAt           time.Time
}

// NewDetectionID returns a fresh 32 character hex token.
func NewDetectionID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

func NewDetectionRecord(filename string, width, height int, conf, processingTime float64, detections []Detection) *DetectionRecord {
	if detections == nil {
		detections = []Detection{}
	}
	return &DetectionRecord{
		DetectionID:         NewDetectionID(),
		Filename:            filename,
		TotalObjects:        len(detections),
		ImageWidth:          width,
		ImageHeight:         height,
		ProcessingTime:      processingTime,
		ConfidenceThreshold: conf,
		Detections:          detections,
		CreatedAt:           time.Now().UTC().Truncate(time.Microsecond),
	}
}

func (r *DetectionRecord) Summary() DetectionSummary {
	return DetectionSummary{
		DetectionID:         r.DetectionID,
		Filename:            r.Filename,
		TotalObjects:        r.TotalObjects,
		ImageWidth:          r.ImageWidth,
		ImageHeight:         r.ImageHeight,
		ProcessingTime:      r.ProcessingTime,
		ConfidenceThreshold: r.ConfidenceThreshold,
		CreatedAt:           r.CreatedAt,
	}
}
