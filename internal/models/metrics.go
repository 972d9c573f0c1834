package models

import "time"

// ModelInfo is the static description of the served model.
type ModelInfo struct {
	Name                 string
	Version              string
	TotalClasses         int
	AverageInferenceTime float64
	Notes                string
}

// ModelMetrics is the aggregate row kept per model name.
type ModelMetrics struct {
	ID                   int64
	ModelName            string
	ModelVersion         string
	TotalClasses         int
	AverageInferenceTime float64
	TotalDetections      int64
	LastUpdated          time.Time
	Notes                string
}

type Stats struct {
	TotalDetections       int64
	AverageProcessingTime float64
	TotalObjectsDetected  int64
	ModelInfo             ModelInfo
}
