package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kdimtricp/objdetect/internal/models"
)

var testModel = models.ModelInfo{
	Name:                 "YOLOv8n",
	Version:              "8.0",
	TotalClasses:         80,
	AverageInferenceTime: 0.095,
	Notes:                "YOLOv8 Nano model for real-time object detection",
}

func setupSQLite(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(Config{Type: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func setupSQLiteStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(context.Background(), setupSQLite(t), testModel)
	require.NoError(t, err)
	return store
}

func sampleRecord(name string, processingTime float64, createdAt time.Time, dets ...models.Detection) *models.DetectionRecord {
	rec := models.NewDetectionRecord(name, 640, 480, 0.25, processingTime, dets)
	if !createdAt.IsZero() {
		rec.CreatedAt = createdAt.UTC().Truncate(time.Microsecond)
	}
	return rec
}

func sampleDetections() []models.Detection {
	return []models.Detection{
		{ClassID: 0, ClassName: "person", Confidence: 0.9100000262260437, BBox: models.BBox{X1: 10.5, Y1: 12, X2: 60.25, Y2: 90}},
		{ClassID: 2, ClassName: "car", Confidence: 0.64, BBox: models.BBox{X1: -3, Y1: 40, X2: 150, Y2: 95}},
	}
}
