package database

import (
	"context"
	"fmt"

	"github.com/kdimtricp/objdetect/internal/models"
)

// Store is the persistence facade used by the service layer.
type Store struct {
	db         *DB
	model      models.ModelInfo
	detections *DetectionRepository
	metrics    *MetricsRepository
}

// NewStore ensures the metrics row for model exists before returning.
func NewStore(ctx context.Context, db *DB, model models.ModelInfo) (*Store, error) {
	s := &Store{
		db:         db,
		model:      model,
		detections: NewDetectionRepository(db, model.Name),
		metrics:    NewMetricsRepository(db),
	}
	if _, err := s.metrics.GetOrInit(ctx, model); err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	return s, nil
}

func (s *Store) Insert(ctx context.Context, rec *models.DetectionRecord) error {
	return s.detections.Insert(ctx, rec)
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	return s.detections.Count(ctx)
}

func (s *Store) AverageProcessingTime(ctx context.Context) (float64, error) {
	return s.detections.AverageProcessingTime(ctx)
}

func (s *Store) TotalObjectsDetected(ctx context.Context) (int64, error) {
	return s.detections.TotalObjectsDetected(ctx)
}

func (s *Store) ListRecent(ctx context.Context, limit int) ([]models.DetectionSummary, error) {
	return s.detections.ListRecent(ctx, limit)
}

func (s *Store) Get(ctx context.Context, detectionID string) (*models.DetectionRecord, error) {
	return s.detections.Get(ctx, detectionID)
}

func (s *Store) GetOrInitMetrics(ctx context.Context, modelName string) (*models.ModelMetrics, error) {
	info := models.ModelInfo{Name: modelName}
	if modelName == s.model.Name {
		info = s.model
	}
	return s.metrics.GetOrInit(ctx, info)
}

func (s *Store) Close() error {
	return s.db.Close()
}
