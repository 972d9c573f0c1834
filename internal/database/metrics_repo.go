package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kdimtricp/objdetect/internal/models"
)

type MetricsRepository struct {
	db *DB
}

func NewMetricsRepository(db *DB) *MetricsRepository {
	return &MetricsRepository{db: db}
}

// GetOrInit returns the metrics row for info.Name, creating it with a
// zero counter if it does not exist. Existing rows are left untouched.
func (r *MetricsRepository) GetOrInit(ctx context.Context, info models.ModelInfo) (*models.ModelMetrics, error) {
	_, err := r.db.conn.ExecContext(ctx, `
		INSERT INTO model_metrics (
			model_name, model_version, total_classes, average_inference_time,
			total_detections, last_updated, notes
		) VALUES ($1, $2, $3, $4, 0, $5, $6)
		ON CONFLICT (model_name) DO NOTHING`,
		info.Name,
		info.Version,
		info.TotalClasses,
		info.AverageInferenceTime,
		time.Now().UTC().Truncate(time.Microsecond),
		info.Notes,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to init model metrics: %w", err)
	}
	return r.Get(ctx, info.Name)
}

func (r *MetricsRepository) Get(ctx context.Context, modelName string) (*models.ModelMetrics, error) {
	var m models.ModelMetrics
	err := r.db.conn.QueryRowContext(ctx, `
		SELECT id, model_name, model_version, total_classes, average_inference_time,
			total_detections, last_updated, notes
		FROM model_metrics
		WHERE model_name = $1`, modelName,
	).Scan(
		&m.ID,
		&m.ModelName,
		&m.ModelVersion,
		&m.TotalClasses,
		&m.AverageInferenceTime,
		&m.TotalDetections,
		&m.LastUpdated,
		&m.Notes,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get model metrics: %w", err)
	}
	m.LastUpdated = m.LastUpdated.UTC()
	return &m, nil
}
