package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kdimtricp/objdetect/internal/models"
)

const (
	MinListLimit = 1
	MaxListLimit = 100
)

// DetectionRepository stores detection records and keeps the metrics
// counter of one model in step with them.
type DetectionRepository struct {
	db        *DB
	modelName string
}

func NewDetectionRepository(db *DB, modelName string) *DetectionRepository {
	return &DetectionRepository{db: db, modelName: modelName}
}

// Insert stores rec and increments the model's total_detections in the
// same transaction. Nothing is written if either step fails.
func (r *DetectionRepository) Insert(ctx context.Context, rec *models.DetectionRecord) error {
	detections := rec.Detections
	if detections == nil {
		detections = []models.Detection{}
	}
	payload, err := json.Marshal(detections)
	if err != nil {
		return fmt.Errorf("failed to marshal detections: %w", err)
	}

	tx, err := r.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO detection_logs (
			detection_id, filename, total_objects, image_width, image_height,
			processing_time, confidence_threshold, detections, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	if _, err := tx.ExecContext(ctx, query,
		rec.DetectionID,
		rec.Filename,
		rec.TotalObjects,
		rec.ImageWidth,
		rec.ImageHeight,
		rec.ProcessingTime,
		rec.ConfidenceThreshold,
		string(payload),
		rec.CreatedAt.UTC(),
	); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateDetection, rec.DetectionID)
		}
		return fmt.Errorf("failed to insert detection: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE model_metrics SET total_detections = total_detections + 1, last_updated = $1 WHERE model_name = $2`,
		time.Now().UTC().Truncate(time.Microsecond),
		r.modelName,
	)
	if err != nil {
		return fmt.Errorf("failed to update model metrics: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update model metrics: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrMetricsMissing, r.modelName)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit detection: %w", err)
	}
	return nil
}

func (r *DetectionRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM detection_logs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count detections: %w", err)
	}
	return n, nil
}

// AverageProcessingTime is 0 when no records exist.
func (r *DetectionRepository) AverageProcessingTime(ctx context.Context) (float64, error) {
	var avg float64
	if err := r.db.conn.QueryRowContext(ctx,
		`SELECT COALESCE(AVG(processing_time), 0) FROM detection_logs`,
	).Scan(&avg); err != nil {
		return 0, fmt.Errorf("failed to average processing time: %w", err)
	}
	return avg, nil
}

func (r *DetectionRepository) TotalObjectsDetected(ctx context.Context) (int64, error) {
	var total int64
	if err := r.db.conn.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(total_objects), 0) FROM detection_logs`,
	).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum detected objects: %w", err)
	}
	return total, nil
}

// ListRecent returns summaries newest first. Records sharing a
// timestamp keep insertion order.
func (r *DetectionRepository) ListRecent(ctx context.Context, limit int) ([]models.DetectionSummary, error) {
	if limit < MinListLimit || limit > MaxListLimit {
		return nil, ErrInvalidLimit
	}

	rows, err := r.db.conn.QueryContext(ctx, `
		SELECT detection_id, filename, total_objects, image_width, image_height,
			processing_time, confidence_threshold, created_at
		FROM detection_logs
		ORDER BY created_at DESC, id ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list detections: %w", err)
	}
	defer rows.Close()

	summaries := make([]models.DetectionSummary, 0, limit)
	for rows.Next() {
		var s models.DetectionSummary
		if err := rows.Scan(
			&s.DetectionID,
			&s.Filename,
			&s.TotalObjects,
			&s.ImageWidth,
			&s.ImageHeight,
			&s.ProcessingTime,
			&s.ConfidenceThreshold,
			&s.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan detection: %w", err)
		}
		s.CreatedAt = s.CreatedAt.UTC()
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate detections: %w", err)
	}

	return summaries, nil
}

func (r *DetectionRepository) Get(ctx context.Context, detectionID string) (*models.DetectionRecord, error) {
	var (
		rec     models.DetectionRecord
		payload string
	)
	err := r.db.conn.QueryRowContext(ctx, `
		SELECT detection_id, filename, total_objects, image_width, image_height,
			processing_time, confidence_threshold, detections, created_at
		FROM detection_logs
		WHERE detection_id = $1`, detectionID,
	).Scan(
		&rec.DetectionID,
		&rec.Filename,
		&rec.TotalObjects,
		&rec.ImageWidth,
		&rec.ImageHeight,
		&rec.ProcessingTime,
		&rec.ConfidenceThreshold,
		&payload,
		&rec.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get detection: %w", err)
	}

	if err := json.Unmarshal([]byte(payload), &rec.Detections); err != nil {
		return nil, fmt.Errorf("failed to unmarshal detections: %w", err)
	}
	if rec.Detections == nil {
		rec.Detections = []models.Detection{}
	}
	rec.CreatedAt = rec.CreatedAt.UTC()

	return &rec, nil
}
