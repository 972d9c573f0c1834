package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/kdimtricp/objdetect/internal/database"
	"github.com/kdimtricp/objdetect/internal/models"
)

var (
	ErrStoreUnavailable = errors.New("persistence store unavailable")
	ErrNotFound         = errors.New("detection not found")
	ErrInvalidLimit     = errors.New("limit must be between 1 and 100")
)

const (
	DefaultHistoryLimit = 10
	MaxHistoryLimit     = database.MaxListLimit
)

type Detector interface {
	Run(data []byte, filename string, conf float64) (*models.DetectionRecord, error)
	RunAnnotated(data []byte, filename string, conf float64) ([]byte, *models.DetectionRecord, error)
}

type Store interface {
	Insert(ctx context.Context, rec *models.DetectionRecord) error
	Count(ctx context.Context) (int64, error)
	AverageProcessingTime(ctx context.Context) (float64, error)
	TotalObjectsDetected(ctx context.Context) (int64, error)
	ListRecent(ctx context.Context, limit int) ([]models.DetectionSummary, error)
	Get(ctx context.Context, detectionID string) (*models.DetectionRecord, error)
}

// Outcome reports a detection together with what happened when it was
// persisted. PersistErr is set only when Persisted is false.
type Outcome struct {
	Record     *models.DetectionRecord
	Persisted  bool
	PersistErr error
}

type DetectionService struct {
	detector Detector
	store    Store
	model    models.ModelInfo
	log      zerolog.Logger
}

// New builds the service. store may be nil, in which case detections
// are served but never recorded.
func New(detector Detector, store Store, model models.ModelInfo, log zerolog.Logger) *DetectionService {
	return &DetectionService{
		detector: detector,
		store:    store,
		model:    model,
		log:      log,
	}
}

// Detect runs detection and then records the result. A persistence
// failure is logged and reported in the Outcome, never returned.
func (s *DetectionService) Detect(ctx context.Context, data []byte, filename string, conf float64) (*Outcome, error) {
	rec, err := s.detector.Run(data, filename, conf)
	if err != nil {
		return nil, err
	}

	out := &Outcome{Record: rec}
	if s.store == nil {
		out.PersistErr = ErrStoreUnavailable
		s.log.Warn().Str("detection_id", rec.DetectionID).Msg("detection not persisted: no store configured")
		return out, nil
	}

	// The result already exists; a client disconnect should not drop it.
	if err := s.store.Insert(context.WithoutCancel(ctx), rec); err != nil {
		out.PersistErr = err
		s.log.Error().Err(err).Str("detection_id", rec.DetectionID).Msg("failed to persist detection")
		return out, nil
	}

	out.Persisted = true
	return out, nil
}

// DetectAnnotated returns a rendered JPEG with the record. Annotated
// results are not recorded.
func (s *DetectionService) DetectAnnotated(ctx context.Context, data []byte, filename string, conf float64) ([]byte, *models.DetectionRecord, error) {
	return s.detector.RunAnnotated(data, filename, conf)
}

func (s *DetectionService) Stats(ctx context.Context) (*models.Stats, error) {
	if s.store == nil {
		return nil, ErrStoreUnavailable
	}

	count, err := s.store.Count(ctx)
	if err != nil {
		return nil, err
	}
	avg, err := s.store.AverageProcessingTime(ctx)
	if err != nil {
		return nil, err
	}
	total, err := s.store.TotalObjectsDetected(ctx)
	if err != nil {
		return nil, err
	}

	return &models.Stats{
		TotalDetections:       count,
		AverageProcessingTime: math.Round(avg*1000) / 1000,
		TotalObjectsDetected:  total,
		ModelInfo:             s.model,
	}, nil
}

func (s *DetectionService) History(ctx context.Context, limit int) ([]models.DetectionSummary, error) {
	if limit < 1 || limit > MaxHistoryLimit {
		return nil, ErrInvalidLimit
	}
	if s.store == nil {
		return nil, ErrStoreUnavailable
	}
	return s.store.ListRecent(ctx, limit)
}

func (s *DetectionService) Lookup(ctx context.Context, detectionID string) (*models.DetectionRecord, error) {
	if s.store == nil {
		return nil, ErrStoreUnavailable
	}
	rec, err := s.store.Get(ctx, detectionID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, detectionID)
	}
	return rec, err
}

func (s *DetectionService) Model() models.ModelInfo {
	return s.model
}
