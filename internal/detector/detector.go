package detector

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"math"
	"time"

	"github.com/disintegration/imaging"

	"github.com/kdimtricp/objdetect/internal/engine"
	"github.com/kdimtricp/objdetect/internal/models"
	"github.com/kdimtricp/objdetect/internal/render"
	"github.com/kdimtricp/objdetect/internal/storage"
)

var (
	ErrNotReady  = errors.New("detection engine not ready")
	ErrDetection = errors.New("detection failed")
	ErrEncode    = errors.New("encode failed")
)

// Annotator renders detections onto the source image as JPEG bytes.
type Annotator func(img image.Image, detections []models.Detection) ([]byte, error)

// Adapter turns raw image bytes into DetectionRecords using an engine
// that reads its input from disk.
type Adapter struct {
	engine   engine.Engine
	scratch  storage.Scratch
	annotate Annotator
	labels   []string
}

func New(eng engine.Engine, scratch storage.Scratch) *Adapter {
	return &Adapter{
		engine:   eng,
		scratch:  scratch,
		annotate: render.AnnotateJPEG,
		labels:   eng.ClassNames(),
	}
}

// WithAnnotator replaces the JPEG renderer.
func (a *Adapter) WithAnnotator(fn Annotator) *Adapter {
	a.annotate = fn
	return a
}

func (a *Adapter) ClassNames() []string {
	return append([]string(nil), a.labels...)
}

func (a *Adapter) Run(data []byte, filename string, conf float64) (*models.DetectionRecord, error) {
	pred, elapsed, err := a.predict(data, filename, conf)
	if err != nil {
		return nil, err
	}
	return a.record(pred, filename, conf, elapsed), nil
}

func (a *Adapter) RunAnnotated(data []byte, filename string, conf float64) ([]byte, *models.DetectionRecord, error) {
	pred, elapsed, err := a.predict(data, filename, conf)
	if err != nil {
		return nil, nil, err
	}
	rec := a.record(pred, filename, conf, elapsed)

	img := pred.Image
	if img == nil {
		img, err = imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
		if err != nil {
			return nil, nil, fmt.Errorf("%w: decode source image: %w", ErrEncode, err)
		}
	}

	out, err := a.annotate(img, rec.Detections)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrEncode, err)
	}
	return out, rec, nil
}

// predict runs the engine against a scratch copy of data. Only the
// engine call is timed.
func (a *Adapter) predict(data []byte, filename string, conf float64) (*engine.Prediction, time.Duration, error) {
	var (
		pred    *engine.Prediction
		elapsed time.Duration
	)
	err := a.scratch.With(data, filename, func(path string) error {
		start := time.Now()
		p, err := a.engine.Predict(path, conf)
		elapsed = time.Since(start)
		if err != nil {
			return err
		}
		pred = p
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrDetection, err)
	}
	return pred, elapsed, nil
}

func (a *Adapter) record(pred *engine.Prediction, filename string, conf float64, elapsed time.Duration) *models.DetectionRecord {
	detections := make([]models.Detection, 0, len(pred.Boxes))
	for _, b := range pred.Boxes {
		classID := int(b.ClassID)
		detections = append(detections, models.Detection{
			ClassID:    classID,
			ClassName:  a.className(classID),
			Confidence: float64(b.Confidence),
			BBox: models.BBox{
				X1: float64(b.XYXY[0]),
				Y1: float64(b.XYXY[1]),
				X2: float64(b.XYXY[2]),
				Y2: float64(b.XYXY[3]),
			},
		})
	}

	processingTime := math.Round(elapsed.Seconds()*1000) / 1000
	return models.NewDetectionRecord(filename, pred.Width, pred.Height, conf, processingTime, detections)
}

func (a *Adapter) className(id int) string {
	if id >= 0 && id < len(a.labels) {
		return a.labels[id]
	}
	return fmt.Sprintf("class_%d", id)
}
