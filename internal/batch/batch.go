// Package batch runs detection over image files on disk and writes the
// annotated images and JSON records next to each other.
package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/kdimtricp/objdetect/internal/encoding"
	"github.com/kdimtricp/objdetect/internal/models"
)

var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

type Detector interface {
	RunAnnotated(data []byte, filename string, conf float64) ([]byte, *models.DetectionRecord, error)
}

// Result names the files written for one input image.
type Result struct {
	Source string
	Image  string
	JSON   string
	Record *models.DetectionRecord
}

type Summary struct {
	Images  int
	Failed  int
	Objects int
	Classes map[string]int
}

type Runner struct {
	detector Detector
	outDir   string
	conf     float64
	log      zerolog.Logger
}

func NewRunner(detector Detector, outDir string, conf float64, log zerolog.Logger) (*Runner, error) {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &Runner{detector: detector, outDir: outDir, conf: conf, log: log}, nil
}

// Collect expands directories into the JPEG and PNG files directly
// inside them, sorted by name. Files named explicitly are kept as given.
func Collect(inputs []string) ([]string, error) {
	var paths []string
	for _, in := range inputs {
		info, err := os.Stat(in)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", in, err)
		}
		if !info.IsDir() {
			paths = append(paths, in)
			continue
		}

		entries, err := os.ReadDir(in)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", in, err)
		}
		var found []string
		for _, e := range entries {
			if e.IsDir() || !imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
				continue
			}
			found = append(found, filepath.Join(in, e.Name()))
		}
		sort.Strings(found)
		paths = append(paths, found...)
	}
	return paths, nil
}

// Process detects objects in one file and writes detected_<stem>.jpg
// and detected_<stem>.json to the output directory.
func (r *Runner) Process(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}

	name := filepath.Base(path)
	img, rec, err := r.detector.RunAnnotated(data, name, r.conf)
	if err != nil {
		return nil, err
	}

	stem := "detected_" + strings.TrimSuffix(name, filepath.Ext(name))
	res := &Result{
		Source: path,
		Image:  filepath.Join(r.outDir, stem+".jpg"),
		JSON:   filepath.Join(r.outDir, stem+".json"),
		Record: rec,
	}

	if err := os.WriteFile(res.Image, img, 0644); err != nil {
		return nil, fmt.Errorf("failed to write annotated image: %w", err)
	}
	payload, err := json.MarshalIndent(encoding.Record(rec), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	if err := os.WriteFile(res.JSON, payload, 0644); err != nil {
		return nil, fmt.Errorf("failed to write record: %w", err)
	}
	return res, nil
}

// Run processes paths in order. A failed image is logged and counted;
// only cancellation stops the run early.
func (r *Runner) Run(ctx context.Context, paths []string) (Summary, error) {
	sum := Summary{Classes: make(map[string]int)}

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		res, err := r.Process(path)
		if err != nil {
			sum.Failed++
			r.log.Error().Err(err).Str("file", path).Msg("detection failed")
			continue
		}

		sum.Images++
		sum.Objects += res.Record.TotalObjects
		for _, d := range res.Record.Detections {
			sum.Classes[d.ClassName]++
			r.log.Info().
				Str("file", path).
				Str("class", d.ClassName).
				Float64("confidence", d.Confidence).
				Msg("object")
		}
		r.log.Info().
			Str("file", path).
			Int("objects", res.Record.TotalObjects).
			Float64("processing_time", res.Record.ProcessingTime).
			Str("image", res.Image).
			Str("json", res.JSON).
			Msg("processed")
	}
	return sum, nil
}
