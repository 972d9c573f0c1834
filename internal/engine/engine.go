package engine

import (
	"bufio"
	_ "embed"
	"errors"
	"fmt"
	"image"
	"os"
	"strings"
)

//go:embed coco.names
var cocoNames string

var ErrClosed = errors.New("engine is closed")

// Box is a raw model output box in source-image pixels.
type Box struct {
	ClassID    float32
	Confidence float32
	XYXY       [4]float32
}

type Prediction struct {
	Boxes  []Box
	Width  int
	Height int
	// Image is the decoded input when the engine had to decode it anyway.
	Image image.Image
}

// Engine runs a detection model against an image on disk. Boxes below
// conf are dropped by the engine.
type Engine interface {
	Predict(path string, conf float64) (*Prediction, error)
	ClassNames() []string
	Close() error
}

// StatsReporter is implemented by engines backed by a session pool.
type StatsReporter interface {
	Stats() PoolStats
}

// DefaultLabels returns the 80 COCO class names.
func DefaultLabels() []string {
	return parseLabels(cocoNames)
}

// LoadLabels reads one label per line. An empty path yields DefaultLabels.
func LoadLabels(path string) ([]string, error) {
	if path == "" {
		return DefaultLabels(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read labels: %w", err)
	}
	labels := parseLabels(string(data))
	if len(labels) == 0 {
		return nil, fmt.Errorf("labels file %s is empty", path)
	}
	return labels, nil
}

func parseLabels(s string) []string {
	var labels []string
	sc := bufio.NewScanner(strings.NewReader(s))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			labels = append(labels, line)
		}
	}
	return labels
}
