// Package enginetest provides an in-memory engine and sample images for
// tests that should not load a real model.
package enginetest

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disintegration/imaging"

	"github.com/kdimtricp/objdetect/internal/engine"
)

type Fake struct {
	Labels []string
	Boxes  []engine.Box
	Err    error
	Delay  time.Duration

	calls  atomic.Int64
	mu     sync.Mutex
	paths  []string
	closed bool
}

func New(boxes ...engine.Box) *Fake {
	return &Fake{Labels: engine.DefaultLabels(), Boxes: boxes}
}

func (f *Fake) Predict(path string, conf float64) (*engine.Prediction, error) {
	f.calls.Add(1)

	f.mu.Lock()
	f.paths = append(f.paths, path)
	f.mu.Unlock()

	f.mu.Lock()
	closed := f.closed
	f.mu.Unlock()
	if closed {
		return nil, engine.ErrClosed
	}

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("input file missing: %w", err)
	}
	if f.Delay > 0 {
		time.Sleep(f.Delay)
	}
	if f.Err != nil {
		return nil, f.Err
	}

	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	var boxes []engine.Box
	for _, b := range f.Boxes {
		if float64(b.Confidence) >= conf {
			boxes = append(boxes, b)
		}
	}

	bounds := img.Bounds()
	return &engine.Prediction{Boxes: boxes, Width: bounds.Dx(), Height: bounds.Dy(), Image: img}, nil
}

func (f *Fake) ClassNames() []string {
	return append([]string(nil), f.Labels...)
}

func (f *Fake) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *Fake) Calls() int64 {
	return f.calls.Load()
}

// Paths returns the input paths seen by Predict, in call order.
func (f *Fake) Paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.paths...)
}

func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// ThreeObjects is a person, a car and a dog at descending confidence.
func ThreeObjects() []engine.Box {
	return []engine.Box{
		{ClassID: 0, Confidence: 0.91, XYXY: [4]float32{10, 12, 60, 90}},
		{ClassID: 2, Confidence: 0.64, XYXY: [4]float32{70, 40, 150, 95}},
		{ClassID: 16, Confidence: 0.31, XYXY: [4]float32{5, 60, 40, 98}},
	}
}

func sample(w, h int) image.Image {
	img := imaging.New(w, h, color.NRGBA{R: 40, G: 120, B: 200, A: 255})
	for x := 0; x < w; x++ {
		img.Set(x, h/2, color.NRGBA{R: 255, A: 255})
	}
	return img
}

func encode(img image.Image, format imaging.Format) []byte {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func PNG(w, h int) []byte {
	return encode(sample(w, h), imaging.PNG)
}

func JPEG(w, h int) []byte {
	return encode(sample(w, h), imaging.JPEG)
}
