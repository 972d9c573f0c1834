package detector

import (
	"bytes"
	"errors"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kdimtricp/objdetect/internal/engine"
	"github.com/kdimtricp/objdetect/internal/engine/enginetest"
	"github.com/kdimtricp/objdetect/internal/models"
	"github.com/kdimtricp/objdetect/internal/storage"
)

func newAdapter(t *testing.T, fake *enginetest.Fake) (*Adapter, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "scratch")
	scratch, err := storage.NewScratchStore(dir)
	require.NoError(t, err)
	return New(fake, scratch), dir
}

func assertScratchEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch files left behind")
}

func TestRun(t *testing.T) {
	fake := enginetest.New(enginetest.ThreeObjects()...)
	a, dir := newAdapter(t, fake)

	rec, err := a.Run(enginetest.PNG(160, 100), "street.png", 0.25)
	require.NoError(t, err)

	assert.Len(t, rec.DetectionID, 32)
	assert.Equal(t, "street.png", rec.Filename)
	assert.Equal(t, 160, rec.ImageWidth)
	assert.Equal(t, 100, rec.ImageHeight)
	assert.Equal(t, 0.25, rec.ConfidenceThreshold)
	assert.GreaterOrEqual(t, rec.ProcessingTime, 0.0)
	require.Equal(t, 3, rec.TotalObjects)
	require.Len(t, rec.Detections, rec.TotalObjects)

	assert.Equal(t, "person", rec.Detections[0].ClassName)
	assert.Equal(t, "car", rec.Detections[1].ClassName)
	assert.Equal(t, "dog", rec.Detections[2].ClassName)
	assert.Equal(t, models.BBox{X1: 10, Y1: 12, X2: 60, Y2: 90}, rec.Detections[0].BBox)
	for _, d := range rec.Detections {
		assert.GreaterOrEqual(t, d.Confidence, 0.0)
		assert.LessOrEqual(t, d.Confidence, 1.0)
	}

	require.Len(t, fake.Paths(), 1)
	assert.Equal(t, ".png", filepath.Ext(fake.Paths()[0]))
	assertScratchEmpty(t, dir)
}

func TestRunZeroDetections(t *testing.T) {
	a, _ := newAdapter(t, enginetest.New())

	rec, err := a.Run(enginetest.JPEG(32, 32), "empty.jpg", 0.5)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.TotalObjects)
	assert.NotNil(t, rec.Detections)
	assert.Empty(t, rec.Detections)
}

func TestRunThresholdMonotonic(t *testing.T) {
	a, _ := newAdapter(t, enginetest.New(enginetest.ThreeObjects()...))
	img := enginetest.PNG(160, 100)

	low, err := a.Run(img, "a.png", 0.25)
	require.NoError(t, err)
	high, err := a.Run(img, "a.png", 0.99)
	require.NoError(t, err)

	assert.Equal(t, 3, low.TotalObjects)
	assert.LessOrEqual(t, high.TotalObjects, low.TotalObjects)
}

func TestRunPassesDegenerateBoxesThrough(t *testing.T) {
	fake := enginetest.New(
		engine.Box{ClassID: 1, Confidence: 0.5, XYXY: [4]float32{-5, -3, -5, 200}},
		engine.Box{ClassID: 500, Confidence: 0.5, XYXY: [4]float32{1, 1, 2, 2}},
	)
	a, _ := newAdapter(t, fake)

	rec, err := a.Run(enginetest.PNG(10, 10), "x.png", 0.1)
	require.NoError(t, err)
	require.Len(t, rec.Detections, 2)
	assert.Equal(t, models.BBox{X1: -5, Y1: -3, X2: -5, Y2: 200}, rec.Detections[0].BBox)
	assert.Equal(t, "class_500", rec.Detections[1].ClassName)
}

func TestRunEngineFailure(t *testing.T) {
	fake := enginetest.New()
	fake.Err = errors.New("cuda out of memory")
	a, dir := newAdapter(t, fake)

	_, err := a.Run(enginetest.PNG(10, 10), "x.png", 0.25)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDetection)
	assert.ErrorIs(t, err, fake.Err)
	assert.Equal(t, int64(1), fake.Calls())
	assertScratchEmpty(t, dir)
}

func TestRunAfterEngineClosed(t *testing.T) {
	fake := enginetest.New(enginetest.ThreeObjects()...)
	a, dir := newAdapter(t, fake)
	require.NoError(t, fake.Close())

	_, err := a.Run(enginetest.PNG(10, 10), "x.png", 0.25)
	assert.ErrorIs(t, err, ErrDetection)
	assert.ErrorIs(t, err, engine.ErrClosed)
	assertScratchEmpty(t, dir)
}

func TestRunAnnotated(t *testing.T) {
	a, dir := newAdapter(t, enginetest.New(enginetest.ThreeObjects()...))

	data, rec, err := a.RunAnnotated(enginetest.JPEG(160, 100), "street.jpg", 0.25)
	require.NoError(t, err)
	assert.Equal(t, 3, rec.TotalObjects)

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 160, cfg.Width)
	assert.Equal(t, 100, cfg.Height)
	assertScratchEmpty(t, dir)
}

func TestRunAnnotatedEncodeFailure(t *testing.T) {
	a, _ := newAdapter(t, enginetest.New(enginetest.ThreeObjects()...))
	a.WithAnnotator(func(image.Image, []models.Detection) ([]byte, error) {
		return nil, errors.New("encoder broke")
	})

	_, _, err := a.RunAnnotated(enginetest.PNG(20, 20), "a.png", 0.25)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEncode)
	assert.NotErrorIs(t, err, ErrDetection)
}

func TestRunConcurrentIDsUnique(t *testing.T) {
	a, dir := newAdapter(t, enginetest.New(enginetest.ThreeObjects()...))
	img := enginetest.PNG(64, 64)

	const n = 100
	ids := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := a.Run(img, "same.png", 0.25)
			if !assert.NoError(t, err) {
				return
			}
			ids <- rec.DetectionID
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool, n)
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
	assertScratchEmpty(t, dir)
}

func TestHandle(t *testing.T) {
	h := NewHandle()
	assert.False(t, h.Ready())

	_, err := h.Run(nil, "x.png", 0.25)
	assert.ErrorIs(t, err, ErrNotReady)
	_, _, err = h.RunAnnotated(nil, "x.png", 0.25)
	assert.ErrorIs(t, err, ErrNotReady)
	_, err = h.ClassNames()
	assert.ErrorIs(t, err, ErrNotReady)
	_, ok := h.Stats()
	assert.False(t, ok)

	loadErr := errors.New("model file missing")
	h.Fail(loadErr)
	assert.Equal(t, loadErr, h.LoadError())

	fake := enginetest.New()
	a, _ := newAdapter(t, fake)
	h.Set(a)
	assert.True(t, h.Ready())

	names, err := h.ClassNames()
	require.NoError(t, err)
	assert.Len(t, names, 80)

	require.NoError(t, h.Close())
	assert.True(t, fake.Closed())
	assert.False(t, h.Ready())
	require.NoError(t, h.Close())
}

func TestHandleCloseWaitsForLoad(t *testing.T) {
	fake := enginetest.New()
	a, _ := newAdapter(t, fake)

	release := make(chan struct{})
	h := NewHandle()
	h.Load(func() (*Adapter, error) {
		<-release
		return a, nil
	})
	assert.False(t, h.Ready())

	closed := make(chan error, 1)
	go func() { closed <- h.Close() }()

	select {
	case <-closed:
		t.Fatal("Close returned while the engine was still loading")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case err := <-closed:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return after the load finished")
	}

	assert.True(t, fake.Closed(), "engine loaded during shutdown must be closed")
	assert.False(t, h.Ready())
}

func TestHandleLoadFailure(t *testing.T) {
	loadErr := errors.New("model file missing")
	h := NewHandle()
	h.Load(func() (*Adapter, error) { return nil, loadErr })
	h.Wait()

	assert.False(t, h.Ready())
	assert.ErrorIs(t, h.LoadError(), loadErr)
	require.NoError(t, h.Close())
}
