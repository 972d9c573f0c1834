package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	ort "github.com/yalue/onnxruntime_go"
)

type ONNXConfig struct {
	ModelPath      string
	LibraryPath    string
	LabelsPath     string
	InputSize      int
	IoUThreshold   float64
	PoolSize       int
	AcquireTimeout time.Duration
	MaxDetections  int
}

type session struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

func (s *session) destroy() {
	if s.session != nil {
		s.session.Destroy()
	}
	if s.input != nil {
		s.input.Destroy()
	}
	if s.output != nil {
		s.output.Destroy()
	}
}

// ONNXEngine runs a YOLOv8 ONNX export through ONNX Runtime.
type ONNXEngine struct {
	cfg     ONNXConfig
	labels  []string
	anchors int
	pool    *Pool[*session]

	closeOnce sync.Once
}

var envMu sync.Mutex

func (c ONNXConfig) withDefaults() ONNXConfig {
	if c.InputSize <= 0 {
		c.InputSize = 640
	}
	if c.IoUThreshold <= 0 {
		c.IoUThreshold = 0.7
	}
	if c.PoolSize <= 0 {
		c.PoolSize = 1
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = DefaultAcquireTimeout
	}
	if c.MaxDetections <= 0 {
		c.MaxDetections = DefaultMaxDetections
	}
	return c
}

// intraOpThreads splits the CPUs between the sessions of a pool.
func intraOpThreads(cpus, poolSize int) int {
	return max(1, cpus/max(1, poolSize))
}

func NewONNXEngine(cfg ONNXConfig) (*ONNXEngine, error) {
	cfg = cfg.withDefaults()
	labels, err := LoadLabels(cfg.LabelsPath)
	if err != nil {
		return nil, err
	}

	envMu.Lock()
	if !ort.IsInitialized() {
		ort.SetSharedLibraryPath(cfg.LibraryPath)
		if err := ort.InitializeEnvironment(); err != nil {
			envMu.Unlock()
			return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}
	envMu.Unlock()

	e := &ONNXEngine{
		cfg:     cfg,
		labels:  labels,
		anchors: AnchorCount(cfg.InputSize),
	}

	e.pool, err = NewPool(cfg.PoolSize, cfg.AcquireTimeout, e.newSession, (*session).destroy)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (e *ONNXEngine) newSession() (*session, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("error creating session options: %w", err)
	}
	defer options.Destroy()

	threads := intraOpThreads(runtime.NumCPU(), e.cfg.PoolSize)
	if err := options.SetIntraOpNumThreads(threads); err != nil {
		return nil, fmt.Errorf("error setting intra-op threads: %w", err)
	}

	size := int64(e.cfg.InputSize)
	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, size, size))
	if err != nil {
		return nil, fmt.Errorf("error creating input tensor: %w", err)
	}

	outputShape := ort.NewShape(1, int64(4+len(e.labels)), int64(e.anchors))
	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("error creating output tensor: %w", err)
	}

	s, err := ort.NewAdvancedSession(
		e.cfg.ModelPath,
		[]string{"images"},
		[]string{"output0"},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
		options,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("error creating session: %w", err)
	}

	return &session{session: s, input: inputTensor, output: outputTensor}, nil
}

func (e *ONNXEngine) Predict(path string, conf float64) (*Prediction, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	b := img.Bounds()
	canvas, scale := Letterbox(img, e.cfg.InputSize)

	s, err := e.pool.Acquire(context.Background())
	if errors.Is(err, ErrPoolClosed) {
		return nil, ErrClosed
	}
	if err != nil {
		return nil, fmt.Errorf("acquire session: %w", err)
	}
	defer e.pool.Release(s)

	FillTensor(s.input.GetData(), canvas, e.cfg.InputSize)
	if err := s.session.Run(); err != nil {
		return nil, fmt.Errorf("model inference: %w", err)
	}

	boxes := Decode(s.output.GetData(), DecodeOptions{
		NumClasses:    len(e.labels),
		Anchors:       e.anchors,
		Confidence:    float32(conf),
		IoU:           float32(e.cfg.IoUThreshold),
		MaxDetections: e.cfg.MaxDetections,
		Scale:         scale,
		Width:         b.Dx(),
		Height:        b.Dy(),
	})

	return &Prediction{Boxes: boxes, Width: b.Dx(), Height: b.Dy(), Image: img}, nil
}

func (e *ONNXEngine) ClassNames() []string {
	return append([]string(nil), e.labels...)
}

func (e *ONNXEngine) Stats() PoolStats {
	return e.pool.Stats()
}

func (e *ONNXEngine) Close() error {
	e.closeOnce.Do(func() {
		e.pool.Destroy()
	})
	return nil
}

// Shutdown releases the ONNX Runtime environment. Call once at exit
// after every engine is closed.
func Shutdown() error {
	envMu.Lock()
	defer envMu.Unlock()
	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}
