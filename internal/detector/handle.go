package detector

import (
	"sync"
	"sync/atomic"

	"github.com/kdimtricp/objdetect/internal/engine"
	"github.com/kdimtricp/objdetect/internal/models"
)

// Handle holds the process-wide Adapter once the engine has loaded.
// It is safe for concurrent use and may be passed around before the
// engine is ready.
type Handle struct {
	adapter atomic.Pointer[Adapter]
	loadErr atomic.Pointer[error]

	mu      sync.Mutex
	loading chan struct{}
}

func NewHandle() *Handle {
	return &Handle{}
}

// Ready returns a handle that is already loaded.
func Ready(a *Adapter) *Handle {
	h := NewHandle()
	h.Set(a)
	return h
}

// Load runs load in the background and publishes its result.
func (h *Handle) Load(load func() (*Adapter, error)) {
	done := make(chan struct{})
	h.mu.Lock()
	h.loading = done
	h.mu.Unlock()

	go func() {
		defer close(done)
		a, err := load()
		if err != nil {
			h.Fail(err)
			return
		}
		h.Set(a)
	}()
}

// Wait blocks until the load started by Load has finished.
func (h *Handle) Wait() {
	h.mu.Lock()
	done := h.loading
	h.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (h *Handle) Set(a *Adapter) {
	h.adapter.Store(a)
}

// Fail records why loading the engine failed.
func (h *Handle) Fail(err error) {
	h.loadErr.Store(&err)
}

func (h *Handle) LoadError() error {
	if p := h.loadErr.Load(); p != nil {
		return *p
	}
	return nil
}

func (h *Handle) Get() *Adapter {
	return h.adapter.Load()
}

func (h *Handle) Ready() bool {
	return h.adapter.Load() != nil
}

func (h *Handle) ClassNames() ([]string, error) {
	a := h.Get()
	if a == nil {
		return nil, ErrNotReady
	}
	return a.ClassNames(), nil
}

func (h *Handle) Run(image []byte, filename string, conf float64) (*models.DetectionRecord, error) {
	a := h.Get()
	if a == nil {
		return nil, ErrNotReady
	}
	return a.Run(image, filename, conf)
}

func (h *Handle) RunAnnotated(image []byte, filename string, conf float64) ([]byte, *models.DetectionRecord, error) {
	a := h.Get()
	if a == nil {
		return nil, nil, ErrNotReady
	}
	return a.RunAnnotated(image, filename, conf)
}

// Stats reports session pool usage when the engine keeps a pool.
func (h *Handle) Stats() (engine.PoolStats, bool) {
	a := h.Get()
	if a == nil {
		return engine.PoolStats{}, false
	}
	r, ok := a.engine.(engine.StatsReporter)
	if !ok {
		return engine.PoolStats{}, false
	}
	return r.Stats(), true
}

// Close waits for a pending Load and releases the engine if one was
// loaded.
func (h *Handle) Close() error {
	h.Wait()
	a := h.adapter.Swap(nil)
	if a == nil {
		return nil
	}
	return a.engine.Close()
}
