package engine

import (
	"context"
	"fmt"
	"time"
)

const (
	KindONNX   = "onnx"
	KindRemote = "remote"
)

// Options selects and configures an engine implementation.
type Options struct {
	Kind          string
	ONNX          ONNXConfig
	RemoteURL     string
	RemoteTimeout time.Duration
}

// Open builds the engine named by opts.Kind. An empty kind means ONNX.
func Open(ctx context.Context, opts Options) (Engine, error) {
	switch opts.Kind {
	case KindONNX, "":
		return NewONNXEngine(opts.ONNX)
	case KindRemote:
		return NewRemoteEngine(ctx, opts.RemoteURL, opts.RemoteTimeout)
	default:
		return nil, fmt.Errorf("unsupported engine: %s", opts.Kind)
	}
}
