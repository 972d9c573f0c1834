package api

import (
	"github.com/rs/zerolog"

	"github.com/kdimtricp/objdetect/internal/detector"
	"github.com/kdimtricp/objdetect/internal/service"
)

const (
	Version           = "1.0.0"
	DefaultConfidence = 0.25
)

type App struct {
	Detector      *detector.Handle
	Service       *service.DetectionService
	MaxUploadSize int64
	Logger        zerolog.Logger
}
