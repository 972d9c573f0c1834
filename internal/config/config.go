package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/kdimtricp/objdetect/internal/database"
	"github.com/kdimtricp/objdetect/internal/engine"
	"github.com/kdimtricp/objdetect/internal/models"
)

const (
	EngineONNX   = engine.KindONNX
	EngineRemote = engine.KindRemote
)

type Config struct {
	Port          int
	MaxUploadSize int64
	ScratchDir    string
	LogLevel      string
	LogFormat     string

	Engine          string
	ModelPath       string
	OnnxLibraryPath string
	LabelsPath      string
	InputSize       int
	IoUThreshold    float64
	PoolSize        int
	AcquireTimeout  time.Duration

	InferenceURL     string
	InferenceTimeout time.Duration

	Model    models.ModelInfo
	Database database.Config
}

// Load reads .env (when present) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		Port:          getEnvAsInt("PORT", 8000),
		MaxUploadSize: getEnvAsInt64("MAX_UPLOAD_SIZE", 10<<20),
		ScratchDir:    getEnv("SCRATCH_DIR", os.TempDir()),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "json"),

		Engine:          getEnv("ENGINE", EngineONNX),
		ModelPath:       getEnv("MODEL_PATH", "./models/yolov8n.onnx"),
		OnnxLibraryPath: getEnv("ONNXRUNTIME_LIB", "./onnxruntime.so"),
		LabelsPath:      getEnv("LABELS_PATH", ""),
		InputSize:       getEnvAsInt("MODEL_INPUT_SIZE", 640),
		IoUThreshold:    getEnvAsFloat("IOU_THRESHOLD", 0.7),
		PoolSize:        getEnvAsInt("ENGINE_POOL_SIZE", 1),
		AcquireTimeout:  getEnvAsDuration("ENGINE_ACQUIRE_TIMEOUT", 30*time.Second),

		InferenceURL:     getEnv("INFERENCE_URL", ""),
		InferenceTimeout: getEnvAsDuration("INFERENCE_TIMEOUT", 60*time.Second),

		Model: models.ModelInfo{
			Name:                 getEnv("MODEL_NAME", "YOLOv8n"),
			Version:              getEnv("MODEL_VERSION", "8.0"),
			TotalClasses:         getEnvAsInt("MODEL_CLASSES", 80),
			AverageInferenceTime: getEnvAsFloat("MODEL_AVG_INFERENCE_TIME", 0.095),
			Notes:                getEnv("MODEL_NOTES", "YOLOv8 Nano model for real-time object detection"),
		},

		Database: database.Config{
			Type:       getEnv("DB_TYPE", "sqlite"),
			URL:        getEnv("DATABASE_URL", ""),
			SQLitePath: getEnv("DB_PATH", "./detections.db"),
			Host:       getEnv("DB_HOST", "localhost"),
			Port:       getEnvAsInt("DB_PORT", 5432),
			User:       getEnv("DB_USER", "detector"),
			Password:   getEnv("DB_PASSWORD", "detector_dev"),
			Name:       getEnv("DB_NAME", "object_detection"),
		},
	}

	// A postgres URL implies the postgres backend unless DB_TYPE says otherwise.
	if cfg.Database.URL != "" && os.Getenv("DB_TYPE") == "" {
		cfg.Database.Type = "postgres"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT: %d", c.Port)
	}
	if c.MaxUploadSize <= 0 {
		return fmt.Errorf("invalid MAX_UPLOAD_SIZE: %d", c.MaxUploadSize)
	}
	switch c.Engine {
	case EngineONNX:
		if c.InputSize <= 0 || c.InputSize%32 != 0 {
			return fmt.Errorf("MODEL_INPUT_SIZE must be a positive multiple of 32, got %d", c.InputSize)
		}
	case EngineRemote:
		if c.InferenceURL == "" {
			return errors.New("INFERENCE_URL is required when ENGINE=remote")
		}
	default:
		return fmt.Errorf("unsupported ENGINE: %s", c.Engine)
	}
	if c.PoolSize <= 0 {
		return fmt.Errorf("invalid ENGINE_POOL_SIZE: %d", c.PoolSize)
	}
	if c.IoUThreshold <= 0 || c.IoUThreshold > 1 {
		return fmt.Errorf("IOU_THRESHOLD must be in (0, 1], got %v", c.IoUThreshold)
	}
	if c.Model.Name == "" {
		return errors.New("MODEL_NAME must not be empty")
	}
	return nil
}

func (c *Config) EngineOptions() engine.Options {
	return engine.Options{
		Kind: c.Engine,
		ONNX: engine.ONNXConfig{
			ModelPath:      c.ModelPath,
			LibraryPath:    c.OnnxLibraryPath,
			LabelsPath:     c.LabelsPath,
			InputSize:      c.InputSize,
			IoUThreshold:   c.IoUThreshold,
			PoolSize:       c.PoolSize,
			AcquireTimeout: c.AcquireTimeout,
		},
		RemoteURL:     c.InferenceURL,
		RemoteTimeout: c.InferenceTimeout,
	}
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
