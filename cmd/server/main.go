package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/kdimtricp/objdetect/internal/api"
	"github.com/kdimtricp/objdetect/internal/config"
	"github.com/kdimtricp/objdetect/internal/database"
	"github.com/kdimtricp/objdetect/internal/detector"
	"github.com/kdimtricp/objdetect/internal/engine"
	"github.com/kdimtricp/objdetect/internal/logger"
	"github.com/kdimtricp/objdetect/internal/service"
	"github.com/kdimtricp/objdetect/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scratch, err := storage.NewScratchStore(cfg.ScratchDir)
	if err != nil {
		return fmt.Errorf("failed to initialize scratch storage: %w", err)
	}

	// The service runs without history when the database is unreachable.
	var store service.Store
	dbStore, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("persistence disabled")
	} else {
		store = dbStore
		defer dbStore.Close()
	}

	handle := detector.NewHandle()
	// Close waits for a pending load before the runtime is released.
	defer func() {
		if err := handle.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close engine")
		}
		if cfg.Engine == config.EngineONNX {
			if err := engine.Shutdown(); err != nil {
				log.Error().Err(err).Msg("failed to release onnx runtime")
			}
		}
	}()
	handle.Load(func() (*detector.Adapter, error) {
		return loadEngine(ctx, cfg, log, scratch)
	})

	app := &api.App{
		Detector:      handle,
		Service:       service.New(handle, store, cfg.Model, log),
		MaxUploadSize: cfg.MaxUploadSize,
		Logger:        log,
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           api.NewRouter(app),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("engine", cfg.Engine).
			Str("db_type", cfg.Database.Type).
			Str("db", cfg.Database.Describe()).
			Int64("max_upload_size", cfg.MaxUploadSize).
			Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*database.Store, error) {
	db, err := database.NewDB(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := db.RunMigrations(log); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	store, err := database.NewStore(ctx, db, cfg.Model)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// loadEngine runs in the background so the server can answer health
// checks while the model loads.
func loadEngine(ctx context.Context, cfg *config.Config, log zerolog.Logger, scratch *storage.ScratchStore) (*detector.Adapter, error) {
	start := time.Now()

	eng, err := engine.Open(ctx, cfg.EngineOptions())
	if err != nil {
		log.Error().Err(err).Str("engine", cfg.Engine).Msg("failed to load detection engine")
		return nil, err
	}

	log.Info().
		Str("engine", cfg.Engine).
		Int("classes", len(eng.ClassNames())).
		Dur("load_time", time.Since(start)).
		Msg("detection engine ready")
	return detector.New(eng, scratch), nil
}
