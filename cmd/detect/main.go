package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kdimtricp/objdetect/internal/batch"
	"github.com/kdimtricp/objdetect/internal/config"
	"github.com/kdimtricp/objdetect/internal/detector"
	"github.com/kdimtricp/objdetect/internal/engine"
	"github.com/kdimtricp/objdetect/internal/logger"
	"github.com/kdimtricp/objdetect/internal/storage"
)

func main() {
	var (
		outDir = flag.String("out", "results", "Directory for annotated images and JSON records")
		conf   = flag.Float64("conf", 0.25, "Minimum confidence in [0, 1]")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] [image or directory ...]\n", os.Args[0])
		fmt.Fprintln(flag.CommandLine.Output(), "Inputs default to ./images.")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *conf < 0 || *conf > 1 {
		fmt.Fprintln(os.Stderr, "-conf must be between 0 and 1")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel, "console")

	inputs := flag.Args()
	if len(inputs) == 0 {
		inputs = []string{"images"}
	}
	paths, err := batch.Collect(inputs)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to collect images")
	}
	if len(paths) == 0 {
		log.Warn().Strs("inputs", inputs).Msg("no .jpg or .png images found")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scratch, err := storage.NewScratchStore(cfg.ScratchDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize scratch storage")
	}

	eng, err := engine.Open(ctx, cfg.EngineOptions())
	if err != nil {
		log.Fatal().Err(err).Str("engine", cfg.Engine).Msg("failed to load detection engine")
	}

	runner, err := batch.NewRunner(detector.New(eng, scratch), *outDir, *conf, log)
	if err != nil {
		eng.Close()
		log.Fatal().Err(err).Msg("failed to prepare output")
	}

	sum, runErr := runner.Run(ctx, paths)

	eng.Close()
	if cfg.Engine == config.EngineONNX {
		if err := engine.Shutdown(); err != nil {
			log.Error().Err(err).Msg("failed to release onnx runtime")
		}
	}

	log.Info().
		Int("images", sum.Images).
		Int("failed", sum.Failed).
		Int("objects", sum.Objects).
		Interface("classes", sum.Classes).
		Str("out", *outDir).
		Msg("batch complete")

	if runErr != nil {
		log.Error().Err(runErr).Msg("batch interrupted")
		os.Exit(1)
	}
	if sum.Failed > 0 {
		os.Exit(1)
	}
}
