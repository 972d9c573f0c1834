package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/kdimtricp/objdetect/internal/config"
	"github.com/kdimtricp/objdetect/internal/database"
	"github.com/kdimtricp/objdetect/internal/encoding"
	"github.com/kdimtricp/objdetect/internal/logger"
	"github.com/kdimtricp/objdetect/internal/service"
)

func main() {
	var (
		limit = flag.Int("limit", service.DefaultHistoryLimit, "Number of recent detections to list (1-100)")
		id    = flag.String("id", "", "Print one detection record instead of the summary")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel, "console")

	db, err := database.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx := context.Background()
	store, err := database.NewStore(ctx, db, cfg.Model)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	svc := service.New(nil, store, cfg.Model, log)

	if *id != "" {
		rec, err := svc.Lookup(ctx, *id)
		if err != nil {
			log.Fatal().Err(err).Str("detection_id", *id).Msg("lookup failed")
		}
		printJSON(encoding.Record(rec))
		return
	}

	stats, err := svc.Stats(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read stats")
	}
	recent, err := svc.History(ctx, *limit)
	if err != nil {
		log.Fatal().Err(err).Int("limit", *limit).Msg("failed to read history")
	}
	metrics, err := store.GetOrInitMetrics(ctx, cfg.Model.Name)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read model metrics")
	}

	fmt.Printf("Database: %s (%s)\n", cfg.Database.Describe(), db.Type())
	fmt.Printf("Model: %s v%s, %d detections counted, last updated %s\n\n",
		metrics.ModelName, metrics.ModelVersion, metrics.TotalDetections, metrics.LastUpdated.Format("2006-01-02 15:04:05"))

	printJSON(encoding.Stats(*stats))
	printJSON(encoding.History(recent))
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintln(os.Stderr, "failed to encode output:", err)
		os.Exit(1)
	}
}
