package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/kdimtricp/objdetect/internal/config"
	"github.com/kdimtricp/objdetect/internal/database"
	"github.com/kdimtricp/objdetect/internal/logger"
)

func main() {
	var (
		status = flag.Bool("status", false, "Show migration status only")
		seed   = flag.Bool("seed", true, "Create the metrics row for the configured model")
		dbType = flag.String("db", "", "Database type (postgres or sqlite), overrides DB_TYPE")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(1)
	}
	if *dbType != "" {
		cfg.Database.Type = *dbType
	}

	log := logger.New(cfg.LogLevel, "console")

	db, err := database.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	migrator, err := database.NewMigrator(db.Conn(), db.Type(), log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load migrations")
	}

	if *status {
		entries, err := migrator.Status()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to read migration status")
		}

		fmt.Println("Migration Status:")
		fmt.Println("=================")
		if db.Type() != "postgres" {
			fmt.Println("sqlite schema is created on open; migrations are not tracked")
		}
		for _, e := range entries {
			state := "pending"
			if e.Applied {
				state = "applied"
			}
			fmt.Printf("%s - %s [%s]\n", e.Version, e.Name, state)
		}
		return
	}

	fmt.Printf("Running migrations against %s (%s)...\n", cfg.Database.Describe(), db.Type())
	if err := migrator.Run(); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	if *seed {
		store, err := database.NewStore(context.Background(), db, cfg.Model)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to seed model metrics")
		}
		m, err := store.GetOrInitMetrics(context.Background(), cfg.Model.Name)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to read model metrics")
		}
		fmt.Printf("Model metrics: %s v%s, %d classes, %d detections recorded\n",
			m.ModelName, m.ModelVersion, m.TotalClasses, m.TotalDetections)
	}

	fmt.Println("Migrations completed successfully!")
}
