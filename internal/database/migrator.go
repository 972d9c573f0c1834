package database

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Migration is one numbered SQL file, e.g. 001_init.sql.
type Migration struct {
	Version string
	Name    string
	SQL     string
}

type MigrationStatus struct {
	Migration
	Applied bool
}

// Migrator applies the embedded schema files to PostgreSQL and records
// each version in schema_migrations. SQLite builds its schema on open,
// so every step is a no-op there.
type Migrator struct {
	db     *sql.DB
	dbType string
	source fs.FS
	log    zerolog.Logger
}

func NewMigrator(db *sql.DB, dbType string, log zerolog.Logger) (*Migrator, error) {
	source, err := fs.Sub(embeddedMigrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	return &Migrator{db: db, dbType: dbType, source: source, log: log}, nil
}

func (m *Migrator) tracked() bool {
	return m.dbType == "postgres"
}

func (m *Migrator) Initialize() error {
	if !m.tracked() {
		return nil
	}

	if _, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}
	return nil
}

// GetAppliedMigrations returns the recorded versions. It is empty on
// SQLite.
func (m *Migrator) GetAppliedMigrations() (map[string]bool, error) {
	applied := make(map[string]bool)
	if !m.tracked() {
		return applied, nil
	}

	rows, err := m.db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema_migrations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("failed to scan schema version: %w", err)
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

// LoadMigrations lists the embedded files ordered by version.
func (m *Migrator) LoadMigrations() ([]Migration, error) {
	entries, err := fs.ReadDir(m.source, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to list migrations: %w", err)
	}

	var migrations []Migration
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		version, _, ok := strings.Cut(name, "_")
		if !ok {
			m.log.Warn().Str("file", name).Msg("migration file name has no version prefix")
			continue
		}

		content, err := fs.ReadFile(m.source, name)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		migrations = append(migrations, Migration{Version: version, Name: name, SQL: string(content)})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// Status pairs every embedded migration with whether it has run.
func (m *Migrator) Status() ([]MigrationStatus, error) {
	if err := m.Initialize(); err != nil {
		return nil, err
	}
	applied, err := m.GetAppliedMigrations()
	if err != nil {
		return nil, err
	}
	migrations, err := m.LoadMigrations()
	if err != nil {
		return nil, err
	}

	status := make([]MigrationStatus, 0, len(migrations))
	for _, mig := range migrations {
		status = append(status, MigrationStatus{Migration: mig, Applied: applied[mig.Version]})
	}
	return status, nil
}

// ApplyMigration runs the file and records its version atomically.
func (m *Migrator) ApplyMigration(mig Migration) error {
	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(mig.SQL); err != nil {
		return fmt.Errorf("failed to execute %s: %w", mig.Name, err)
	}
	if _, err := tx.Exec(`INSERT INTO schema_migrations (version) VALUES ($1)`, mig.Version); err != nil {
		return fmt.Errorf("failed to record %s: %w", mig.Name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s: %w", mig.Name, err)
	}

	m.log.Info().Str("migration", mig.Name).Msg("applied migration")
	return nil
}

// Run applies every pending migration in version order.
func (m *Migrator) Run() error {
	if !m.tracked() {
		m.log.Debug().Str("db_type", m.dbType).Msg("schema created on open, no migrations to run")
		return nil
	}

	status, err := m.Status()
	if err != nil {
		return err
	}

	applied := 0
	for _, s := range status {
		if s.Applied {
			continue
		}
		if err := m.ApplyMigration(s.Migration); err != nil {
			return err
		}
		applied++
	}

	m.log.Info().Int("applied", applied).Int("total", len(status)).Msg("migrations complete")
	return nil
}
