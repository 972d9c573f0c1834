package database

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

type DB struct {
	conn   *sql.DB
	dbType string
}

type Config struct {
	Type string
	// URL, when set, is used as the postgres DSN as-is.
	URL        string
	Host       string
	Port       int
	User       string
	Password   string
	Name       string
	SQLitePath string
}

func (c Config) postgresDSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.Host, c.Port, c.User, c.Password, c.Name)
}

func (c Config) sqliteDSN() string {
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate&_foreign_keys=on", c.SQLitePath)
}

// Describe returns a loggable form of the connection target without
// credentials.
func (c Config) Describe() string {
	if c.Type == "sqlite" {
		return c.SQLitePath
	}
	if c.URL != "" {
		return "DATABASE_URL"
	}
	return fmt.Sprintf("%s@%s:%d/%s", c.User, c.Host, c.Port, c.Name)
}

func NewDB(config Config) (*DB, error) {
	var conn *sql.DB
	var err error

	switch config.Type {
	case "sqlite":
		conn, err = sql.Open("sqlite3", config.sqliteDSN())
	case "postgres":
		conn, err = sql.Open("pgx", config.postgresDSN())
	default:
		return nil, fmt.Errorf("unsupported database type: %s", config.Type)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows one writer; a single connection keeps immediate
	// transactions from contending with each other.
	if config.Type == "sqlite" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{conn: conn, dbType: config.Type}

	// Only create tables for SQLite
	if config.Type == "sqlite" {
		if err := db.createTables(); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to create tables: %w", err)
		}
	}

	return db, nil
}

func (db *DB) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS detection_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		detection_id TEXT NOT NULL UNIQUE,
		filename TEXT NOT NULL,
		total_objects INTEGER NOT NULL,
		image_width INTEGER NOT NULL,
		image_height INTEGER NOT NULL,
		processing_time REAL NOT NULL,
		confidence_threshold REAL NOT NULL,
		detections TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_detection_logs_created_at
		ON detection_logs (created_at DESC, id);

	CREATE TABLE IF NOT EXISTS model_metrics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		model_name TEXT NOT NULL UNIQUE,
		model_version TEXT NOT NULL,
		total_classes INTEGER NOT NULL,
		average_inference_time REAL NOT NULL,
		total_detections INTEGER NOT NULL DEFAULT 0,
		last_updated DATETIME NOT NULL,
		notes TEXT NOT NULL DEFAULT ''
	);
	`

	_, err := db.conn.Exec(query)
	return err
}

// RunMigrations applies the embedded postgres migrations. SQLite tables
// are created on open, so this is a no-op there.
func (db *DB) RunMigrations(log zerolog.Logger) error {
	m, err := NewMigrator(db.conn, db.dbType, log)
	if err != nil {
		return err
	}
	return m.Run()
}

func (db *DB) Type() string {
	return db.dbType
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) Conn() *sql.DB {
	return db.conn
}
