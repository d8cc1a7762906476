package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go-cube-export/internal/model"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

const (
	// DriverMattn is the cgo driver registered by github.com/mattn/go-sqlite3.
	DriverMattn = "sqlite3"
	// DriverModernc is the pure-Go driver registered by modernc.org/sqlite.
	DriverModernc = "sqlite"
)

// SQLStore implements MetadataStore, RunLog and StatusReader on SQLite.
type SQLStore struct {
	db     *sql.DB
	driver string
	path   string
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS "groups" (
		ID INTEGER PRIMARY KEY,
		Name TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS processes (
		ProcessID INTEGER PRIMARY KEY,
		Process TEXT NOT NULL,
		Enabled INTEGER NOT NULL DEFAULT 1,
		GroupID INTEGER,
		Archived INTEGER NOT NULL DEFAULT 0,
		Fields TEXT,
		RepeatingFields TEXT,
		Added TEXT,
		Modified TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS forms (
		ProcessID INTEGER NOT NULL,
		Form INTEGER NOT NULL,
		Archived INTEGER NOT NULL DEFAULT 0,
		Completed INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (ProcessID, Form)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_forms_pending ON forms(ProcessID, Completed)`,
	`CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		exported INTEGER NOT NULL DEFAULT 0,
		started_at TEXT NOT NULL,
		finished_at TEXT
	)`,
}

// Open connects to the database at path, creating the file and schema if needed.
// Connection failures wrap model.ErrStoreConnection.
func Open(ctx context.Context, driver, path string) (*SQLStore, error) {
	switch driver {
	case "":
		driver = DriverMattn
	case DriverMattn, DriverModernc:
	default:
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}

	if !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open(driver, dsn(driver, path))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStoreConnection, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", model.ErrStoreConnection, err)
	}
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &SQLStore{db: db, driver: driver, path: path}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// dsn attaches busy timeout and WAL settings in each driver's own syntax so
// every pooled connection gets them, not just the first.
func dsn(driver, path string) string {
	name := path
	if !strings.HasPrefix(name, "file:") {
		name = "file:" + name
	}
	sep := "?"
	if strings.Contains(name, "?") {
		sep = "&"
	}
	if driver == DriverModernc {
		return name + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	return name + sep + "_busy_timeout=5000&_journal_mode=WAL"
}

func (s *SQLStore) initSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

// Driver reports which SQLite driver backs the store.
func (s *SQLStore) Driver() string { return s.driver }

// Close closes the underlying pool.
func (s *SQLStore) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Session checks out a dedicated connection for one worker.
func (s *SQLStore) Session(ctx context.Context) (FormSession, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStoreConnection, err)
	}
	return &Session{conn: conn}, nil
}

// Session is a worker-owned connection.
type Session struct {
	conn *sql.Conn
}

// MarkFormComplete sets Completed for one form.
func (s *Session) MarkFormComplete(ctx context.Context, processID, formID int64) error {
	res, err := s.conn.ExecContext(ctx,
		`UPDATE forms SET Completed = 1 WHERE ProcessID = ? AND Form = ?`, processID, formID)
	if err != nil {
		return fmt.Errorf("failed to mark form %d complete: %w", formID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("form %d of process %d: %w", formID, processID, model.ErrNotFound)
	}
	return nil
}

// Close returns the connection to the pool.
func (s *Session) Close() error {
	return s.conn.Close()
}
