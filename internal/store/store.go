// Package store provides durable storage for booth capture records.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested capture does not exist.
var ErrNotFound = errors.New("not found")

// Capture is one persisted photo. Records are never modified after Create.
type Capture struct {
	ID         string    `json:"id"`
	Path       string    `json:"path"`
	Image      []byte    `json:"-"`
	Gesture    string    `json:"gesture"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

// CaptureStore is implemented by every capture backend.
type CaptureStore interface {
	Create(ctx context.Context, c *Capture) error
	GetByID(ctx context.Context, id string) (*Capture, error)
	// List returns metadata without image bytes, newest first.
	List(ctx context.Context, limit int) ([]*Capture, error)
	Image(ctx context.Context, id string) ([]byte, error)
	Delete(ctx context.Context, id string) error
}

// Store represents a SQLite database connection for capture records.
type Store struct {
	db   *sql.DB
	path string
}

// New creates a new Store with the given database path.
// It creates the parent directory, opens the database and runs migrations.
func New(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows a single writer; serialize through one connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}
