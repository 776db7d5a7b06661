// Package postgres stores capture records in PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ayusman/photobooth/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS captures (
	id TEXT PRIMARY KEY,
	path TEXT NOT NULL,
	image BYTEA NOT NULL,
	gesture TEXT NOT NULL DEFAULT '',
	confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_captures_created_at ON captures(created_at);
`

// Storage manages capture records in PostgreSQL.
type Storage struct {
	pool *pgxpool.Pool
}

// New connects to databaseURL, verifies the connection and ensures the schema exists.
func New(ctx context.Context, databaseURL string) (*Storage, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Storage{pool: pool}, nil
}

// Close closes the connection pool.
func (s *Storage) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Create inserts a new capture. A zero CreatedAt is set to now.
func (s *Storage) Create(ctx context.Context, c *store.Capture) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO captures (id, path, image, gesture, confidence, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.Path, c.Image, c.Gesture, c.Confidence, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert capture: %w", err)
	}
	return nil
}

// GetByID retrieves a capture, including its image bytes.
func (s *Storage) GetByID(ctx context.Context, id string) (*store.Capture, error) {
	c := &store.Capture{}

	err := s.pool.QueryRow(ctx,
		`SELECT id, path, image, gesture, confidence, created_at
		 FROM captures WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.Path, &c.Image, &c.Gesture, &c.Confidence, &c.CreatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load capture: %w", err)
	}
	return c, nil
}

// List retrieves capture metadata, newest first.
func (s *Storage) List(ctx context.Context, limit int) ([]*store.Capture, error) {
	if limit <= 0 {
		limit = store.DefaultListLimit
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, path, gesture, confidence, created_at
		 FROM captures ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list captures: %w", err)
	}
	defer rows.Close()

	var captures []*store.Capture
	for rows.Next() {
		c := &store.Capture{}
		if err := rows.Scan(&c.ID, &c.Path, &c.Gesture, &c.Confidence, &c.CreatedAt); err != nil {
			return nil, err
		}
		captures = append(captures, c)
	}

	return captures, rows.Err()
}

// Image returns only the image bytes of a capture.
func (s *Storage) Image(ctx context.Context, id string) ([]byte, error) {
	var data []byte

	err := s.pool.QueryRow(ctx, `SELECT image FROM captures WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load image: %w", err)
	}
	return data, nil
}

// Delete removes a capture record.
func (s *Storage) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM captures WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete capture: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}
