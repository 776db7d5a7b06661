package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// DefaultListLimit bounds List when the caller passes a non-positive limit.
const DefaultListLimit = 50

// CaptureRepository provides operations for capture records.
type CaptureRepository struct {
	db *sql.DB
}

// Captures returns the capture repository for this store.
func (s *Store) Captures() *CaptureRepository {
	return &CaptureRepository{db: s.db}
}

// Create inserts a new capture. A zero CreatedAt is set to now.
func (r *CaptureRepository) Create(ctx context.Context, c *Capture) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	c.CreatedAt = c.CreatedAt.UTC()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO captures (id, path, image, gesture, confidence, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.Path, c.Image, c.Gesture, c.Confidence, c.CreatedAt,
	)
	return err
}

// GetByID retrieves a capture, including its image bytes.
func (r *CaptureRepository) GetByID(ctx context.Context, id string) (*Capture, error) {
	c := &Capture{}

	err := r.db.QueryRowContext(ctx,
		`SELECT id, path, image, gesture, confidence, created_at
		 FROM captures WHERE id = ?`,
		id,
	).Scan(&c.ID, &c.Path, &c.Image, &c.Gesture, &c.Confidence, &c.CreatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return c, nil
}

// List retrieves capture metadata, newest first.
func (r *CaptureRepository) List(ctx context.Context, limit int) ([]*Capture, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, path, gesture, confidence, created_at
		 FROM captures ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var captures []*Capture
	for rows.Next() {
		c := &Capture{}
		if err := rows.Scan(&c.ID, &c.Path, &c.Gesture, &c.Confidence, &c.CreatedAt); err != nil {
			return nil, err
		}
		captures = append(captures, c)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return captures, nil
}

// Image returns only the image bytes of a capture.
func (r *CaptureRepository) Image(ctx context.Context, id string) ([]byte, error) {
	var data []byte

	err := r.db.QueryRowContext(ctx, `SELECT image FROM captures WHERE id = ?`, id).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return data, nil
}

// Delete removes a capture record. The file on disk is left in place.
func (r *CaptureRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM captures WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}
