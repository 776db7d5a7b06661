// Package publish holds the latest frames produced by the pipeline for
// concurrent readers.
package publish

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// ErrNoFrame is returned when no frame has been published yet.
var ErrNoFrame = errors.New("no frame available")

// DefaultJPEGQuality is used when the publisher is created with quality 0.
const DefaultJPEGQuality = 90

// Publisher retains the latest annotated frame and the latest clean frame.
// Writers hand over ownership; readers always receive independent copies.
type Publisher struct {
	mu        sync.RWMutex
	annotated gocv.Mat
	clean     gocv.Mat
	has       bool
	updatedAt time.Time
	quality   int
}

// New creates a Publisher that encodes JPEGs at quality.
func New(quality int) *Publisher {
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	return &Publisher{quality: quality}
}

// SetFrames replaces both frame slots. The publisher takes ownership of
// annotated and clean and closes the frames they replace.
func (p *Publisher) SetFrames(annotated, clean gocv.Mat) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.has {
		p.annotated.Close()
		p.clean.Close()
	}
	p.annotated = annotated
	p.clean = clean
	p.has = true
	p.updatedAt = time.Now()
}

// LatestFrame returns a copy of the annotated frame. The caller owns it.
func (p *Publisher) LatestFrame() (gocv.Mat, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.has {
		return gocv.Mat{}, false
	}
	return p.annotated.Clone(), true
}

// LatestCleanFrame returns a copy of the undecorated frame. The caller owns it.
func (p *Publisher) LatestCleanFrame() (gocv.Mat, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.has {
		return gocv.Mat{}, false
	}
	return p.clean.Clone(), true
}

// LatestJPEG encodes the annotated frame.
func (p *Publisher) LatestJPEG() ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.has {
		return nil, ErrNoFrame
	}
	return EncodeJPEG(p.annotated, p.quality)
}

// CleanJPEG encodes the undecorated frame.
func (p *Publisher) CleanJPEG() ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.has {
		return nil, ErrNoFrame
	}
	return EncodeJPEG(p.clean, p.quality)
}

// UpdatedAt returns when frames were last published, zero if never.
func (p *Publisher) UpdatedAt() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.updatedAt
}

// Close releases both frames. Later reads report ErrNoFrame until the next
// SetFrames.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.has {
		p.annotated.Close()
		p.clean.Close()
	}
	p.has = false
}

// EncodeJPEG encodes mat and copies the bytes out of native memory.
func EncodeJPEG(mat gocv.Mat, quality int) ([]byte, error) {
	if mat.Empty() {
		return nil, ErrNoFrame
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, mat, []int{int(gocv.IMWriteJpegQuality), quality})
	if err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	defer buf.Close()

	src := buf.GetBytes()
	out := make([]byte, len(src))
	copy(out, src)
	return out, nil
}
