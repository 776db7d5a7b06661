package capture

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// MockCamera plays back pre-recorded frames for testing. Reads and opens can
// be scripted to fail so callers' recovery paths can be exercised.
type MockCamera struct {
	frames      []*gocv.Mat
	index       int
	loop        bool
	mu          sync.Mutex
	running     bool
	failReads   int
	failOpen    bool
	opens       int
	closes      int
	failedReads int
}

// NewMockCamera creates a MockCamera over frames. When loop is true playback
// wraps around instead of failing after the last frame.
func NewMockCamera(frames []*gocv.Mat, loop bool) *MockCamera {
	return &MockCamera{
		frames: frames,
		loop:   loop,
	}
}

func (c *MockCamera) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opens++
	if c.failOpen {
		return fmt.Errorf("mock: %w", ErrNoBackend)
	}
	c.running = true
	c.index = 0
	return nil
}

func (c *MockCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		c.closes++
	}
	c.running = false
	return nil
}

func (c *MockCamera) ReadFrame() (*Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		c.failedReads++
		return nil, ErrCameraNotOpen
	}

	if c.failReads > 0 {
		c.failReads--
		c.failedReads++
		return nil, errors.New("mock: scripted read failure")
	}

	if len(c.frames) == 0 {
		c.failedReads++
		return nil, fmt.Errorf("no frames available")
	}

	if c.index >= len(c.frames) {
		if c.loop {
			c.index = 0
		} else {
			c.failedReads++
			return nil, fmt.Errorf("no more frames")
		}
	}

	// Clone the frame so the original isn't modified
	mat := c.frames[c.index].Clone()
	c.index++

	return &Frame{Mat: mat, CapturedAt: time.Now()}, nil
}

func (c *MockCamera) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// SetFrames replaces the frame sequence
func (c *MockCamera) SetFrames(frames []*gocv.Mat) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = frames
	c.index = 0
}

// FailReads makes the next n reads fail regardless of available frames.
func (c *MockCamera) FailReads(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failReads = n
}

// FailOpen makes subsequent Open calls fail while set.
func (c *MockCamera) FailOpen(fail bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failOpen = fail
}

// Opens returns how many times Open was called.
func (c *MockCamera) Opens() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opens
}

// Closes returns how many times an open camera was closed.
func (c *MockCamera) Closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

// FailedReads returns the total number of failed reads.
func (c *MockCamera) FailedReads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failedReads
}

// Reset restarts playback from the beginning
func (c *MockCamera) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index = 0
}
