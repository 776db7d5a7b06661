// Package capture provides camera capture functionality using GoCV (OpenCV).
package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// Default camera settings
const (
	DefaultWidth  = 1280
	DefaultHeight = 720
)

var (
	// ErrCameraNotOpen is returned when trying to read from a camera that is not open.
	ErrCameraNotOpen = errors.New("camera is not open")
	// ErrNoBackend is returned by Open when every capture backend failed.
	ErrNoBackend = errors.New("no capture backend could open the camera")
	// ErrEmptyFrame is returned when a grab succeeds but yields no pixels.
	ErrEmptyFrame = errors.New("captured frame is empty")
)

// Frame is a captured video frame. The owner must call Close.
type Frame struct {
	Mat        gocv.Mat
	CapturedAt time.Time
}

// Close releases the frame's pixel buffer.
func (f *Frame) Close() error {
	if f == nil {
		return nil
	}
	return f.Mat.Close()
}

// Camera is the sole producer of raw frames. A failed ReadFrame is an
// expected condition; retry policy belongs to the caller.
type Camera interface {
	Open() error
	Close() error
	ReadFrame() (*Frame, error)
	IsOpen() bool
}

// backendsByName maps configuration names to OpenCV capture APIs.
var backendsByName = map[string]gocv.VideoCaptureAPI{
	"any":          gocv.VideoCaptureAny,
	"v4l2":         gocv.VideoCaptureV4L2,
	"dshow":        gocv.VideoCaptureDshow,
	"msmf":         gocv.VideoCaptureMSMF,
	"avfoundation": gocv.VideoCaptureAVFoundation,
	"gstreamer":    gocv.VideoCaptureGstreamer,
	"ffmpeg":       gocv.VideoCaptureFFmpeg,
}

// DefaultBackends returns the fallback order for the current platform.
// Each list ends with the auto-detecting backend.
func DefaultBackends() []string {
	switch runtime.GOOS {
	case "windows":
		return []string{"dshow", "msmf", "any"}
	case "darwin":
		return []string{"avfoundation", "ffmpeg", "any"}
	default:
		return []string{"v4l2", "gstreamer", "any"}
	}
}

// Config holds the settings for a hardware camera.
type Config struct {
	DeviceID int
	Width    int
	Height   int
	Backends []string
}

// cameraImpl manages video capture from a camera device using GoCV.
type cameraImpl struct {
	config  Config
	capture *gocv.VideoCapture
	backend string
	mu      sync.Mutex
	running bool
}

// NewCamera creates a new Camera for the given device. Missing resolution and
// backend settings fall back to the defaults.
func NewCamera(config Config) Camera {
	if config.Width <= 0 {
		config.Width = DefaultWidth
	}
	if config.Height <= 0 {
		config.Height = DefaultHeight
	}
	if len(config.Backends) == 0 {
		config.Backends = DefaultBackends()
	}

	return &cameraImpl{config: config}
}

// Open tries each configured backend in order until one opens the device,
// then requests the configured resolution.
func (c *cameraImpl) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	for _, name := range c.config.Backends {
		api, ok := backendsByName[strings.ToLower(name)]
		if !ok {
			slog.Warn("unknown capture backend", "backend", name)
			continue
		}

		capture, err := gocv.OpenVideoCaptureWithAPI(c.config.DeviceID, api)
		if err != nil || !capture.IsOpened() {
			if capture != nil {
				capture.Close()
			}
			slog.Warn("capture backend failed", "backend", name, "device", c.config.DeviceID, "err", err)
			continue
		}

		capture.Set(gocv.VideoCaptureFrameWidth, float64(c.config.Width))
		capture.Set(gocv.VideoCaptureFrameHeight, float64(c.config.Height))

		c.capture = capture
		c.backend = name
		c.running = true

		slog.Info("camera opened", "device", c.config.DeviceID, "backend", name,
			"width", c.config.Width, "height", c.config.Height)
		return nil
	}

	return fmt.Errorf("device %d: %w", c.config.DeviceID, ErrNoBackend)
}

// Close closes the camera and releases resources. It is safe to call repeatedly.
func (c *cameraImpl) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		c.running = false
		return nil
	}

	err := c.capture.Close()
	c.capture = nil
	c.running = false
	c.backend = ""

	return err
}

// ReadFrame reads a single frame from the camera.
// The caller is responsible for closing the returned Frame.
func (c *cameraImpl) ReadFrame() (*Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		return nil, ErrCameraNotOpen
	}

	mat := gocv.NewMat()
	if ok := c.capture.Read(&mat); !ok {
		mat.Close()
		return nil, errors.New("failed to read frame from camera")
	}

	if mat.Empty() {
		mat.Close()
		return nil, ErrEmptyFrame
	}

	return &Frame{Mat: mat, CapturedAt: time.Now()}, nil
}

// IsOpen returns true if the camera is currently open and running.
func (c *cameraImpl) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.running
}

// Backend returns the name of the backend that opened the device, or "" when closed.
func (c *cameraImpl) Backend() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.backend
}
