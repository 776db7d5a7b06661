// Package app wires the camera, classifier, tracker, orchestrator and frame
// publisher into the running booth.
package app

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ayusman/photobooth/internal/booth"
	"github.com/ayusman/photobooth/internal/capture"
	"github.com/ayusman/photobooth/internal/detector"
	"github.com/ayusman/photobooth/internal/gesture"
	"github.com/ayusman/photobooth/internal/publish"
)

// Pipeline defaults.
const (
	// DefaultSampleInterval runs the classifier on every 5th frame.
	DefaultSampleInterval = 5
	// DefaultMinFrames is the run of qualifying samples that fires a capture.
	DefaultMinFrames = 5
	// DownscaleFactor shrinks frames on both axes before classification
	// when Downscale is set.
	DownscaleFactor = 0.5
	// DefaultThreshold is the minimum target confidence.
	DefaultThreshold = 0.85
	// WarnEvery logs a warning on every Nth consecutive read failure.
	WarnEvery = 20
	// ReopenAfter releases and reopens the camera after N consecutive failures.
	ReopenAfter = 50
	// FrameDelay is the yield between successful iterations.
	FrameDelay = 10 * time.Millisecond
	// RetryDelay is the pause after a failed read, so ReopenAfter failures
	// span about five seconds.
	RetryDelay = 100 * time.Millisecond
)

// ErrStopped is returned by Start once the App has released its resources.
var ErrStopped = errors.New("app: stopped")

// Config holds configuration options for the application.
type Config struct {
	Camera   capture.Camera
	Detector detector.Detector

	TriggerThreshold float64
	MinFrames        int
	SampleInterval   int
	Downscale        bool
	JPEGQuality      int

	// Booth configures the capture sequence. Frames and Arm are filled in by New.
	Booth booth.Config

	FrameDelay time.Duration
	RetryDelay time.Duration
}

// App owns the booth components and runs the frame pipeline.
type App struct {
	config    Config
	camera    capture.Camera
	detector  detector.Detector
	tracker   *gesture.Tracker
	booth     *booth.Orchestrator
	publisher *publish.Publisher

	mu      sync.RWMutex
	enabled bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	stopped     bool
	releaseOnce sync.Once

	// Pipeline state, touched only by the pipeline goroutine or by tests
	// driving processFrame directly.
	frameIdx int
	last     detector.Result
	failures int
	reopens  int
	stats    sync.Mutex
}

// New creates an App. The booth starts armed.
func New(config Config) (*App, error) {
	if config.Camera == nil {
		return nil, errors.New("app: camera is required")
	}
	if config.Detector == nil {
		return nil, errors.New("app: detector is required")
	}
	if config.TriggerThreshold <= 0 {
		config.TriggerThreshold = DefaultThreshold
	}
	if config.MinFrames <= 0 {
		config.MinFrames = DefaultMinFrames
	}
	if config.SampleInterval <= 0 {
		config.SampleInterval = DefaultSampleInterval
	}
	if config.FrameDelay <= 0 {
		config.FrameDelay = FrameDelay
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = RetryDelay
	}

	tracker := gesture.NewTracker(config.TriggerThreshold)
	publisher := publish.New(config.JPEGQuality)

	boothConfig := config.Booth
	boothConfig.Frames = publisher
	boothConfig.Arm = tracker

	return &App{
		config:    config,
		camera:    config.Camera,
		detector:  config.Detector,
		tracker:   tracker,
		booth:     booth.New(boothConfig),
		publisher: publisher,
		enabled:   true,
		last:      detector.NoDetection(),
	}, nil
}

// SetEnabled arms or pauses the trigger. A paused booth keeps streaming but
// stops sampling the classifier and forgets any partial run.
func (a *App) SetEnabled(enabled bool) {
	a.mu.Lock()
	changed := a.enabled != enabled
	a.enabled = enabled
	a.mu.Unlock()

	if changed && !enabled {
		a.tracker.Reset()
	}
	if changed {
		slog.Info("trigger armed state changed", "armed", enabled)
	}
}

// IsEnabled returns whether gesture triggering is armed.
func (a *App) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// Start opens the camera and begins the frame pipeline. A camera that fails
// to open is retried by the pipeline's reopen logic.
func (a *App) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopped {
		return ErrStopped
	}
	if a.stopCh != nil {
		return nil
	}

	if err := a.camera.Open(); err != nil {
		slog.Warn("camera not available, pipeline will keep retrying", "err", err)
	}

	a.stopCh = make(chan struct{})
	a.doneCh = make(chan struct{})
	go a.runPipeline(a.stopCh, a.doneCh)

	slog.Info("frame pipeline started")
	return nil
}

// Stop halts the pipeline, lets an in-flight capture finish and releases
// the camera, classifier and frames. Resources are released only once, so
// later calls are no-ops.
func (a *App) Stop() {
	a.mu.Lock()
	stopCh, doneCh := a.stopCh, a.doneCh
	a.stopCh, a.doneCh = nil, nil
	a.stopped = true
	a.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
		<-doneCh
	}

	a.booth.Wait()

	// The classifier owns native handles that must not be freed twice.
	a.releaseOnce.Do(func() {
		if err := a.camera.Close(); err != nil {
			slog.Warn("error closing camera", "err", err)
		}
		if err := a.detector.Close(); err != nil {
			slog.Warn("error closing detector", "err", err)
		}
		a.publisher.Close()

		slog.Info("frame pipeline stopped")
	})
}

// LatestJPEG returns the most recent annotated frame as JPEG.
func (a *App) LatestJPEG() ([]byte, error) {
	return a.publisher.LatestJPEG()
}

// Status returns the booth's UI snapshot.
func (a *App) Status() booth.Status {
	return a.booth.Status()
}

// OnStatus registers fn for every booth status transition.
func (a *App) OnStatus(fn func(booth.Status)) {
	a.booth.OnStatus(fn)
}

// Booth returns the capture orchestrator.
func (a *App) Booth() *booth.Orchestrator {
	return a.booth
}

// Tracker returns the stability tracker.
func (a *App) Tracker() *gesture.Tracker {
	return a.tracker
}

// Publisher returns the frame publisher.
func (a *App) Publisher() *publish.Publisher {
	return a.publisher
}

// Failures returns the current run of consecutive camera read failures.
func (a *App) Failures() int {
	a.stats.Lock()
	defer a.stats.Unlock()
	return a.failures
}

// Reopens returns how many times the pipeline reopened the camera.
func (a *App) Reopens() int {
	a.stats.Lock()
	defer a.stats.Unlock()
	return a.reopens
}
