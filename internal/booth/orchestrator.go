// Package booth runs the countdown-and-capture sequence.
package booth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/photobooth/internal/store"
)

// Snapshotter supplies the clean frame to save.
type Snapshotter interface {
	CleanJPEG() ([]byte, error)
}

// Arm is told when a capture sequence holds or releases the trigger.
type Arm interface {
	SetTriggerActive(active bool)
}

// RecordWriter persists capture records.
type RecordWriter interface {
	Create(ctx context.Context, c *store.Capture) error
}

// Hook is notified after every successful local save.
type Hook interface {
	OnCapture(c store.Capture)
}

// Config holds the sequence timing, output directory and collaborators.
type Config struct {
	Countdown     int
	Tick          time.Duration
	Cooldown      time.Duration
	Flash         time.Duration
	RecordTimeout time.Duration
	CapturesDir   string

	Frames  Snapshotter
	Arm     Arm
	Records RecordWriter
	Hooks   []Hook
}

// DefaultConfig returns the reference timing: 3-second countdown with
// one-second ticks, 0.5s flash and 2s cooldown.
func DefaultConfig() Config {
	return Config{
		Countdown:     3,
		Tick:          time.Second,
		Cooldown:      2 * time.Second,
		Flash:         500 * time.Millisecond,
		RecordTimeout: 5 * time.Second,
		CapturesDir:   "captures",
	}
}

// Orchestrator drives Idle -> CountingDown -> Capturing -> Cooldown -> Idle.
// At most one sequence runs at a time.
type Orchestrator struct {
	config Config

	mu         sync.Mutex
	state      State
	countdown  *int
	message    string
	flashUntil time.Time
	observers  []func(Status)

	wg sync.WaitGroup
}

// New creates an idle Orchestrator. Zero timing fields take the defaults.
func New(config Config) *Orchestrator {
	def := DefaultConfig()
	if config.Countdown <= 0 {
		config.Countdown = def.Countdown
	}
	if config.Tick <= 0 {
		config.Tick = def.Tick
	}
	if config.Cooldown <= 0 {
		config.Cooldown = def.Cooldown
	}
	if config.Flash <= 0 {
		config.Flash = def.Flash
	}
	if config.RecordTimeout <= 0 {
		config.RecordTimeout = def.RecordTimeout
	}
	if config.CapturesDir == "" {
		config.CapturesDir = def.CapturesDir
	}

	return &Orchestrator{config: config}
}

// Start begins a capture sequence for gesture and returns immediately.
// It returns false without doing anything unless the booth is idle.
func (o *Orchestrator) Start(gesture string, confidence float64) bool {
	o.mu.Lock()
	if o.state != Idle {
		o.mu.Unlock()
		return false
	}
	o.state = CountingDown
	o.countdown = nil
	o.message = MsgGetReady
	o.wg.Add(1)
	snap, observers := o.snapshotLocked(), o.observers
	o.mu.Unlock()

	if o.config.Arm != nil {
		o.config.Arm.SetTriggerActive(true)
	}
	notify(observers, snap)

	slog.Info("capture sequence started", "gesture", gesture, "confidence", confidence)
	go o.run(gesture, confidence)
	return true
}

func (o *Orchestrator) run(gesture string, confidence float64) {
	defer o.wg.Done()

	for k := o.config.Countdown; k > 0; k-- {
		n := k
		o.update(CountingDown, &n, strconv.Itoa(k))
		time.Sleep(o.config.Tick)
	}

	zero := 0
	o.update(Capturing, &zero, MsgSmile)

	o.capture(gesture, confidence)

	time.Sleep(o.config.Cooldown)

	o.update(Idle, nil, "")
	if o.config.Arm != nil {
		o.config.Arm.SetTriggerActive(false)
	}
	slog.Debug("capture sequence finished")
}

// capture saves the clean frame and moves to Cooldown with a result message.
func (o *Orchestrator) capture(gesture string, confidence float64) {
	zero := 0

	if o.config.Frames == nil {
		slog.Error("no frame source configured")
		o.update(Cooldown, &zero, MsgCaptureFailed)
		return
	}

	data, err := o.config.Frames.CleanJPEG()
	if err != nil || len(data) == 0 {
		slog.Error("no frame to save", "err", err)
		o.update(Cooldown, &zero, MsgCaptureFailed)
		return
	}

	now := time.Now()
	path, err := writeCapture(o.config.CapturesDir, now, data)
	if err != nil {
		slog.Error("local save failed", "err", err)
		o.update(Cooldown, &zero, MsgSaveFailed)
		return
	}

	o.mu.Lock()
	o.flashUntil = now.Add(o.config.Flash)
	o.mu.Unlock()
	o.update(Cooldown, &zero, MsgSaved)
	slog.Info("capture saved", "path", path, "bytes", len(data))

	rec := store.Capture{
		ID:         uuid.NewString(),
		Path:       path,
		Image:      data,
		Gesture:    gesture,
		Confidence: confidence,
		CreatedAt:  now,
	}

	if o.config.Records != nil {
		ctx, cancel := context.WithTimeout(context.Background(), o.config.RecordTimeout)
		if err := o.config.Records.Create(ctx, &rec); err != nil {
			slog.Warn("capture record not stored", "id", rec.ID, "err", err)
		}
		cancel()
	}

	for _, h := range o.config.Hooks {
		h.OnCapture(rec)
	}
}

// writeCapture stores data as capture_YYYYMMDD_HHMMSS.jpg under dir, adding
// a numeric suffix when a file from the same second already exists.
func writeCapture(dir string, at time.Time, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create captures dir: %w", err)
	}

	base := "capture_" + at.Format("20060102_150405")
	for i := 0; i < 100; i++ {
		name := base + ".jpg"
		if i > 0 {
			name = fmt.Sprintf("%s_%d.jpg", base, i)
		}
		path := filepath.Join(dir, name)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create %s: %w", path, err)
		}

		if _, err := f.Write(data); err != nil {
			f.Close()
			os.Remove(path)
			return "", fmt.Errorf("write %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("close %s: %w", path, err)
		}
		return path, nil
	}

	return "", fmt.Errorf("too many captures named %s", base)
}

func (o *Orchestrator) update(state State, countdown *int, message string) {
	o.mu.Lock()
	o.state = state
	o.countdown = countdown
	o.message = message
	snap, observers := o.snapshotLocked(), o.observers
	o.mu.Unlock()

	notify(observers, snap)
}

func notify(observers []func(Status), s Status) {
	for _, fn := range observers {
		fn(s)
	}
}

func (o *Orchestrator) snapshotLocked() Status {
	s := Status{
		Message: o.message,
		Flash:   time.Now().Before(o.flashUntil),
	}
	if o.countdown != nil {
		n := *o.countdown
		s.Countdown = &n
	}
	return s
}

// Status returns the current snapshot. Flash is evaluated against the clock
// on every call.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

// State returns the current phase.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Idle reports whether a new sequence may start.
func (o *Orchestrator) Idle() bool {
	return o.State() == Idle
}

// OnStatus registers fn to receive every snapshot the orchestrator publishes.
// fn runs on the sequence goroutine and must not block.
func (o *Orchestrator) OnStatus(fn func(Status)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.observers = append(o.observers, fn)
}

// Wait blocks until any in-flight sequence has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}
