// Package gesture turns per-frame classifier output into a debounced trigger.
package gesture

import (
	"sync"

	"github.com/ayusman/photobooth/internal/detector"
)

// Tracker counts consecutive qualifying detections. A single miss resets
// the count to zero. Results must be observed in frame order.
type Tracker struct {
	mu            sync.Mutex
	threshold     float64
	count         int
	triggerActive bool
}

// NewTracker creates a Tracker that counts target detections with
// confidence >= threshold.
func NewTracker(threshold float64) *Tracker {
	return &Tracker{threshold: threshold}
}

// Observe folds one detection result into the counter.
func (t *Tracker) Observe(r detector.Result) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if r.Qualifies(t.threshold) {
		t.count++
	} else {
		t.count = 0
	}
}

// ShouldTrigger reports whether at least minFrames consecutive qualifying
// results were observed and no capture is in progress. minFrames below 1
// is treated as 1.
func (t *Tracker) ShouldTrigger(minFrames int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if minFrames < 1 {
		minFrames = 1
	}
	return t.count >= minFrames && !t.triggerActive
}

// Stable reports whether the counter has reached minFrames, regardless of
// whether a capture is in progress.
func (t *Tracker) Stable(minFrames int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.count >= max(minFrames, 1)
}

// SetTriggerActive arms (false) or disarms (true) the trigger.
func (t *Tracker) SetTriggerActive(active bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.triggerActive = active
}

// TriggerActive reports whether a capture sequence holds the trigger.
func (t *Tracker) TriggerActive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.triggerActive
}

// Count returns the current run of consecutive qualifying results.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

// Threshold returns the confidence threshold.
func (t *Tracker) Threshold() float64 {
	return t.threshold
}

// Reset clears the counter and the trigger flag.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count = 0
	t.triggerActive = false
}
