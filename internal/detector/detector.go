package detector

import (
	"errors"
	"image"
	"math"
	"strings"

	"gocv.io/x/gocv"
)

// ErrModelNotFound is returned when a classifier's model file does not exist.
var ErrModelNotFound = errors.New("model file not found")

// Label classifies a detection relative to the configured target gesture.
type Label int

const (
	// LabelNone means no hand or region of interest was found.
	LabelNone Label = iota
	// LabelOther means a hand was found but classified as a non-target gesture.
	LabelOther
	// LabelTarget means the classifier picked the target gesture.
	LabelTarget
)

func (l Label) String() string {
	switch l {
	case LabelTarget:
		return "target"
	case LabelOther:
		return "other"
	default:
		return "none"
	}
}

// Result is the outcome of running a detector over one frame.
type Result struct {
	// Box is the hand region in frame coordinates, nil when nothing was found.
	Box        *image.Rectangle
	Label      Label
	Class      string
	Confidence float64
	Raw        []float32
}

// NoDetection is the result for a frame with no hand.
func NoDetection() Result {
	return Result{Label: LabelNone}
}

// Qualifies reports whether r is the target gesture at or above threshold.
func (r Result) Qualifies(threshold float64) bool {
	return r.Label == LabelTarget && r.Confidence >= threshold
}

// Scaled returns a copy of r with its box multiplied by factor.
func (r Result) Scaled(factor float64) Result {
	if r.Box != nil {
		box := ScaleBox(*r.Box, factor)
		r.Box = &box
	}
	return r
}

// Detector defines the interface for gesture classifier backends.
type Detector interface {
	// Detect analyzes a video frame and returns the best hand detection.
	// A frame without a hand yields a LabelNone result, not an error.
	Detect(frame *gocv.Mat) (Result, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Config holds configuration shared by the classifier backends.
type Config struct {
	// ModelPath is the network file passed to OpenCV's DNN module.
	ModelPath string

	// ClassNames maps class indices to labels. The binary classifier uses
	// exactly two; index 1 is the class whose probability the model emits.
	ClassNames []string

	// Target is the class name that counts as the trigger gesture.
	Target string

	// Padding is added around the located hand before cropping.
	Padding int

	// MinScore discards detector boxes below this score (YOLO only).
	MinScore float64
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		ModelPath:  "models/gesture_classifier.onnx",
		ClassNames: []string{"fist", "palm"},
		Target:     "palm",
		Padding:    20,
		MinScore:   0.25,
	}
}

// ForInputScale adapts c to frames resized by scale before detection, so
// Padding still covers the same number of full-resolution pixels.
func (c Config) ForInputScale(scale float64) Config {
	if scale > 0 && scale != 1 {
		c.Padding = int(math.Round(float64(c.Padding) * scale))
	}
	return c
}

func (c Config) labelFor(class string) Label {
	if strings.EqualFold(class, c.Target) {
		return LabelTarget
	}
	return LabelOther
}
