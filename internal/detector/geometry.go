package detector

import (
	"image"
	"math"
)

// PadBox grows box by pad pixels on every side and clamps it to bounds.
func PadBox(box image.Rectangle, pad int, bounds image.Rectangle) image.Rectangle {
	return box.Inset(-pad).Intersect(bounds)
}

// ScaleBox multiplies every coordinate of r by factor, rounding to the
// nearest pixel. Used to map detections on a downscaled frame back to the
// full-resolution frame.
func ScaleBox(r image.Rectangle, factor float64) image.Rectangle {
	scale := func(v int) int { return int(math.Round(float64(v) * factor)) }
	return image.Rect(scale(r.Min.X), scale(r.Min.Y), scale(r.Max.X), scale(r.Max.Y))
}
