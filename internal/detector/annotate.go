package detector

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

var (
	colorStable   = color.RGBA{R: 0, G: 255, B: 0, A: 0}
	colorTracking = color.RGBA{R: 255, G: 255, B: 0, A: 0}
	colorNoHand   = color.RGBA{R: 255, G: 0, B: 0, A: 0}
)

// Annotate draws r onto frame. The box is green once the gesture is stable
// enough to trigger and yellow otherwise.
func Annotate(frame *gocv.Mat, r Result, stable bool) error {
	if r.Box == nil || r.Label == LabelNone {
		if err := gocv.PutText(frame, "No hand detected", image.Pt(10, 30),
			gocv.FontHersheySimplex, 0.7, colorNoHand, 2); err != nil {
			return fmt.Errorf("draw text: %w", err)
		}
		return nil
	}

	c := colorTracking
	if stable {
		c = colorStable
	}

	if err := gocv.Rectangle(frame, *r.Box, c, 2); err != nil {
		return fmt.Errorf("draw rectangle: %w", err)
	}

	label := fmt.Sprintf("%s %.2f", r.Class, r.Confidence)
	if err := gocv.PutText(frame, label, image.Pt(r.Box.Min.X, r.Box.Min.Y-10),
		gocv.FontHersheySimplex, 0.7, c, 2); err != nil {
		return fmt.Errorf("draw text: %w", err)
	}
	return nil
}
