// Package testdata builds synthetic camera frames for tests.
package testdata

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// SolidFrame returns a BGR frame of the given size filled with c.
func SolidFrame(width, height int, c color.RGBA) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(
		gocv.NewScalar(float64(c.B), float64(c.G), float64(c.R), 0),
		height, width, gocv.MatTypeCV8UC3,
	)
}

// HandFrame returns a grey frame with a skin-toned rectangle at box, which is
// enough for tests that only need distinguishable content.
func HandFrame(width, height int, box image.Rectangle) gocv.Mat {
	m := SolidFrame(width, height, color.RGBA{R: 90, G: 90, B: 90, A: 255})
	region := box.Intersect(image.Rect(0, 0, width, height))
	if !region.Empty() {
		gocv.Rectangle(&m, region, color.RGBA{R: 224, G: 172, B: 105, A: 255}, -1)
	}
	return m
}

// Sequence returns n frames of the given size with a slowly changing shade.
// Callers own the frames; release them with CloseAll.
func Sequence(n, width, height int) []*gocv.Mat {
	frames := make([]*gocv.Mat, 0, n)
	for i := 0; i < n; i++ {
		shade := uint8(40 + (i*10)%200)
		m := SolidFrame(width, height, color.RGBA{R: shade, G: shade, B: shade, A: 255})
		frames = append(frames, &m)
	}
	return frames
}

// CloseAll releases every frame.
func CloseAll(frames []*gocv.Mat) {
	for _, f := range frames {
		if f != nil {
			f.Close()
		}
	}
}
