package detector

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// yoloInputSize is the square input edge of YOLOv8 exports.
const yoloInputSize = 640

// YOLODetector runs a YOLOv8-style ONNX detector whose output is
// [1, 4+classes, anchors] with center-x, center-y, width, height rows
// followed by one score row per class.
type YOLODetector struct {
	config Config
	net    gocv.Net
	mu     sync.Mutex
}

// NewYOLODetector loads the model at config.ModelPath.
func NewYOLODetector(config Config) (*YOLODetector, error) {
	if len(config.ClassNames) == 0 {
		return nil, errors.New("yolo detector needs class names")
	}

	net, err := loadNet(config.ModelPath)
	if err != nil {
		return nil, err
	}

	return &YOLODetector{config: config, net: net}, nil
}

// Detect returns the highest-scoring box in frame.
func (d *YOLODetector) Detect(frame *gocv.Mat) (Result, error) {
	if frame == nil || frame.Empty() {
		return NoDetection(), nil
	}

	blob := gocv.BlobFromImage(*frame, 1.0/255.0, image.Pt(yoloInputSize, yoloInputSize),
		gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.mu.Lock()
	defer d.mu.Unlock()

	d.net.SetInput(blob, "")
	out := d.net.Forward("")
	defer out.Close()

	sizes := out.Size()
	if len(sizes) != 3 {
		return NoDetection(), fmt.Errorf("unexpected yolo output shape %v", sizes)
	}

	data, err := out.DataPtrFloat32()
	if err != nil {
		return NoDetection(), fmt.Errorf("read yolo output: %w", err)
	}

	return decodeYOLO(data, sizes[1], sizes[2], frame.Cols(), frame.Rows(), d.config), nil
}

// decodeYOLO picks the best box from a row-major [rows, anchors] output and
// maps it from network input space to a width x height frame.
func decodeYOLO(data []float32, rows, anchors, width, height int, config Config) Result {
	classes := rows - 4
	if classes <= 0 || len(data) < rows*anchors {
		return NoDetection()
	}

	bestAnchor, bestClass := -1, -1
	bestScore := float32(config.MinScore)
	for i := 0; i < anchors; i++ {
		for c := 0; c < classes; c++ {
			score := data[(4+c)*anchors+i]
			if score > bestScore {
				bestScore = score
				bestAnchor = i
				bestClass = c
			}
		}
	}

	if bestAnchor < 0 {
		return NoDetection()
	}

	sx := float64(width) / yoloInputSize
	sy := float64(height) / yoloInputSize
	cx := float64(data[bestAnchor])
	cy := float64(data[anchors+bestAnchor])
	w := float64(data[2*anchors+bestAnchor])
	h := float64(data[3*anchors+bestAnchor])

	box := image.Rect(
		int((cx-w/2)*sx), int((cy-h/2)*sy),
		int((cx+w/2)*sx), int((cy+h/2)*sy),
	).Intersect(image.Rect(0, 0, width, height))

	class := fmt.Sprintf("class_%d", bestClass)
	if bestClass < len(config.ClassNames) {
		class = config.ClassNames[bestClass]
	}

	return Result{
		Box:        &box,
		Label:      config.labelFor(class),
		Class:      class,
		Confidence: float64(bestScore),
	}
}

// Close releases the network.
func (d *YOLODetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}
