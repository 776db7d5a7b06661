package detector

import (
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"
)

// dnnInputSize is the square input edge the binary classifier was trained on.
const dnnInputSize = 224

// DNNClassifier locates a hand, crops it with padding and runs a binary
// image classifier over the crop. The network must take an NCHW RGB blob
// scaled to [0, 1] and emit either a single probability for class index 1
// or one probability per class.
type DNNClassifier struct {
	config  Config
	net     gocv.Net
	locator HandLocator
	mu      sync.Mutex
}

// NewDNNClassifier loads the model at config.ModelPath. A nil locator makes
// the classifier look at the whole frame.
func NewDNNClassifier(config Config, locator HandLocator) (*DNNClassifier, error) {
	if len(config.ClassNames) != 2 {
		return nil, fmt.Errorf("binary classifier needs 2 class names, got %d", len(config.ClassNames))
	}

	net, err := loadNet(config.ModelPath)
	if err != nil {
		return nil, err
	}

	return &DNNClassifier{
		config:  config,
		net:     net,
		locator: locator,
	}, nil
}

func loadNet(path string) (gocv.Net, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return gocv.Net{}, fmt.Errorf("%s: %w", path, ErrModelNotFound)
		}
		return gocv.Net{}, fmt.Errorf("stat model: %w", err)
	}

	net := gocv.ReadNet(path, "")
	if net.Empty() {
		net.Close()
		return gocv.Net{}, fmt.Errorf("load model %s: network is empty", path)
	}

	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return net, nil
}

// Detect classifies the hand in frame.
func (d *DNNClassifier) Detect(frame *gocv.Mat) (Result, error) {
	if frame == nil || frame.Empty() {
		return NoDetection(), nil
	}

	bounds := image.Rect(0, 0, frame.Cols(), frame.Rows())
	box := bounds
	crop := bounds

	if d.locator != nil {
		located, err := d.locator.Locate(frame)
		if err != nil {
			return NoDetection(), fmt.Errorf("locate hand: %w", err)
		}
		if located == nil {
			return NoDetection(), nil
		}
		box = located.Intersect(bounds)
		crop = PadBox(*located, d.config.Padding, bounds)
		if crop.Empty() {
			return NoDetection(), nil
		}
	}

	region := frame.Region(crop)
	defer region.Close()

	raw, err := d.predict(region)
	if err != nil {
		return NoDetection(), err
	}

	class, confidence := binaryDecision(classOneProbability(raw), d.config.ClassNames)

	return Result{
		Box:        &box,
		Label:      d.config.labelFor(class),
		Class:      class,
		Confidence: confidence,
		Raw:        raw,
	}, nil
}

func (d *DNNClassifier) predict(crop gocv.Mat) ([]float32, error) {
	blob := gocv.BlobFromImage(crop, 1.0/255.0, image.Pt(dnnInputSize, dnnInputSize),
		gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.mu.Lock()
	defer d.mu.Unlock()

	d.net.SetInput(blob, "")
	out := d.net.Forward("")
	defer out.Close()

	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read classifier output: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("classifier produced no output")
	}

	// DataPtrFloat32 aliases the Mat, which is closed on return.
	raw := make([]float32, len(data))
	copy(raw, data)
	return raw, nil
}

// classOneProbability reads p(class 1) from a sigmoid or softmax output.
func classOneProbability(raw []float32) float64 {
	if len(raw) == 1 {
		return float64(raw[0])
	}
	return float64(raw[1])
}

// binaryDecision picks the class whose probability is at least 0.5.
// p is the probability of names[1]; names[0] gets 1-p.
func binaryDecision(p float64, names []string) (string, float64) {
	if p >= 0.5 {
		return names[1], p
	}
	return names[0], 1 - p
}

// Close releases the network and the hand locator.
func (d *DNNClassifier) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var err error
	if d.locator != nil {
		err = d.locator.Close()
	}
	if cerr := d.net.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
