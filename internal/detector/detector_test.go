package detector

import (
	"errors"
	"image"
	"math"
	"path/filepath"
	"testing"

	"gocv.io/x/gocv"
)

const epsilon = 1e-6

func TestResult_Qualifies(t *testing.T) {
	box := image.Rect(0, 0, 10, 10)

	tests := []struct {
		name      string
		result    Result
		threshold float64
		want      bool
	}{
		{"target above threshold", Target("palm", 0.95, box), 0.85, true},
		{"target exactly at threshold", Target("palm", 0.85, box), 0.85, true},
		{"target below threshold", Target("palm", 0.84, box), 0.85, false},
		{"other gesture", Other("fist", 0.99, box), 0.85, false},
		{"no hand", NoDetection(), 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.result.Qualifies(tt.threshold); got != tt.want {
				t.Errorf("Qualifies(%v) = %v, want %v", tt.threshold, got, tt.want)
			}
		})
	}
}

func TestResult_Scaled(t *testing.T) {
	r := Target("palm", 0.9, image.Rect(10, 20, 30, 40))

	scaled := r.Scaled(2)

	if want := image.Rect(20, 40, 60, 80); *scaled.Box != want {
		t.Errorf("scaled box = %v, want %v", *scaled.Box, want)
	}
	if *r.Box != image.Rect(10, 20, 30, 40) {
		t.Errorf("original box mutated to %v", *r.Box)
	}
	if scaled.Confidence != r.Confidence || scaled.Label != r.Label {
		t.Error("scaling must not change label or confidence")
	}

	if none := NoDetection().Scaled(2); none.Box != nil {
		t.Error("scaling a boxless result should keep Box nil")
	}
}

func TestPadBox(t *testing.T) {
	bounds := image.Rect(0, 0, 100, 100)

	tests := []struct {
		name string
		box  image.Rectangle
		want image.Rectangle
	}{
		{"interior", image.Rect(30, 30, 50, 50), image.Rect(10, 10, 70, 70)},
		{"clamped at origin", image.Rect(5, 5, 50, 50), image.Rect(0, 0, 70, 70)},
		{"clamped at far edge", image.Rect(80, 80, 95, 95), image.Rect(60, 60, 100, 100)},
		{"outside frame", image.Rect(200, 200, 220, 220), image.Rectangle{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PadBox(tt.box, 20, bounds)
			if !got.Eq(tt.want) {
				t.Errorf("PadBox(%v) = %v, want %v", tt.box, got, tt.want)
			}
			if !got.Empty() && !got.In(bounds) {
				t.Errorf("PadBox(%v) = %v escapes bounds %v", tt.box, got, bounds)
			}
		})
	}
}

func TestConfig_ForInputScale(t *testing.T) {
	cfg := DefaultConfig()

	if got := cfg.ForInputScale(1).Padding; got != 20 {
		t.Errorf("Padding at scale 1 = %d, want 20", got)
	}
	if got := cfg.ForInputScale(0).Padding; got != 20 {
		t.Errorf("Padding at scale 0 = %d, want 20", got)
	}

	half := cfg.ForInputScale(0.5)
	if half.Padding != 10 {
		t.Fatalf("Padding at scale 0.5 = %d, want 10", half.Padding)
	}
	if cfg.Padding != 20 {
		t.Error("ForInputScale modified the receiver")
	}

	// A crop padded on the half-size frame maps back to the same crop as
	// padding the full-size box by the default amount.
	fullBounds := image.Rect(0, 0, 640, 480)
	fullBox := image.Rect(100, 100, 200, 200)
	want := PadBox(fullBox, cfg.Padding, fullBounds)

	halfCrop := PadBox(ScaleBox(fullBox, 0.5), half.Padding, ScaleBox(fullBounds, 0.5))
	if got := ScaleBox(halfCrop, 2); !got.Eq(want) {
		t.Errorf("half-resolution crop scaled up = %v, want %v", got, want)
	}
}

func TestScaleBox_RoundTrip(t *testing.T) {
	full := image.Rect(101, 57, 641, 389)

	half := ScaleBox(full, 0.5)
	back := ScaleBox(half, 2)

	// Halving loses at most one pixel per coordinate.
	if d := back.Min.Sub(full.Min); abs(d.X) > 1 || abs(d.Y) > 1 {
		t.Errorf("min drifted by %v", d)
	}
	if d := back.Max.Sub(full.Max); abs(d.X) > 1 || abs(d.Y) > 1 {
		t.Errorf("max drifted by %v", d)
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func TestBinaryDecision(t *testing.T) {
	names := []string{"fist", "palm"}

	tests := []struct {
		p         float64
		wantClass string
		wantConf  float64
	}{
		{0.97, "palm", 0.97},
		{0.5, "palm", 0.5},
		{0.2, "fist", 0.8},
		{0, "fist", 1},
	}

	for _, tt := range tests {
		class, conf := binaryDecision(tt.p, names)
		if class != tt.wantClass || math.Abs(conf-tt.wantConf) > epsilon {
			t.Errorf("binaryDecision(%v) = (%s, %v), want (%s, %v)", tt.p, class, conf, tt.wantClass, tt.wantConf)
		}
	}
}

func TestClassOneProbability(t *testing.T) {
	if got := classOneProbability([]float32{0.25}); math.Abs(got-0.25) > epsilon {
		t.Errorf("sigmoid output = %v, want 0.25", got)
	}
	if got := classOneProbability([]float32{0.1, 0.9}); math.Abs(got-0.9) > epsilon {
		t.Errorf("softmax output = %v, want 0.9", got)
	}
}

func TestDecodeYOLO(t *testing.T) {
	config := DefaultConfig()
	const rows, anchors = 6, 3

	t.Run("best box is scaled to frame", func(t *testing.T) {
		data := make([]float32, rows*anchors)
		// anchor 1: 64x64 box centered in the network input
		data[0*anchors+1] = 320
		data[1*anchors+1] = 320
		data[2*anchors+1] = 64
		data[3*anchors+1] = 64
		data[5*anchors+1] = 0.9 // palm
		data[4*anchors+0] = 0.3 // weaker fist elsewhere

		r := decodeYOLO(data, rows, anchors, 1280, 720, config)

		if r.Label != LabelTarget || r.Class != "palm" {
			t.Fatalf("got label %v class %q, want target palm", r.Label, r.Class)
		}
		if math.Abs(r.Confidence-0.9) > epsilon {
			t.Errorf("confidence = %v, want 0.9", r.Confidence)
		}
		if want := image.Rect(576, 324, 704, 396); *r.Box != want {
			t.Errorf("box = %v, want %v", *r.Box, want)
		}
	})

	t.Run("scores below floor yield no detection", func(t *testing.T) {
		data := make([]float32, rows*anchors)
		data[4*anchors+2] = 0.1

		r := decodeYOLO(data, rows, anchors, 640, 640, config)
		if r.Label != LabelNone || r.Box != nil {
			t.Errorf("got %+v, want no detection", r)
		}
	})

	t.Run("short buffer", func(t *testing.T) {
		r := decodeYOLO(make([]float32, 4), rows, anchors, 640, 640, config)
		if r.Label != LabelNone {
			t.Errorf("got %+v, want no detection", r)
		}
	})
}

func TestHandLandmarks_BoundingBox(t *testing.T) {
	palm := OpenPalmLandmarks()

	box := palm.BoundingBox(640, 480)

	if want := image.Rect(217, 134, 467, 384); box != want {
		t.Errorf("BoundingBox() = %v, want %v", box, want)
	}
}

func TestParseHands(t *testing.T) {
	t.Run("hands", func(t *testing.T) {
		hands, err := parseHands([]byte(`{"hands":[{"points":[{"x":0.1,"y":0.2,"z":0},{"x":0.3,"y":0.4,"z":0}],"handedness":"Left","score":0.9}]}`))
		if err != nil {
			t.Fatalf("parseHands() error = %v", err)
		}
		if len(hands) != 1 {
			t.Fatalf("got %d hands, want 1", len(hands))
		}
		if got := hands[0].BoundingBox(100, 100); got != image.Rect(10, 20, 30, 40) {
			t.Errorf("BoundingBox() = %v, want (10,20)-(30,40)", got)
		}
	})

	t.Run("no hands", func(t *testing.T) {
		hands, err := parseHands([]byte(`{"hands":[]}`))
		if err != nil || len(hands) != 0 {
			t.Errorf("parseHands() = %v, %v; want empty, nil", hands, err)
		}
	})

	t.Run("service error", func(t *testing.T) {
		if _, err := parseHands([]byte(`{"error":"decode failed"}`)); err == nil {
			t.Error("expected error from service error field")
		}
	})

	t.Run("garbage", func(t *testing.T) {
		if _, err := parseHands([]byte("not json")); err == nil {
			t.Error("expected parse error")
		}
	})
}

func TestNewDNNClassifier_MissingModel(t *testing.T) {
	config := DefaultConfig()
	config.ModelPath = filepath.Join(t.TempDir(), "absent.onnx")

	_, err := NewDNNClassifier(config, nil)
	if !errors.Is(err, ErrModelNotFound) {
		t.Errorf("NewDNNClassifier() error = %v, want ErrModelNotFound", err)
	}
}

func TestNewYOLODetector_MissingModel(t *testing.T) {
	config := DefaultConfig()
	config.ModelPath = filepath.Join(t.TempDir(), "absent.onnx")

	_, err := NewYOLODetector(config)
	if !errors.Is(err, ErrModelNotFound) {
		t.Errorf("NewYOLODetector() error = %v, want ErrModelNotFound", err)
	}
}

func TestNewMediaPipeLocator_MissingScript(t *testing.T) {
	if _, err := NewMediaPipeLocator(filepath.Join(t.TempDir(), "nope.py")); err == nil {
		t.Error("expected error for missing script")
	}
}

func TestMockDetector(t *testing.T) {
	t.Run("returns no hand by default", func(t *testing.T) {
		mock := NewMockDetector()

		r, err := mock.Detect(nil)

		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if r.Label != LabelNone {
			t.Errorf("expected LabelNone, got %v", r.Label)
		}
	})

	t.Run("queue before fallback", func(t *testing.T) {
		mock := NewMockDetector()
		box := image.Rect(0, 0, 5, 5)
		mock.SetResult(Other("fist", 0.7, box))
		mock.Enqueue(Target("palm", 0.9, box), Target("palm", 0.95, box))

		want := []Label{LabelTarget, LabelTarget, LabelOther, LabelOther}
		for i, w := range want {
			r, _ := mock.Detect(nil)
			if r.Label != w {
				t.Errorf("call %d label = %v, want %v", i, r.Label, w)
			}
		}
		if mock.Calls() != len(want) {
			t.Errorf("Calls() = %d, want %d", mock.Calls(), len(want))
		}
	})

	t.Run("returns configured error", func(t *testing.T) {
		mock := NewMockDetector()

		expectedErr := errors.New("detection failed")
		mock.SetError(expectedErr)

		r, err := mock.Detect(nil)

		if err != expectedErr {
			t.Errorf("expected error %v, got %v", expectedErr, err)
		}
		if r.Label != LabelNone {
			t.Errorf("expected no detection alongside error, got %v", r.Label)
		}
	})

	t.Run("Close", func(t *testing.T) {
		mock := NewMockDetector()

		if err := mock.Close(); err != nil {
			t.Errorf("expected Close to return nil, got %v", err)
		}
		if !mock.Closed() {
			t.Error("Closed() should report true")
		}
	})

	t.Run("implements Detector interface", func(t *testing.T) {
		var _ Detector = (*MockDetector)(nil)
		var _ Detector = (*DNNClassifier)(nil)
		var _ Detector = (*YOLODetector)(nil)
		var _ HandLocator = (*MediaPipeLocator)(nil)
	})
}

func TestAnnotate(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	frame := gocv.NewMatWithSize(120, 160, gocv.MatTypeCV8UC3)
	defer frame.Close()

	if err := Annotate(&frame, NoDetection(), false); err != nil {
		t.Errorf("Annotate(no hand) error = %v", err)
	}

	r := Target("palm", 0.91, image.Rect(40, 40, 80, 80))
	if err := Annotate(&frame, r, true); err != nil {
		t.Errorf("Annotate(target) error = %v", err)
	}

	// Stable boxes are drawn in green (BGR 0,255,0).
	px := frame.GetVecbAt(40, 60)
	if px[0] != 0 || px[1] != 255 || px[2] != 0 {
		t.Errorf("box edge pixel = %v, want green", px)
	}
}
