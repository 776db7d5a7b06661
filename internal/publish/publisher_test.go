package publish

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"gocv.io/x/gocv"
)

func TestPublisher_Empty(t *testing.T) {
	p := New(0)

	if _, err := p.LatestJPEG(); !errors.Is(err, ErrNoFrame) {
		t.Errorf("LatestJPEG() error = %v, want ErrNoFrame", err)
	}
	if _, err := p.CleanJPEG(); !errors.Is(err, ErrNoFrame) {
		t.Errorf("CleanJPEG() error = %v, want ErrNoFrame", err)
	}
	if _, ok := p.LatestFrame(); ok {
		t.Error("LatestFrame() should report no frame")
	}
	if !p.UpdatedAt().IsZero() {
		t.Error("UpdatedAt() should be zero before the first publish")
	}

	// Close on an empty publisher must not panic.
	p.Close()
}

func TestPublisher_ReadsAreCopies(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	p := New(90)
	defer p.Close()

	black := gocv.NewScalar(0, 0, 0, 0)
	annotated := gocv.NewMatWithSizeFromScalar(black, 48, 64, gocv.MatTypeCV8UC3)
	clean := gocv.NewMatWithSizeFromScalar(black, 48, 64, gocv.MatTypeCV8UC3)
	p.SetFrames(annotated, clean)

	got, ok := p.LatestCleanFrame()
	if !ok {
		t.Fatal("LatestCleanFrame() reported no frame")
	}
	defer got.Close()

	// Writing into the copy must not leak into the published frame.
	got.SetUCharAt(0, 0, 200)

	again, _ := p.LatestCleanFrame()
	defer again.Close()
	if v := again.GetUCharAt(0, 0); v != 0 {
		t.Errorf("published frame changed to %d after mutating a copy", v)
	}
}

func TestPublisher_JPEG(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	p := New(90)

	annotated := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
	clean := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
	p.SetFrames(annotated, clean)

	data, err := p.CleanJPEG()
	if err != nil {
		t.Fatalf("CleanJPEG() error = %v", err)
	}
	if !bytes.HasPrefix(data, []byte{0xFF, 0xD8}) {
		t.Error("CleanJPEG() output lacks the JPEG SOI marker")
	}

	decoded, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		t.Fatalf("IMDecode() error = %v", err)
	}
	defer decoded.Close()
	if decoded.Cols() != 64 || decoded.Rows() != 48 {
		t.Errorf("decoded %dx%d, want 64x48", decoded.Cols(), decoded.Rows())
	}

	p.Close()
	if _, err := p.CleanJPEG(); !errors.Is(err, ErrNoFrame) {
		t.Errorf("CleanJPEG() after Close error = %v, want ErrNoFrame", err)
	}
}

func TestPublisher_ConcurrentAccess(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	p := New(80)
	defer p.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			p.SetFrames(
				gocv.NewMatWithSize(24, 32, gocv.MatTypeCV8UC3),
				gocv.NewMatWithSize(24, 32, gocv.MatTypeCV8UC3),
			)
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				if m, ok := p.LatestFrame(); ok {
					m.Close()
				}
				p.LatestJPEG()
			}
		}()
	}

	wg.Wait()
}
