package app

import (
	"image"
	"log/slog"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/photobooth/internal/detector"
)

// runPipeline is the frame loop. Each iteration:
// 1. Read a frame; on failure count it and reopen the camera every ReopenAfter failures
// 2. Mirror it and keep an undecorated copy for saving
// 3. Every SampleInterval frames, classify (optionally at half resolution)
// 4. Feed the result to the tracker and start a capture when it is stable
// 5. Annotate and publish
func (a *App) runPipeline(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	for {
		select {
		case <-stopCh:
			return
		default:
		}

		delay := a.config.FrameDelay
		if !a.processFrame() {
			delay = a.config.RetryDelay
		}

		select {
		case <-stopCh:
			return
		case <-time.After(delay):
		}
	}
}

// processFrame runs one pipeline iteration and reports whether a frame was read.
func (a *App) processFrame() bool {
	frame, err := a.camera.ReadFrame()
	if err != nil {
		a.readFailed(err)
		return false
	}
	defer frame.Close()

	a.stats.Lock()
	a.failures = 0
	a.stats.Unlock()

	annotated := gocv.NewMat()
	gocv.Flip(frame.Mat, &annotated, 1)
	clean := annotated.Clone()

	if a.IsEnabled() {
		if a.frameIdx%a.config.SampleInterval == 0 {
			a.last = a.sample(&annotated)
			a.tracker.Observe(a.last)

			if a.tracker.ShouldTrigger(a.config.MinFrames) && a.booth.Idle() {
				a.booth.Start(a.last.Class, a.last.Confidence)
			}
		}

		stable := a.last.Qualifies(a.tracker.Threshold()) && a.tracker.Stable(a.config.MinFrames)
		if err := detector.Annotate(&annotated, a.last, stable); err != nil {
			slog.Debug("annotation failed", "err", err)
		}
	} else {
		a.last = detector.NoDetection()
	}
	a.frameIdx++

	a.publisher.SetFrames(annotated, clean)
	return true
}

// sample classifies frame. Errors are logged and count as no detection.
func (a *App) sample(frame *gocv.Mat) detector.Result {
	target := frame
	scale := 1.0

	if a.config.Downscale {
		small := gocv.NewMat()
		defer small.Close()
		gocv.Resize(*frame, &small, image.Point{}, DownscaleFactor, DownscaleFactor, gocv.InterpolationLinear)
		target = &small
		scale = 1 / DownscaleFactor
	}

	result, err := a.detector.Detect(target)
	if err != nil {
		slog.Warn("classifier failed", "err", err)
		return detector.NoDetection()
	}

	if scale != 1 {
		result = result.Scaled(scale)
	}
	return result
}

func (a *App) readFailed(err error) {
	a.stats.Lock()
	a.failures++
	failures := a.failures
	a.stats.Unlock()

	if failures%WarnEvery == 0 {
		slog.Warn("camera read failing", "consecutive", failures, "err", err)
	}

	if failures < ReopenAfter {
		return
	}

	slog.Info("reopening camera", "consecutive_failures", failures)
	if err := a.camera.Close(); err != nil {
		slog.Warn("error releasing camera", "err", err)
	}
	if err := a.camera.Open(); err != nil {
		slog.Warn("camera reopen failed", "err", err)
	}

	a.stats.Lock()
	a.failures = 0
	a.reopens++
	a.stats.Unlock()
}
