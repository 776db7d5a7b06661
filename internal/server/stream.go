package server

import (
	"fmt"
	"net/http"
	"sync"
	"time"
)

// DefaultStreamInterval is roughly 30 parts per second.
const DefaultStreamInterval = 33 * time.Millisecond

// FrameSource supplies the latest encoded frame.
type FrameSource interface {
	LatestJPEG() ([]byte, error)
}

// StreamHandler serves the latest published frame as MJPEG.
type StreamHandler struct {
	source   FrameSource
	interval time.Duration

	done      chan struct{}
	closeOnce sync.Once
}

// NewStreamHandler creates a StreamHandler that emits one part per interval.
func NewStreamHandler(source FrameSource, interval time.Duration) *StreamHandler {
	if interval <= 0 {
		interval = DefaultStreamInterval
	}
	return &StreamHandler{
		source:   source,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Close ends every open stream and makes new requests return immediately
// after the headers.
func (h *StreamHandler) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// ServeHTTP streams frames until the client disconnects or the handler is
// closed. Intervals with no frame available are skipped.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			return
		default:
		}

		if data, err := h.source.LatestJPEG(); err == nil {
			if err := writePart(w, data); err != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}

		select {
		case <-r.Context().Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
		}
	}
}

func writePart(w http.ResponseWriter, data []byte) error {
	if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(data)); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err := w.Write([]byte("\r\n"))
	return err
}
