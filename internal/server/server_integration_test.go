package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/photobooth/internal/booth"
	"github.com/ayusman/photobooth/internal/store"
)

func TestAPI_MJPEGStream(t *testing.T) {
	frame := []byte{0xFF, 0xD8, 0x01, 0x02, 0x03, 0xFF, 0xD9}
	srv := New(Config{Source: &fakeSource{frame: frame}, StreamInterval: 5 * time.Millisecond})
	defer srv.Close()
	ts := httptest.NewServer(srv)
	defer ts.Close()

	for _, path := range []string{"/video_feed", "/api/stream"} {
		t.Run(path, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+path, nil)
			resp, err := ts.Client().Do(req)
			if err != nil {
				t.Fatalf("GET %s error = %v", path, err)
			}
			defer resp.Body.Close()

			mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
			if err != nil {
				t.Fatalf("bad Content-Type: %v", err)
			}
			if mediaType != "multipart/x-mixed-replace" || params["boundary"] != "frame" {
				t.Fatalf("Content-Type = %q", resp.Header.Get("Content-Type"))
			}

			mr := multipart.NewReader(resp.Body, "frame")
			for i := 0; i < 2; i++ {
				part, err := mr.NextPart()
				if err != nil {
					t.Fatalf("part %d: %v", i, err)
				}
				if ct := part.Header.Get("Content-Type"); ct != "image/jpeg" {
					t.Errorf("part Content-Type = %q, want image/jpeg", ct)
				}
				data, err := io.ReadAll(part)
				if err != nil {
					t.Fatalf("read part %d: %v", i, err)
				}
				if !bytes.Equal(data, frame) {
					t.Errorf("part %d = %x, want %x", i, data, frame)
				}
			}
		})
	}
}

func TestAPI_MJPEGStreamWaitsForFrames(t *testing.T) {
	src := &fakeSource{}
	srv := New(Config{Source: src, StreamInterval: 5 * time.Millisecond})
	defer srv.Close()
	ts := httptest.NewServer(srv)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/video_feed", nil)
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	time.Sleep(20 * time.Millisecond)
	src.mu.Lock()
	src.frame = []byte{0xFF, 0xD8, 0xFF, 0xD9}
	src.mu.Unlock()

	part, err := multipart.NewReader(resp.Body, "frame").NextPart()
	if err != nil {
		t.Fatalf("NextPart() error = %v", err)
	}
	part.Close()
}

func TestAPI_MJPEGStreamEndsOnClose(t *testing.T) {
	src := &fakeSource{frame: []byte{0xFF, 0xD8, 0xFF, 0xD9}}
	srv := New(Config{Source: src, StreamInterval: 5 * time.Millisecond})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/video_feed")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()

	part, err := multipart.NewReader(resp.Body, "frame").NextPart()
	if err != nil {
		t.Fatalf("NextPart() error = %v", err)
	}
	part.Close()

	// Shutdown order used by the binary: close the server, then the
	// pipeline stops publishing, then the HTTP server drains.
	srv.Close()
	src.mu.Lock()
	src.frame = nil
	src.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	start := time.Now()
	if err := ts.Config.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v after %v", err, time.Since(start))
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Shutdown() took %v with a stream open", elapsed)
	}

	done := make(chan struct{})
	go func() {
		io.Copy(io.Discard, resp.Body)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stream still open after Close()")
	}
}

func dialStatus(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws/status"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readStatus(t *testing.T, conn *websocket.Conn) booth.Status {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var s booth.Status
	if err := conn.ReadJSON(&s); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	return s
}

func TestAPI_StatusWebSocket(t *testing.T) {
	src := &fakeSource{status: booth.Status{Message: booth.MsgGetReady}}
	srv := New(Config{Source: src, StatusPoll: 5 * time.Millisecond})
	defer srv.Close()
	ts := httptest.NewServer(srv)
	defer ts.Close()

	conn := dialStatus(t, ts)

	initial := readStatus(t, conn)
	if initial.Message != booth.MsgGetReady || initial.Countdown != nil {
		t.Errorf("initial snapshot = %+v", initial)
	}

	// The broadcaster may repeat the unchanged snapshot once before it
	// records it as the last push.
	two := 2
	src.SetStatus(booth.Status{Countdown: &two, Message: "2"})

	deadline := time.Now().Add(2 * time.Second)
	for {
		s := readStatus(t, conn)
		if s.Message == "2" {
			if s.Countdown == nil || *s.Countdown != 2 {
				t.Errorf("countdown = %v, want 2", s.Countdown)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("changed status was never pushed")
		}
	}
}

func TestAPI_StatusWebSocket_ClientsTracked(t *testing.T) {
	srv := New(Config{Source: &fakeSource{}, StatusPoll: 5 * time.Millisecond})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	conn := dialStatus(t, ts)
	readStatus(t, conn)

	if got := srv.hub.Clients(); got != 1 {
		t.Errorf("Clients() = %d, want 1", got)
	}

	srv.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected connection to be closed by hub shutdown")
	}
	if got := srv.hub.Clients(); got != 0 {
		t.Errorf("Clients() = %d after Close, want 0", got)
	}
}

func TestAPI_CapturesGallery(t *testing.T) {
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer s.Close()

	repo := s.Captures()
	if err := repo.Create(context.Background(), &store.Capture{
		ID:      "cap-1",
		Path:    "captures/capture_20260301_120000.jpg",
		Image:   []byte{0xFF, 0xD8, 0xFF, 0xD9},
		Gesture: "palm",
	}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	srv := New(Config{Captures: repo})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	client := ts.Client()

	resp, err := client.Get(ts.URL + "/api/captures")
	if err != nil {
		t.Fatalf("GET /api/captures error = %v", err)
	}
	var listed struct {
		Captures []struct {
			ID       string `json:"id"`
			ImageURL string `json:"image_url"`
		} `json:"captures"`
	}
	json.NewDecoder(resp.Body).Decode(&listed)
	resp.Body.Close()

	if len(listed.Captures) != 1 || listed.Captures[0].ID != "cap-1" {
		t.Fatalf("captures = %+v", listed.Captures)
	}

	resp, err = client.Get(ts.URL + listed.Captures[0].ImageURL)
	if err != nil {
		t.Fatalf("GET image error = %v", err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK || !bytes.Equal(data, []byte{0xFF, 0xD8, 0xFF, 0xD9}) {
		t.Errorf("image status = %d, bytes = %x", resp.StatusCode, data)
	}

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/captures/cap-1", nil)
	resp, err = client.Do(req)
	if err != nil {
		t.Fatalf("DELETE error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("DELETE status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}

	resp, _ = client.Get(ts.URL + "/api/captures/cap-1")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET after delete status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestAPI_HealthCheck(t *testing.T) {
	srv := New(Config{})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatalf("GET /api/health error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var health struct {
		Status string `json:"status"`
		Uptime string `json:"uptime"`
	}
	json.NewDecoder(resp.Body).Decode(&health)

	if health.Status != "ok" {
		t.Errorf("status = %s, want ok", health.Status)
	}
}
