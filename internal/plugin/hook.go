package plugin

import (
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/ayusman/photobooth/internal/store"
)

// CaptureHook runs every plugin that handles ActionCapture after a capture
// is saved. Runs are fire-and-forget; failures are only logged.
type CaptureHook struct {
	manager  *Manager
	executor *Executor
	wg       sync.WaitGroup
}

// NewCaptureHook creates a CaptureHook over already discovered plugins.
func NewCaptureHook(manager *Manager, executor *Executor) *CaptureHook {
	return &CaptureHook{manager: manager, executor: executor}
}

// OnCapture starts one plugin run per capture plugin and returns at once.
func (h *CaptureHook) OnCapture(c store.Capture) {
	plugins := h.manager.ForAction(ActionCapture)
	if len(plugins) == 0 {
		return
	}

	// Plugins run from their own directory.
	path := c.Path
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}

	params, err := json.Marshal(CaptureParams{
		ID:        c.ID,
		Path:      path,
		Timestamp: c.CreatedAt,
	})
	if err != nil {
		slog.Warn("capture hook params", "err", err)
		return
	}

	for _, p := range plugins {
		config := p.Manifest.Config
		if len(config) == 0 {
			config = json.RawMessage(`{}`)
		}
		req := &Request{
			Action:  ActionCapture,
			Gesture: c.Gesture,
			Config:  config,
			Params:  params,
		}

		h.wg.Add(1)
		go func(p *Plugin) {
			defer h.wg.Done()

			resp, err := h.executor.Execute(context.Background(), p, req)
			switch {
			case err != nil:
				slog.Warn("capture hook failed", "plugin", p.Manifest.Name, "err", err)
			case !resp.Success:
				slog.Warn("capture hook reported an error", "plugin", p.Manifest.Name, "error", resp.Error)
			default:
				slog.Debug("capture hook done", "plugin", p.Manifest.Name, "capture", c.ID)
			}
		}(p)
	}
}

// Wait blocks until every started plugin run has returned.
func (h *CaptureHook) Wait() {
	h.wg.Wait()
}
