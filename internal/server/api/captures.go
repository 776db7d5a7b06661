// Package api provides HTTP API handlers for the photo booth.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ayusman/photobooth/internal/store"
)

// CapturesHandler serves the captures gallery.
type CapturesHandler struct {
	store store.CaptureStore
}

// NewCapturesHandler creates a CapturesHandler. A nil store answers every
// request with 404.
func NewCapturesHandler(s store.CaptureStore) *CapturesHandler {
	return &CapturesHandler{store: s}
}

// ServeHTTP routes /api/captures, /api/captures/{id} and /api/captures/{id}/image.
func (h *CapturesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusNotFound, "Capture store not configured")
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/captures")
	path = strings.Trim(path, "/")

	if path == "" {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.list(w, r)
		return
	}

	id, sub, _ := strings.Cut(path, "/")
	switch {
	case sub == "image" && r.Method == http.MethodGet:
		h.image(w, r, id)
	case sub != "":
		writeError(w, http.StatusNotFound, "Not found")
	case r.Method == http.MethodGet:
		h.get(w, r, id)
	case r.Method == http.MethodDelete:
		h.delete(w, r, id)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

type captureResponse struct {
	ID         string  `json:"id"`
	Path       string  `json:"path"`
	Gesture    string  `json:"gesture"`
	Confidence float64 `json:"confidence"`
	CreatedAt  string  `json:"created_at"`
	ImageURL   string  `json:"image_url"`
}

type listCapturesResponse struct {
	Captures []captureResponse `json:"captures"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func toResponse(c *store.Capture) captureResponse {
	return captureResponse{
		ID:         c.ID,
		Path:       c.Path,
		Gesture:    c.Gesture,
		Confidence: c.Confidence,
		CreatedAt:  c.CreatedAt.Format(time.RFC3339),
		ImageURL:   "/api/captures/" + c.ID + "/image",
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// list handles GET /api/captures?limit=N.
func (h *CapturesHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := store.DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	captures, err := h.store.List(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list captures")
		return
	}

	response := listCapturesResponse{
		Captures: make([]captureResponse, 0, len(captures)),
	}
	for _, c := range captures {
		response.Captures = append(response.Captures, toResponse(c))
	}

	writeJSON(w, http.StatusOK, response)
}

// get handles GET /api/captures/{id}.
func (h *CapturesHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	c, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Capture not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get capture")
		return
	}

	writeJSON(w, http.StatusOK, toResponse(c))
}

// image handles GET /api/captures/{id}/image.
func (h *CapturesHandler) image(w http.ResponseWriter, r *http.Request, id string) {
	data, err := h.store.Image(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Capture not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to read capture")
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}

// delete handles DELETE /api/captures/{id}. The file on disk is left alone.
func (h *CapturesHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.store.Delete(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Capture not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete capture")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
