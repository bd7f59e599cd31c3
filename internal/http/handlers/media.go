package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/nukevideo/nukevideo/internal/models"
	"github.com/nukevideo/nukevideo/internal/service"
)

// MediaHandler exposes media item management: inspect, rename, delete,
// and signed playback URLs.
type MediaHandler struct {
	media  *service.MediaService
	vod    *service.VodService
	logger *slog.Logger
}

// NewMediaHandler creates a media handler. The VOD service may be nil
// when link signing is not configured.
func NewMediaHandler(media *service.MediaService, vod *service.VodService) *MediaHandler {
	return &MediaHandler{
		media:  media,
		vod:    vod,
		logger: slog.Default(),
	}
}

// WithLogger sets the logger.
func (h *MediaHandler) WithLogger(logger *slog.Logger) *MediaHandler {
	h.logger = logger
	return h
}

// Register mounts the media routes.
func (h *MediaHandler) Register(r chi.Router) {
	r.Route("/media/{id}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Patch("/", h.rename)
		r.Delete("/", h.delete)
		r.Get("/playback-url", h.playbackURL)
	})
}

func (h *MediaHandler) itemID(w http.ResponseWriter, r *http.Request) (models.ULID, bool) {
	id, err := models.ParseULID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid media item id", http.StatusBadRequest)
		return models.ULID{}, false
	}
	return id, true
}

func (h *MediaHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.itemID(w, r)
	if !ok {
		return
	}

	item, err := h.media.Get(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if item == nil {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(item)
}

func (h *MediaHandler) rename(w http.ResponseWriter, r *http.Request) {
	id, ok := h.itemID(w, r)
	if !ok {
		return
	}

	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid payload: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.media.Rename(r.Context(), id, body.Name); err != nil {
		if errors.Is(err, models.ErrNameRequired) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MediaHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.itemID(w, r)
	if !ok {
		return
	}

	if err := h.media.Delete(r.Context(), id); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MediaHandler) playbackURL(w http.ResponseWriter, r *http.Request) {
	id, ok := h.itemID(w, r)
	if !ok {
		return
	}
	if h.vod == nil {
		http.Error(w, "playback link signing not configured", http.StatusNotImplemented)
		return
	}

	base := r.URL.Query().Get("base")
	if base == "" {
		http.Error(w, "base query parameter required", http.StatusBadRequest)
		return
	}

	item, err := h.media.Get(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if item == nil {
		http.NotFound(w, r)
		return
	}
	if item.Status != models.StatusCompleted {
		http.Error(w, fmt.Sprintf("media item is %s", item.Status), http.StatusConflict)
		return
	}

	signed, err := h.vod.SignURL(base, id, 0, nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"url": signed})
}
