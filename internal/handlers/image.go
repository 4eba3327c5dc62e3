package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/homefinder/apiserver/internal/storage"
)

// ImageOpener reads stored listing images.
type ImageOpener interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// ImageHandler streams listing images out of blob storage.
type ImageHandler struct {
	images ImageOpener
	logger *slog.Logger
}

func NewImageHandler(images ImageOpener, logger *slog.Logger) *ImageHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImageHandler{images: images, logger: logger}
}

// Serve handles GET /images/{key}, where key is the reference stored on the
// listing, e.g. /images/listings/<uuid>.jpg.
func (h *ImageHandler) Serve(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if !strings.HasPrefix(key, "listings/") || strings.Contains(key, "..") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	rc, err := h.images.Open(r.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		h.logger.Error("open image failed", "key", key, "err", err)
		writeError(w, http.StatusInternalServerError, "something went wrong")
		return
	}
	defer rc.Close()

	if contentType := mime.TypeByExtension(path.Ext(key)); contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("stream image interrupted", "key", key, "err", err)
	}
}
