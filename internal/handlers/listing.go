package handlers

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/homefinder/apiserver/internal/policy"
	"github.com/homefinder/apiserver/internal/services"
	"github.com/homefinder/apiserver/types"
)

const (
	maxFormMemory     = 8 << 20
	formFieldImage    = "image"
	multipartOverhead = 1 << 20
)

// ListingHandler provides HTTP handlers for the listing lifecycle.
type ListingHandler struct {
	listingService *services.ListingService
	logger         *slog.Logger
}

func NewListingHandler(listingService *services.ListingService, logger *slog.Logger) *ListingHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ListingHandler{listingService: listingService, logger: logger}
}

// ListingRouter registers /listings routes. Messages hang off a listing and
// are registered by the message handler.
func ListingRouter(r chi.Router, handler *ListingHandler, messages *MessageHandler) {
	r.With(RequireAuth).Get("/new", handler.FormOptions)
	r.With(RequireAuth).Post("/", handler.Create)
	r.Route("/{listingID}", func(r chi.Router) {
		r.Get("/", handler.View)
		r.With(RequireAuth).Put("/", handler.Edit)
		r.With(RequireAuth).Delete("/", handler.Delete)
		r.With(RequireAuth).Post("/image", handler.AttachImage)
		if messages != nil {
			r.Route("/messages", func(r chi.Router) {
				MessageRouter(r, messages)
			})
		}
	})
}

// OwnedListings serves one page of the caller's listings. A missing or
// malformed page sends the caller to the first page.
func (h *ListingHandler) OwnedListings(w http.ResponseWriter, r *http.Request) {
	page, err := services.ParsePage(r.URL.Query().Get("page"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	result, err := h.listingService.ListOwned(r.Context(), actorFromContext(r.Context()), page, services.DefaultPageSize)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *ListingHandler) FormOptions(w http.ResponseWriter, r *http.Request) {
	opts, err := h.listingService.FormOptions(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, opts)
}

func (h *ListingHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req services.ListingInput
	if err := decodeInput(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	listing, err := h.listingService.Create(r.Context(), actorFromContext(r.Context()), req)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/listings/%d", listing.ID))
	writeJSON(w, http.StatusCreated, listing)
}

func (h *ListingHandler) View(w http.ResponseWriter, r *http.Request) {
	id, err := parseListingID(r)
	if err != nil {
		writeServiceError(w, r, h.logger, &services.DenialError{Op: policy.OpView, Reason: policy.ReasonNotFound})
		return
	}

	actor := actorFromContext(r.Context())
	detail, err := h.listingService.View(r.Context(), actor, id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ListingView{ListingDetail: detail, IsOwner: actor.Is(detail.OwnerID)})
}

func (h *ListingHandler) Edit(w http.ResponseWriter, r *http.Request) {
	id, err := parseListingID(r)
	if err != nil {
		writeServiceError(w, r, h.logger, &services.DenialError{Op: policy.OpEdit, Reason: policy.ReasonNotFound})
		return
	}

	var req services.ListingInput
	if err := decodeInput(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	listing, err := h.listingService.Edit(r.Context(), actorFromContext(r.Context()), id, req)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

// AttachImage accepts the multipart "image" field and publishes the listing.
func (h *ListingHandler) AttachImage(w http.ResponseWriter, r *http.Request) {
	id, err := parseListingID(r)
	if err != nil {
		writeServiceError(w, r, h.logger, &services.DenialError{Op: policy.OpAttachImage, Reason: policy.ReasonNotFound})
		return
	}

	limit := h.listingService.MaxImageBytes()
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusUnprocessableEntity, ValidationResponse{Errors: []services.FieldError{
				{Field: formFieldImage, Message: "Image is too large"},
			}})
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	data, err := readFormFile(r, formFieldImage, limit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid image upload")
		return
	}

	listing, err := h.listingService.AttachImage(r.Context(), actorFromContext(r.Context()), id, data)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func (h *ListingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseListingID(r)
	if err != nil {
		writeServiceError(w, r, h.logger, &services.DenialError{Op: policy.OpDelete, Reason: policy.ReasonNotFound})
		return
	}

	if err := h.listingService.Delete(r.Context(), actorFromContext(r.Context()), id); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PublishedListings feeds the public map.
func (h *ListingHandler) PublishedListings(w http.ResponseWriter, r *http.Request) {
	listings, err := h.listingService.ListPublished(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, listings)
}

// readFormFile returns the uploaded file, reading at most limit+1 bytes so
// the service can tell an oversized upload apart. A missing field is empty.
func readFormFile(r *http.Request, field string, limit int64) ([]byte, error) {
	file, _, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(io.LimitReader(file, limit+1))
}

type ListingView struct {
	types.ListingDetail
	IsOwner bool `json:"is_owner"`
}
