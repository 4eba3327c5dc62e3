package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/homefinder/apiserver/internal/policy"
	"github.com/homefinder/apiserver/internal/services"
)

// MessageHandler serves the messages left on a listing.
type MessageHandler struct {
	messageService *services.MessageService
	logger         *slog.Logger
}

func NewMessageHandler(messageService *services.MessageService, logger *slog.Logger) *MessageHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &MessageHandler{messageService: messageService, logger: logger}
}

// MessageRouter registers routes under /listings/{listingID}/messages.
// Anyone may write; only the owner may read.
func MessageRouter(r chi.Router, handler *MessageHandler) {
	r.Post("/", handler.Send)
	r.With(RequireAuth).Get("/", handler.List)
}

func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	id, err := parseListingID(r)
	if err != nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	var req services.MessageInput
	if err := decodeInput(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	message, err := h.messageService.Send(r.Context(), actorFromContext(r.Context()), id, req)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, message)
}

func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	id, err := parseListingID(r)
	if err != nil {
		writeServiceError(w, r, h.logger, &services.DenialError{Op: policy.OpViewMessages, Reason: policy.ReasonNotFound})
		return
	}

	messages, err := h.messageService.List(r.Context(), actorFromContext(r.Context()), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}
