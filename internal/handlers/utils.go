package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/schema"
	"github.com/homefinder/apiserver/internal/services"
	"github.com/homefinder/apiserver/types"
)

type contextKey string

const contextActorKey contextKey = "actor"

const (
	ownerIndexPath     = "/my-listings"
	ownerIndexFirstURL = "/my-listings?page=1"
)

var formDecoder = newFormDecoder()

func newFormDecoder() *schema.Decoder {
	d := schema.NewDecoder()
	d.SetAliasTag("json")
	d.IgnoreUnknownKeys(true)
	return d
}

func withActor(ctx context.Context, actor types.Actor) context.Context {
	return context.WithValue(ctx, contextActorKey, actor)
}

// actorFromContext returns the resolved actor, anonymous when none was set.
func actorFromContext(ctx context.Context) types.Actor {
	actor, ok := ctx.Value(contextActorKey).(types.Actor)
	if !ok {
		return types.Anonymous()
	}
	return actor
}

// decodeInput reads a JSON body or a url-encoded/multipart form into dst.
func decodeInput(r *http.Request, dst any) error {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
			return fmt.Errorf("decode json: %w", err)
		}
		return nil
	}

	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxFormMemory); err != nil {
			return fmt.Errorf("parse form: %w", err)
		}
	} else if err := r.ParseForm(); err != nil {
		return fmt.Errorf("parse form: %w", err)
	}
	if err := formDecoder.Decode(dst, r.PostForm); err != nil {
		return fmt.Errorf("decode form: %w", err)
	}
	return nil
}

func parseListingID(r *http.Request) (int, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "listingID"))
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 {
		return 0, errors.New("invalid listing id")
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writeServiceError maps service outcomes onto the HTTP boundary. Every
// denial looks the same to the caller: a redirect to the owner index.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var verr *services.ValidationError
	switch {
	case errors.Is(err, services.ErrDenied):
		http.Redirect(w, r, ownerIndexPath, http.StatusSeeOther)
	case errors.Is(err, services.ErrInvalidPage):
		http.Redirect(w, r, ownerIndexFirstURL, http.StatusSeeOther)
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, ValidationResponse{Errors: verr.Fields})
	case errors.Is(err, services.ErrNotFound), errors.Is(err, services.ErrInvalidToken):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, services.ErrUnknownUser):
		writeError(w, http.StatusUnauthorized, "user does not exist")
	case errors.Is(err, services.ErrUnconfirmed):
		writeError(w, http.StatusUnauthorized, "account is not confirmed")
	case errors.Is(err, services.ErrWrongPassword):
		writeError(w, http.StatusUnauthorized, "wrong password")
	default:
		logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"user_id", actorFromContext(r.Context()).UserID,
			"err", err,
		)
		writeError(w, http.StatusInternalServerError, "something went wrong")
	}
}

// Healthz reports liveness.
func Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type ValidationResponse struct {
	Errors []services.FieldError `json:"errors"`
}
