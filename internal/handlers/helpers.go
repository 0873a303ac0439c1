package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/campushq/roombook/internal/booking"
)

// actorFrom reads the caller identity the gateway attaches to every
// request. Authentication happened upstream; an empty ID means the request
// never passed the gateway.
func actorFrom(r *http.Request) (booking.Actor, bool) {
	actor := booking.Actor{
		ID:   strings.TrimSpace(r.Header.Get("X-User-Id")),
		Role: strings.TrimSpace(r.Header.Get("X-User-Role")),
	}
	return actor, actor.ID != ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// writeServiceError maps booking error kinds to HTTP statuses. Anything
// unclassified is a plain 500 with no detail leak.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	kind := booking.KindOf(err)
	var status int
	switch kind {
	case booking.KindNotFound:
		status = http.StatusNotFound
	case booking.KindForbidden:
		status = http.StatusForbidden
	case booking.KindConflict:
		status = http.StatusConflict
	case booking.KindInvalidState:
		status = http.StatusUnprocessableEntity
	case booking.KindValidation:
		status = http.StatusBadRequest
	case booking.KindStoreUnavailable:
		status = http.StatusServiceUnavailable
	default:
		if logger != nil {
			logger.Error("unclassified handler error", "err", err)
		}
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
		return
	}

	msg := err.Error()
	var be *booking.Error
	if errors.As(err, &be) {
		msg = be.Message
	}
	writeJSON(w, status, errorBody{Error: msg, Code: string(kind)})
}

func writeUnauthenticated(w http.ResponseWriter) {
	writeJSON(w, http.StatusUnauthorized, errorBody{Error: "authentication required"})
}

func parseLimit(r *http.Request, def int) int {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return def
	}
	if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
		return n
	}
	return def
}
