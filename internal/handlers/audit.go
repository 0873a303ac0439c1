package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/campushq/roombook/internal/audit"
	"github.com/campushq/roombook/internal/model"
)

// AuditLister serves the recent audit trail to administrators.
type AuditLister interface {
	ListRecent(ctx context.Context, limit int) ([]audit.Entry, error)
}

type AuditHandler struct {
	entries AuditLister
	logger  *slog.Logger
}

func NewAuditHandler(entries AuditLister, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{entries: entries, logger: logger}
}

func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := actorFrom(r)
	if !ok {
		writeUnauthenticated(w)
		return
	}
	if actor.Role != model.RoleAdmin {
		writeJSON(w, http.StatusForbidden, errorBody{Error: "admin access required"})
		return
	}

	entries, err := h.entries.ListRecent(r.Context(), parseLimit(r, 50))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
