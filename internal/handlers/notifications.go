package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/campushq/roombook/internal/notify"
)

// NotificationLister serves a user's notification feed.
type NotificationLister interface {
	ListByUser(ctx context.Context, userID string, limit int) ([]notify.Item, error)
}

type NotificationHandler struct {
	notifications NotificationLister
	logger        *slog.Logger
}

func NewNotificationHandler(notifications NotificationLister, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{notifications: notifications, logger: logger}
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := actorFrom(r)
	if !ok {
		writeUnauthenticated(w)
		return
	}

	items, err := h.notifications.ListByUser(r.Context(), actor.ID, parseLimit(r, 50))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if items == nil {
		items = []notify.Item{}
	}
	writeJSON(w, http.StatusOK, items)
}
