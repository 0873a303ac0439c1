package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/campushq/roombook/internal/outbox"
	"github.com/campushq/roombook/libs/db"
)

// Notifier persists a per-user notification row and mirrors it to the
// outbox so an external mailer can deliver it. Delivery itself is not this
// service's concern; callers treat the whole thing as best effort.
type Notifier struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func New(pool *db.Pool, outboxRepo *outbox.Repository) *Notifier {
	return &Notifier{pool: pool, outbox: outboxRepo}
}

func (n *Notifier) Notify(ctx context.Context, userID, kind, title, message string, metadata map[string]any) error {
	raw, err := json.Marshal(metadata)
	if err != nil {
		return err
	}

	tx, err := n.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id string
	err = tx.QueryRow(ctx, `
		INSERT INTO notifications (user_id, type, title, message, metadata)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id::text
	`, userID, kind, title, message, raw).Scan(&id)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(map[string]any{
		"notification_id": id,
		"user_id":         userID,
		"type":            kind,
		"title":           title,
		"message":         message,
		"metadata":        metadata,
		"created_at":      time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	if err := n.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "notification",
		AggregateID:   id,
		EventType:     outbox.EventNotificationRequested,
		Payload:       payload,
	}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// ListByUser returns the newest notifications for a user.
func (n *Notifier) ListByUser(ctx context.Context, userID string, limit int) ([]Item, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := n.pool.Query(ctx, `
		SELECT id::text, type, title, message, COALESCE(metadata, '{}'), created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		var createdAt time.Time
		if err := rows.Scan(&it.ID, &it.Type, &it.Title, &it.Message, &it.Metadata, &createdAt); err != nil {
			return nil, err
		}
		it.CreatedAt = createdAt.UTC().Format(time.RFC3339)
		items = append(items, it)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return items, nil
}

type Item struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Metadata  json.RawMessage `json:"metadata"`
	CreatedAt string          `json:"created_at"`
}
