package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/campushq/roombook/internal/outbox"
	"github.com/campushq/roombook/libs/db"
	"github.com/jackc/pgx/v5/pgconn"
)

// Repository writes the audit trail for booking decisions. Every write is
// mirrored to the outbox so downstream consumers see the same trail.
type Repository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewRepository(pool *db.Pool, outboxRepo *outbox.Repository) *Repository {
	return &Repository{pool: pool, outbox: outboxRepo}
}

func (r *Repository) Record(ctx context.Context, actorID, actionType, targetType, targetID, reason string) error {
	if r.outbox == nil {
		return r.record(ctx, r.pool, actorID, actionType, targetType, targetID, reason)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := r.record(ctx, tx, actorID, actionType, targetType, targetID, reason); err != nil {
		return err
	}

	payload, err := json.Marshal(map[string]any{
		"actor_id":    actorID,
		"action_type": actionType,
		"target_type": targetType,
		"target_id":   targetID,
		"reason":      reason,
		"created_at":  time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	if err := r.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: targetType,
		AggregateID:   targetID,
		EventType:     outbox.EventAuditRecorded,
		Payload:       payload,
	}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (r *Repository) record(ctx context.Context, ex execer, actorID, actionType, targetType, targetID, reason string) error {
	_, err := ex.Exec(ctx, `
		INSERT INTO audit_log (actor_id, action_type, target_type, target_id, reason)
		VALUES (NULLIF($1, '')::uuid, $2, $3, NULLIF($4, '')::uuid, NULLIF($5, ''))
	`, actorID, actionType, targetType, targetID, reason)
	return err
}

type Entry struct {
	ID         int64  `json:"id"`
	ActorID    string `json:"actor_id,omitempty"`
	ActionType string `json:"action_type"`
	TargetType string `json:"target_type"`
	TargetID   string `json:"target_id,omitempty"`
	Reason     string `json:"reason,omitempty"`
	CreatedAt  string `json:"created_at"`
}

func (r *Repository) ListRecent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, COALESCE(actor_id::text, ''), action_type, target_type,
		       COALESCE(target_id::text, ''), COALESCE(reason, ''), created_at
		FROM audit_log
		ORDER BY id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var createdAt time.Time
		if err := rows.Scan(&e.ID, &e.ActorID, &e.ActionType, &e.TargetType, &e.TargetID, &e.Reason, &createdAt); err != nil {
			return nil, err
		}
		e.CreatedAt = createdAt.UTC().Format(time.RFC3339)
		entries = append(entries, e)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return entries, nil
}
