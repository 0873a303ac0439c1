package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/campushq/roombook/internal/booking"
	"github.com/campushq/roombook/internal/model"
	"github.com/campushq/roombook/internal/outbox"
	"github.com/campushq/roombook/libs/db"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// BookingStore is the Postgres implementation of booking.Store.
//
// Write-time race safety is layered: every booking write locks the room row
// (FOR UPDATE) and re-checks the interval inside the transaction, and the
// bookings table carries a range-exclusion constraint over non-override
// rows as a backstop. A constraint violation (SQLSTATE 23P01) surfaces as
// booking.ErrOverlap.
type BookingStore struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

// NewBookingStore builds the store. outboxRepo may be nil; booking events
// are then not emitted.
func NewBookingStore(pool *db.Pool, outboxRepo *outbox.Repository) *BookingStore {
	return &BookingStore{pool: pool, outbox: outboxRepo}
}

const bookingColumns = `id::text, room_id::text, user_id::text, start_at, end_at, purpose, is_override, COALESCE(request_id::text, ''), created_at`

func (s *BookingStore) GetRoom(ctx context.Context, id string) (model.Room, error) {
	var room model.Room
	err := s.pool.QueryRow(ctx, `
		SELECT id::text, name, building, capacity, equipment, is_active, is_locked,
			COALESCE(restricted_roles, '{}'), created_at, updated_at
		FROM rooms
		WHERE id = $1
	`, id).Scan(
		&room.ID,
		&room.Name,
		&room.Building,
		&room.Capacity,
		&room.Equipment,
		&room.IsActive,
		&room.IsLocked,
		&room.RestrictedRoles,
		&room.CreatedAt,
		&room.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Room{}, booking.ErrNotFound
		}
		return model.Room{}, err
	}
	return room, nil
}

func (s *BookingStore) FindBookingsByRoom(ctx context.Context, roomID string, from, to time.Time, excludeBookingID string) ([]model.Booking, error) {
	var fromArg, toArg *time.Time
	if !from.IsZero() {
		fromArg = &from
	}
	if !to.IsZero() {
		toArg = &to
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE room_id = $1
			AND ($2::timestamptz IS NULL OR end_at > $2)
			AND ($3::timestamptz IS NULL OR start_at < $3)
			AND ($4::text = '' OR id::text <> $4)
		ORDER BY start_at ASC
	`, roomID, fromArg, toArg, excludeBookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBookings(rows)
}

func (s *BookingStore) GetRequest(ctx context.Context, id string) (model.BookingRequest, error) {
	req, err := scanRequest(s.pool.QueryRow(ctx, `
		SELECT id::text, room_id::text, user_id::text, start_at, end_at, purpose, status, created_at, updated_at
		FROM booking_requests
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.BookingRequest{}, booking.ErrNotFound
		}
		return model.BookingRequest{}, err
	}
	return req, nil
}

func (s *BookingStore) CreateRequest(ctx context.Context, req model.BookingRequest, autoApprove bool) (model.BookingRequest, *model.Booking, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.BookingRequest{}, nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := s.lockRoom(ctx, tx, req.RoomID); err != nil {
		return model.BookingRequest{}, nil, err
	}

	status := model.StatusPending
	if autoApprove {
		status = model.StatusApproved
	}
	created := req
	created.Status = status
	err = tx.QueryRow(ctx, `
		INSERT INTO booking_requests (room_id, user_id, start_at, end_at, purpose, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id::text, created_at, updated_at
	`, req.RoomID, req.UserID, req.StartAt, req.EndAt, req.Purpose, status).Scan(
		&created.ID, &created.CreatedAt, &created.UpdatedAt,
	)
	if err != nil {
		return model.BookingRequest{}, nil, err
	}

	var bk *model.Booking
	if autoApprove {
		bk, err = s.insertBooking(ctx, tx, model.Booking{
			RoomID:    req.RoomID,
			UserID:    req.UserID,
			StartAt:   req.StartAt,
			EndAt:     req.EndAt,
			Purpose:   req.Purpose,
			RequestID: created.ID,
		})
		if err != nil {
			return model.BookingRequest{}, nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return model.BookingRequest{}, nil, err
	}
	return created, bk, nil
}

func (s *BookingStore) DecideRequest(ctx context.Context, id, status string, startAt, endAt time.Time, createBooking bool) (model.BookingRequest, *model.Booking, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.BookingRequest{}, nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	req, err := scanRequest(tx.QueryRow(ctx, `
		SELECT id::text, room_id::text, user_id::text, start_at, end_at, purpose, status, created_at, updated_at
		FROM booking_requests
		WHERE id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.BookingRequest{}, nil, booking.ErrNotFound
		}
		return model.BookingRequest{}, nil, err
	}
	if req.Status != model.StatusPending {
		return model.BookingRequest{}, nil, booking.ErrNotPending
	}

	if createBooking {
		if err := s.lockRoom(ctx, tx, req.RoomID); err != nil {
			return model.BookingRequest{}, nil, err
		}
	}

	err = tx.QueryRow(ctx, `
		UPDATE booking_requests
		SET status = $2,
			start_at = $3,
			end_at = $4,
			updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, id, status, startAt, endAt).Scan(&req.UpdatedAt)
	if err != nil {
		return model.BookingRequest{}, nil, err
	}
	req.Status = status
	req.StartAt = startAt
	req.EndAt = endAt

	var bk *model.Booking
	if createBooking {
		bk, err = s.insertBooking(ctx, tx, model.Booking{
			RoomID:    req.RoomID,
			UserID:    req.UserID,
			StartAt:   startAt,
			EndAt:     endAt,
			Purpose:   req.Purpose,
			RequestID: req.ID,
		})
		if err != nil {
			return model.BookingRequest{}, nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return model.BookingRequest{}, nil, err
	}
	return req, bk, nil
}

func (s *BookingStore) CreateOverride(ctx context.Context, b model.Booking) (model.Booking, error) {
	b.IsOverride = true
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.Booking{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `
		INSERT INTO bookings (room_id, user_id, start_at, end_at, purpose, is_override)
		VALUES ($1, $2, $3, $4, $5, true)
		RETURNING id::text, created_at
	`, b.RoomID, b.UserID, b.StartAt, b.EndAt, b.Purpose).Scan(&b.ID, &b.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return model.Booking{}, booking.ErrNotFound
		}
		return model.Booking{}, err
	}

	if err := s.emitBookingEvent(ctx, tx, outbox.EventBookingOverridden, b); err != nil {
		return model.Booking{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Booking{}, err
	}
	return b, nil
}

// ListBookings returns bookings intersecting [from, to), optionally scoped
// to one room, capped at limit. Zero bounds leave that side open.
func (s *BookingStore) ListBookings(ctx context.Context, roomID string, from, to time.Time, limit int) ([]model.Booking, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var fromArg, toArg *time.Time
	if !from.IsZero() {
		fromArg = &from
	}
	if !to.IsZero() {
		toArg = &to
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE ($1::text = '' OR room_id::text = $1)
			AND ($2::timestamptz IS NULL OR end_at > $2)
			AND ($3::timestamptz IS NULL OR start_at < $3)
		ORDER BY start_at ASC
		LIMIT $4
	`, roomID, fromArg, toArg, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBookings(rows)
}

// ListRequests returns requests filtered by user and/or status, newest
// first.
func (s *BookingStore) ListRequests(ctx context.Context, userID, status string, limit int) ([]model.BookingRequest, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, room_id::text, user_id::text, start_at, end_at, purpose, status, created_at, updated_at
		FROM booking_requests
		WHERE ($1::text = '' OR user_id::text = $1)
			AND ($2::text = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`, userID, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reqs []model.BookingRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return reqs, nil
}

// lockRoom takes the room's row lock, serializing concurrent booking
// writes for that room within their transactions.
func (s *BookingStore) lockRoom(ctx context.Context, tx pgx.Tx, roomID string) error {
	var id string
	err := tx.QueryRow(ctx, `SELECT id::text FROM rooms WHERE id = $1 FOR UPDATE`, roomID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return booking.ErrNotFound
	}
	return err
}

// insertBooking writes a non-override booking inside tx. The interval is
// re-checked under the room lock; the exclusion constraint catches anything
// that still slips through.
func (s *BookingStore) insertBooking(ctx context.Context, tx pgx.Tx, b model.Booking) (*model.Booking, error) {
	var occupied bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM bookings
			WHERE room_id = $1 AND start_at < $3 AND end_at > $2
		)
	`, b.RoomID, b.StartAt, b.EndAt).Scan(&occupied)
	if err != nil {
		return nil, err
	}
	if occupied {
		return nil, booking.ErrOverlap
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO bookings (room_id, user_id, start_at, end_at, purpose, is_override, request_id)
		VALUES ($1, $2, $3, $4, $5, false, $6)
		RETURNING id::text, created_at
	`, b.RoomID, b.UserID, b.StartAt, b.EndAt, b.Purpose, nullIfEmpty(b.RequestID)).Scan(&b.ID, &b.CreatedAt)
	if err != nil {
		if isExclusionViolation(err) {
			return nil, booking.ErrOverlap
		}
		return nil, err
	}

	if err := s.emitBookingEvent(ctx, tx, outbox.EventBookingCreated, b); err != nil {
		return nil, err
	}
	return &b, nil
}

// emitBookingEvent writes the booking event into the outbox inside the same
// transaction as the booking row.
func (s *BookingStore) emitBookingEvent(ctx context.Context, tx pgx.Tx, eventType string, b model.Booking) error {
	if s.outbox == nil {
		return nil
	}
	payload, err := json.Marshal(map[string]any{
		"booking_id":  b.ID,
		"room_id":     b.RoomID,
		"user_id":     b.UserID,
		"start_at":    b.StartAt.UTC().Format(time.RFC3339),
		"end_at":      b.EndAt.UTC().Format(time.RFC3339),
		"purpose":     b.Purpose,
		"is_override": b.IsOverride,
		"request_id":  b.RequestID,
	})
	if err != nil {
		return err
	}
	return s.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "booking",
		AggregateID:   b.ID,
		EventType:     eventType,
		Payload:       payload,
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (model.BookingRequest, error) {
	var req model.BookingRequest
	err := row.Scan(
		&req.ID,
		&req.RoomID,
		&req.UserID,
		&req.StartAt,
		&req.EndAt,
		&req.Purpose,
		&req.Status,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	return req, err
}

func scanBookings(rows pgx.Rows) ([]model.Booking, error) {
	var bookings []model.Booking
	for rows.Next() {
		var b model.Booking
		if err := rows.Scan(
			&b.ID,
			&b.RoomID,
			&b.UserID,
			&b.StartAt,
			&b.EndAt,
			&b.Purpose,
			&b.IsOverride,
			&b.RequestID,
			&b.CreatedAt,
		); err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return bookings, nil
}

func isExclusionViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
