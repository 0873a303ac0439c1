package booking

import (
	"context"
	"errors"
	"time"

	"github.com/campushq/roombook/internal/availability"
	"github.com/campushq/roombook/internal/model"
)

// Sentinel errors a Store implementation reports. The service maps them to
// the user-facing error kinds.
var (
	ErrNotFound = errors.New("not found")
	// ErrOverlap means a write collided with an existing non-override
	// booking at commit time. The store must guarantee this even under
	// concurrent writers (row lock plus range-exclusion constraint in the
	// Postgres implementation).
	ErrOverlap = errors.New("booking interval overlaps an existing booking")
	// ErrNotPending means a request decision raced with another decision
	// and the request already left PENDING.
	ErrNotPending = errors.New("request is no longer pending")
)

// Store is the persistence boundary of the booking core. Write operations
// that span a request and its booking are atomic: either both rows land or
// neither does.
type Store interface {
	GetRoom(ctx context.Context, id string) (model.Room, error)

	// FindBookingsByRoom returns bookings for the room intersecting
	// [from, to), ordered by start time. Zero bounds mean unbounded.
	// excludeBookingID, when non-empty, drops that booking from the result.
	FindBookingsByRoom(ctx context.Context, roomID string, from, to time.Time, excludeBookingID string) ([]model.Booking, error)

	GetRequest(ctx context.Context, id string) (model.BookingRequest, error)

	// CreateRequest persists a new request. With autoApprove the request is
	// stored APPROVED together with its booking in one transaction; an
	// interval collision rolls the whole operation back with ErrOverlap.
	CreateRequest(ctx context.Context, req model.BookingRequest, autoApprove bool) (model.BookingRequest, *model.Booking, error)

	// DecideRequest transitions a PENDING request to status, updating its
	// interval to [startAt, endAt), and inserts the linked booking when
	// createBooking is set, all in one transaction. Returns ErrNotPending
	// if the request already left PENDING and ErrOverlap if the booking
	// write collides; in both cases nothing is persisted.
	DecideRequest(ctx context.Context, id, status string, startAt, endAt time.Time, createBooking bool) (model.BookingRequest, *model.Booking, error)

	// CreateOverride inserts a booking without any interval check.
	CreateOverride(ctx context.Context, b model.Booking) (model.Booking, error)
}

// AvailabilityCache is the optional read-through day-view cache. It is
// non-authoritative: implementations swallow backend errors and report a
// miss instead, and conflict checks never consult it.
type AvailabilityCache interface {
	GetDay(ctx context.Context, roomID string, date time.Time) ([]availability.TimeSlot, bool)
	SetDay(ctx context.Context, roomID string, date time.Time, slots []availability.TimeSlot)
	InvalidateRange(ctx context.Context, roomID string, from, to time.Time)
}

// Notifier delivers a user-facing notification. Best effort; the caller
// logs failures and moves on.
type Notifier interface {
	Notify(ctx context.Context, userID, kind, title, message string, metadata map[string]any) error
}

// Auditor records who did what to which entity. Best effort at call sites.
type Auditor interface {
	Record(ctx context.Context, actorID, actionType, targetType, targetID, reason string) error
}
