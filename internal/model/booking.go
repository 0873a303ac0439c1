package model

import "time"

// BookingRequest status values. A request leaves PENDING exactly once and
// never transitions again afterwards.
const (
	StatusPending   = "PENDING"
	StatusApproved  = "APPROVED"
	StatusRejected  = "REJECTED"
	StatusCancelled = "CANCELLED"
)

// Booking is the authoritative "room is occupied" record. Conflict checks
// and slot generation consult bookings only, never requests.
type Booking struct {
	ID         string
	RoomID     string
	UserID     string
	StartAt    time.Time
	EndAt      time.Time
	Purpose    string
	IsOverride bool
	RequestID  string
	CreatedAt  time.Time
}

type BookingRequest struct {
	ID        string
	RoomID    string
	UserID    string
	StartAt   time.Time
	EndAt     time.Time
	Purpose   string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Notification struct {
	ID        string
	UserID    string
	Type      string
	Title     string
	Message   string
	Metadata  map[string]any
	CreatedAt time.Time
}
