package booking

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/campushq/roombook/internal/availability"
	"github.com/campushq/roombook/internal/model"
)

// fakeStore is an in-memory Store honoring the same contract as the
// Postgres implementation: atomic check+write under one lock, ErrOverlap on
// non-override collisions, ErrNotPending on decision races.
type fakeStore struct {
	mu       sync.Mutex
	rooms    map[string]model.Room
	requests map[string]model.BookingRequest
	bookings []model.Booking
	nextID   int
	failing  bool
}

func newFakeStore(rooms ...model.Room) *fakeStore {
	s := &fakeStore{
		rooms:    map[string]model.Room{},
		requests: map[string]model.BookingRequest{},
	}
	for _, r := range rooms {
		s.rooms[r.ID] = r
	}
	return s
}

var errStoreDown = errors.New("store unreachable")

func (s *fakeStore) id(prefix string) string {
	s.nextID++
	return prefix + "-" + strconv.Itoa(s.nextID)
}

func (s *fakeStore) GetRoom(_ context.Context, id string) (model.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return model.Room{}, errStoreDown
	}
	room, ok := s.rooms[id]
	if !ok {
		return model.Room{}, ErrNotFound
	}
	return room, nil
}

func (s *fakeStore) FindBookingsByRoom(_ context.Context, roomID string, from, to time.Time, excludeID string) ([]model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return nil, errStoreDown
	}
	return s.findLocked(roomID, from, to, excludeID), nil
}

func (s *fakeStore) findLocked(roomID string, from, to time.Time, excludeID string) []model.Booking {
	var out []model.Booking
	for _, b := range s.bookings {
		if b.RoomID != roomID || b.ID == excludeID {
			continue
		}
		if !from.IsZero() && !to.IsZero() && !availability.Overlaps(from, to, b.StartAt, b.EndAt) {
			continue
		}
		out = append(out, b)
	}
	return out
}

func (s *fakeStore) GetRequest(_ context.Context, id string) (model.BookingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return model.BookingRequest{}, errStoreDown
	}
	req, ok := s.requests[id]
	if !ok {
		return model.BookingRequest{}, ErrNotFound
	}
	return req, nil
}

func (s *fakeStore) CreateRequest(_ context.Context, req model.BookingRequest, autoApprove bool) (model.BookingRequest, *model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return model.BookingRequest{}, nil, errStoreDown
	}

	req.ID = s.id("req")
	req.CreatedAt = time.Now().UTC()
	req.UpdatedAt = req.CreatedAt

	if !autoApprove {
		s.requests[req.ID] = req
		return req, nil, nil
	}

	if s.overlapsLocked(req.RoomID, req.StartAt, req.EndAt) {
		return model.BookingRequest{}, nil, ErrOverlap
	}
	req.Status = model.StatusApproved
	s.requests[req.ID] = req
	bk := model.Booking{
		ID:        s.id("bk"),
		RoomID:    req.RoomID,
		UserID:    req.UserID,
		StartAt:   req.StartAt,
		EndAt:     req.EndAt,
		Purpose:   req.Purpose,
		RequestID: req.ID,
		CreatedAt: req.CreatedAt,
	}
	s.bookings = append(s.bookings, bk)
	return req, &bk, nil
}

func (s *fakeStore) DecideRequest(_ context.Context, id, status string, startAt, endAt time.Time, createBooking bool) (model.BookingRequest, *model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return model.BookingRequest{}, nil, errStoreDown
	}

	req, ok := s.requests[id]
	if !ok {
		return model.BookingRequest{}, nil, ErrNotFound
	}
	if req.Status != model.StatusPending {
		return model.BookingRequest{}, nil, ErrNotPending
	}
	if createBooking && s.overlapsLocked(req.RoomID, startAt, endAt) {
		return model.BookingRequest{}, nil, ErrOverlap
	}

	req.Status = status
	req.StartAt = startAt
	req.EndAt = endAt
	req.UpdatedAt = time.Now().UTC()
	s.requests[id] = req

	if !createBooking {
		return req, nil, nil
	}
	bk := model.Booking{
		ID:        s.id("bk"),
		RoomID:    req.RoomID,
		UserID:    req.UserID,
		StartAt:   startAt,
		EndAt:     endAt,
		Purpose:   req.Purpose,
		RequestID: req.ID,
		CreatedAt: time.Now().UTC(),
	}
	s.bookings = append(s.bookings, bk)
	return req, &bk, nil
}

func (s *fakeStore) CreateOverride(_ context.Context, b model.Booking) (model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return model.Booking{}, errStoreDown
	}
	b.ID = s.id("bk")
	b.CreatedAt = time.Now().UTC()
	s.bookings = append(s.bookings, b)
	return b, nil
}

// overlapsLocked mirrors the write-time guard: a new normal booking may not
// overlap any existing booking, overrides included.
func (s *fakeStore) overlapsLocked(roomID string, start, end time.Time) bool {
	for _, b := range s.bookings {
		if b.RoomID == roomID && availability.Overlaps(start, end, b.StartAt, b.EndAt) {
			return true
		}
	}
	return false
}

// addBooking seeds a booking directly, bypassing the service.
func (s *fakeStore) addBooking(b model.Booking) model.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ID == "" {
		b.ID = s.id("bk")
	}
	s.bookings = append(s.bookings, b)
	return b
}

func (s *fakeStore) allBookings() []model.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Booking, len(s.bookings))
	copy(out, s.bookings)
	return out
}

type fakeCache struct {
	mu          sync.Mutex
	entries     map[string][]availability.TimeSlot
	hits        int
	invalidated []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string][]availability.TimeSlot{}}
}

func cacheKey(roomID string, date time.Time) string {
	return fmt.Sprintf("availability:%s:%s", roomID, date.UTC().Format("2006-01-02"))
}

func (c *fakeCache) GetDay(_ context.Context, roomID string, date time.Time) ([]availability.TimeSlot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	slots, ok := c.entries[cacheKey(roomID, date)]
	if ok {
		c.hits++
	}
	return slots, ok
}

func (c *fakeCache) SetDay(_ context.Context, roomID string, date time.Time, slots []availability.TimeSlot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(roomID, date)] = slots
}

func (c *fakeCache) InvalidateRange(_ context.Context, roomID string, from, to time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for d := from.UTC().Truncate(24 * time.Hour); !d.After(to.UTC()); d = d.AddDate(0, 0, 1) {
		key := cacheKey(roomID, d)
		delete(c.entries, key)
		c.invalidated = append(c.invalidated, key)
	}
}

type sentNotification struct {
	UserID string
	Kind   string
}

type fakeNotifier struct {
	ch chan sentNotification
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{ch: make(chan sentNotification, 64)}
}

func (n *fakeNotifier) Notify(_ context.Context, userID, kind, _, _ string, _ map[string]any) error {
	n.ch <- sentNotification{UserID: userID, Kind: kind}
	return nil
}

// wait blocks until a notification arrives or the timeout passes.
func (n *fakeNotifier) wait() (sentNotification, bool) {
	select {
	case got := <-n.ch:
		return got, true
	case <-time.After(2 * time.Second):
		return sentNotification{}, false
	}
}

type auditEntry struct {
	ActorID    string
	ActionType string
	TargetType string
	TargetID   string
	Reason     string
}

type fakeAuditor struct {
	mu      sync.Mutex
	entries []auditEntry
}

func (a *fakeAuditor) Record(_ context.Context, actorID, actionType, targetType, targetID, reason string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, auditEntry{actorID, actionType, targetType, targetID, reason})
	return nil
}

func (a *fakeAuditor) last() (auditEntry, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.entries) == 0 {
		return auditEntry{}, false
	}
	return a.entries[len(a.entries)-1], true
}
