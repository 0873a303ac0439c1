package booking

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/campushq/roombook/internal/availability"
	"github.com/campushq/roombook/internal/model"
)

// Notification kinds emitted by the lifecycle operations.
const (
	NotifyRequestSubmitted = "REQUEST_SUBMITTED"
	NotifyRequestApproved  = "REQUEST_APPROVED"
	NotifyRequestRejected  = "REQUEST_REJECTED"
	NotifyRequestModified  = "REQUEST_MODIFIED"
	NotifyRequestCancelled = "REQUEST_CANCELLED"
	NotifyOverrideCreated  = "OVERRIDE_CREATED"
)

// Audit action types.
const (
	AuditRequestSubmitted = "BOOKING_REQUEST_SUBMITTED"
	AuditRequestApproved  = "BOOKING_REQUEST_APPROVED"
	AuditRequestRejected  = "BOOKING_REQUEST_REJECTED"
	AuditRequestCancelled = "BOOKING_REQUEST_CANCELLED"
	AuditOverrideCreated  = "BOOKING_OVERRIDE_CREATED"
)

const minReasonLen = 10

// Actor identifies the user performing an operation. Authentication is an
// upstream concern; the service trusts what it is handed.
type Actor struct {
	ID   string
	Role string
}

func (a Actor) isAdmin() bool { return a.Role == model.RoleAdmin }

type CreateRequestInput struct {
	RoomID  string
	StartAt time.Time
	EndAt   time.Time
	Purpose string
}

type DecideRequestInput struct {
	RequestID string
	Decision  string // StatusApproved or StatusRejected
	Reason    string
	StartAt   *time.Time // optional admin-edited interval
	EndAt     *time.Time
}

type OverrideInput struct {
	RoomID  string
	UserID  string
	StartAt time.Time
	EndAt   time.Time
	Purpose string
	Reason  string
}

// Result pairs a request with the booking created alongside it, when any.
type Result struct {
	Request model.BookingRequest
	Booking *model.Booking
}

// Service coordinates the booking lifecycle: conflict checking, request
// state transitions, override placement, and the cache/notification/audit
// side effects around them.
type Service struct {
	store       Store
	cache       AvailabilityCache
	notifier    Notifier
	auditor     Auditor
	logger      *slog.Logger
	autoApprove bool
}

type Config struct {
	Store       Store
	Cache       AvailabilityCache // optional
	Notifier    Notifier
	Auditor     Auditor
	Logger      *slog.Logger
	AutoApprove bool
}

func NewService(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:       cfg.Store,
		cache:       cfg.Cache,
		notifier:    cfg.Notifier,
		auditor:     cfg.Auditor,
		logger:      logger,
		autoApprove: cfg.AutoApprove,
	}
}

// CheckConflict reports whether [start, end) overlaps any existing booking
// for the room, optionally ignoring one booking id. Store errors surface as
// StoreUnavailable: an unreachable store must never read as "no conflict".
func (s *Service) CheckConflict(ctx context.Context, roomID string, start, end time.Time, excludeBookingID string) (bool, error) {
	existing, err := s.store.FindBookingsByRoom(ctx, roomID, start, end, excludeBookingID)
	if err != nil {
		return false, wrapError(KindStoreUnavailable, "conflict check failed", err)
	}
	for _, b := range existing {
		if availability.Overlaps(start, end, b.StartAt, b.EndAt) {
			return true, nil
		}
	}
	return false, nil
}

// DayTimeSlots returns the 48-slot day view for a room, served from the
// cache when fresh.
func (s *Service) DayTimeSlots(ctx context.Context, roomID string, date time.Time) ([]availability.TimeSlot, error) {
	if _, err := s.store.GetRoom(ctx, roomID); err != nil {
		return nil, mapStoreError(err, "room")
	}

	if s.cache != nil {
		if slots, ok := s.cache.GetDay(ctx, roomID, date); ok {
			return slots, nil
		}
	}

	from, to := availability.FetchBounds(date)
	bookings, err := s.store.FindBookingsByRoom(ctx, roomID, from, to, "")
	if err != nil {
		return nil, wrapError(KindStoreUnavailable, "loading bookings failed", err)
	}

	slots := availability.DayTimeSlots(date, bookings)
	if s.cache != nil {
		s.cache.SetDay(ctx, roomID, date, slots)
	}
	return slots, nil
}

// CreateRequest validates room and requester, checks for conflicts, and
// persists the request; under the auto-approve policy the linked booking is
// written in the same transaction.
func (s *Service) CreateRequest(ctx context.Context, actor Actor, in CreateRequestInput) (Result, error) {
	if err := validateInterval(in.StartAt, in.EndAt); err != nil {
		return Result{}, err
	}
	if in.Purpose == "" {
		return Result{}, newError(KindValidation, "purpose is required")
	}

	room, err := s.store.GetRoom(ctx, in.RoomID)
	if err != nil {
		return Result{}, mapStoreError(err, "room")
	}
	if !room.IsActive {
		return Result{}, newError(KindInvalidState, "room is not active")
	}
	if room.IsLocked {
		return Result{}, newError(KindInvalidState, "room is currently locked")
	}
	if !room.AllowsRole(actor.Role) {
		return Result{}, newError(KindForbidden, "you do not have permission to book this room")
	}

	conflict, err := s.CheckConflict(ctx, in.RoomID, in.StartAt, in.EndAt, "")
	if err != nil {
		return Result{}, err
	}
	if conflict {
		return Result{}, newError(KindConflict, "room is already booked for this time period")
	}

	req := model.BookingRequest{
		RoomID:  in.RoomID,
		UserID:  actor.ID,
		StartAt: in.StartAt.UTC(),
		EndAt:   in.EndAt.UTC(),
		Purpose: in.Purpose,
		Status:  model.StatusPending,
	}
	created, bk, err := s.store.CreateRequest(ctx, req, s.autoApprove)
	if err != nil {
		if errors.Is(err, ErrOverlap) {
			return Result{}, newError(KindConflict, "room is already booked for this time period")
		}
		return Result{}, wrapError(KindStoreUnavailable, "creating booking request failed", err)
	}

	if bk != nil {
		s.invalidate(ctx, in.RoomID, in.StartAt, in.EndAt)
		s.audit(ctx, actor.ID, AuditRequestApproved, "BookingRequest", created.ID, "auto-approved")
		s.notifyAsync(actor.ID, NotifyRequestApproved, "Booking approved: "+room.Name,
			"Your booking for "+room.Name+" is confirmed.", requestMeta(created))
	} else {
		s.audit(ctx, actor.ID, AuditRequestSubmitted, "BookingRequest", created.ID, "")
		s.notifyAsync(actor.ID, NotifyRequestSubmitted, "Booking request submitted: "+room.Name,
			"Your booking request for "+room.Name+" is pending approval.", requestMeta(created))
	}
	return Result{Request: created, Booking: bk}, nil
}

// DecideRequest approves or rejects a pending request. Approval re-runs the
// conflict check against the (possibly admin-edited) interval; a conflict
// leaves the request PENDING and points the admin at the override path.
func (s *Service) DecideRequest(ctx context.Context, actor Actor, in DecideRequestInput) (Result, error) {
	if !actor.isAdmin() {
		return Result{}, newError(KindForbidden, "admin access required")
	}
	if in.Decision != model.StatusApproved && in.Decision != model.StatusRejected {
		return Result{}, newError(KindValidation, "decision must be APPROVED or REJECTED")
	}
	if in.Decision == model.StatusRejected && len(in.Reason) < minReasonLen {
		return Result{}, newError(KindValidation, "rejection requires a justification of at least 10 characters")
	}

	req, err := s.store.GetRequest(ctx, in.RequestID)
	if err != nil {
		return Result{}, mapStoreError(err, "booking request")
	}
	if req.Status != model.StatusPending {
		return Result{}, newError(KindInvalidState, "only pending requests can be decided")
	}

	startAt, endAt := req.StartAt, req.EndAt
	if in.StartAt != nil {
		startAt = in.StartAt.UTC()
	}
	if in.EndAt != nil {
		endAt = in.EndAt.UTC()
	}
	if err := validateInterval(startAt, endAt); err != nil {
		return Result{}, err
	}
	timesModified := !startAt.Equal(req.StartAt) || !endAt.Equal(req.EndAt)

	if in.Decision == model.StatusApproved {
		conflict, err := s.CheckConflict(ctx, req.RoomID, startAt, endAt, "")
		if err != nil {
			return Result{}, err
		}
		if conflict {
			return Result{}, newError(KindConflict,
				"cannot approve: room is already booked for this time period; use an override booking instead")
		}
	}

	updated, bk, err := s.store.DecideRequest(ctx, req.ID, in.Decision, startAt, endAt, in.Decision == model.StatusApproved)
	if err != nil {
		switch {
		case errors.Is(err, ErrOverlap):
			return Result{}, newError(KindConflict,
				"cannot approve: room is already booked for this time period; use an override booking instead")
		case errors.Is(err, ErrNotPending):
			return Result{}, newError(KindInvalidState, "only pending requests can be decided")
		case errors.Is(err, ErrNotFound):
			return Result{}, newError(KindNotFound, "booking request not found")
		}
		return Result{}, wrapError(KindStoreUnavailable, "deciding booking request failed", err)
	}

	s.audit(ctx, actor.ID, auditForDecision(in.Decision), "BookingRequest", req.ID, in.Reason)

	if in.Decision == model.StatusApproved {
		s.invalidate(ctx, req.RoomID, startAt, endAt)
		if timesModified {
			s.notifyAsync(req.UserID, NotifyRequestModified, "Booking approved with changes",
				"Your booking request was approved with a modified time.", requestMeta(updated))
		} else {
			s.notifyAsync(req.UserID, NotifyRequestApproved, "Booking approved",
				"Your booking request has been approved.", requestMeta(updated))
		}
	} else {
		s.notifyAsync(req.UserID, NotifyRequestRejected, "Booking request rejected",
			"Your booking request was rejected: "+in.Reason, requestMeta(updated))
	}
	return Result{Request: updated, Booking: bk}, nil
}

// CancelRequest lets the requester withdraw their own pending request.
func (s *Service) CancelRequest(ctx context.Context, actor Actor, requestID string) (model.BookingRequest, error) {
	req, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return model.BookingRequest{}, mapStoreError(err, "booking request")
	}
	if req.UserID != actor.ID {
		return model.BookingRequest{}, newError(KindForbidden, "you can only cancel your own requests")
	}
	if req.Status != model.StatusPending {
		return model.BookingRequest{}, newError(KindInvalidState, "only pending requests can be cancelled")
	}

	updated, _, err := s.store.DecideRequest(ctx, req.ID, model.StatusCancelled, req.StartAt, req.EndAt, false)
	if err != nil {
		if errors.Is(err, ErrNotPending) {
			return model.BookingRequest{}, newError(KindInvalidState, "only pending requests can be cancelled")
		}
		return model.BookingRequest{}, wrapError(KindStoreUnavailable, "cancelling booking request failed", err)
	}

	s.audit(ctx, actor.ID, AuditRequestCancelled, "BookingRequest", req.ID, "cancelled by requester")
	s.notifyAsync(req.UserID, NotifyRequestCancelled, "Booking request cancelled",
		"Your booking request has been cancelled.", requestMeta(updated))
	return updated, nil
}

// CreateOverride writes a booking directly, skipping the conflict check.
// Admins may deliberately double-book; the booking still blocks later
// normal requests. The justification is mandatory and audited.
func (s *Service) CreateOverride(ctx context.Context, actor Actor, in OverrideInput) (model.Booking, error) {
	if !actor.isAdmin() {
		return model.Booking{}, newError(KindForbidden, "admin access required")
	}
	if err := validateInterval(in.StartAt, in.EndAt); err != nil {
		return model.Booking{}, err
	}
	if len(in.Reason) < minReasonLen {
		return model.Booking{}, newError(KindValidation, "override requires a justification of at least 10 characters")
	}

	room, err := s.store.GetRoom(ctx, in.RoomID)
	if err != nil {
		return model.Booking{}, mapStoreError(err, "room")
	}

	bk, err := s.store.CreateOverride(ctx, model.Booking{
		RoomID:     in.RoomID,
		UserID:     in.UserID,
		StartAt:    in.StartAt.UTC(),
		EndAt:      in.EndAt.UTC(),
		Purpose:    in.Purpose,
		IsOverride: true,
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.Booking{}, newError(KindNotFound, "user not found")
		}
		return model.Booking{}, wrapError(KindStoreUnavailable, "creating override booking failed", err)
	}

	s.invalidate(ctx, in.RoomID, in.StartAt, in.EndAt)
	s.audit(ctx, actor.ID, AuditOverrideCreated, "Booking", bk.ID, in.Reason)
	s.notifyAsync(in.UserID, NotifyOverrideCreated, "Booking placed: "+room.Name,
		"An administrator booked "+room.Name+" on your behalf.", map[string]any{
			"booking_id": bk.ID,
			"room_id":    bk.RoomID,
			"start_at":   bk.StartAt.Format(time.RFC3339),
			"end_at":     bk.EndAt.Format(time.RFC3339),
			"reason":     in.Reason,
		})
	return bk, nil
}

func (s *Service) invalidate(ctx context.Context, roomID string, from, to time.Time) {
	if s.cache == nil {
		return
	}
	s.cache.InvalidateRange(ctx, roomID, from, to)
}

func (s *Service) audit(ctx context.Context, actorID, actionType, targetType, targetID, reason string) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Record(ctx, actorID, actionType, targetType, targetID, reason); err != nil {
		s.logger.Error("audit record failed", "err", err, "action", actionType, "target_id", targetID)
	}
}

// notifyAsync fires the notification off the request path. Failures are
// logged, never surfaced.
func (s *Service) notifyAsync(userID, kind, title, message string, metadata map[string]any) {
	if s.notifier == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.notifier.Notify(ctx, userID, kind, title, message, metadata); err != nil {
			s.logger.Error("notification failed", "err", err, "user_id", userID, "kind", kind)
		}
	}()
}

func validateInterval(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return newError(KindValidation, "start and end times are required")
	}
	if !end.After(start) {
		return newError(KindInvalidState, "end time must be after start time")
	}
	return nil
}

func mapStoreError(err error, entity string) error {
	if errors.Is(err, ErrNotFound) {
		return newError(KindNotFound, entity+" not found")
	}
	return wrapError(KindStoreUnavailable, "loading "+entity+" failed", err)
}

func auditForDecision(decision string) string {
	if decision == model.StatusApproved {
		return AuditRequestApproved
	}
	return AuditRequestRejected
}

func requestMeta(req model.BookingRequest) map[string]any {
	return map[string]any{
		"request_id": req.ID,
		"room_id":    req.RoomID,
		"start_at":   req.StartAt.Format(time.RFC3339),
		"end_at":     req.EndAt.Format(time.RFC3339),
	}
}
