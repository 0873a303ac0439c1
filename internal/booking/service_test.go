package booking

import (
	"context"
	"testing"
	"time"

	"github.com/campushq/roombook/internal/model"
)

var (
	testRoom = model.Room{ID: "room-1", Name: "Lecture Hall A", IsActive: true}
	student  = Actor{ID: "user-1", Role: model.RoleStudent}
	admin    = Actor{ID: "admin-1", Role: model.RoleAdmin}
)

func at(hour, min int) time.Time {
	return time.Date(2024, 1, 5, hour, min, 0, 0, time.UTC)
}

func newTestService(store *fakeStore, opts ...func(*Config)) (*Service, *fakeNotifier, *fakeAuditor) {
	notifier := newFakeNotifier()
	auditor := &fakeAuditor{}
	cfg := Config{
		Store:    store,
		Notifier: notifier,
		Auditor:  auditor,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return NewService(cfg), notifier, auditor
}

func withAutoApprove(cfg *Config) { cfg.AutoApprove = true }
func withCache(c AvailabilityCache) func(*Config) {
	return func(cfg *Config) { cfg.Cache = c }
}

func TestCreateRequest_ConflictAndAdjacency(t *testing.T) {
	store := newFakeStore(testRoom)
	store.addBooking(model.Booking{RoomID: "room-1", StartAt: at(10, 0), EndAt: at(11, 0)})
	svc, _, _ := newTestService(store, withAutoApprove)

	_, err := svc.CreateRequest(context.Background(), student, CreateRequestInput{
		RoomID: "room-1", StartAt: at(10, 30), EndAt: at(11, 30), Purpose: "study group",
	})
	if KindOf(err) != KindConflict {
		t.Fatalf("overlapping request: got err %v, want Conflict", err)
	}

	res, err := svc.CreateRequest(context.Background(), student, CreateRequestInput{
		RoomID: "room-1", StartAt: at(11, 0), EndAt: at(12, 0), Purpose: "study group",
	})
	if err != nil {
		t.Fatalf("adjacent request should succeed: %v", err)
	}
	if res.Booking == nil {
		t.Fatal("auto-approve should create a booking")
	}
	if res.Request.Status != model.StatusApproved {
		t.Fatalf("request status = %s, want APPROVED", res.Request.Status)
	}
}

func TestCreateRequest_RoleRestriction(t *testing.T) {
	restricted := testRoom
	restricted.ID = "room-2"
	restricted.RestrictedRoles = []string{model.RoleFaculty, model.RoleAdmin}
	store := newFakeStore(restricted)
	svc, _, _ := newTestService(store)

	in := CreateRequestInput{RoomID: "room-2", StartAt: at(9, 0), EndAt: at(10, 0), Purpose: "office hours"}

	if _, err := svc.CreateRequest(context.Background(), student, in); KindOf(err) != KindForbidden {
		t.Fatalf("student booking restricted room: got %v, want Forbidden", err)
	}
	faculty := Actor{ID: "user-2", Role: model.RoleFaculty}
	if _, err := svc.CreateRequest(context.Background(), faculty, in); err != nil {
		t.Fatalf("faculty should be allowed: %v", err)
	}
}

func TestCreateRequest_RoomState(t *testing.T) {
	inactive := model.Room{ID: "r-inactive", Name: "Closed", IsActive: false}
	locked := model.Room{ID: "r-locked", Name: "Locked", IsActive: true, IsLocked: true}
	store := newFakeStore(inactive, locked)
	svc, _, _ := newTestService(store)

	in := CreateRequestInput{StartAt: at(9, 0), EndAt: at(10, 0), Purpose: "x"}

	in.RoomID = "r-inactive"
	if _, err := svc.CreateRequest(context.Background(), student, in); KindOf(err) != KindInvalidState {
		t.Fatalf("inactive room: got %v, want InvalidState", err)
	}
	in.RoomID = "r-locked"
	if _, err := svc.CreateRequest(context.Background(), student, in); KindOf(err) != KindInvalidState {
		t.Fatalf("locked room: got %v, want InvalidState", err)
	}
	in.RoomID = "missing"
	if _, err := svc.CreateRequest(context.Background(), student, in); KindOf(err) != KindNotFound {
		t.Fatalf("missing room: got %v, want NotFound", err)
	}
}

func TestCreateRequest_Validation(t *testing.T) {
	store := newFakeStore(testRoom)
	svc, _, _ := newTestService(store)

	if _, err := svc.CreateRequest(context.Background(), student, CreateRequestInput{
		RoomID: "room-1", StartAt: at(10, 0), EndAt: at(10, 0), Purpose: "x",
	}); KindOf(err) != KindInvalidState {
		t.Fatalf("zero-length interval: got %v, want InvalidState", err)
	}
	if _, err := svc.CreateRequest(context.Background(), student, CreateRequestInput{
		RoomID: "room-1", Purpose: "x",
	}); KindOf(err) != KindValidation {
		t.Fatalf("missing times: got %v, want ValidationError", err)
	}
	if _, err := svc.CreateRequest(context.Background(), student, CreateRequestInput{
		RoomID: "room-1", StartAt: at(9, 0), EndAt: at(10, 0),
	}); KindOf(err) != KindValidation {
		t.Fatalf("missing purpose: got %v, want ValidationError", err)
	}
}

func TestCreateRequest_PendingWithoutAutoApprove(t *testing.T) {
	store := newFakeStore(testRoom)
	svc, notifier, auditor := newTestService(store)

	res, err := svc.CreateRequest(context.Background(), student, CreateRequestInput{
		RoomID: "room-1", StartAt: at(9, 0), EndAt: at(10, 0), Purpose: "seminar",
	})
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if res.Booking != nil {
		t.Fatal("no booking should exist before approval")
	}
	if res.Request.Status != model.StatusPending {
		t.Fatalf("status = %s, want PENDING", res.Request.Status)
	}
	if got, ok := notifier.wait(); !ok || got.Kind != NotifyRequestSubmitted {
		t.Fatalf("notification = %+v (ok=%v), want REQUEST_SUBMITTED", got, ok)
	}
	if entry, ok := auditor.last(); !ok || entry.ActionType != AuditRequestSubmitted {
		t.Fatalf("audit = %+v (ok=%v), want BOOKING_REQUEST_SUBMITTED", entry, ok)
	}
}

func TestDecideRequest_ApproveAfterInterveningBooking(t *testing.T) {
	store := newFakeStore(testRoom)
	svc, _, _ := newTestService(store)

	res, err := svc.CreateRequest(context.Background(), student, CreateRequestInput{
		RoomID: "room-1", StartAt: at(10, 0), EndAt: at(11, 0), Purpose: "seminar",
	})
	if err != nil {
		t.Fatalf("create request: %v", err)
	}

	// Another booking lands between request and approval.
	store.addBooking(model.Booking{RoomID: "room-1", StartAt: at(10, 30), EndAt: at(11, 30)})

	_, err = svc.DecideRequest(context.Background(), admin, DecideRequestInput{
		RequestID: res.Request.ID, Decision: model.StatusApproved,
	})
	if KindOf(err) != KindConflict {
		t.Fatalf("approve conflicted request: got %v, want Conflict", err)
	}

	req, err := store.GetRequest(context.Background(), res.Request.ID)
	if err != nil {
		t.Fatalf("reload request: %v", err)
	}
	if req.Status != model.StatusPending {
		t.Fatalf("request left PENDING on failed approval: %s", req.Status)
	}
}

func TestDecideRequest_ApproveCreatesBooking(t *testing.T) {
	store := newFakeStore(testRoom)
	svc, notifier, _ := newTestService(store)

	res, _ := svc.CreateRequest(context.Background(), student, CreateRequestInput{
		RoomID: "room-1", StartAt: at(10, 0), EndAt: at(11, 0), Purpose: "seminar",
	})
	notifier.wait()

	out, err := svc.DecideRequest(context.Background(), admin, DecideRequestInput{
		RequestID: res.Request.ID, Decision: model.StatusApproved,
	})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if out.Booking == nil || out.Booking.RequestID != res.Request.ID {
		t.Fatalf("approval should create a booking linked to the request, got %+v", out.Booking)
	}
	if got, ok := notifier.wait(); !ok || got.Kind != NotifyRequestApproved {
		t.Fatalf("notification = %+v (ok=%v), want REQUEST_APPROVED", got, ok)
	}
}

func TestDecideRequest_ModifiedTimes(t *testing.T) {
	store := newFakeStore(testRoom)
	svc, notifier, _ := newTestService(store)

	res, _ := svc.CreateRequest(context.Background(), student, CreateRequestInput{
		RoomID: "room-1", StartAt: at(10, 0), EndAt: at(11, 0), Purpose: "seminar",
	})
	notifier.wait()

	newStart, newEnd := at(14, 0), at(15, 0)
	out, err := svc.DecideRequest(context.Background(), admin, DecideRequestInput{
		RequestID: res.Request.ID, Decision: model.StatusApproved,
		StartAt: &newStart, EndAt: &newEnd,
	})
	if err != nil {
		t.Fatalf("approve with new times: %v", err)
	}
	if !out.Booking.StartAt.Equal(newStart) || !out.Booking.EndAt.Equal(newEnd) {
		t.Fatalf("booking interval = [%s, %s), want admin-edited times", out.Booking.StartAt, out.Booking.EndAt)
	}
	if got, ok := notifier.wait(); !ok || got.Kind != NotifyRequestModified {
		t.Fatalf("notification = %+v (ok=%v), want REQUEST_MODIFIED", got, ok)
	}
}

func TestDecideRequest_RejectNeedsJustification(t *testing.T) {
	store := newFakeStore(testRoom)
	svc, notifier, _ := newTestService(store)

	res, _ := svc.CreateRequest(context.Background(), student, CreateRequestInput{
		RoomID: "room-1", StartAt: at(10, 0), EndAt: at(11, 0), Purpose: "seminar",
	})
	notifier.wait()

	_, err := svc.DecideRequest(context.Background(), admin, DecideRequestInput{
		RequestID: res.Request.ID, Decision: model.StatusRejected, Reason: "too bad",
	})
	if KindOf(err) != KindValidation {
		t.Fatalf("short reason: got %v, want ValidationError", err)
	}

	out, err := svc.DecideRequest(context.Background(), admin, DecideRequestInput{
		RequestID: res.Request.ID, Decision: model.StatusRejected, Reason: "room reserved for exams this week",
	})
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if out.Request.Status != model.StatusRejected || out.Booking != nil {
		t.Fatalf("rejection should not create a booking: %+v", out)
	}
	if got, ok := notifier.wait(); !ok || got.Kind != NotifyRequestRejected {
		t.Fatalf("notification = %+v (ok=%v), want REQUEST_REJECTED", got, ok)
	}
}

func TestDecideRequest_AdminOnlyAndTerminalStates(t *testing.T) {
	store := newFakeStore(testRoom)
	svc, notifier, _ := newTestService(store)

	res, _ := svc.CreateRequest(context.Background(), student, CreateRequestInput{
		RoomID: "room-1", StartAt: at(10, 0), EndAt: at(11, 0), Purpose: "seminar",
	})
	notifier.wait()

	if _, err := svc.DecideRequest(context.Background(), student, DecideRequestInput{
		RequestID: res.Request.ID, Decision: model.StatusApproved,
	}); KindOf(err) != KindForbidden {
		t.Fatalf("non-admin decision: got %v, want Forbidden", err)
	}

	if _, err := svc.DecideRequest(context.Background(), admin, DecideRequestInput{
		RequestID: res.Request.ID, Decision: model.StatusApproved,
	}); err != nil {
		t.Fatalf("approve: %v", err)
	}

	// Approved requests are terminal.
	if _, err := svc.DecideRequest(context.Background(), admin, DecideRequestInput{
		RequestID: res.Request.ID, Decision: model.StatusRejected, Reason: "changed my mind, sorry",
	}); KindOf(err) != KindInvalidState {
		t.Fatalf("deciding a decided request: got %v, want InvalidState", err)
	}
}

func TestCancelRequest(t *testing.T) {
	store := newFakeStore(testRoom)
	svc, notifier, _ := newTestService(store)

	res, _ := svc.CreateRequest(context.Background(), student, CreateRequestInput{
		RoomID: "room-1", StartAt: at(10, 0), EndAt: at(11, 0), Purpose: "seminar",
	})
	notifier.wait()

	other := Actor{ID: "user-99", Role: model.RoleStudent}
	if _, err := svc.CancelRequest(context.Background(), other, res.Request.ID); KindOf(err) != KindForbidden {
		t.Fatalf("cancelling someone else's request: got %v, want Forbidden", err)
	}

	updated, err := svc.CancelRequest(context.Background(), student, res.Request.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if updated.Status != model.StatusCancelled {
		t.Fatalf("status = %s, want CANCELLED", updated.Status)
	}

	if _, err := svc.CancelRequest(context.Background(), student, res.Request.ID); KindOf(err) != KindInvalidState {
		t.Fatalf("cancelling a cancelled request: got %v, want InvalidState", err)
	}
}

func TestOverride_BypassesCheckThenBlocks(t *testing.T) {
	store := newFakeStore(testRoom)
	store.addBooking(model.Booking{RoomID: "room-1", StartAt: at(9, 30), EndAt: at(9, 45)})
	svc, notifier, auditor := newTestService(store, withAutoApprove)

	bk, err := svc.CreateOverride(context.Background(), admin, OverrideInput{
		RoomID: "room-1", UserID: "user-5", StartAt: at(9, 0), EndAt: at(10, 0),
		Purpose: "department meeting", Reason: "preempting for faculty assembly",
	})
	if err != nil {
		t.Fatalf("override over existing booking should succeed: %v", err)
	}
	if !bk.IsOverride {
		t.Fatal("booking should be flagged as override")
	}

	// The override now blocks ordinary requests.
	_, err = svc.CreateRequest(context.Background(), student, CreateRequestInput{
		RoomID: "room-1", StartAt: at(9, 15), EndAt: at(9, 35), Purpose: "study",
	})
	if KindOf(err) != KindConflict {
		t.Fatalf("request overlapping override: got %v, want Conflict", err)
	}

	if entry, ok := auditor.last(); !ok || entry.ActionType != AuditOverrideCreated || entry.Reason == "" {
		t.Fatalf("audit = %+v (ok=%v), want BOOKING_OVERRIDE_CREATED with reason", entry, ok)
	}
	if got, ok := notifier.wait(); !ok || got.Kind != NotifyOverrideCreated || got.UserID != "user-5" {
		t.Fatalf("notification = %+v (ok=%v), want OVERRIDE_CREATED for user-5", got, ok)
	}
}

func TestOverride_Guards(t *testing.T) {
	store := newFakeStore(testRoom)
	svc, _, _ := newTestService(store)

	in := OverrideInput{
		RoomID: "room-1", UserID: "user-5", StartAt: at(9, 0), EndAt: at(10, 0),
		Purpose: "meeting", Reason: "long enough justification",
	}

	if _, err := svc.CreateOverride(context.Background(), student, in); KindOf(err) != KindForbidden {
		t.Fatalf("non-admin override: got %v, want Forbidden", err)
	}

	short := in
	short.Reason = "because"
	if _, err := svc.CreateOverride(context.Background(), admin, short); KindOf(err) != KindValidation {
		t.Fatalf("short reason: got %v, want ValidationError", err)
	}

	missingRoom := in
	missingRoom.RoomID = "nope"
	if _, err := svc.CreateOverride(context.Background(), admin, missingRoom); KindOf(err) != KindNotFound {
		t.Fatalf("missing room: got %v, want NotFound", err)
	}
}

func TestFailsClosedWhenStoreDown(t *testing.T) {
	store := newFakeStore(testRoom)
	svc, _, _ := newTestService(store)
	store.failing = true

	if _, err := svc.CheckConflict(context.Background(), "room-1", at(9, 0), at(10, 0), ""); KindOf(err) != KindStoreUnavailable {
		t.Fatalf("conflict check with store down: got %v, want StoreUnavailable", err)
	}
	if _, err := svc.DayTimeSlots(context.Background(), "room-1", at(0, 0)); KindOf(err) != KindStoreUnavailable {
		t.Fatalf("slots with store down: got %v, want StoreUnavailable", err)
	}
	if _, err := svc.CreateRequest(context.Background(), student, CreateRequestInput{
		RoomID: "room-1", StartAt: at(9, 0), EndAt: at(10, 0), Purpose: "x",
	}); KindOf(err) != KindStoreUnavailable {
		t.Fatalf("create with store down: got %v, want StoreUnavailable", err)
	}
}

func TestDayTimeSlots_CacheReadThroughAndInvalidation(t *testing.T) {
	store := newFakeStore(testRoom)
	cache := newFakeCache()
	svc, _, _ := newTestService(store, withAutoApprove, withCache(cache))

	date := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)

	first, err := svc.DayTimeSlots(context.Background(), "room-1", date)
	if err != nil {
		t.Fatalf("slots: %v", err)
	}
	if len(first) != 48 {
		t.Fatalf("expected 48 slots, got %d", len(first))
	}

	// Second read hits the cache.
	if _, err := svc.DayTimeSlots(context.Background(), "room-1", date); err != nil {
		t.Fatalf("cached slots: %v", err)
	}
	if cache.hits != 1 {
		t.Fatalf("cache hits = %d, want 1", cache.hits)
	}

	// A booking write invalidates the day and the next read is fresh.
	if _, err := svc.CreateRequest(context.Background(), student, CreateRequestInput{
		RoomID: "room-1", StartAt: at(10, 0), EndAt: at(11, 0), Purpose: "seminar",
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	after, err := svc.DayTimeSlots(context.Background(), "room-1", date)
	if err != nil {
		t.Fatalf("slots after write: %v", err)
	}
	blocked := 0
	for _, s := range after {
		if !s.IsAvailable {
			blocked++
		}
	}
	if blocked != 2 {
		t.Fatalf("blocked slots = %d, want 2 (one hour)", blocked)
	}
}
