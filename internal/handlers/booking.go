package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/campushq/roombook/internal/availability"
	"github.com/campushq/roombook/internal/booking"
	"github.com/campushq/roombook/internal/model"
)

// ListStore is the read side of the booking endpoints that bypass the
// lifecycle service.
type ListStore interface {
	ListBookings(ctx context.Context, roomID string, from, to time.Time, limit int) ([]model.Booking, error)
	ListRequests(ctx context.Context, userID, status string, limit int) ([]model.BookingRequest, error)
}

type BookingHandler struct {
	svc    *booking.Service
	lists  ListStore
	logger *slog.Logger
}

func NewBookingHandler(svc *booking.Service, lists ListStore, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{svc: svc, lists: lists, logger: logger}
}

type createRequestBody struct {
	RoomID  string `json:"room_id"`
	StartAt string `json:"start_at"`
	EndAt   string `json:"end_at"`
	Purpose string `json:"purpose"`
}

type decideRequestBody struct {
	RequestID string `json:"request_id"`
	Decision  string `json:"decision"`
	Reason    string `json:"reason"`
	StartAt   string `json:"start_at,omitempty"`
	EndAt     string `json:"end_at,omitempty"`
}

type cancelRequestBody struct {
	RequestID string `json:"request_id"`
}

type overrideBody struct {
	RoomID  string `json:"room_id"`
	UserID  string `json:"user_id"`
	StartAt string `json:"start_at"`
	EndAt   string `json:"end_at"`
	Purpose string `json:"purpose"`
	Reason  string `json:"reason"`
}

type requestItem struct {
	RequestID string `json:"request_id"`
	RoomID    string `json:"room_id"`
	UserID    string `json:"user_id"`
	StartAt   string `json:"start_at"`
	EndAt     string `json:"end_at"`
	Purpose   string `json:"purpose"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type bookingItem struct {
	BookingID  string `json:"booking_id"`
	RoomID     string `json:"room_id"`
	UserID     string `json:"user_id"`
	StartAt    string `json:"start_at"`
	EndAt      string `json:"end_at"`
	Purpose    string `json:"purpose"`
	IsOverride bool   `json:"is_override"`
	RequestID  string `json:"request_id,omitempty"`
	CreatedAt  string `json:"created_at"`
}

type lifecycleResponse struct {
	Request requestItem  `json:"request"`
	Booking *bookingItem `json:"booking,omitempty"`
}

// Slots serves the 48-slot day view for a room.
func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	roomID := strings.TrimSpace(r.URL.Query().Get("room_id"))
	dateStr := strings.TrimSpace(r.URL.Query().Get("date"))
	if roomID == "" || dateStr == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "room_id and date are required"})
		return
	}
	date, err := time.ParseInLocation("2006-01-02", dateStr, time.UTC)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "date must be YYYY-MM-DD"})
		return
	}

	slots, err := h.svc.DayTimeSlots(r.Context(), roomID, date)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		RoomID string                  `json:"room_id"`
		Date   string                  `json:"date"`
		Slots  []availability.TimeSlot `json:"slots"`
	}{RoomID: roomID, Date: dateStr, Slots: slots})
}

func (h *BookingHandler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := actorFrom(r)
	if !ok {
		writeUnauthenticated(w)
		return
	}

	var body createRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json body"})
		return
	}
	startAt, endAt, err := parseInterval(body.StartAt, body.EndAt)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	res, err := h.svc.CreateRequest(r.Context(), actor, booking.CreateRequestInput{
		RoomID:  strings.TrimSpace(body.RoomID),
		StartAt: startAt,
		EndAt:   endAt,
		Purpose: strings.TrimSpace(body.Purpose),
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLifecycleResponse(res))
}

func (h *BookingHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := actorFrom(r)
	if !ok {
		writeUnauthenticated(w)
		return
	}

	// Non-admins only ever see their own requests.
	userID := actor.ID
	if actor.Role == model.RoleAdmin && r.URL.Query().Get("mine") != "true" {
		userID = strings.TrimSpace(r.URL.Query().Get("user_id"))
	}
	status := strings.TrimSpace(r.URL.Query().Get("status"))

	reqs, err := h.lists.ListRequests(r.Context(), userID, status, parseLimit(r, 50))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	items := make([]requestItem, 0, len(reqs))
	for _, req := range reqs {
		items = append(items, toRequestItem(req))
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *BookingHandler) Decide(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := actorFrom(r)
	if !ok {
		writeUnauthenticated(w)
		return
	}

	var body decideRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json body"})
		return
	}
	in := booking.DecideRequestInput{
		RequestID: strings.TrimSpace(body.RequestID),
		Decision:  strings.TrimSpace(body.Decision),
		Reason:    strings.TrimSpace(body.Reason),
	}
	if body.StartAt != "" {
		t, err := time.Parse(time.RFC3339, body.StartAt)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid start_at"})
			return
		}
		in.StartAt = &t
	}
	if body.EndAt != "" {
		t, err := time.Parse(time.RFC3339, body.EndAt)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid end_at"})
			return
		}
		in.EndAt = &t
	}

	res, err := h.svc.DecideRequest(r.Context(), actor, in)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toLifecycleResponse(res))
}

func (h *BookingHandler) CancelRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := actorFrom(r)
	if !ok {
		writeUnauthenticated(w)
		return
	}

	var body cancelRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json body"})
		return
	}

	req, err := h.svc.CancelRequest(r.Context(), actor, strings.TrimSpace(body.RequestID))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestItem(req))
}

func (h *BookingHandler) Override(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := actorFrom(r)
	if !ok {
		writeUnauthenticated(w)
		return
	}

	var body overrideBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json body"})
		return
	}
	startAt, endAt, err := parseInterval(body.StartAt, body.EndAt)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	userID := strings.TrimSpace(body.UserID)
	if userID == "" {
		userID = actor.ID
	}

	bk, err := h.svc.CreateOverride(r.Context(), actor, booking.OverrideInput{
		RoomID:  strings.TrimSpace(body.RoomID),
		UserID:  userID,
		StartAt: startAt,
		EndAt:   endAt,
		Purpose: strings.TrimSpace(body.Purpose),
		Reason:  strings.TrimSpace(body.Reason),
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	item := toBookingItem(bk)
	writeJSON(w, http.StatusCreated, &item)
}

func (h *BookingHandler) ListBookings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	roomID := strings.TrimSpace(r.URL.Query().Get("room_id"))
	var from, to time.Time
	if raw := strings.TrimSpace(r.URL.Query().Get("from")); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid from"})
			return
		}
		from = t
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("to")); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid to"})
			return
		}
		to = t
	}

	bookings, err := h.lists.ListBookings(r.Context(), roomID, from, to, parseLimit(r, 50))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	items := make([]bookingItem, 0, len(bookings))
	for _, b := range bookings {
		items = append(items, toBookingItem(b))
	}
	writeJSON(w, http.StatusOK, items)
}

func parseInterval(startRaw, endRaw string) (time.Time, time.Time, error) {
	startAt, err := time.Parse(time.RFC3339, startRaw)
	if err != nil {
		return time.Time{}, time.Time{}, errInvalidStart
	}
	endAt, err := time.Parse(time.RFC3339, endRaw)
	if err != nil {
		return time.Time{}, time.Time{}, errInvalidEnd
	}
	return startAt, endAt, nil
}

var (
	errInvalidStart = jsonFieldError("invalid or missing start_at")
	errInvalidEnd   = jsonFieldError("invalid or missing end_at")
)

type jsonFieldError string

func (e jsonFieldError) Error() string { return string(e) }

func toRequestItem(req model.BookingRequest) requestItem {
	return requestItem{
		RequestID: req.ID,
		RoomID:    req.RoomID,
		UserID:    req.UserID,
		StartAt:   req.StartAt.UTC().Format(time.RFC3339),
		EndAt:     req.EndAt.UTC().Format(time.RFC3339),
		Purpose:   req.Purpose,
		Status:    req.Status,
		CreatedAt: req.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: req.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toBookingItem(b model.Booking) bookingItem {
	return bookingItem{
		BookingID:  b.ID,
		RoomID:     b.RoomID,
		UserID:     b.UserID,
		StartAt:    b.StartAt.UTC().Format(time.RFC3339),
		EndAt:      b.EndAt.UTC().Format(time.RFC3339),
		Purpose:    b.Purpose,
		IsOverride: b.IsOverride,
		RequestID:  b.RequestID,
		CreatedAt:  b.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toLifecycleResponse(res booking.Result) lifecycleResponse {
	out := lifecycleResponse{Request: toRequestItem(res.Request)}
	if res.Booking != nil {
		item := toBookingItem(*res.Booking)
		out.Booking = &item
	}
	return out
}
