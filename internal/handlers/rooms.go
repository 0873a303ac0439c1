package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/campushq/roombook/internal/model"
	"github.com/campushq/roombook/internal/storage"
)

// RoomStore is the room catalog the handler serves from.
type RoomStore interface {
	List(ctx context.Context, f storage.RoomFilter) ([]model.Room, error)
	Get(ctx context.Context, id string) (model.Room, error)
	Create(ctx context.Context, room model.Room) (model.Room, error)
	Update(ctx context.Context, room model.Room) (model.Room, error)
}

type RoomHandler struct {
	rooms  RoomStore
	logger *slog.Logger
}

func NewRoomHandler(rooms RoomStore, logger *slog.Logger) *RoomHandler {
	return &RoomHandler{rooms: rooms, logger: logger}
}

type roomBody struct {
	ID              string   `json:"id,omitempty"`
	Name            string   `json:"name"`
	Building        string   `json:"building"`
	Capacity        int      `json:"capacity"`
	Equipment       []string `json:"equipment"`
	IsActive        *bool    `json:"is_active,omitempty"`
	IsLocked        *bool    `json:"is_locked,omitempty"`
	RestrictedRoles []string `json:"restricted_roles,omitempty"`
}

type roomItem struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Building        string   `json:"building"`
	Capacity        int      `json:"capacity"`
	Equipment       []string `json:"equipment"`
	IsActive        bool     `json:"is_active"`
	IsLocked        bool     `json:"is_locked"`
	RestrictedRoles []string `json:"restricted_roles,omitempty"`
	CreatedAt       string   `json:"created_at"`
	UpdatedAt       string   `json:"updated_at"`
}

func (h *RoomHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	filter := storage.RoomFilter{
		Building:  strings.TrimSpace(r.URL.Query().Get("building")),
		Equipment: strings.TrimSpace(r.URL.Query().Get("equipment")),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("min_capacity")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid min_capacity"})
			return
		}
		filter.MinCapacity = n
	}
	if actor, ok := actorFrom(r); ok && actor.Role == model.RoleAdmin {
		filter.IncludeInactive = r.URL.Query().Get("include_inactive") == "true"
	}

	rooms, err := h.rooms.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	items := make([]roomItem, 0, len(rooms))
	for _, room := range rooms {
		items = append(items, toRoomItem(room))
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *RoomHandler) Get(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "id is required"})
		return
	}
	room, err := h.rooms.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toRoomItem(room))
}

func (h *RoomHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := actorFrom(r)
	if !ok {
		writeUnauthenticated(w)
		return
	}
	if actor.Role != model.RoleAdmin {
		writeJSON(w, http.StatusForbidden, errorBody{Error: "admin access required"})
		return
	}

	var body roomBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json body"})
		return
	}
	room, errMsg := roomFromBody(body)
	if errMsg != "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: errMsg})
		return
	}

	created, err := h.rooms.Create(r.Context(), room)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRoomItem(created))
}

// Update replaces a room's mutable fields. Deactivating or locking a room
// goes through here; existing bookings are untouched either way.
func (h *RoomHandler) Update(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := actorFrom(r)
	if !ok {
		writeUnauthenticated(w)
		return
	}
	if actor.Role != model.RoleAdmin {
		writeJSON(w, http.StatusForbidden, errorBody{Error: "admin access required"})
		return
	}

	var body roomBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json body"})
		return
	}
	if strings.TrimSpace(body.ID) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "id is required"})
		return
	}
	room, errMsg := roomFromBody(body)
	if errMsg != "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: errMsg})
		return
	}
	room.ID = strings.TrimSpace(body.ID)

	updated, err := h.rooms.Update(r.Context(), room)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toRoomItem(updated))
}

func roomFromBody(body roomBody) (model.Room, string) {
	name := strings.TrimSpace(body.Name)
	building := strings.TrimSpace(body.Building)
	if name == "" || building == "" {
		return model.Room{}, "name and building are required"
	}
	if body.Capacity <= 0 {
		return model.Room{}, "capacity must be positive"
	}

	room := model.Room{
		Name:            name,
		Building:        building,
		Capacity:        body.Capacity,
		Equipment:       body.Equipment,
		IsActive:        true,
		RestrictedRoles: body.RestrictedRoles,
	}
	if room.Equipment == nil {
		room.Equipment = []string{}
	}
	if body.IsActive != nil {
		room.IsActive = *body.IsActive
	}
	if body.IsLocked != nil {
		room.IsLocked = *body.IsLocked
	}
	for _, role := range room.RestrictedRoles {
		switch role {
		case model.RoleStudent, model.RoleFaculty, model.RoleAdmin:
		default:
			return model.Room{}, "unknown role in restricted_roles: " + role
		}
	}
	return room, ""
}

func toRoomItem(room model.Room) roomItem {
	return roomItem{
		ID:              room.ID,
		Name:            room.Name,
		Building:        room.Building,
		Capacity:        room.Capacity,
		Equipment:       room.Equipment,
		IsActive:        room.IsActive,
		IsLocked:        room.IsLocked,
		RestrictedRoles: room.RestrictedRoles,
		CreatedAt:       room.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:       room.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
