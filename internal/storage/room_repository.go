package storage

import (
	"context"
	"errors"

	"github.com/campushq/roombook/internal/booking"
	"github.com/campushq/roombook/internal/model"
	"github.com/campushq/roombook/libs/db"
	"github.com/jackc/pgx/v5"
)

type RoomRepository struct {
	pool *db.Pool
}

func NewRoomRepository(pool *db.Pool) *RoomRepository {
	return &RoomRepository{pool: pool}
}

// RoomFilter narrows List results. Zero values mean "any".
type RoomFilter struct {
	Building        string
	MinCapacity     int
	Equipment       string
	IncludeInactive bool
}

func (r *RoomRepository) List(ctx context.Context, f RoomFilter) ([]model.Room, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, name, building, capacity, equipment, is_active, is_locked,
			COALESCE(restricted_roles, '{}'), created_at, updated_at
		FROM rooms
		WHERE ($1::text = '' OR building = $1)
			AND ($2::int = 0 OR capacity >= $2)
			AND ($3::text = '' OR $3 = ANY(equipment))
			AND ($4::bool OR is_active)
		ORDER BY building, name
	`, f.Building, f.MinCapacity, f.Equipment, f.IncludeInactive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []model.Room
	for rows.Next() {
		var room model.Room
		if err := rows.Scan(
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
		); err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return rooms, nil
}

func (r *RoomRepository) Get(ctx context.Context, id string) (model.Room, error) {
	var room model.Room
	err := r.pool.QueryRow(ctx, `
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

func (r *RoomRepository) Create(ctx context.Context, room model.Room) (model.Room, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO rooms (name, building, capacity, equipment, is_active, is_locked, restricted_roles)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id::text, created_at, updated_at
	`, room.Name, room.Building, room.Capacity, room.Equipment,
		room.IsActive, room.IsLocked, restrictedRolesArg(room.RestrictedRoles),
	).Scan(&room.ID, &room.CreatedAt, &room.UpdatedAt)
	if err != nil {
		return model.Room{}, err
	}
	return room, nil
}

// Update replaces the mutable fields of a room. Rooms are never deleted;
// deactivation is an update with IsActive=false.
func (r *RoomRepository) Update(ctx context.Context, room model.Room) (model.Room, error) {
	err := r.pool.QueryRow(ctx, `
		UPDATE rooms
		SET name = $2,
			building = $3,
			capacity = $4,
			equipment = $5,
			is_active = $6,
			is_locked = $7,
			restricted_roles = $8,
			updated_at = now()
		WHERE id = $1
		RETURNING created_at, updated_at
	`, room.ID, room.Name, room.Building, room.Capacity, room.Equipment,
		room.IsActive, room.IsLocked, restrictedRolesArg(room.RestrictedRoles),
	).Scan(&room.CreatedAt, &room.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Room{}, booking.ErrNotFound
		}
		return model.Room{}, err
	}
	return room, nil
}

// restrictedRolesArg stores an empty restriction list as NULL so that
// "unrestricted" reads the same whichever way it was written.
func restrictedRolesArg(roles []string) []string {
	if len(roles) == 0 {
		return nil
	}
	return roles
}
