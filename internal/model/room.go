package model

import "time"

// Roles known to the booking policy. Rooms may restrict booking to a
// subset of these; an empty restriction list means anyone can book.
const (
	RoleStudent = "STUDENT"
	RoleFaculty = "FACULTY"
	RoleAdmin   = "ADMIN"
)

type Room struct {
	ID              string
	Name            string
	Building        string
	Capacity        int
	Equipment       []string
	IsActive        bool
	IsLocked        bool
	RestrictedRoles []string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// AllowsRole reports whether a user with the given role may book the room.
func (r Room) AllowsRole(role string) bool {
	if len(r.RestrictedRoles) == 0 {
		return true
	}
	for _, allowed := range r.RestrictedRoles {
		if allowed == role {
			return true
		}
	}
	return false
}
