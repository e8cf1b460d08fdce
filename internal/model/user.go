package model

import "time"

// User is an account able to log in. Authorization comes from Roles, which
// expand into capability strings through the role_privileges table.
type User struct {
	ID           uint64
	Email        string
	PasswordHash string
	IsActive     bool
	Roles        []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Capabilities checked per protected operation.
const (
	CapEventCreate       = "EVENT_CREATE"
	CapEventUpdate       = "EVENT_UPDATE"
	CapEventChangeStatus = "EVENT_CHANGE_STATUS"
	CapSeatReserve       = "EVENT_SEAT_RESERVE"
	CapSeatCancel        = "EVENT_SEAT_CANCEL"
)
