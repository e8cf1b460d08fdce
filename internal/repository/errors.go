// Package repository implements MySQL persistence for events, seats and the
// identity tables.  Event and seat lookups report model.ErrEventNotFound and
// model.ErrSeatNotFound so handlers can map them straight to 404; the
// sentinels below cover the identity tables, which have no domain errors.
package repository

import "errors"

// ErrUserNotFound is returned when no user matches the lookup.
var ErrUserNotFound = errors.New("user not found")

// ErrRefreshInvalid covers unknown and expired refresh tokens.
var ErrRefreshInvalid = errors.New("refresh token invalid")

// ErrRefreshRevoked is returned for a refresh token that was already used or
// logged out.
var ErrRefreshRevoked = errors.New("refresh token revoked")
