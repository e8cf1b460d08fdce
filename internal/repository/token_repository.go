package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// TokenRepo stores refresh tokens by their SHA-256 hash; the raw token never
// reaches the database.
type TokenRepo struct{ db *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{db: db} }

// RevokeReason records why a refresh token stopped being valid. Only a
// token given up by rotation signals replay when presented again.
type RevokeReason string

const (
	RevokeRotated RevokeReason = "ROTATED"
	RevokeLogout  RevokeReason = "LOGOUT"
	RevokeReuse   RevokeReason = "REUSE"
)

// StoreRefresh inserts a refresh token hash row.
func (r *TokenRepo) StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO refresh_tokens (user_id, token_hash, expires_at) VALUES (?,?,?)",
		userID, tokenHash, exp)
	return err
}

// ValidateRefresh returns the owning user id if the token is active at now.
// A token revoked by rotation yields the owner together with
// ErrRefreshRevoked so that callers can treat it as replay. Unknown, expired
// and otherwise revoked tokens (logout, reuse sweep) yield ErrRefreshInvalid.
func (r *TokenRepo) ValidateRefresh(ctx context.Context, tokenHash string, now time.Time) (uint64, error) {
	var (
		userID    uint64
		expiresAt time.Time
		revokedAt sql.NullTime
		reason    sql.NullString
	)
	err := r.db.QueryRowContext(ctx,
		"SELECT user_id, expires_at, revoked_at, revoke_reason FROM refresh_tokens WHERE token_hash=? LIMIT 1",
		tokenHash).Scan(&userID, &expiresAt, &revokedAt, &reason)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, ErrRefreshInvalid
	case err != nil:
		return 0, err
	case revokedAt.Valid && RevokeReason(reason.String) == RevokeRotated:
		return userID, ErrRefreshRevoked
	case revokedAt.Valid, now.After(expiresAt):
		return 0, ErrRefreshInvalid
	}
	return userID, nil
}

// RevokeByHash marks one token as revoked for reason.  It reports false when
// the token was already revoked or unknown, which lets rotation detect a lost
// race.
func (r *TokenRepo) RevokeByHash(ctx context.Context, tokenHash string, reason RevokeReason) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=UTC_TIMESTAMP(), revoke_reason=? WHERE token_hash=? AND revoked_at IS NULL",
		string(reason), tokenHash)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// RevokeAllForUser ends every live session of a user and returns how many
// tokens it revoked.
func (r *TokenRepo) RevokeAllForUser(ctx context.Context, userID uint64) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=UTC_TIMESTAMP(), revoke_reason=? WHERE user_id=? AND revoked_at IS NULL",
		string(RevokeReuse), userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
