package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/event-seat-reservation/internal/clock"
	"github.com/iliyamo/event-seat-reservation/internal/model"
	"github.com/iliyamo/event-seat-reservation/internal/repository"
	"github.com/iliyamo/event-seat-reservation/internal/utils"
)

// UserFinder loads accounts with their roles.
type UserFinder interface {
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByID(ctx context.Context, id uint64) (*model.User, error)
	UpdatePasswordHash(ctx context.Context, id uint64, hash string) error
}

// RefreshStore keeps hashed refresh tokens.
type RefreshStore interface {
	StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
	ValidateRefresh(ctx context.Context, tokenHash string, now time.Time) (uint64, error)
	RevokeByHash(ctx context.Context, tokenHash string, reason repository.RevokeReason) (bool, error)
	RevokeAllForUser(ctx context.Context, userID uint64) (int64, error)
}

type AuthConfig struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	BcryptCost int
}

// Session is what a successful login or refresh hands back.
type Session struct {
	User    *model.User
	Access  utils.AccessToken
	Refresh utils.RefreshToken
}

// AuthService issues access JWTs and rotating refresh tokens.
type AuthService struct {
	users  UserFinder
	tokens RefreshStore
	cfg    AuthConfig
	clock  clock.Clock
	log    *zap.Logger

	// compared against when the email is unknown so both paths pay for bcrypt
	dummyHash string
}

func NewAuthService(users UserFinder, tokens RefreshStore, cfg AuthConfig, clk clock.Clock, log *zap.Logger) (*AuthService, error) {
	if users == nil || tokens == nil || clk == nil {
		panic("nil dependency passed to NewAuthService")
	}
	if log == nil {
		log = zap.NewNop()
	}
	dummy, err := utils.HashPassword("unknown-account", cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("prepare password hash: %w", err)
	}
	return &AuthService{users: users, tokens: tokens, cfg: cfg, clock: clk, log: log.Named("auth"), dummyHash: dummy}, nil
}

// Login checks email and password and opens a new session.
func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, model.Validation(model.CodeInvalidParameter, "email and password are required")
	}
	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrUserNotFound) {
		utils.VerifyPassword(s.dummyHash, password)
		return nil, model.ErrUnauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !utils.VerifyPassword(u.PasswordHash, password) || !u.IsActive {
		return nil, model.ErrUnauthorized
	}
	s.rehash(ctx, u, password)
	return s.issue(ctx, u)
}

// rehash upgrades a hash made with another bcrypt cost.  Failure only costs
// another attempt at the next login.
func (s *AuthService) rehash(ctx context.Context, u *model.User, password string) {
	if !utils.NeedsRehash(u.PasswordHash, s.cfg.BcryptCost) {
		return
	}
	hash, err := utils.HashPassword(password, s.cfg.BcryptCost)
	if err == nil {
		err = s.users.UpdatePasswordHash(ctx, u.ID, hash)
	}
	if err != nil {
		s.log.Warn("password rehash failed", zap.Uint64("user_id", u.ID), zap.Error(err))
		return
	}
	u.PasswordHash = hash
}

// Refresh rotates a refresh token. The presented token is revoked first, so
// replaying it fails even if the new session could not be issued. Presenting
// a token that was already rotated away ends every session of its owner; a
// token ended by Logout is merely rejected.
func (s *AuthService) Refresh(ctx context.Context, raw string) (*Session, error) {
	if raw == "" {
		return nil, model.Validation(model.CodeInvalidParameter, "refresh_token is required")
	}
	hash := utils.HashRefreshRaw(raw)
	userID, err := s.tokens.ValidateRefresh(ctx, hash, s.clock.Now())
	if errors.Is(err, repository.ErrRefreshRevoked) {
		s.revokeAll(ctx, userID)
		return nil, model.ErrUnauthorized
	}
	if errors.Is(err, repository.ErrRefreshInvalid) {
		return nil, model.ErrUnauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("validate refresh: %w", err)
	}
	revoked, err := s.tokens.RevokeByHash(ctx, hash, repository.RevokeRotated)
	if err != nil {
		return nil, fmt.Errorf("revoke refresh: %w", err)
	}
	if !revoked {
		s.revokeAll(ctx, userID)
		return nil, model.ErrUnauthorized
	}
	u, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, model.ErrUnauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !u.IsActive {
		return nil, model.ErrUnauthorized
	}
	return s.issue(ctx, u)
}

func (s *AuthService) revokeAll(ctx context.Context, userID uint64) {
	n, err := s.tokens.RevokeAllForUser(ctx, userID)
	if err != nil {
		s.log.Error("revoke sessions after refresh reuse failed", zap.Uint64("user_id", userID), zap.Error(err))
		return
	}
	s.log.Warn("refresh token reused; sessions revoked", zap.Uint64("user_id", userID), zap.Int64("revoked", n))
}

// Logout revokes a refresh token. Unknown tokens are ignored.
func (s *AuthService) Logout(ctx context.Context, raw string) error {
	if raw == "" {
		return model.Validation(model.CodeInvalidParameter, "refresh_token is required")
	}
	if _, err := s.tokens.RevokeByHash(ctx, utils.HashRefreshRaw(raw), repository.RevokeLogout); err != nil {
		return fmt.Errorf("revoke refresh: %w", err)
	}
	return nil
}

func (s *AuthService) issue(ctx context.Context, u *model.User) (*Session, error) {
	now := s.clock.Now()
	access, err := utils.NewAccessToken(s.cfg.Secret, u.ID, u.Roles, s.cfg.AccessTTL, now)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := utils.NewRefreshToken(s.cfg.RefreshTTL, now)
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}
	if err := s.tokens.StoreRefresh(ctx, u.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}
	return &Session{User: u, Access: access, Refresh: refresh}, nil
}
