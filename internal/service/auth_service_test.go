package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/event-seat-reservation/internal/clock"
	"github.com/iliyamo/event-seat-reservation/internal/model"
	"github.com/iliyamo/event-seat-reservation/internal/repository"
	"github.com/iliyamo/event-seat-reservation/internal/utils"
)

type memUsers struct {
	byID     map[uint64]*model.User
	rehashed map[uint64]string
}

func (m *memUsers) UpdatePasswordHash(_ context.Context, id uint64, hash string) error {
	if _, ok := m.byID[id]; !ok {
		return repository.ErrUserNotFound
	}
	if m.rehashed == nil {
		m.rehashed = map[uint64]string{}
	}
	m.rehashed[id] = hash
	return nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range m.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (m *memUsers) GetByID(_ context.Context, id uint64) (*model.User, error) {
	if u, ok := m.byID[id]; ok {
		return u, nil
	}
	return nil, repository.ErrUserNotFound
}

type refreshRow struct {
	userID  uint64
	exp     time.Time
	revoked bool
	reason  repository.RevokeReason
}

type memTokens struct {
	mu   sync.Mutex
	rows map[string]*refreshRow
}

func (m *memTokens) StoreRefresh(_ context.Context, userID uint64, hash string, exp time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[hash] = &refreshRow{userID: userID, exp: exp}
	return nil
}

func (m *memTokens) ValidateRefresh(_ context.Context, hash string, now time.Time) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[hash]
	switch {
	case ok && r.revoked && r.reason == repository.RevokeRotated:
		return r.userID, repository.ErrRefreshRevoked
	case !ok || r.revoked || now.After(r.exp):
		return 0, repository.ErrRefreshInvalid
	}
	return r.userID, nil
}

func (m *memTokens) RevokeByHash(_ context.Context, hash string, reason repository.RevokeReason) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[hash]
	if !ok || r.revoked {
		return false, nil
	}
	r.revoked, r.reason = true, reason
	return true, nil
}

func (m *memTokens) RevokeAllForUser(_ context.Context, userID uint64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, r := range m.rows {
		if r.userID == userID && !r.revoked {
			r.revoked, r.reason = true, repository.RevokeReuse
			n++
		}
	}
	return n, nil
}

const testSecret = "test-secret"

func newAuthService(t *testing.T, clk clock.Clock) (*AuthService, *memTokens) {
	t.Helper()
	hash, err := utils.HashPassword("s3cret!", bcrypt.MinCost)
	require.NoError(t, err)
	users := &memUsers{byID: map[uint64]*model.User{
		1: {ID: 1, Email: "admin@example.com", PasswordHash: hash, IsActive: true, Roles: []string{"ADMIN"}},
		2: {ID: 2, Email: "gone@example.com", PasswordHash: hash, IsActive: false, Roles: []string{"USER"}},
	}}
	tokens := &memTokens{rows: map[string]*refreshRow{}}
	svc, err := NewAuthService(users, tokens, AuthConfig{
		Secret:     testSecret,
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 24 * time.Hour,
		BcryptCost: bcrypt.MinCost,
	}, clk, nil)
	require.NoError(t, err)
	return svc, tokens
}

func TestAuthService_Login(t *testing.T) {
	ctx := context.Background()
	svc, tokens := newAuthService(t, clock.NewSystem())

	sess, err := svc.Login(ctx, "  ADMIN@example.com ", "s3cret!")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), sess.User.ID)
	assert.Len(t, sess.Refresh.Raw, 96)
	assert.Contains(t, tokens.rows, utils.HashRefreshRaw(sess.Refresh.Raw))

	parsed, err := jwt.Parse(sess.Access.Token, func(*jwt.Token) (any, error) { return []byte(testSecret), nil })
	require.NoError(t, err)
	claims := parsed.Claims.(jwt.MapClaims)
	assert.Equal(t, "1", claims["sub"])
	assert.Equal(t, []any{"ADMIN"}, claims["roles"])

	tests := []struct {
		name, email, password string
	}{
		{"wrong password", "admin@example.com", "nope"},
		{"unknown email", "who@example.com", "s3cret!"},
		{"inactive account", "gone@example.com", "s3cret!"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Login(ctx, tt.email, tt.password)
			require.ErrorIs(t, err, model.ErrUnauthorized)
		})
	}

	_, err = svc.Login(ctx, "", "")
	de, ok := model.AsError(err)
	require.True(t, ok)
	assert.Equal(t, model.KindValidation, de.Kind)
}

func TestAuthService_RefreshRotates(t *testing.T) {
	ctx := context.Background()
	svc, _ := newAuthService(t, clock.NewSystem())

	first, err := svc.Login(ctx, "admin@example.com", "s3cret!")
	require.NoError(t, err)

	second, err := svc.Refresh(ctx, first.Refresh.Raw)
	require.NoError(t, err)
	assert.NotEqual(t, first.Refresh.Raw, second.Refresh.Raw)

	_, err = svc.Refresh(ctx, first.Refresh.Raw)
	require.ErrorIs(t, err, model.ErrUnauthorized)

	require.NoError(t, svc.Logout(ctx, second.Refresh.Raw))
	_, err = svc.Refresh(ctx, second.Refresh.Raw)
	require.ErrorIs(t, err, model.ErrUnauthorized)
}

func TestAuthService_RefreshExpired(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(time.Now())
	svc, _ := newAuthService(t, clk)

	sess, err := svc.Login(ctx, "admin@example.com", "s3cret!")
	require.NoError(t, err)
	clk.Advance(25 * time.Hour)

	_, err = svc.Refresh(ctx, sess.Refresh.Raw)
	require.ErrorIs(t, err, model.ErrUnauthorized)
}

func TestAuthService_ReuseRevokesAllSessions(t *testing.T) {
	ctx := context.Background()
	svc, _ := newAuthService(t, clock.NewSystem())

	stolen, err := svc.Login(ctx, "admin@example.com", "s3cret!")
	require.NoError(t, err)
	other, err := svc.Login(ctx, "admin@example.com", "s3cret!")
	require.NoError(t, err)

	rotated, err := svc.Refresh(ctx, stolen.Refresh.Raw)
	require.NoError(t, err)

	_, err = svc.Refresh(ctx, stolen.Refresh.Raw)
	require.ErrorIs(t, err, model.ErrUnauthorized)

	for _, raw := range []string{rotated.Refresh.Raw, other.Refresh.Raw} {
		_, err = svc.Refresh(ctx, raw)
		assert.ErrorIs(t, err, model.ErrUnauthorized)
	}
}

func TestAuthService_RefreshAfterLogoutKeepsOtherSessions(t *testing.T) {
	ctx := context.Background()
	svc, _ := newAuthService(t, clock.NewSystem())

	phone, err := svc.Login(ctx, "admin@example.com", "s3cret!")
	require.NoError(t, err)
	laptop, err := svc.Login(ctx, "admin@example.com", "s3cret!")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, phone.Refresh.Raw))
	_, err = svc.Refresh(ctx, phone.Refresh.Raw)
	require.ErrorIs(t, err, model.ErrUnauthorized)

	_, err = svc.Refresh(ctx, laptop.Refresh.Raw)
	require.NoError(t, err)
}

func TestAuthService_LoginRehashesOnCostChange(t *testing.T) {
	ctx := context.Background()
	hash, err := utils.HashPassword("s3cret!", bcrypt.MinCost)
	require.NoError(t, err)
	users := &memUsers{byID: map[uint64]*model.User{
		1: {ID: 1, Email: "admin@example.com", PasswordHash: hash, IsActive: true, Roles: []string{"ADMIN"}},
	}}
	svc, err := NewAuthService(users, &memTokens{rows: map[string]*refreshRow{}}, AuthConfig{
		Secret: testSecret, AccessTTL: time.Minute, RefreshTTL: time.Hour, BcryptCost: bcrypt.MinCost + 1,
	}, clock.NewSystem(), nil)
	require.NoError(t, err)

	_, err = svc.Login(ctx, "admin@example.com", "s3cret!")
	require.NoError(t, err)

	newHash, ok := users.rehashed[1]
	require.True(t, ok)
	cost, err := bcrypt.Cost([]byte(newHash))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost+1, cost)
	assert.True(t, utils.VerifyPassword(newHash, "s3cret!"))

	// same cost: nothing to do
	users.rehashed = nil
	_, err = svc.Login(ctx, "admin@example.com", "s3cret!")
	require.NoError(t, err)
	assert.Empty(t, users.rehashed)
}
