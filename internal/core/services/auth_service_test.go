package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fedwatch.dashboard/internal/core/domain"
)

func newTestAuth(t *testing.T) (*AuthService, *memUserRepo, *memSessions) {
	t.Helper()
	users := newMemUserRepo()
	sessions := newMemSessions()
	auth := NewAuthService(users, sessions, time.Hour, 100, 100)
	require.NoError(t, auth.EnsureDefaultUser(context.Background()))
	return auth, users, sessions
}

func TestDigestPassword(t *testing.T) {
	assert.Equal(t, "8c6976e5b5410415bde908bd4dee15dfb167a9c873fc4bb8a81f6f2ab448a918", DigestPassword("admin"))
}

func TestEnsureDefaultUser(t *testing.T) {
	auth, users, _ := newTestAuth(t)
	ctx := context.Background()

	user, err := users.GetUser(ctx, domain.DefaultUsername)
	require.NoError(t, err)
	assert.True(t, user.MustChangePassword)
	assert.NotEqual(t, DigestPassword("admin"), user.PasswordHash)

	// a second call keeps the existing user
	user.MustChangePassword = false
	require.NoError(t, users.CreateOrUpdate(ctx, user))
	require.NoError(t, auth.EnsureDefaultUser(ctx))
	user, err = users.GetUser(ctx, domain.DefaultUsername)
	require.NoError(t, err)
	assert.False(t, user.MustChangePassword)
}

func TestLoginAndAuthenticate(t *testing.T) {
	auth, _, _ := newTestAuth(t)
	ctx := context.Background()

	token, err := auth.Login(ctx, "admin", DigestPassword("admin"))
	require.NoError(t, err)
	assert.Len(t, token.AccessToken, 64)
	assert.Equal(t, "bearer", token.TokenType)
	assert.Equal(t, int64(3600), token.ExpiresIn)
	assert.True(t, token.MustChangePassword)

	user, err := auth.Authenticate(ctx, token.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "admin", user.Username)

	_, err = auth.Authenticate(ctx, "")
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = auth.Authenticate(ctx, "forged")
	assert.ErrorIs(t, err, ErrUnauthorized)

	require.NoError(t, auth.Logout(ctx, token.AccessToken))
	_, err = auth.Authenticate(ctx, token.AccessToken)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	auth, _, _ := newTestAuth(t)
	ctx := context.Background()

	_, err := auth.Login(ctx, "admin", DigestPassword("wrong"))
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = auth.Login(ctx, "nobody", DigestPassword("admin"))
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginRateLimit(t *testing.T) {
	users := newMemUserRepo()
	auth := NewAuthService(users, newMemSessions(), time.Hour, 0.001, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := auth.Login(ctx, "nobody", "x")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	}
	_, err := auth.Login(ctx, "nobody", "x")
	assert.ErrorIs(t, err, ErrRateLimited)

	// other users keep their own budget
	_, err = auth.Login(ctx, "someone", "x")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginRateLimitIsPerUser(t *testing.T) {
	users := newMemUserRepo()
	auth := NewAuthService(users, newMemSessions(), time.Hour, 0.001, 1)
	require.NoError(t, auth.EnsureDefaultUser(context.Background()))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _ = auth.Login(ctx, "attacker", "x")
	}

	token, err := auth.Login(ctx, "admin", DigestPassword("admin"))
	require.NoError(t, err)
	assert.NotEmpty(t, token.AccessToken)
}

func TestChangePassword(t *testing.T) {
	auth, users, _ := newTestAuth(t)
	ctx := context.Background()

	token, err := auth.Login(ctx, "admin", DigestPassword("admin"))
	require.NoError(t, err)

	err = auth.ChangePassword(ctx, "admin", token.AccessToken, DigestPassword("admin"), DigestPassword("admin"))
	assert.ErrorIs(t, err, ErrInvalidPassword)
	err = auth.ChangePassword(ctx, "admin", token.AccessToken, DigestPassword("nope"), DigestPassword("s3cret"))
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	require.NoError(t, auth.ChangePassword(ctx, "admin", token.AccessToken, DigestPassword("admin"), DigestPassword("s3cret")))

	user, err := users.GetUser(ctx, "admin")
	require.NoError(t, err)
	assert.False(t, user.MustChangePassword)

	_, err = auth.Authenticate(ctx, token.AccessToken)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = auth.Login(ctx, "admin", DigestPassword("admin"))
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = auth.Login(ctx, "admin", DigestPassword("s3cret"))
	assert.NoError(t, err)
}
