package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"fedwatch.dashboard/internal/core/domain"
	"fedwatch.dashboard/internal/core/logger"
	"fedwatch.dashboard/internal/core/ports"
)

var (
	ErrInvalidCredentials = errors.New("incorrect username or password")
	ErrUnauthorized       = errors.New("invalid or expired token")
	ErrRateLimited        = errors.New("too many login attempts")
	ErrInvalidPassword    = errors.New("new password must be non-empty and differ from the current one")
)

const defaultPassword = "admin"

// Token is returned on a successful login.
type Token struct {
	AccessToken        string `json:"access_token"`
	TokenType          string `json:"token_type"`
	ExpiresIn          int64  `json:"expires_in"`
	MustChangePassword bool   `json:"must_change_password"`
}

// AuthService implements the dashboard login. Passwords arrive as the
// SHA-256 hex digest computed by the browser and are stored bcrypt-hashed.
type AuthService struct {
	users    ports.UserRepository
	sessions ports.SessionStore
	tokenTTL time.Duration

	limit    rate.Limit
	burst    int
	mu       sync.Mutex
	limiters map[string]*loginLimiter
}

// loginLimiter throttles login attempts for one username.
type loginLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const (
	maxTrackedLogins = 1024
	loginIdleTimeout = 10 * time.Minute
)

func NewAuthService(users ports.UserRepository, sessions ports.SessionStore, tokenTTL time.Duration, loginsPerSecond float64, burst int) *AuthService {
	if tokenTTL <= 0 {
		tokenTTL = 7 * 24 * time.Hour
	}
	if burst <= 0 {
		burst = 5
	}
	return &AuthService{
		users:    users,
		sessions: sessions,
		tokenTTL: tokenTTL,
		limit:    rate.Limit(loginsPerSecond),
		burst:    burst,
		limiters: make(map[string]*loginLimiter),
	}
}

// allowLogin spends one attempt from username's own budget.
func (s *AuthService) allowLogin(username string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	l, ok := s.limiters[username]
	if !ok {
		if len(s.limiters) >= maxTrackedLogins {
			for name, other := range s.limiters {
				if now.Sub(other.lastSeen) > loginIdleTimeout {
					delete(s.limiters, name)
				}
			}
		}
		l = &loginLimiter{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.limiters[username] = l
	}
	l.lastSeen = now
	return l.limiter.AllowN(now, 1)
}

// DigestPassword computes the client-side digest of a plain password.
func DigestPassword(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}

// EnsureDefaultUser creates the admin user with the default password when
// it does not exist yet.
func (s *AuthService) EnsureDefaultUser(ctx context.Context) error {
	_, err := s.users.GetUser(ctx, domain.DefaultUsername)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("failed to look up default user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(DigestPassword(defaultPassword)), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	user := &domain.User{
		Username:           domain.DefaultUsername,
		PasswordHash:       string(hash),
		MustChangePassword: true,
	}
	if err := s.users.CreateOrUpdate(ctx, user); err != nil {
		return fmt.Errorf("failed to create default user: %w", err)
	}
	logger.Warn("Created default user, change its password", "username", domain.DefaultUsername)
	return nil
}

func (s *AuthService) Login(ctx context.Context, username, password string) (*Token, error) {
	if !s.allowLogin(username) {
		return nil, ErrRateLimited
	}

	user, err := s.checkPassword(ctx, username, password)
	if err != nil {
		return nil, err
	}

	token := generateToken()
	if err := s.sessions.Save(ctx, token, user.Username, s.tokenTTL); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}
	logger.InfoContext(ctx, "User logged in", "username", user.Username)

	return &Token{
		AccessToken:        token,
		TokenType:          "bearer",
		ExpiresIn:          int64(s.tokenTTL.Seconds()),
		MustChangePassword: user.MustChangePassword,
	}, nil
}

// Authenticate resolves a token to its user.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}
	username, err := s.sessions.Lookup(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	user, err := s.users.GetUser(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	return user, nil
}

// ChangePassword replaces the user's password and ends the session that
// requested the change.
func (s *AuthService) ChangePassword(ctx context.Context, username, token, current, next string) error {
	user, err := s.checkPassword(ctx, username, current)
	if err != nil {
		return err
	}
	if next == "" || next == current {
		return ErrInvalidPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	user.PasswordHash = string(hash)
	user.MustChangePassword = false
	if err := s.users.CreateOrUpdate(ctx, user); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	if token != "" {
		if err := s.sessions.Delete(ctx, token); err != nil {
			logger.Warn("Failed to revoke session after password change", "username", username, "error", err)
		}
	}
	return nil
}

func (s *AuthService) Logout(ctx context.Context, token string) error {
	return s.sessions.Delete(ctx, token)
}

func (s *AuthService) checkPassword(ctx context.Context, username, password string) (*domain.User, error) {
	user, err := s.users.GetUser(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

func generateToken() string {
	b := make([]byte, 32)
	rand.Read(b)
	return hex.EncodeToString(b)
}
