package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"fedwatch.dashboard/internal/core/domain"
	"fedwatch.dashboard/internal/core/logger"
	"fedwatch.dashboard/internal/core/services"
)

const tokenCookie = "token"

type userCtxKey struct{}

// tokenFromRequest looks for a bearer header, then the token cookie, then a
// token query parameter (browsers cannot set headers on websockets).
func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "bearer") {
			return strings.TrimSpace(token)
		}
	}
	if c, err := r.Cookie(tokenCookie); err == nil && c.Value != "" {
		return c.Value
	}
	return r.URL.Query().Get("token")
}

func userFromContext(ctx context.Context) *domain.User {
	u, _ := ctx.Value(userCtxKey{}).(*domain.User)
	return u
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := s.auth.Authenticate(r.Context(), tokenFromRequest(r))
		if err != nil {
			if !errors.Is(err, services.ErrUnauthorized) {
				logger.ErrorContext(r.Context(), "Failed to authenticate request", "error", err)
			}
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeError(w, http.StatusUnauthorized, "Not authenticated", "")
			return
		}
		ctx := context.WithValue(r.Context(), userCtxKey{}, user)
		ctx = logger.WithUsername(ctx, user.Username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// handleLogin accepts an OAuth2 password form or the same fields as JSON.
// The password is the client-side SHA-256 digest.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON", err.Error())
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid form", err.Error())
			return
		}
		req.Username = r.PostForm.Get("username")
		req.Password = r.PostForm.Get("password")
	}

	token, err := s.auth.Login(r.Context(), req.Username, req.Password)
	switch {
	case err == nil:
	case errors.Is(err, services.ErrRateLimited):
		RecordLogin("rate_limited")
		writeError(w, http.StatusTooManyRequests, "Too many login attempts", "")
		return
	case errors.Is(err, services.ErrInvalidCredentials):
		RecordLogin("invalid")
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeError(w, http.StatusUnauthorized, "Incorrect username or password", "")
		return
	default:
		RecordLogin("error")
		logger.ErrorContext(r.Context(), "Login failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Login failed", "")
		return
	}

	RecordLogin("success")
	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookie,
		Value:    token.AccessToken,
		Path:     "/",
		MaxAge:   int(token.ExpiresIn),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, token)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, userFromContext(r.Context()))
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}

	user := userFromContext(r.Context())
	err := s.auth.ChangePassword(r.Context(), user.Username, tokenFromRequest(r), req.CurrentPassword, req.NewPassword)
	switch {
	case err == nil:
	case errors.Is(err, services.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Current password is incorrect", "")
		return
	case errors.Is(err, services.ErrInvalidPassword):
		writeError(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	default:
		logger.ErrorContext(r.Context(), "Password change failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Password change failed", "")
		return
	}

	clearTokenCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"status": "password changed"})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.Logout(r.Context(), tokenFromRequest(r)); err != nil {
		logger.WarnContext(r.Context(), "Logout failed", "error", err)
	}
	clearTokenCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func clearTokenCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{Name: tokenCookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
}
