package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ruet-connect/connect/services/connect/internal/apperr"
	"github.com/ruet-connect/connect/services/connect/internal/token"
	"github.com/ruet-connect/connect/services/connect/pkg/models"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// UserContextKey stores the resolved profile in request context.
	UserContextKey contextKey = "user"
	// ClaimsContextKey stores the bearer token claims in request context.
	ClaimsContextKey contextKey = "claims"
)

// AuthMiddleware requires a bearer token whose principal still resolves to
// a profile. On failure it answers 401, 403 or 503.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, claims, err := h.authenticate(r)
		if err != nil {
			h.writeErr(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user, claims)))
	})
}

// OptionalAuth attaches the user when the request carries a valid token and
// passes anonymous requests through unchanged.
func (h *Handler) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if bearer(r) == "" {
			next.ServeHTTP(w, r)
			return
		}
		user, claims, err := h.authenticate(r)
		if err != nil {
			h.logger.DebugContext(r.Context(), "ignoring bad credentials", "error", err)
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user, claims)))
	})
}

// AdminMiddleware requires the authenticated user to be an admin.
// MUST be used after AuthMiddleware so the user is already in context.
func AdminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := GetUserFromContext(r.Context())
		if !ok || !user.IsAdmin {
			jsonError(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetUserFromContext extracts the authenticated user from request context.
func GetUserFromContext(ctx context.Context) (*models.UserProfile, bool) {
	user, ok := ctx.Value(UserContextKey).(*models.UserProfile)
	return user, ok && user != nil
}

// GetClaimsFromContext extracts the bearer token claims from request context.
func GetClaimsFromContext(ctx context.Context) (*token.Claims, bool) {
	claims, ok := ctx.Value(ClaimsContextKey).(*token.Claims)
	return claims, ok && claims != nil
}

func withUser(ctx context.Context, user *models.UserProfile, claims *token.Claims) context.Context {
	ctx = context.WithValue(ctx, UserContextKey, user)
	return context.WithValue(ctx, ClaimsContextKey, claims)
}

// authenticate validates the bearer token, restores its principal into a
// fresh session and returns the resolved profile.
func (h *Handler) authenticate(r *http.Request) (*models.UserProfile, *token.Claims, error) {
	ctx := r.Context()

	raw := bearer(r)
	if raw == "" {
		return nil, nil, apperr.ErrUnauthenticated
	}
	claims, err := h.tokens.ValidateToken(ctx, raw)
	switch {
	case errors.Is(err, token.ErrInvalid), errors.Is(err, token.ErrRevoked):
		return nil, nil, fmt.Errorf("%w: %v", apperr.ErrUnauthenticated, err)
	case err != nil:
		return nil, nil, fmt.Errorf("%w: %w", apperr.ErrAuthUnavailable, err)
	}

	p, err := h.backend.GetPrincipal(ctx, claims.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("load principal: %w", err)
	}
	if p == nil {
		return nil, nil, fmt.Errorf("%w: account no longer exists", apperr.ErrUnauthenticated)
	}

	boot := h.restoredSession(p)
	defer boot.Close()
	snap := boot.Start(ctx)
	if !snap.SignedIn() {
		if snap.Err != nil {
			return nil, nil, snap.Err
		}
		return nil, nil, apperr.ErrUnauthenticated
	}
	return snap.User, claims, nil
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}
