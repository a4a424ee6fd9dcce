package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ruet-connect/connect/services/connect/internal/apperr"
	"github.com/ruet-connect/connect/services/connect/internal/auth"
	"github.com/ruet-connect/connect/services/connect/internal/session"
	"github.com/ruet-connect/connect/services/connect/pkg/models"
)

type signupReq struct {
	StudentID string `json:"student_id" validate:"omitempty,ruetid"`
	Email     string `json:"email" validate:"omitempty,email"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
}

type signupResp struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

type loginReq struct {
	// Identifier is a bare student id or a full email address.
	Identifier string `json:"identifier" validate:"required"`
	Password   string `json:"password" validate:"required"`
}

type firebaseLoginReq struct {
	IDToken string `json:"id_token" validate:"required"`
}

type passwordResetReq struct {
	Email string `json:"email" validate:"required"`
}

type passwordResetConfirmReq struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// SessionResponse is returned by sign-in and by GET /api/session.
type SessionResponse struct {
	Token               string              `json:"token,omitempty"`
	ExpiresAt           *time.Time          `json:"expires_at,omitempty"`
	User                *models.UserProfile `json:"user"`
	IsAdmin             bool                `json:"is_admin"`
	PendingRequestCount int                 `json:"pending_request_count"`
}

// Signup registers a principal and sends the verification email. The
// profile is created on the first verified sign-in.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupReq
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeErr(w, r, err)
		return
	}
	identifier := req.StudentID
	if identifier == "" {
		identifier = req.Email
	}
	if identifier == "" {
		h.writeErr(w, r, fmt.Errorf("%w: student_id or email is required", apperr.ErrValidation))
		return
	}

	boot := h.newSession()
	defer boot.Close()

	p, err := boot.SignUp(r.Context(), identifier, req.Password)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	jsonOK(w, http.StatusCreated, signupResp{
		ID:      p.ID,
		Email:   p.Email,
		Message: "verification email sent, confirm it before signing in",
	})
}

// Login signs in with a student id or email and issues a bearer token.
// The demo credentials provision the demo account on first use.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginReq
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeErr(w, r, err)
		return
	}

	boot := h.newSession()
	defer boot.Close()

	snap, err := boot.SignIn(r.Context(), req.Identifier, req.Password)
	if err != nil {
		if errors.Is(err, apperr.ErrUnverifiedIdentity) {
			jsonError(w, "email not verified, a new verification link was sent", http.StatusForbidden)
			return
		}
		h.writeErr(w, r, err)
		return
	}
	h.issue(w, r, snap)
}

// FirebaseLogin exchanges a Firebase ID token from a client SDK sign-in for
// a bearer token. Only available with the Firebase backend.
func (h *Handler) FirebaseLogin(w http.ResponseWriter, r *http.Request) {
	verifier, ok := h.backend.(auth.IDTokenVerifier)
	if !ok {
		jsonError(w, "not supported by this auth backend", http.StatusNotFound)
		return
	}

	var req firebaseLoginReq
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeErr(w, r, err)
		return
	}

	p, err := verifier.VerifyIDToken(r.Context(), req.IDToken)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	boot := h.restoredSession(p)
	defer boot.Close()

	snap := boot.Start(r.Context())
	if !snap.SignedIn() {
		err := snap.Err
		if err == nil {
			err = apperr.ErrUnauthenticated
		}
		h.writeErr(w, r, err)
		return
	}
	h.issue(w, r, snap)
}

func (h *Handler) issue(w http.ResponseWriter, r *http.Request, snap session.Snapshot) {
	signed, claims, err := h.tokens.GenerateToken(snap.User.ID, snap.User.Email, snap.User.Roles())
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	expires := claims.ExpiresAt.Time

	resp := SessionResponse{
		Token:     signed,
		ExpiresAt: &expires,
		User:      snap.User,
		IsAdmin:   snap.IsAdmin,
	}
	resp.PendingRequestCount = h.pendingCount(r, snap.User.ID)
	jsonOK(w, http.StatusOK, resp)
}

// Session returns the caller's resolved profile.
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	user, _ := GetUserFromContext(r.Context())
	jsonOK(w, http.StatusOK, SessionResponse{
		User:                user,
		IsAdmin:             user.IsAdmin,
		PendingRequestCount: h.pendingCount(r, user.ID),
	})
}

func (h *Handler) pendingCount(r *http.Request, userID string) int {
	n, err := h.claims.PendingCountFor(r.Context(), userID)
	if err != nil {
		h.logger.WarnContext(r.Context(), "pending count unavailable", "user", userID, "error", err)
		return 0
	}
	return n
}

// Logout revokes the presented bearer token.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := GetClaimsFromContext(r.Context())
	if !ok {
		h.writeErr(w, r, apperr.ErrUnauthenticated)
		return
	}
	if err := h.tokens.Revoke(r.Context(), claims); err != nil {
		h.writeErr(w, r, fmt.Errorf("%w: %w", apperr.ErrAuthUnavailable, err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// VerifyEmail redeems the link sent at sign-up.
func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	verifier, ok := h.backend.(auth.EmailVerifier)
	if !ok {
		jsonError(w, "emails are verified by the identity provider", http.StatusNotFound)
		return
	}

	tok := r.URL.Query().Get("token")
	if tok == "" {
		jsonError(w, "token is required", http.StatusBadRequest)
		return
	}
	if err := verifier.VerifyEmail(r.Context(), tok); err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.writeErr(w, r, err)
		return
	}
	jsonOK(w, http.StatusOK, map[string]bool{"verified": true})
}

// PasswordReset emails a reset link. It answers 202 whether or not the
// address is registered.
func (h *Handler) PasswordReset(w http.ResponseWriter, r *http.Request) {
	var req passwordResetReq
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeErr(w, r, err)
		return
	}
	if err := h.backend.SendPasswordReset(r.Context(), req.Email); err != nil {
		h.writeErr(w, r, err)
		return
	}
	jsonOK(w, http.StatusAccepted, map[string]string{"message": "if the address is registered, a reset link was sent"})
}

// PasswordResetConfirm redeems a reset token and sets the new password.
func (h *Handler) PasswordResetConfirm(w http.ResponseWriter, r *http.Request) {
	resetter, ok := h.backend.(auth.PasswordResetter)
	if !ok {
		jsonError(w, "passwords are reset by the identity provider", http.StatusNotFound)
		return
	}

	var req passwordResetConfirmReq
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeErr(w, r, err)
		return
	}
	if err := resetter.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
