package handlers

import (
	"errors"
	"net/http"

	"github.com/ruet-connect/connect/services/connect/internal/apperr"
)

type contactReq struct {
	// Empty clears the number.
	ContactNumber string `json:"contact_number" validate:"max=32"`
}

// UpdateContact sets or clears the caller's contact number.
func (h *Handler) UpdateContact(w http.ResponseWriter, r *http.Request) {
	user, _ := GetUserFromContext(r.Context())

	var req contactReq
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeErr(w, r, err)
		return
	}

	profile, err := h.accounts.UpdateContactNumber(r.Context(), user.ID, req.ContactNumber)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	jsonOK(w, http.StatusOK, profile)
}

// DeleteAccount removes the caller's items, sent requests, principal and
// profile, then revokes the presented token. On a partial deletion the
// sign-in is already gone, so the answer is 503 without a retry hint; the
// leftover profile is purged at server start or by connectctl purge-orphans.
func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	user, _ := GetUserFromContext(r.Context())

	if err := h.accounts.DeleteAccount(r.Context(), user.ID); err != nil {
		if errors.Is(err, apperr.ErrPartialDeletion) {
			h.revokeCaller(r, user.ID)
		}
		h.writeErr(w, r, err)
		return
	}
	h.revokeCaller(r, user.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) revokeCaller(r *http.Request, userID string) {
	claims, ok := GetClaimsFromContext(r.Context())
	if !ok {
		return
	}
	if err := h.tokens.Revoke(r.Context(), claims); err != nil {
		h.logger.WarnContext(r.Context(), "revoke token after delete failed", "user", userID, "error", err)
	}
}
