package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ruet-connect/connect/services/connect/pkg/models"
)

// ApprovalResponse carries the approved request and, for the owner only,
// the requester's contact details.
type ApprovalResponse struct {
	Request   *models.ClaimRequest `json:"request"`
	Requester models.Contact       `json:"requester"`
}

// CreateRequest asks the owner of an item to hand it over.
func (h *Handler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	user, _ := GetUserFromContext(r.Context())

	item, err := h.catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	req, err := h.claims.Create(r.Context(), item, user.ID)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	jsonOK(w, http.StatusCreated, req)
}

// ReceivedRequests lists requests for the caller's items, newest first.
func (h *Handler) ReceivedRequests(w http.ResponseWriter, r *http.Request) {
	user, _ := GetUserFromContext(r.Context())
	reqs, err := h.claims.ListReceived(r.Context(), user.ID)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	jsonOK(w, http.StatusOK, nonNil(reqs))
}

// SentRequests lists the caller's own requests, newest first.
func (h *Handler) SentRequests(w http.ResponseWriter, r *http.Request) {
	user, _ := GetUserFromContext(r.Context())
	reqs, err := h.claims.ListSent(r.Context(), user.ID)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	jsonOK(w, http.StatusOK, nonNil(reqs))
}

// ApproveRequest approves a pending request and discloses the requester's
// contact details to the owner.
func (h *Handler) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	user, _ := GetUserFromContext(r.Context())
	approval, err := h.claims.Approve(r.Context(), chi.URLParam(r, "id"), user.ID)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	jsonOK(w, http.StatusOK, ApprovalResponse{
		Request:   approval.Request,
		Requester: approval.Requester.Contact(),
	})
}

// RejectRequest rejects a pending request.
func (h *Handler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	user, _ := GetUserFromContext(r.Context())
	req, err := h.claims.Reject(r.Context(), chi.URLParam(r, "id"), user.ID)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	jsonOK(w, http.StatusOK, req)
}
