// Package handlers is the JSON API: sign-in and session bootstrap, the item
// catalog, claim requests and account management.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ruet-connect/connect/services/connect/config"
	"github.com/ruet-connect/connect/services/connect/internal/account"
	"github.com/ruet-connect/connect/services/connect/internal/actions"
	"github.com/ruet-connect/connect/services/connect/internal/apperr"
	"github.com/ruet-connect/connect/services/connect/internal/auth"
	"github.com/ruet-connect/connect/services/connect/internal/catalog"
	"github.com/ruet-connect/connect/services/connect/internal/claims"
	"github.com/ruet-connect/connect/services/connect/internal/session"
	"github.com/ruet-connect/connect/services/connect/internal/token"
	"github.com/ruet-connect/connect/services/connect/internal/upload"
	"github.com/ruet-connect/connect/services/connect/internal/validator"
	"github.com/ruet-connect/connect/services/connect/pkg/models"
)

// Deps are the services the handlers call into.
type Deps struct {
	Config   *config.Config
	Backend  auth.Backend
	Resolver session.ProfileResolver
	Catalog  *catalog.Catalog
	Claims   *claims.Engine
	Accounts *account.Service
	Tokens   *token.Service
	Uploader upload.Uploader
	Logger   *slog.Logger
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	cfg      *config.Config
	backend  auth.Backend
	resolver session.ProfileResolver
	catalog  *catalog.Catalog
	claims   *claims.Engine
	accounts *account.Service
	tokens   *token.Service
	uploader upload.Uploader
	validate *validator.Validator
	actions  *actions.Registry
	logger   *slog.Logger
}

// New creates a handler. A nil Uploader keeps the placeholder image for
// every item.
func New(d Deps) *Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	uploader := d.Uploader
	if uploader == nil {
		uploader = upload.Placeholder{URL: d.Config.Upload.PlaceholderImageURL}
	}
	return &Handler{
		cfg:      d.Config,
		backend:  d.Backend,
		resolver: d.Resolver,
		catalog:  d.Catalog,
		claims:   d.Claims,
		accounts: d.Accounts,
		tokens:   d.Tokens,
		uploader: uploader,
		validate: validator.New(),
		actions:  actions.New(),
		logger:   logger,
	}
}

// newSession builds a per-request session bootstrap over a fresh client.
func (h *Handler) newSession() *session.Bootstrap {
	return h.sessionFor(auth.NewClient(h.backend))
}

// restoredSession starts from a principal the request already proved, such
// as a bearer token subject. Start resolves it.
func (h *Handler) restoredSession(p *models.Principal) *session.Bootstrap {
	client := auth.NewClient(h.backend)
	client.Restore(p)
	return h.sessionFor(client)
}

func (h *Handler) sessionFor(client *auth.Client) *session.Bootstrap {
	return session.New(client, h.resolver, session.Options{
		Demo: session.Demo{
			Enabled:   h.cfg.Demo.Enabled,
			StudentID: h.cfg.Demo.StudentID,
			Password:  h.cfg.Demo.Password,
		},
		Logger: h.logger,
	})
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// SearchActions returns command bar actions matching the query parameter
// "q". Results are filtered by auth state.
func (h *Handler) SearchActions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")

	sc := actions.SearchContext{}
	if user, ok := GetUserFromContext(r.Context()); ok {
		sc.LoggedIn = true
		sc.IsAdmin = user.IsAdmin
		n, err := h.claims.PendingCountFor(r.Context(), user.ID)
		if err != nil {
			h.logger.WarnContext(r.Context(), "pending count unavailable", "user", user.ID, "error", err)
		}
		sc.PendingRequests = n
	}

	results := h.actions.Search(query, sc)
	if results == nil {
		results = []actions.Action{}
	}
	jsonOK(w, http.StatusOK, results)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// writeErr answers with the status apperr assigns to err. Server-side
// failures are logged and their details withheld.
func (h *Handler) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	switch {
	case status == http.StatusServiceUnavailable:
		h.logger.ErrorContext(r.Context(), "dependency unavailable", "path", r.URL.Path, "error", err)
		if errors.Is(err, apperr.ErrPartialDeletion) {
			jsonError(w, apperr.ErrPartialDeletion.Error()+", sign-in removed; remaining data is cleaned up automatically", status)
			return
		}
		w.Header().Set("Retry-After", "5")
		jsonError(w, "service temporarily unavailable, please retry", status)
	case status >= 500:
		h.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		jsonError(w, "internal server error", status)
	default:
		jsonError(w, err.Error(), status)
	}
}

func jsonOK(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
