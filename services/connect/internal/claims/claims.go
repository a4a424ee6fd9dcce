// Package claims drives the claim request lifecycle: a user asks for
// another user's item, and the owner approves or rejects exactly once.
// Approval is the only point where the requester's contact details are
// disclosed to the owner.
package claims

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ruet-connect/connect/services/connect/internal/apperr"
	"github.com/ruet-connect/connect/services/connect/internal/notify"
	"github.com/ruet-connect/connect/services/connect/internal/store"
	"github.com/ruet-connect/connect/services/connect/pkg/models"
)

// ProfileLookup finds stored profiles. *resolver.Resolver implements it.
type ProfileLookup interface {
	Lookup(ctx context.Context, id string) (*models.UserProfile, error)
}

// Approval is the result of approving a request.
type Approval struct {
	Request   *models.ClaimRequest
	Requester *models.UserProfile
}

// Engine creates and resolves claim requests.
type Engine struct {
	requests store.RequestStore
	profiles ProfileLookup
	events   notify.Publisher
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now as the source of CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an Engine. A nil publisher logs events instead.
func New(requests store.RequestStore, profiles ProfileLookup, events notify.Publisher, opts ...Option) *Engine {
	e := &Engine{
		requests: requests,
		profiles: profiles,
		events:   events,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.events == nil {
		e.events = notify.NewLogPublisher(e.logger)
	}
	return e
}

// Create records a pending request by requesterID for item.
func (e *Engine) Create(ctx context.Context, item *models.Item, requesterID string) (*models.ClaimRequest, error) {
	if requesterID == "" {
		return nil, apperr.ErrUnauthenticated
	}
	if item == nil {
		return nil, fmt.Errorf("item: %w", apperr.ErrNotFound)
	}
	if item.OwnerID == requesterID {
		return nil, apperr.ErrSelfClaimNotAllowed
	}

	req := &models.ClaimRequest{
		ID:          uuid.New().String(),
		ItemID:      item.ID,
		ItemTitle:   item.Title,
		RequesterID: requesterID,
		OwnerID:     item.OwnerID,
		Status:      models.ClaimStatusPending,
		CreatedAt:   e.now(),
	}
	if err := e.requests.InsertRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("insert request: %w: %w", apperr.ErrRequestStoreUnavailable, err)
	}

	e.publish(ctx, notify.EventClaimCreated, req)
	return req, nil
}

// Get returns a request by ID.
func (e *Engine) Get(ctx context.Context, id string) (*models.ClaimRequest, error) {
	req, err := e.requests.GetRequest(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get request %s: %w: %w", id, apperr.ErrRequestStoreUnavailable, err)
	}
	if req == nil {
		return nil, fmt.Errorf("request %s: %w", id, apperr.ErrNotFound)
	}
	return req, nil
}

// Approve marks a pending request approved and returns the requester's
// profile. Only the owner recorded on the request may approve; admin
// privilege does not substitute for ownership.
func (e *Engine) Approve(ctx context.Context, requestID, actingOwnerID string) (*Approval, error) {
	req, err := e.pending(ctx, requestID, actingOwnerID)
	if err != nil {
		return nil, err
	}

	// Look the requester up before writing so a missing profile leaves the request pending.
	requester, err := e.profiles.Lookup(ctx, req.RequesterID)
	if err != nil {
		return nil, fmt.Errorf("requester of %s: %w", requestID, err)
	}

	if err := e.transition(ctx, req, models.ClaimStatusApproved); err != nil {
		return nil, err
	}
	e.publish(ctx, notify.EventClaimApproved, req)
	return &Approval{Request: req, Requester: requester}, nil
}

// Reject marks a pending request rejected. Nothing is disclosed.
func (e *Engine) Reject(ctx context.Context, requestID, actingOwnerID string) (*models.ClaimRequest, error) {
	req, err := e.pending(ctx, requestID, actingOwnerID)
	if err != nil {
		return nil, err
	}
	if err := e.transition(ctx, req, models.ClaimStatusRejected); err != nil {
		return nil, err
	}
	e.publish(ctx, notify.EventClaimRejected, req)
	return req, nil
}

// PendingCountFor counts the pending requests addressed to ownerID. It is
// computed from the stored requests on every call.
func (e *Engine) PendingCountFor(ctx context.Context, ownerID string) (int, error) {
	all, err := e.listAll(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, r := range all {
		if r.OwnerID == ownerID && r.Status == models.ClaimStatusPending {
			n++
		}
	}
	return n, nil
}

// ListReceived returns the requests addressed to ownerID, newest first.
func (e *Engine) ListReceived(ctx context.Context, ownerID string) ([]models.ClaimRequest, error) {
	return e.filter(ctx, func(r models.ClaimRequest) bool { return r.OwnerID == ownerID })
}

// ListSent returns the requests made by requesterID, newest first.
func (e *Engine) ListSent(ctx context.Context, requesterID string) ([]models.ClaimRequest, error) {
	return e.filter(ctx, func(r models.ClaimRequest) bool { return r.RequesterID == requesterID })
}

// pending loads a request and checks that actor owns it and it is unresolved.
func (e *Engine) pending(ctx context.Context, requestID, actor string) (*models.ClaimRequest, error) {
	if actor == "" {
		return nil, apperr.ErrUnauthenticated
	}
	req, err := e.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.OwnerID != actor {
		return nil, apperr.ErrNotOwner
	}
	if req.Status != models.ClaimStatusPending {
		return nil, fmt.Errorf("request %s is %s: %w", requestID, req.Status, apperr.ErrAlreadyResolved)
	}
	return req, nil
}

func (e *Engine) transition(ctx context.Context, req *models.ClaimRequest, to models.ClaimStatus) error {
	err := e.requests.UpdateStatus(ctx, req.ID, models.ClaimStatusPending, to)
	switch {
	case errors.Is(err, store.ErrStatusConflict):
		return fmt.Errorf("request %s: %w", req.ID, apperr.ErrAlreadyResolved)
	case err != nil:
		return fmt.Errorf("update request %s: %w: %w", req.ID, apperr.ErrRequestStoreUnavailable, err)
	}
	req.Status = to

	e.logger.InfoContext(ctx, "claim request resolved", "request", req.ID, "item", req.ItemID, "status", to)
	return nil
}

func (e *Engine) listAll(ctx context.Context) ([]models.ClaimRequest, error) {
	all, err := e.requests.ListRequests(ctx)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w: %w", apperr.ErrRequestStoreUnavailable, err)
	}
	return all, nil
}

func (e *Engine) filter(ctx context.Context, keep func(models.ClaimRequest) bool) ([]models.ClaimRequest, error) {
	all, err := e.listAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.ClaimRequest, 0, len(all))
	for _, r := range all {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// publish emits an event. Delivery failures are logged and do not undo
// the stored transition.
func (e *Engine) publish(ctx context.Context, t notify.EventType, req *models.ClaimRequest) {
	if err := e.events.Publish(ctx, notify.NewEvent(t, req, e.now())); err != nil {
		e.logger.ErrorContext(ctx, "publish claim event failed", "type", t, "request", req.ID, "error", err)
	}
}
