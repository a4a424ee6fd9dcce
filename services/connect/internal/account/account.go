// Package account implements the self-service operations on a user's own
// account: editing the contact number and deleting everything.
package account

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ruet-connect/connect/services/connect/internal/apperr"
	"github.com/ruet-connect/connect/services/connect/internal/store"
	"github.com/ruet-connect/connect/services/connect/pkg/identity"
	"github.com/ruet-connect/connect/services/connect/pkg/models"
)

// E.164 bounds on the digit count of a contact number.
const (
	minPhoneDigits = 8
	maxPhoneDigits = 15
)

// Principals is the slice of the auth backend account management needs.
type Principals interface {
	GetPrincipal(ctx context.Context, id string) (*models.Principal, error)
	DeletePrincipal(ctx context.Context, id string) error
}

// Service manages accounts.
type Service struct {
	profiles   store.ProfileStore
	items      store.ItemStore
	requests   store.RequestStore
	principals Principals
	logger     *slog.Logger
}

// New creates a Service. A nil logger uses slog.Default().
func New(profiles store.ProfileStore, items store.ItemStore, requests store.RequestStore, principals Principals, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		profiles:   profiles,
		items:      items,
		requests:   requests,
		principals: principals,
		logger:     logger,
	}
}

// UpdateContactNumber normalizes number and stores it on the user's
// profile. An empty number clears it.
func (s *Service) UpdateContactNumber(ctx context.Context, userID, number string) (*models.UserProfile, error) {
	if userID == "" {
		return nil, apperr.ErrUnauthenticated
	}

	normalized := identity.NormalizePhone(number)
	if strings.TrimSpace(number) != "" {
		if n := len(normalized) - 1; n < minPhoneDigits || n > maxPhoneDigits {
			return nil, fmt.Errorf("%w: contact_number must have %d-%d digits", apperr.ErrValidation, minPhoneDigits, maxPhoneDigits)
		}
	}

	p, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get profile %s: %w: %w", userID, apperr.ErrProfileStoreUnavailable, err)
	}
	if p == nil {
		return nil, fmt.Errorf("profile %s: %w", userID, apperr.ErrNotFound)
	}

	p.ContactNumber = normalized
	if err := s.profiles.PutProfile(ctx, p); err != nil {
		return nil, fmt.Errorf("update profile %s: %w: %w", userID, apperr.ErrProfileStoreUnavailable, err)
	}
	return p, nil
}

// DeleteAccount removes the user's items, withdraws the requests they sent,
// deletes the auth principal and finally the profile.
//
// Requests addressed to the user are left in place; their item title
// snapshot keeps them readable. If the principal is gone but the profile
// delete fails, the error wraps apperr.ErrPartialDeletion and the caller
// should re-authenticate and retry.
func (s *Service) DeleteAccount(ctx context.Context, userID string) error {
	if userID == "" {
		return apperr.ErrUnauthenticated
	}

	items, err := s.items.ListItems(ctx)
	if err != nil {
		return fmt.Errorf("list items: %w: %w", apperr.ErrItemStoreUnavailable, err)
	}
	var removedItems int
	for _, it := range items {
		if it.OwnerID != userID {
			continue
		}
		if err := s.items.DeleteItem(ctx, it.ID); err != nil {
			return fmt.Errorf("delete item %s: %w: %w", it.ID, apperr.ErrItemStoreUnavailable, err)
		}
		removedItems++
	}

	requests, err := s.requests.ListRequests(ctx)
	if err != nil {
		return fmt.Errorf("list requests: %w: %w", apperr.ErrRequestStoreUnavailable, err)
	}
	var withdrawn int
	for _, r := range requests {
		if r.RequesterID != userID {
			continue
		}
		if err := s.requests.DeleteRequest(ctx, r.ID); err != nil {
			return fmt.Errorf("delete request %s: %w: %w", r.ID, apperr.ErrRequestStoreUnavailable, err)
		}
		withdrawn++
	}

	if err := s.principals.DeletePrincipal(ctx, userID); err != nil {
		return fmt.Errorf("delete principal %s: %w: %w", userID, apperr.ErrAuthUnavailable, err)
	}

	if err := s.profiles.DeleteProfile(ctx, userID); err != nil {
		s.logger.ErrorContext(ctx, "profile left behind after principal deletion", "user", userID, "error", err)
		return fmt.Errorf("delete profile %s: %w: %w", userID, apperr.ErrPartialDeletion, err)
	}

	s.logger.InfoContext(ctx, "account deleted",
		"user", userID,
		"items", removedItems,
		"requests_withdrawn", withdrawn,
	)
	return nil
}

// PurgeOrphanedProfiles deletes profiles whose auth principal no longer
// exists, finishing deletions that stopped after the principal was removed.
// It returns the number of profiles deleted.
func (s *Service) PurgeOrphanedProfiles(ctx context.Context) (int, error) {
	profiles, err := s.profiles.ListProfiles(ctx)
	if err != nil {
		return 0, fmt.Errorf("list profiles: %w: %w", apperr.ErrProfileStoreUnavailable, err)
	}

	purged := 0
	for _, p := range profiles {
		principal, err := s.principals.GetPrincipal(ctx, p.ID)
		if err != nil {
			return purged, fmt.Errorf("get principal %s: %w: %w", p.ID, apperr.ErrAuthUnavailable, err)
		}
		if principal != nil {
			continue
		}
		if err := s.profiles.DeleteProfile(ctx, p.ID); err != nil {
			return purged, fmt.Errorf("delete profile %s: %w: %w", p.ID, apperr.ErrProfileStoreUnavailable, err)
		}
		s.logger.InfoContext(ctx, "orphaned profile purged", "user", p.ID, "short_id", p.ShortID)
		purged++
	}
	return purged, nil
}
