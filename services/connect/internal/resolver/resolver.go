// Package resolver turns authenticated principals into user profiles.
package resolver

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

// Resolver maps principals to profiles, creating a profile on first sight.
type Resolver struct {
	profiles        store.ProfileStore
	admins          map[string]struct{}
	requireVerified bool
	logger          *slog.Logger
}

// Options configures a Resolver.
type Options struct {
	// AdminEmails is the allow-list granting admin privilege.
	AdminEmails []string
	// RequireVerified rejects principals whose email is unconfirmed.
	RequireVerified bool
	Logger          *slog.Logger
}

// New creates a Resolver over profiles.
func New(profiles store.ProfileStore, opts Options) *Resolver {
	admins := make(map[string]struct{}, len(opts.AdminEmails))
	for _, e := range opts.AdminEmails {
		if e = adminKey(e); e != "" {
			admins[e] = struct{}{}
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		profiles:        profiles,
		admins:          admins,
		requireVerified: opts.RequireVerified,
		logger:          logger,
	}
}

// IsAdminEmail reports whether email is on the admin allow-list. Matching
// ignores case and surrounding space only; provider aliases do not match.
func (r *Resolver) IsAdminEmail(email string) bool {
	_, ok := r.admins[adminKey(email)]
	return ok
}

func adminKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Resolve returns the profile for p, creating and storing it on first
// resolution. Repeated calls for the same principal never create a second
// profile.
func (r *Resolver) Resolve(ctx context.Context, p *models.Principal) (*models.UserProfile, error) {
	if p == nil || p.ID == "" {
		return nil, apperr.ErrUnauthenticated
	}

	shortID, err := identity.DeriveShortID(p.Email)
	if err != nil {
		return nil, err
	}
	if r.requireVerified && !p.EmailVerified {
		return nil, apperr.ErrUnverifiedIdentity
	}

	existing, err := r.profiles.GetProfile(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("get profile %s: %w: %w", p.ID, apperr.ErrProfileStoreUnavailable, err)
	}
	if existing != nil {
		existing.IsAdmin = r.IsAdminEmail(existing.Email)
		return existing, nil
	}

	email := strings.ToLower(strings.TrimSpace(p.Email))
	profile := &models.UserProfile{
		ID:          p.ID,
		ShortID:     shortID,
		DisplayName: shortID,
		Email:       email,
		Role:        identity.RoleForEmail(email),
	}
	created, err := r.profiles.CreateProfile(ctx, profile)
	if err != nil {
		return nil, fmt.Errorf("create profile %s: %w: %w", p.ID, apperr.ErrProfileStoreUnavailable, err)
	}
	if !created {
		// Another resolution created it first; its copy may already carry edits.
		stored, err := r.profiles.GetProfile(ctx, p.ID)
		if err != nil {
			return nil, fmt.Errorf("get profile %s: %w: %w", p.ID, apperr.ErrProfileStoreUnavailable, err)
		}
		if stored == nil {
			return nil, fmt.Errorf("profile %s vanished after create: %w", p.ID, apperr.ErrProfileStoreUnavailable)
		}
		stored.IsAdmin = r.IsAdminEmail(stored.Email)
		return stored, nil
	}
	profile.IsAdmin = r.IsAdminEmail(email)

	r.logger.InfoContext(ctx, "profile created",
		"user", profile.ID,
		"short_id", profile.ShortID,
		"role", profile.Role,
	)
	return profile, nil
}

// Lookup returns the stored profile for a principal id without creating one.
func (r *Resolver) Lookup(ctx context.Context, id string) (*models.UserProfile, error) {
	p, err := r.profiles.GetProfile(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get profile %s: %w: %w", id, apperr.ErrProfileStoreUnavailable, err)
	}
	if p == nil {
		return nil, fmt.Errorf("profile %s: %w", id, apperr.ErrNotFound)
	}
	p.IsAdmin = r.IsAdminEmail(p.Email)
	return p, nil
}
