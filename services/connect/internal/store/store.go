// Package store declares the persistence capabilities the domain components
// depend on. Implementations live in internal/database (SQLite),
// internal/firestore and internal/cache.
//
// Lookups return (nil, nil) when the record does not exist. ListAll returns
// records in insertion order.
package store

import (
	"context"
	"errors"

	"github.com/ruet-connect/connect/services/connect/pkg/models"
)

// ErrStatusConflict is returned by RequestStore.UpdateStatus when the stored
// status no longer matches the expected one.
var ErrStatusConflict = errors.New("status changed concurrently")

// ProfileStore persists user profiles keyed by principal id.
type ProfileStore interface {
	GetProfile(ctx context.Context, id string) (*models.UserProfile, error)
	PutProfile(ctx context.Context, p *models.UserProfile) error
	// CreateProfile stores p only if no profile has its id and reports
	// whether it did. An existing profile is left untouched.
	CreateProfile(ctx context.Context, p *models.UserProfile) (bool, error)
	DeleteProfile(ctx context.Context, id string) error
	ListProfiles(ctx context.Context) ([]models.UserProfile, error)
}

// ItemStore persists marketplace items.
type ItemStore interface {
	InsertItem(ctx context.Context, item *models.Item) error
	GetItem(ctx context.Context, id string) (*models.Item, error)
	ListItems(ctx context.Context) ([]models.Item, error)
	DeleteItem(ctx context.Context, id string) error
}

// RequestStore persists claim requests.
type RequestStore interface {
	InsertRequest(ctx context.Context, req *models.ClaimRequest) error
	GetRequest(ctx context.Context, id string) (*models.ClaimRequest, error)
	ListRequests(ctx context.Context) ([]models.ClaimRequest, error)
	// UpdateStatus moves a request from one status to another and fails
	// with ErrStatusConflict if the stored status is not from.
	UpdateStatus(ctx context.Context, id string, from, to models.ClaimStatus) error
	DeleteRequest(ctx context.Context, id string) error
}
