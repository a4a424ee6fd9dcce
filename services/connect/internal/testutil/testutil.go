// Package testutil provides shared fixtures for store-backed tests.
package testutil

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ruet-connect/connect/services/connect/internal/database"
	"github.com/ruet-connect/connect/services/connect/internal/store"
	"github.com/ruet-connect/connect/services/connect/pkg/models"
)

// OpenTestDB opens a migrated SQLite database in t.TempDir() and registers cleanup.
func OpenTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a clock at a fixed instant.
func NewClock() *Clock {
	return &Clock{now: time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)}
}

// Now returns the current instant.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// FaultyProfiles wraps a ProfileStore and fails the operations whose
// function field returns a non-nil error.
type FaultyProfiles struct {
	store.ProfileStore
	GetErr    func(id string) error
	PutErr    func(p *models.UserProfile) error
	DeleteErr func(id string) error
}

func (f *FaultyProfiles) GetProfile(ctx context.Context, id string) (*models.UserProfile, error) {
	if f.GetErr != nil {
		if err := f.GetErr(id); err != nil {
			return nil, err
		}
	}
	return f.ProfileStore.GetProfile(ctx, id)
}

func (f *FaultyProfiles) PutProfile(ctx context.Context, p *models.UserProfile) error {
	if f.PutErr != nil {
		if err := f.PutErr(p); err != nil {
			return err
		}
	}
	return f.ProfileStore.PutProfile(ctx, p)
}

// CreateProfile fails with PutErr like PutProfile.
func (f *FaultyProfiles) CreateProfile(ctx context.Context, p *models.UserProfile) (bool, error) {
	if f.PutErr != nil {
		if err := f.PutErr(p); err != nil {
			return false, err
		}
	}
	return f.ProfileStore.CreateProfile(ctx, p)
}

func (f *FaultyProfiles) DeleteProfile(ctx context.Context, id string) error {
	if f.DeleteErr != nil {
		if err := f.DeleteErr(id); err != nil {
			return err
		}
	}
	return f.ProfileStore.DeleteProfile(ctx, id)
}

// FaultyRequests wraps a RequestStore and fails listing or status updates on demand.
type FaultyRequests struct {
	store.RequestStore
	ListErr   func() error
	UpdateErr func(id string) error
}

func (f *FaultyRequests) ListRequests(ctx context.Context) ([]models.ClaimRequest, error) {
	if f.ListErr != nil {
		if err := f.ListErr(); err != nil {
			return nil, err
		}
	}
	return f.RequestStore.ListRequests(ctx)
}

func (f *FaultyRequests) UpdateStatus(ctx context.Context, id string, from, to models.ClaimStatus) error {
	if f.UpdateErr != nil {
		if err := f.UpdateErr(id); err != nil {
			return err
		}
	}
	return f.RequestStore.UpdateStatus(ctx, id, from, to)
}
