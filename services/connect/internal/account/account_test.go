package account

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruet-connect/connect/services/connect/internal/apperr"
	"github.com/ruet-connect/connect/services/connect/internal/auth"
	"github.com/ruet-connect/connect/services/connect/internal/database"
	"github.com/ruet-connect/connect/services/connect/internal/resolver"
	"github.com/ruet-connect/connect/services/connect/internal/testutil"
	"github.com/ruet-connect/connect/services/connect/pkg/models"
)

type env struct {
	db       *database.DB
	backend  *auth.LocalBackend
	profiles *testutil.FaultyProfiles
	svc      *Service
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := testutil.OpenTestDB(t)
	backend := auth.NewLocal(db, time.Hour, nil, auth.WithTokenSink(func(context.Context, string, *models.VerificationToken) {}))
	profiles := &testutil.FaultyProfiles{ProfileStore: db}
	return &env{
		db:       db,
		backend:  backend,
		profiles: profiles,
		svc:      New(profiles, db, db, backend, nil),
	}
}

// signUp creates a verified principal and its profile.
func (e *env) signUp(t *testing.T, email string) *models.UserProfile {
	t.Helper()
	ctx := context.Background()
	p, err := e.backend.CreateVerifiedPrincipal(ctx, email, "password1")
	require.NoError(t, err)
	profile, err := resolver.New(e.db, resolver.Options{}).Resolve(ctx, p)
	require.NoError(t, err)
	return profile
}

func TestUpdateContactNumber(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.signUp(t, "2103001@student.ruet.ac.bd")

	p, err := e.svc.UpdateContactNumber(ctx, alice.ID, "01712-345678")
	require.NoError(t, err)
	assert.Equal(t, "+8801712345678", p.ContactNumber)

	stored, err := e.db.GetProfile(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "+8801712345678", stored.ContactNumber)
	assert.Equal(t, "2103001", stored.ShortID, "other fields untouched")

	p, err = e.svc.UpdateContactNumber(ctx, alice.ID, "")
	require.NoError(t, err)
	assert.Empty(t, p.ContactNumber)
}

func TestUpdateContactNumber_Rejections(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.signUp(t, "2103001@student.ruet.ac.bd")

	_, err := e.svc.UpdateContactNumber(ctx, alice.ID, "12-34")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = e.svc.UpdateContactNumber(ctx, alice.ID, "call me")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = e.svc.UpdateContactNumber(ctx, "", "01712345678")
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)

	_, err = e.svc.UpdateContactNumber(ctx, "nobody", "01712345678")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func seedMarketplace(t *testing.T, db *database.DB, alice, bob string) {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)

	for _, it := range []models.Item{
		{ID: "a1", Title: "Lost umbrella", Category: models.CategoryLost, OwnerID: alice, CreatedAt: now},
		{ID: "a2", Title: "Lending drafter set", Category: models.CategoryLend, OwnerID: alice, CreatedAt: now},
		{ID: "b1", Title: "Found student card", Category: models.CategoryFound, OwnerID: bob, CreatedAt: now},
	} {
		require.NoError(t, db.InsertItem(ctx, &it))
	}
	for _, r := range []models.ClaimRequest{
		{ID: "r1", ItemID: "b1", ItemTitle: "Found student card", RequesterID: alice, OwnerID: bob, Status: models.ClaimStatusPending, CreatedAt: now},
		{ID: "r2", ItemID: "a1", ItemTitle: "Lost umbrella", RequesterID: bob, OwnerID: alice, Status: models.ClaimStatusPending, CreatedAt: now},
	} {
		require.NoError(t, db.InsertRequest(ctx, &r))
	}
}

func TestDeleteAccount(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.signUp(t, "2103001@student.ruet.ac.bd")
	bob := e.signUp(t, "2103002@student.ruet.ac.bd")
	seedMarketplace(t, e.db, alice.ID, bob.ID)

	require.NoError(t, e.svc.DeleteAccount(ctx, alice.ID))

	items, err := e.db.ListItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "b1", items[0].ID)

	requests, err := e.db.ListRequests(ctx)
	require.NoError(t, err)
	require.Len(t, requests, 1, "sent request withdrawn, received request kept")
	assert.Equal(t, "r2", requests[0].ID)
	assert.Equal(t, "Lost umbrella", requests[0].ItemTitle)

	principal, err := e.backend.GetPrincipal(ctx, alice.ID)
	require.NoError(t, err)
	assert.Nil(t, principal)

	profile, err := e.db.GetProfile(ctx, alice.ID)
	require.NoError(t, err)
	assert.Nil(t, profile)

	other, err := e.db.GetProfile(ctx, bob.ID)
	require.NoError(t, err)
	assert.NotNil(t, other)
}

func TestDeleteAccount_PartialThenPurge(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.signUp(t, "2103001@student.ruet.ac.bd")
	bob := e.signUp(t, "2103002@student.ruet.ac.bd")

	e.profiles.DeleteErr = func(string) error { return errors.New("deadline exceeded") }

	err := e.svc.DeleteAccount(ctx, alice.ID)
	assert.ErrorIs(t, err, apperr.ErrPartialDeletion)

	principal, err := e.backend.GetPrincipal(ctx, alice.ID)
	require.NoError(t, err)
	assert.Nil(t, principal, "principal is already gone")

	left, err := e.db.GetProfile(ctx, alice.ID)
	require.NoError(t, err)
	require.NotNil(t, left, "profile left behind")

	e.profiles.DeleteErr = nil
	n, err := e.svc.PurgeOrphanedProfiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	profiles, err := e.db.ListProfiles(ctx)
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, bob.ID, profiles[0].ID)

	// Retrying the deletion after the purge is harmless.
	require.NoError(t, e.svc.DeleteAccount(ctx, alice.ID))
}

func TestDeleteAccount_Unauthenticated(t *testing.T) {
	e := newEnv(t)
	assert.ErrorIs(t, e.svc.DeleteAccount(context.Background(), ""), apperr.ErrUnauthenticated)
}
