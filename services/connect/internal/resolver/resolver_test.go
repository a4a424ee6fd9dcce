package resolver

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruet-connect/connect/services/connect/internal/apperr"
	"github.com/ruet-connect/connect/services/connect/internal/store"
	"github.com/ruet-connect/connect/services/connect/internal/testutil"
	"github.com/ruet-connect/connect/services/connect/pkg/models"
)

func verified(id, email string) *models.Principal {
	return &models.Principal{ID: id, Email: email, EmailVerified: true}
}

func TestResolve_StudentProfile(t *testing.T) {
	db := testutil.OpenTestDB(t)
	r := New(db, Options{RequireVerified: true})

	p, err := r.Resolve(context.Background(), verified("uid-1", "2103141@student.ruet.ac.bd"))
	require.NoError(t, err)

	assert.Equal(t, "2103141", p.ShortID)
	assert.Equal(t, "2103141", p.DisplayName)
	assert.Equal(t, models.RoleStudent, p.Role)
	assert.False(t, p.IsAdmin)
	assert.Empty(t, p.ContactNumber)

	stored, err := db.GetProfile(context.Background(), "uid-1")
	require.NoError(t, err)
	require.NotNil(t, stored, "first resolution persists the profile")
}

func TestResolve_TeacherAndAdmin(t *testing.T) {
	db := testutil.OpenTestDB(t)
	r := New(db, Options{AdminEmails: []string{"Head.CSE@ruet.ac.bd"}, RequireVerified: true})

	p, err := r.Resolve(context.Background(), verified("uid-2", "head.cse@ruet.ac.bd"))
	require.NoError(t, err)
	assert.Equal(t, "head.cse", p.ShortID)
	assert.Equal(t, models.RoleTeacher, p.Role)
	assert.True(t, p.IsAdmin)
}

func TestIsAdminEmail_ExactAddress(t *testing.T) {
	r := New(nil, Options{AdminEmails: []string{" Registrar@ruet.ac.bd ", "first.last@gmail.com"}})

	tests := []struct {
		email string
		want  bool
	}{
		{"registrar@ruet.ac.bd", true},
		{"REGISTRAR@RUET.AC.BD", true},
		{"first.last@gmail.com", true},
		{"firstlast@gmail.com", false},
		{"first.last+admin@gmail.com", false},
		{"2103141@student.ruet.ac.bd", false},
	}
	for _, tt := range tests {
		if got := r.IsAdminEmail(tt.email); got != tt.want {
			t.Errorf("IsAdminEmail(%q) = %v, want %v", tt.email, got, tt.want)
		}
	}
}

func TestResolve_Idempotent(t *testing.T) {
	db := testutil.OpenTestDB(t)
	r := New(db, Options{RequireVerified: true})
	ctx := context.Background()
	principal := verified("uid-1", "2103141@student.ruet.ac.bd")

	first, err := r.Resolve(ctx, principal)
	require.NoError(t, err)

	// A profile edit must survive later resolutions.
	first.ContactNumber = "+8801712345678"
	require.NoError(t, db.PutProfile(ctx, first))

	second, err := r.Resolve(ctx, principal)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "+8801712345678", second.ContactNumber)

	all, err := db.ListProfiles(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestResolve_AdminRecomputedEveryTime(t *testing.T) {
	db := testutil.OpenTestDB(t)
	ctx := context.Background()
	principal := verified("uid-3", "registrar@ruet.ac.bd")

	_, err := New(db, Options{AdminEmails: []string{"registrar@ruet.ac.bd"}}).Resolve(ctx, principal)
	require.NoError(t, err)

	p, err := New(db, Options{}).Resolve(ctx, principal)
	require.NoError(t, err)
	assert.False(t, p.IsAdmin, "admin flag follows the current allow-list, not stored state")
}

func TestResolve_Errors(t *testing.T) {
	db := testutil.OpenTestDB(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		resolver  *Resolver
		principal *models.Principal
		want      error
	}{
		{"nil principal", New(db, Options{}), nil, apperr.ErrUnauthenticated},
		{"empty id", New(db, Options{}), verified("", "2103141@student.ruet.ac.bd"), apperr.ErrUnauthenticated},
		{"unverified", New(db, Options{RequireVerified: true}), &models.Principal{ID: "uid-1", Email: "2103141@student.ruet.ac.bd"}, apperr.ErrUnverifiedIdentity},
		{"malformed student", New(db, Options{}), verified("uid-1", "21031@student.ruet.ac.bd"), apperr.ErrMalformedEmail},
		{"no at sign", New(db, Options{}), verified("uid-1", "2103141"), apperr.ErrMalformedEmail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.resolver.Resolve(ctx, tt.principal)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	all, err := db.ListProfiles(ctx)
	require.NoError(t, err)
	assert.Empty(t, all, "failed resolutions create nothing")
}

func TestResolve_UnverifiedAllowedWhenPolicyOff(t *testing.T) {
	db := testutil.OpenTestDB(t)
	r := New(db, Options{RequireVerified: false})

	p, err := r.Resolve(context.Background(), &models.Principal{ID: "uid-1", Email: "2103141@student.ruet.ac.bd"})
	require.NoError(t, err)
	assert.Equal(t, "2103141", p.ShortID)
}

func TestResolve_StoreUnavailable(t *testing.T) {
	db := testutil.OpenTestDB(t)
	down := errors.New("connection reset")
	faulty := &testutil.FaultyProfiles{
		ProfileStore: db,
		GetErr:       func(string) error { return down },
	}
	r := New(faulty, Options{})

	_, err := r.Resolve(context.Background(), verified("uid-1", "2103141@student.ruet.ac.bd"))
	assert.ErrorIs(t, err, apperr.ErrProfileStoreUnavailable)
	assert.ErrorIs(t, err, down)

	faulty.GetErr = nil
	faulty.PutErr = func(*models.UserProfile) error { return down }
	_, err = r.Resolve(context.Background(), verified("uid-1", "2103141@student.ruet.ac.bd"))
	assert.ErrorIs(t, err, apperr.ErrProfileStoreUnavailable)
}

func TestLookup(t *testing.T) {
	db := testutil.OpenTestDB(t)
	r := New(db, Options{AdminEmails: []string{"2103141@student.ruet.ac.bd"}})
	ctx := context.Background()

	_, err := r.Lookup(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = r.Resolve(ctx, verified("uid-1", "2103141@student.ruet.ac.bd"))
	require.NoError(t, err)

	p, err := r.Lookup(ctx, "uid-1")
	require.NoError(t, err)
	assert.True(t, p.IsAdmin)
}

// racingProfiles holds the first two reads until both have arrived, so two
// resolutions both see no profile and both try to create it.
type racingProfiles struct {
	store.ProfileStore
	gate    sync.WaitGroup
	reads   atomic.Int32
	creates atomic.Int32
}

func newRacingProfiles(next store.ProfileStore) *racingProfiles {
	r := &racingProfiles{ProfileStore: next}
	r.gate.Add(2)
	return r
}

func (r *racingProfiles) GetProfile(ctx context.Context, id string) (*models.UserProfile, error) {
	if r.reads.Add(1) <= 2 {
		r.gate.Done()
		r.gate.Wait()
	}
	return r.ProfileStore.GetProfile(ctx, id)
}

func (r *racingProfiles) CreateProfile(ctx context.Context, p *models.UserProfile) (bool, error) {
	created, err := r.ProfileStore.CreateProfile(ctx, p)
	if created {
		r.creates.Add(1)
	}
	return created, err
}

func TestResolve_ConcurrentFirstResolutionCreatesOnce(t *testing.T) {
	db := testutil.OpenTestDB(t)
	profiles := newRacingProfiles(db)
	r := New(profiles, Options{RequireVerified: true})
	principal := verified("uid-1", "2103141@student.ruet.ac.bd")

	var wg sync.WaitGroup
	results := make([]*models.UserProfile, 2)
	errs := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = r.Resolve(context.Background(), principal)
		}(i)
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, "uid-1", results[i].ID)
	}
	assert.Equal(t, int32(1), profiles.creates.Load())

	all, err := db.ListProfiles(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

// staleProfiles misses on every read, as a resolution that raced an
// earlier one would.
type staleProfiles struct {
	store.ProfileStore
	missed bool
}

func (s *staleProfiles) GetProfile(ctx context.Context, id string) (*models.UserProfile, error) {
	if !s.missed {
		s.missed = true
		return nil, nil
	}
	return s.ProfileStore.GetProfile(ctx, id)
}

func TestResolve_LateCreateKeepsStoredEdits(t *testing.T) {
	db := testutil.OpenTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.PutProfile(ctx, &models.UserProfile{
		ID:            "uid-1",
		ShortID:       "2103141",
		DisplayName:   "2103141",
		Email:         "2103141@student.ruet.ac.bd",
		ContactNumber: "+8801712345678",
		Role:          models.RoleStudent,
	}))

	r := New(&staleProfiles{ProfileStore: db}, Options{AdminEmails: []string{"2103141@student.ruet.ac.bd"}})
	p, err := r.Resolve(ctx, verified("uid-1", "2103141@student.ruet.ac.bd"))
	require.NoError(t, err)
	assert.Equal(t, "+8801712345678", p.ContactNumber)
	assert.True(t, p.IsAdmin)

	stored, err := db.GetProfile(ctx, "uid-1")
	require.NoError(t, err)
	assert.Equal(t, "+8801712345678", stored.ContactNumber, "stored profile not overwritten")
}
