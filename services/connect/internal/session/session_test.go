package session

import (
	"context"
	"errors"
	"sync"
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

var demo = Demo{Enabled: true, StudentID: "2103141", Password: "12345678"}

type outbox struct {
	mu     sync.Mutex
	emails []string
}

func (o *outbox) sink(_ context.Context, email string, _ *models.VerificationToken) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.emails = append(o.emails, email)
}

func (o *outbox) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.emails)
}

type harness struct {
	db      *database.DB
	backend *auth.LocalBackend
	client  *auth.Client
	boot    *Bootstrap
	mail    *outbox
	states  []State
}

func newHarness(t *testing.T, profiles *testutil.FaultyProfiles) *harness {
	t.Helper()
	db := testutil.OpenTestDB(t)
	mail := &outbox{}
	backend := auth.NewLocal(db, time.Hour, nil, auth.WithTokenSink(mail.sink))

	if profiles == nil {
		profiles = &testutil.FaultyProfiles{}
	}
	profiles.ProfileStore = db
	res := resolver.New(profiles, resolver.Options{
		AdminEmails:     []string{"admin@ruet.ac.bd"},
		RequireVerified: true,
	})

	client := auth.NewClient(backend)
	h := &harness{db: db, backend: backend, client: client, mail: mail}
	h.boot = New(client, res, Options{Demo: demo})
	t.Cleanup(h.boot.Close)
	h.boot.Subscribe(func(s Snapshot) { h.states = append(h.states, s.State) })
	return h
}

func TestStartAnonymous(t *testing.T) {
	h := newHarness(t, nil)

	assert.Equal(t, Unresolved, h.boot.Snapshot().State)

	snap := h.boot.Start(context.Background())
	assert.Equal(t, Anonymous, snap.State)
	assert.Nil(t, snap.User)
	assert.False(t, snap.SignedIn())
}

func TestStartRestoredPrincipal(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	p, err := h.backend.CreateVerifiedPrincipal(ctx, "2103005@student.ruet.ac.bd", "password1")
	require.NoError(t, err)

	// A principal restored before the bootstrap exists is resolved by Start.
	client := auth.NewClient(h.backend)
	client.Restore(p)
	boot := New(client, resolver.New(h.db, resolver.Options{RequireVerified: true}), Options{})
	t.Cleanup(boot.Close)

	var states []State
	boot.Subscribe(func(s Snapshot) { states = append(states, s.State) })
	assert.Equal(t, Unresolved, boot.Snapshot().State)

	snap := boot.Start(ctx)
	require.True(t, snap.SignedIn())
	assert.Equal(t, "2103005", snap.User.ShortID)
	assert.Equal(t, []State{Resolving, Resolved}, states)
}

func TestSignIn_StudentID(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.backend.CreateVerifiedPrincipal(ctx, "2103002@student.ruet.ac.bd", "password1")
	require.NoError(t, err)

	snap, err := h.boot.SignIn(ctx, "2103002", "password1")
	require.NoError(t, err)
	require.True(t, snap.SignedIn())
	assert.Equal(t, "2103002", snap.User.ShortID)
	assert.Equal(t, models.RoleStudent, snap.User.Role)
	assert.False(t, snap.IsAdmin)

	assert.Equal(t, []State{Resolving, Resolved}, h.states)
}

func TestSignIn_Admin(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.backend.CreateVerifiedPrincipal(ctx, "admin@ruet.ac.bd", "password1")
	require.NoError(t, err)

	snap, err := h.boot.SignIn(ctx, "admin@ruet.ac.bd", "password1")
	require.NoError(t, err)
	assert.True(t, snap.IsAdmin)
	assert.Equal(t, models.RoleTeacher, snap.User.Role)
}

func TestSignIn_BadPasswordThenRetry(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.backend.CreateVerifiedPrincipal(ctx, "2103002@student.ruet.ac.bd", "password1")
	require.NoError(t, err)

	snap, err := h.boot.SignIn(ctx, "2103002", "wrong")
	assert.ErrorIs(t, err, apperr.ErrInvalidCredentials)
	assert.Equal(t, Failed, snap.State)
	assert.Nil(t, snap.User)

	snap, err = h.boot.SignIn(ctx, "2103002", "password1")
	require.NoError(t, err)
	assert.Equal(t, Resolved, snap.State)
}

func TestSignIn_UnverifiedResendsAndSignsOut(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.boot.SignUp(ctx, "2103003", "password1")
	require.NoError(t, err)
	assert.Equal(t, 1, h.mail.count())
	assert.Equal(t, Anonymous, h.boot.Snapshot().State)
	assert.Nil(t, h.client.CurrentPrincipal())

	snap, err := h.boot.SignIn(ctx, "2103003", "password1")
	assert.ErrorIs(t, err, apperr.ErrUnverifiedIdentity)
	assert.Equal(t, Failed, snap.State)
	assert.Equal(t, 2, h.mail.count(), "verification resent")
	assert.Nil(t, h.client.CurrentPrincipal(), "unverified principal is signed out")

	profiles, err := h.db.ListProfiles(ctx)
	require.NoError(t, err)
	assert.Empty(t, profiles)
}

func TestSignUp_Rejections(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.boot.SignUp(ctx, "21031@student.ruet.ac.bd", "password1")
	assert.ErrorIs(t, err, apperr.ErrMalformedEmail)

	_, err = h.boot.SignUp(ctx, "2103003", "password1")
	require.NoError(t, err)
	_, err = h.boot.SignUp(ctx, "2103003", "password1")
	assert.ErrorIs(t, err, apperr.ErrEmailTaken)
}

func TestProvisionDemo_Idempotent(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	first, err := h.boot.SignIn(ctx, "2103141", "12345678")
	require.NoError(t, err)
	require.True(t, first.SignedIn())
	assert.Equal(t, "2103141", first.User.ShortID)
	assert.Equal(t, models.RoleStudent, first.User.Role)
	assert.False(t, first.IsAdmin)

	require.NoError(t, h.boot.SignOut(ctx))
	assert.Equal(t, Anonymous, h.boot.Snapshot().State)

	second, err := h.boot.ProvisionDemo(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.User.ID, second.User.ID)

	third, err := h.boot.SignIn(ctx, "2103141@student.ruet.ac.bd", "12345678")
	require.NoError(t, err)
	assert.Equal(t, first.User.ID, third.User.ID)

	profiles, err := h.db.ListProfiles(ctx)
	require.NoError(t, err)
	assert.Len(t, profiles, 1)
	assert.Zero(t, h.mail.count(), "demo account needs no verification")
}

func TestProvisionDemo_Disabled(t *testing.T) {
	h := newHarness(t, nil)
	h.boot.demo.Enabled = false

	snap, err := h.boot.SignIn(context.Background(), "2103141", "12345678")
	assert.ErrorIs(t, err, apperr.ErrInvalidCredentials)
	assert.Equal(t, Failed, snap.State)
}

func TestPrincipalChangeNotification(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	p, err := h.backend.CreateVerifiedPrincipal(ctx, "2103004@student.ruet.ac.bd", "password1")
	require.NoError(t, err)

	h.client.Restore(p)
	snap := h.boot.Snapshot()
	require.True(t, snap.SignedIn())
	assert.Equal(t, "2103004", snap.User.ShortID)

	require.NoError(t, h.client.SignOut(ctx))
	assert.Equal(t, Anonymous, h.boot.Snapshot().State)
}

func TestProfileStoreDown(t *testing.T) {
	h := newHarness(t, &testutil.FaultyProfiles{
		GetErr: func(string) error { return errors.New("unavailable") },
	})
	ctx := context.Background()

	_, err := h.backend.CreateVerifiedPrincipal(ctx, "2103005@student.ruet.ac.bd", "password1")
	require.NoError(t, err)

	snap, err := h.boot.SignIn(ctx, "2103005", "password1")
	assert.ErrorIs(t, err, apperr.ErrProfileStoreUnavailable)
	assert.Equal(t, Failed, snap.State)
	assert.True(t, apperr.Retryable(snap.Err))
}
