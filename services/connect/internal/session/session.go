// Package session turns the auth client's current principal into the
// session's published {user, isAdmin} state.
//
// A Bootstrap moves through Unresolved, Resolving and then one of Resolved,
// Anonymous or Failed. Resolved and Anonymous are rest states. Failed ends
// one attempt; the next SignIn, Start or principal change starts over.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ruet-connect/connect/services/connect/internal/apperr"
	"github.com/ruet-connect/connect/services/connect/internal/auth"
	"github.com/ruet-connect/connect/services/connect/pkg/identity"
	"github.com/ruet-connect/connect/services/connect/pkg/models"
)

// State is a bootstrap state.
type State int

const (
	Unresolved State = iota
	Resolving
	Resolved
	Anonymous
	Failed
)

func (s State) String() string {
	switch s {
	case Unresolved:
		return "unresolved"
	case Resolving:
		return "resolving"
	case Resolved:
		return "resolved"
	case Anonymous:
		return "anonymous"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Snapshot is the published session state. User is set only when State is
// Resolved; Err only when State is Failed.
type Snapshot struct {
	State   State
	User    *models.UserProfile
	IsAdmin bool
	Err     error
}

// SignedIn reports whether the snapshot carries a resolved user.
func (s Snapshot) SignedIn() bool {
	return s.State == Resolved && s.User != nil
}

// ProfileResolver maps principals to profiles. *resolver.Resolver implements it.
type ProfileResolver interface {
	Resolve(ctx context.Context, p *models.Principal) (*models.UserProfile, error)
}

// Demo configures the demo account.
type Demo struct {
	Enabled   bool
	StudentID string
	Password  string
}

// Email returns the demo account's institutional address.
func (d Demo) Email() string {
	return identity.StudentEmail(d.StudentID)
}

// matches reports whether a sign-in attempt presents the demo credentials.
func (d Demo) matches(identifier, password string) bool {
	if !d.Enabled || d.StudentID == "" {
		return false
	}
	return strings.EqualFold(identity.StudentEmail(identifier), d.Email()) && password == d.Password
}

// Options configures a Bootstrap.
type Options struct {
	Demo   Demo
	Logger *slog.Logger
}

// Bootstrap drives profile resolution for one session.
type Bootstrap struct {
	client   *auth.Client
	resolver ProfileResolver
	demo     Demo
	logger   *slog.Logger

	// opMu serializes the session's operations.
	opMu sync.Mutex

	mu        sync.Mutex
	snap      Snapshot
	busy      bool
	listeners map[int]func(Snapshot)
	nextID    int

	unsubscribe func()
}

// New creates a Bootstrap in the Unresolved state and subscribes it to the
// client's principal changes. Call Close to unsubscribe.
func New(client *auth.Client, resolver ProfileResolver, opts Options) *Bootstrap {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bootstrap{
		client:    client,
		resolver:  resolver,
		demo:      opts.Demo,
		logger:    logger,
		snap:      Snapshot{State: Unresolved},
		listeners: make(map[int]func(Snapshot)),
	}
	b.unsubscribe = client.Subscribe(b.onPrincipalChange)
	return b
}

// Close detaches the bootstrap from its client.
func (b *Bootstrap) Close() {
	b.unsubscribe()
}

// Start resolves whatever principal the client currently holds.
func (b *Bootstrap) Start(ctx context.Context) Snapshot {
	b.begin()
	defer b.end()
	return b.resolve(ctx, b.client.CurrentPrincipal())
}

// HandlePrincipalChange resolves p and publishes the result. A nil p
// publishes Anonymous.
func (b *Bootstrap) HandlePrincipalChange(ctx context.Context, p *models.Principal) Snapshot {
	b.begin()
	defer b.end()
	return b.resolve(ctx, p)
}

// SignIn authenticates identifier, which may be a bare student id, and
// resolves the profile. The demo credentials provision the demo account on
// first use.
//
// An unverified principal gets a fresh verification email and is signed
// out again; the attempt fails with apperr.ErrUnverifiedIdentity.
func (b *Bootstrap) SignIn(ctx context.Context, identifier, password string) (Snapshot, error) {
	b.begin()
	defer b.end()

	b.publish(Snapshot{State: Resolving})

	var (
		p   *models.Principal
		err error
	)
	if b.demo.matches(identifier, password) {
		p, err = b.provisionDemo(ctx)
	} else {
		p, err = b.client.SignIn(ctx, identity.StudentEmail(identifier), password)
	}
	if err != nil {
		return b.fail(err), err
	}

	snap := b.resolve(ctx, p)
	if snap.State == Failed && errors.Is(snap.Err, apperr.ErrUnverifiedIdentity) {
		if err := b.client.SendVerification(ctx); err != nil {
			b.logger.WarnContext(ctx, "resend verification failed", "principal", p.ID, "error", err)
		}
		if err := b.client.SignOut(ctx); err != nil {
			b.logger.WarnContext(ctx, "sign out unverified principal failed", "principal", p.ID, "error", err)
		}
	}
	return snap, snap.Err
}

// ProvisionDemo creates the demo account if it does not exist and signs in
// as it. Repeated calls find the existing principal and sign in normally.
func (b *Bootstrap) ProvisionDemo(ctx context.Context) (Snapshot, error) {
	if b.demo.StudentID == "" {
		return b.Snapshot(), fmt.Errorf("demo account: %w", apperr.ErrValidation)
	}

	b.begin()
	defer b.end()

	b.publish(Snapshot{State: Resolving})
	p, err := b.provisionDemo(ctx)
	if err != nil {
		return b.fail(err), err
	}
	snap := b.resolve(ctx, p)
	return snap, snap.Err
}

func (b *Bootstrap) provisionDemo(ctx context.Context) (*models.Principal, error) {
	backend := b.client.Backend()
	email := b.demo.Email()

	existing, err := backend.GetPrincipalByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("look up demo principal: %w", err)
	}
	if existing == nil {
		_, err := backend.CreateVerifiedPrincipal(ctx, email, b.demo.Password)
		switch {
		case errors.Is(err, auth.ErrEmailTaken):
			// Another session provisioned it first.
		case err != nil:
			return nil, fmt.Errorf("create demo principal: %w", err)
		default:
			b.logger.InfoContext(ctx, "demo account provisioned", "email", email)
		}
	}
	return b.client.SignIn(ctx, email, b.demo.Password)
}

// SignUp registers a principal, sends the verification email and leaves the
// session signed out. The profile is created on the first verified sign-in.
func (b *Bootstrap) SignUp(ctx context.Context, identifier, password string) (*models.Principal, error) {
	email := identity.StudentEmail(identifier)
	if _, err := identity.DeriveShortID(email); err != nil {
		return nil, err
	}

	b.begin()
	defer b.end()

	p, err := b.client.SignUp(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if err := b.client.SendVerification(ctx); err != nil {
		b.logger.WarnContext(ctx, "send verification failed", "principal", p.ID, "error", err)
	}
	if err := b.client.SignOut(ctx); err != nil {
		return p, err
	}
	b.publish(Snapshot{State: Anonymous})

	b.logger.InfoContext(ctx, "principal registered", "principal", p.ID, "verified", p.EmailVerified)
	return p, nil
}

// SignOut clears the principal and publishes Anonymous.
func (b *Bootstrap) SignOut(ctx context.Context) error {
	b.begin()
	defer b.end()

	if err := b.client.SignOut(ctx); err != nil {
		return err
	}
	b.publish(Snapshot{State: Anonymous})
	return nil
}

// Snapshot returns the last published state.
func (b *Bootstrap) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return copySnapshot(b.snap)
}

// Subscribe registers fn for every published snapshot and returns its
// cancel func. fn runs on the publishing goroutine.
func (b *Bootstrap) Subscribe(fn func(Snapshot)) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.listeners, id)
		b.mu.Unlock()
	}
}

// resolve must be called between begin and end.
func (b *Bootstrap) resolve(ctx context.Context, p *models.Principal) Snapshot {
	if p == nil {
		return b.publish(Snapshot{State: Anonymous})
	}

	if b.Snapshot().State != Resolving {
		b.publish(Snapshot{State: Resolving})
	}
	profile, err := b.resolver.Resolve(ctx, p)
	if err != nil {
		return b.fail(err)
	}
	return b.publish(Snapshot{State: Resolved, User: profile, IsAdmin: profile.IsAdmin})
}

func (b *Bootstrap) fail(err error) Snapshot {
	b.logger.Warn("session resolution failed", "error", err)
	return b.publish(Snapshot{State: Failed, Err: err})
}

func (b *Bootstrap) publish(s Snapshot) Snapshot {
	b.mu.Lock()
	b.snap = s
	fns := make([]func(Snapshot), 0, len(b.listeners))
	for _, fn := range b.listeners {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(copySnapshot(s))
	}
	return copySnapshot(s)
}

// begin takes the operation lock and mutes client notifications, which the
// running operation handles itself.
func (b *Bootstrap) begin() {
	b.opMu.Lock()
	b.mu.Lock()
	b.busy = true
	b.mu.Unlock()
}

func (b *Bootstrap) end() {
	b.mu.Lock()
	b.busy = false
	b.mu.Unlock()
	b.opMu.Unlock()
}

func (b *Bootstrap) onPrincipalChange(p *models.Principal) {
	b.mu.Lock()
	busy := b.busy
	b.mu.Unlock()
	if busy {
		return
	}
	b.HandlePrincipalChange(context.Background(), p)
}

func copySnapshot(s Snapshot) Snapshot {
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}
