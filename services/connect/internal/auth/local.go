package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ruet-connect/connect/services/connect/internal/apperr"
	"github.com/ruet-connect/connect/services/connect/pkg/identity"
	"github.com/ruet-connect/connect/services/connect/pkg/models"
)

// CredentialStore is the persistence LocalBackend needs. *database.DB implements it.
type CredentialStore interface {
	CreateCredential(ctx context.Context, c *models.Credential) error
	GetCredential(ctx context.Context, id string) (*models.Credential, error)
	GetCredentialByEmail(ctx context.Context, email string) (*models.Credential, error)
	GetCredentialByEmailHash(ctx context.Context, hash string) (*models.Credential, error)
	MarkEmailVerified(ctx context.Context, id string) error
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	UpdateLastLogin(ctx context.Context, id string, t time.Time) error
	DeleteCredential(ctx context.Context, id string) error
	CreateVerificationToken(ctx context.Context, t *models.VerificationToken) error
	GetVerificationToken(ctx context.Context, id string, purpose models.TokenPurpose) (*models.VerificationToken, error)
	ConsumeVerificationToken(ctx context.Context, id string) error
	PurgeVerificationTokens(ctx context.Context, now time.Time) (int, error)
}

// TokenSink delivers a one-time token to the owner of email.
type TokenSink func(ctx context.Context, email string, tok *models.VerificationToken)

// LocalBackend authenticates against bcrypt hashes kept in SQLite and
// confirms emails with one-time tokens.
type LocalBackend struct {
	store    CredentialStore
	tokenTTL time.Duration
	deliver  TokenSink
	logger   *slog.Logger
	timeNow  func() time.Time
	linkBase string
}

// LocalOption configures a LocalBackend.
type LocalOption func(*LocalBackend)

// WithTokenSink replaces the default delivery, which logs the link.
func WithTokenSink(sink TokenSink) LocalOption {
	return func(b *LocalBackend) { b.deliver = sink }
}

// WithLinkBase sets the URL prefix used in logged verification links.
func WithLinkBase(base string) LocalOption {
	return func(b *LocalBackend) { b.linkBase = base }
}

// NewLocal creates a LocalBackend. tokenTTL bounds verification and reset tokens.
func NewLocal(store CredentialStore, tokenTTL time.Duration, logger *slog.Logger, opts ...LocalOption) *LocalBackend {
	if logger == nil {
		logger = slog.Default()
	}
	b := &LocalBackend{
		store:    store,
		tokenTTL: tokenTTL,
		logger:   logger,
		timeNow:  time.Now,
		linkBase: "http://localhost:8080",
	}
	b.deliver = b.logToken
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Authenticate checks a password and records the login time.
func (b *LocalBackend) Authenticate(ctx context.Context, email, password string) (*models.Principal, error) {
	cred, err := b.store.GetCredentialByEmail(ctx, canonicalEmail(email))
	if err != nil {
		return nil, fmt.Errorf("lookup principal: %w: %w", apperr.ErrAuthUnavailable, err)
	}
	if cred == nil {
		return nil, ErrInvalidCredentials
	}
	if err := CheckPassword(password, cred.PasswordHash); err != nil {
		return nil, ErrInvalidCredentials
	}

	if err := b.store.UpdateLastLogin(ctx, cred.ID, b.timeNow()); err != nil {
		b.logger.WarnContext(ctx, "update last login failed", "principal", cred.ID, "error", err)
	}
	return cred.Principal(), nil
}

// Register creates an unverified principal.
func (b *LocalBackend) Register(ctx context.Context, email, password string) (*models.Principal, error) {
	return b.create(ctx, email, password, false)
}

// CreateVerifiedPrincipal creates a principal that needs no email confirmation.
func (b *LocalBackend) CreateVerifiedPrincipal(ctx context.Context, email, password string) (*models.Principal, error) {
	return b.create(ctx, email, password, true)
}

func (b *LocalBackend) create(ctx context.Context, email, password string, verified bool) (*models.Principal, error) {
	email = canonicalEmail(email)
	emailHash := identity.HashIdentifier(identity.NormalizeEmail(email))

	existing, err := b.store.GetCredentialByEmailHash(ctx, emailHash)
	if err != nil {
		return nil, fmt.Errorf("check email: %w: %w", apperr.ErrAuthUnavailable, err)
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	cred := &models.Credential{
		ID:            uuid.New().String(),
		Email:         email,
		EmailHash:     emailHash,
		EmailVerified: verified,
		PasswordHash:  hash,
		CreatedAt:     b.timeNow(),
	}
	if err := b.store.CreateCredential(ctx, cred); err != nil {
		return nil, fmt.Errorf("create principal: %w: %w", apperr.ErrAuthUnavailable, err)
	}
	return cred.Principal(), nil
}

// SendVerification issues a verification token for p.
func (b *LocalBackend) SendVerification(ctx context.Context, p *models.Principal) error {
	if p == nil {
		return ErrNoPrincipal
	}
	return b.issue(ctx, p.ID, p.Email, models.PurposeVerifyEmail)
}

// VerifyEmail consumes a verification token and marks the email verified.
func (b *LocalBackend) VerifyEmail(ctx context.Context, token string) error {
	tok, err := b.redeem(ctx, token, models.PurposeVerifyEmail)
	if err != nil {
		return err
	}
	if err := b.store.MarkEmailVerified(ctx, tok.PrincipalID); err != nil {
		return fmt.Errorf("mark verified: %w: %w", apperr.ErrAuthUnavailable, err)
	}
	return nil
}

// SendPasswordReset issues a reset token. Unknown emails succeed silently.
func (b *LocalBackend) SendPasswordReset(ctx context.Context, email string) error {
	cred, err := b.store.GetCredentialByEmail(ctx, canonicalEmail(email))
	if err != nil {
		return fmt.Errorf("lookup principal: %w: %w", apperr.ErrAuthUnavailable, err)
	}
	if cred == nil {
		return nil
	}
	return b.issue(ctx, cred.ID, cred.Email, models.PurposePasswordReset)
}

// ResetPassword consumes a reset token and replaces the password.
func (b *LocalBackend) ResetPassword(ctx context.Context, token, newPassword string) error {
	tok, err := b.redeem(ctx, token, models.PurposePasswordReset)
	if err != nil {
		return err
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := b.store.UpdatePasswordHash(ctx, tok.PrincipalID, hash); err != nil {
		return fmt.Errorf("update password: %w: %w", apperr.ErrAuthUnavailable, err)
	}
	return nil
}

// GetPrincipal looks up a principal by ID.
func (b *LocalBackend) GetPrincipal(ctx context.Context, id string) (*models.Principal, error) {
	cred, err := b.store.GetCredential(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get principal: %w: %w", apperr.ErrAuthUnavailable, err)
	}
	if cred == nil {
		return nil, nil
	}
	return cred.Principal(), nil
}

// GetPrincipalByEmail looks up a principal by email.
func (b *LocalBackend) GetPrincipalByEmail(ctx context.Context, email string) (*models.Principal, error) {
	cred, err := b.store.GetCredentialByEmail(ctx, canonicalEmail(email))
	if err != nil {
		return nil, fmt.Errorf("get principal: %w: %w", apperr.ErrAuthUnavailable, err)
	}
	if cred == nil {
		return nil, nil
	}
	return cred.Principal(), nil
}

// DeletePrincipal removes a principal. Missing principals are not an error.
func (b *LocalBackend) DeletePrincipal(ctx context.Context, id string) error {
	if err := b.store.DeleteCredential(ctx, id); err != nil {
		return fmt.Errorf("delete principal: %w: %w", apperr.ErrAuthUnavailable, err)
	}
	return nil
}

// PurgeExpiredTokens drops verification and reset tokens that can no
// longer be redeemed.
func (b *LocalBackend) PurgeExpiredTokens(ctx context.Context) (int, error) {
	n, err := b.store.PurgeVerificationTokens(ctx, b.timeNow())
	if err != nil {
		return 0, fmt.Errorf("purge tokens: %w: %w", apperr.ErrAuthUnavailable, err)
	}
	return n, nil
}

func (b *LocalBackend) issue(ctx context.Context, principalID, email string, purpose models.TokenPurpose) error {
	now := b.timeNow()
	tok := &models.VerificationToken{
		ID:          uuid.New().String(),
		PrincipalID: principalID,
		Purpose:     purpose,
		ExpiresAt:   now.Add(b.tokenTTL),
		CreatedAt:   now,
	}
	if err := b.store.CreateVerificationToken(ctx, tok); err != nil {
		return fmt.Errorf("create token: %w: %w", apperr.ErrAuthUnavailable, err)
	}
	b.deliver(ctx, email, tok)
	return nil
}

func (b *LocalBackend) redeem(ctx context.Context, token string, purpose models.TokenPurpose) (*models.VerificationToken, error) {
	tok, err := b.store.GetVerificationToken(ctx, token, purpose)
	if err != nil {
		return nil, fmt.Errorf("get token: %w: %w", apperr.ErrAuthUnavailable, err)
	}
	if tok == nil {
		return nil, ErrInvalidToken
	}
	if err := b.store.ConsumeVerificationToken(ctx, tok.ID); err != nil {
		return nil, fmt.Errorf("consume token: %w: %w", apperr.ErrAuthUnavailable, err)
	}
	return tok, nil
}

func (b *LocalBackend) logToken(ctx context.Context, email string, tok *models.VerificationToken) {
	path := "/api/auth/verify"
	if tok.Purpose == models.PurposePasswordReset {
		path = "/api/auth/password-reset/confirm"
	}
	b.logger.InfoContext(ctx, "one-time link issued",
		"email", email,
		"purpose", tok.Purpose,
		"link", fmt.Sprintf("%s%s?token=%s", b.linkBase, path, tok.ID),
		"expires_at", tok.ExpiresAt,
	)
}

var (
	_ Backend          = (*LocalBackend)(nil)
	_ EmailVerifier    = (*LocalBackend)(nil)
	_ PasswordResetter = (*LocalBackend)(nil)
)
