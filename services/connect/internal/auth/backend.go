// Package auth is the authentication provider: it proves who a caller is
// and whether their email is verified. It knows nothing about profiles.
package auth

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/ruet-connect/connect/services/connect/pkg/models"
)

const bcryptCost = 12

// Backend is a stateless authentication provider.
//
// Lookups return (nil, nil) for unknown principals. DeletePrincipal is
// idempotent.
type Backend interface {
	Authenticate(ctx context.Context, email, password string) (*models.Principal, error)
	Register(ctx context.Context, email, password string) (*models.Principal, error)
	// CreateVerifiedPrincipal creates a principal whose email needs no
	// confirmation, used for provisioned accounts such as the demo user.
	CreateVerifiedPrincipal(ctx context.Context, email, password string) (*models.Principal, error)
	SendVerification(ctx context.Context, p *models.Principal) error
	SendPasswordReset(ctx context.Context, email string) error
	GetPrincipal(ctx context.Context, id string) (*models.Principal, error)
	GetPrincipalByEmail(ctx context.Context, email string) (*models.Principal, error)
	DeletePrincipal(ctx context.Context, id string) error
}

// EmailVerifier is implemented by backends that confirm emails themselves
// rather than through a hosted link.
type EmailVerifier interface {
	VerifyEmail(ctx context.Context, token string) error
}

// PasswordResetter is implemented by backends that redeem reset tokens themselves.
type PasswordResetter interface {
	ResetPassword(ctx context.Context, token, newPassword string) error
}

// IDTokenVerifier is implemented by backends whose clients can sign in
// directly and present a provider ID token.
type IDTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*models.Principal, error)
}

// HashPassword hashes a plaintext password with bcrypt.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword compares a plaintext password against a bcrypt hash.
func CheckPassword(password, hash string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

func canonicalEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
