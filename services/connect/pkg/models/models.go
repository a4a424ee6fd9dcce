package models

import "time"

// Role classifies a user by the kind of institutional address they signed up with.
type Role string

const (
	RoleStudent Role = "Student"
	RoleTeacher Role = "Teacher"
)

// Principal is the authentication provider's view of a signed-in account.
type Principal struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	// IDToken is the provider session credential, when the provider issues one.
	IDToken string `json:"-"`
}

// UserProfile is the domain identity of a user.
//
// IsAdmin is never persisted. It is recomputed from the admin allow-list
// every time a profile is resolved or looked up.
type UserProfile struct {
	ID            string `json:"id"`
	ShortID       string `json:"short_id"`
	DisplayName   string `json:"display_name"`
	Email         string `json:"email"`
	ContactNumber string `json:"contact_number,omitempty"`
	Role          Role   `json:"role"`
	IsAdmin       bool   `json:"is_admin"`
}

// Contact is what an item owner learns about a requester once they approve.
type Contact struct {
	ShortID       string `json:"short_id"`
	DisplayName   string `json:"display_name"`
	Email         string `json:"email"`
	ContactNumber string `json:"contact_number"`
}

// Contact returns the contact card for the profile.
func (p *UserProfile) Contact() Contact {
	return Contact{
		ShortID:       p.ShortID,
		DisplayName:   p.DisplayName,
		Email:         p.Email,
		ContactNumber: p.ContactNumber,
	}
}

// Roles returns the role names carried in API tokens.
func (p *UserProfile) Roles() []string {
	roles := []string{string(p.Role)}
	if p.IsAdmin {
		roles = append(roles, "admin")
	}
	return roles
}

// Credential is a locally managed principal with its password hash.
type Credential struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	EmailHash     string     `json:"-"`
	EmailVerified bool       `json:"email_verified"`
	PasswordHash  string     `json:"-"`
	CreatedAt     time.Time  `json:"created_at"`
	LastLoginAt   *time.Time `json:"last_login_at,omitempty"`
}

// Principal returns the provider view of the credential.
func (c *Credential) Principal() *Principal {
	return &Principal{ID: c.ID, Email: c.Email, EmailVerified: c.EmailVerified}
}

// TokenPurpose distinguishes one-time tokens mailed to users.
type TokenPurpose string

const (
	PurposeVerifyEmail   TokenPurpose = "verify_email"
	PurposePasswordReset TokenPurpose = "password_reset"
)

// VerificationToken is a one-time token for a locally managed principal.
type VerificationToken struct {
	ID          string       `json:"id"`
	PrincipalID string       `json:"principal_id"`
	Purpose     TokenPurpose `json:"purpose"`
	ExpiresAt   time.Time    `json:"expires_at"`
	CreatedAt   time.Time    `json:"created_at"`
}
