package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	firebase "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/identitytoolkit/v3"
	"google.golang.org/api/option"

	"github.com/ruet-connect/connect/services/connect/internal/apperr"
	"github.com/ruet-connect/connect/services/connect/pkg/models"
)

// FirebaseBackend authenticates against Firebase Authentication. Account
// administration goes through the Admin SDK; password sign-in, sign-up and
// the hosted verification/reset emails go through the Identity Toolkit API.
type FirebaseBackend struct {
	admin   *fbauth.Client
	toolkit *identitytoolkit.Service
	logger  *slog.Logger
}

// FirebaseOptions configures NewFirebase.
type FirebaseOptions struct {
	// APIKey is the project's web API key.
	APIKey string
	// EmulatorHost routes Identity Toolkit calls to the Auth emulator when set.
	EmulatorHost string
}

// NewFirebase creates a FirebaseBackend for app.
func NewFirebase(ctx context.Context, app *firebase.App, opts FirebaseOptions, logger *slog.Logger) (*FirebaseBackend, error) {
	if logger == nil {
		logger = slog.Default()
	}

	admin, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase auth client: %w", err)
	}

	clientOpts := []option.ClientOption{option.WithAPIKey(opts.APIKey)}
	if opts.EmulatorHost != "" {
		clientOpts = append(clientOpts,
			option.WithEndpoint("http://"+opts.EmulatorHost+"/www.googleapis.com/identitytoolkit/v3/relyingparty/"))
	}
	toolkit, err := identitytoolkit.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("identity toolkit client: %w", err)
	}

	return &FirebaseBackend{admin: admin, toolkit: toolkit, logger: logger}, nil
}

// Authenticate signs in with email and password.
func (b *FirebaseBackend) Authenticate(ctx context.Context, email, password string) (*models.Principal, error) {
	resp, err := b.toolkit.Relyingparty.VerifyPassword(&identitytoolkit.IdentitytoolkitRelyingpartyVerifyPasswordRequest{
		Email:             canonicalEmail(email),
		Password:          password,
		ReturnSecureToken: true,
	}).Context(ctx).Do()
	if err != nil {
		return nil, classifyToolkitError(err)
	}

	user, err := b.admin.GetUser(ctx, resp.LocalId)
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w: %w", resp.LocalId, apperr.ErrAuthUnavailable, err)
	}
	p := userPrincipal(user)
	p.IDToken = resp.IdToken
	return p, nil
}

// Register creates an unverified account.
func (b *FirebaseBackend) Register(ctx context.Context, email, password string) (*models.Principal, error) {
	resp, err := b.toolkit.Relyingparty.SignupNewUser(&identitytoolkit.IdentitytoolkitRelyingpartySignupNewUserRequest{
		Email:    canonicalEmail(email),
		Password: password,
	}).Context(ctx).Do()
	if err != nil {
		return nil, classifyToolkitError(err)
	}
	return &models.Principal{
		ID:      resp.LocalId,
		Email:   resp.Email,
		IDToken: resp.IdToken,
	}, nil
}

// CreateVerifiedPrincipal creates an account with a pre-verified email.
func (b *FirebaseBackend) CreateVerifiedPrincipal(ctx context.Context, email, password string) (*models.Principal, error) {
	params := (&fbauth.UserToCreate{}).
		Email(canonicalEmail(email)).
		Password(password).
		EmailVerified(true)

	user, err := b.admin.CreateUser(ctx, params)
	if err != nil {
		if fbauth.IsEmailAlreadyExists(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w: %w", apperr.ErrAuthUnavailable, err)
	}
	return userPrincipal(user), nil
}

// SendVerification asks Firebase to mail a verification link. Without a
// session ID token the Admin SDK can only generate the link, which is logged.
func (b *FirebaseBackend) SendVerification(ctx context.Context, p *models.Principal) error {
	if p == nil {
		return ErrNoPrincipal
	}
	if p.IDToken == "" {
		link, err := b.admin.EmailVerificationLink(ctx, p.Email)
		if err != nil {
			return fmt.Errorf("verification link: %w: %w", apperr.ErrAuthUnavailable, err)
		}
		b.logger.InfoContext(ctx, "verification link generated", "email", p.Email, "link", link)
		return nil
	}

	_, err := b.toolkit.Relyingparty.GetOobConfirmationCode(&identitytoolkit.Relyingparty{
		RequestType: "VERIFY_EMAIL",
		IdToken:     p.IDToken,
	}).Context(ctx).Do()
	if err != nil {
		return classifyToolkitError(err)
	}
	return nil
}

// SendPasswordReset asks Firebase to mail a reset link. Unknown emails succeed silently.
func (b *FirebaseBackend) SendPasswordReset(ctx context.Context, email string) error {
	_, err := b.toolkit.Relyingparty.GetOobConfirmationCode(&identitytoolkit.Relyingparty{
		RequestType: "PASSWORD_RESET",
		Email:       canonicalEmail(email),
	}).Context(ctx).Do()
	if err != nil {
		cerr := classifyToolkitError(err)
		if errors.Is(cerr, ErrInvalidCredentials) {
			return nil
		}
		return cerr
	}
	return nil
}

// GetPrincipal looks up an account by UID.
func (b *FirebaseBackend) GetPrincipal(ctx context.Context, id string) (*models.Principal, error) {
	user, err := b.admin.GetUser(ctx, id)
	if err != nil {
		if fbauth.IsUserNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user: %w: %w", apperr.ErrAuthUnavailable, err)
	}
	return userPrincipal(user), nil
}

// GetPrincipalByEmail looks up an account by email.
func (b *FirebaseBackend) GetPrincipalByEmail(ctx context.Context, email string) (*models.Principal, error) {
	user, err := b.admin.GetUserByEmail(ctx, canonicalEmail(email))
	if err != nil {
		if fbauth.IsUserNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user by email: %w: %w", apperr.ErrAuthUnavailable, err)
	}
	return userPrincipal(user), nil
}

// DeletePrincipal deletes an account. Missing accounts are not an error.
func (b *FirebaseBackend) DeletePrincipal(ctx context.Context, id string) error {
	if err := b.admin.DeleteUser(ctx, id); err != nil && !fbauth.IsUserNotFound(err) {
		return fmt.Errorf("delete user: %w: %w", apperr.ErrAuthUnavailable, err)
	}
	return nil
}

// VerifyIDToken checks a Firebase ID token minted by a client SDK sign-in.
func (b *FirebaseBackend) VerifyIDToken(ctx context.Context, idToken string) (*models.Principal, error) {
	tok, err := b.admin.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, fmt.Errorf("invalid Firebase token: %w: %w", apperr.ErrUnauthenticated, err)
	}
	p, err := b.GetPrincipal(ctx, tok.UID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperr.ErrUnauthenticated
	}
	p.IDToken = idToken
	return p, nil
}

func userPrincipal(u *fbauth.UserRecord) *models.Principal {
	return &models.Principal{
		ID:            u.UID,
		Email:         u.Email,
		EmailVerified: u.EmailVerified,
	}
}

// classifyToolkitError maps Identity Toolkit error codes onto the auth errors.
func classifyToolkitError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case toolkitCode(gerr, "EMAIL_EXISTS"):
			return ErrEmailTaken
		case toolkitCode(gerr, "INVALID_PASSWORD", "EMAIL_NOT_FOUND", "INVALID_LOGIN_CREDENTIALS", "USER_DISABLED"):
			return ErrInvalidCredentials
		}
	}
	return fmt.Errorf("identity toolkit: %w: %w", apperr.ErrAuthUnavailable, err)
}

func toolkitCode(gerr *googleapi.Error, codes ...string) bool {
	messages := []string{gerr.Message}
	for _, item := range gerr.Errors {
		messages = append(messages, item.Message, item.Reason)
	}
	for _, msg := range messages {
		for _, code := range codes {
			if strings.HasPrefix(msg, code) {
				return true
			}
		}
	}
	return false
}

var (
	_ Backend         = (*FirebaseBackend)(nil)
	_ IDTokenVerifier = (*FirebaseBackend)(nil)
)
