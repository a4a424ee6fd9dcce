// Package apperr defines the error taxonomy shared by every component and
// its mapping onto HTTP status codes.
package apperr

import (
	"errors"
	"net/http"

	"github.com/ruet-connect/connect/services/connect/pkg/identity"
)

var (
	ErrUnauthenticated     = errors.New("unauthenticated")
	ErrUnverifiedIdentity  = errors.New("email address not verified")
	ErrPermissionDenied    = errors.New("permission denied")
	ErrSelfClaimNotAllowed = errors.New("cannot request your own item")
	ErrNotOwner            = errors.New("only the item owner can resolve this request")
	ErrAlreadyResolved     = errors.New("request already resolved")
	ErrMalformedEmail      = identity.ErrMalformedEmail
	ErrNotFound            = errors.New("not found")
	ErrValidation          = errors.New("validation failed")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrEmailTaken          = errors.New("an account with this email already exists")

	// ErrPartialDeletion means the auth principal is gone but the profile
	// could not be removed. The caller must re-authenticate and retry.
	ErrPartialDeletion = errors.New("account partially deleted")

	ErrProfileStoreUnavailable = errors.New("profile store unavailable")
	ErrItemStoreUnavailable    = errors.New("item store unavailable")
	ErrRequestStoreUnavailable = errors.New("request store unavailable")
	ErrAuthUnavailable         = errors.New("auth provider unavailable")
)

// HTTPStatus maps an error onto the status code the API answers with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnauthenticated), errors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, ErrUnverifiedIdentity),
		errors.Is(err, ErrPermissionDenied),
		errors.Is(err, ErrNotOwner),
		errors.Is(err, ErrSelfClaimNotAllowed):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyResolved), errors.Is(err, ErrEmailTaken):
		return http.StatusConflict
	case errors.Is(err, ErrValidation), errors.Is(err, ErrMalformedEmail):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrProfileStoreUnavailable),
		errors.Is(err, ErrItemStoreUnavailable),
		errors.Is(err, ErrRequestStoreUnavailable),
		errors.Is(err, ErrAuthUnavailable),
		errors.Is(err, ErrPartialDeletion):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether the operation may succeed if repeated unchanged.
func Retryable(err error) bool {
	return HTTPStatus(err) == http.StatusServiceUnavailable
}
