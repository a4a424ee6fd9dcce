package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	storeErr := errors.New("dial tcp: connection refused")

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"unauthenticated", ErrUnauthenticated, http.StatusUnauthorized},
		{"bad credentials", ErrInvalidCredentials, http.StatusUnauthorized},
		{"unverified", ErrUnverifiedIdentity, http.StatusForbidden},
		{"permission", fmt.Errorf("delete item x: %w", ErrPermissionDenied), http.StatusForbidden},
		{"not owner", ErrNotOwner, http.StatusForbidden},
		{"self claim", ErrSelfClaimNotAllowed, http.StatusForbidden},
		{"not found", ErrNotFound, http.StatusNotFound},
		{"already resolved", ErrAlreadyResolved, http.StatusConflict},
		{"email taken", ErrEmailTaken, http.StatusConflict},
		{"validation", ErrValidation, http.StatusUnprocessableEntity},
		{"malformed email", ErrMalformedEmail, http.StatusUnprocessableEntity},
		{"store wrapped", fmt.Errorf("get profile: %w: %w", ErrProfileStoreUnavailable, storeErr), http.StatusServiceUnavailable},
		{"partial deletion", ErrPartialDeletion, http.StatusServiceUnavailable},
		{"unknown", storeErr, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(fmt.Errorf("%w: timeout", ErrRequestStoreUnavailable)))
	assert.False(t, Retryable(ErrAlreadyResolved))
	assert.False(t, Retryable(nil))
}
