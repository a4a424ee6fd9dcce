package auth

import (
	"errors"

	"github.com/ruet-connect/connect/services/connect/internal/apperr"
)

var (
	ErrInvalidCredentials = apperr.ErrInvalidCredentials
	ErrEmailTaken         = apperr.ErrEmailTaken
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrNoPrincipal        = errors.New("no signed-in principal")
)
