// Package token issues and checks the bearer tokens API clients present
// after signing in.
package token

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const revokedPrefix = "connect:revoked:"

var (
	// ErrInvalid covers malformed, forged, expired and foreign tokens.
	ErrInvalid = errors.New("invalid token")
	// ErrRevoked is returned for tokens that were signed out.
	ErrRevoked = errors.New("token revoked")
)

// Service handles JWT generation, validation and revocation.
//
// Revocations are kept in Redis so every instance sees them. Without a
// Redis client they are kept in process memory.
type Service struct {
	signingKey []byte
	issuer     string
	ttl        time.Duration
	redis      *redis.Client
	now        func() time.Time

	mu      sync.Mutex
	revoked map[string]time.Time
}

// Claims represents JWT claims for connect tokens.
type Claims struct {
	UserID string   `json:"uid"`
	Email  string   `json:"email"`
	Roles  []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// HasRole reports whether the token carries role.
func (c *Claims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// ValidationResponse is returned by the token validation endpoint.
type ValidationResponse struct {
	Valid  bool     `json:"valid"`
	UserID string   `json:"user_id,omitempty"`
	Email  string   `json:"email,omitempty"`
	Roles  []string `json:"roles,omitempty"`
	Error  string   `json:"error,omitempty"`
}

// New creates a token service. client may be nil.
func New(signingKey, issuer string, ttl time.Duration, client *redis.Client) *Service {
	return &Service{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		ttl:        ttl,
		redis:      client,
		now:        time.Now,
		revoked:    make(map[string]time.Time),
	}
}

// GenerateSigningKey generates a secure random signing key.
func GenerateSigningKey() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate signing key: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// GenerateToken creates a signed token for userID.
func (s *Service) GenerateToken(userID, email string, roles []string) (string, *Claims, error) {
	now := s.now()
	claims := &Claims{
		UserID: userID,
		Email:  email,
		Roles:  roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    s.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return signed, claims, nil
}

// ValidateToken parses a token, checks its signature, expiry and issuer,
// and rejects revoked tokens.
func (s *Service) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.signingKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalid
	}
	if !claims.VerifyIssuer(s.issuer, true) {
		return nil, fmt.Errorf("%w: unexpected issuer %q", ErrInvalid, claims.Issuer)
	}

	revoked, err := s.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrRevoked
	}
	return claims, nil
}

// Revoke blocks the token until it would have expired anyway.
func (s *Service) Revoke(ctx context.Context, claims *Claims) error {
	if claims.ID == "" || claims.ExpiresAt == nil {
		return fmt.Errorf("token has no id or expiry")
	}
	ttl := claims.ExpiresAt.Time.Sub(s.now())
	if ttl <= 0 {
		return nil
	}

	if s.redis == nil {
		s.mu.Lock()
		s.revoked[claims.ID] = s.now().Add(ttl)
		s.mu.Unlock()
		return nil
	}
	if err := s.redis.Set(ctx, revokedPrefix+claims.ID, "1", ttl).Err(); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// IsRevoked reports whether the token id was revoked.
func (s *Service) IsRevoked(ctx context.Context, id string) (bool, error) {
	if s.redis == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		until, ok := s.revoked[id]
		if ok && !s.now().Before(until) {
			delete(s.revoked, id)
			return false, nil
		}
		return ok, nil
	}

	n, err := s.redis.Exists(ctx, revokedPrefix+id).Result()
	if err != nil {
		return false, fmt.Errorf("check revocation: %w", err)
	}
	return n > 0, nil
}
