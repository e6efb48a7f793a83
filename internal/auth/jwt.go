// Package auth validates bearer access tokens for the API.
//
// Tokens are HS256 JWTs issued by the account service that owns sign-in. This
// package only verifies them and, for operators and tests, mints short-lived ones.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessTokenExpiry is how long minted access tokens are valid.
const AccessTokenExpiry = time.Hour

// Token validation errors.
var (
	ErrInvalidAccessToken = errors.New("invalid access token")
	ErrAccessTokenExpired = errors.New("access token has expired")
	ErrMissingUserID      = errors.New("access token has no user id")
)

// JWTClaims are the registered claims of an access token. The subject is the user ID.
type JWTClaims = jwt.RegisteredClaims

// JWTConfig holds configuration for the JWT service.
type JWTConfig struct {
	// SigningKey is the shared HS256 secret.
	SigningKey string

	// Issuer and Audience are stamped on minted tokens and required on validated ones.
	Issuer   string
	Audience string

	// Leeway tolerates clock skew with the issuing service on exp and nbf.
	Leeway time.Duration

	// Now overrides the clock for minting and validation.
	Now func() time.Time
}

// JWTService mints and validates HS256 access tokens.
type JWTService struct {
	key    []byte
	cfg    JWTConfig
	parser *jwt.Parser
}

// NewJWTService creates a new JWT service.
func NewJWTService(cfg JWTConfig) *JWTService {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &JWTService{
		key: []byte(cfg.SigningKey),
		cfg: cfg,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(cfg.Issuer),
			jwt.WithAudience(cfg.Audience),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(cfg.Leeway),
			jwt.WithTimeFunc(cfg.Now),
		),
	}
}

// GenerateAccessToken mints an access token for userID valid for ttl
// (AccessTokenExpiry when ttl is zero).
func (s *JWTService) GenerateAccessToken(userID string, ttl time.Duration) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, ErrMissingUserID
	}
	if ttl <= 0 {
		ttl = AccessTokenExpiry
	}

	now := s.cfg.Now()
	expiresAt := now.Add(ttl)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, JWTClaims{
		ID:        uuid.NewString(),
		Issuer:    s.cfg.Issuer,
		Subject:   userID,
		Audience:  jwt.ClaimStrings{s.cfg.Audience},
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}).SignedString(s.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing access token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateAccessToken verifies token and returns its subject.
func (s *JWTService) ValidateAccessToken(token string) (string, error) {
	claims, err := s.ParseClaims(token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// ParseClaims verifies signature, issuer, audience and expiry and returns the claims.
func (s *JWTService) ParseClaims(token string) (*JWTClaims, error) {
	var claims JWTClaims
	_, err := s.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.key, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrAccessTokenExpired
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrInvalidAccessToken, err)
	case claims.Subject == "":
		return nil, ErrMissingUserID
	}
	return &claims, nil
}
