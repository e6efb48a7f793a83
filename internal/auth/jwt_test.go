package auth_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commutepulse/commutepulse/internal/auth"
)

func newService(key string) *auth.JWTService {
	return auth.NewJWTService(auth.JWTConfig{
		SigningKey: key,
		Issuer:     "commutepulse",
		Audience:   "commutepulse-api",
	})
}

func TestJWTService_GenerateAndValidateAccessToken(t *testing.T) {
	svc := newService("test-secret-key-for-testing-only")

	token, expiresAt, err := svc.GenerateAccessToken("usr_test123", 0)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, expiresAt.After(time.Now()))

	userID, err := svc.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "usr_test123", userID)

	claims, err := svc.ParseClaims(token)
	require.NoError(t, err)
	assert.Equal(t, "usr_test123", claims.Subject)
	assert.Equal(t, "commutepulse", claims.Issuer)
}

func TestJWTService_GenerateRequiresUserID(t *testing.T) {
	svc := newService("key")

	_, _, err := svc.GenerateAccessToken("", 0)
	assert.True(t, errors.Is(err, auth.ErrMissingUserID))
}

func TestJWTService_InvalidToken(t *testing.T) {
	svc := newService("test-secret-key-for-testing-only")

	tests := []struct {
		name  string
		token string
	}{
		{"empty token", ""},
		{"malformed token", "not.a.valid.jwt"},
		{"invalid base64", "xxx.yyy.zzz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ValidateAccessToken(tt.token)
			assert.True(t, errors.Is(err, auth.ErrInvalidAccessToken))
		})
	}
}

func TestJWTService_WrongSigningKey(t *testing.T) {
	token, _, err := newService("key-one").GenerateAccessToken("usr_test123", 0)
	require.NoError(t, err)

	_, err = newService("key-two").ValidateAccessToken(token)
	assert.True(t, errors.Is(err, auth.ErrInvalidAccessToken))
}

func TestJWTService_WrongAudience(t *testing.T) {
	issuer := auth.NewJWTService(auth.JWTConfig{
		SigningKey: "key",
		Issuer:     "commutepulse",
		Audience:   "other-api",
	})
	token, _, err := issuer.GenerateAccessToken("usr_test123", 0)
	require.NoError(t, err)

	_, err = newService("key").ValidateAccessToken(token)
	assert.Error(t, err)
}

func TestJWTService_Expired(t *testing.T) {
	issuer := auth.NewJWTService(auth.JWTConfig{
		SigningKey: "key",
		Issuer:     "commutepulse",
		Audience:   "commutepulse-api",
		Now:        func() time.Time { return time.Now().Add(-2 * time.Hour) },
	})
	token, _, err := issuer.GenerateAccessToken("usr_test123", time.Hour)
	require.NoError(t, err)

	_, err = newService("key").ValidateAccessToken(token)
	assert.True(t, errors.Is(err, auth.ErrAccessTokenExpired))
}

func TestJWTService_Leeway(t *testing.T) {
	base := time.Date(2024, 3, 20, 8, 0, 0, 0, time.UTC)
	issuer := auth.NewJWTService(auth.JWTConfig{
		SigningKey: "key",
		Issuer:     "commutepulse",
		Audience:   "commutepulse-api",
		Now:        func() time.Time { return base },
	})
	token, _, err := issuer.GenerateAccessToken("usr_test123", time.Minute)
	require.NoError(t, err)

	validator := func(leeway time.Duration) *auth.JWTService {
		return auth.NewJWTService(auth.JWTConfig{
			SigningKey: "key",
			Issuer:     "commutepulse",
			Audience:   "commutepulse-api",
			Leeway:     leeway,
			Now:        func() time.Time { return base.Add(90 * time.Second) },
		})
	}

	_, err = validator(0).ValidateAccessToken(token)
	assert.ErrorIs(t, err, auth.ErrAccessTokenExpired)

	userID, err := validator(time.Minute).ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "usr_test123", userID)
}

func TestJWTService_UniqueTokenIDs(t *testing.T) {
	svc := newService("key")

	a, _, err := svc.GenerateAccessToken("usr_test123", 0)
	require.NoError(t, err)
	b, _, err := svc.GenerateAccessToken("usr_test123", 0)
	require.NoError(t, err)

	ca, err := svc.ParseClaims(a)
	require.NoError(t, err)
	cb, err := svc.ParseClaims(b)
	require.NoError(t, err)
	assert.NotEqual(t, ca.ID, cb.ID)
}
