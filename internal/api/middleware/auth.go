package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/commutepulse/commutepulse/internal/auth"
)

type userIDKey struct{}

// TokenValidator resolves a bearer token to a user ID.
type TokenValidator interface {
	ValidateAccessToken(token string) (string, error)
}

// Auth rejects requests without a valid bearer access token with 401 and
// stores the token's user ID in the request context.
func Auth(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, detail := bearerToken(r.Header.Get("Authorization"))
			if detail != "" {
				writeProblem(w, r, http.StatusUnauthorized, detail)
				return
			}

			userID, err := validator.ValidateAccessToken(token)
			if err != nil {
				writeProblem(w, r, http.StatusUnauthorized, tokenErrorDetail(err))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// bearerToken extracts the token from an Authorization header. The scheme is
// matched case-insensitively. A non-empty detail describes why it failed.
func bearerToken(header string) (token, detail string) {
	if header == "" {
		return "", "missing authorization header"
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", "invalid authorization header format"
	}
	if token = strings.TrimSpace(token); token == "" {
		return "", "missing bearer token"
	}
	return token, ""
}

func tokenErrorDetail(err error) string {
	switch {
	case errors.Is(err, auth.ErrAccessTokenExpired):
		return "access token has expired"
	case errors.Is(err, auth.ErrInvalidAccessToken), errors.Is(err, auth.ErrMissingUserID):
		return "invalid access token"
	default:
		return "authentication failed"
	}
}

// WithUserID returns ctx carrying an authenticated user ID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// GetUserID returns the authenticated user ID, or "" on unauthenticated requests.
func GetUserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey{}).(string)
	return id
}
