package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/hershield/hershield/internal/api/models"
	"github.com/hershield/hershield/internal/auth"
)

// UserIDHeader carries the caller identity when bearer authentication is disabled.
const UserIDHeader = "X-User-Id"

// AnonymousUserID is the identity of unauthenticated development requests.
const AnonymousUserID = "anonymous"

// userIDKey is the context key for the authenticated user ID.
type userIDKey struct{}

// Auth requires a valid bearer token and puts its subject on the context.
func Auth(verifier auth.TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, problem := bearerToken(r.Header.Get("Authorization"))
			if problem != "" {
				writeUnauthorized(w, r, problem)
				return
			}

			userID, err := verifier.VerifyToken(token)
			switch {
			case err == nil:
				next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
			case errors.Is(err, auth.ErrTokenExpired):
				writeUnauthorized(w, r, "access token has expired")
			case errors.Is(err, auth.ErrInvalidToken):
				writeUnauthorized(w, r, "invalid access token")
			default:
				writeUnauthorized(w, r, "authentication failed")
			}
		})
	}
}

// bearerToken extracts the token from an Authorization header. The scheme
// is matched case-insensitively. A non-empty second result explains why
// the header was rejected.
func bearerToken(header string) (string, string) {
	const scheme = "Bearer "
	switch {
	case header == "":
		return "", "missing authorization header"
	case len(header) < len(scheme) || !strings.EqualFold(header[:len(scheme)], scheme):
		return "", "invalid authorization header format"
	case header[len(scheme):] == "":
		return "", "missing bearer token"
	}
	return header[len(scheme):], ""
}

// HeaderIdentity trusts the X-User-Id header and falls back to AnonymousUserID.
// It is only mounted when no JWT signing key is configured.
func HeaderIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(UserIDHeader))
		if userID == "" {
			userID = AnonymousUserID
		}
		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

// writeUnauthorized answers 401 with a problem body.
func writeUnauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="hershield"`)
	models.NewUnauthorized(GetRequestID(r.Context()), detail).WithInstance(r.URL.Path).Write(w)
}

// WithUserID returns a copy of ctx carrying userID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// GetUserID returns the identity on ctx, or "" before identity middleware ran.
func GetUserID(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey{}).(string); ok {
		return id
	}
	return ""
}
