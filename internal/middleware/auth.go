package middleware

import (
	"context"
	"net/http"
	"strings"

	errs "okeyonline/internal/errors"
	"okeyonline/internal/httpresponse"
	"okeyonline/internal/token"
)

type contextKey string

const identityKey contextKey = "identity"

type TokenValidator interface {
	Validate(tokenStr string) (*token.Claims, error)
}

type Identity struct {
	UserID   string
	Username string
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// BearerToken returns the token of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

func Auth(tokens TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := BearerToken(r)
			if raw == "" {
				httpresponse.WriteError(w, errs.ErrUnauthorized)
				return
			}

			claims, err := tokens.Validate(raw)
			if err != nil {
				httpresponse.WriteError(w, errs.ErrInvalidToken)
				return
			}

			ctx := WithIdentity(r.Context(), Identity{UserID: claims.UserID, Username: claims.Username})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
