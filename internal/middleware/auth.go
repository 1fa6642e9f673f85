package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dukerupert/chorekeeper/internal/auth"
	"github.com/dukerupert/chorekeeper/internal/model"
)

// TokenParser verifies a bearer token.
type TokenParser interface {
	Parse(token string) (auth.AuthContext, error)
}

// UserLookup resolves the user a token names.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
}

// RequireActor validates the bearer token and populates AuthContext. Browsers
// cannot set headers on a websocket upgrade, so the token may also arrive as
// the access_token query parameter.
func RequireActor(tokens TokenParser, users UserLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				unauthorized(w, "missing bearer token")
				return
			}

			ac, err := tokens.Parse(raw)
			if err != nil {
				unauthorized(w, "invalid token")
				return
			}

			u, err := users.GetByID(r.Context(), ac.UserID)
			if err != nil || u == nil {
				unauthorized(w, "unknown user")
				return
			}

			ctx := auth.WithAuth(r.Context(), ac)
			noteActor(ctx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin checks that the token carries the host admin claim.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.IsAdmin(r.Context()) {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("access_token")
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="chorekeeper"`)
	writeError(w, http.StatusUnauthorized, msg)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
