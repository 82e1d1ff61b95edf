package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/clueworks/huntapi/internal/hunt"
)

type ctxKey int

const (
	ctxKeyTeam ctxKey = iota
	ctxKeyStaff
)

// teamAuthMiddleware resolves the Bearer team token to a team and stores
// it on the request context.
func teamAuthMiddleware(store Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "invalid or missing team token")
				return
			}

			team, err := store.TeamFromToken(r.Context(), token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid or missing team token")
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyTeam, team)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func staffAuthMiddleware(store Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(staffCookieName)
			if err != nil || cookie.Value == "" {
				writeError(w, http.StatusUnauthorized, "not authenticated")
				return
			}

			sess, err := store.StaffFromSession(r.Context(), cookie.Value)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "not authenticated")
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyStaff, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	// SSE and websocket clients cannot set headers; accept a query token.
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	auth := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return after
	}
	return ""
}

func teamFrom(r *http.Request) hunt.Team {
	return r.Context().Value(ctxKeyTeam).(hunt.Team)
}

func staffFrom(r *http.Request) staffSession {
	return r.Context().Value(ctxKeyStaff).(staffSession)
}
