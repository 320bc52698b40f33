package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

// ContextKeyClaims stores the verified access token claims
const ContextKeyClaims ContextKey = "claims"

// RequireMember validates the bearer access token and checks it was issued
// for the space in the URL.
func (s *Server) RequireMember(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
			writeMessage(w, http.StatusUnauthorized, "Missing or invalid Authorization header")
			return
		}

		claims, err := s.tokens.verify(parts[1])
		if err != nil {
			s.logger.Debug().Err(err).Msg("access token rejected")
			writeMessage(w, http.StatusUnauthorized, "Invalid or expired session token")
			return
		}
		if claims.Space != chi.URLParam(r, "slug") {
			writeMessage(w, http.StatusForbidden, "Session does not belong to this space")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ContextKeyClaims, claims)))
	})
}

func claimsFrom(ctx context.Context) *memberClaims {
	claims, _ := ctx.Value(ContextKeyClaims).(*memberClaims)
	return claims
}
