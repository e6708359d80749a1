package server

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// TokenVerifier resolves a bearer token to the user it was issued to.
type TokenVerifier interface {
	Verify(token string) (userID string, ok bool)
}

// StaticTokens maps API tokens to user IDs.
type StaticTokens map[string]string

func (t StaticTokens) Verify(token string) (string, bool) {
	if token == "" {
		return "", false
	}
	for candidate, userID := range t {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(token)) == 1 {
			return userID, true
		}
	}
	return "", false
}

type userHandler func(w http.ResponseWriter, r *http.Request, userID string)

func (s *Server) authenticated(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !found {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		userID, ok := s.tokens.Verify(strings.TrimSpace(token))
		if !ok {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next(w, r, userID)
	})
}
