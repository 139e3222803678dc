package daemon

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// webhookSecretHeader is set by Telegram on every webhook delivery when a
// secret_token was registered with setWebhook.
const webhookSecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// authMiddleware returns a middleware that validates bearer tokens.
// If token is empty, no authentication is required and all requests pass through.
// Otherwise, requests must include "Authorization: Bearer <token>" header.
func authMiddleware(token string, next http.HandlerFunc) http.HandlerFunc {
	if token == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		if !secretEqual(strings.TrimPrefix(auth, "Bearer "), token) {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// webhookSecretMiddleware rejects webhook deliveries that do not carry the
// configured secret. An empty secret disables the check.
func webhookSecretMiddleware(secret string, next http.HandlerFunc) http.HandlerFunc {
	if secret == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if !secretEqual(r.Header.Get(webhookSecretHeader), secret) {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func secretEqual(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
