/**
 * @description
 * This file contains custom middleware for the HTTP router. The service sits
 * behind internal callers only, so request authentication is a shared-secret
 * header check rather than end-user tokens.
 *
 * @dependencies
 * - crypto/subtle, net/http: Standard Go libraries.
 */

package api

import (
	"crypto/subtle"
	"net/http"
)

// InternalAuthMiddleware validates the shared-secret header carried by
// internal callers. The comparison is constant-time.
func InternalAuthMiddleware(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := r.Header.Get("X-Internal-Api-Key")
			if provided == "" {
				http.Error(w, "X-Internal-Api-Key header required", http.StatusUnauthorized)
				return
			}
			if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
				http.Error(w, "Invalid API key", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
