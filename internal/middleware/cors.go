// Package middleware provides HTTP middleware for the coach API.
package middleware

import (
	"net/http"
	"strings"

	"github.com/fretcoach/coach-server/internal/identity"
)

var allowedHeaders = strings.Join([]string{
	"Content-Type",
	"Authorization",
	identity.UserHeaderName,
	identity.ThreadHeaderName,
}, ", ")

// CORS returns middleware that handles CORS headers for the dashboard origins.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			w.Header().Add("Vary", "Origin")

			wildcard, explicit := false, false
			for _, o := range allowedOrigins {
				if o == "*" {
					wildcard = true
				} else if origin != "" && o == origin {
					explicit = true
					break
				}
			}

			if origin != "" && (explicit || wildcard) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", allowedHeaders)
				// Only allow credentials for explicit origins, not wildcard matches.
				if explicit {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
