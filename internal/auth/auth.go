// Package auth enforces bearer-token authentication on the HTTP API.
//
// Read-only body lookups and the probes stay public. Everything else,
// including every non-GET route, needs the configured token.
package auth

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

// Config holds authentication configuration.
type Config struct {
	Enabled bool
	Token   string
}

// streamPath accepts the token as ?access_token= since EventSource cannot
// send headers.
const streamPath = "/api/v1/stream/state"

var publicPaths = map[string]bool{
	"/healthz":        true,
	"/readyz":         true,
	"/metrics":        true,
	"/api/v1/time":    true,
	"/api/v1/catalog": true,
}

var publicPrefixes = []string{
	"/api/v1/planets/",
	"/api/v1/orbit/",
}

// Public reports whether a request may skip authentication.
func Public(method, path string) bool {
	if method != http.MethodGet && method != http.MethodHead {
		return false
	}
	if publicPaths[path] {
		return true
	}
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// bearerToken extracts the presented token, or "" when there is none.
func bearerToken(r *http.Request) string {
	if scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	if r.URL.Path == streamPath {
		return r.URL.Query().Get("access_token")
	}
	return ""
}

func valid(presented, want string) bool {
	return presented != "" && subtle.ConstantTimeCompare([]byte(presented), []byte(want)) == 1
}

// Middleware returns an HTTP middleware that enforces Bearer token auth
// on non-public requests when auth is enabled.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !cfg.Enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if Public(r.Method, r.URL.Path) || valid(bearerToken(r), cfg.Token) {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("WWW-Authenticate", `Bearer realm="orrery"`)
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
		})
	}
}
