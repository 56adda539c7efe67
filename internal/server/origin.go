// Package server enforces the Origin allow-list that gates WebSocket
// upgrades.
package server

import (
	"log"
	"net/http"
	"net/url"
	"strings"
)

// compileOriginList canonicalizes the configured origins and reports whether
// a "*" wildcard was present. Blank entries are skipped and malformed ones
// are dropped with a log line so a typo in ALLOWED_ORIGINS never silently
// widens or narrows access.
func compileOriginList(origins []string) ([]string, bool) {
	var compiled []string
	wildcard := false

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		switch {
		case trimmed == "":
		case trimmed == "*":
			wildcard = true
		default:
			canonical, ok := canonicalOrigin(trimmed)
			if !ok {
				log.Printf("Dropping malformed origin %q from allow-list", origin)
				continue
			}
			compiled = append(compiled, canonical)
		}
	}

	return compiled, wildcard
}

// canonicalOrigin reduces an origin to its lowercase scheme://host form so
// configured and presented values compare consistently.
func canonicalOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

// checkOrigin is the upgrader's origin gate. Requests with a missing,
// malformed, or unlisted Origin header are rejected unless the allow-list
// carries the wildcard.
func checkOrigin(r *http.Request) bool {
	header := r.Header.Get("Origin")

	if canonical, ok := canonicalOrigin(header); ok {
		configMu.RLock()
		allowed := allowAllOrigins
		if !allowed {
			_, allowed = allowedOrigins[canonical]
		}
		configMu.RUnlock()

		if allowed {
			return true
		}
	}

	log.Printf("Rejected WebSocket upgrade from origin %q", header)
	return false
}
