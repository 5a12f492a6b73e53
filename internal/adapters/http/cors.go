package http //nolint:revive // package name conflicts with stdlib but is acceptable in this context

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/mux"
)

// corsMiddleware answers browsers calling the API from a dashboard origin.
// Preflight requests are answered here and never reach the handlers.
func corsMiddleware(allowed []string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && originAllowed(origin, allowed) {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Accept, Content-Type, Authorization")
				h.Set("Access-Control-Expose-Headers", "Retry-After")
				h.Set("Access-Control-Max-Age", "86400")
				h.Add("Vary", "Origin")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// originAllowed matches origin against exact origins and "*.domain" patterns.
// A wildcard matches subdomains only, never the bare domain.
func originAllowed(origin string, patterns []string) bool {
	host := originHost(origin)
	for _, p := range patterns {
		if p == origin {
			return true
		}
		if suffix, ok := strings.CutPrefix(p, "*"); ok && strings.HasPrefix(suffix, ".") {
			if strings.HasSuffix(host, suffix) && len(host) > len(suffix) {
				return true
			}
		}
	}
	return false
}

// originHost returns the hostname of an origin such as
// "https://app.example.com:8443".
func originHost(origin string) string {
	if u, err := url.Parse(origin); err == nil && u.Host != "" {
		return u.Hostname()
	}
	host, _, _ := strings.Cut(origin, "/")
	host, _, _ = strings.Cut(host, ":")
	return host
}
