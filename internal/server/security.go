// security.go - Security response headers
package server

import "net/http"

// contentSecurityPolicy fits the listing page: no scripts, inline styles
// only, no framing.
const contentSecurityPolicy = "default-src 'none'; " +
	"style-src 'unsafe-inline'; " +
	"img-src 'self' data:; " +
	"frame-ancestors 'none'; " +
	"base-uri 'none'; " +
	"form-action 'none'"

// securityHeadersMiddleware adds security headers to all responses
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()

		// Prevent clickjacking
		h.Set("X-Frame-Options", "DENY")

		// Stored payloads are served verbatim; never let a browser
		// reinterpret them.
		h.Set("X-Content-Type-Options", "nosniff")

		// Referrer Policy - don't leak URLs
		h.Set("Referrer-Policy", "no-referrer")

		h.Set("Content-Security-Policy", contentSecurityPolicy)

		// Permissions Policy - disable unused browser features
		h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=()")

		next.ServeHTTP(w, r)
	})
}
