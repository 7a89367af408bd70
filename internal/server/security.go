// security.go - response headers applied to every route.
package server

import "net/http"

// uploadedContentCSP stops served files from running script or loading
// anything in the service's origin.
const uploadedContentCSP = "sandbox; default-src 'none'"

// securityHeadersMiddleware adds security headers to all responses
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()

		// Prevent clickjacking
		h.Set("X-Frame-Options", "DENY")

		// Prevent MIME sniffing
		h.Set("X-Content-Type-Options", "nosniff")

		// Referrer Policy - don't leak URLs
		h.Set("Referrer-Policy", "no-referrer")

		h.Set("Content-Security-Policy", uploadedContentCSP)

		// Permissions Policy - disable unused browser features
		h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=()")

		next.ServeHTTP(w, r)
	})
}
