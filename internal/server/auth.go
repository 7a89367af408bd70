package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"r2-share/internal/config"
	"r2-share/internal/logging"
)

// Authorize reports whether h carries Basic credentials matching creds.
// Both halves are compared in constant time over their SHA-256 digests,
// so neither length nor prefix leaks through timing.
func Authorize(h http.Header, creds config.Auth) bool {
	scheme, encoded, ok := strings.Cut(h.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Basic") {
		return false
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return false
	}
	user, pass, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return false
	}

	userHash := sha256.Sum256([]byte(user))
	wantUserHash := sha256.Sum256([]byte(creds.Username))
	passHash := sha256.Sum256([]byte(pass))
	wantPassHash := sha256.Sum256([]byte(creds.Password))

	// Evaluate both before combining.
	uOK := hmac.Equal(userHash[:], wantUserHash[:])
	pOK := hmac.Equal(passHash[:], wantPassHash[:])
	return uOK && pOK
}

func challenge(realm string) string {
	realm = strings.ReplaceAll(realm, `\`, `\\`)
	realm = strings.ReplaceAll(realm, `"`, `\"`)
	return fmt.Sprintf(`Basic realm="%s", charset="UTF-8"`, realm)
}

// requireBasicAuth gates next behind the configured credentials. It is a
// pass-through when auth is not configured.
func (s *Server) requireBasicAuth(next http.Handler) http.Handler {
	if !s.auth.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !Authorize(r.Header, s.auth) {
			s.metrics.RecordAuthFailure()
			logging.Info("auth_rejected", logging.Fields{
				"rid":    RequestIDFromContext(r.Context()),
				"method": r.Method,
				"path":   r.URL.Path,
			})
			w.Header().Set("WWW-Authenticate", challenge(s.auth.Realm))
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
