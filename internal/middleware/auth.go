package middleware

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"waenhancer/internal/errors"
	"waenhancer/internal/httputil"
	"waenhancer/internal/security"
)

// RequireToken rejects requests whose X-Auth-Token does not match token. An empty
// token disables the check.
func RequireToken(token string, logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !security.VerifyToken(r, token) {
				logger.WithFields(logrus.Fields{
					"remote_ip": httputil.GetClientIP(r, false),
					"path":      r.URL.Path,
				}).Warn("Rejected request with invalid auth token")
				err := errors.NewAuthError("invalid or missing auth token")
				_ = httputil.WriteJSON(w, errors.HTTPStatusCode(err), errors.ToResponse(err))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
