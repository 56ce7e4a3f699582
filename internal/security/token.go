package security

import (
	"crypto/subtle"
	"net/http"
)

// TokenHeader carries the shared secret between the processes.
const TokenHeader = "X-Auth-Token"

// VerifyToken compares the request's token with expected in constant time.
// An empty expected token disables the check.
func VerifyToken(r *http.Request, expected string) bool {
	if expected == "" {
		return true
	}
	got := r.Header.Get(TokenHeader)
	if got == "" {
		got = r.URL.Query().Get("token")
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(expected)) == 1
}
