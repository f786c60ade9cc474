package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
)

// TokenHeader carries the shared secret on every authenticated request.
const TokenHeader = "X-Auth-Token"

// Authenticate gates requests on a static shared-secret header. Anything
// without the exact configured token gets a 401 with a JSON error body.
func Authenticate(authToken string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get(TokenHeader)
			if token == "" {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing auth token"})
				return
			}
			if subtle.ConstantTimeCompare([]byte(token), []byte(authToken)) != 1 {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid auth token"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
