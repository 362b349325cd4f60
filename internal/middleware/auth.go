package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"
)

// publicPaths are exempt from authentication.
var publicPaths = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// Auth returns middleware that requires one of keys in the X-API-Key header
// or as an "Authorization: Bearer" token. When enabled is false requests pass
// through unchecked. An empty key list refuses every guarded request.
func Auth(keys []string, enabled bool) func(http.Handler) http.Handler {
	digests := make([][sha256.Size]byte, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			digests = append(digests, sha256.Sum256([]byte(k)))
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enabled || publicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			presented := r.Header.Get("X-API-Key")
			if presented == "" {
				authHeader := r.Header.Get("Authorization")
				if authHeader == "" {
					writeAuthError(w, "authorization required")
					return
				}
				token := strings.TrimPrefix(authHeader, "Bearer ")
				if token == authHeader {
					writeAuthError(w, "invalid authorization header")
					return
				}
				presented = token
			}

			if !validKey(digests, presented) {
				writeAuthError(w, "invalid api key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func validKey(digests [][sha256.Size]byte, presented string) bool {
	got := sha256.Sum256([]byte(presented))
	ok := 0
	for i := range digests {
		ok |= subtle.ConstantTimeCompare(got[:], digests[i][:])
	}
	return ok == 1
}

func writeAuthError(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
