package daemon

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// authMiddleware gates a handler behind "Authorization: Bearer <token>". An
// empty configured token disables authentication. The comparison is constant
// time so the token cannot be recovered byte by byte.
func authMiddleware(token string, next http.HandlerFunc) http.HandlerFunc {
	if token == "" {
		return next
	}
	want := []byte(token)
	return func(w http.ResponseWriter, r *http.Request) {
		presented, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(presented), want) != 1 {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}
