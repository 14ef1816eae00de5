package server

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// requireToken rejects requests whose bearer token is not the shared
// credential.
func (s *Server) requireToken(next http.Handler) http.Handler {
	want := []byte(s.cfg.Token)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := []byte(bearer(r.Header.Get("Authorization")))
		if len(got) == 0 || subtle.ConstantTimeCompare(got, want) != 1 {
			w.Header().Set("WWW-Authenticate", `Bearer realm="board"`)
			writeJSON(w, http.StatusUnauthorized, messageBody{msgUnauthorized})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearer(header string) string {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
