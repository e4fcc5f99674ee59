package middlewares

import (
	"net/http"
)

// NoStore marks responses as uncacheable. Counts and feeds change with every write.
func NoStore(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		handler.ServeHTTP(w, r)
	})
}
