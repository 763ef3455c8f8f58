package middleware

import (
	"net/http"
	"strings"
)

// HTTPSRedirect sends plain http calls forwarded by an AWS load balancer to
// their https equivalent. Calls without X-Forwarded-Proto (health checks made
// by the balancer itself) go through untouched.
func HTTPSRedirect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "http") {
			next.ServeHTTP(w, r)
			return
		}

		target := "https://" + r.Host + r.URL.RequestURI()
		GetLoggerFromContext(r.Context()).Debug("Redirecting to https", "url", target)
		http.Redirect(w, r, target, http.StatusMovedPermanently)
	})
}
