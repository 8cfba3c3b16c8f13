package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/legacore/legacore/control-plane/internal/metrics"
)

// Metrics counts requests by method, chi route pattern and status code.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := newResponseWriter(w)
		next.ServeHTTP(rw, r)

		route := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}
		metrics.RecordHTTPRequest(r.Method, route, rw.statusCode)
	})
}
