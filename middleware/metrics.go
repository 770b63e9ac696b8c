package middleware

import (
	"blogapp/metrics"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

const unmatchedRoute = "unmatched"

// NewMetricsMiddleware records each request under its route template so that
// post ids do not blow up label cardinality. Installed with mux.Router.Use it
// sees matched routes; wrapping the router's NotFoundHandler and
// MethodNotAllowedHandler records the rest as "unmatched".
func NewMetricsMiddleware(recorder metrics.RequestRecorder) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := recorderFor(w)

			next.ServeHTTP(rec, r)

			route := unmatchedRoute
			if current := mux.CurrentRoute(r); current != nil {
				if tmpl, err := current.GetPathTemplate(); err == nil {
					route = tmpl
				}
			}
			recorder.RecordRequest(r.Method, route, rec.statusCode, time.Since(start))
		})
	}
}
