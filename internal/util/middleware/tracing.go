// Package middleware holds gorilla/mux middleware shared by the report
// httpd admin surface.
package middleware

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/api/key"
	"go.opentelemetry.io/otel/api/trace"

	"github.com/edgeproxy/edgeproxy/internal/util/tracing"
)

// Trace wraps the report httpd's routes with a root span per request,
// named after the matched route.
func Trace(serviceName string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			spanName := r.URL.Path
			if route := mux.CurrentRoute(r); route != nil {
				if name := route.GetName(); name != "" {
					spanName = name
				}
			}

			r, span := tracing.PrepareRequest(r, serviceName, spanName)
			defer func() {
				span.End(trace.WithEndTime(time.Now()))
			}()
			span.AddEventWithTimestamp(
				r.Context(),
				time.Now(),
				"admin request",
				key.String("path", r.URL.Path),
				key.String("method", r.Method),
			)

			next.ServeHTTP(w, r)
		})
	}
}
