package middleware

import (
	"net/http"
	"time"

	"github.com/angelmondragon/stocktake-backend/pkg/metrics"
)

// Metrics records request latency labelled by the matched chi route so that
// path parameters do not explode label cardinality.
func Metrics(m *metrics.WorkflowMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w}
			start := time.Now()
			next.ServeHTTP(rec, r)
			m.ObserveRequest(r.Method, routePattern(r), rec.Status(), time.Since(start))
		})
	}
}
