package middleware

import (
	"net/http"
	"sync/atomic"
)

// Counters are the request metrics served on /metrics.
type Counters struct {
	Requests     atomic.Int64
	ClientErrors atomic.Int64
	ServerErrors atomic.Int64
	InFlight     atomic.Int64
}

// Snapshot returns the current values keyed for JSON output.
func (c *Counters) Snapshot() map[string]int64 {
	return map[string]int64{
		"request_count":      c.Requests.Load(),
		"client_error_count": c.ClientErrors.Load(),
		"server_error_count": c.ServerErrors.Load(),
		"in_flight":          c.InFlight.Load(),
	}
}

// Metrics counts requests by outcome.
func Metrics(c *Counters) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c.Requests.Add(1)
			c.InFlight.Add(1)
			defer c.InFlight.Add(-1)

			// Wrap response writer to capture status
			rw := newResponseWriter(w)
			next.ServeHTTP(rw, r)

			// Count errors (4xx and 5xx)
			switch {
			case rw.statusCode >= 500:
				c.ServerErrors.Add(1)
			case rw.statusCode >= 400:
				c.ClientErrors.Add(1)
			}
		})
	}
}
