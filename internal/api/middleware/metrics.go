package middleware

import (
	"net/http"
	"sync/atomic"
)

// MetricsCollector counts requests by outcome.
type MetricsCollector struct {
	requests     atomic.Int64
	clientErrors atomic.Int64
	serverErrors atomic.Int64
	upgrades     atomic.Int64
}

func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{}
}

// Middleware returns middleware that counts requests and errors.
func (mc *MetricsCollector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mc.requests.Add(1)

		rw := newResponseWriter(w)
		next.ServeHTTP(rw, r)

		switch {
		case rw.statusCode == http.StatusSwitchingProtocols:
			mc.upgrades.Add(1)
		case rw.statusCode >= 500:
			mc.serverErrors.Add(1)
		case rw.statusCode >= 400:
			mc.clientErrors.Add(1)
		}
	})
}

type MetricsSnapshot struct {
	Requests     int64 `json:"request_count"`
	Errors       int64 `json:"error_count"`
	ClientErrors int64 `json:"client_error_count"`
	ServerErrors int64 `json:"server_error_count"`
	Streams      int64 `json:"stream_count"`
}

func (mc *MetricsCollector) Snapshot() MetricsSnapshot {
	c, s := mc.clientErrors.Load(), mc.serverErrors.Load()
	return MetricsSnapshot{
		Requests:     mc.requests.Load(),
		Errors:       c + s,
		ClientErrors: c,
		ServerErrors: s,
		Streams:      mc.upgrades.Load(),
	}
}
