// Package metrics provides Prometheus instrumentation for the coordinator.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hmsc",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hmsc",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// SessionsCreatedTotal counts signing sessions created.
	SessionsCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hmsc",
		Name:      "sessions_created_total",
		Help:      "Total signing sessions created.",
	})

	// SessionsClosedTotal counts sessions reaching a terminal state, by outcome.
	SessionsClosedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hmsc",
			Name:      "sessions_closed_total",
			Help:      "Total sessions closed by outcome (completed, expired, cancelled).",
		},
		[]string{"outcome"},
	)

	// SignaturesSubmittedTotal counts signature submissions by result.
	SignaturesSubmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hmsc",
			Name:      "signatures_submitted_total",
			Help:      "Total signature submissions by result (accepted, duplicate, rejected).",
		},
		[]string{"result"},
	)

	// TransactionsDecodedTotal counts decode attempts by result.
	TransactionsDecodedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hmsc",
			Name:      "transactions_decoded_total",
			Help:      "Total frozen transaction decode attempts by result (ok, opaque, fail).",
		},
		[]string{"result"},
	)

	// ExecutionAttemptsTotal counts network submission attempts by result.
	ExecutionAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hmsc",
			Name:      "execution_attempts_total",
			Help:      "Total transaction execution attempts by result.",
		},
		[]string{"result"},
	)

	// WSMessagesTotal counts WebSocket frames by direction and message type.
	WSMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hmsc",
			Name:      "ws_messages_total",
			Help:      "Total WebSocket frames by direction (in, out) and message type.",
		},
		[]string{"direction", "type"},
	)

	// WSConnectionsTotal counts WebSocket connections accepted since start.
	WSConnectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hmsc",
		Name:      "ws_connections_total",
		Help:      "Total WebSocket connections accepted.",
	})

	// BroadcastFramesTotal counts frames fanned out to session participants.
	BroadcastFramesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hmsc",
		Name:      "broadcast_frames_total",
		Help:      "Total frames enqueued by session broadcasts.",
	})

	// FramesDroppedTotal counts frames dropped on slow consumers.
	FramesDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hmsc",
		Name:      "frames_dropped_total",
		Help:      "Total frames dropped because a client send queue was full.",
	})

	// ActiveSessions tracks currently live signing sessions.
	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "hmsc",
		Name:      "active_sessions",
		Help:      "Number of currently live signing sessions.",
	})

	// ActiveConnections tracks connected WebSocket clients.
	ActiveConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "hmsc",
		Name:      "active_connections",
		Help:      "Number of currently connected WebSocket clients.",
	})

	// ActiveTimers tracks scheduled timers by kind.
	ActiveTimers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "hmsc",
			Name:      "active_timers",
			Help:      "Number of scheduled timers by kind (once, interval).",
		},
		[]string{"kind"},
	)

	// TimerFiresTotal counts timer callbacks run, by kind.
	TimerFiresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hmsc",
			Name:      "timer_fires_total",
			Help:      "Total timer callbacks fired by kind (once, interval).",
		},
		[]string{"kind"},
	)

	// SessionDuration observes the lifetime of completed sessions.
	SessionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "hmsc",
		Name:      "session_duration_seconds",
		Help:      "Time from session creation to terminal state in seconds.",
		Buckets:   []float64{10, 30, 60, 120, 300, 600, 1800, 3600},
	})

	// ExecutionDuration observes end-to-end execution latency including retries.
	ExecutionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "hmsc",
		Name:      "execution_duration_seconds",
		Help:      "Time from threshold met to execution outcome in seconds.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	// DBOpenConnections tracks open journal database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "hmsc", Name: "db_open_connections",
		Help: "Number of open journal database connections.",
	})
	// DBIdleConnections tracks idle journal database connections.
	DBIdleConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "hmsc", Name: "db_idle_connections",
		Help: "Number of idle journal database connections.",
	})
	// DBInUseConnections tracks in-use journal database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "hmsc", Name: "db_in_use_connections",
		Help: "Number of in-use journal database connections.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "hmsc", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		SessionsCreatedTotal,
		SessionsClosedTotal,
		SignaturesSubmittedTotal,
		TransactionsDecodedTotal,
		ExecutionAttemptsTotal,
		WSMessagesTotal,
		WSConnectionsTotal,
		BroadcastFramesTotal,
		FramesDroppedTotal,
		ActiveSessions,
		ActiveConnections,
		ActiveTimers,
		TimerFiresTotal,
		SessionDuration,
		ExecutionDuration,
		DBOpenConnections,
		DBIdleConnections,
		DBInUseConnections,
		GoroutineCount,
	)
}

// StartDBStatsCollector periodically samples sql.DBStats and runtime goroutine
// count into Prometheus gauges. Call in a goroutine; exits when ctx is done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBIdleConnections.Set(float64(stats.Idle))
			DBInUseConnections.Set(float64(stats.InUse))
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
