package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	commandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "xbdm",
			Subsystem: "command",
			Name:      "total",
			Help:      "Commands executed against the monitor.",
		},
		[]string{"verb", "status", "success"},
	)
	commandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "xbdm",
			Subsystem: "command",
			Name:      "duration_seconds",
			Help:      "Command round-trip duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"verb", "status", "success"},
	)
	transportBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "xbdm",
			Subsystem: "transport",
			Name:      "bytes_total",
			Help:      "Bytes moved over console connections.",
		},
		[]string{"direction"},
	)
	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "xbdm",
			Subsystem: "notify",
			Name:      "frames_total",
			Help:      "Notification frames dispatched to subscribers.",
		},
		[]string{"status"},
	)
	notifyDrops = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "xbdm",
			Subsystem: "notify",
			Name:      "drops_total",
			Help:      "Notifications lost to full subscriber buffers.",
		},
	)
	notifyResyncs = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "xbdm",
			Subsystem: "notify",
			Name:      "resyncs_total",
			Help:      "Malformed notification frames skipped over.",
		},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "xbdm",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"app", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "xbdm",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"app", "method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			commandsTotal, commandDuration, transportBytes,
			notificationsTotal, notifyDrops, notifyResyncs,
			httpRequests, httpDuration,
		)
	})
}

func RecordCommand(verb string, status int, duration time.Duration, success bool) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	successLabel := strconv.FormatBool(success)
	commandsTotal.WithLabelValues(verb, statusLabel, successLabel).Inc()
	commandDuration.WithLabelValues(verb, statusLabel, successLabel).Observe(duration.Seconds())
}

func RecordBytesSent(n int) {
	RegisterMetrics()
	if n > 0 {
		transportBytes.WithLabelValues("sent").Add(float64(n))
	}
}

func RecordBytesReceived(n int) {
	RegisterMetrics()
	if n > 0 {
		transportBytes.WithLabelValues("received").Add(float64(n))
	}
}

func RecordNotification(status int) {
	RegisterMetrics()
	notificationsTotal.WithLabelValues(strconv.Itoa(status)).Inc()
}

func RecordNotifyDrop() {
	RegisterMetrics()
	notifyDrops.Inc()
}

func RecordNotifyResync() {
	RegisterMetrics()
	notifyResyncs.Inc()
}

func RecordHTTPRequest(app, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(app, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(app, method, path, statusLabel).Observe(duration.Seconds())
}
