// Package metrics exposes the gateway's Prometheus counters and
// histograms, and the handler that serves them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// AuthzDecisions counts authorization outcomes by result: "allow",
	// "deny", or "timeout".
	AuthzDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediagate_authz_decisions_total",
		Help: "Total authorization decisions made, by outcome.",
	}, []string{"result"})

	// KeyFetches counts key-set fetch attempts by source URL and outcome.
	KeyFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediagate_key_fetches_total",
		Help: "Total key-set fetch attempts, by source and outcome.",
	}, []string{"source", "outcome"})

	// BackupRefreshes counts backup-refresh invocations by whether they
	// actually performed a fetch or were rate-limited.
	BackupRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediagate_backup_refreshes_total",
		Help: "Total backup-refresh invocations, by whether a fetch occurred.",
	}, []string{"performed"})

	// FileResponses counts file-responder outcomes by status.
	FileResponses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediagate_file_responses_total",
		Help: "Total file-responder outcomes, by status.",
	}, []string{"status"})

	// RequestDuration records end-to-end request handling latency.
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mediagate_request_duration_seconds",
		Help:    "Request handling latency in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
)

// Handler returns the admin HTTP handler serving the registered metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
