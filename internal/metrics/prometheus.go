// Package metrics exposes the engine's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "approval_gateway_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "approval_gateway_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	signatureFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "approval_gateway_signature_failures_total",
			Help: "Inbound requests rejected by signature verification",
		},
		[]string{"reason"},
	)

	// Approval lifecycle
	approvalsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "approval_gateway_approvals_created_total",
			Help: "Total number of approvals created",
		},
		[]string{"mode"},
	)

	approvalsResolvedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "approval_gateway_approvals_resolved_total",
			Help: "Total number of approvals leaving pending, by final status",
		},
		[]string{"status"},
	)

	approverResponsesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "approval_gateway_approver_responses_total",
			Help: "Approver responses by store outcome",
		},
		[]string{"outcome"},
	)

	approvalResolutionSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "approval_gateway_resolution_seconds",
			Help:    "Time from creation to resolution",
			Buckets: []float64{60, 300, 900, 3600, 4 * 3600, 24 * 3600, 72 * 3600, 168 * 3600},
		},
	)

	// Channel
	notificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "approval_gateway_notifications_total",
			Help: "Approver notifications by channel and status",
		},
		[]string{"channel", "operation", "status"},
	)

	channelUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "approval_gateway_channel_updates_total",
			Help: "Inbound channel updates by kind",
		},
		[]string{"channel", "kind"},
	)

	// Result delivery
	resultReportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "approval_gateway_result_reports_total",
			Help: "Result callbacks to the origin system by status",
		},
		[]string{"status"},
	)

	resultReportDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "approval_gateway_result_report_duration_seconds",
			Help:    "Result callback duration including retries",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
	)

	// Sweeper
	sweepRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "approval_gateway_sweep_runs_total",
			Help: "Timeout sweep ticks by status",
		},
		[]string{"status"},
	)

	sweepExpiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "approval_gateway_sweep_expired_total",
			Help: "Approvals expired by the timeout sweeper",
		},
	)
)

// RecordHTTPRequest records an HTTP request
func RecordHTTPRequest(method, endpoint string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, endpoint, statusClass(status)).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

func statusClass(status int) string {
	if status < 100 || status > 599 {
		return "unknown"
	}
	return strconv.Itoa(status/100) + "xx"
}

// RecordSignatureFailure records a rejected inbound signature
func RecordSignatureFailure(reason string) {
	signatureFailuresTotal.WithLabelValues(reason).Inc()
}

// RecordApprovalCreated records a new approval
func RecordApprovalCreated(mode string) {
	approvalsCreatedTotal.WithLabelValues(mode).Inc()
}

// RecordApprovalResolved records an approval leaving pending
func RecordApprovalResolved(status string, age time.Duration) {
	approvalsResolvedTotal.WithLabelValues(status).Inc()
	if age > 0 {
		approvalResolutionSeconds.Observe(age.Seconds())
	}
}

// RecordApproverResponse records the outcome of an approver response
func RecordApproverResponse(outcome string) {
	approverResponsesTotal.WithLabelValues(outcome).Inc()
}

// RecordNotification records a channel send, edit or answer
func RecordNotification(channel, operation string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	notificationsTotal.WithLabelValues(channel, operation, status).Inc()
}

// RecordChannelUpdate records an inbound channel update
func RecordChannelUpdate(channel, kind string) {
	channelUpdatesTotal.WithLabelValues(channel, kind).Inc()
}

// RecordResultReport records a result callback attempt sequence
func RecordResultReport(status string, duration time.Duration) {
	resultReportsTotal.WithLabelValues(status).Inc()
	resultReportDuration.Observe(duration.Seconds())
}

// RecordSweep records one sweeper tick
func RecordSweep(expired int, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	sweepRunsTotal.WithLabelValues(status).Inc()
	sweepExpiredTotal.Add(float64(expired))
}

// Handler returns the Prometheus scrape handler
func Handler() http.Handler {
	return promhttp.Handler()
}
