package internaldefs

import (
	"github.com/ternsecure/ternsecure"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   ternsecure.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for exporters.
type HistogramDef struct {
	ID   ternsecure.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: ternsecure.MetricRequest, Name: "ternsecure_requests_total", Help: "Requests served by the engine."},
	{ID: ternsecure.MetricPreflight, Name: "ternsecure_preflight_total", Help: "CORS preflight requests answered."},
	{ID: ternsecure.MetricRejectedCORS, Name: "ternsecure_rejected_cors_total", Help: "Requests rejected for their origin."},
	{ID: ternsecure.MetricRejectedSecurity, Name: "ternsecure_rejected_security_total", Help: "Requests rejected by CSRF, header or user-agent checks."},
	{ID: ternsecure.MetricRejectedRoute, Name: "ternsecure_rejected_route_total", Help: "Requests rejected by path or endpoint checks."},
	{ID: ternsecure.MetricRejectedBody, Name: "ternsecure_rejected_body_total", Help: "Requests rejected by body checks."},
	{ID: ternsecure.MetricVerifySuccess, Name: "ternsecure_verify_success_total", Help: "Verify calls that returned claims."},
	{ID: ternsecure.MetricVerifyFailure, Name: "ternsecure_verify_failure_total", Help: "Verify calls without a usable session."},
	{ID: ternsecure.MetricSessionCreated, Name: "ternsecure_session_created_total", Help: "Sessions created."},
	{ID: ternsecure.MetricSessionCreationFailure, Name: "ternsecure_session_creation_failure_total", Help: "Session creations that failed."},
	{ID: ternsecure.MetricRefreshSuccess, Name: "ternsecure_refresh_success_total", Help: "Successful refresh operations."},
	{ID: ternsecure.MetricRefreshFailure, Name: "ternsecure_refresh_failure_total", Help: "Failed refresh operations."},
	{ID: ternsecure.MetricSessionRevoked, Name: "ternsecure_session_revoked_total", Help: "Session revocations."},
	{ID: ternsecure.MetricPasswordResetRequest, Name: "ternsecure_password_reset_request_total", Help: "Password reset emails sent."},
	{ID: ternsecure.MetricPasswordResetFailure, Name: "ternsecure_password_reset_failure_total", Help: "Password reset emails that failed."},
	{ID: ternsecure.MetricRateLimitHit, Name: "ternsecure_rate_limit_hit_total", Help: "Rate-limit checks that denied requests."},
	{ID: ternsecure.MetricPanicRecovered, Name: "ternsecure_panic_recovered_total", Help: "Handler panics recovered as 500 responses."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: ternsecure.MetricRequestLatency, Name: "ternsecure_request_latency_seconds", Help: "Request latency histogram."},
}

// AuditDroppedName is the counter for audit events dropped under backpressure.
const AuditDroppedName = "ternsecure_audit_dropped_total"

// AuditDroppedHelp describes AuditDroppedName.
const AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."

// HistogramBounds are the upper bounds of the engine latency buckets in seconds.
// The final bucket is +Inf and is not listed.
var HistogramBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, +Inf included, for instrument names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed-size array, zero-filling missing buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}

// ApproxSum estimates the observed total in seconds, counting each sample at its
// bucket's upper bound. +Inf samples are counted at the last finite bound.
func ApproxSum(raw [8]uint64) float64 {
	var sum float64
	for i, n := range raw {
		bound := HistogramBounds[len(HistogramBounds)-1]
		if i < len(HistogramBounds) {
			bound = HistogramBounds[i]
		}
		sum += float64(n) * bound
	}
	return sum
}
