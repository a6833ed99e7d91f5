package internaldefs

import (
	"math"

	authkit "github.com/tunedeck/authkit"
)

// CounterDef maps one core counter ID to its exported name and help text.
type CounterDef struct {
	ID   authkit.MetricID
	Name string
	Help string
}

// HistogramDef maps one core histogram ID to its exported name and help text.
type HistogramDef struct {
	ID   authkit.MetricID
	Name string
	Help string
}

// CounterDefs lists every counter in export order. Both exporters iterate
// this table so names stay identical across backends.
var CounterDefs = []CounterDef{
	{ID: authkit.MetricAccessIssued, Name: "authkit_access_issued_total", Help: "Access tokens minted."},
	{ID: authkit.MetricAccessValidated, Name: "authkit_access_validated_total", Help: "Access tokens that passed validation."},
	{ID: authkit.MetricAccessRejected, Name: "authkit_access_rejected_total", Help: "Access tokens rejected during validation."},
	{ID: authkit.MetricRefreshSuccess, Name: "authkit_refresh_success_total", Help: "Completed refresh rotations."},
	{ID: authkit.MetricRefreshInvalid, Name: "authkit_refresh_invalid_total", Help: "Refresh attempts rejected as invalid."},
	{ID: authkit.MetricRefreshThrottled, Name: "authkit_refresh_throttled_total", Help: "Refresh attempts stopped by the per-session throttle."},
	{ID: authkit.MetricSessionCreated, Name: "authkit_session_created_total", Help: "Sessions written to the registry."},
	{ID: authkit.MetricSessionLimitHit, Name: "authkit_session_limit_hit_total", Help: "Session creations refused by the per-user cap."},
	{ID: authkit.MetricSessionRevoked, Name: "authkit_session_revoked_total", Help: "Single-session revocations that removed a record."},
	{ID: authkit.MetricBulkRevoked, Name: "authkit_bulk_revoked_total", Help: "Sessions removed by revoke-all operations."},
	{ID: authkit.MetricSweptExpired, Name: "authkit_swept_expired_total", Help: "Sessions reaped by the expiry sweeper."},
	{ID: authkit.MetricSweptInactive, Name: "authkit_swept_inactive_total", Help: "Sessions reaped by the inactivity sweeper."},
	{ID: authkit.MetricDeviceChange, Name: "authkit_device_change_total", Help: "Detected device fingerprint changes."},
	{ID: authkit.MetricSuspicionFlagged, Name: "authkit_suspicion_flagged_total", Help: "Positive suspicious-activity verdicts."},
	{ID: authkit.MetricSecurityEventLogged, Name: "authkit_security_event_logged_total", Help: "Security events persisted to the event log."},
}

// HistogramDefs lists every histogram in export order.
var HistogramDefs = []HistogramDef{
	{ID: authkit.MetricValidateLatency, Name: "authkit_validate_latency_seconds", Help: "ValidateAccess latency histogram."},
}

// HistogramBounds holds the upper bounds of the core histogram buckets as
// Prometheus le label values.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundValues holds the same bounds as float64 seconds for
// exporters that build native histogram points. The final entry is +Inf.
var HistogramBoundValues = []float64{
	0.005,
	0.01,
	0.025,
	0.05,
	0.1,
	0.25,
	0.5,
	math.Inf(1),
}

// HistogramBoundSuffix holds metric-name-safe spellings of the bounds for
// backends that cannot carry an le label.
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

// NormalizeBuckets widens a raw snapshot slice to the fixed bucket count.
// Snapshots omit the histogram entirely when latency tracking is off, so a
// short or nil slice means zero observations.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to the cumulative form the
// Prometheus exposition format requires. The last entry equals the total
// sample count.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
