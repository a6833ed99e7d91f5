// Package authkit manages identity-token and session lifecycles for
// service backends: short-lived HMAC-signed access tokens verified
// locally, single-use opaque refresh tokens rotated through a
// Redis-backed session registry, multi-device session tracking, heuristic
// security monitoring, and cleanup sweeps for decayed entries.
//
// The package is designed for concurrent server workloads: Engine methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// authkit is the public surface. It exposes [Engine], [Builder],
// [Config], [Monitor], and value types (TokenPair, SessionInfo,
// SecurityEvent, MetricsSnapshot). Session encoding, token byte formats,
// throttle counters, and audit dispatch live under internal/ or in the
// session and jwt sub-packages and are never re-exported here.
//
// # What this package must NOT do
//
//   - Verify user credentials. Callers authenticate first and hand
//     [Engine.StartSession] a trusted [Identity].
//   - Revoke access tokens early. Validation is local by design; only
//     refresh tokens and sessions are revocable.
//   - Cache session validity in memory. The Redis registry is the single
//     source of truth between requests.
//
// # Performance contract
//
// ValidateAccess is the hot path: pure CPU, no Redis round-trip.
// StartSession and Refresh each cost one key scan plus a handful of
// single-key commands. Sweeps are background housekeeping and may scan
// the full keyspace.
package authkit
