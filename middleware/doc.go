// Package middleware adapts engine validation to net/http handlers.
//
// # Guards
//
//   - [Guard] — bearer extraction plus validation at the chosen [Mode].
//   - [RequireToken] — stateless token verification, no Redis call.
//   - [RequireSession] — token verification plus a registry liveness
//     check, so revocation takes effect immediately.
//
// Each guard reads the Authorization header, validates through the
// engine, and stores the claims on the request context for
// [ClaimsFromContext].
//
// # What this package must NOT do
//
//   - Parse or mint tokens itself.
//   - Talk to Redis directly.
//   - Reveal the rejection reason to the client; every failure is a
//     uniform 401.
package middleware
