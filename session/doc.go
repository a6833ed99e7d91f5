// Package session provides the Redis-backed session registry and the compact
// binary record encoding used on authentication hot paths.
//
// # One registry, two jobs
//
// The registry merges refresh-token storage and session tracking: a session
// id doubles as the refresh-token identifier, one record per live session at
// {prefix}:{userID}:{sessionID}, TTL equal to the remaining session lifetime.
// Revoking a session and invalidating its refresh token are the same delete.
//
// # Binary encoding
//
// Records are stored as a compact binary format (format version 1): six
// length-prefixed strings, a flags byte, the refresh-secret hash, and three
// big-endian millisecond timestamps. The redeem script parses this layout in
// Lua, so encoder changes must be mirrored there.
//
// # Atomicity
//
// Only Redeem is atomic (Lua GET+DEL). Cap enforcement and sweeps are
// multi-step scans by design; their races are documented on the methods.
//
// # What this package must NOT do
//
//   - Import authkit or jwt (no upward imports).
//   - Issue or verify access tokens.
//   - Store a raw refresh secret in a [Record].
package session
