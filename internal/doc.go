// Package internal contains helper utilities that are intentionally private to
// authkit, primarily secure random generation for session identifiers and
// refresh-token material.
//
// # Sub-packages
//
//   - audit — async security/audit event dispatch (Dispatcher + Sink implementations)
//   - rate — Redis-backed fixed-window counters (refresh throttle, creation velocity)
//
// # What this package must NOT do
//
//   - Export types that appear in the public authkit API.
//   - Be imported by any package outside the authkit module.
package internal
