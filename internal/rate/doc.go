// Package rate provides Redis-backed fixed-window counters for the refresh
// throttle and the session-creation velocity signal.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key prefixes:
//   - ar:  — refresh attempts per session
//   - asv: — session creations per user (velocity window)
//
// # What this package must NOT do
//
//   - Decide what a tripped counter means (the Engine and security monitor do).
//   - Be imported outside the authkit module.
package rate
