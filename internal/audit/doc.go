// Package audit implements async event dispatching for security-relevant
// operations: session lifecycle, refresh exchanges, monitor findings, sweeps.
//
// # Components
//
//   - [Event] — structured record with a ULID event id, type, subject, device
//     attribution, and free-form metadata.
//   - [Sink] — interface for event consumers (channel, JSON writer, no-op).
//   - [Dispatcher] — buffered async relay with drop-if-full / block-if-full
//     semantics and an atomic dropped counter.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does NOT decide
// which events to emit — that responsibility belongs to the Engine and the
// security monitor. Delivery failures never propagate to the emitting
// operation.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import authkit or any sibling internal package.
//   - Perform network I/O beyond what a caller-supplied Sink does.
package audit
