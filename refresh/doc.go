// Package refresh provides the client-side coordinator that serializes
// refresh exchanges.
//
// Refresh tokens are single-use: the server deletes the presented token
// as part of every successful exchange. A client that fires two expired
// requests in parallel would, uncoordinated, start two exchanges and
// have the second one fail on an already-consumed token. [Coordinator]
// funnels all of a client's expired responses into at most one in-flight
// exchange and hands the outcome to every waiting request.
//
// # Failure model
//
// A failed exchange is a forced logout: the coordinator drops the held
// pair and every queued waiter receives the same error. There is no
// mid-flight cancellation; a waiter may stop waiting, the exchange runs
// to completion regardless.
//
// # What this package must NOT do
//
//   - Access Redis or the server-side session registry.
//   - Import the engine; the exchange is injected as a function.
//   - Retry a request more than once.
package refresh
