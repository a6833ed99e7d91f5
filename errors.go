package authkit

import "errors"

// Public error taxonomy. Callers classify failures with errors.Is; the
// concrete text of any error may change between releases, the identities
// below do not.

// ErrConfig is returned when the engine or token issuer is missing required
// configuration (signing secret, issuer, audience) or an identity lacks the
// fields needed to issue for it. Fatal at startup, never retried.
var ErrConfig = errors.New("invalid configuration")

// ErrTokenInvalid covers every access-token failure that is not expiry: bad
// signature, bad format, wrong issuer or audience, missing required claims.
var ErrTokenInvalid = errors.New("invalid access token")

// ErrTokenExpired is returned when an otherwise valid access token is past
// its lifetime. The caller refreshes rather than re-authenticates.
var ErrTokenExpired = errors.New("access token expired")

// ErrRefreshFormat is returned when the presented refresh token is not even
// well formed. Rejected before any store access.
var ErrRefreshFormat = errors.New("malformed refresh token")

// ErrRefreshInvalid is returned when a well-formed refresh token matches no
// live record. A consumed, revoked, or never-issued token all look the same.
var ErrRefreshInvalid = errors.New("invalid refresh token")

// ErrRefreshExpired is returned when the matching record exists but its
// expiry already passed. The record is deleted as part of the lookup.
var ErrRefreshExpired = errors.New("refresh token expired")

// ErrRefreshAmbiguous is returned when a refresh lookup matches more than
// one record. Session ids are unique by construction; treat as integrity
// failure.
var ErrRefreshAmbiguous = errors.New("ambiguous refresh token")

// ErrRefreshThrottled is returned when refresh attempts for one session
// exceed the configured window budget.
var ErrRefreshThrottled = errors.New("refresh rate limited")

// ErrSessionLimit is returned when creating a session would exceed the
// per-user cap. Nothing is written; the caller may revoke a session and
// retry.
var ErrSessionLimit = errors.New("session limit exceeded")

// ErrSessionNotFound is returned when no live session matches.
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionAmbiguous is returned when a session-id lookup matches more than
// one key.
var ErrSessionAmbiguous = errors.New("ambiguous session id")

// ErrSessionCorrupt is returned when a stored session payload exists but
// cannot be decoded. Log loudly: this is a data-integrity problem, not a
// miss.
var ErrSessionCorrupt = errors.New("session record corrupt")

// ErrSessionInvalid is returned by session validation when the record is
// present but malformed (required fields missing). Distinct from not-found.
var ErrSessionInvalid = errors.New("session record invalid")

// ErrStoreUnavailable wraps store-connectivity failures on paths that must
// surface them. Sweep and audit paths degrade to no-op instead.
var ErrStoreUnavailable = errors.New("session store unavailable")

// ErrEngineClosed is returned by operations invoked after Close.
var ErrEngineClosed = errors.New("engine closed")

// ErrNotBuilt is returned when a Builder product is used before Build
// succeeded.
var ErrNotBuilt = errors.New("engine not built")
