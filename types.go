package authkit

import (
	"io"

	internalaudit "github.com/tunedeck/authkit/internal/audit"
)

// Identity is the caller-supplied snapshot of the authenticated user.
// The engine never talks to a user database: whoever verified the
// credentials passes the result in here. ID and Email are required.
type Identity struct {
	ID            string
	Email         string
	Name          string
	EmailVerified bool
}

// DeviceInfo describes the client a session was started from. All fields
// are optional; empty values simply disable the corresponding monitor
// heuristics for that session.
type DeviceInfo struct {
	DeviceID  string
	IP        string
	UserAgent string
}

// TokenPair is returned by [Engine.StartSession] and [Engine.Refresh].
// The refresh token is opaque and single-use; the access token is a
// signed JWT that can be verified without touching Redis.
type TokenPair struct {
	AccessToken  string
	RefreshToken string

	// AccessExpiresAt and SessionExpiresAt are Unix milliseconds.
	AccessExpiresAt  int64
	SessionExpiresAt int64

	SessionID string
}

// SessionInfo is the read-only view of a live session returned by
// [Engine.GetSession] and [Engine.UserSessions]. Timestamps are Unix
// milliseconds. The refresh-secret hash is never exposed.
type SessionInfo struct {
	SessionID     string
	UserID        string
	Email         string
	Name          string
	EmailVerified bool

	DeviceID  string
	IP        string
	UserAgent string

	CreatedAt    int64
	ExpiresAt    int64
	LastActivity int64
	IsActive     bool
}

// SecurityEvent is an observation persisted to the Redis event log by
// [Monitor.LogSecurityEvent]. Events are write-once with a fixed
// retention. Timestamp is Unix milliseconds; when zero the engine stamps
// it at write time, and an empty EventID gets a fresh ULID.
type SecurityEvent struct {
	EventID   string            `json:"event_id"`
	UserID    string            `json:"user_id"`
	SessionID string            `json:"session_id,omitempty"`
	EventType string            `json:"event_type"`
	IP        string            `json:"ip,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
	DeviceID  string            `json:"device_id,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp int64             `json:"timestamp"`
}

// SuspicionReport is returned by [Monitor.DetectSuspiciousActivity]. It
// carries the overall verdict plus which heuristics fired, so callers can
// log or step-up without re-deriving the reasons.
type SuspicionReport struct {
	Suspicious bool

	AutomatedUserAgent bool
	MalformedIP        bool
	NetworkChange      bool
	HighVelocity       bool
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit
// dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
