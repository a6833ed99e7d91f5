package session

// Record is one live session: the refresh-token state, the identity snapshot
// captured when the session was started, and the device metadata used by the
// security monitor. The session identifier doubles as the refresh-token
// identifier, so revoking a session always invalidates its refresh token.
//
// Timestamps are Unix milliseconds. Email and Name are snapshots taken at
// issuance so a refresh exchange never needs a relational lookup.
type Record struct {
	SessionID string
	UserID    string

	Email         string
	Name          string
	EmailVerified bool

	// RefreshHash is the SHA-256 of the refresh secret. The raw secret only
	// ever exists inside the opaque token held by the client.
	RefreshHash [32]byte

	DeviceID  string
	IP        string
	UserAgent string

	CreatedAt    int64
	ExpiresAt    int64
	LastActivity int64
	IsActive     bool
}
