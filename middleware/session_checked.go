package middleware

import (
	"net/http"

	authkit "github.com/tunedeck/authkit"
)

// RequireSession guards a route with token verification plus a registry
// liveness check, so revoked sessions are rejected immediately.
func RequireSession(engine *authkit.Engine) func(http.Handler) http.Handler {
	return Guard(engine, ModeSession)
}
