package middleware

import (
	"net/http"

	authkit "github.com/tunedeck/authkit"
)

// RequireToken guards a route with stateless token verification,
// skipping Redis entirely.
func RequireToken(engine *authkit.Engine) func(http.Handler) http.Handler {
	return Guard(engine, ModeToken)
}
