// Package jwt issues and verifies the short-lived HS256 access tokens that
// carry the subject's identity snapshot. Verification is purely local: no
// store lookup, and no revocation before natural expiry.
package jwt
