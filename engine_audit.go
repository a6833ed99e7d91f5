package authkit

import (
	"context"
	"errors"
	"time"

	internalaudit "github.com/tunedeck/authkit/internal/audit"
)

const (
	auditEventTokenPairIssued      = "token_pair_issued"
	auditEventSessionCreated       = "session_created"
	auditEventSessionLimitExceeded = "session_limit_exceeded"
	auditEventRefreshSuccess       = "refresh_success"
	auditEventRefreshInvalid       = "refresh_invalid"
	auditEventRefreshThrottled     = "refresh_throttled"
	auditEventSessionRevoked       = "session_revoked"
	auditEventBulkSessionRevoked   = "bulk_session_revoked"
	auditEventDeviceChange         = "device_change_detected"
	auditEventSuspiciousActivity   = "suspicious_activity_flagged"
	auditEventSecurityEventLogged  = "security_event_logged"
	auditEventSweepCompleted       = "sweep_completed"
)

// AuditErrorCode is the stable machine-readable failure label carried in
// [AuditEvent].Error. Codes are coarser than the error taxonomy on purpose;
// log pipelines filter on them.
type AuditErrorCode string

const (
	auditErrConfig          AuditErrorCode = "configuration_error"
	auditErrTokenInvalid    AuditErrorCode = "invalid_token"
	auditErrTokenExpired    AuditErrorCode = "token_expired"
	auditErrRefreshFormat   AuditErrorCode = "refresh_token_malformed"
	auditErrRefreshInvalid  AuditErrorCode = "refresh_token_invalid"
	auditErrRefreshExpired  AuditErrorCode = "refresh_token_expired"
	auditErrAmbiguous       AuditErrorCode = "ambiguous_match"
	auditErrRateLimited     AuditErrorCode = "rate_limited"
	auditErrSessionLimit    AuditErrorCode = "session_limit_exceeded"
	auditErrSessionNotFound AuditErrorCode = "session_not_found"
	auditErrSessionCorrupt  AuditErrorCode = "session_corrupt"
	auditErrSessionInvalid  AuditErrorCode = "session_invalid"
	auditErrUnavailable     AuditErrorCode = "backend_unavailable"
	auditErrInternal        AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		EventID:   internalaudit.NewEventID(),
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		DeviceID:  deviceIDFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrConfig):
		return auditErrConfig
	case errors.Is(err, ErrTokenExpired):
		return auditErrTokenExpired
	case errors.Is(err, ErrTokenInvalid):
		return auditErrTokenInvalid
	case errors.Is(err, ErrRefreshFormat):
		return auditErrRefreshFormat
	case errors.Is(err, ErrRefreshExpired):
		return auditErrRefreshExpired
	case errors.Is(err, ErrRefreshThrottled):
		return auditErrRateLimited
	case errors.Is(err, ErrRefreshAmbiguous),
		errors.Is(err, ErrSessionAmbiguous):
		return auditErrAmbiguous
	case errors.Is(err, ErrRefreshInvalid):
		return auditErrRefreshInvalid
	case errors.Is(err, ErrSessionLimit):
		return auditErrSessionLimit
	case errors.Is(err, ErrSessionNotFound):
		return auditErrSessionNotFound
	case errors.Is(err, ErrSessionCorrupt):
		return auditErrSessionCorrupt
	case errors.Is(err, ErrSessionInvalid):
		return auditErrSessionInvalid
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
