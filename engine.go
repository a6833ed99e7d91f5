package authkit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/tunedeck/authkit/internal"
	internalaudit "github.com/tunedeck/authkit/internal/audit"
	"github.com/tunedeck/authkit/internal/rate"
	"github.com/tunedeck/authkit/jwt"
	"github.com/tunedeck/authkit/session"
)

// Engine is the session-lifecycle core: it mints token pairs, rotates
// refresh tokens, answers session queries, and runs the cleanup sweeps.
// Construct one through [Builder.Build]; the zero value is not usable.
// All methods are safe for concurrent use.
type Engine struct {
	config     Config
	registry   *session.Registry
	limiter    *rate.Limiter
	audit      *internalaudit.Dispatcher
	metrics    *Metrics
	jwtManager *jwt.Manager
	monitor    *Monitor
	secLog     *securityEventLog
	closed     atomic.Bool
}

// Close flushes and stops the audit dispatcher. Operations invoked after
// Close fail with [ErrEngineClosed]. Close is idempotent.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.closed.Store(true)
	if e.audit != nil {
		e.audit.Close()
	}
}

// guard returns the sentinel that preempts an operation: [ErrNotBuilt]
// for an engine that never went through [Builder.Build], [ErrEngineClosed]
// after Close.
func (e *Engine) guard() error {
	if e == nil || e.registry == nil || e.jwtManager == nil {
		return ErrNotBuilt
	}
	if e.closed.Load() {
		return ErrEngineClosed
	}
	return nil
}

// AuditDropped reports how many audit events were discarded because the
// dispatch buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of all counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricAdd(id MetricID, n int) {
	if e == nil || e.metrics == nil || n <= 0 {
		return
	}
	e.metrics.Add(id, uint64(n))
}

// StartSession registers a new session for an already-authenticated user
// and returns its token pair. The caller owns credential verification;
// identity is trusted as given and snapshotted into the session record so
// later refreshes never need a user-database lookup.
//
// Device metadata comes from the device argument when non-nil, otherwise
// from the context helpers ([WithClientIP], [WithUserAgent],
// [WithDeviceID]). Creation fails with [ErrSessionLimit] once the user
// holds the configured maximum of live sessions.
func (e *Engine) StartSession(ctx context.Context, identity Identity, device *DeviceInfo) (*TokenPair, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}
	if identity.ID == "" || identity.Email == "" {
		return nil, fmt.Errorf("%w: identity requires id and email", ErrConfig)
	}

	dev := e.resolveDevice(ctx, device)

	sid, err := internal.NewSessionID()
	if err != nil {
		return nil, err
	}
	sessionID := sid.String()

	secret, err := internal.NewRefreshSecret()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	refreshTTL := e.config.Sessions.RefreshTTL
	rec := &session.Record{
		SessionID:     sessionID,
		UserID:        identity.ID,
		Email:         identity.Email,
		Name:          identity.Name,
		EmailVerified: identity.EmailVerified,
		RefreshHash:   internal.HashRefreshSecret(secret),
		DeviceID:      dev.DeviceID,
		IP:            dev.IP,
		UserAgent:     dev.UserAgent,
		CreatedAt:     now.UnixMilli(),
		ExpiresAt:     now.Add(refreshTTL).UnixMilli(),
		LastActivity:  now.UnixMilli(),
		IsActive:      true,
	}

	if err := e.registry.Create(ctx, rec, refreshTTL); err != nil {
		if errors.Is(err, session.ErrLimitExceeded) {
			e.metricInc(MetricSessionLimitHit)
			e.emitAudit(ctx, auditEventSessionLimitExceeded, false, identity.ID, "", ErrSessionLimit, func() map[string]string {
				return map[string]string{
					"max_sessions": strconv.Itoa(e.config.Sessions.MaxSessionsPerUser),
				}
			})
			return nil, fmt.Errorf("%w: user has %d live sessions", ErrSessionLimit, e.config.Sessions.MaxSessionsPerUser)
		}
		return nil, e.storeError(err)
	}

	// Velocity tracking feeds the suspicion heuristics; its failure must
	// not fail the login.
	if e.limiter != nil {
		_, _ = e.limiter.TrackSessionCreated(ctx, identity.ID)
	}

	access, accessExp, err := e.issueAccess(rec)
	if err != nil {
		_, _ = e.registry.Delete(ctx, identity.ID, sessionID)
		return nil, err
	}

	refresh, err := internal.EncodeRefreshToken(sessionID, secret)
	if err != nil {
		_, _ = e.registry.Delete(ctx, identity.ID, sessionID)
		return nil, err
	}

	e.metricInc(MetricSessionCreated)
	e.metricInc(MetricAccessIssued)
	e.emitAudit(ctx, auditEventSessionCreated, true, identity.ID, sessionID, nil, nil)
	e.emitAudit(ctx, auditEventTokenPairIssued, true, identity.ID, sessionID, nil, nil)
	e.recordSecurityEvent(ctx, auditEventSessionCreated, identity.ID, sessionID, nil)

	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		SessionExpiresAt: rec.ExpiresAt,
		SessionID:        sessionID,
	}, nil
}

// Refresh redeems a refresh token for a new token pair. The presented
// token is consumed atomically, so of two concurrent redemptions exactly
// one wins; the loser fails with [ErrRefreshInvalid]. The replacement
// session keeps the identity snapshot and original creation time but gets
// a new session id, a new secret, and a full lifetime window.
//
// Malformed input is rejected with [ErrRefreshFormat] before any store
// access.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}

	sessionID, providedSecret, err := internal.DecodeRefreshToken(refreshToken)
	if err != nil {
		e.metricInc(MetricRefreshInvalid)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", ErrRefreshFormat, func() map[string]string {
			return map[string]string{
				"reason": "malformed_token",
			}
		})
		return nil, fmt.Errorf("%w: %v", ErrRefreshFormat, err)
	}

	if e.limiter != nil {
		if err := e.limiter.CheckRefresh(ctx, sessionID); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				e.metricInc(MetricRefreshThrottled)
				e.emitAudit(ctx, auditEventRefreshThrottled, false, "", sessionID, ErrRefreshThrottled, nil)
				return nil, ErrRefreshThrottled
			}
			// The throttle backend being down fails the refresh closed.
			return nil, e.storeError(err)
		}
	}

	old, err := e.registry.Redeem(ctx, sessionID, internal.HashRefreshSecret(providedSecret), time.Now())
	if err != nil {
		return nil, e.refreshFailure(ctx, sessionID, err)
	}

	newSecret, err := internal.NewRefreshSecret()
	if err != nil {
		return nil, err
	}
	nsid, err := internal.NewSessionID()
	if err != nil {
		return nil, err
	}
	newSessionID := nsid.String()

	now := time.Now()
	refreshTTL := e.config.Sessions.RefreshTTL
	rec := &session.Record{
		SessionID:     newSessionID,
		UserID:        old.UserID,
		Email:         old.Email,
		Name:          old.Name,
		EmailVerified: old.EmailVerified,
		RefreshHash:   internal.HashRefreshSecret(newSecret),
		DeviceID:      old.DeviceID,
		IP:            old.IP,
		UserAgent:     old.UserAgent,
		CreatedAt:     old.CreatedAt,
		ExpiresAt:     now.Add(refreshTTL).UnixMilli(),
		LastActivity:  now.UnixMilli(),
		IsActive:      true,
	}

	// The consumed record is already gone, so the replacement write sees
	// at most cap-1 live sessions and the limit check passes in steady
	// state. If the write still fails the exchange fails closed: the old
	// token stays dead and no new one exists.
	if err := e.registry.Create(ctx, rec, refreshTTL); err != nil {
		e.metricInc(MetricRefreshInvalid)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, old.UserID, sessionID, err, func() map[string]string {
			return map[string]string{
				"reason": "replacement_write_failed",
			}
		})
		return nil, e.storeError(err)
	}

	access, accessExp, err := e.issueAccess(rec)
	if err != nil {
		_, _ = e.registry.Delete(ctx, rec.UserID, newSessionID)
		return nil, err
	}

	refresh, err := internal.EncodeRefreshToken(newSessionID, newSecret)
	if err != nil {
		_, _ = e.registry.Delete(ctx, rec.UserID, newSessionID)
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.metricInc(MetricAccessIssued)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, old.UserID, newSessionID, nil, func() map[string]string {
		return map[string]string{
			"rotated_from": sessionID,
		}
	})

	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		SessionExpiresAt: rec.ExpiresAt,
		SessionID:        newSessionID,
	}, nil
}

func (e *Engine) refreshFailure(ctx context.Context, sessionID string, err error) error {
	var mapped error
	var reason string

	switch {
	case errors.Is(err, session.ErrRecordExpired):
		mapped = ErrRefreshExpired
		reason = "expired"
	case errors.Is(err, session.ErrAmbiguous):
		mapped = fmt.Errorf("%w: %v", ErrRefreshAmbiguous, err)
		reason = "ambiguous_match"
	case errors.Is(err, session.ErrHashMismatch):
		mapped = ErrRefreshInvalid
		reason = "secret_mismatch"
	case errors.Is(err, session.ErrRecordCorrupt):
		mapped = fmt.Errorf("%w: stored record unreadable", ErrRefreshInvalid)
		reason = "record_corrupt"
	case errors.Is(err, session.ErrNotFound):
		mapped = ErrRefreshInvalid
		reason = "not_found"
	case errors.Is(err, session.ErrRedisUnavailable):
		mapped = fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		reason = "store_unavailable"
	default:
		mapped = err
		reason = "redeem_failed"
	}

	e.metricInc(MetricRefreshInvalid)
	e.emitAudit(ctx, auditEventRefreshInvalid, false, "", sessionID, mapped, func() map[string]string {
		return map[string]string{
			"reason": reason,
		}
	})
	return mapped
}

// ValidateAccess verifies an access token locally: signature, issuer,
// audience, expiry, and required claims. No store lookup happens, which
// is why an issued token cannot be revoked before its natural expiry.
// Expiry surfaces as [ErrTokenExpired]; every other defect as
// [ErrTokenInvalid].
func (e *Engine) ValidateAccess(ctx context.Context, tokenStr string) (*jwt.AccessClaims, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}
	if e.metrics != nil && e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() {
			e.metrics.Observe(MetricValidateLatency, time.Since(start))
		}()
	}

	claims, err := e.jwtManager.ParseAccess(tokenStr)
	if err != nil {
		e.metricInc(MetricAccessRejected)
		if errors.Is(err, jwtlib.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: access token expired", ErrTokenExpired)
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	e.metricInc(MetricAccessValidated)
	return claims, nil
}

// GetSession returns the live session for a session id. Not-found,
// ambiguous-match, and corrupt-payload are distinct failures so callers
// can tell an expired login from an integrity problem.
func (e *Engine) GetSession(ctx context.Context, sessionID string) (*SessionInfo, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}

	rec, err := e.registry.GetBySessionID(ctx, sessionID)
	if err != nil {
		return nil, e.sessionError(err)
	}
	return sessionInfoFromRecord(rec), nil
}

// ValidateSession reports whether a session is currently usable: it
// exists, decodes, carries all required fields, has not expired, and is
// active. A present-but-malformed record is an error, not a false.
func (e *Engine) ValidateSession(ctx context.Context, sessionID string) (bool, error) {
	if err := e.guard(); err != nil {
		return false, err
	}

	rec, err := e.registry.GetBySessionID(ctx, sessionID)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrNotFound):
			return false, nil
		case errors.Is(err, session.ErrRecordCorrupt):
			return false, fmt.Errorf("%w: %v", ErrSessionCorrupt, err)
		default:
			return false, e.sessionError(err)
		}
	}

	if !rec.Complete() {
		return false, fmt.Errorf("%w: record is missing required fields", ErrSessionInvalid)
	}
	if rec.ExpiresAt <= time.Now().UnixMilli() {
		return false, nil
	}
	return rec.IsActive, nil
}

// UpdateActivity stamps the session's LastActivity with the current time
// while preserving the remaining TTL. Activity never extends a session's
// life.
func (e *Engine) UpdateActivity(ctx context.Context, sessionID string) error {
	if err := e.guard(); err != nil {
		return err
	}

	if err := e.registry.Touch(ctx, sessionID, time.Now()); err != nil {
		return e.sessionError(err)
	}
	return nil
}

// UserSessions lists a user's live sessions, most recently active first.
// Corrupt or decayed entries are skipped rather than failing the listing.
func (e *Engine) UserSessions(ctx context.Context, userID string) ([]SessionInfo, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}

	records, err := e.registry.ListForUser(ctx, userID)
	if err != nil {
		return nil, e.sessionError(err)
	}

	infos := make([]SessionInfo, 0, len(records))
	for _, rec := range records {
		infos = append(infos, *sessionInfoFromRecord(rec))
	}
	return infos, nil
}

// RevokeSession deletes one session and with it the refresh token bound
// to it. Reports whether anything was removed; revoking an unknown
// session is not an error.
func (e *Engine) RevokeSession(ctx context.Context, sessionID string) (bool, error) {
	if err := e.guard(); err != nil {
		return false, err
	}

	// Resolve the owner before deleting so the revocation event lands
	// under the user's key. A corrupt or already-gone record leaves the
	// owner blank; the revocation itself still proceeds.
	var userID string
	if rec, err := e.registry.GetBySessionID(ctx, sessionID); err == nil {
		userID = rec.UserID
	}

	removed, err := e.registry.DeleteBySessionID(ctx, sessionID)
	if err != nil {
		return false, e.sessionError(err)
	}
	if removed {
		e.metricInc(MetricSessionRevoked)
		e.recordSecurityEvent(ctx, auditEventSessionRevoked, userID, sessionID, nil)
	}
	e.emitAudit(ctx, auditEventSessionRevoked, removed, userID, sessionID, nil, func() map[string]string {
		return map[string]string{
			"removed": strconv.FormatBool(removed),
		}
	})
	return removed, nil
}

// RevokeAllUserSessions deletes every session a user holds, best effort,
// and returns how many were actually removed.
func (e *Engine) RevokeAllUserSessions(ctx context.Context, userID string) (int, error) {
	if err := e.guard(); err != nil {
		return 0, err
	}

	removed, err := e.registry.DeleteAllForUser(ctx, userID)
	if err != nil {
		return removed, e.sessionError(err)
	}

	e.metricAdd(MetricBulkRevoked, removed)
	e.emitAudit(ctx, auditEventBulkSessionRevoked, true, userID, "", nil, func() map[string]string {
		return map[string]string{
			"revoked_count": strconv.Itoa(removed),
		}
	})
	e.recordSecurityEvent(ctx, auditEventBulkSessionRevoked, userID, "", map[string]string{
		"revoked_count": strconv.Itoa(removed),
	})
	return removed, nil
}

// SweepExpired reaps keys the store should already have evicted but that
// pattern scans can still surface. Returns the number removed; a sweep
// that cannot even scan returns 0 rather than an error, since sweeps are
// housekeeping.
func (e *Engine) SweepExpired(ctx context.Context) int {
	if e.guard() != nil {
		return 0
	}

	removed, err := e.registry.SweepExpired(ctx)
	if err != nil {
		return 0
	}

	e.metricAdd(MetricSweptExpired, removed)
	e.emitAudit(ctx, auditEventSweepCompleted, true, "", "", nil, func() map[string]string {
		return map[string]string{
			"scope":   "expired",
			"removed": strconv.Itoa(removed),
		}
	})
	return removed
}

// SweepInactive removes sessions whose last activity predates the
// threshold. A non-positive threshold falls back to the configured
// inactivity threshold. Same degrade-to-zero contract as SweepExpired.
func (e *Engine) SweepInactive(ctx context.Context, threshold time.Duration) int {
	if e.guard() != nil {
		return 0
	}
	if threshold <= 0 {
		threshold = e.config.Cleanup.InactivityThreshold
	}

	removed, err := e.registry.SweepInactive(ctx, threshold, time.Now())
	if err != nil {
		return 0
	}

	e.metricAdd(MetricSweptInactive, removed)
	e.emitAudit(ctx, auditEventSweepCompleted, true, "", "", nil, func() map[string]string {
		return map[string]string{
			"scope":   "inactive",
			"removed": strconv.Itoa(removed),
		}
	})
	return removed
}

func (e *Engine) issueAccess(rec *session.Record) (string, int64, error) {
	token, err := e.jwtManager.CreateAccess(rec.UserID, rec.Email, rec.Name, rec.EmailVerified, rec.SessionID)
	if err != nil {
		return "", 0, err
	}
	expiresAt := time.Now().Add(e.config.Tokens.AccessTTL).UnixMilli()
	return token, expiresAt, nil
}

func (e *Engine) resolveDevice(ctx context.Context, device *DeviceInfo) DeviceInfo {
	if device != nil {
		return *device
	}
	return DeviceInfo{
		DeviceID:  deviceIDFromContext(ctx),
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
	}
}

// sessionError maps registry sentinels onto the public taxonomy.
func (e *Engine) sessionError(err error) error {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return ErrSessionNotFound
	case errors.Is(err, session.ErrAmbiguous):
		return fmt.Errorf("%w: %v", ErrSessionAmbiguous, err)
	case errors.Is(err, session.ErrRecordCorrupt):
		return fmt.Errorf("%w: %v", ErrSessionCorrupt, err)
	case errors.Is(err, session.ErrRedisUnavailable):
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	default:
		return err
	}
}

func (e *Engine) storeError(err error) error {
	if errors.Is(err, session.ErrRedisUnavailable) || errors.Is(err, rate.ErrRedisUnavailable) {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return err
}

func sessionInfoFromRecord(rec *session.Record) *SessionInfo {
	return &SessionInfo{
		SessionID:     rec.SessionID,
		UserID:        rec.UserID,
		Email:         rec.Email,
		Name:          rec.Name,
		EmailVerified: rec.EmailVerified,
		DeviceID:      rec.DeviceID,
		IP:            rec.IP,
		UserAgent:     rec.UserAgent,
		CreatedAt:     rec.CreatedAt,
		ExpiresAt:     rec.ExpiresAt,
		LastActivity:  rec.LastActivity,
		IsActive:      rec.IsActive,
	}
}
