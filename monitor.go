package authkit

import (
	"context"
	"encoding/json"
	"net/netip"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	internalaudit "github.com/tunedeck/authkit/internal/audit"
)

const securityEventKeyPrefix = "secevent"

// Monitor is the heuristic security layer. Detection is advisory: it
// reads session state and reports, it never blocks or revokes anything
// itself. Obtain one from [Engine.Monitor].
type Monitor struct {
	engine *Engine
}

// Monitor returns the engine's security monitor.
func (e *Engine) Monitor() *Monitor {
	if e == nil {
		return nil
	}
	return e.monitor
}

// DetectDeviceChange compares the presented device against the device
// captured when the session was created. Any mismatch in device id, IP,
// or user-agent reports true. Read-only against the registry.
func (m *Monitor) DetectDeviceChange(ctx context.Context, sessionID string, current DeviceInfo) (bool, error) {
	if m == nil || m.engine == nil {
		return false, ErrNotBuilt
	}
	e := m.engine

	rec, err := e.registry.GetBySessionID(ctx, sessionID)
	if err != nil {
		return false, e.sessionError(err)
	}

	changed := rec.DeviceID != current.DeviceID ||
		rec.IP != current.IP ||
		rec.UserAgent != current.UserAgent
	if changed {
		e.metricInc(MetricDeviceChange)
		e.emitAudit(ctx, auditEventDeviceChange, true, rec.UserID, sessionID, nil, func() map[string]string {
			meta := map[string]string{}
			if rec.DeviceID != current.DeviceID {
				meta["device_id_changed"] = "1"
			}
			if rec.IP != current.IP {
				meta["ip_changed"] = "1"
			}
			if rec.UserAgent != current.UserAgent {
				meta["user_agent_changed"] = "1"
			}
			return meta
		})
	}

	return changed, nil
}

// DetectSuspiciousActivity runs the heuristic battery for a user: an
// automation-flavored user-agent, a malformed IP, a coarse network-prefix
// change against the most recent session (loopback traffic excluded), or
// session-creation velocity above the configured threshold. Advisory
// only; store trouble degrades a heuristic to not-fired rather than
// failing the call.
func (m *Monitor) DetectSuspiciousActivity(ctx context.Context, userID string, device *DeviceInfo) SuspicionReport {
	if m == nil || m.engine == nil {
		return SuspicionReport{}
	}
	e := m.engine
	dev := e.resolveDevice(ctx, device)

	var report SuspicionReport
	report.AutomatedUserAgent = matchesAutomationUA(dev.UserAgent, e.config.Security.AutomationUAPatterns)

	var current netip.Addr
	currentValid := false
	if dev.IP != "" {
		addr, err := netip.ParseAddr(dev.IP)
		if err != nil {
			report.MalformedIP = true
		} else {
			current = addr
			currentValid = true
		}
	}

	if currentValid && !current.IsLoopback() {
		if sessions, err := e.registry.ListForUser(ctx, userID); err == nil && len(sessions) > 0 {
			report.NetworkChange = networkChanged(current, sessions[0].IP)
		}
	}

	if e.limiter != nil {
		if n, err := e.limiter.RecentCreations(ctx, userID); err == nil && n > e.config.Security.VelocityThreshold {
			report.HighVelocity = true
		}
	}

	report.Suspicious = report.AutomatedUserAgent || report.MalformedIP ||
		report.NetworkChange || report.HighVelocity

	if report.Suspicious {
		e.metricInc(MetricSuspicionFlagged)
		e.emitAudit(ctx, auditEventSuspiciousActivity, true, userID, "", nil, func() map[string]string {
			meta := map[string]string{}
			if report.AutomatedUserAgent {
				meta["automated_user_agent"] = "1"
			}
			if report.MalformedIP {
				meta["malformed_ip"] = "1"
			}
			if report.NetworkChange {
				meta["network_change"] = "1"
			}
			if report.HighVelocity {
				meta["high_velocity"] = "1"
			}
			return meta
		})
	}

	return report
}

// LogSecurityEvent persists one event to the Redis event log under
// secevent:{userId}:{eventID} with the configured retention. Write
// failures are swallowed: logging must never abort the operation that
// produced the event.
func (m *Monitor) LogSecurityEvent(ctx context.Context, event SecurityEvent) {
	if m == nil || m.engine == nil {
		return
	}
	e := m.engine

	if !e.storeSecurityEvent(ctx, &event) {
		return
	}
	e.emitAudit(ctx, auditEventSecurityEventLogged, true, event.UserID, event.SessionID, nil, func() map[string]string {
		return map[string]string{
			"event_type": event.EventType,
		}
	})
}

// recordSecurityEvent is the engine-internal emission path used by
// session lifecycle operations. Same storage, same swallow-on-failure
// contract, but without the security_event_logged audit entry that the
// public logging operation adds.
func (e *Engine) recordSecurityEvent(ctx context.Context, eventType, userID, sessionID string, metadata map[string]string) {
	event := SecurityEvent{
		EventType: eventType,
		UserID:    userID,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		DeviceID:  deviceIDFromContext(ctx),
		Metadata:  metadata,
	}
	e.storeSecurityEvent(ctx, &event)
}

func (e *Engine) storeSecurityEvent(ctx context.Context, event *SecurityEvent) bool {
	if e == nil || e.secLog == nil {
		return false
	}
	if event.EventID == "" {
		event.EventID = internalaudit.NewEventID()
	}
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	if err := e.secLog.store(ctx, event); err != nil {
		return false
	}
	e.metricInc(MetricSecurityEventLogged)
	return true
}

type securityEventLog struct {
	redis redis.UniversalClient
	ttl   time.Duration
}

func (l *securityEventLog) store(ctx context.Context, event *SecurityEvent) error {
	if l == nil || l.redis == nil {
		return ErrNotBuilt
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	key := securityEventKeyPrefix + ":" + event.UserID + ":" + event.EventID
	return l.redis.Set(ctx, key, data, l.ttl).Err()
}

func matchesAutomationUA(userAgent string, patterns []string) bool {
	if userAgent == "" {
		return false
	}
	lower := strings.ToLower(userAgent)
	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(pattern)) {
			return true
		}
	}
	return false
}

// networkChanged reports whether two addresses sit in different coarse
// network prefixes. An unparsable or loopback previous address never
// counts as a change.
func networkChanged(current netip.Addr, previousIP string) bool {
	if previousIP == "" {
		return false
	}
	previous, err := netip.ParseAddr(previousIP)
	if err != nil || previous.IsLoopback() {
		return false
	}
	return coarsePrefix(current) != coarsePrefix(previous)
}

// coarsePrefix is /24 for IPv4 and /64 for IPv6: wide enough that DHCP
// churn inside one network does not flag, narrow enough that a different
// network does.
func coarsePrefix(addr netip.Addr) netip.Prefix {
	addr = addr.Unmap()
	bits := 64
	if addr.Is4() {
		bits = 24
	}
	prefix, err := addr.Prefix(bits)
	if err != nil {
		return netip.Prefix{}
	}
	return prefix
}
