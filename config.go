package authkit

import (
	"errors"
	"strings"
	"time"
)

// Config is the single configuration surface for the engine. Populate it
// once, pass it to the Builder, and treat it as immutable afterwards: Build
// takes a deep copy, so later mutations never reach a running engine.
type Config struct {
	Tokens   TokenConfig
	Sessions SessionConfig
	Security SecurityConfig
	Cleanup  CleanupConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig controls access-token issuance and verification. Secret,
// Issuer, and Audience are mandatory; Build fails without them.
type TokenConfig struct {
	AccessTTL  time.Duration
	Secret     []byte
	Issuer     string
	Audience   string
	Leeway     time.Duration
	RequireIAT bool

	// KeyID and VerifyKeys support secret rotation: KeyID stamps new
	// tokens, VerifyKeys maps every still-accepted kid to its secret.
	KeyID      string
	VerifyKeys map[string][]byte
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls the Redis session registry.
type SessionConfig struct {
	// RedisPrefix namespaces registry keys: {prefix}:{userID}:{sessionID}.
	RedisPrefix string

	// RefreshTTL is the session lifetime and therefore the refresh-token
	// lifetime. Activity touches never extend it.
	RefreshTTL time.Duration

	// MaxSessionsPerUser caps live sessions per user. Creation beyond the
	// cap fails hard; nothing is evicted.
	MaxSessionsPerUser int
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig tunes the refresh throttle and the security monitor
// heuristics. The monitor is advisory: nothing here blocks a login.
type SecurityConfig struct {
	ProductionMode bool

	EnableRefreshThrottle   bool
	MaxRefreshAttempts      int
	RefreshCooldownDuration time.Duration

	// AutomationUAPatterns are lowercase substrings matched against the
	// presented user-agent by the suspicion heuristic.
	AutomationUAPatterns []string

	// VelocityThreshold sessions created within VelocityWindow flags the
	// user as suspicious.
	VelocityWindow    time.Duration
	VelocityThreshold int

	// SecurityEventTTL is the retention of the Redis security-event log.
	SecurityEventTTL time.Duration
}

/*
====================================
CLEANUP CONFIG
====================================
*/

// CleanupConfig holds sweep defaults. Scheduling the sweeps is the
// embedding application's concern.
type CleanupConfig struct {
	// InactivityThreshold is used by SweepInactive when the caller passes
	// a non-positive threshold.
	InactivityThreshold time.Duration
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig controls the in-process counters and histograms.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULTS
====================================
*/

// DefaultConfig returns the baseline configuration. Secret, Issuer, and
// Audience still have to be supplied by the caller.
func DefaultConfig() Config {
	return Config{
		Tokens: TokenConfig{
			AccessTTL:  15 * time.Minute,
			Leeway:     30 * time.Second,
			RequireIAT: true,
		},
		Sessions: SessionConfig{
			RedisPrefix:        "session",
			RefreshTTL:         7 * 24 * time.Hour,
			MaxSessionsPerUser: 5,
		},
		Security: SecurityConfig{
			ProductionMode:          false,
			EnableRefreshThrottle:   true,
			MaxRefreshAttempts:      20,
			RefreshCooldownDuration: time.Minute,
			AutomationUAPatterns: []string{
				"bot", "crawler", "spider", "curl", "wget",
				"python-requests", "scrapy", "headless",
			},
			VelocityWindow:    5 * time.Minute,
			VelocityThreshold: 5,
			SecurityEventTTL:  7 * 24 * time.Hour,
		},
		Cleanup: CleanupConfig{
			InactivityThreshold: 30 * 24 * time.Hour,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Tokens.Secret = cloneBytes(cfg.Tokens.Secret)
	if len(cfg.Tokens.VerifyKeys) > 0 {
		keys := make(map[string][]byte, len(cfg.Tokens.VerifyKeys))
		for kid, key := range cfg.Tokens.VerifyKeys {
			keys[kid] = cloneBytes(key)
		}
		out.Tokens.VerifyKeys = keys
	}
	if len(cfg.Security.AutomationUAPatterns) > 0 {
		patterns := make([]string, len(cfg.Security.AutomationUAPatterns))
		copy(patterns, cfg.Security.AutomationUAPatterns)
		out.Security.AutomationUAPatterns = patterns
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks the whole configuration and returns the first problem
// found. Build calls it, so a misconfigured engine never starts.
func (c *Config) Validate() error {
	// Tokens
	if c.Tokens.AccessTTL <= 0 {
		return errors.New("Tokens AccessTTL must be > 0")
	}
	if len(c.Tokens.Secret) == 0 {
		return errors.New("Tokens Secret is required")
	}
	if strings.TrimSpace(c.Tokens.Issuer) == "" {
		return errors.New("Tokens Issuer is required")
	}
	if strings.TrimSpace(c.Tokens.Audience) == "" {
		return errors.New("Tokens Audience is required")
	}
	if c.Tokens.Leeway < 0 || c.Tokens.Leeway > 2*time.Minute {
		return errors.New("Tokens Leeway must be within [0, 2m]")
	}
	for kid, key := range c.Tokens.VerifyKeys {
		if strings.TrimSpace(kid) == "" {
			return errors.New("Tokens VerifyKeys contains an empty kid")
		}
		if len(key) == 0 {
			return errors.New("Tokens VerifyKeys contains an empty secret")
		}
	}

	// Sessions
	if strings.TrimSpace(c.Sessions.RedisPrefix) == "" {
		return errors.New("Sessions RedisPrefix must not be blank")
	}
	if strings.ContainsAny(c.Sessions.RedisPrefix, ": *?[]") {
		return errors.New("Sessions RedisPrefix must not contain separators or glob characters")
	}
	if c.Sessions.RefreshTTL <= 0 {
		return errors.New("Sessions RefreshTTL must be > 0")
	}
	if c.Sessions.RefreshTTL <= c.Tokens.AccessTTL {
		return errors.New("Sessions RefreshTTL must exceed Tokens AccessTTL")
	}
	if c.Sessions.MaxSessionsPerUser < 1 {
		return errors.New("Sessions MaxSessionsPerUser must be >= 1")
	}

	// Security
	if c.Security.EnableRefreshThrottle {
		if c.Security.MaxRefreshAttempts < 1 {
			return errors.New("Security MaxRefreshAttempts must be >= 1 when throttling")
		}
		if c.Security.RefreshCooldownDuration <= 0 {
			return errors.New("Security RefreshCooldownDuration must be > 0 when throttling")
		}
	}
	if c.Security.VelocityWindow <= 0 {
		return errors.New("Security VelocityWindow must be > 0")
	}
	if c.Security.VelocityThreshold < 1 {
		return errors.New("Security VelocityThreshold must be >= 1")
	}
	if c.Security.SecurityEventTTL <= 0 {
		return errors.New("Security SecurityEventTTL must be > 0")
	}

	// Cleanup
	if c.Cleanup.InactivityThreshold <= 0 {
		return errors.New("Cleanup InactivityThreshold must be > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	if c.Security.ProductionMode {
		if c.Tokens.AccessTTL > 15*time.Minute {
			return errors.New("ProductionMode requires Tokens AccessTTL <= 15m")
		}
		if c.Sessions.RefreshTTL > 30*24*time.Hour {
			return errors.New("ProductionMode requires Sessions RefreshTTL <= 30d")
		}
		if len(c.Tokens.Secret) < 32 {
			return errors.New("ProductionMode requires Tokens Secret length >= 256 bits")
		}
		if !c.Security.EnableRefreshThrottle {
			return errors.New("ProductionMode requires the refresh throttle")
		}
		if !c.Audit.Enabled {
			return errors.New("ProductionMode requires Audit to be enabled")
		}
	}

	return nil
}
