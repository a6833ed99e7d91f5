package authkit

import (
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	internalaudit "github.com/tunedeck/authkit/internal/audit"
	"github.com/tunedeck/authkit/internal/rate"
	"github.com/tunedeck/authkit/jwt"
	"github.com/tunedeck/authkit/session"
)

// Builder assembles an [Engine]. Every dependency is injected here; the
// package holds no globals, so two engines with different configs can
// coexist in one process. A Builder is single-use.
type Builder struct {
	config    Config
	redis     redis.UniversalClient
	auditSink AuditSink

	built bool
}

// New returns a Builder seeded with [DefaultConfig]. The caller still has
// to supply the token secret, issuer, audience, and a Redis client.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the builder's configuration with a deep copy of
// cfg.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing the session registry, the
// refresh throttle, and the security-event log.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAuditSink sets the destination for audit events. Ignored unless
// Audit.Enabled is set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the access-token validation latency
// histogram. Implies nothing about Metrics.Enabled.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and constructs the engine. A
// misconfiguration fails here, wrapped in [ErrConfig], rather than
// surfacing later on a hot path.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:  cfg.Tokens.AccessTTL,
		Secret:     cfg.Tokens.Secret,
		Issuer:     cfg.Tokens.Issuer,
		Audience:   cfg.Tokens.Audience,
		Leeway:     cfg.Tokens.Leeway,
		RequireIAT: cfg.Tokens.RequireIAT,
		KeyID:      cfg.Tokens.KeyID,
		VerifyKeys: cfg.Tokens.VerifyKeys,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	engine := &Engine{
		config:     cfg,
		registry:   session.NewRegistry(b.redis, cfg.Sessions.RedisPrefix, cfg.Sessions.MaxSessionsPerUser),
		jwtManager: jm,
		metrics:    NewMetrics(cfg.Metrics),
		secLog: &securityEventLog{
			redis: b.redis,
			ttl:   cfg.Security.SecurityEventTTL,
		},
	}

	engine.limiter = rate.New(b.redis, rate.Config{
		EnableRefreshThrottle:   cfg.Security.EnableRefreshThrottle,
		MaxRefreshAttempts:      cfg.Security.MaxRefreshAttempts,
		RefreshCooldownDuration: cfg.Security.RefreshCooldownDuration,
		VelocityWindow:          cfg.Security.VelocityWindow,
	})
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)
	engine.monitor = &Monitor{engine: engine}

	b.built = true

	return engine, nil
}
