package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds rate limiter tuning parameters.
type Config struct {
	EnableRefreshThrottle   bool
	MaxRefreshAttempts      int
	RefreshCooldownDuration time.Duration

	// VelocityWindow is the trailing window for the per-user
	// session-creation counter read by the security monitor.
	VelocityWindow time.Duration
}

// Limiter maintains Redis fixed-window counters: the per-session refresh
// throttle and the per-user session-creation velocity counter.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

func refreshKey(sessionID string) string {
	return "ar:" + sessionID
}

func velocityKey(userID string) string {
	return "asv:" + userID
}

// CheckRefresh counts a refresh attempt for the session and enforces the
// window budget. Every call is an attempt, successful or not, so a client
// hammering an invalid token burns through the same budget.
func (l *Limiter) CheckRefresh(ctx context.Context, sessionID string) error {
	if !l.config.EnableRefreshThrottle {
		return nil
	}

	count, err := l.incrementWithTTL(ctx, refreshKey(sessionID), l.config.RefreshCooldownDuration)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxRefreshAttempts) {
		return ErrRateLimited
	}

	return nil
}

// TrackSessionCreated bumps the user's creation counter for the current
// velocity window and returns the running count.
func (l *Limiter) TrackSessionCreated(ctx context.Context, userID string) (int64, error) {
	window := l.config.VelocityWindow
	if window <= 0 {
		window = 5 * time.Minute
	}
	return l.incrementWithTTL(ctx, velocityKey(userID), window)
}

// RecentCreations reads the user's creation counter without touching it.
// Missing keys read as zero.
func (l *Limiter) RecentCreations(ctx context.Context, userID string) (int, error) {
	count, err := l.redis.Get(ctx, velocityKey(userID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}
