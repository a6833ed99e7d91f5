//go:build integration
// +build integration

package test

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/tunedeck/authkit/session"
)

// redisMode describes which Redis backend the compatibility suite is running against.
type redisMode struct {
	name  string
	setup func(t *testing.T) (redis.UniversalClient, func())
}

// redisModes returns the set of Redis backends to test.
// miniredis is always available.
// Real Redis standalone is used when REDIS_ADDR is set (e.g. "127.0.0.1:6379").
func redisModes(t *testing.T) []redisMode {
	t.Helper()
	modes := []redisMode{
		{
			name: "miniredis",
			setup: func(t *testing.T) (redis.UniversalClient, func()) {
				t.Helper()
				mr, err := miniredis.Run()
				if err != nil {
					t.Fatalf("miniredis: %v", err)
				}
				rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
				return rdb, func() { _ = rdb.Close(); mr.Close() }
			},
		},
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		modes = append(modes, redisMode{
			name: "standalone:" + addr,
			setup: func(t *testing.T) (redis.UniversalClient, func()) {
				t.Helper()
				rdb := redis.NewClient(&redis.Options{Addr: addr})
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				if err := rdb.Ping(ctx).Err(); err != nil {
					t.Skipf("cannot connect to Redis at %s: %v", addr, err)
				}
				// Flush the test DB to avoid state leaking between runs.
				rdb.FlushDB(context.Background())
				return rdb, func() { rdb.FlushDB(context.Background()); _ = rdb.Close() }
			},
		})
	}

	// Sentinel mode: when REDIS_SENTINEL_ADDRS and REDIS_SENTINEL_MASTER are set.
	if addrs := os.Getenv("REDIS_SENTINEL_ADDRS"); addrs != "" {
		master := os.Getenv("REDIS_SENTINEL_MASTER")
		if master == "" {
			master = "mymaster"
		}
		modes = append(modes, redisMode{
			name: "sentinel",
			setup: func(t *testing.T) (redis.UniversalClient, func()) {
				t.Helper()
				rdb := redis.NewFailoverClient(&redis.FailoverOptions{
					MasterName:    master,
					SentinelAddrs: splitAddrs(addrs),
				})
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := rdb.Ping(ctx).Err(); err != nil {
					t.Skipf("cannot connect to Redis sentinel: %v", err)
				}
				rdb.FlushDB(context.Background())
				return rdb, func() { rdb.FlushDB(context.Background()); _ = rdb.Close() }
			},
		})
	}

	return modes
}

func splitAddrs(s string) []string {
	var addrs []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			addrs = append(addrs, a)
		}
	}
	return addrs
}

// TestRedisCompat_RedeemRotation validates that the Lua-based redeem works across backends.
func TestRedisCompat_RedeemRotation(t *testing.T) {
	for _, mode := range redisModes(t) {
		t.Run(mode.name, func(t *testing.T) {
			rdb, cleanup := mode.setup(t)
			defer cleanup()

			registry := session.NewRegistry(rdb, "session", 0)
			ctx := context.Background()

			hash := hashByte(0x01)
			rec := makeRecord("user1", "sid-rot", hash)
			if err := registry.Create(ctx, rec, time.Hour); err != nil {
				t.Fatalf("create: %v", err)
			}

			consumed, err := registry.Redeem(ctx, "sid-rot", hash, time.Now())
			if err != nil {
				t.Fatalf("redeem: %v", err)
			}
			if consumed.UserID != "user1" {
				t.Errorf("consumed record UserID=%q, want user1", consumed.UserID)
			}

			// Single use: redeeming the consumed token again must miss.
			if _, err := registry.Redeem(ctx, "sid-rot", hash, time.Now()); !errors.Is(err, session.ErrNotFound) {
				t.Errorf("expected ErrNotFound on second redeem, got %v", err)
			}
		})
	}
}

// TestRedisCompat_DeleteIdempotent validates delete idempotency across backends.
func TestRedisCompat_DeleteIdempotent(t *testing.T) {
	for _, mode := range redisModes(t) {
		t.Run(mode.name, func(t *testing.T) {
			rdb, cleanup := mode.setup(t)
			defer cleanup()

			registry := session.NewRegistry(rdb, "session", 0)
			ctx := context.Background()

			rec := makeRecord("user1", "sid-del", hashByte(0xAA))
			if err := registry.Create(ctx, rec, time.Hour); err != nil {
				t.Fatalf("create: %v", err)
			}

			removed, err := registry.Delete(ctx, "user1", "sid-del")
			if err != nil || !removed {
				t.Fatalf("first delete: removed=%v err=%v", removed, err)
			}
			removed, err = registry.Delete(ctx, "user1", "sid-del")
			if err != nil {
				t.Fatalf("second delete should be idempotent: %v", err)
			}
			if removed {
				t.Error("second delete should report nothing removed")
			}
		})
	}
}

// TestRedisCompat_SessionIDScan validates the sessionId-only pattern scan across backends.
func TestRedisCompat_SessionIDScan(t *testing.T) {
	for _, mode := range redisModes(t) {
		t.Run(mode.name, func(t *testing.T) {
			rdb, cleanup := mode.setup(t)
			defer cleanup()

			registry := session.NewRegistry(rdb, "session", 0)
			ctx := context.Background()

			rec := makeRecord("user1", "sid-scan", hashByte(0xBB))
			if err := registry.Create(ctx, rec, time.Hour); err != nil {
				t.Fatalf("create: %v", err)
			}

			got, err := registry.GetBySessionID(ctx, "sid-scan")
			if err != nil {
				t.Fatalf("get by session id: %v", err)
			}
			if got.UserID != "user1" {
				t.Errorf("got UserID=%q, want user1", got.UserID)
			}
			if got.SessionID != "sid-scan" {
				t.Errorf("got SessionID=%q, want sid-scan", got.SessionID)
			}
		})
	}
}

// TestRedisCompat_UserEnumeration validates per-user listing and bulk delete across backends.
func TestRedisCompat_UserEnumeration(t *testing.T) {
	for _, mode := range redisModes(t) {
		t.Run(mode.name, func(t *testing.T) {
			rdb, cleanup := mode.setup(t)
			defer cleanup()

			registry := session.NewRegistry(rdb, "session", 0)
			ctx := context.Background()

			for i := 0; i < 3; i++ {
				sid := "sid-enum-" + string(rune('a'+i))
				rec := makeRecord("user-enum", sid, hashByte(byte(i+1)))
				if err := registry.Create(ctx, rec, time.Hour); err != nil {
					t.Fatalf("create %s: %v", sid, err)
				}
			}

			records, err := registry.ListForUser(ctx, "user-enum")
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(records) != 3 {
				t.Errorf("expected 3 records, got %d", len(records))
			}

			removed, err := registry.DeleteAllForUser(ctx, "user-enum")
			if err != nil {
				t.Fatalf("delete all: %v", err)
			}
			if removed != 3 {
				t.Errorf("expected 3 removed, got %d", removed)
			}

			records, err = registry.ListForUser(ctx, "user-enum")
			if err != nil {
				t.Fatalf("list after delete all: %v", err)
			}
			if len(records) != 0 {
				t.Errorf("expected empty listing after bulk delete, got %d", len(records))
			}
		})
	}
}

// TestRedisCompat_TouchPreservesTTL validates that an activity touch keeps the
// remaining TTL across backends.
func TestRedisCompat_TouchPreservesTTL(t *testing.T) {
	for _, mode := range redisModes(t) {
		t.Run(mode.name, func(t *testing.T) {
			rdb, cleanup := mode.setup(t)
			defer cleanup()

			registry := session.NewRegistry(rdb, "session", 0)
			ctx := context.Background()

			rec := makeRecord("user-ttl", "sid-touch", hashByte(0x10))
			if err := registry.Create(ctx, rec, time.Hour); err != nil {
				t.Fatalf("create: %v", err)
			}

			if err := registry.Touch(ctx, "sid-touch", time.Now()); err != nil {
				t.Fatalf("touch: %v", err)
			}

			pttl, err := rdb.PTTL(ctx, "session:user-ttl:sid-touch").Result()
			if err != nil {
				t.Fatalf("pttl: %v", err)
			}
			if pttl <= 0 || pttl > time.Hour {
				t.Errorf("touch must preserve the remaining TTL, got %v", pttl)
			}
		})
	}
}
