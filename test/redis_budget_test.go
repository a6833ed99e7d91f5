//go:build integration
// +build integration

package test

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/tunedeck/authkit/session"
)

// cmdCounter is a go-redis Hook that counts the number of Redis round-trips
// (individual commands and pipeline calls).
type cmdCounter struct {
	commands  atomic.Int64
	pipelines atomic.Int64
}

func (h *cmdCounter) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (h *cmdCounter) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		h.commands.Add(1)
		return next(ctx, cmd)
	}
}

func (h *cmdCounter) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		// Each pipeline call is one network round-trip regardless of command count.
		h.pipelines.Add(1)
		h.commands.Add(int64(len(cmds)))
		return next(ctx, cmds)
	}
}

func (h *cmdCounter) Reset() {
	h.commands.Store(0)
	h.pipelines.Store(0)
}

func (h *cmdCounter) Commands() int64  { return h.commands.Load() }
func (h *cmdCounter) Pipelines() int64 { return h.pipelines.Load() }

// newCountedRegistry creates a session.Registry backed by miniredis with a
// cmdCounter hook installed. Reset the counter before each measured operation.
func newCountedRegistry(t *testing.T) (*session.Registry, *redis.Client, *cmdCounter, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	counter := &cmdCounter{}
	rdb.AddHook(counter)

	// Warm the connection: go-redis may emit extra commands on first use
	// (handshake, AUTH, SELECT, CLIENT SETNAME, etc.). Issuing a PING
	// before measuring avoids counting that noise.
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("warmup ping: %v", err)
	}

	counter.Reset()

	registry := session.NewRegistry(rdb, "session", 5)
	return registry, rdb, counter, func() {
		_ = rdb.Close()
		mr.Close()
	}
}

// TestRedeemRedisBudget verifies that redeeming a refresh token costs one SCAN
// pass to resolve the key plus the Lua consume.
func TestRedeemRedisBudget(t *testing.T) {
	registry, _, counter, cleanup := newCountedRegistry(t)
	defer cleanup()

	ctx := context.Background()
	hash := hashByte(0x01)
	rec := makeRecord("uid-1", "sid-budget", hash)

	// Create is not the measured operation.
	if err := registry.Create(ctx, rec, time.Hour); err != nil {
		t.Fatalf("create: %v", err)
	}

	counter.Reset()

	if _, err := registry.Redeem(ctx, "sid-budget", hash, time.Now()); err != nil {
		t.Fatalf("redeem: %v", err)
	}

	// 1 SCAN (single cursor pass at this key count) + the script call.
	// go-redis may issue EVALSHA first, then fall back to EVAL on cache
	// miss, so the first redeem can cost one extra command.
	cmds := counter.Commands()
	if cmds > 3 {
		t.Errorf("Redeem used %d Redis commands; budget is ≤ 3 (SCAN + EVALSHA [+ EVAL fallback])", cmds)
	}
	t.Logf("Redeem: %d commands, %d pipelines", cmds, counter.Pipelines())
}

// TestDirectGetRedisBudget verifies that a Get with known owner is a single GET.
func TestDirectGetRedisBudget(t *testing.T) {
	registry, _, counter, cleanup := newCountedRegistry(t)
	defer cleanup()

	ctx := context.Background()
	rec := makeRecord("uid-2", "sid-get", hashByte(0xAA))
	if err := registry.Create(ctx, rec, time.Hour); err != nil {
		t.Fatalf("create: %v", err)
	}

	counter.Reset()

	if _, err := registry.Get(ctx, "uid-2", "sid-get"); err != nil {
		t.Fatalf("get: %v", err)
	}

	cmds := counter.Commands()
	if cmds > 1 {
		t.Errorf("Get used %d Redis commands; budget is 1 (GET)", cmds)
	}
	t.Logf("Get: %d commands, %d pipelines", cmds, counter.Pipelines())
}

// TestDeleteRedisBudget verifies that a targeted delete is a single DEL.
func TestDeleteRedisBudget(t *testing.T) {
	registry, _, counter, cleanup := newCountedRegistry(t)
	defer cleanup()

	ctx := context.Background()
	rec := makeRecord("uid-3", "sid-del", hashByte(0xBB))
	if err := registry.Create(ctx, rec, time.Hour); err != nil {
		t.Fatalf("create: %v", err)
	}

	counter.Reset()

	if _, err := registry.Delete(ctx, "uid-3", "sid-del"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	cmds := counter.Commands()
	if cmds > 1 {
		t.Errorf("Delete used %d Redis commands; budget is 1 (DEL)", cmds)
	}
	t.Logf("Delete: %d commands, %d pipelines", cmds, counter.Pipelines())
}

// TestCreateRedisBudget verifies that a session create is the cap-check SCAN
// plus one SET.
func TestCreateRedisBudget(t *testing.T) {
	registry, _, counter, cleanup := newCountedRegistry(t)
	defer cleanup()

	ctx := context.Background()
	rec := makeRecord("uid-4", "sid-create", hashByte(0xCC))

	counter.Reset()

	if err := registry.Create(ctx, rec, time.Hour); err != nil {
		t.Fatalf("create: %v", err)
	}

	// 1 SCAN pass for the cap check + 1 SET. More SCAN passes only appear
	// at key counts far beyond this test's.
	cmds := counter.Commands()
	if cmds > 2 {
		t.Errorf("Create used %d Redis commands; budget is ≤ 2 (SCAN + SET)", cmds)
	}
	t.Logf("Create: %d commands, %d pipelines", cmds, counter.Pipelines())
}

// TestTouchRedisBudget verifies the activity-touch cost: resolve, read,
// PTTL, rewrite.
func TestTouchRedisBudget(t *testing.T) {
	registry, _, counter, cleanup := newCountedRegistry(t)
	defer cleanup()

	ctx := context.Background()
	rec := makeRecord("uid-5", "sid-touch", hashByte(0xDD))
	if err := registry.Create(ctx, rec, time.Hour); err != nil {
		t.Fatalf("create: %v", err)
	}

	counter.Reset()

	if err := registry.Touch(ctx, "sid-touch", time.Now()); err != nil {
		t.Fatalf("touch: %v", err)
	}

	// SCAN + GET + PTTL + SET.
	cmds := counter.Commands()
	if cmds > 4 {
		t.Errorf("Touch used %d Redis commands; budget is ≤ 4 (SCAN + GET + PTTL + SET)", cmds)
	}
	t.Logf("Touch: %d commands, %d pipelines", cmds, counter.Pipelines())
}

// TestListForUserRedisBudget verifies that listing pipelines its reads: one
// SCAN pass plus a single pipeline round-trip regardless of session count.
func TestListForUserRedisBudget(t *testing.T) {
	registry, _, counter, cleanup := newCountedRegistry(t)
	defer cleanup()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		sid := "sid-list-" + string(rune('a'+i))
		rec := makeRecord("uid-6", sid, hashByte(byte(i+1)))
		if err := registry.Create(ctx, rec, time.Hour); err != nil {
			t.Fatalf("create %s: %v", sid, err)
		}
	}

	counter.Reset()

	records, err := registry.ListForUser(ctx, "uid-6")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 5 {
		t.Fatalf("expected 5 records, got %d", len(records))
	}

	if pipelines := counter.Pipelines(); pipelines > 1 {
		t.Errorf("ListForUser used %d pipeline round-trips; budget is 1", pipelines)
	}
	t.Logf("ListForUser: %d commands, %d pipelines", counter.Commands(), counter.Pipelines())
}
