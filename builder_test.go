package authkit

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestBuildRequiresRedis(t *testing.T) {
	_, err := New().WithConfig(testConfig()).Build()
	if err == nil || !strings.Contains(err.Error(), "redis client required") {
		t.Fatalf("Build without redis = %v, want redis client error", err)
	}
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()
	defer rdb.Close()

	cfg := testConfig()
	cfg.Tokens.Secret = nil
	if _, err := New().WithConfig(cfg).WithRedis(rdb).Build(); !errors.Is(err, ErrConfig) {
		t.Fatalf("Build with missing secret = %v, want ErrConfig", err)
	}

	cfg = testConfig()
	cfg.Sessions.RefreshTTL = cfg.Tokens.AccessTTL
	if _, err := New().WithConfig(cfg).WithRedis(rdb).Build(); !errors.Is(err, ErrConfig) {
		t.Fatalf("Build with RefreshTTL <= AccessTTL = %v, want ErrConfig", err)
	}
}

func TestBuilderIsSingleUse(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()
	defer rdb.Close()

	b := New().WithConfig(testConfig()).WithRedis(rdb)
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("first Build failed: %v", err)
	}
	defer engine.Close()

	if _, err := b.Build(); err == nil || !strings.Contains(err.Error(), "already used") {
		t.Fatalf("second Build = %v, want already-used error", err)
	}
}

func TestWithConfigIsolatesCallerMutations(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	defer mr.Close()
	defer rdb.Close()

	cfg := testConfig()
	b := New().WithConfig(cfg).WithRedis(rdb)

	// Zero the caller's secret after handing it over. The builder must
	// have captured its own copy.
	for i := range cfg.Tokens.Secret {
		cfg.Tokens.Secret[i] = 0
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	manual := signManualAccess(t, testConfig(), nil)
	if _, err := engine.ValidateAccess(ctx, manual); err != nil {
		t.Fatalf("builder kept a reference to the caller's secret: %v", err)
	}
}

func TestNilAndUnbuiltEngineGuards(t *testing.T) {
	ctx := context.Background()

	var engine *Engine
	if _, err := engine.StartSession(ctx, testIdentity(), nil); !errors.Is(err, ErrNotBuilt) {
		t.Fatalf("nil engine StartSession = %v, want ErrNotBuilt", err)
	}
	if _, err := engine.ValidateAccess(ctx, "token"); !errors.Is(err, ErrNotBuilt) {
		t.Fatalf("nil engine ValidateAccess = %v, want ErrNotBuilt", err)
	}
	if engine.Monitor() != nil {
		t.Fatal("nil engine should have no monitor")
	}
	if n := engine.AuditDropped(); n != 0 {
		t.Fatalf("nil engine AuditDropped = %d, want 0", n)
	}
	snap := engine.MetricsSnapshot()
	if snap.Counters == nil || snap.Histograms == nil {
		t.Fatal("nil engine snapshot should carry empty, non-nil maps")
	}
	engine.Close()

	// A zero value never went through Build.
	zero := &Engine{}
	if _, err := zero.GetSession(ctx, "sid-1"); !errors.Is(err, ErrNotBuilt) {
		t.Fatalf("zero engine GetSession = %v, want ErrNotBuilt", err)
	}
	var monitor *Monitor
	if _, err := monitor.DetectDeviceChange(ctx, "sid-1", DeviceInfo{}); !errors.Is(err, ErrNotBuilt) {
		t.Fatalf("nil monitor DetectDeviceChange = %v, want ErrNotBuilt", err)
	}
}
