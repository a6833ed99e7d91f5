package test

import (
	"context"

	"github.com/redis/go-redis/v9"

	authkit "github.com/tunedeck/authkit"
)

// ExampleNew demonstrates engine construction with production-style dependencies.
func ExampleNew() {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})

	cfg := authkit.DefaultConfig()
	cfg.Tokens.Secret = []byte("replace-with-a-real-256-bit-secret")
	cfg.Tokens.Issuer = "songsvc"
	cfg.Tokens.Audience = "songsvc-api"

	engine, _ := authkit.New().
		WithConfig(cfg).
		WithRedis(rdb).
		Build()
	_ = engine
}

// ExampleEngine_StartSession shows a typical session start after the caller
// has verified credentials, with structured error handling.
func ExampleEngine_StartSession() {
	var engine *authkit.Engine
	identity := authkit.Identity{ID: "u-1", Email: "ana@example.com"}
	_, err := engine.StartSession(context.Background(), identity, nil)
	if err != nil {
		_ = err
	}
}

// ExampleEngine_Refresh shows the refresh-token exchange entrypoint.
func ExampleEngine_Refresh() {
	var engine *authkit.Engine
	_, err := engine.Refresh(context.Background(), "opaque-refresh-token")
	if err != nil {
		_ = err
	}
}

// ExampleEngine_MetricsSnapshot shows how to read in-process metrics counters.
func ExampleEngine_MetricsSnapshot() {
	var engine *authkit.Engine
	snapshot := engine.MetricsSnapshot()
	_ = snapshot
}
