//go:build integration
// +build integration

package test

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	authkit "github.com/tunedeck/authkit"
	"github.com/tunedeck/authkit/session"
)

func integrationConfig() authkit.Config {
	cfg := authkit.DefaultConfig()
	cfg.Tokens.Secret = []byte("integration-secret-integration-secret")
	cfg.Tokens.Issuer = "songsvc"
	cfg.Tokens.Audience = "songsvc-api"
	cfg.Metrics.Enabled = true
	return cfg
}

func newIntegrationRegistry(t *testing.T) (*session.Registry, *redis.Client, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	registry := session.NewRegistry(rdb, "session", 0)

	return registry, rdb, func() {
		_ = rdb.Close()
		mr.Close()
	}
}

func newIntegrationEngine(t *testing.T) (*authkit.Engine, *redis.Client, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	engine, err := authkit.New().WithConfig(integrationConfig()).WithRedis(rdb).Build()
	if err != nil {
		mr.Close()
		t.Fatalf("engine build failed: %v", err)
	}

	return engine, rdb, func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	}
}

func makeRecord(userID, sessionID string, refreshHash [32]byte) *session.Record {
	now := time.Now()

	return &session.Record{
		SessionID:     sessionID,
		UserID:        userID,
		Email:         userID + "@example.com",
		Name:          "Integration User",
		EmailVerified: true,
		RefreshHash:   refreshHash,
		DeviceID:      "dev-1",
		IP:            "192.0.2.10",
		UserAgent:     "integration-suite/1.0",
		CreatedAt:     now.UnixMilli(),
		ExpiresAt:     now.Add(time.Hour).UnixMilli(),
		LastActivity:  now.UnixMilli(),
		IsActive:      true,
	}
}

func hashByte(b byte) [32]byte {
	var h [32]byte
	for i := range h {
		h[i] = b
	}
	return h
}

func integrationIdentity(id string) authkit.Identity {
	return authkit.Identity{
		ID:            id,
		Email:         id + "@example.com",
		Name:          "Integration User",
		EmailVerified: true,
	}
}
