//go:build integration
// +build integration

package test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tunedeck/authkit/session"
)

func TestRefreshRaceSingleWinner(t *testing.T) {
	ctx := context.Background()
	registry, _, cleanup := newIntegrationRegistry(t)
	defer cleanup()

	hash := hashByte(1)
	rec := makeRecord("u1", "sid-race", hash)
	if err := registry.Create(ctx, rec, time.Hour); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	const workers = 16
	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(workers)

	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			<-start
			_, err := registry.Redeem(ctx, "sid-race", hash, time.Now())
			results <- err
		}()
	}

	close(start)
	wg.Wait()
	close(results)

	success := 0
	for err := range results {
		switch {
		case err == nil:
			success++
		case errors.Is(err, session.ErrNotFound):
		default:
			t.Fatalf("unexpected redeem error: %v", err)
		}
	}

	if success != 1 {
		t.Fatalf("expected exactly one winner, got %d", success)
	}
}
