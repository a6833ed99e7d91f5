package authkit

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestRefreshConcurrencySingleWinner(t *testing.T) {
	ctx := context.Background()
	engine, _, done := newTestEngine(t, testConfig())
	defer done()

	pair, err := engine.StartSession(ctx, testIdentity(), nil)
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)

	start := make(chan struct{})
	results := make(chan error, n)
	winners := make(chan *TokenPair, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			<-start
			next, err := engine.Refresh(context.Background(), pair.RefreshToken)
			if err == nil {
				winners <- next
			}
			results <- err
		}()
	}
	close(start)
	wg.Wait()
	close(results)
	close(winners)

	success := 0
	fail := 0
	for err := range results {
		if err == nil {
			success++
			continue
		}
		if errors.Is(err, ErrRefreshInvalid) {
			fail++
			continue
		}
		t.Fatalf("unexpected refresh error: %v", err)
	}

	if success != 1 {
		t.Fatalf("expected exactly one refresh success, got %d", success)
	}
	if fail != n-1 {
		t.Fatalf("expected %d refresh failures, got %d", n-1, fail)
	}

	// The winner holds the only live session for the user.
	winner := <-winners
	sessions, err := engine.UserSessions(ctx, "u-1")
	if err != nil {
		t.Fatalf("UserSessions failed: %v", err)
	}
	if len(sessions) != 1 || sessions[0].SessionID != winner.SessionID {
		t.Fatalf("expected exactly the winner's session to survive, got %+v", sessions)
	}
}
