package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// ErrUnauthorized signals an authorization-expired response. Call
// functions return it (or wrap it) to ask the Coordinator for a refresh.
var ErrUnauthorized = errors.New("unauthorized")

// ErrThrottled is returned when the local pacing limiter denies an
// exchange attempt. The exchange function is not invoked.
var ErrThrottled = errors.New("refresh throttled")

// ErrNoSession is returned when no refresh token is held, either because
// SetTokens was never called or because a failed exchange cleared the
// local state.
var ErrNoSession = errors.New("no session tokens held")

// TokenPair is the client-side result of one refresh exchange.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// ExchangeFunc performs one refresh exchange against the server: it
// presents the current refresh token and returns the replacement pair.
// The Coordinator guarantees at most one concurrent invocation.
type ExchangeFunc func(ctx context.Context, refreshToken string) (TokenPair, error)

// CallFunc issues one outbound request with the given access token.
type CallFunc func(ctx context.Context, accessToken string) error

// Config configures a Coordinator.
type Config struct {
	// Exchange performs the refresh. Required.
	Exchange ExchangeFunc

	// Limit bounds how often exchanges may be attempted. Zero disables
	// pacing.
	Limit rate.Limit

	// Burst is the pacing burst size. Values below 1 are treated as 1
	// when Limit is set.
	Burst int
}

// Coordinator serializes refresh exchanges for one client instance.
//
// The server invalidates a refresh token on use, so two parallel
// exchanges from the same client would have the second redeem an
// already-consumed token and fail. The Coordinator runs at most one
// exchange at a time; callers that hit an expired response while one is
// in flight wait for its outcome instead of starting their own.
type Coordinator struct {
	exchange ExchangeFunc
	limiter  *rate.Limiter

	mu         sync.Mutex
	refreshing bool
	waiters    []chan outcome
	access     string
	refresh    string
}

type outcome struct {
	access string
	err    error
}

// NewCoordinator creates a Coordinator around the given exchange.
func NewCoordinator(cfg Config) (*Coordinator, error) {
	if cfg.Exchange == nil {
		return nil, errors.New("exchange function is required")
	}

	c := &Coordinator{exchange: cfg.Exchange}
	if cfg.Limit > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(cfg.Limit, burst)
	}
	return c, nil
}

// SetTokens installs the pair obtained from the initial authentication.
func (c *Coordinator) SetTokens(access, refresh string) {
	c.mu.Lock()
	c.access = access
	c.refresh = refresh
	c.mu.Unlock()
}

// AccessToken returns the currently held access token, or "" when no
// session is held.
func (c *Coordinator) AccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.access
}

// Clear drops all locally held auth state.
func (c *Coordinator) Clear() {
	c.mu.Lock()
	c.access = ""
	c.refresh = ""
	c.mu.Unlock()
}

// Refresh coordinates one exchange and returns the new access token.
//
// If an exchange is already in flight the caller waits for its outcome
// and shares it. Otherwise the caller becomes the leader: it runs the
// exchange, installs the new pair on success, and on failure clears all
// local auth state (forced logout) and hands every waiter the same
// error. A waiter whose ctx ends stops waiting; the flight itself is
// not cancelled.
func (c *Coordinator) Refresh(ctx context.Context) (string, error) {
	c.mu.Lock()

	if c.refreshing {
		ch := make(chan outcome, 1)
		c.waiters = append(c.waiters, ch)
		c.mu.Unlock()

		select {
		case out := <-ch:
			return out.access, out.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if c.refresh == "" {
		c.mu.Unlock()
		return "", ErrNoSession
	}
	if c.limiter != nil && !c.limiter.Allow() {
		c.mu.Unlock()
		return "", ErrThrottled
	}

	c.refreshing = true
	token := c.refresh
	c.mu.Unlock()

	return c.lead(ctx, token)
}

// lead runs the exchange and settles every waiter exactly once, even
// when the exchange panics.
func (c *Coordinator) lead(ctx context.Context, refreshToken string) (access string, err error) {
	settled := false
	defer func() {
		if r := recover(); r != nil {
			if !settled {
				c.settle(TokenPair{}, fmt.Errorf("refresh exchange panicked: %v", r))
			}
			panic(r)
		}
	}()

	// Waiters depend on this flight; a cancelled leader must not abort
	// it. Values (trace metadata) carry over, the deadline does not.
	pair, err := c.exchange(context.WithoutCancel(ctx), refreshToken)
	if err != nil {
		settled = true
		c.settle(TokenPair{}, err)
		return "", err
	}

	settled = true
	c.settle(pair, nil)
	return pair.AccessToken, nil
}

// settle installs or clears the pair, releases every waiter, and clears
// the in-flight flag, in that order and under one lock acquisition.
func (c *Coordinator) settle(pair TokenPair, err error) {
	c.mu.Lock()
	if err != nil {
		c.access = ""
		c.refresh = ""
	} else {
		c.access = pair.AccessToken
		c.refresh = pair.RefreshToken
	}
	waiters := c.waiters
	c.waiters = nil
	c.refreshing = false
	c.mu.Unlock()

	out := outcome{access: pair.AccessToken, err: err}
	for _, ch := range waiters {
		ch <- out
	}
}

// Do runs call with the current access token. On an unauthorized
// response it obtains a fresh token, through the shared flight when one
// is already running, and retries exactly once.
func (c *Coordinator) Do(ctx context.Context, call CallFunc) error {
	used := c.AccessToken()

	err := call(ctx, used)
	if !errors.Is(err, ErrUnauthorized) {
		return err
	}

	// Another flight may have rotated the pair while this request was
	// on the wire. Use its result rather than forcing a second
	// exchange.
	if current := c.AccessToken(); current != "" && current != used {
		return call(ctx, current)
	}

	access, rerr := c.Refresh(ctx)
	if rerr != nil {
		return rerr
	}
	return call(ctx, access)
}
