package apiclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrUnauthenticated is returned when the credential expired and could not be
// refreshed. Callers should send the user back to login.
var ErrUnauthenticated = errors.New("unauthenticated")

var errNoRefreshToken = errors.New("no refresh token")

// Tokens is the credential pair held by a client process.
type Tokens struct {
	Access  string
	Refresh string
}

// Refresher exchanges the stored pair for a fresh one.
type Refresher func(ctx context.Context, current Tokens) (Tokens, error)

// Attempt sends one request with the given access token. It reports expired
// when the server rejected the credential itself.
type Attempt func(ctx context.Context, accessToken string) (expired bool, err error)

type refreshResult struct {
	access string
	err    error
}

// Gate serializes credential refreshes. When many requests discover an
// expired token at once, exactly one refresh runs and every request replays
// once with its result. A failed refresh fails the whole waiting cohort.
type Gate struct {
	mu         sync.Mutex
	tokens     Tokens
	refreshing bool
	waiters    []chan refreshResult

	refresher         Refresher
	onUnauthenticated func(error)
}

// NewGate builds a gate around the refresh call.
func NewGate(refresher Refresher) *Gate {
	return &Gate{refresher: refresher}
}

// OnUnauthenticated registers a hook fired once per failed refresh, including
// an expiry with no refresh token to exchange.
func (g *Gate) OnUnauthenticated(fn func(error)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onUnauthenticated = fn
}

// SetTokens stores a new credential pair, typically after login.
func (g *Gate) SetTokens(t Tokens) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tokens = t
}

// Tokens returns the current credential pair.
func (g *Gate) Tokens() Tokens {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tokens
}

// Clear drops both credentials.
func (g *Gate) Clear() {
	g.SetTokens(Tokens{})
}

// Do runs attempt with the current access token. On an expired credential it
// waits for a single shared refresh and replays attempt exactly once. The
// replay never triggers another refresh.
func (g *Gate) Do(ctx context.Context, attempt Attempt) error {
	stale := g.Tokens().Access
	expired, err := attempt(ctx, stale)
	if !expired {
		return err
	}

	fresh, refreshErr := g.await(ctx, stale)
	if refreshErr != nil {
		return refreshErr
	}
	_, err = attempt(ctx, fresh)
	return err
}

func (g *Gate) await(ctx context.Context, stale string) (string, error) {
	g.mu.Lock()
	if g.tokens.Access != "" && g.tokens.Access != stale {
		// Another request already refreshed after ours was sent.
		current := g.tokens.Access
		g.mu.Unlock()
		return current, nil
	}
	if g.refreshing {
		ch := make(chan refreshResult, 1)
		g.waiters = append(g.waiters, ch)
		g.mu.Unlock()
		select {
		case res := <-ch:
			return res.access, res.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if g.tokens.Refresh == "" {
		// Nothing to refresh with; the session is over just as if a refresh
		// had been rejected.
		g.mu.Unlock()
		return g.settle(Tokens{}, errNoRefreshToken)
	}
	g.refreshing = true
	current := g.tokens
	g.mu.Unlock()

	// The refresh serves the whole cohort, so one caller giving up must not
	// cancel it.
	fresh, err := g.refresher(context.WithoutCancel(ctx), current)
	if err == nil && fresh.Access == "" {
		err = errors.New("refresh returned an empty access token")
	}
	return g.settle(fresh, err)
}

// settle publishes a refresh outcome: it stores the new pair or clears the
// credentials, wakes every waiter, and fires the unauthenticated hook on
// failure.
func (g *Gate) settle(fresh Tokens, err error) (string, error) {
	g.mu.Lock()
	waiters := g.waiters
	g.waiters = nil
	g.refreshing = false
	hook := g.onUnauthenticated
	if err != nil {
		g.tokens = Tokens{}
	} else {
		g.tokens = fresh
	}
	g.mu.Unlock()

	res := refreshResult{access: fresh.Access}
	if err != nil {
		res = refreshResult{err: fmt.Errorf("%w: %v", ErrUnauthenticated, err)}
	}
	for _, ch := range waiters {
		ch <- res
	}
	if err != nil && hook != nil {
		hook(err)
	}
	return res.access, res.err
}
