package apiclient

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errRejected = errors.New("401")

// expiresUnless rejects every token except want.
func expiresUnless(want string) Attempt {
	return func(_ context.Context, token string) (bool, error) {
		if token != want {
			return true, errRejected
		}
		return false, nil
	}
}

func waitForWaiters(t *testing.T, g *Gate, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		g.mu.Lock()
		got := len(g.waiters)
		g.mu.Unlock()
		if got >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d waiters", n)
}

func TestGateCoalescesConcurrentRefreshes(t *testing.T) {
	const callers = 8
	var refreshes int32
	var g *Gate
	g = NewGate(func(ctx context.Context, current Tokens) (Tokens, error) {
		atomic.AddInt32(&refreshes, 1)
		assert.Equal(t, "refresh-1", current.Refresh)
		waitForWaiters(t, g, callers-1)
		return Tokens{Access: "new", Refresh: "refresh-2"}, nil
	})
	g.SetTokens(Tokens{Access: "old", Refresh: "refresh-1"})

	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = g.Do(context.Background(), expiresUnless("new"))
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&refreshes))
	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, Tokens{Access: "new", Refresh: "refresh-2"}, g.Tokens())
}

func TestGateRefreshFailureFailsWholeCohort(t *testing.T) {
	const callers = 4
	var hookCalls int32
	var g *Gate
	g = NewGate(func(ctx context.Context, current Tokens) (Tokens, error) {
		waitForWaiters(t, g, callers-1)
		return Tokens{}, errors.New("refresh denied")
	})
	g.OnUnauthenticated(func(error) { atomic.AddInt32(&hookCalls, 1) })
	g.SetTokens(Tokens{Access: "old", Refresh: "refresh-1"})

	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = g.Do(context.Background(), expiresUnless("new"))
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.ErrorIs(t, err, ErrUnauthenticated)
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&hookCalls))
	assert.Equal(t, Tokens{}, g.Tokens())
}

func TestGateReplayNeverRefreshesAgain(t *testing.T) {
	var refreshes int32
	g := NewGate(func(ctx context.Context, current Tokens) (Tokens, error) {
		atomic.AddInt32(&refreshes, 1)
		return Tokens{Access: "new", Refresh: "r2"}, nil
	})
	g.SetTokens(Tokens{Access: "old", Refresh: "r1"})

	attempts := 0
	err := g.Do(context.Background(), func(context.Context, string) (bool, error) {
		attempts++
		return true, errRejected
	})
	assert.ErrorIs(t, err, errRejected)
	assert.Equal(t, 2, attempts)
	assert.EqualValues(t, 1, atomic.LoadInt32(&refreshes))
}

func TestGateReplaysWithSupersededToken(t *testing.T) {
	g := NewGate(func(ctx context.Context, current Tokens) (Tokens, error) {
		t.Fatal("refresh must not run when a newer token exists")
		return Tokens{}, nil
	})
	g.SetTokens(Tokens{Access: "old", Refresh: "r1"})

	var seen []string
	err := g.Do(context.Background(), func(_ context.Context, token string) (bool, error) {
		seen = append(seen, token)
		if token == "old" {
			// Another request refreshed while this one was in flight.
			g.SetTokens(Tokens{Access: "newer", Refresh: "r2"})
			return true, errRejected
		}
		return false, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"old", "newer"}, seen)
}

func TestGateWithoutRefreshToken(t *testing.T) {
	g := NewGate(func(ctx context.Context, current Tokens) (Tokens, error) {
		t.Fatal("refresh must not run without a refresh token")
		return Tokens{}, nil
	})
	g.SetTokens(Tokens{Access: "expired"})
	var hookErrs []error
	g.OnUnauthenticated(func(err error) { hookErrs = append(hookErrs, err) })

	err := g.Do(context.Background(), expiresUnless("never"))
	assert.ErrorIs(t, err, ErrUnauthenticated)
	require.Len(t, hookErrs, 1)
	assert.ErrorIs(t, hookErrs[0], errNoRefreshToken)
	assert.Equal(t, Tokens{}, g.Tokens())
}

func TestGatePassesThroughOtherErrors(t *testing.T) {
	g := NewGate(nil)
	g.SetTokens(Tokens{Access: "a", Refresh: "r"})
	boom := errors.New("boom")
	err := g.Do(context.Background(), func(context.Context, string) (bool, error) { return false, boom })
	assert.ErrorIs(t, err, boom)
}
