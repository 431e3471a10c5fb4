package dispatch

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// countingRefresher hands out tok-1, tok-2, ... and holds each exchange
// open long enough for concurrent callers to pile up behind it.
func countingRefresher(n *atomic.Int32) Refresher {
	return RefresherFunc(func(context.Context) (string, error) {
		id := n.Add(1)
		time.Sleep(20 * time.Millisecond)
		return "tok-" + strconv.Itoa(int(id)), nil
	})
}

func runConcurrently(n int, fn func() (string, error)) ([]string, error) {
	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		toks  = make([]string, n)
		errs  = make([]error, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			toks[i], errs[i] = fn()
		}(i)
	}
	close(start)
	wg.Wait()
	return toks, errors.Join(errs...)
}

func TestSessionConcurrentInitAndRefresh(t *testing.T) {
	var exchanges atomic.Int32
	s := NewSession(SessionConfig{RealmID: "realm", Credentials: countingRefresher(&exchanges)})
	ctx := context.Background()
	const callers = 16

	toks, err := runConcurrently(callers, func() (string, error) {
		c, err := s.Snapshot(ctx)
		return c.Token, err
	})
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if got := exchanges.Load(); got != 1 {
		t.Fatalf("init exchanged %d times, want 1", got)
	}
	for _, tok := range toks {
		if tok != "tok-1" {
			t.Fatalf("snapshot token = %q, want tok-1", tok)
		}
	}

	toks, err = runConcurrently(callers, func() (string, error) {
		return s.Refresh(ctx, "tok-1")
	})
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if got := exchanges.Load(); got != 2 {
		t.Fatalf("refresh of one stale token exchanged %d times in total, want 2", got)
	}
	for _, tok := range toks {
		if tok != "tok-2" {
			t.Fatalf("refreshed token = %q, want tok-2", tok)
		}
	}

	// A caller still holding the first token gets the current one back.
	tok, err := s.Refresh(ctx, "tok-1")
	if err != nil || tok != "tok-2" || exchanges.Load() != 2 {
		t.Fatalf("late stale refresh = %q, %v after %d exchanges", tok, err, exchanges.Load())
	}
}

func TestSessionInitMissingCredentials(t *testing.T) {
	s := NewSession(SessionConfig{Missing: []string{"QUICKBOOKS_CLIENT_ID"}})
	_, err := s.Snapshot(context.Background())
	var ue *UninitializedSessionError
	if !errors.As(err, &ue) || len(ue.Missing) != 1 {
		t.Fatalf("expected uninitialized session error, got %v", err)
	}
	if s.Ready() {
		t.Fatal("session should not be ready")
	}
}
