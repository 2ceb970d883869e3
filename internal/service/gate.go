package service

import (
	"context"
	"sync"
)

// StartGate is a one-shot, per-workspace coordination primitive that lets an
// external caller hold back the beginning of a stream until released. A
// release that arrives before any wait is remembered so the next wait passes
// straight through.
type StartGate struct {
	mu       sync.Mutex
	released map[string]struct{}
	waiters  map[string]chan struct{}
}

// NewStartGate creates an empty gate set.
func NewStartGate() *StartGate {
	return &StartGate{
		released: make(map[string]struct{}),
		waiters:  make(map[string]chan struct{}),
	}
}

// Release opens the workspace's gate. If a wait is pending it is woken;
// otherwise the release is remembered for the next wait (one-shot).
func (g *StartGate) Release(workspaceID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if ch, ok := g.waiters[workspaceID]; ok {
		delete(g.waiters, workspaceID)
		close(ch)
		return
	}
	g.released[workspaceID] = struct{}{}
}

// Wait blocks until the workspace's gate is released or ctx is done,
// whichever comes first. It returns in both cases; callers that care about
// cancellation check ctx.Err afterward, mirroring how an aborted turn is a
// normal outcome rather than an error.
func (g *StartGate) Wait(ctx context.Context, workspaceID string) {
	g.mu.Lock()
	if _, ok := g.released[workspaceID]; ok {
		delete(g.released, workspaceID)
		g.mu.Unlock()
		return
	}
	ch, ok := g.waiters[workspaceID]
	if !ok {
		ch = make(chan struct{})
		g.waiters[workspaceID] = ch
	}
	g.mu.Unlock()

	select {
	case <-ch:
	case <-ctx.Done():
		g.mu.Lock()
		// Drop the waiter only if it is still ours; a concurrent Release
		// may already have consumed it.
		if cur, ok := g.waiters[workspaceID]; ok && cur == ch {
			delete(g.waiters, workspaceID)
		}
		g.mu.Unlock()
	}
}
