package service

import (
	"sort"
	"sync"
	"testing"
	"time"
)

// fakeClock drives timers on virtual time. Advance fires due callbacks
// synchronously, in due order, with creation order as tiebreak.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	nextID int
	timers []*fakeTimer
}

type fakeTimer struct {
	clock *fakeClock
	id    int
	due   time.Time
	fn    func()
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, id: c.nextID, due: c.now.Add(d), fn: f}
	c.nextID++
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	for i, cur := range t.clock.timers {
		if cur == t {
			t.clock.timers = append(t.clock.timers[:i], t.clock.timers[i+1:]...)
			return true
		}
	}
	return false
}

// Advance moves virtual time forward, firing each due timer at its own due
// time. Callbacks run on the caller's goroutine without the clock lock held.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	deadline := c.now.Add(d)
	for {
		var next *fakeTimer
		for _, t := range c.timers {
			if t.due.After(deadline) {
				continue
			}
			if next == nil || t.due.Before(next.due) || (t.due.Equal(next.due) && t.id < next.id) {
				next = t
			}
		}
		if next == nil {
			break
		}
		for i, cur := range c.timers {
			if cur == next {
				c.timers = append(c.timers[:i], c.timers[i+1:]...)
				break
			}
		}
		if next.due.After(c.now) {
			c.now = next.due
		}
		c.mu.Unlock()
		next.fn()
		c.mu.Lock()
	}
	c.now = deadline
	c.mu.Unlock()
}

func (c *fakeClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// pendingDelays reports the due offsets of armed timers, sorted, for
// schedule assertions.
func (c *fakeClock) pendingDelays(from time.Time) []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, 0, len(c.timers))
	for _, t := range c.timers {
		out = append(out, t.due.Sub(from))
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}
