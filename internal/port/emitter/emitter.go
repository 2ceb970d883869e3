// Package emitter defines the port for delivering stream notifications to
// subscribers.
package emitter

import "context"

// Emitter is the subscriber sink for stream notifications. The orchestrator
// only emits; it never subscribes through this port. Implementations must
// not block turn delivery on slow subscribers.
type Emitter interface {
	// Emit delivers a typed notification to all subscribers of the kind.
	Emit(ctx context.Context, kind string, payload any)
}

// Func adapts a function to the Emitter interface.
type Func func(ctx context.Context, kind string, payload any)

// Emit calls f.
func (f Func) Emit(ctx context.Context, kind string, payload any) { f(ctx, kind, payload) }

// Multi fans one notification out to several emitters in order.
type Multi []Emitter

// Emit delivers the notification to every emitter in the group.
func (m Multi) Emit(ctx context.Context, kind string, payload any) {
	for _, e := range m {
		e.Emit(ctx, kind, payload)
	}
}
