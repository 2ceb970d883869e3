package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	sfotel "github.com/Strob0t/StreamForge/internal/adapter/otel"
	"github.com/Strob0t/StreamForge/internal/domain"
	"github.com/Strob0t/StreamForge/internal/domain/history"
	"github.com/Strob0t/StreamForge/internal/domain/stream"
	"github.com/Strob0t/StreamForge/internal/domain/turn"
	"github.com/Strob0t/StreamForge/internal/port/emitter"
	"github.com/Strob0t/StreamForge/internal/port/historystore"
)

// startAckTimeout bounds how long Play waits to observe its own stream-start
// before returning. Expiry does not cancel the stream, only the caller's wait.
const startAckTimeout = 5 * time.Second

// AbortReasonUserCancelled is the reason attached to a stream-abort emitted
// by an explicit Stop.
const AbortReasonUserCancelled = "user_cancelled"

// Source produces one turn's logical content from conversation context.
type Source interface {
	Reply(messages []history.Message, latestUserText string) turn.Reply
}

// activeStream is the per-workspace streaming state. At most one exists per
// workspace; it is owned exclusively by the Player and guarded by Player.mu.
type activeStream struct {
	messageID       string
	historySequence int
	cancelled       bool
	timers          []Timer
	queue           []func()
	processing      bool
	startAck        chan struct{}
	startedAt       time.Time
	span            trace.Span
}

// PlayOptions tunes one Play call.
type PlayOptions struct {
	Model      string
	Mode       string
	ChunkChars int
	ChunkDelay time.Duration
}

// Player turns a workspace's pending turn into an ordered, timed event stream
// while keeping the persisted history in lockstep with what subscribers see.
// It enforces a single active stream per workspace: starting a new turn stops
// the previous one first.
type Player struct {
	store   historystore.Store
	sink    emitter.Emitter
	tokens  *TokenCounter
	source  Source
	gate    *StartGate
	clock   Clock
	model   string // default model when PlayOptions.Model is empty
	timeout time.Duration
	metrics *sfotel.Metrics

	mu         sync.Mutex
	active     map[string]*activeStream
	lastPrompt map[string][]history.Message

	nextMessageID atomic.Int64
}

// NewPlayer creates a Player. The default model is used when a Play call does
// not specify one.
func NewPlayer(store historystore.Store, sink emitter.Emitter, tokens *TokenCounter, source Source, defaultModel string) *Player {
	if defaultModel == "" {
		defaultModel = "default"
	}
	metrics, err := sfotel.NewMetrics()
	if err != nil {
		slog.Error("failed to create stream metrics, continuing without", "error", err)
	}
	return &Player{
		store:      store,
		sink:       sink,
		tokens:     tokens,
		source:     source,
		gate:       NewStartGate(),
		clock:      SystemClock(),
		model:      defaultModel,
		timeout:    startAckTimeout,
		metrics:    metrics,
		active:     make(map[string]*activeStream),
		lastPrompt: make(map[string][]history.Message),
	}
}

// Gate exposes the player's start gate so external coordinators can hold
// back or release the beginning of a stream.
func (p *Player) Gate() *StartGate { return p.gate }

// IsStreaming reports whether the workspace has an active stream.
func (p *Player) IsStreaming(workspaceID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active[workspaceID] != nil
}

// LastPrompt returns a copy of the message list most recently routed for the
// workspace, or nil if none.
func (p *Player) LastPrompt(workspaceID string) []history.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	if msgs, ok := p.lastPrompt[workspaceID]; ok {
		return history.CloneMessages(msgs)
	}
	return nil
}

// Replay is a no-op: delivered events are not replayable mid-stream; a new
// turn is a new, independent schedule.
func (p *Player) Replay(_ string) {}

// Stop cancels the workspace's active stream, if any: pending timers are
// cleared, the queue is dropped, and a stream-abort notification is emitted.
// Safe to call repeatedly and with no stream active.
func (p *Player) Stop(workspaceID string) {
	p.mu.Lock()
	a := p.active[workspaceID]
	if a == nil {
		p.mu.Unlock()
		return
	}
	a.cancelled = true
	messageID := a.messageID
	p.teardownLocked(workspaceID, a)
	p.mu.Unlock()

	p.abort(workspaceID, messageID)
}

// abort emits the stream-abort notification for a torn-down stream.
func (p *Player) abort(workspaceID, messageID string) {
	if p.metrics != nil {
		p.metrics.TurnsAborted.Add(context.Background(), 1)
	}
	p.emit(context.Background(), string(stream.KindStreamAbort), stream.AbortNotification{
		Type:        stream.KindStreamAbort,
		WorkspaceID: workspaceID,
		MessageID:   messageID,
		Reason:      AbortReasonUserCancelled,
	})
}

// Play routes the latest user message into a turn reply, appends the
// assistant placeholder, and schedules the turn's events for delivery. It
// returns once the stream-start notification has been observed (bounded by
// startAckTimeout) or ctx is cancelled; the stream itself continues in the
// background. A ctx already cancelled on entry is a clean no-op.
func (p *Player) Play(ctx context.Context, messages []history.Message, workspaceID string, opts PlayOptions) error {
	if ctx.Err() != nil {
		return nil
	}

	if len(messages) == 0 || messages[len(messages)-1].Role != "user" {
		return domain.ErrNoUserMessage
	}
	latest := &messages[len(messages)-1]

	p.mu.Lock()
	p.lastPrompt[workspaceID] = history.CloneMessages(messages)
	p.mu.Unlock()

	reply := p.source.Reply(messages, latest.Text())

	messageID := fmt.Sprintf("msg-%d", p.nextMessageID.Add(1))

	if reply.WaitForStreamStart {
		p.gate.Wait(ctx, workspaceID)
		if ctx.Err() != nil {
			return nil
		}
	}

	model := opts.Model
	if model == "" {
		model = p.model
	}
	events := BuildStreamEvents(reply, AdapterOptions{
		MessageID:  messageID,
		Model:      model,
		Mode:       opts.Mode,
		ChunkChars: opts.ChunkChars,
		ChunkDelay: opts.ChunkDelay,
	})
	if len(events) == 0 {
		return domain.ErrMissingStreamStart
	}
	if _, ok := events[0].(stream.StartEvent); !ok {
		return domain.ErrMissingStreamStart
	}

	historySequence := history.NextSequence(messages)
	placeholder := &history.Message{
		ID:    messageID,
		Role:  "assistant",
		Parts: []history.Part{},
		Metadata: history.Metadata{
			Timestamp: p.clock.Now(),
			Model:     model,
		},
	}

	if ctx.Err() != nil {
		return nil
	}
	if err := p.store.Append(ctx, workspaceID, placeholder); err != nil {
		return fmt.Errorf("append assistant placeholder: %w", err)
	}
	if ctx.Err() != nil {
		// Aborted between append and scheduling: make the turn look like it
		// never happened. Deletion is best effort.
		if err := p.store.DeleteMessage(context.WithoutCancel(ctx), workspaceID, messageID); err != nil {
			slog.Error("failed to delete aborted assistant placeholder",
				"workspace_id", workspaceID, "message_id", messageID, "error", err)
		}
		return nil
	}
	if placeholder.Metadata.HistorySequence != nil {
		historySequence = *placeholder.Metadata.HistorySequence
	}

	ctx, span := sfotel.StartTurnSpan(ctx, workspaceID, messageID, model)

	ack := p.scheduleEvents(workspaceID, events, messageID, historySequence, span)
	if p.metrics != nil {
		p.metrics.TurnsStarted.Add(ctx, 1)
	}

	expired := make(chan struct{})
	timer := p.clock.AfterFunc(p.timeout, func() { close(expired) })
	select {
	case <-ack:
	case <-ctx.Done():
	case <-expired:
	}
	timer.Stop()
	return nil
}

// scheduleEvents registers the workspace's active stream and arms one timer
// per event. Timers enqueue dispatch thunks onto the stream's FIFO queue
// instead of dispatching inline, so delivery order follows the adapter's
// sequence even under timer jitter or slow token counting.
//
// Last writer wins: superseding any prior stream and installing the new one
// happens in a single critical section so two racing turns can never both
// observe the workspace as idle and register side by side.
func (p *Player) scheduleEvents(workspaceID string, events []stream.Event, messageID string, historySequence int, span trace.Span) <-chan struct{} {
	a := &activeStream{
		messageID:       messageID,
		historySequence: historySequence,
		startAck:        make(chan struct{}),
		span:            span,
	}

	p.mu.Lock()
	prev := p.active[workspaceID]
	if prev != nil {
		prev.cancelled = true
		p.teardownLocked(workspaceID, prev)
	}
	p.active[workspaceID] = a
	p.mu.Unlock()

	if prev != nil {
		p.abort(workspaceID, prev.messageID)
	}

	p.mu.Lock()
	// Skip arming if a Stop or a newer turn tore the record down while the
	// abort for the superseded stream was being emitted.
	if p.active[workspaceID] == a && !a.cancelled {
		for _, ev := range events {
			timer := p.clock.AfterFunc(ev.Delay(), func() {
				p.enqueue(workspaceID, messageID, func() {
					p.dispatchEvent(workspaceID, a, ev)
				})
			})
			a.timers = append(a.timers, timer)
		}
	}
	p.mu.Unlock()

	return a.startAck
}

// enqueue appends a dispatch thunk to the stream's queue and starts the
// drain goroutine if one is not already running.
func (p *Player) enqueue(workspaceID, messageID string, thunk func()) {
	p.mu.Lock()
	a := p.active[workspaceID]
	if a == nil || a.cancelled || a.messageID != messageID {
		p.mu.Unlock()
		return
	}
	a.queue = append(a.queue, thunk)
	if a.processing {
		p.mu.Unlock()
		return
	}
	a.processing = true
	p.mu.Unlock()

	go p.processQueue(a)
}

// processQueue drains one thunk at a time. A panicking thunk (a subscriber
// misbehaving during emit) is logged and the drain continues with the next
// event rather than wedging the stream.
func (p *Player) processQueue(a *activeStream) {
	for {
		p.mu.Lock()
		if a.cancelled || len(a.queue) == 0 {
			a.processing = false
			p.mu.Unlock()
			return
		}
		thunk := a.queue[0]
		a.queue = a.queue[1:]
		p.mu.Unlock()

		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("stream event handler panicked",
						"message_id", a.messageID, "panic", r)
				}
			}()
			thunk()
		}()
	}
}

// emit delivers one notification to the sink and counts it.
func (p *Player) emit(ctx context.Context, kind string, payload any) {
	p.sink.Emit(ctx, kind, payload)
	if p.metrics != nil {
		p.metrics.EventsEmitted.Add(ctx, 1)
	}
}

// dispatchEvent delivers one event to subscribers, consulting the token
// counter for text-bearing kinds and finalizing history on the terminal
// event. Stale or cancelled streams are skipped silently.
func (p *Player) dispatchEvent(workspaceID string, a *activeStream, ev stream.Event) {
	if p.stale(workspaceID, a) {
		return
	}
	ctx := context.Background()

	switch ev := ev.(type) {
	case stream.StartEvent:
		p.mu.Lock()
		a.startedAt = p.clock.Now()
		p.mu.Unlock()
		p.emit(ctx, string(stream.KindStreamStart), stream.StartNotification{
			Type:            stream.KindStreamStart,
			WorkspaceID:     workspaceID,
			MessageID:       a.messageID,
			Model:           ev.Model,
			Mode:            ev.Mode,
			HistorySequence: a.historySequence,
			StartTime:       p.clock.Now(),
		})
		close(a.startAck)

	case stream.ReasoningEvent:
		tokens := p.tokens.Count(ctx, ev.Text, "reasoning-delta text")
		if p.stale(workspaceID, a) {
			return
		}
		p.emit(ctx, string(stream.KindReasoningDelta), stream.ReasoningNotification{
			Type:        stream.KindReasoningDelta,
			WorkspaceID: workspaceID,
			MessageID:   a.messageID,
			Delta:       ev.Text,
			Tokens:      tokens,
			Timestamp:   p.clock.Now(),
		})

	case stream.ToolStartEvent:
		tokens := p.tokens.Count(ctx, string(ev.Args), "tool-call args")
		if p.stale(workspaceID, a) {
			return
		}
		p.emit(ctx, string(stream.KindToolCallStart), stream.ToolStartNotification{
			Type:        stream.KindToolCallStart,
			WorkspaceID: workspaceID,
			MessageID:   a.messageID,
			ToolCallID:  ev.ToolCallID,
			ToolName:    ev.ToolName,
			Args:        ev.Args,
			Tokens:      tokens,
			Timestamp:   p.clock.Now(),
		})

	case stream.ToolEndEvent:
		p.emit(ctx, string(stream.KindToolCallEnd), stream.ToolEndNotification{
			Type:        stream.KindToolCallEnd,
			WorkspaceID: workspaceID,
			MessageID:   a.messageID,
			ToolCallID:  ev.ToolCallID,
			ToolName:    ev.ToolName,
			Result:      ev.Result,
			Timestamp:   p.clock.Now(),
		})

	case stream.UsageEvent:
		p.emit(ctx, string(stream.KindUsageDelta), stream.UsageNotification{
			Type:            stream.KindUsageDelta,
			WorkspaceID:     workspaceID,
			MessageID:       a.messageID,
			Usage:           ev.Usage,
			CumulativeUsage: ev.CumulativeUsage,
		})

	case stream.DeltaEvent:
		tokens := p.tokens.Count(ctx, ev.Text, "stream-delta text")
		if p.stale(workspaceID, a) {
			return
		}
		p.emit(ctx, string(stream.KindStreamDelta), stream.DeltaNotification{
			Type:        stream.KindStreamDelta,
			WorkspaceID: workspaceID,
			MessageID:   a.messageID,
			Delta:       ev.Text,
			Tokens:      tokens,
			Timestamp:   p.clock.Now(),
		})

	case stream.ErrorEvent:
		p.emit(ctx, string(stream.KindStreamError), stream.ErrorNotification{
			Type:        stream.KindStreamError,
			WorkspaceID: workspaceID,
			MessageID:   a.messageID,
			Error:       ev.Message,
			ErrorType:   ev.ErrorType,
		})
		p.finish(workspaceID, a)

	case stream.EndEvent:
		p.finalizeHistory(ctx, workspaceID, a, ev)
		if p.stale(workspaceID, a) {
			return
		}
		p.emit(ctx, string(stream.KindStreamEnd), stream.EndNotification{
			Type:        stream.KindStreamEnd,
			WorkspaceID: workspaceID,
			MessageID:   a.messageID,
			Metadata:    ev.Metadata,
			Parts:       ev.Parts,
		})
		p.finish(workspaceID, a)

	default:
		slog.Error("unhandled stream event kind", "kind", ev.Kind())
	}
}

// finalizeHistory replaces the placeholder's content with the completed
// parts, but only if the message still exists with its sequence stamped; a
// placeholder deleted out from under the stream is left alone. Update
// failures are logged, not surfaced.
func (p *Player) finalizeHistory(ctx context.Context, workspaceID string, a *activeStream, ev stream.EndEvent) {
	messages, err := p.store.History(ctx, workspaceID)
	if err != nil {
		slog.Error("failed to load history for finalization",
			"workspace_id", workspaceID, "message_id", a.messageID, "error", err)
		return
	}
	if p.stale(workspaceID, a) {
		return
	}

	var existing *history.Message
	for i := range messages {
		if messages[i].ID == a.messageID {
			existing = &messages[i]
			break
		}
	}
	if existing == nil || existing.Metadata.HistorySequence == nil {
		return
	}

	completed := &history.Message{
		ID:       a.messageID,
		Role:     "assistant",
		Parts:    partsFromStream(ev.Parts),
		Metadata: existing.Metadata,
	}
	completed.Metadata.Model = ev.Metadata.Model
	completed.Metadata.SystemMessageTokens = ev.Metadata.SystemMessageTokens

	if err := p.store.Update(ctx, workspaceID, completed); err != nil {
		slog.Error("failed to update history with completed message",
			"workspace_id", workspaceID, "message_id", a.messageID, "error", err)
	}
}

// stale reports whether the stream was cancelled or superseded since the
// event was scheduled.
func (p *Player) stale(workspaceID string, a *activeStream) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	cur := p.active[workspaceID]
	return cur != a || a.cancelled
}

// finish tears down the stream after its terminal event was dispatched.
func (p *Player) finish(workspaceID string, a *activeStream) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active[workspaceID] != a {
		return
	}
	a.cancelled = true
	p.teardownLocked(workspaceID, a)

	if p.metrics != nil {
		ctx := context.Background()
		p.metrics.TurnsFinished.Add(ctx, 1)
		if !a.startedAt.IsZero() {
			p.metrics.TurnDuration.Record(ctx, p.clock.Now().Sub(a.startedAt).Seconds())
		}
	}
}

// teardownLocked clears all pending timers, drops the queue, ends the turn
// span and removes the active record. Callers hold p.mu.
func (p *Player) teardownLocked(workspaceID string, a *activeStream) {
	for _, t := range a.timers {
		t.Stop()
	}
	a.timers = nil
	a.queue = nil
	if a.span != nil {
		a.span.End()
	}
	delete(p.active, workspaceID)
}

// partsFromStream converts event parts to history parts.
func partsFromStream(parts []stream.Part) []history.Part {
	out := make([]history.Part, len(parts))
	for i, part := range parts {
		out[i] = history.Part{Type: part.Type, Text: part.Text}
	}
	return out
}
