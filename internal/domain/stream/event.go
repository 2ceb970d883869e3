// Package stream defines the ordered protocol events a turn is adapted into
// and the notification payloads delivered to subscribers.
package stream

import (
	"encoding/json"
	"time"

	"github.com/Strob0t/StreamForge/internal/domain/turn"
)

// Kind identifies the variant of a stream event or outbound notification.
type Kind string

const (
	KindStreamStart    Kind = "stream-start"
	KindUsageDelta     Kind = "usage-delta"
	KindReasoningDelta Kind = "reasoning-delta"
	KindToolCallStart  Kind = "tool-call-start"
	KindToolCallEnd    Kind = "tool-call-end"
	KindStreamDelta    Kind = "stream-delta"
	KindStreamError    Kind = "error"
	KindStreamEnd      Kind = "stream-end"
	KindStreamAbort    Kind = "stream-abort"
)

// Event is one discrete unit of streamed turn content. The concrete types
// below are the only implementations; the dispatcher switches exhaustively
// over them.
type Event interface {
	Kind() Kind
	Delay() time.Duration
}

// base carries the delivery offset shared by every event variant.
type base struct {
	At time.Duration
}

func (b base) Delay() time.Duration { return b.At }

// StartEvent opens a turn. Exactly one per sequence, always first.
type StartEvent struct {
	base
	MessageID string
	Model     string
	Mode      string
}

func (StartEvent) Kind() Kind { return KindStreamStart }

// UsageEvent reports step and cumulative token usage.
type UsageEvent struct {
	base
	Usage           turn.UsageTotals
	CumulativeUsage turn.UsageTotals
}

func (UsageEvent) Kind() Kind { return KindUsageDelta }

// ReasoningEvent carries one reasoning fragment.
type ReasoningEvent struct {
	base
	Text string
}

func (ReasoningEvent) Kind() Kind { return KindReasoningDelta }

// ToolStartEvent announces a tool invocation. Args pass through unvalidated.
type ToolStartEvent struct {
	base
	ToolCallID string
	ToolName   string
	Args       json.RawMessage
}

func (ToolStartEvent) Kind() Kind { return KindToolCallStart }

// ToolEndEvent carries a tool invocation's result.
type ToolEndEvent struct {
	base
	ToolCallID string
	ToolName   string
	Result     json.RawMessage
}

func (ToolEndEvent) Kind() Kind { return KindToolCallEnd }

// DeltaEvent carries one chunk of assistant text.
type DeltaEvent struct {
	base
	Text string
}

func (DeltaEvent) Kind() Kind { return KindStreamDelta }

// ErrorEvent terminates a failed turn. No EndEvent follows it.
type ErrorEvent struct {
	base
	Message   string
	ErrorType string
}

func (ErrorEvent) Kind() Kind { return KindStreamError }

// EndMetadata is the final metadata attached to a completed turn.
type EndMetadata struct {
	Model               string `json:"model"`
	SystemMessageTokens int    `json:"system_message_tokens"`
}

// EndEvent terminates a successful turn with the full assistant content.
type EndEvent struct {
	base
	Metadata EndMetadata
	Parts    []Part
}

func (EndEvent) Kind() Kind { return KindStreamEnd }

// Part mirrors history.Part without importing it; the end event carries the
// full assistant text as a single text part.
type Part struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// WithDelay returns a copy of the event scheduled at offset d from turn start.
func (e StartEvent) WithDelay(d time.Duration) StartEvent { e.At = d; return e }

// WithDelay returns a copy of the event scheduled at offset d from turn start.
func (e UsageEvent) WithDelay(d time.Duration) UsageEvent { e.At = d; return e }

// WithDelay returns a copy of the event scheduled at offset d from turn start.
func (e ReasoningEvent) WithDelay(d time.Duration) ReasoningEvent { e.At = d; return e }

// WithDelay returns a copy of the event scheduled at offset d from turn start.
func (e ToolStartEvent) WithDelay(d time.Duration) ToolStartEvent { e.At = d; return e }

// WithDelay returns a copy of the event scheduled at offset d from turn start.
func (e ToolEndEvent) WithDelay(d time.Duration) ToolEndEvent { e.At = d; return e }

// WithDelay returns a copy of the event scheduled at offset d from turn start.
func (e DeltaEvent) WithDelay(d time.Duration) DeltaEvent { e.At = d; return e }

// WithDelay returns a copy of the event scheduled at offset d from turn start.
func (e ErrorEvent) WithDelay(d time.Duration) ErrorEvent { e.At = d; return e }

// WithDelay returns a copy of the event scheduled at offset d from turn start.
func (e EndEvent) WithDelay(d time.Duration) EndEvent { e.At = d; return e }
