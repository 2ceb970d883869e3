// Package turn defines the logical content of one assistant turn.
package turn

import "encoding/json"

// UsageTotals carries token accounting for a turn step.
type UsageTotals struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// ToolCallRecord is one complete tool invocation. Start/end notifications are
// derived from it downstream; args and result pass through opaquely.
type ToolCallRecord struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Args   json.RawMessage `json:"args"`
	Result json.RawMessage `json:"result"`
}

// ReplyError describes a turn that ended in a provider-side failure.
type ReplyError struct {
	Message string `json:"message"`
	Kind    string `json:"kind"`
}

// Reply is the immutable logical content of one assistant turn: text,
// reasoning fragments, tool calls, usage and an optional terminal error.
type Reply struct {
	AssistantText      string           `json:"assistant_text"`
	Usage              *UsageTotals     `json:"usage,omitempty"`
	ReasoningDeltas    []string         `json:"reasoning_deltas,omitempty"`
	ToolCalls          []ToolCallRecord `json:"tool_calls,omitempty"`
	Err                *ReplyError      `json:"error,omitempty"`
	WaitForStreamStart bool             `json:"wait_for_stream_start,omitempty"`
}
