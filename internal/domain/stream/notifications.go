package stream

import (
	"encoding/json"
	"time"

	"github.com/Strob0t/StreamForge/internal/domain/turn"
)

// Outbound notification payloads, one per dispatched event. Every payload
// carries the workspace and message it belongs to so subscribers can route
// without transport-level context.

// StartNotification is emitted when a turn begins streaming.
type StartNotification struct {
	Type            Kind      `json:"type"`
	WorkspaceID     string    `json:"workspace_id"`
	MessageID       string    `json:"message_id"`
	Model           string    `json:"model"`
	Mode            string    `json:"mode,omitempty"`
	HistorySequence int       `json:"history_sequence"`
	StartTime       time.Time `json:"start_time"`
}

// ReasoningNotification carries one reasoning fragment with its token count.
type ReasoningNotification struct {
	Type        Kind      `json:"type"`
	WorkspaceID string    `json:"workspace_id"`
	MessageID   string    `json:"message_id"`
	Delta       string    `json:"delta"`
	Tokens      int       `json:"tokens"`
	Timestamp   time.Time `json:"timestamp"`
}

// ToolStartNotification announces a tool invocation.
type ToolStartNotification struct {
	Type        Kind            `json:"type"`
	WorkspaceID string          `json:"workspace_id"`
	MessageID   string          `json:"message_id"`
	ToolCallID  string          `json:"tool_call_id"`
	ToolName    string          `json:"tool_name"`
	Args        json.RawMessage `json:"args"`
	Tokens      int             `json:"tokens"`
	Timestamp   time.Time       `json:"timestamp"`
}

// ToolEndNotification carries a tool invocation's result.
type ToolEndNotification struct {
	Type        Kind            `json:"type"`
	WorkspaceID string          `json:"workspace_id"`
	MessageID   string          `json:"message_id"`
	ToolCallID  string          `json:"tool_call_id"`
	ToolName    string          `json:"tool_name"`
	Result      json.RawMessage `json:"result"`
	Timestamp   time.Time       `json:"timestamp"`
}

// UsageNotification reports step and cumulative token usage.
type UsageNotification struct {
	Type            Kind             `json:"type"`
	WorkspaceID     string           `json:"workspace_id"`
	MessageID       string           `json:"message_id"`
	Usage           turn.UsageTotals `json:"usage"`
	CumulativeUsage turn.UsageTotals `json:"cumulative_usage"`
}

// DeltaNotification carries one chunk of assistant text.
type DeltaNotification struct {
	Type        Kind      `json:"type"`
	WorkspaceID string    `json:"workspace_id"`
	MessageID   string    `json:"message_id"`
	Delta       string    `json:"delta"`
	Tokens      int       `json:"tokens"`
	Timestamp   time.Time `json:"timestamp"`
}

// EndNotification closes a completed turn.
type EndNotification struct {
	Type        Kind        `json:"type"`
	WorkspaceID string      `json:"workspace_id"`
	MessageID   string      `json:"message_id"`
	Metadata    EndMetadata `json:"metadata"`
	Parts       []Part      `json:"parts"`
}

// ErrorNotification reports a turn that failed mid-stream.
type ErrorNotification struct {
	Type        Kind   `json:"type"`
	WorkspaceID string `json:"workspace_id"`
	MessageID   string `json:"message_id"`
	Error       string `json:"error"`
	ErrorType   string `json:"error_type"`
}

// AbortNotification reports an explicit stop, distinct from a stream error.
type AbortNotification struct {
	Type        Kind   `json:"type"`
	WorkspaceID string `json:"workspace_id"`
	MessageID   string `json:"message_id"`
	Reason      string `json:"reason"`
}
