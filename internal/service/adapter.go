package service

import (
	"time"

	"github.com/Strob0t/StreamForge/internal/domain/stream"
	"github.com/Strob0t/StreamForge/internal/domain/turn"
)

const (
	// slotStep separates consecutive non-text events in a turn's schedule.
	slotStep = 5 * time.Millisecond

	// DefaultChunkChars is the target chunk size for assistant text.
	DefaultChunkChars = 24

	// DefaultChunkDelay is the pacing between text chunks.
	DefaultChunkDelay = 25 * time.Millisecond
)

// AdapterOptions configures how a turn reply is adapted into events.
type AdapterOptions struct {
	MessageID  string
	Model      string
	Mode       string
	ChunkChars int           // 0 means DefaultChunkChars
	ChunkDelay time.Duration // 0 means DefaultChunkDelay
}

// BuildStreamEvents converts a turn reply into the ordered event sequence a
// player delivers. Order is a caller-visible contract: stream-start, usage,
// reasoning fragments, tool call pairs, text chunks, then exactly one
// terminal event (error XOR end). Delays are non-decreasing.
func BuildStreamEvents(reply turn.Reply, opts AdapterOptions) []stream.Event {
	chunkChars := opts.ChunkChars
	if chunkChars <= 0 {
		chunkChars = DefaultChunkChars
	}
	chunkDelay := opts.ChunkDelay
	if chunkDelay <= 0 {
		chunkDelay = DefaultChunkDelay
	}

	var events []stream.Event
	at := time.Duration(0)
	next := func() time.Duration {
		d := at
		at += slotStep
		return d
	}

	events = append(events, stream.StartEvent{
		Model:     opts.Model,
		Mode:      opts.Mode,
		MessageID: opts.MessageID,
	}.WithDelay(next()))

	if reply.Usage != nil {
		events = append(events, stream.UsageEvent{
			Usage:           *reply.Usage,
			CumulativeUsage: *reply.Usage,
		}.WithDelay(next()))
	}

	for _, delta := range reply.ReasoningDeltas {
		events = append(events, stream.ReasoningEvent{Text: delta}.WithDelay(next()))
	}

	for _, call := range reply.ToolCalls {
		events = append(events, stream.ToolStartEvent{
			ToolCallID: call.ID,
			ToolName:   call.Name,
			Args:       call.Args,
		}.WithDelay(next()))
		events = append(events, stream.ToolEndEvent{
			ToolCallID: call.ID,
			ToolName:   call.Name,
			Result:     call.Result,
		}.WithDelay(next()))
	}

	for _, chunk := range chunkText(reply.AssistantText, chunkChars) {
		events = append(events, stream.DeltaEvent{Text: chunk}.WithDelay(at))
		at += chunkDelay
	}

	if reply.Err != nil {
		events = append(events, stream.ErrorEvent{
			Message:   reply.Err.Message,
			ErrorType: reply.Err.Kind,
		}.WithDelay(at))
		return events
	}

	// SystemMessageTokens stays zero: the built-in turn source sends no
	// system prompt. A source that does would count it here.
	events = append(events, stream.EndEvent{
		Metadata: stream.EndMetadata{Model: opts.Model},
		Parts:    []stream.Part{{Type: "text", Text: reply.AssistantText}},
	}.WithDelay(at))
	return events
}

// chunkText splits text into chunks of at most maxChars runes, preferring to
// break after the last newline or space inside the window so tokens and
// paths are not split across chunks. Concatenating the chunks reproduces
// text exactly. Empty input yields no chunks.
func chunkText(text string, maxChars int) []string {
	runes := []rune(text)
	var chunks []string
	for len(runes) > 0 {
		if len(runes) <= maxChars {
			chunks = append(chunks, string(runes))
			break
		}
		window := runes[:maxChars]
		cut := maxChars
		for i := len(window) - 1; i >= 0; i-- {
			if window[i] == '\n' || window[i] == ' ' {
				cut = i + 1 // keep the separator with the leading chunk
				break
			}
		}
		chunks = append(chunks, string(runes[:cut]))
		runes = runes[cut:]
	}
	return chunks
}
