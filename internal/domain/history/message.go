// Package history defines the persisted chat message model and its
// per-workspace sequence numbering.
package history

import "time"

// Part is one content fragment of a message. Text is the only part type the
// orchestrator produces; the field set mirrors what subscribers receive.
type Part struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// TextPart builds a text content part.
func TextPart(text string) Part {
	return Part{Type: "text", Text: text}
}

// Metadata carries per-message bookkeeping. HistorySequence is nil until the
// message has been stamped by an append.
type Metadata struct {
	HistorySequence     *int      `json:"history_sequence,omitempty"`
	Timestamp           time.Time `json:"timestamp,omitempty"`
	Model               string    `json:"model,omitempty"`
	SystemMessageTokens int       `json:"system_message_tokens,omitempty"`
}

// Message is a single persisted chat message in a workspace.
type Message struct {
	ID       string   `json:"id"`
	Role     string   `json:"role"` // "user", "assistant", "system"
	Parts    []Part   `json:"parts"`
	Metadata Metadata `json:"metadata"`
}

// Text concatenates all text parts of the message.
func (m *Message) Text() string {
	var out string
	for _, p := range m.Parts {
		out += p.Text
	}
	return out
}

// CloneMessages deep-copies a message list, including parts and the sequence
// pointer, so callers can retain a snapshot that later mutations cannot touch.
func CloneMessages(messages []Message) []Message {
	out := make([]Message, len(messages))
	for i := range messages {
		out[i] = messages[i]
		out[i].Parts = append([]Part(nil), messages[i].Parts...)
		if seq := messages[i].Metadata.HistorySequence; seq != nil {
			v := *seq
			out[i].Metadata.HistorySequence = &v
		}
	}
	return out
}

// NextSequence returns the next history sequence for a workspace: one past
// the maximum stamped on the given messages. A freshly emptied workspace
// starts again at 1, so a deleted placeholder's number can be reused.
func NextSequence(messages []Message) int {
	maxSeq := 0
	for i := range messages {
		if seq := messages[i].Metadata.HistorySequence; seq != nil && *seq > maxSeq {
			maxSeq = *seq
		}
	}
	return maxSeq + 1
}
