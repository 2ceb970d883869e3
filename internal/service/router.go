package service

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Strob0t/StreamForge/internal/domain/history"
	"github.com/Strob0t/StreamForge/internal/domain/turn"
)

// Directive tags recognized in the latest user message. They drive the
// built-in deterministic turn source used for development and multi-turn
// coordination tests.
const (
	directiveListLanguages  = "[mock:list-languages]"
	directiveReasoning      = "[mock:reasoning]"
	directiveErrorPrefix    = "[mock:error:"
	directiveToolPrefix     = "[mock:tool:"
	directiveWaitForStart   = "[mock:wait-stream-start]"
	directiveForceStreaming = "[force]"
)

// Router is the built-in turn source: it picks a canned reply from directive
// tags embedded in the latest user message, falling back to an echo reply.
type Router struct{}

// NewRouter creates the directive router.
func NewRouter() *Router { return &Router{} }

// Reply routes the latest user text to a deterministic turn reply.
func (r *Router) Reply(_ []history.Message, latestUserText string) turn.Reply {
	reply := r.route(latestUserText)
	if strings.Contains(latestUserText, directiveWaitForStart) {
		reply.WaitForStreamStart = true
	}
	return reply
}

func (r *Router) route(text string) turn.Reply {
	switch {
	case strings.Contains(text, directiveListLanguages):
		return turn.Reply{
			AssistantText: "1. Go\n2. TypeScript\n3. Rust",
			Usage:         &turn.UsageTotals{InputTokens: 12, OutputTokens: 9, TotalTokens: 21},
		}

	case strings.Contains(text, directiveReasoning):
		return turn.Reply{
			AssistantText: "Considered the options and picked the simplest one.",
			ReasoningDeltas: []string{
				"Weighing the alternatives. ",
				"The simplest option wins.",
			},
			Usage: &turn.UsageTotals{InputTokens: 10, OutputTokens: 14, TotalTokens: 24},
		}

	case strings.Contains(text, directiveErrorPrefix):
		kind := directiveArg(text, directiveErrorPrefix)
		return turn.Reply{
			Err: &turn.ReplyError{
				Message: fmt.Sprintf("simulated %s failure", kind),
				Kind:    kind,
			},
		}

	case strings.Contains(text, directiveToolPrefix):
		name := directiveArg(text, directiveToolPrefix)
		return turn.Reply{
			AssistantText: fmt.Sprintf("Ran %s and summarized the result.", name),
			ToolCalls: []turn.ToolCallRecord{{
				ID:     "call-1",
				Name:   name,
				Args:   json.RawMessage(`{"input":"demo"}`),
				Result: json.RawMessage(`{"ok":true}`),
			}},
			Usage: &turn.UsageTotals{InputTokens: 8, OutputTokens: 11, TotalTokens: 19},
		}

	case strings.Contains(text, directiveForceStreaming):
		// Long enough that a stream is reliably mid-flight when tests stop it.
		return turn.Reply{
			AssistantText: strings.Repeat("streaming filler text ", 200),
		}

	default:
		return turn.Reply{
			AssistantText: "You said: " + text,
			Usage:         &turn.UsageTotals{InputTokens: 6, OutputTokens: 8, TotalTokens: 14},
		}
	}
}

// directiveArg extracts the argument of a parameterized directive such as
// [mock:error:api] or [mock:tool:search]. Returns "unknown" if malformed.
func directiveArg(text, prefix string) string {
	start := strings.Index(text, prefix)
	if start < 0 {
		return "unknown"
	}
	rest := text[start+len(prefix):]
	end := strings.Index(rest, "]")
	if end <= 0 {
		return "unknown"
	}
	return rest[:end]
}
