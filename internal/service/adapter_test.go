package service

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/Strob0t/StreamForge/internal/domain/stream"
	"github.com/Strob0t/StreamForge/internal/domain/turn"
)

func eventKinds(events []stream.Event) []stream.Kind {
	kinds := make([]stream.Kind, len(events))
	for i, ev := range events {
		kinds[i] = ev.Kind()
	}
	return kinds
}

func TestBuildStreamEventsOrdering(t *testing.T) {
	reply := turn.Reply{
		AssistantText:   "short",
		Usage:           &turn.UsageTotals{InputTokens: 3, OutputTokens: 5, TotalTokens: 8},
		ReasoningDeltas: []string{"thinking. ", "done."},
		ToolCalls: []turn.ToolCallRecord{
			{ID: "call-1", Name: "search", Args: json.RawMessage(`{"q":"go"}`), Result: json.RawMessage(`{"hits":2}`)},
		},
	}

	events := BuildStreamEvents(reply, AdapterOptions{MessageID: "msg-1", Model: "gpt-4o-mini"})

	want := []stream.Kind{
		stream.KindStreamStart,
		stream.KindUsageDelta,
		stream.KindReasoningDelta,
		stream.KindReasoningDelta,
		stream.KindToolCallStart,
		stream.KindToolCallEnd,
		stream.KindStreamDelta,
		stream.KindStreamEnd,
	}
	got := eventKinds(events)
	if len(got) != len(want) {
		t.Fatalf("expected %d events, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d: expected %s, got %s", i, want[i], got[i])
		}
	}

	prev := time.Duration(-1)
	for i, ev := range events {
		if ev.Delay() < prev {
			t.Fatalf("event %d delay %v decreased from %v", i, ev.Delay(), prev)
		}
		prev = ev.Delay()
	}

	if events[1].Delay() != 5*time.Millisecond {
		t.Errorf("usage delay: expected 5ms, got %v", events[1].Delay())
	}
	if events[4].Delay() != 20*time.Millisecond {
		t.Errorf("tool start delay: expected 20ms, got %v", events[4].Delay())
	}
}

func TestBuildStreamEventsErrorIsTerminal(t *testing.T) {
	reply := turn.Reply{
		Err: &turn.ReplyError{Message: "simulated rate-limit failure", Kind: "rate-limit"},
	}

	events := BuildStreamEvents(reply, AdapterOptions{MessageID: "msg-2", Model: "m"})

	if len(events) != 2 {
		t.Fatalf("expected start + error, got %v", eventKinds(events))
	}
	errEv, ok := events[1].(stream.ErrorEvent)
	if !ok {
		t.Fatalf("expected ErrorEvent, got %T", events[1])
	}
	if errEv.ErrorType != "rate-limit" {
		t.Errorf("expected rate-limit error type, got %q", errEv.ErrorType)
	}
	for _, ev := range events {
		if ev.Kind() == stream.KindStreamEnd {
			t.Fatal("error turn must not also carry stream-end")
		}
	}
}

func TestBuildStreamEventsEndCarriesFullText(t *testing.T) {
	text := "1. Go\n2. TypeScript\n3. Rust"
	events := BuildStreamEvents(turn.Reply{AssistantText: text}, AdapterOptions{MessageID: "msg-3", Model: "m"})

	end, ok := events[len(events)-1].(stream.EndEvent)
	if !ok {
		t.Fatalf("expected EndEvent, got %T", events[len(events)-1])
	}
	if len(end.Parts) != 1 || end.Parts[0].Text != text {
		t.Fatalf("end parts should carry the full text, got %+v", end.Parts)
	}

	var rebuilt strings.Builder
	for _, ev := range events {
		if delta, ok := ev.(stream.DeltaEvent); ok {
			rebuilt.WriteString(delta.Text)
		}
	}
	if rebuilt.String() != text {
		t.Fatalf("concatenated deltas %q != original %q", rebuilt.String(), text)
	}
}

func TestBuildStreamEventsChunkPacing(t *testing.T) {
	text := strings.Repeat("0123456789", 10)
	events := BuildStreamEvents(turn.Reply{AssistantText: text}, AdapterOptions{
		MessageID:  "msg-4",
		Model:      "m",
		ChunkChars: 10,
		ChunkDelay: 40 * time.Millisecond,
	})

	var deltas []stream.Event
	for _, ev := range events {
		if ev.Kind() == stream.KindStreamDelta {
			deltas = append(deltas, ev)
		}
	}
	if len(deltas) != 10 {
		t.Fatalf("expected 10 chunks, got %d", len(deltas))
	}
	for i := 1; i < len(deltas); i++ {
		gap := deltas[i].Delay() - deltas[i-1].Delay()
		if gap != 40*time.Millisecond {
			t.Fatalf("chunk %d: expected 40ms gap, got %v", i, gap)
		}
	}
}

func TestChunkTextReassemblesExactly(t *testing.T) {
	cases := []string{
		"",
		"short",
		"a line that is quite a bit longer than a single chunk window",
		"newline\nseparated\ncontent that wraps over multiple chunks here",
		"no-spaces-" + strings.Repeat("x", 100),
	}
	for _, text := range cases {
		chunks := chunkText(text, 24)
		if text == "" {
			if len(chunks) != 0 {
				t.Fatalf("empty input: expected no chunks, got %v", chunks)
			}
			continue
		}
		if strings.Join(chunks, "") != text {
			t.Fatalf("chunks %v do not reassemble %q", chunks, text)
		}
		for i, chunk := range chunks {
			if len([]rune(chunk)) > 24 {
				t.Fatalf("chunk %d too long: %q", i, chunk)
			}
		}
	}
}

func TestChunkTextPrefersWordBoundaries(t *testing.T) {
	chunks := chunkText("hello world again", 8)
	if chunks[0] != "hello " {
		t.Fatalf("expected break after space, got %q", chunks[0])
	}
}

func TestChunkTextDoesNotSplitRunes(t *testing.T) {
	text := strings.Repeat("héllo wörld ", 5)
	for _, chunk := range chunkText(text, 7) {
		if !utf8Valid(chunk) {
			t.Fatalf("chunk %q is not valid UTF-8", chunk)
		}
	}
}

func utf8Valid(s string) bool {
	for _, r := range s {
		if r == '�' {
			return false
		}
	}
	return true
}
