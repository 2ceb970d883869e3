package history

import "testing"

func seq(n int) *int { return &n }

func TestNextSequence(t *testing.T) {
	cases := []struct {
		name     string
		messages []Message
		want     int
	}{
		{"empty", nil, 1},
		{"unstamped only", []Message{{ID: "a"}}, 1},
		{"single stamped", []Message{{Metadata: Metadata{HistorySequence: seq(1)}}}, 2},
		{"gap after delete", []Message{
			{Metadata: Metadata{HistorySequence: seq(1)}},
			{Metadata: Metadata{HistorySequence: seq(4)}},
		}, 5},
		{"unordered", []Message{
			{Metadata: Metadata{HistorySequence: seq(3)}},
			{Metadata: Metadata{HistorySequence: seq(1)}},
		}, 4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NextSequence(tc.messages); got != tc.want {
				t.Fatalf("NextSequence = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestTextConcatenatesParts(t *testing.T) {
	m := Message{Parts: []Part{TextPart("hello "), TextPart("world")}}
	if got := m.Text(); got != "hello world" {
		t.Fatalf("Text() = %q", got)
	}

	empty := Message{}
	if empty.Text() != "" {
		t.Fatal("empty message should have empty text")
	}
}

func TestCloneMessagesIsDeep(t *testing.T) {
	orig := []Message{{
		ID:       "m1",
		Parts:    []Part{TextPart("original")},
		Metadata: Metadata{HistorySequence: seq(7)},
	}}

	cloned := CloneMessages(orig)
	cloned[0].Parts[0].Text = "mutated"
	*cloned[0].Metadata.HistorySequence = 99

	if orig[0].Parts[0].Text != "original" {
		t.Fatal("clone shares the parts slice")
	}
	if *orig[0].Metadata.HistorySequence != 7 {
		t.Fatal("clone shares the sequence pointer")
	}
}
