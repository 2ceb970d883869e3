package nats

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
)

// testConnect connects to NATS or skips the test if NATS_URL is not set.
func testConnect(t *testing.T) *Publisher {
	t.Helper()

	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("requires NATS_URL")
	}

	p, err := Connect(context.Background(), url)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() {
		if err := p.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return p
}

func TestEmitPublishesOnKindSubject(t *testing.T) {
	p := testConnect(t)

	nc, err := nats.Connect(os.Getenv("NATS_URL"))
	if err != nil {
		t.Fatalf("subscriber connect: %v", err)
	}
	defer nc.Close()

	sub, err := nc.SubscribeSync(subjectPrefix + "stream-delta")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	p.Emit(context.Background(), "stream-delta", map[string]string{
		"workspace_id": "ws-1",
		"delta":        "hello",
	})

	msg, err := sub.NextMsg(5 * time.Second)
	if err != nil {
		t.Fatalf("no message received: %v", err)
	}

	var payload map[string]string
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload["delta"] != "hello" {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestEmitSurvivesUnmarshalablePayload(t *testing.T) {
	p := testConnect(t)
	// Marshal failures are logged and dropped, never panic.
	p.Emit(context.Background(), "bad", make(chan int))
}
