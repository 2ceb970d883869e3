package litellm_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Strob0t/StreamForge/internal/adapter/litellm"
	"github.com/Strob0t/StreamForge/internal/resilience"
)

func tokenCounterServer(t *testing.T, tokens int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/utils/token_counter" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method: %s", r.Method)
		}

		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req["model"] == "" {
			t.Fatal("missing model in request")
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"total_tokens":   tokens,
			"tokenizer_type": "openai_tokenizer",
			"model_used":     req["model"],
		})
	}))
}

func TestForModelResolvesCodec(t *testing.T) {
	srv := tokenCounterServer(t, 2)
	defer srv.Close()

	provider := litellm.NewProvider(srv.URL, "test-key")
	codec, err := provider.ForModel(context.Background(), "gpt-4o-mini")
	if err != nil {
		t.Fatalf("ForModel failed: %v", err)
	}
	if codec.Encoding() != "openai_tokenizer" {
		t.Fatalf("expected openai_tokenizer, got %q", codec.Encoding())
	}

	n, err := codec.CountTokens(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("CountTokens failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 tokens, got %d", n)
	}
}

func TestForModelSendsAuthHeader(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"total_tokens":   1,
			"tokenizer_type": "openai_tokenizer",
		})
	}))
	defer srv.Close()

	provider := litellm.NewProvider(srv.URL, "test-key")
	if _, err := provider.ForModel(context.Background(), "gpt-4o-mini"); err != nil {
		t.Fatalf("ForModel failed: %v", err)
	}
	if gotAuth != "Bearer test-key" {
		t.Fatalf("unexpected auth header: %q", gotAuth)
	}
}

func TestForModelErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"model not found"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	provider := litellm.NewProvider(srv.URL, "")
	if _, err := provider.ForModel(context.Background(), "nope"); err == nil {
		t.Fatal("expected error for 400 response")
	}
}

func TestBreakerRejectsAfterRepeatedFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	provider := litellm.NewProvider(srv.URL, "")
	provider.SetBreaker(resilience.NewBreaker(2, time.Minute))

	for i := 0; i < 2; i++ {
		if _, err := provider.ForModel(context.Background(), "gpt-4o-mini"); err == nil {
			t.Fatalf("call %d: expected failure", i)
		}
	}

	_, err := provider.ForModel(context.Background(), "gpt-4o-mini")
	if err == nil {
		t.Fatal("expected rejection while circuit is open")
	}
}
