// Package litellm provides a token counter backed by the LiteLLM proxy's
// token_counter utility endpoint.
package litellm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Strob0t/StreamForge/internal/port/tokenizer"
	"github.com/Strob0t/StreamForge/internal/resilience"
)

// Provider resolves token codecs through a LiteLLM proxy. It implements
// tokenizer.Provider.
type Provider struct {
	baseURL    string
	masterKey  string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// NewProvider creates a provider against the given LiteLLM base URL.
func NewProvider(baseURL, masterKey string) *Provider {
	return &Provider{
		baseURL:   baseURL,
		masterKey: masterKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// SetBreaker attaches a circuit breaker to all outgoing HTTP calls.
func (p *Provider) SetBreaker(b *resilience.Breaker) {
	p.breaker = b
}

// ForModel probes the token_counter endpoint to verify the model resolves
// and to learn which tokenizer LiteLLM uses for it.
func (p *Provider) ForModel(ctx context.Context, model string) (tokenizer.Codec, error) {
	resp, err := p.countTokens(ctx, model, "probe")
	if err != nil {
		return nil, fmt.Errorf("probe tokenizer for %s: %w", model, err)
	}
	return &codec{provider: p, model: model, encoding: resp.TokenizerType}, nil
}

// Health checks if the LiteLLM proxy is reachable.
func (p *Provider) Health(ctx context.Context) error {
	_, err := p.doRequest(ctx, http.MethodGet, "/health/liveliness", nil)
	return err
}

// codec counts tokens for one model via the proxy.
type codec struct {
	provider *Provider
	model    string
	encoding string
}

func (c *codec) Encoding() string { return c.encoding }

func (c *codec) CountTokens(ctx context.Context, text string) (int, error) {
	resp, err := c.provider.countTokens(ctx, c.model, text)
	if err != nil {
		return 0, err
	}
	return resp.TotalTokens, nil
}

// tokenCountResponse is the token_counter endpoint's reply.
type tokenCountResponse struct {
	TotalTokens   int    `json:"total_tokens"`
	TokenizerType string `json:"tokenizer_type"`
	ModelUsed     string `json:"model_used"`
}

func (p *Provider) countTokens(ctx context.Context, model, prompt string) (*tokenCountResponse, error) {
	body, err := json.Marshal(map[string]string{
		"model":  model,
		"prompt": prompt,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal token count request: %w", err)
	}

	data, err := p.doRequest(ctx, http.MethodPost, "/utils/token_counter", body)
	if err != nil {
		return nil, fmt.Errorf("count tokens: %w", err)
	}

	var resp tokenCountResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal token count response: %w", err)
	}
	return &resp, nil
}

func (p *Provider) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var result []byte
	call := func() error {
		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, bodyReader)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")
		if p.masterKey != "" {
			req.Header.Set("Authorization", "Bearer "+p.masterKey)
		}

		resp, err := p.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("http request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode >= 400 {
			return fmt.Errorf("litellm API error %d: %s", resp.StatusCode, string(data))
		}

		result = data
		return nil
	}

	if p.breaker != nil {
		err := p.breaker.Do(call)
		return result, err
	}
	return result, call()
}
