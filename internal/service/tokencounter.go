package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	sfotel "github.com/Strob0t/StreamForge/internal/adapter/otel"
	"github.com/Strob0t/StreamForge/internal/port/tokenizer"
)

// TokenizeTimeout bounds how long a count waits on the real tokenizer before
// falling back to the approximation.
const TokenizeTimeout = 150 * time.Millisecond

// TokenCountCache is an optional in-process cache of exact counts, keyed by
// model and text.
type TokenCountCache interface {
	Get(key string) (int, bool)
	Set(key string, tokens int)
}

// ApproximateTokens is the cheap fallback estimate: one token per four
// characters of trimmed text, at least one for non-empty input.
func ApproximateTokens(text string) int {
	n := len([]rune(strings.TrimSpace(text)))
	if n == 0 {
		return 0
	}
	return max(1, (n+3)/4)
}

// TokenCounter resolves token counts for stream chunks. It races the real
// tokenizer against a timed approximation so a slow or broken tokenizer can
// never stall turn delivery, and logs each degradation diagnostic only once
// per process to keep the stream path quiet.
type TokenCounter struct {
	provider tokenizer.Provider
	model    string
	cache    TokenCountCache // may be nil
	timeout  time.Duration
	clock    Clock

	group  singleflight.Group
	mu     sync.Mutex
	codecs map[string]tokenizer.Codec

	fallbackOnce    sync.Once
	unavailableOnce sync.Once
}

// NewTokenCounter creates a counter for the given model. cache may be nil.
func NewTokenCounter(provider tokenizer.Provider, model string, cache TokenCountCache) *TokenCounter {
	return &TokenCounter{
		provider: provider,
		model:    model,
		cache:    cache,
		timeout:  TokenizeTimeout,
		clock:    SystemClock(),
		codecs:   make(map[string]tokenizer.Codec),
	}
}

// Count returns the token count for text. It never fails: the real tokenizer
// is given TokenizeTimeout to answer, after which the approximation wins and
// the real result is drained in the background for a one-time diagnostic.
// The returned count is always >= 0.
func (c *TokenCounter) Count(ctx context.Context, text, label string) int {
	approx := ApproximateTokens(text)

	key := c.model + "\x00" + text
	if c.cache != nil {
		if n, ok := c.cache.Get(key); ok {
			return n
		}
	}

	// The real count runs detached from the turn's context: a cancelled
	// stream lets an in-flight count finish and discards the result.
	real := make(chan int, 1)
	go func() {
		spanCtx, span := sfotel.StartTokenizeSpan(context.WithoutCancel(ctx), c.model, label)
		n, err := c.exactCount(spanCtx, text)
		span.End()
		if err != nil {
			c.unavailableOnce.Do(func() {
				slog.Debug("tokenizer unavailable, using approximate counts",
					"label", label, "error", err)
			})
			real <- approx
			return
		}
		if c.cache != nil {
			c.cache.Set(key, n)
		}
		real <- n
	}()

	expired := make(chan struct{})
	timer := c.clock.AfterFunc(c.timeout, func() { close(expired) })

	var tokens int
	select {
	case tokens = <-real:
		timer.Stop()
	case <-expired:
		tokens = approx
		c.fallbackOnce.Do(func() {
			go func() {
				resolved := <-real
				slog.Debug("tokenizer fallback used",
					"label", label, "approximate", approx, "resolved", resolved)
			}()
		})
	}

	if tokens < 0 {
		panic(fmt.Sprintf("token counting produced negative count for %s", label))
	}
	return tokens
}

// exactCount resolves the model codec and counts tokens with it.
func (c *TokenCounter) exactCount(ctx context.Context, text string) (int, error) {
	codec, err := c.codec(ctx)
	if err != nil {
		return 0, err
	}
	n, err := codec.CountTokens(ctx, text)
	if err != nil {
		return 0, fmt.Errorf("count tokens: %w", err)
	}
	if n < 0 {
		return 0, fmt.Errorf("tokenizer for %s returned negative count %d", c.model, n)
	}
	return n, nil
}

// codec returns the memoized codec for the counter's model, deduplicating
// concurrent resolutions through singleflight.
func (c *TokenCounter) codec(ctx context.Context) (tokenizer.Codec, error) {
	if c.provider == nil {
		return nil, fmt.Errorf("no tokenizer provider configured for %s", c.model)
	}
	c.mu.Lock()
	if codec, ok := c.codecs[c.model]; ok {
		c.mu.Unlock()
		return codec, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do(c.model, func() (any, error) {
		codec, err := c.provider.ForModel(ctx, c.model)
		if err != nil {
			return nil, fmt.Errorf("resolve tokenizer for %s: %w", c.model, err)
		}
		if codec.Encoding() == "" {
			return nil, fmt.Errorf("tokenizer for %s has empty encoding", c.model)
		}
		c.mu.Lock()
		c.codecs[c.model] = codec
		c.mu.Unlock()
		return codec, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(tokenizer.Codec), nil
}
