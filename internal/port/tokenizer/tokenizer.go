// Package tokenizer defines the port for model tokenizers.
package tokenizer

import "context"

// Codec counts tokens for one model's encoding. CountTokens may be slow or
// fail; callers are expected to bound it themselves.
type Codec interface {
	// Encoding names the tokenizer encoding, e.g. "o200k_base". Never empty.
	Encoding() string

	// CountTokens returns the number of tokens in text.
	CountTokens(ctx context.Context, text string) (int, error)
}

// Provider resolves a Codec for a model. Resolution itself may be slow (lazy
// downloads) or fail outright.
type Provider interface {
	ForModel(ctx context.Context, model string) (Codec, error)
}
