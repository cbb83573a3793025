// Package llm wraps a third-party LLM provider behind an in-process cache:
// fingerprinted responses, single-flight collapsing of concurrent misses,
// circuit breaking, retry with backoff, and token refresh (spec §4.6).
package llm

import "context"

// Request is one Call invocation's input.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	Model        string
	Temperature  float64
	MaxTokens    int
	// UseCache controls whether Call stores a fresh upstream response in the
	// cache; a cached entry for the key is returned whether or not it is set.
	// The zero value is false, so a Request that leaves it unset stores
	// nothing. CacheKey excludes this field.
	UseCache     bool
}

// Response is one Call invocation's output.
type Response struct {
	Text        string
	TokensInput int
	TokensOutput int
	TokensTotal int
	CostUSD     float64
	FromCache   bool
}

// Provider is the upstream LLM API the cache wraps. Concrete implementation:
// GenaiProvider.
type Provider interface {
	Generate(ctx context.Context, req Request, token string) (*Response, error)
	Embed(ctx context.Context, text string, token string) ([]float32, error)
}

// TokenSource supplies a bearer token for the upstream call, refreshing it
// before expiry. Concrete implementation: TokenHolder.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Client is the contract consumed by the pipeline stages: a cached,
// resilient LLM call plus an embedding operation with a deterministic
// fallback when the upstream is unavailable.
type Client interface {
	Call(ctx context.Context, req Request) (*Response, error)
	GetEmbedding(ctx context.Context, text string) ([]float32, error)
}
