package llm

import (
	"context"
	"sync"
	"time"
)

// refreshMargin is how long before expiry TokenHolder proactively refreshes,
// per spec §4.6.
const refreshMargin = 5 * time.Minute

// tokenFetcher obtains a fresh bearer token and its expiry from the
// credential source. The fetcher wired in cmd/testgen calls no token
// endpoint: it returns the configured key secret itself with a 24-hour expiry.
type tokenFetcher func(ctx context.Context) (token string, expiresAt time.Time, err error)

// TokenHolder is a mutex-guarded, lazily-refreshed bearer token cache.
// Mirrors the lock-around-a-cached-value-with-expiry shape used for the
// connection and tool caches in the reference corpus's MCP client, adapted
// from a read-mostly resource cache to a refresh-ahead-of-expiry one.
type TokenHolder struct {
	mu        sync.Mutex
	fetch     tokenFetcher
	token     string
	expiresAt time.Time
}

// NewTokenHolder constructs a holder around the given fetch function. It does
// not eagerly fetch; the first Token() call populates it.
func NewTokenHolder(fetch tokenFetcher) *TokenHolder {
	return &TokenHolder{fetch: fetch}
}

// Token returns a valid bearer token, refreshing it first if it is missing or
// within refreshMargin of expiry.
func (h *TokenHolder) Token(ctx context.Context) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.token != "" && time.Now().Add(refreshMargin).Before(h.expiresAt) {
		return h.token, nil
	}

	token, expiresAt, err := h.fetch(ctx)
	if err != nil {
		if h.token != "" {
			// Serve the stale token rather than fail outright; the caller's
			// retry/backoff loop will surface an auth error if it's truly dead.
			return h.token, nil
		}
		return "", err
	}

	h.token = token
	h.expiresAt = expiresAt
	return h.token, nil
}

// StaticTokenSource is a TokenSource for providers authenticated by a plain
// API key with no expiry (e.g. the genai API key flow) rather than a
// refreshable bearer token.
type StaticTokenSource string

func (s StaticTokenSource) Token(context.Context) (string, error) {
	return string(s), nil
}
