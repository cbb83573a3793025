package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"
)

// retryDelays is the exponential backoff schedule for transient upstream
// failures, per spec §4.6: 1s, 2s, 4s.
var retryDelays = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

// CachedClient implements Client: a fingerprint-keyed response cache in front
// of Provider, with concurrent identical-key misses collapsed via
// singleflight, a circuit breaker guarding the upstream call, and bounded
// retry with exponential backoff on transient failure.
type CachedClient struct {
	provider     Provider
	tokens       TokenSource
	cache        *responseCache
	group        singleflight.Group
	breaker      *gobreaker.CircuitBreaker
	embeddingDim int
	logger       *slog.Logger
}

// NewCachedClient wires a Provider behind the cache/resilience layers. ttl is
// the response cache TTL (spec default: 1h); embeddingDim is the fallback
// embedding's vector length (spec default: 384).
func NewCachedClient(provider Provider, tokens TokenSource, ttl time.Duration, embeddingDim int, logger *slog.Logger) *CachedClient {
	if logger == nil {
		logger = slog.Default()
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "llm-upstream",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("llm circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
		},
	})
	return &CachedClient{
		provider:     provider,
		tokens:       tokens,
		cache:        newResponseCache(ttl),
		breaker:      breaker,
		embeddingDim: embeddingDim,
		logger:       logger,
	}
}

// Call implements the spec §4.6 contract: cache hit returns immediately;
// cache miss calls the upstream (collapsing concurrent misses on the same
// key) through the circuit breaker with retry/backoff, then populates the
// cache on success.
func (c *CachedClient) Call(ctx context.Context, req Request) (*Response, error) {
	key := CacheKey(req.SystemPrompt, req.UserPrompt, req.Model)

	if cached, ok := c.cache.get(key); ok {
		return &cached, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		resp, err := c.callUpstreamWithRetry(ctx, req)
		if err != nil {
			return nil, err
		}
		if req.UseCache {
			c.cache.set(key, *resp)
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	resp := v.(*Response)
	respCopy := *resp
	return &respCopy, nil
}

func (c *CachedClient) callUpstreamWithRetry(ctx context.Context, req Request) (*Response, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("llm token: %w", err)
	}

	var lastErr error
	attempts := len(retryDelays) + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelays[attempt-1]):
			}
		}

		v, err := c.breaker.Execute(func() (interface{}, error) {
			return c.provider.Generate(ctx, req, token)
		})
		if err == nil {
			return v.(*Response), nil
		}
		lastErr = err
		c.logger.Warn("llm call failed, retrying", "attempt", attempt+1, "error", err)
	}
	return nil, fmt.Errorf("llm call failed after %d attempts: %w", attempts, lastErr)
}

// GetEmbedding returns a 384-dimensional (or configured-dim) embedding for
// text. It attempts the upstream embedding endpoint first, falling back to a
// deterministic SHA-256-derived, L2-normalized vector when the upstream call
// fails — so downstream consumers (pkg/optimizer's semantic dedup) always get
// a usable vector, degrading gracefully rather than failing the request.
func (c *CachedClient) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fallbackEmbedding(text, c.embeddingDim), nil
	}

	v, err := c.breaker.Execute(func() (interface{}, error) {
		return c.provider.Embed(ctx, text, token)
	})
	if err != nil {
		c.logger.Warn("embedding upstream unavailable, using deterministic fallback", "error", err)
		return fallbackEmbedding(text, c.embeddingDim), nil
	}
	embedding := v.([]float32)
	if len(embedding) == 0 {
		return fallbackEmbedding(text, c.embeddingDim), nil
	}
	return embedding, nil
}
