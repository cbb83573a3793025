package llm

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// CacheKey fingerprints a request for cache lookup. Per spec §4.6 the key is
// the SHA-256 of system_prompt || user_prompt || model only — temperature and
// max_tokens do not participate, since they do not change the semantic
// question being asked.
func CacheKey(systemPrompt, userPrompt, model string) string {
	h := sha256.New()
	h.Write([]byte(systemPrompt))
	h.Write([]byte{0})
	h.Write([]byte(userPrompt))
	h.Write([]byte{0})
	h.Write([]byte(model))
	return hex.EncodeToString(h.Sum(nil))
}

type cacheEntry struct {
	response  Response
	expiresAt time.Time
}

// responseCache is a TTL-bound in-memory cache keyed by CacheKey. Entries are
// checked for expiry on read rather than swept proactively; a background
// sweep is unnecessary at this cache's expected size.
type responseCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cacheEntry
	now     func() time.Time
}

func newResponseCache(ttl time.Duration) *responseCache {
	return &responseCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

func (c *responseCache) get(key string) (Response, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return Response{}, false
	}
	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return Response{}, false
	}
	resp := entry.response
	resp.FromCache = true
	return resp, true
}

func (c *responseCache) set(key string, resp Response) {
	c.mu.Lock()
	c.entries[key] = cacheEntry{response: resp, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
}
