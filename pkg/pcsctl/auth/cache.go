package auth

import (
	"strings"
	"sync"
	"time"
)

// expiryMargin is how much remaining validity a cached token must have to
// be served. Anything closer to expiry is treated as absent so a
// subsequent network call cannot race the token's expiry.
const expiryMargin = 120 * time.Second

// SessionCache memoizes access tokens by resource for the lifetime of one
// process. It is never written to durable storage; a crashed process must
// not leave a replayable token on disk.
type SessionCache struct {
	mu     sync.Mutex
	tokens map[string]string
	now    func() time.Time
}

func NewSessionCache() *SessionCache {
	return &SessionCache{tokens: map[string]string{}, now: time.Now}
}

// NormalizeResource folds a resource identifier into a stable cache key:
// lower-cased with every run of non-alphanumeric characters collapsed to
// a single dash.
func NormalizeResource(resource string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(resource) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}
	return b.String()
}

// Get returns the cached token for a resource if it has more than the
// safety margin of validity left; otherwise it reports a miss.
func (c *SessionCache) Get(resource string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	token, ok := c.tokens[NormalizeResource(resource)]
	if !ok {
		return "", false
	}
	expiry, ok := Expiry(token)
	if !ok || c.now().Add(expiryMargin).After(expiry) {
		return "", false
	}
	return token, true
}

// Put stores a token unconditionally, replacing any prior entry.
func (c *SessionCache) Put(resource, token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[NormalizeResource(resource)] = token
}

// Clear drops every cached token. Safe to call multiple times; the exit
// paths (normal, error, and signal) all funnel through it.
func (c *SessionCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens = map[string]string{}
}
