package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeResource(t *testing.T) {
	assert.Equal(t, "https-api-example-com", NormalizeResource("https://api.example.com"))
	assert.Equal(t, "https-api-example-com", NormalizeResource("HTTPS://API.Example.COM/"))
	assert.Equal(t, "abc-123", NormalizeResource("abc__//123"))
}

func TestSessionCache_ExpiryBoundary(t *testing.T) {
	cache := NewSessionCache()
	now := time.Now()
	cache.now = func() time.Time { return now }

	t.Run("121s of validity is served", func(t *testing.T) {
		token := makeTestJWT(t, map[string]any{"exp": now.Add(121 * time.Second).Unix()})
		cache.Put("https://api.example.com", token)

		got, ok := cache.Get("https://api.example.com")
		require.True(t, ok)
		assert.Equal(t, token, got)
	})

	t.Run("119s of validity is a miss", func(t *testing.T) {
		token := makeTestJWT(t, map[string]any{"exp": now.Add(119 * time.Second).Unix()})
		cache.Put("https://api.example.com", token)

		_, ok := cache.Get("https://api.example.com")
		assert.False(t, ok)
	})
}

func TestSessionCache_GetMissAndOverwrite(t *testing.T) {
	cache := NewSessionCache()

	_, ok := cache.Get("https://api.example.com")
	assert.False(t, ok)

	// Tokens without a parseable expiry are never served.
	cache.Put("https://api.example.com", "opaque-token")
	_, ok = cache.Get("https://api.example.com")
	assert.False(t, ok)

	fresh := makeTestJWT(t, map[string]any{"exp": time.Now().Add(time.Hour).Unix()})
	cache.Put("https://api.example.com", fresh)
	got, ok := cache.Get("https://api.example.com")
	require.True(t, ok)
	assert.Equal(t, fresh, got)

	// Differently-cased spellings of the same resource share an entry.
	got, ok = cache.Get("HTTPS://API.Example.com/")
	require.True(t, ok)
	assert.Equal(t, fresh, got)
}

func TestSessionCache_Clear(t *testing.T) {
	cache := NewSessionCache()
	cache.Put("r1", makeTestJWT(t, map[string]any{"exp": time.Now().Add(time.Hour).Unix()}))

	cache.Clear()
	_, ok := cache.Get("r1")
	assert.False(t, ok)

	// Idempotent: both the timeout path and a signal handler may fire it.
	cache.Clear()
}
