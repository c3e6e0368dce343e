package auth

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

// makeTestJWT builds an unsigned compact JWT with the given claims. The
// signature segment is garbage; nothing in this package verifies it.
func makeTestJWT(t *testing.T, claims map[string]any) string {
	t.Helper()
	header, err := json.Marshal(map[string]string{"alg": "none", "typ": "JWT"})
	require.NoError(t, err)
	payload, err := json.Marshal(claims)
	require.NoError(t, err)
	return base64.RawURLEncoding.EncodeToString(header) + "." +
		base64.RawURLEncoding.EncodeToString(payload) + "." +
		base64.RawURLEncoding.EncodeToString([]byte("sig"))
}

// makePaddedTestJWT is makeTestJWT with standard (padded) base64url
// segments, as some emitters produce.
func makePaddedTestJWT(t *testing.T, claims map[string]any) string {
	t.Helper()
	header, err := json.Marshal(map[string]string{"alg": "none", "typ": "JWT"})
	require.NoError(t, err)
	payload, err := json.Marshal(claims)
	require.NoError(t, err)
	return base64.URLEncoding.EncodeToString(header) + "." +
		base64.URLEncoding.EncodeToString(payload) + "." +
		base64.URLEncoding.EncodeToString([]byte("sig"))
}
