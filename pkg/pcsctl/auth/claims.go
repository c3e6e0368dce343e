package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// DecodeClaims extracts the claims of a compact JWT without verifying its
// signature. It exists only to read tenant, user, and expiry out of tokens
// this process itself received over TLS from the token endpoint.
//
// This is a parsing convenience, not a security boundary: never feed it a
// token obtained from an untrusted party and treat the claims as
// authenticated.
func DecodeClaims(token string) (jwt.MapClaims, error) {
	segments := strings.Split(token, ".")
	if len(segments) < 3 {
		return nil, errors.New("not a compact JWT")
	}
	// Some emitters pad their base64url segments; the parser expects the
	// unpadded form required by RFC 7515.
	for i := range segments {
		segments[i] = strings.TrimRight(segments[i], "=")
	}
	claims := jwt.MapClaims{}
	parser := jwt.Parser{}
	if _, _, err := parser.ParseUnverified(strings.Join(segments, "."), claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// TenantID returns the tid claim, or empty if absent.
func TenantID(token string) string {
	claims, err := DecodeClaims(token)
	if err != nil {
		return ""
	}
	tid, _ := claims["tid"].(string)
	return tid
}

// UserPrincipal returns the best available user identifier claim.
func UserPrincipal(token string) string {
	claims, err := DecodeClaims(token)
	if err != nil {
		return ""
	}
	for _, key := range []string{"upn", "unique_name", "preferred_username"} {
		if value, ok := claims[key].(string); ok && value != "" {
			return value
		}
	}
	return ""
}

// Expiry returns the exp claim as a time. The second return is false when
// the token has no parseable expiry.
func Expiry(token string) (time.Time, bool) {
	claims, err := DecodeClaims(token)
	if err != nil {
		return time.Time{}, false
	}
	exp, ok := claims["exp"]
	if !ok {
		return time.Time{}, false
	}
	switch v := exp.(type) {
	case float64:
		return time.Unix(int64(v), 0), true
	case int64:
		return time.Unix(v, 0), true
	}
	return time.Time{}, false
}
