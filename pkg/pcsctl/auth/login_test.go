package auth

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestCompleteLogin_AdoptsResolvedTenant(t *testing.T) {
	accessToken := makeTestJWT(t, map[string]any{
		"tid": "resolved-tenant-id",
		"upn": "a@b.com",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	store := NewStore(t.TempDir())
	cache := NewSessionCache()
	cfg := ProviderConfig{ClientID: "c", TenantID: TenantCommon}
	result := &LoginResult{Token: &oauth2.Token{AccessToken: accessToken, RefreshToken: "RT1"}}

	cred, err := CompleteLogin(cfg, store, cache, "dev", "https://r", result)
	require.NoError(t, err)
	assert.Equal(t, "resolved-tenant-id", cred.TenantID)

	stored, ok, err := store.Read("dev")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "resolved-tenant-id", stored.TenantID)
	assert.Equal(t, "RT1", stored.RefreshToken)
	assert.Equal(t, "a@b.com", stored.User)
	assert.False(t, stored.AcquiredAt.IsZero())

	// The session cache is warmed for the login resource.
	token, ok := cache.Get("https://r")
	require.True(t, ok)
	assert.Equal(t, accessToken, token)
}

func TestCompleteLogin_KeepsConfiguredTenant(t *testing.T) {
	accessToken := makeTestJWT(t, map[string]any{
		"tid": "some-other-tenant",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	store := NewStore(t.TempDir())
	cfg := ProviderConfig{ClientID: "c", TenantID: "configured-tenant"}

	cred, err := CompleteLogin(cfg, store, nil, "dev", "https://r", &LoginResult{
		Token: &oauth2.Token{AccessToken: accessToken, RefreshToken: "RT1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "configured-tenant", cred.TenantID)
}

func TestCompleteLogin_RejectsEmptyResult(t *testing.T) {
	store := NewStore(t.TempDir())
	_, err := CompleteLogin(ProviderConfig{ClientID: "c"}, store, nil, "dev", "https://r", nil)
	require.Error(t, err)

	_, err = CompleteLogin(ProviderConfig{ClientID: "c"}, store, nil, "dev", "https://r", &LoginResult{Token: &oauth2.Token{}})
	require.Error(t, err)
}

func TestLogin_Validation(t *testing.T) {
	_, err := Login(context.Background(), ProviderConfig{ClientID: "c"}, LoginOptions{Resource: "https://r"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "output writer")

	var out bytes.Buffer
	_, err = Login(context.Background(), ProviderConfig{ClientID: "c"}, LoginOptions{Output: &out})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resource")
}
