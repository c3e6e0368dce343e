package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticTokens(token string) TokenProvider {
	return func(context.Context) (string, error) { return token, nil }
}

func TestNew_Validation(t *testing.T) {
	_, err := New("", staticTokens("t"))
	require.Error(t, err)

	_, err = New("https://example.com", nil)
	require.Error(t, err)
}

func TestDo_SetsAuthAndCorrelationHeaders(t *testing.T) {
	var gotAuth, gotCorrelation string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotCorrelation = r.Header.Get("x-ms-client-request-id")
		_ = json.NewEncoder(w).Encode(map[string]string{"ok": "yes"})
	}))
	defer server.Close()

	c, err := New(server.URL, staticTokens("tok-123"))
	require.NoError(t, err)

	var out map[string]string
	require.NoError(t, c.Do(context.Background(), http.MethodGet, "anything", nil, &out))
	assert.Equal(t, "Bearer tok-123", gotAuth)
	assert.NotEmpty(t, gotCorrelation)
	assert.Equal(t, "yes", out["ok"])
}

func TestDo_TokenProviderFailureShortCircuits(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	c, err := New(server.URL, func(context.Context) (string, error) {
		return "", errors.New("not authenticated")
	})
	require.NoError(t, err)

	err = c.Do(context.Background(), http.MethodGet, "x", nil, nil)
	require.Error(t, err)
	assert.False(t, called, "no request may be sent without a token")
}

func TestDecodeError(t *testing.T) {
	t.Run("nested error object", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]string{"code": "AccessDenied", "message": "no role assignment"},
			})
		}))
		defer server.Close()

		c, err := New(server.URL, staticTokens("t"))
		require.NoError(t, err)

		err = c.Do(context.Background(), http.MethodGet, "x", nil, nil)
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
		assert.Equal(t, "AccessDenied", apiErr.Code)
		assert.Contains(t, apiErr.Message, "no role assignment")
	})

	t.Run("bare string error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "bad request"})
		}))
		defer server.Close()

		c, err := New(server.URL, staticTokens("t"))
		require.NoError(t, err)

		err = c.Do(context.Background(), http.MethodGet, "x", nil, nil)
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "bad request", apiErr.Message)
	})

	t.Run("empty body falls back to status text", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		c, err := New(server.URL, staticTokens("t"))
		require.NoError(t, err)

		err = c.Do(context.Background(), http.MethodGet, "x", nil, nil)
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Contains(t, apiErr.Message, "Service Unavailable")
	})
}

func TestEnvironments(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/providers/Microsoft.BusinessAppPlatform/environments":
			assert.Equal(t, bapAPIVersion, r.URL.Query().Get("api-version"))
			_ = json.NewEncoder(w).Encode(map[string]any{
				"value": []map[string]any{
					{
						"id":   "/providers/Microsoft.BusinessAppPlatform/environments/env-1",
						"name": "env-1",
						"properties": map[string]string{
							"displayName": "Dev Environment",
						},
					},
				},
			})
		case "/providers/Microsoft.BusinessAppPlatform/environments/env-1":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id": "/providers/Microsoft.BusinessAppPlatform/environments/env-1", "name": "env-1",
				"properties": map[string]string{"displayName": "Dev Environment"},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	c, err := New(server.URL, staticTokens("t"))
	require.NoError(t, err)

	envs, err := c.Environments().List(context.Background())
	require.NoError(t, err)
	require.Len(t, envs, 1)
	assert.Equal(t, "env-1", envs[0].Name)
	assert.Equal(t, "Dev Environment", envs[0].Properties.DisplayName)

	env, err := c.Environments().Get(context.Background(), "env-1")
	require.NoError(t, err)
	assert.Equal(t, "env-1", env.Name)
}
