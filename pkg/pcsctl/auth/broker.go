package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// ErrNotAuthenticated means no credential path could produce a token.
// The broker never starts an interactive login on its own; callers must
// tell the user to run login explicitly.
var ErrNotAuthenticated = errors.New("not authenticated: run 'pcsctl auth login'")

// Broker is the single entry point for obtaining a bearer token for a
// resource. It composes, in order: the session cache, a refresh grant
// against the stored credential, and any configured fallback credential
// sources.
type Broker struct {
	cfg     ProviderConfig
	profile string
	store   *Store
	cache   *SessionCache
	sources []CredentialSource
	client  *http.Client
}

type BrokerOption func(*Broker)

// WithCredentialSources appends fallback sources tried after the refresh
// path. They exist for interoperability with hosts that already carry
// another sanctioned login session, not as a primary path.
func WithCredentialSources(sources ...CredentialSource) BrokerOption {
	return func(b *Broker) {
		b.sources = append(b.sources, sources...)
	}
}

// WithHTTPClient overrides the HTTP client used for the refresh grant.
func WithHTTPClient(client *http.Client) BrokerOption {
	return func(b *Broker) {
		b.client = client
	}
}

func NewBroker(cfg ProviderConfig, profile string, store *Store, cache *SessionCache, opts ...BrokerOption) (*Broker, error) {
	if store == nil || cache == nil {
		return nil, errors.New("broker requires a store and a session cache")
	}
	b := &Broker{cfg: cfg, profile: profile, store: store, cache: cache}
	for _, opt := range opts {
		opt(b)
	}
	if b.client == nil {
		client, err := cfg.httpClient()
		if err != nil {
			return nil, err
		}
		b.client = client
	}
	return b, nil
}

// GetAccessToken returns a bearer token for the resource, short-circuiting
// on the first source that succeeds. It returns ErrNotAuthenticated when
// every path fails; it never prompts.
func (b *Broker) GetAccessToken(ctx context.Context, resource string) (string, error) {
	if token, ok := b.cache.Get(resource); ok {
		return token, nil
	}

	if token, err := b.refresh(ctx, resource); err == nil {
		return token, nil
	} else if !errors.Is(err, errNoStoredCredential) {
		b.cfg.log().Debugw("refresh grant failed", "resource", resource, "error", err)
	}

	for _, source := range b.sources {
		token, err := source.Token(ctx, resource)
		if err != nil {
			b.cfg.log().Debugw("credential source failed", "source", source.Name(), "error", err)
			continue
		}
		if !b.tenantMatches(token) {
			b.cfg.log().Debugw("credential source token is for another tenant, skipping", "source", source.Name())
			continue
		}
		b.cache.Put(resource, token)
		return token, nil
	}

	return "", ErrNotAuthenticated
}

var errNoStoredCredential = errors.New("no stored credential")

// refresh runs the refresh-token grant for the resource. A rotated
// refresh token is written back under the profile lock with a re-read so
// two concurrent processes cannot lose each other's rotation.
func (b *Broker) refresh(ctx context.Context, resource string) (string, error) {
	cred, ok, err := b.store.Read(b.profile)
	if err != nil || !ok || cred.RefreshToken == "" {
		return "", errNoStoredCredential
	}
	tenant := cred.TenantID
	if tenant == "" {
		tenant = b.cfg.tenant()
	}
	endpoints := b.cfg.fixedEndpoints(tenant)

	values := url.Values{}
	values.Set("grant_type", "refresh_token")
	values.Set("client_id", b.cfg.ClientID)
	values.Set("refresh_token", cred.RefreshToken)
	values.Set("scope", strings.Join(b.cfg.tokenScopes(resource), " "))

	payload, err := postTokenForm(ctx, b.client, endpoints.TokenURL, values)
	if err != nil {
		return "", err
	}
	if payload.Error == "invalid_grant" {
		// The refresh token is dead; evict the profile so the next failure
		// message tells the user to log in again.
		_ = b.store.Delete(b.profile)
		return "", fmt.Errorf("refresh token rejected: %w", payload.protocolError())
	}
	if err := payload.protocolError(); err != nil {
		return "", fmt.Errorf("token refresh failed: %w", err)
	}
	if payload.AccessToken == "" {
		return "", errors.New("token refresh returned no access token")
	}

	if payload.RefreshToken != "" && payload.RefreshToken != cred.RefreshToken {
		err := b.store.WithLock(b.profile, func() error {
			current, ok, _ := b.store.Read(b.profile)
			if !ok {
				current = cred
			}
			current.RefreshToken = payload.RefreshToken
			return b.store.Write(b.profile, current)
		})
		if err != nil {
			return "", fmt.Errorf("failed to persist rotated refresh token: %w", err)
		}
	}

	b.cache.Put(resource, payload.AccessToken)
	return payload.AccessToken, nil
}

// tenantMatches checks a fallback token against the profile's tenant.
// With no configured tenant (or the common wildcard) any tenant is
// accepted.
func (b *Broker) tenantMatches(token string) bool {
	cred, ok, _ := b.store.Read(b.profile)
	tenant := cred.TenantID
	if !ok || tenant == "" {
		tenant = b.cfg.tenant()
	}
	if tenant == "" || tenant == TenantCommon {
		return true
	}
	tokenTenant := TenantID(token)
	return tokenTenant == "" || tokenTenant == tenant
}
