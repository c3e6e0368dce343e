package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/oauth2"
)

// LoginResult is the outcome of an interactive login flow.
type LoginResult struct {
	Token *oauth2.Token
}

// LoginOptions selects the flow and the resource the first access token
// is requested for.
type LoginOptions struct {
	UseDeviceCode bool
	Resource      string
	Output        io.Writer
}

// Login runs an interactive sign-in. The browser flow is the default;
// when no loopback listener can be bound it falls back to the device
// code flow instead of failing, since a headless host can still complete
// a device sign-in from another machine.
func Login(ctx context.Context, cfg ProviderConfig, opts LoginOptions) (*LoginResult, error) {
	if opts.Output == nil {
		return nil, errors.New("login output writer is required")
	}
	if opts.Resource == "" {
		return nil, errors.New("login resource is required")
	}
	if opts.UseDeviceCode {
		return DeviceLogin(ctx, cfg, opts.Resource, opts.Output)
	}
	result, err := BrowserLogin(ctx, cfg, opts.Resource, opts.Output)
	if errors.Is(err, ErrNoListener) {
		_, _ = fmt.Fprintln(opts.Output, "No local port available for the browser sign-in; falling back to device code.")
		return DeviceLogin(ctx, cfg, opts.Resource, opts.Output)
	}
	return result, err
}

// CompleteLogin persists the outcome of a successful flow: it reads
// tenant and user from the access token, adopts the resolved tenant when
// the profile was configured with the "common" wildcard, writes the
// credential through the store, and warms the session cache for the
// login resource.
func CompleteLogin(cfg ProviderConfig, store *Store, cache *SessionCache, profile, resource string, result *LoginResult) (Credential, error) {
	if result == nil || result.Token == nil || result.Token.AccessToken == "" {
		return Credential{}, errors.New("login produced no access token")
	}
	tenant := cfg.tenant()
	if resolved := TenantID(result.Token.AccessToken); resolved != "" && tenant == TenantCommon {
		tenant = resolved
	}
	cred := Credential{
		TenantID:     tenant,
		RefreshToken: result.Token.RefreshToken,
		User:         UserPrincipal(result.Token.AccessToken),
		AcquiredAt:   time.Now().UTC(),
	}
	err := store.WithLock(profile, func() error {
		return store.Write(profile, cred)
	})
	if err != nil {
		return Credential{}, err
	}
	if cache != nil {
		cache.Put(resource, result.Token.AccessToken)
	}
	return cred, nil
}
