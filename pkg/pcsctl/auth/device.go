package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// maxDevicePolls guards against a provider that never reaches a terminal
// state: past this many polls the session is treated as failed even if
// its advertised expiry has not passed.
const maxDevicePolls = 720

const deviceCodeGrant = "urn:ietf:params:oauth:grant-type:device_code"

type deviceCodeResponse struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURI string `json:"verification_uri"`
	ExpiresIn       int    `json:"expires_in"`
	Interval        int    `json:"interval"`
	Message         string `json:"message"`
}

var (
	errAuthorizationPending = errors.New("authorization pending")
	errSlowDown             = errors.New("slow down")
)

// nextPollInterval applies the provider's pacing demands. slow_down
// increases the interval and nothing ever decreases it within a session.
func nextPollInterval(current time.Duration, pollErr error) time.Duration {
	if errors.Is(pollErr, errSlowDown) {
		return current + 5*time.Second
	}
	return current
}

// DeviceLogin runs the device authorization grant: it requests a user
// code, shows the sign-in instruction, and polls the token endpoint until
// the user approves, denies, or the code expires.
func DeviceLogin(ctx context.Context, cfg ProviderConfig, resource string, w io.Writer) (*LoginResult, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	client, err := cfg.httpClient()
	if err != nil {
		return nil, err
	}
	endpoints := cfg.resolveEndpoints(ctx, client)

	deviceResp, err := requestDeviceCode(ctx, client, endpoints.DeviceAuthURL, cfg, resource)
	if err != nil {
		return nil, err
	}

	message := deviceResp.Message
	if message == "" {
		message = fmt.Sprintf("To sign in, visit %s and enter the code %s", deviceResp.VerificationURI, deviceResp.UserCode)
	}
	_, _ = fmt.Fprintln(w, message)

	interval := time.Duration(deviceResp.Interval) * time.Second
	if interval == 0 {
		interval = 5 * time.Second
	}
	deadline := time.Now().Add(time.Duration(deviceResp.ExpiresIn) * time.Second)

	for polls := 0; polls < maxDevicePolls; polls++ {
		if time.Now().After(deadline) {
			return nil, errors.New("device code expired before the sign-in was completed")
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
		tokenResp, err := pollDeviceToken(ctx, client, endpoints.TokenURL, cfg, deviceResp.DeviceCode)
		if err != nil {
			if errors.Is(err, errAuthorizationPending) || errors.Is(err, errSlowDown) {
				interval = nextPollInterval(interval, err)
				continue
			}
			return nil, err
		}
		expiry := time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
		return &LoginResult{Token: &oauth2.Token{
			AccessToken:  tokenResp.AccessToken,
			RefreshToken: tokenResp.RefreshToken,
			TokenType:    tokenResp.TokenType,
			Expiry:       expiry,
		}}, nil
	}
	return nil, errors.New("device code sign-in did not complete after too many polls")
}

func requestDeviceCode(ctx context.Context, client *http.Client, endpoint string, cfg ProviderConfig, resource string) (*deviceCodeResponse, error) {
	values := url.Values{}
	values.Set("client_id", cfg.ClientID)
	values.Set("scope", strings.Join(cfg.tokenScopes(resource), " "))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(values.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("device authorization request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	var payload struct {
		deviceCodeResponse
		Error     string `json:"error,omitempty"`
		ErrorDesc string `json:"error_description,omitempty"`
	}
	if err := decodeJSONBody(resp, &payload); err != nil {
		return nil, err
	}
	if payload.Error != "" {
		return nil, fmt.Errorf("device authorization failed: %s: %s", payload.Error, payload.ErrorDesc)
	}
	if payload.DeviceCode == "" {
		return nil, errors.New("device authorization response had no device code")
	}
	return &payload.deviceCodeResponse, nil
}

// pollDeviceToken classifies one poll of the token endpoint.
// authorization_pending and slow_down keep the session alive; any other
// error is terminal and surfaced verbatim.
func pollDeviceToken(ctx context.Context, client *http.Client, endpoint string, cfg ProviderConfig, deviceCode string) (*tokenResponse, error) {
	values := url.Values{}
	values.Set("grant_type", deviceCodeGrant)
	values.Set("device_code", deviceCode)
	values.Set("client_id", cfg.ClientID)
	payload, err := postTokenForm(ctx, client, endpoint, values)
	if err != nil {
		return nil, err
	}
	switch payload.Error {
	case "":
		return payload, nil
	case "authorization_pending":
		return nil, errAuthorizationPending
	case "slow_down":
		return nil, errSlowDown
	case "expired_token":
		return nil, errors.New("device code expired before the sign-in was completed")
	case "authorization_declined":
		return nil, errors.New("sign-in was declined")
	default:
		return nil, fmt.Errorf("device code sign-in failed: %w", payload.protocolError())
	}
}
