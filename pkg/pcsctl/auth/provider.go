package auth

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"go.uber.org/zap"
)

const (
	// DefaultAuthority is the Microsoft identity platform login endpoint.
	DefaultAuthority = "https://login.microsoftonline.com"

	// TenantCommon is the multi-tenant wildcard. Profiles configured with
	// it adopt the concrete tenant resolved from the first login token.
	TenantCommon = "common"
)

// ProviderConfig describes the identity provider and client identity used
// by the login flows and the token broker. It replaces any package-level
// defaults; callers construct one per profile.
type ProviderConfig struct {
	Authority       string
	TenantID        string
	ClientID        string
	Scopes          []string
	LoginHint       string
	CAFile          string
	InsecureSkipTLS bool
	NoBrowser       bool
	Logger          *zap.SugaredLogger
}

// Endpoints holds the resolved OAuth2 endpoint URLs for one tenant.
type Endpoints struct {
	AuthorizeURL  string
	TokenURL      string
	DeviceAuthURL string
}

func (c ProviderConfig) validate() error {
	if c.ClientID == "" {
		return errors.New("client-id is required")
	}
	return nil
}

func (c ProviderConfig) authority() string {
	if c.Authority == "" {
		return DefaultAuthority
	}
	return strings.TrimRight(c.Authority, "/")
}

func (c ProviderConfig) tenant() string {
	if c.TenantID == "" {
		return TenantCommon
	}
	return c.TenantID
}

func (c ProviderConfig) log() *zap.SugaredLogger {
	if c.Logger != nil {
		return c.Logger
	}
	return zap.NewNop().Sugar()
}

// issuerURL is the OIDC issuer for the configured tenant, used for
// endpoint discovery.
func (c ProviderConfig) issuerURL(tenant string) string {
	return fmt.Sprintf("%s/%s/v2.0", c.authority(), tenant)
}

// fixedEndpoints constructs the documented v2.0 endpoint shape without a
// network round-trip. Used when discovery is unavailable and for the
// refresh grant, which runs on every cold token fetch.
func (c ProviderConfig) fixedEndpoints(tenant string) Endpoints {
	base := fmt.Sprintf("%s/%s/oauth2/v2.0", c.authority(), tenant)
	return Endpoints{
		AuthorizeURL:  base + "/authorize",
		TokenURL:      base + "/token",
		DeviceAuthURL: base + "/devicecode",
	}
}

// resolveEndpoints discovers the provider's endpoints via OIDC discovery,
// falling back to the fixed v2.0 shape. The "common" pseudo-tenant does
// not publish a spec-conformant issuer, so discovery is skipped for it.
func (c ProviderConfig) resolveEndpoints(ctx context.Context, client *http.Client) Endpoints {
	tenant := c.tenant()
	if tenant == TenantCommon {
		return c.fixedEndpoints(tenant)
	}
	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, client), c.issuerURL(tenant))
	if err != nil {
		c.log().Debugw("oidc discovery failed, using fixed endpoints", "error", err)
		return c.fixedEndpoints(tenant)
	}
	var extra struct {
		DeviceAuthorizationEndpoint string `json:"device_authorization_endpoint"`
	}
	_ = provider.Claims(&extra)
	endpoints := Endpoints{
		AuthorizeURL:  provider.Endpoint().AuthURL,
		TokenURL:      provider.Endpoint().TokenURL,
		DeviceAuthURL: extra.DeviceAuthorizationEndpoint,
	}
	if endpoints.DeviceAuthURL == "" {
		endpoints.DeviceAuthURL = c.fixedEndpoints(tenant).DeviceAuthURL
	}
	return endpoints
}

// tokenScopes returns the scope set requested for a resource: its default
// scope plus offline_access so the provider issues a refresh token.
func (c ProviderConfig) tokenScopes(resource string) []string {
	scopes := []string{strings.TrimRight(resource, "/") + "/.default", oidc.ScopeOfflineAccess}
	scopes = append(scopes, c.Scopes...)
	return scopes
}

func (c ProviderConfig) httpClient() (*http.Client, error) {
	tlsConfig, err := loadTLSConfig(c.CAFile, c.InsecureSkipTLS)
	if err != nil {
		return nil, err
	}
	return &http.Client{
		Transport: &http.Transport{TLSClientConfig: tlsConfig},
		Timeout:   30 * time.Second,
	}, nil
}

func loadTLSConfig(caFile string, insecure bool) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: insecure}
	if caFile == "" {
		return tlsConfig, nil
	}
	data, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if ok := pool.AppendCertsFromPEM(data); !ok {
		return nil, errors.New("failed to parse CA file")
	}
	tlsConfig.RootCAs = pool
	return tlsConfig, nil
}

// tokenResponse is the provider's /token response for all three grant
// shapes. Error and ErrorDesc are set on protocol failures.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	Error        string `json:"error,omitempty"`
	ErrorDesc    string `json:"error_description,omitempty"`
}

func (r *tokenResponse) protocolError() error {
	if r.Error == "" {
		return nil
	}
	if r.ErrorDesc != "" {
		return fmt.Errorf("%s: %s", r.Error, r.ErrorDesc)
	}
	return errors.New(r.Error)
}

// postTokenForm submits a form to the token endpoint and decodes the JSON
// body regardless of HTTP status; OAuth2 error responses arrive as 400s
// with an error field the caller classifies.
func postTokenForm(ctx context.Context, client *http.Client, endpoint string, values url.Values) (*tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(values.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token endpoint unreachable: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	var payload tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	return &payload, nil
}

func decodeJSONBody(resp *http.Response, out any) error {
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func randomToken(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Start()
}
