package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// TokenProvider mints a bearer token for the client's resource. The auth
// broker satisfies this.
type TokenProvider func(ctx context.Context) (string, error)

type Client struct {
	r       *resty.Client
	limiter *rate.Limiter
	tokens  TokenProvider
}

type Option func(*Client) error

func New(baseURL string, tokens TokenProvider, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("base URL is required")
	}
	if tokens == nil {
		return nil, errors.New("token provider is required")
	}
	c := &Client{
		r: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetHeader("Accept", "application/json").
			SetHeader("User-Agent", "pcsctl").
			SetTimeout(30 * time.Second),
		limiter: rate.NewLimiter(rate.Limit(20), 40),
		tokens:  tokens,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func WithUserAgent(userAgent string) Option {
	return func(c *Client) error {
		c.r.SetHeader("User-Agent", userAgent)
		return nil
	}
}

// WithRateLimit overrides the default request pacing.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) error {
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		return nil
	}
}

func WithTLSConfig(caFile string, insecureSkipTLSVerify bool) Option {
	return func(c *Client) error {
		tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: insecureSkipTLSVerify}
		if caFile != "" {
			data, err := os.ReadFile(caFile)
			if err != nil {
				return fmt.Errorf("failed to read CA file: %w", err)
			}
			pool := x509.NewCertPool()
			if ok := pool.AppendCertsFromPEM(data); !ok {
				return errors.New("failed to parse CA file")
			}
			tlsConfig.RootCAs = pool
		}
		c.r.SetTLSClientConfig(tlsConfig)
		return nil
	}
}

// Do issues one authenticated JSON request. path may be absolute or
// relative to the base URL; out may be nil when the body is irrelevant.
func (c *Client) Do(ctx context.Context, method, path string, body any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	token, err := c.tokens(ctx)
	if err != nil {
		return err
	}
	req := c.r.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("x-ms-client-request-id", uuid.NewString())
	if body != nil {
		req.SetHeader("Content-Type", "application/json")
		req.SetBody(body)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return decodeError(resp)
	}
	if out == nil || len(resp.Body()) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// APIError is a non-2xx response from a resource API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("request failed (%d): %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("request failed (%d): %s", e.StatusCode, e.Message)
}

// decodeError handles the two error shapes the Power Platform APIs emit:
// a nested {"error":{"code","message"}} object and a bare string error.
func decodeError(resp *resty.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode()}
	body := resp.Body()
	var nested struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &nested); err == nil {
		apiErr.Code = nested.Error.Code
		apiErr.Message = nested.Error.Message
		if apiErr.Message == "" {
			apiErr.Message = nested.Message
		}
	}
	if apiErr.Message == "" {
		var flat struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(body, &flat)
		apiErr.Message = flat.Error
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode())
	}
	return apiErr
}
