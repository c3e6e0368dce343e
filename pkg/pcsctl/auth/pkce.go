package auth

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

const (
	callbackTimeout = 120 * time.Second

	// Loopback redirect ports are probed in the dynamic/private range.
	portRangeStart = 49152
	portRangeEnd   = 65535
	portAttempts   = 20
)

var (
	// ErrNoListener means no loopback port could be bound; callers fall
	// back to the device code flow.
	ErrNoListener = errors.New("no free loopback port for the login callback")

	// ErrStateMismatch means the callback carried a state value other than
	// the one this flow issued. Possibly a forged request against the
	// local listener; the attempt is aborted without exchanging the code.
	ErrStateMismatch = errors.New("state mismatch in login callback")

	// ErrCallbackTimeout means the browser never delivered a code.
	ErrCallbackTimeout = errors.New("timed out waiting for the browser login")
)

const callbackPage = `<!DOCTYPE html>
<html><head><title>pcsctl</title></head>
<body><p>Authentication complete. You can close this window and return to the terminal.</p></body></html>`

// newCodeVerifier returns a PKCE code verifier: 43 unreserved characters
// derived from 32 bytes of crypto/rand output.
func newCodeVerifier() (string, error) {
	return randomToken(32)
}

func codeChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// listenLoopback binds a listener on an ephemeral loopback port, probing
// random candidates in the dynamic range for a bounded number of
// attempts.
func listenLoopback() (net.Listener, int, error) {
	for i := 0; i < portAttempts; i++ {
		port := portRangeStart + rand.Intn(portRangeEnd-portRangeStart+1)
		listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err == nil {
			return listener, port, nil
		}
	}
	return nil, 0, ErrNoListener
}

// BrowserLogin runs the authorization-code-with-PKCE flow: it binds a
// single-use loopback listener, opens the browser at the authorization
// URL, waits for the redirect to deliver the code, and exchanges it for
// tokens. The listener is torn down on every exit path.
func BrowserLogin(ctx context.Context, cfg ProviderConfig, resource string, w io.Writer) (*LoginResult, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	client, err := cfg.httpClient()
	if err != nil {
		return nil, err
	}

	verifier, err := newCodeVerifier()
	if err != nil {
		return nil, err
	}
	state, err := randomToken(16)
	if err != nil {
		return nil, err
	}

	listener, port, err := listenLoopback()
	if err != nil {
		return nil, err
	}
	redirectURL := fmt.Sprintf("http://localhost:%d", port)

	endpoints := cfg.resolveEndpoints(ctx, client)
	oauthCfg := oauth2.Config{
		ClientID: cfg.ClientID,
		Endpoint: oauth2.Endpoint{
			AuthURL:  endpoints.AuthorizeURL,
			TokenURL: endpoints.TokenURL,
		},
		RedirectURL: redirectURL,
		Scopes:      cfg.tokenScopes(resource),
	}

	authOpts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("code_challenge", codeChallenge(verifier)),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
		oauth2.SetAuthURLParam("prompt", "select_account"),
	}
	if cfg.LoginHint != "" {
		authOpts = append(authOpts, oauth2.SetAuthURLParam("login_hint", cfg.LoginHint))
	}
	authURL := oauthCfg.AuthCodeURL(state, authOpts...)

	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)
	var once sync.Once

	server := &http.Server{
		Handler: http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			// Exactly one callback is served; anything after the first
			// request (valid or not) is ignored while the server drains.
			once.Do(func() {
				// The response is flushed before the flow is signalled so
				// closing the server cannot swallow it.
				flush := func() {
					if f, ok := rw.(http.Flusher); ok {
						f.Flush()
					}
				}
				query := r.URL.Query()
				if query.Get("state") != state {
					http.Error(rw, "state mismatch", http.StatusBadRequest)
					flush()
					errCh <- ErrStateMismatch
					return
				}
				code := query.Get("code")
				if code == "" {
					http.Error(rw, "missing code", http.StatusBadRequest)
					flush()
					errCh <- errors.New("missing code in login callback")
					return
				}
				rw.Header().Set("Content-Type", "text/html; charset=utf-8")
				_, _ = fmt.Fprint(rw, callbackPage)
				flush()
				codeCh <- code
			})
		}),
	}
	// Guaranteed release: the listener dies with the flow no matter which
	// branch below exits first.
	defer func() {
		_ = server.Close()
	}()
	go func() {
		_ = server.Serve(listener)
	}()

	_, _ = fmt.Fprintf(w, "Open the following URL in your browser to sign in:\n%s\n", authURL)
	if !cfg.NoBrowser {
		if err := openBrowser(authURL); err != nil {
			cfg.log().Debugw("failed to open browser", "error", err)
		}
	}

	var code string
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(callbackTimeout):
		return nil, fmt.Errorf("%w; retry with --device-code", ErrCallbackTimeout)
	case err := <-errCh:
		return nil, err
	case code = <-codeCh:
	}

	exchangeCtx := context.WithValue(ctx, oauth2.HTTPClient, client)
	token, err := oauthCfg.Exchange(exchangeCtx, code, oauth2.SetAuthURLParam("code_verifier", verifier))
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.ErrorCode != "" {
			return nil, fmt.Errorf("authorization code exchange failed: %s: %s", retrieveErr.ErrorCode, retrieveErr.ErrorDescription)
		}
		return nil, fmt.Errorf("authorization code exchange failed: %w", err)
	}
	return &LoginResult{Token: token}, nil
}
