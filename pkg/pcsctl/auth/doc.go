// Package auth implements the pcsctl authentication subsystem: OAuth2
// authorization-code-with-PKCE and device-code login flows against an
// Azure AD style v2.0 identity provider, durable per-profile refresh
// token storage, a process-scoped access token cache, and a broker that
// exchanges refresh tokens for resource-scoped access tokens.
package auth
