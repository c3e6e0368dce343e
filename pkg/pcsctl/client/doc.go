// Package client is the authenticated HTTP client pcsctl uses to talk to
// the Power Platform resource APIs. Tokens come from a TokenProvider
// (normally the auth broker); requests carry a correlation ID and are
// paced by a client-side rate limiter to stay under service protection
// limits.
package client
