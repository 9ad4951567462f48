// Package fetcher talks to the provider's two upstream surfaces: the
// credential-issuing endpoint and the player_api catalog endpoint.
// It does no retrying of its own; retries are the job queue's concern.
package fetcher

import (
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Client issues provider API calls with a shared timeout, User-Agent, and a
// rate limiter that paces catalog requests so a multi-kind sync does not
// hammer the provider.
type Client struct {
	http      *http.Client
	userAgent string
	limiter   *rate.Limiter
}

// New creates a Client. timeout bounds every individual call (credential
// resolution and catalog fetch alike); zero means 20s.
func New(timeout time.Duration, userAgent string) *Client {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		http:      &http.Client{Timeout: timeout},
		userAgent: userAgent,
		limiter:   rate.NewLimiter(rate.Limit(5), 5), // 5 req/s burst 5
	}
}

// CredentialError wraps a failure to obtain transient provider credentials.
type CredentialError struct {
	Err error
}

func (e *CredentialError) Error() string { return "resolve credentials: " + e.Err.Error() }
func (e *CredentialError) Unwrap() error { return e.Err }

// FetchError wraps a failed catalog listing call.
type FetchError struct {
	Action string
	Err    error
}

func (e *FetchError) Error() string { return "fetch " + e.Action + ": " + e.Err.Error() }
func (e *FetchError) Unwrap() error { return e.Err }
