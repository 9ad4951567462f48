package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Credentials are the transient (username, password) pair a provider's
// authentication endpoint issues. They are used for the duration of one job
// and never persisted; providers rotate them, so every job re-resolves.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	DNS      string `json:"dns,omitempty"` // some providers echo a DNS; the provider record's dns wins
}

// ResolveCredentials POSTs an empty body to the provider's apiEndpoint and
// decodes the credential pair. A response missing username or password is a
// CredentialError, as is any transport failure.
func (c *Client) ResolveCredentials(ctx context.Context, apiEndpoint string) (Credentials, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiEndpoint, strings.NewReader(""))
	if err != nil {
		return Credentials{}, &CredentialError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Credentials{}, &CredentialError{Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Credentials{}, &CredentialError{Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Credentials{}, &CredentialError{Err: err}
	}
	var creds Credentials
	if err := json.Unmarshal(body, &creds); err != nil {
		return Credentials{}, &CredentialError{Err: fmt.Errorf("decode: %w", err)}
	}
	var missing []string
	if creds.Username == "" {
		missing = append(missing, "username")
	}
	if creds.Password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return Credentials{}, &CredentialError{Err: fmt.Errorf("response missing %s", strings.Join(missing, ", "))}
	}
	return creds, nil
}
