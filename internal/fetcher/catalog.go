package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// FetchCatalog issues the provider's listing call for one action
// (get_live_categories, get_vod_streams, get_series, ...) and returns the
// raw records. The response must be a JSON array; anything else is a
// FetchError, including the {user_info: ...} error objects some panels
// return on bad credentials.
func (c *Client) FetchCatalog(ctx context.Context, dns, username, password, action string) ([]map[string]any, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &FetchError{Action: action, Err: err}
	}
	// Encode to prevent query injection from special chars in credentials.
	u := strings.TrimSuffix(dns, "/") + "/player_api.php?username=" + url.QueryEscape(username) +
		"&password=" + url.QueryEscape(password) + "&action=" + url.QueryEscape(action)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &FetchError{Action: action, Err: err}
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &FetchError{Action: action, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{Action: action, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Action: action, Err: err}
	}
	var records []map[string]any
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, &FetchError{Action: action, Err: fmt.Errorf("expected JSON array, got %s", previewBody(body))}
	}
	return records, nil
}

// previewBody truncates a response body for error messages.
func previewBody(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 120 {
		s = s[:120] + "..."
	}
	if s == "" {
		return "empty body"
	}
	return s
}
