package eventconfig

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	dErrors "civreg/pkg/domain-errors"

	"civreg/internal/event/models"
)

const defaultClientTimeout = 5 * time.Second

// Client fetches event configuration from the configuration service over
// HTTP. Calls carry a bounded timeout; failures surface as retryable
// unavailable/timeout errors, never as a silently skipped configuration.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient constructs a configuration service client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = defaultClientTimeout
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) Get(ctx context.Context, eventType models.EventType) (*Config, error) {
	endpoint := fmt.Sprintf("%s/config/events/%s", c.baseURL, url.PathEscape(string(eventType)))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "build config request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "configuration service timed out")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "configuration service unreachable")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, dErrors.Newf(dErrors.CodeNotFound, "no configuration for event type %q", eventType)
	case resp.StatusCode != http.StatusOK:
		return nil, dErrors.Newf(dErrors.CodeUnavailable, "configuration service returned %d", resp.StatusCode)
	}

	var cfg Config
	if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "decode configuration response")
	}
	return &cfg, nil
}
