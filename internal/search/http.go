package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	id "civreg/pkg/domain"
	dErrors "civreg/pkg/domain-errors"
)

const defaultHTTPTimeout = 3 * time.Second

// HTTPClient talks to the search service over HTTP. Every call carries a
// bounded timeout: a search that times out must surface as a retryable
// upstream error, never as a silently empty result.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPClient constructs a search service client.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout == 0 {
		timeout = defaultHTTPTimeout
	}
	return &HTTPClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) Search(ctx context.Context, query Query) ([]Candidate, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "marshal search query")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/search/duplicates", bytes.NewReader(body))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "build search request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "duplicate search timed out")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "search service unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, dErrors.Newf(dErrors.CodeUnavailable, "search service returned %d", resp.StatusCode)
	}

	var candidates []Candidate
	if err := json.NewDecoder(resp.Body).Decode(&candidates); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "decode search response")
	}
	return candidates, nil
}

func (c *HTTPClient) Index(ctx context.Context, record Record) error {
	body, err := json.Marshal(record)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "marshal search record")
	}

	endpoint := fmt.Sprintf("%s/search/records/%s", c.baseURL, url.PathEscape(record.EventID.String()))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(body))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "build index request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "search service unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return dErrors.Newf(dErrors.CodeUnavailable, "search service returned %d", resp.StatusCode)
	}
	return nil
}

func (c *HTTPClient) Delete(ctx context.Context, eventID id.EventID) error {
	endpoint := fmt.Sprintf("%s/search/records/%s", c.baseURL, url.PathEscape(eventID.String()))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "build delete request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "search service unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent &&
		resp.StatusCode != http.StatusNotFound {
		return dErrors.Newf(dErrors.CodeUnavailable, "search service returned %d", resp.StatusCode)
	}
	return nil
}
