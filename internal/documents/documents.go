// Package documents is the port to the file storage collaborator. The core
// never processes file contents; declaration fields of type "file" carry
// opaque references that are verified and presigned through this service.
package documents

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	dErrors "civreg/pkg/domain-errors"
)

// Service is the documents collaborator contract.
type Service interface {
	// Exists reports whether the referenced file is stored.
	Exists(ctx context.Context, ref string) (bool, error)
	// Presign returns a short-lived download URL for the reference.
	Presign(ctx context.Context, ref string) (string, error)
	// Delete removes the referenced file.
	Delete(ctx context.Context, ref string) error
}

const defaultTimeout = 3 * time.Second

// HTTPClient talks to the documents service.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPClient constructs a documents service client.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &HTTPClient{baseURL: baseURL, http: &http.Client{Timeout: timeout}}
}

func (c *HTTPClient) Exists(ctx context.Context, ref string) (bool, error) {
	resp, err := c.do(ctx, http.MethodHead, ref, "")
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, dErrors.Newf(dErrors.CodeUnavailable, "documents service returned %d", resp.StatusCode)
	}
}

func (c *HTTPClient) Presign(ctx context.Context, ref string) (string, error) {
	resp, err := c.do(ctx, http.MethodGet, ref, "/presign")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", dErrors.Newf(dErrors.CodeNotFound, "document %q not found", ref)
	}
	if resp.StatusCode != http.StatusOK {
		return "", dErrors.Newf(dErrors.CodeUnavailable, "documents service returned %d", resp.StatusCode)
	}
	location := resp.Header.Get("Location")
	if location == "" {
		return "", dErrors.New(dErrors.CodeUnavailable, "documents service returned no presigned URL")
	}
	return location, nil
}

func (c *HTTPClient) Delete(ctx context.Context, ref string) error {
	resp, err := c.do(ctx, http.MethodDelete, ref, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent &&
		resp.StatusCode != http.StatusNotFound {
		return dErrors.Newf(dErrors.CodeUnavailable, "documents service returned %d", resp.StatusCode)
	}
	return nil
}

func (c *HTTPClient) do(ctx context.Context, method, ref, suffix string) (*http.Response, error) {
	endpoint := fmt.Sprintf("%s/files/%s%s", c.baseURL, url.PathEscape(ref), suffix)
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "build documents request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "documents service timed out")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "documents service unreachable")
	}
	return resp, nil
}

// Memory is an in-process documents store for tests and local mode.
type Memory struct {
	mu    sync.RWMutex
	files map[string]struct{}
}

// NewMemory returns an empty in-memory documents store.
func NewMemory(refs ...string) *Memory {
	m := &Memory{files: make(map[string]struct{})}
	for _, ref := range refs {
		m.files[ref] = struct{}{}
	}
	return m
}

// Put registers a file reference as stored.
func (m *Memory) Put(ref string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[ref] = struct{}{}
}

func (m *Memory) Exists(_ context.Context, ref string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.files[ref]
	return ok, nil
}

func (m *Memory) Presign(_ context.Context, ref string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.files[ref]; !ok {
		return "", dErrors.Newf(dErrors.CodeNotFound, "document %q not found", ref)
	}
	return "memory://" + strings.TrimPrefix(ref, "/"), nil
}

func (m *Memory) Delete(_ context.Context, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, ref)
	return nil
}
