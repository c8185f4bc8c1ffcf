package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// HTTP fetches objects from {base}/{request_id}/{object_name}, the layout the
// result bucket is served under.
type HTTP struct {
	base    string
	client  *http.Client
	headers map[string]string
}

// NewHTTP creates an HTTP fetcher. A nil client uses http.DefaultClient.
func NewHTTP(base string, client *http.Client) *HTTP {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTP{
		base:    strings.TrimRight(base, "/"),
		client:  client,
		headers: map[string]string{"Accept": "*/*"},
	}
}

// URL returns the address the object is fetched from.
func (h *HTTP) URL(ref Ref) string {
	return h.base + "/" + url.PathEscape(ref.RequestID) + "/" + url.PathEscape(ref.Name())
}

// Fetch issues a GET and returns the body. Any status other than 200 is an
// error.
func (h *HTTP) Fetch(ctx context.Context, ref Ref) (io.ReadCloser, int64, error) {
	u := h.URL(ref)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, 0, fmt.Errorf("GET %s: HTTP %s", u, resp.Status)
	}

	return resp.Body, resp.ContentLength, nil
}
