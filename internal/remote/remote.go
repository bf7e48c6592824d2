// Package remote speaks to the collection-oriented backend. Authentication is
// supplied externally and carried opaquely; the adapter never mints or
// refreshes credentials.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

// Adapter is the capability surface the entity store needs from the backend:
// named collections supporting listing, equality filtering, insert, partial
// patch by id, and delete by id.
type Adapter interface {
	List(ctx context.Context, collection, orderKey string) ([]json.RawMessage, error)
	Filter(ctx context.Context, collection string, where map[string]any) ([]json.RawMessage, error)
	Create(ctx context.Context, collection string, record any) (json.RawMessage, error)
	Update(ctx context.Context, collection, id string, patch map[string]any) (json.RawMessage, error)
	Delete(ctx context.Context, collection, id string) error
}

// Client is a minimal HTTP client for the collection API.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

type listResponse struct {
	Items []json.RawMessage `json:"items"`
}

func (c *Client) List(ctx context.Context, collection, orderKey string) ([]json.RawMessage, error) {
	endpoint := c.collectionPath(collection)
	if orderKey != "" {
		endpoint = fmt.Sprintf("%s?order=%s", endpoint, url.QueryEscape(orderKey))
	}
	var resp listResponse
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

func (c *Client) Filter(ctx context.Context, collection string, where map[string]any) ([]json.RawMessage, error) {
	endpoint := c.collectionPath(collection)
	if len(where) > 0 {
		keys := make([]string, 0, len(where))
		for k := range where {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		params := url.Values{}
		for _, k := range keys {
			params.Set("eq."+k, fmt.Sprint(where[k]))
		}
		endpoint = endpoint + "?" + params.Encode()
	}
	var resp listResponse
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

func (c *Client) Create(ctx context.Context, collection string, record any) (json.RawMessage, error) {
	var resp json.RawMessage
	err := c.do(ctx, http.MethodPost, c.collectionPath(collection), record, &resp)
	return resp, err
}

func (c *Client) Update(ctx context.Context, collection, id string, patch map[string]any) (json.RawMessage, error) {
	var resp json.RawMessage
	endpoint := c.recordPath(collection, id)
	err := c.do(ctx, http.MethodPatch, endpoint, patch, &resp)
	return resp, err
}

func (c *Client) Delete(ctx context.Context, collection, id string) error {
	return c.do(ctx, http.MethodDelete, c.recordPath(collection, id), nil, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) collectionPath(collection string) string {
	return fmt.Sprintf("v0/collections/%s", url.PathEscape(collection))
}

func (c *Client) recordPath(collection, id string) string {
	return fmt.Sprintf("v0/collections/%s/%s", url.PathEscape(collection), url.PathEscape(id))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
