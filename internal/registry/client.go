package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	organizationsPath = "/external-organizations"
	mergePath         = "/external-organizations/merge"
	// SystemName tags every merge item.
	SystemName = "ExternalOrganization"

	maxErrorBody = 512
)

// HTTPDoer describes the HTTP client used by the registry client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the research-information registry's external-organization API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient HTTPDoer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client HTTPDoer) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout sets the default client's request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

// New constructs a registry client. baseURL is the API root that contains
// /external-organizations.
func New(baseURL, apiKey string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	apiKey = strings.TrimSpace(apiKey)
	if baseURL == "" {
		return nil, errors.New("registry base url required")
	}
	if apiKey == "" {
		return nil, errors.New("registry api key required")
	}
	client := &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// StatusError reports an unexpected HTTP status from the registry.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s returned %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s returned %d: %s", e.Op, e.StatusCode, e.Body)
}

// StatusCode extracts the HTTP status from err, or 0 when err carries none.
func StatusCode(err error) int {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}

// ListOrganizations fetches one page of external organizations.
func (c *Client) ListOrganizations(ctx context.Context, size, offset int) (*Page, error) {
	params := url.Values{}
	params.Set("size", strconv.Itoa(size))
	params.Set("offset", strconv.Itoa(offset))
	endpoint := c.baseURL + organizationsPath + "?" + params.Encode()

	var page Page
	if err := c.getJSON(ctx, "list organizations", endpoint, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetOrganization fetches the full record for uuid.
func (c *Client) GetOrganization(ctx context.Context, uuid string) (*Organization, error) {
	uuid = strings.TrimSpace(uuid)
	if uuid == "" {
		return nil, errors.New("organization uuid required")
	}
	endpoint := c.baseURL + organizationsPath + "/" + url.PathEscape(uuid)

	var org Organization
	if err := c.getJSON(ctx, "get organization", endpoint, &org); err != nil {
		return nil, err
	}
	if org.UUID == "" {
		org.UUID = uuid
	}
	return &org, nil
}

// UpdateIdentifiers replaces the identifier list of uuid. The registry answers
// 200 or 204 on success; any other status is returned as a *StatusError.
func (c *Client) UpdateIdentifiers(ctx context.Context, uuid string, version json.RawMessage, identifiers []json.RawMessage) (int, error) {
	uuid = strings.TrimSpace(uuid)
	if uuid == "" {
		return 0, errors.New("organization uuid required")
	}
	if !HasVersion(version) {
		return 0, ErrNoVersion
	}
	if identifiers == nil {
		identifiers = []json.RawMessage{}
	}
	body, err := json.Marshal(updateRequest{Version: version, Identifiers: identifiers})
	if err != nil {
		return 0, fmt.Errorf("encode update request: %w", err)
	}
	endpoint := c.baseURL + organizationsPath + "/" + url.PathEscape(uuid)

	resp, err := c.do(ctx, http.MethodPut, endpoint, body)
	if err != nil {
		return 0, fmt.Errorf("update organization: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return resp.StatusCode, &StatusError{Op: "update organization", StatusCode: resp.StatusCode, Body: readErrorBody(resp.Body)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

// Merge asks the registry to merge uuids into the first entry. Any 2xx status
// counts as accepted.
func (c *Client) Merge(ctx context.Context, uuids []string) (int, error) {
	if len(uuids) < 2 {
		return 0, fmt.Errorf("merge requires at least two records, got %d", len(uuids))
	}
	payload := mergeRequest{Items: make([]mergeItem, 0, len(uuids))}
	for _, id := range uuids {
		payload.Items = append(payload.Items, mergeItem{UUID: id, SystemName: SystemName})
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("encode merge request: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, c.baseURL+mergePath, body)
	if err != nil {
		return 0, fmt.Errorf("merge organizations: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, &StatusError{Op: "merge organizations", StatusCode: resp.StatusCode, Body: readErrorBody(resp.Body)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func (c *Client) getJSON(ctx context.Context, op, endpoint string, out any) error {
	resp, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: readErrorBody(resp.Body)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", op, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("api-key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.httpClient.Do(req)
}

func readErrorBody(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	return strings.TrimSpace(string(data))
}
