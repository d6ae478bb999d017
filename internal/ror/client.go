package ror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Organization is the canonical organization attached to a match candidate.
type Organization struct {
	ID   *string `json:"id"`
	Name *string `json:"name"`
}

// Item is one affiliation match candidate. Pointer fields distinguish absent
// values from zero values.
type Item struct {
	Score        *json.Number  `json:"score"`
	Organization *Organization `json:"organization"`
	Substring    *string       `json:"substring"`
	Chosen       *bool         `json:"chosen"`
	MatchingType *string       `json:"matching_type"`
}

// Response models the affiliation search response.
type Response struct {
	NumberOfResults int    `json:"number_of_results"`
	Items           []Item `json:"items"`
}

// Searcher defines the matcher operations used by the enrichment pipeline.
type Searcher interface {
	Search(ctx context.Context, affiliation string) (*Response, error)
}

// HTTPDoer describes the HTTP client used by the matcher client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client provides access to the organization affiliation search endpoint.
type Client struct {
	baseURL    string
	httpClient HTTPDoer
}

var _ Searcher = (*Client)(nil)

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

// New creates a matcher client.
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("matcher base url required")
	}
	client := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Search queries the affiliation endpoint with the supplied organization name.
func (c *Client) Search(ctx context.Context, affiliation string) (*Response, error) {
	affiliation = strings.TrimSpace(affiliation)
	if affiliation == "" {
		return nil, errors.New("affiliation must not be empty")
	}
	endpoint, err := url.Parse(c.baseURL + "/organizations")
	if err != nil {
		return nil, fmt.Errorf("parse matcher url: %w", err)
	}
	params := url.Values{}
	params.Set("affiliation", affiliation)
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	requestStart := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		return nil, fmt.Errorf("execute request (latency=%v): %w", latency, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &StatusError{StatusCode: resp.StatusCode, Latency: latency}
	}

	var payload Response
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode matcher response: %w", err)
	}
	return &payload, nil
}

// StatusError reports a non-200 answer from the matcher service.
type StatusError struct {
	StatusCode int
	Latency    time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("matcher search returned %d (latency=%v)", e.StatusCode, e.Latency)
}
