// Package shopify is a client for the Shopify Admin GraphQL API: a single
// Execute primitive plus the catalog snapshot queries built on it.
package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/syncshop/catalog-audit/internal/ratelimit"
)

// DefaultAPIVersion is the Admin API version the queries are written against.
const DefaultAPIVersion = "2024-07"

// Client talks to one shop.
type Client struct {
	endpoint   string
	token      string
	httpClient *http.Client
	limiter    *ratelimit.ServiceLimiter
	logger     *slog.Logger

	batchSize     int
	concurrency   int
	pollInterval  time.Duration
	bulkInventory bool
}

// Option configures a Client.
type Option func(*Client)

// WithLimiter rate-limits calls by class.
func WithLimiter(l *ratelimit.ServiceLimiter) Option { return func(c *Client) { c.limiter = l } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(c *Client) { c.logger = l } }

// WithBatchSize sets how many SKUs go into one variant search query.
func WithBatchSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithConcurrency bounds how many SKU batches are fetched at once.
func WithConcurrency(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithPollInterval sets the bulk operation status poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithBulkInventory includes per-location inventory levels in bulk exports.
func WithBulkInventory(on bool) Option { return func(c *Client) { c.bulkInventory = on } }

// ShopEndpoint builds the GraphQL endpoint for a shop name, accepting the
// bare name, the myshopify domain or a full URL.
func ShopEndpoint(shop, version string) string {
	if version == "" {
		version = DefaultAPIVersion
	}
	return fmt.Sprintf("https://%s.myshopify.com/admin/api/%s/graphql.json", ShopName(shop), version)
}

// ShopName strips scheme, path and the myshopify domain from a shop reference.
func ShopName(shop string) string {
	s := strings.TrimSpace(shop)
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	if i := strings.Index(s, "/"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSuffix(s, ".myshopify.com")
}

// New creates a client for the named shop.
func New(shop, token, version string, opts ...Option) *Client {
	return NewWithHTTPClient(ShopEndpoint(shop, version), token, &http.Client{Timeout: 60 * time.Second}, opts...)
}

// NewWithHTTPClient creates a client against an explicit endpoint (for testing).
func NewWithHTTPClient(endpoint, token string, httpClient *http.Client, opts ...Option) *Client {
	c := &Client{
		endpoint:     endpoint,
		token:        token,
		httpClient:   httpClient,
		logger:       slog.Default(),
		batchSize:    50,
		concurrency:  4,
		pollInterval: 5 * time.Second,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Response is a decoded GraphQL response. A non-empty Errors list is a
// response-level failure, distinct from a transport error.
type Response struct {
	Data   json.RawMessage `json:"data"`
	Errors []GraphQLError  `json:"errors,omitempty"`
}

// Err returns the response-level errors as one error, or nil.
func (r *Response) Err() error {
	if r == nil || len(r.Errors) == 0 {
		return nil
	}
	return GraphQLErrors(r.Errors)
}

// Decode unmarshals the data payload.
func (r *Response) Decode(v any) error {
	if r == nil || len(r.Data) == 0 || string(r.Data) == "null" {
		return fmt.Errorf("shopify: response has no data")
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("shopify: decode data: %w", err)
	}
	return nil
}

func mutationClass(query string) string {
	q := strings.TrimSpace(query)
	switch {
	case strings.HasPrefix(q, "mutation") && strings.Contains(q, "bulkOperationRunQuery"):
		return ratelimit.ClassBulk
	case strings.HasPrefix(q, "mutation"):
		return ratelimit.ClassMutation
	}
	return ratelimit.ClassQuery
}

// Execute posts one GraphQL request. Only failures to complete the call
// (network, non-2xx status, undecodable body) are returned as errors.
func (c *Client) Execute(ctx context.Context, query string, vars map[string]any) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, mutationClass(query)); err != nil {
			return nil, fmt.Errorf("shopify: %w", err)
		}
	}

	payload := map[string]any{"query": query}
	if len(vars) > 0 {
		payload["variables"] = vars
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("shopify: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("shopify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Access-Token", c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("shopify: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("shopify: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("shopify: decode response: %w", err)
	}
	return &out, nil
}

// query runs Execute and folds response-level errors into the error return.
// Read paths use it; the mutation dispatcher inspects Response itself.
func (c *Client) query(ctx context.Context, q string, vars map[string]any, into any) error {
	resp, err := c.Execute(ctx, q, vars)
	if err != nil {
		return err
	}
	if err := resp.Err(); err != nil {
		return err
	}
	return resp.Decode(into)
}
