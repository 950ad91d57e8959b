// Package remote is the client for the store's bulk endpoint.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/roach88/gridsync/internal/ir"
)

// BulkPath is the bulk endpoint, relative to the base URL.
const BulkPath = "generic_bulk_crud_operation_master_data"

// FetchOperation is the operation parameter sent with fetch requests.
const FetchOperation = "select"

// DefaultTimeout bounds a single store call.
const DefaultTimeout = 30 * time.Second

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 32 << 20

// Store is the remote record store as the reconciler sees it.
type Store interface {
	// Bulk submits one batch and returns the store's flat result list.
	Bulk(ctx context.Context, req ir.BatchRequest) (ir.BulkResponse, error)

	// Fetch returns every active record of a target.
	Fetch(ctx context.Context, target string) ([]ir.IRObject, error)
}

// StoreError is a failure reported by the store itself, either through a
// non-2xx status or a top-level "error" field.
type StoreError struct {
	Status  int
	Message string
}

func (e *StoreError) Error() string {
	if e.Status != 0 && e.Status != http.StatusOK {
		return fmt.Sprintf("store error (HTTP %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("store error: %s", e.Message)
}

// IsStoreError reports whether err came from the store rather than the
// network.
func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}

// Client talks to the bulk endpoint over HTTP.
type Client struct {
	base   *url.URL
	apiKey string
	http   *http.Client
	logger *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithTimeout sets the per-call timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// NewClient creates a client for the store at baseURL. The API key is sent
// both as a bearer token and as the apikey header.
func NewClient(baseURL, apiKey string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("parse store endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("store endpoint %q must be an http or https URL", baseURL)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}

	c := &Client{
		base:   u,
		apiKey: apiKey,
		http:   &http.Client{Timeout: DefaultTimeout},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) endpoint() *url.URL {
	return c.base.ResolveReference(&url.URL{Path: BulkPath})
}

// Bulk submits one batch. A transport failure, a non-2xx status, a body
// that is not a bulk response (no data or errors list), or a top-level
// "error" field all fail the call; per-row errors are returned in the
// response.
func (c *Client) Bulk(ctx context.Context, req ir.BatchRequest) (ir.BulkResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return ir.BulkResponse{}, fmt.Errorf("encode bulk request: %w", err)
	}

	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint().String(), bytes.NewReader(body))
	if err != nil {
		return ir.BulkResponse{}, fmt.Errorf("create bulk request: %w", err)
	}
	hreq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	var raw struct {
		Data   *[]ir.RemoteOutcome `json:"data"`
		Error  string              `json:"error"`
		Errors []ir.StoreRowError  `json:"errors"`
	}
	if err := c.do(hreq, &raw); err != nil {
		return ir.BulkResponse{}, err
	}
	if raw.Error != "" {
		return ir.BulkResponse{}, &StoreError{Status: http.StatusOK, Message: raw.Error}
	}
	// A response of only per-row errors is valid; one with neither list is not.
	if raw.Data == nil && raw.Errors == nil {
		return ir.BulkResponse{}, fmt.Errorf("bulk %s: invalid response format, expected a data array", req.Target)
	}
	resp := ir.BulkResponse{Errors: raw.Errors}
	if raw.Data != nil {
		resp.Data = *raw.Data
	}

	c.logger.Debug("bulk call complete",
		"target", req.Target,
		"operation", req.Intent,
		"rows", len(req.Rows),
		"outcomes", len(resp.Data),
		"errors", len(resp.Errors),
		"elapsed", time.Since(start),
	)
	return resp, nil
}

// Fetch returns every active record of target.
func (c *Client) Fetch(ctx context.Context, target string) ([]ir.IRObject, error) {
	if target == "" {
		return nil, fmt.Errorf("fetch: table name is required")
	}
	u := c.endpoint()
	q := u.Query()
	q.Set("table_name", target)
	q.Set("operation", FetchOperation)
	u.RawQuery = q.Encode()

	hreq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create fetch request: %w", err)
	}

	var resp struct {
		Data  *[]ir.IRObject `json:"data"`
		Error string         `json:"error"`
	}
	if err := c.do(hreq, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, &StoreError{Status: http.StatusOK, Message: resp.Error}
	}
	if resp.Data == nil {
		return nil, fmt.Errorf("fetch %s: invalid response format, expected a data array", target)
	}
	c.logger.Debug("fetch complete", "target", target, "records", len(*resp.Data))
	return *resp.Data, nil
}

// do sends the request with auth headers and decodes a JSON body into out.
func (c *Client) do(hreq *http.Request, out any) error {
	if c.apiKey != "" {
		hreq.Header.Set("Authorization", "Bearer "+c.apiKey)
		hreq.Header.Set("apikey", c.apiKey)
	}
	hreq.Header.Set("Accept", "application/json")

	hresp, err := c.http.Do(hreq)
	if err != nil {
		return fmt.Errorf("%s %s: %w", hreq.Method, hreq.URL.Path, err)
	}
	defer hresp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(hresp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if hresp.StatusCode < 200 || hresp.StatusCode > 299 {
		return &StoreError{Status: hresp.StatusCode, Message: errorMessage(data, hresp.Status)}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Errorf("%s %s: empty response from store", hreq.Method, hreq.URL.Path)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// errorMessage extracts {"error": ...} or {"message": ...} from an error
// body, falling back to the HTTP status text.
func errorMessage(body []byte, fallback string) string {
	var e struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &e) == nil {
		if e.Error != "" {
			return e.Error
		}
		if e.Message != "" {
			return e.Message
		}
	}
	if s := strings.TrimSpace(string(body)); s != "" && len(s) < 512 {
		return s
	}
	return fallback
}
