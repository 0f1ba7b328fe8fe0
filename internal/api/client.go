package api

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

// Client talks to the vidflowd HTTP API.
type Client struct {
	base   string
	token  string
	client *http.Client
}

// StatusError is a non-2xx reply from the daemon.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("daemon returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("daemon returned HTTP %d: %s", e.StatusCode, e.Message)
}

// NewClient builds a client for bind, which may be host:port or a full URL.
func NewClient(bind, token string, httpClient *http.Client) *Client {
	base := strings.TrimRight(strings.TrimSpace(bind), "/")
	if base != "" && !strings.Contains(base, "://") {
		base = "http://" + base
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{base: base, token: strings.TrimSpace(token), client: httpClient}
}

// BaseURL returns the resolved daemon URL.
func (c *Client) BaseURL() string { return c.base }

// Status retrieves the daemon status.
func (c *Client) Status(ctx context.Context) (*DaemonStatus, error) {
	var resp DaemonStatus
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListExecutions lists archived executions, newest first.
func (c *Client) ListExecutions(ctx context.Context, statuses []string, limit int) ([]Execution, error) {
	query := url.Values{}
	for _, status := range statuses {
		if trimmed := strings.TrimSpace(status); trimmed != "" {
			query.Add("status", trimmed)
		}
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/executions"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var resp ExecutionListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Executions, nil
}

// GetExecution returns nil without error when the daemon does not know id.
func (c *Client) GetExecution(ctx context.Context, id string) (*Execution, error) {
	var resp ExecutionResponse
	err := c.do(ctx, http.MethodGet, "/api/executions/"+url.PathEscape(id), nil, &resp)
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &resp.Execution, nil
}

// StartExecution runs the pipeline on input without consulting the routing rule.
func (c *Client) StartExecution(ctx context.Context, input []byte) (string, error) {
	var resp StartExecutionResponse
	if err := c.do(ctx, http.MethodPost, "/api/executions", input, &resp); err != nil {
		return "", err
	}
	return resp.ExecutionID, nil
}

// SubmitUpload posts an upload event document. An ignored event returns an
// empty response.
func (c *Client) SubmitUpload(ctx context.Context, event []byte) (*UploadResponse, error) {
	var resp UploadResponse
	if err := c.do(ctx, http.MethodPost, "/api/uploads", event, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SubmitChanges posts a change-record batch.
func (c *Client) SubmitChanges(ctx context.Context, batch []byte) (*ChangeBatchResponse, error) {
	var resp ChangeBatchResponse
	if err := c.do(ctx, http.MethodPost, "/api/changes", batch, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	if c.base == "" {
		return errors.New("daemon api address is not configured")
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("contact daemon at %s: %w", c.base, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read daemon response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errBody ErrorResponse
		_ = json.Unmarshal(data, &errBody)
		return &StatusError{StatusCode: resp.StatusCode, Message: errBody.Error}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode daemon response: %w", err)
	}
	return nil
}
