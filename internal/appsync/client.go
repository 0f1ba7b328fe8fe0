package appsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"vidflow/internal/cdc"
	"vidflow/internal/config"
	"vidflow/internal/services"
)

const (
	userAgent        = "vidflow/0.1.0"
	maxResponseBytes = 4 << 20
	defaultTimeout   = 10 * time.Second
)

// Mutation documents sent by the notifier.
const (
	CreateVideoMutation        = `mutation CreateVideo($input: CreateVideoInput!) { createVideo(input: $input) { id } }`
	CreateNotificationMutation = `mutation Notify($input: CreateVideoNotificationInput!) { createVideoNotification(input: $input) { id } }`
	pingQuery                  = `query Ping { __typename }`
)

// Client talks to one GraphQL endpoint.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
	timeout  time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the transport.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithTimeout bounds each request. Zero disables the per-request bound.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) { c.timeout = timeout }
}

// New constructs a client for endpoint.
func New(endpoint, apiKey string, opts ...Option) *Client {
	c := &Client{
		endpoint: strings.TrimSpace(endpoint),
		apiKey:   strings.TrimSpace(apiKey),
		http:     &http.Client{},
		timeout:  defaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromConfig builds a client from the [appsync] section.
func NewFromConfig(cfg *config.Config) *Client {
	return New(cfg.AppSync.Endpoint, cfg.AppSync.APIKey, WithTimeout(cfg.AppSyncTimeout()))
}

// Endpoint returns the configured URL.
func (c *Client) Endpoint() string { return c.endpoint }

type request struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type response struct {
	Data   json.RawMessage `json:"data"`
	Errors []GraphQLError  `json:"errors"`
}

// Execute sends one operation and decodes the data member into out when out
// is non-nil.
func (c *Client) Execute(ctx context.Context, operation, query string, variables map[string]any, out any) error {
	if c.endpoint == "" {
		return services.Wrap(services.ErrConfiguration, "appsync", operation, "endpoint not configured", nil)
	}
	body, err := json.Marshal(request{Query: query, Variables: variables})
	if err != nil {
		return services.Wrap(services.ErrValidation, "appsync", operation, "encode request", err)
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "appsync", operation, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return services.Wrap(services.ErrTimeout, "appsync", operation, "request", ctx.Err())
		}
		return services.Wrap(services.ErrTransient, "appsync", operation, "request", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return services.Wrap(services.ErrTransient, "appsync", operation, "read response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ResponseError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Body:       excerpt(data, 512),
			marker:     markerForStatus(resp.StatusCode),
		}
	}

	var decoded response
	if err := json.Unmarshal(data, &decoded); err != nil {
		return &ResponseError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Body:       excerpt(data, 512),
			marker:     services.ErrExternalTool,
			cause:      err,
		}
	}
	if len(decoded.Errors) > 0 {
		return &ResponseError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Errors:     decoded.Errors,
			marker:     markerForGraphQL(decoded.Errors),
		}
	}
	if out != nil {
		if len(decoded.Data) == 0 || string(decoded.Data) == "null" {
			return &ResponseError{
				Operation:  operation,
				StatusCode: resp.StatusCode,
				Body:       "response has no data",
				marker:     services.ErrExternalTool,
			}
		}
		if err := json.Unmarshal(decoded.Data, out); err != nil {
			return &ResponseError{
				Operation:  operation,
				StatusCode: resp.StatusCode,
				Body:       excerpt(decoded.Data, 512),
				marker:     services.ErrExternalTool,
				cause:      err,
			}
		}
	}
	return nil
}

type idResult struct {
	ID string `json:"id"`
}

// CreateVideo upserts the video entity and returns its id.
func (c *Client) CreateVideo(ctx context.Context, input cdc.VideoInput) (string, error) {
	var out struct {
		CreateVideo *idResult `json:"createVideo"`
	}
	if err := c.Execute(ctx, cdc.OperationCreateVideo, CreateVideoMutation, map[string]any{"input": input}, &out); err != nil {
		return "", err
	}
	if out.CreateVideo == nil {
		return "", &ResponseError{Operation: cdc.OperationCreateVideo, StatusCode: http.StatusOK, Body: "createVideo returned null", marker: services.ErrExternalTool}
	}
	return out.CreateVideo.ID, nil
}

// CreateVideoNotification records a change notification and returns its id.
func (c *Client) CreateVideoNotification(ctx context.Context, input cdc.NotificationInput) (string, error) {
	var out struct {
		CreateVideoNotification *idResult `json:"createVideoNotification"`
	}
	if err := c.Execute(ctx, cdc.OperationCreateVideoNotification, CreateNotificationMutation, map[string]any{"input": input}, &out); err != nil {
		return "", err
	}
	if out.CreateVideoNotification == nil {
		return "", &ResponseError{Operation: cdc.OperationCreateVideoNotification, StatusCode: http.StatusOK, Body: "createVideoNotification returned null", marker: services.ErrExternalTool}
	}
	return out.CreateVideoNotification.ID, nil
}

// Ping issues a trivial query to verify the endpoint and key.
func (c *Client) Ping(ctx context.Context) error {
	return c.Execute(ctx, "ping", pingQuery, nil, nil)
}

func excerpt(data []byte, limit int) string {
	text := strings.TrimSpace(string(data))
	if len(text) > limit {
		return fmt.Sprintf("%s...", text[:limit])
	}
	return text
}
