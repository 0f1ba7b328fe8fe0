package stage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"vidflow/internal/services"
)

const (
	userAgent         = "vidflow/0.1.0"
	maxResponseBytes  = 8 << 20
	executionIDHeader = "X-Vidflow-Execution-Id"
)

// HTTPHandler invokes a remote stage unit by POSTing the payload as the JSON
// request body. The response body is the stage output.
type HTTPHandler struct {
	name     string
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTPHandler constructs a remote stage. A nil client uses a plain
// http.Client; the orchestrator deadline bounds each call.
func NewHTTPHandler(name, endpoint, apiKey string, client *http.Client) *HTTPHandler {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPHandler{
		name:     strings.TrimSpace(name),
		endpoint: strings.TrimSpace(endpoint),
		apiKey:   strings.TrimSpace(apiKey),
		client:   client,
	}
}

func (h *HTTPHandler) Name() string { return h.name }

// Endpoint returns the configured stage URL.
func (h *HTTPHandler) Endpoint() string { return h.endpoint }

func (h *HTTPHandler) Invoke(ctx context.Context, in Payload) (Payload, error) {
	body, err := in.MarshalJSON()
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "stage", h.name, "encode input", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "stage", h.name, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if h.apiKey != "" {
		req.Header.Set("x-api-key", h.apiKey)
	}
	if id, ok := services.ExecutionIDFromContext(ctx); ok {
		req.Header.Set(executionIDHeader, id)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, services.Wrap(services.ErrTransient, "stage", h.name, "invoke", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "stage", h.name, "read response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, services.Wrap(services.ErrExternalTool, "stage", h.name,
			fmt.Sprintf("returned %d: %s", resp.StatusCode, excerpt(data, 512)), nil)
	}
	out := Payload(data)
	if !out.Valid() {
		return nil, services.Wrap(services.ErrValidation, "stage", h.name, "response", fmt.Errorf("%w: %s", ErrMalformedOutput, excerpt(data, 120)))
	}
	return out, nil
}

// HealthCheck validates the stage configuration without contacting it.
func (h *HTTPHandler) HealthCheck(context.Context) Health {
	if h.name == "" {
		return Unhealthy("(unnamed)", "stage name missing")
	}
	if h.endpoint == "" {
		return Unhealthy(h.name, "endpoint not configured")
	}
	parsed, err := url.Parse(h.endpoint)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return Unhealthy(h.name, fmt.Sprintf("invalid endpoint %q", h.endpoint))
	}
	return Healthy(h.name)
}
