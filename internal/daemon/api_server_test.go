package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"vidflow/internal/api"
	"vidflow/internal/app"
	"vidflow/internal/cdc"
	"vidflow/internal/config"
	"vidflow/internal/logging"
	"vidflow/internal/router"
	"vidflow/internal/services"
	"vidflow/internal/stage"
	"vidflow/internal/testsupport"
)

type downstreamStub struct{}

func (downstreamStub) CreateVideo(_ context.Context, in cdc.VideoInput) (string, error) {
	return in.ID, nil
}

func (downstreamStub) CreateVideoNotification(_ context.Context, in cdc.NotificationInput) (string, error) {
	return in.ID, nil
}

func newTestServer(t *testing.T, opts ...testsupport.ConfigOption) (*apiServer, *Daemon) {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	a, err := app.Build(context.Background(), cfg, logging.NewNop(),
		app.WithHandlers(app.PassthroughHandlers(cfg)...),
		app.WithDownstream(downstreamStub{}),
	)
	if err != nil {
		t.Fatalf("app.Build: %v", err)
	}
	d, err := New(cfg, a, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d.api, d
}

func serve(srv *apiServer, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	srv.server.Handler.ServeHTTP(w, req)
	return w
}

func uploadBody(key string) string {
	return `{"source":"aws.s3","detail-type":"Object Created","detail":{"bucket":{"name":"test-uploads"},"object":{"key":"` + key + `"}}}`
}

func TestUploadsStartsExecution(t *testing.T) {
	srv, d := newTestServer(t)

	w := serve(srv, httptest.NewRequest(http.MethodPost, "/api/uploads", strings.NewReader(uploadBody("clips/a.mp4"))))
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	var resp api.UploadResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.ExecutionIDs) != 1 {
		t.Fatalf("expected one execution id, got %v", resp.ExecutionIDs)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.app.Orchestrator.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	w = serve(srv, httptest.NewRequest(http.MethodGet, "/api/executions/"+resp.ExecutionIDs[0], nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var item api.ExecutionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &item); err != nil {
		t.Fatalf("decode execution: %v", err)
	}
	if item.Execution.Status != "SUCCEEDED" || len(item.Execution.Stages) != 3 {
		t.Fatalf("unexpected execution: %+v", item.Execution)
	}
}

func TestExecutionsPostStartsPipeline(t *testing.T) {
	srv, d := newTestServer(t)

	w := serve(srv, httptest.NewRequest(http.MethodPost, "/api/executions", strings.NewReader(`{"key":"manual.mov"}`)))
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	var resp api.StartExecutionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.ExecutionID == "" {
		t.Fatalf("expected execution id, got %s", w.Body.String())
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.app.Orchestrator.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	w = serve(srv, httptest.NewRequest(http.MethodPost, "/api/executions", strings.NewReader(`not json`)))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid input, got %d", w.Code)
	}
}

type secondStartFails struct{ calls int }

func (s *secondStartFails) Start(context.Context, stage.Payload) (string, error) {
	s.calls++
	if s.calls > 1 {
		return "", services.Wrap(services.ErrConfiguration, "pipeline", "start", "pipeline unavailable", nil)
	}
	return "exec-1", nil
}

func TestUploadsReportsStartedExecutionsOnPartialFailure(t *testing.T) {
	srv, d := newTestServer(t)
	d.app.Router = router.New(router.RuleFromConfig(d.cfg.Trigger), &secondStartFails{})

	body := `{"Records":[` +
		`{"eventSource":"aws:s3","eventName":"ObjectCreated:Put","s3":{"bucket":{"name":"test-uploads"},"object":{"key":"a.mp4"}}},` +
		`{"eventSource":"aws:s3","eventName":"ObjectCreated:Put","s3":{"bucket":{"name":"test-uploads"},"object":{"key":"b.mp4"}}}]}`
	w := serve(srv, httptest.NewRequest(http.MethodPost, "/api/uploads", strings.NewReader(body)))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d: %s", w.Code, w.Body.String())
	}
	var resp api.UploadResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.ExecutionIDs) != 1 || resp.ExecutionIDs[0] != "exec-1" {
		t.Fatalf("expected started execution in response, got %+v", resp)
	}
	if len(resp.Decisions) != 2 || !strings.Contains(resp.Error, "pipeline unavailable") {
		t.Fatalf("expected both decisions and the error, got %+v", resp)
	}
}

func TestUploadsIgnoredReturnsNoContent(t *testing.T) {
	srv, _ := newTestServer(t)
	w := serve(srv, httptest.NewRequest(http.MethodPost, "/api/uploads", strings.NewReader(uploadBody("notes.txt"))))
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
}

func TestUploadsRejectsMalformedEvent(t *testing.T) {
	srv, _ := newTestServer(t)
	w := serve(srv, httptest.NewRequest(http.MethodPost, "/api/uploads", strings.NewReader(`{}`)))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	var resp api.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || !strings.HasPrefix(resp.Error, "[validation]") {
		t.Fatalf("expected validation error body, got %s", w.Body.String())
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t)
	cases := map[string]string{
		"/api/uploads":    http.MethodGet,
		"/api/changes":    http.MethodGet,
		"/api/status":     http.MethodPost,
		"/api/executions": http.MethodDelete,
	}
	for path, method := range cases {
		w := serve(srv, httptest.NewRequest(method, path, nil))
		if w.Code != http.StatusMethodNotAllowed {
			t.Fatalf("%s %s: expected 405, got %d", method, path, w.Code)
		}
	}
}

func TestChangesReturnsBatchResult(t *testing.T) {
	srv, _ := newTestServer(t)
	batch := testsupport.StreamBatch(t,
		testsupport.Record{EventName: "INSERT", NewImage: testsupport.VideoImage("v1")},
		testsupport.Record{EventName: "MODIFY", NewImage: testsupport.VideoImage("v2")},
	)
	w := serve(srv, httptest.NewRequest(http.MethodPost, "/api/changes", bytes.NewReader(batch)))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp api.ChangeBatchResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Records) != 2 || resp.Failures != 0 {
		t.Fatalf("unexpected batch result: %+v", resp)
	}
	if resp.Records[0].Notification == nil || resp.Records[1].Notification != nil {
		t.Fatalf("expected notification for INSERT only, got %+v", resp.Records)
	}
}

func TestExecutionsValidatesQuery(t *testing.T) {
	srv, _ := newTestServer(t)
	w := serve(srv, httptest.NewRequest(http.MethodGet, "/api/executions?status=bogus", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", w.Code)
	}
	w = serve(srv, httptest.NewRequest(http.MethodGet, "/api/executions?limit=-1", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", w.Code)
	}
	w = serve(srv, httptest.NewRequest(http.MethodGet, "/api/executions?status=failed", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	w = serve(srv, httptest.NewRequest(http.MethodGet, "/api/executions/unknown", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestStatusReportsPipeline(t *testing.T) {
	srv, _ := newTestServer(t)
	w := serve(srv, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var status api.DaemonStatus
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Running {
		t.Fatal("expected daemon not running before Start")
	}
	if len(status.Pipeline.Stages) != 3 || len(status.Pipeline.StageHealth) != 3 {
		t.Fatalf("unexpected pipeline status: %+v", status.Pipeline)
	}
	if len(status.Transports) != 2 || status.Transports[0].Detail != "disabled" {
		t.Fatalf("unexpected transports: %+v", status.Transports)
	}
}

func TestAuthMiddlewareGuardsEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, testsupport.WithAPIToken("s3cret"))

	w := serve(srv, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	if w := serve(srv, req); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	if w := serve(srv, req); w.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", w.Code)
	}
}

func TestMetricsEndpointExposesRouteCounter(t *testing.T) {
	srv, _ := newTestServer(t)
	serve(srv, httptest.NewRequest(http.MethodPost, "/api/uploads", strings.NewReader(uploadBody("notes.txt"))))

	w := serve(srv, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `vidflow_routes_total{decision="ignored"} 1`) {
		t.Fatalf("expected ignored route counter, got:\n%s", w.Body.String())
	}
}

func TestNewAPIServerDisabledWithoutBind(t *testing.T) {
	cfg := config.Default()
	cfg.API.Bind = ""
	srv, err := newAPIServer(&cfg, &Daemon{}, nil)
	if err != nil || srv != nil {
		t.Fatalf("expected nil server, got %v, %v", srv, err)
	}
	if srv.address() != "" {
		t.Fatal("expected empty address for disabled server")
	}
}
