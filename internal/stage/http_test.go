package stage_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"vidflow/internal/services"
	"vidflow/internal/stage"
)

func TestHTTPHandlerPostsPayloadAndReturnsBody(t *testing.T) {
	var gotBody, gotKey, gotExec string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		gotKey = r.Header.Get("x-api-key")
		gotExec = r.Header.Get("X-Vidflow-Execution-Id")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"Payload":{"casing":"ok"}}`))
	}))
	defer srv.Close()

	h := stage.NewHTTPHandler("create-casings", srv.URL, "secret", srv.Client())
	ctx := services.WithExecutionID(context.Background(), "exec-1")
	out, err := h.Invoke(ctx, stage.Payload(`{"bucket":"b","key":"a.mp4"}`))
	if err != nil {
		t.Fatalf("Invoke returned error: %v", err)
	}
	if gotBody != `{"bucket":"b","key":"a.mp4"}` {
		t.Fatalf("unexpected request body %q", gotBody)
	}
	if gotKey != "secret" || gotExec != "exec-1" {
		t.Fatalf("unexpected headers key=%q exec=%q", gotKey, gotExec)
	}
	if string(out) != `{"Payload":{"casing":"ok"}}` {
		t.Fatalf("expected raw response, got %s", out)
	}
}

func TestHTTPHandlerNon2xxIsStageFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "transcoder exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	h := stage.NewHTTPHandler("transcode", srv.URL, "", srv.Client())
	_, err := h.Invoke(context.Background(), stage.Payload(`{}`))
	if err == nil {
		t.Fatal("expected error for 502")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "502") || !strings.Contains(err.Error(), "transcoder exploded") {
		t.Fatalf("expected status and excerpt in error, got %v", err)
	}
}

func TestHTTPHandlerRejectsNonJSONResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("OK"))
	}))
	defer srv.Close()

	h := stage.NewHTTPHandler("video-data-crud", srv.URL, "", srv.Client())
	_, err := h.Invoke(context.Background(), stage.Payload(`{}`))
	if !errors.Is(err, stage.ErrMalformedOutput) {
		t.Fatalf("expected malformed output error, got %v", err)
	}
}

func TestHTTPHandlerHealthCheck(t *testing.T) {
	if h := stage.NewHTTPHandler("a", "https://stages.local/a", "", nil).HealthCheck(context.Background()); !h.Ready {
		t.Fatalf("expected healthy stage, got %+v", h)
	}
	if h := stage.NewHTTPHandler("a", "", "", nil).HealthCheck(context.Background()); h.Ready {
		t.Fatal("expected unhealthy stage without endpoint")
	}
	if h := stage.NewHTTPHandler("a", "ftp://x", "", nil).HealthCheck(context.Background()); h.Ready || h.Label() == "ready" {
		t.Fatalf("expected unhealthy stage for ftp scheme, got %+v", h)
	}
}
