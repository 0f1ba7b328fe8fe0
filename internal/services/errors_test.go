package services_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"vidflow/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "appsync", "createVideo", "request failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"appsync", "createVideo", "request failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}

func TestDetailsCarriesCodeAndHint(t *testing.T) {
	err := services.WithHint(
		services.Wrap(services.ErrValidation, "stage", "invoke", "malformed output", nil),
		"Check the stage response body",
	)
	details := services.Details(err)
	if details.Code != "validation" {
		t.Fatalf("expected validation code, got %q", details.Code)
	}
	if !strings.HasPrefix(details.Message, "[validation]") {
		t.Fatalf("expected code prefix, got %q", details.Message)
	}
	if details.Hint != "Check the stage response body" {
		t.Fatalf("unexpected hint %q", details.Hint)
	}
	if !errors.Is(err, services.ErrValidation) {
		t.Fatal("expected hinted error to unwrap to marker")
	}
}

func TestDetailsNil(t *testing.T) {
	if details := services.Details(nil); details.Code != "" || details.Message != "" {
		t.Fatalf("expected empty details, got %+v", details)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "transient", err: services.Wrap(services.ErrTransient, "a", "b", "c", nil), want: true},
		{name: "timeout", err: services.Wrap(services.ErrTimeout, "a", "b", "c", nil), want: true},
		{name: "external", err: services.Wrap(services.ErrExternalTool, "a", "b", "c", nil), want: true},
		{name: "deadline", err: context.DeadlineExceeded, want: true},
		{name: "validation", err: services.Wrap(services.ErrValidation, "a", "b", "c", nil), want: false},
		{name: "configuration", err: services.Wrap(services.ErrConfiguration, "a", "b", "c", nil), want: false},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "plain", err: errors.New("unknown"), want: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := services.IsRetryable(tc.err); got != tc.want {
				t.Fatalf("IsRetryable(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
