package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool  = errors.New("external service error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

type hintedError struct {
	err  error
	hint string
}

func (h *hintedError) Error() string { return h.err.Error() }

func (h *hintedError) Unwrap() error { return h.err }

// WithHint attaches an operator-facing remediation hint to err.
func WithHint(err error, hint string) error {
	hint = strings.TrimSpace(hint)
	if err == nil || hint == "" {
		return err
	}
	return &hintedError{err: err, hint: hint}
}

// ErrorDetails is the classified view of an error used for logs and archives.
type ErrorDetails struct {
	Code    string
	Message string
	Hint    string
	Cause   error
}

// Details classifies err into a code, message, and optional hint.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	details := ErrorDetails{
		Code:    codeFor(err),
		Message: strings.TrimSpace(err.Error()),
		Cause:   err,
	}
	var hinted *hintedError
	if errors.As(err, &hinted) {
		details.Hint = hinted.hint
	}
	if details.Code != "" && !strings.HasPrefix(details.Message, "[") {
		details.Message = fmt.Sprintf("[%s] %s", details.Code, details.Message)
	}
	return details
}

func codeFor(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrExternalTool):
		return "external"
	case errors.Is(err, ErrTransient):
		return "transient"
	default:
		return ""
	}
}

// IsRetryable reports whether a failed downstream call may succeed when
// repeated. Validation, configuration, and not-found failures never are;
// cancellation of the caller's context is not either.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrConfiguration), errors.Is(err, ErrNotFound):
		return false
	case errors.Is(err, ErrTransient), errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return true
	case errors.Is(err, ErrExternalTool):
		return true
	default:
		return false
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
