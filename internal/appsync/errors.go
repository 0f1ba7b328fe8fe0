package appsync

import (
	"fmt"
	"net/http"
	"strings"

	"vidflow/internal/services"
)

// GraphQLError is one entry of a GraphQL errors array.
type GraphQLError struct {
	Message   string `json:"message"`
	ErrorType string `json:"errorType,omitempty"`
	Path      []any  `json:"path,omitempty"`
}

// ResponseError reports a failed downstream call.
type ResponseError struct {
	Operation  string
	StatusCode int
	Errors     []GraphQLError
	Body       string
	marker     error
	cause      error
}

func (e *ResponseError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "appsync %s: status %d", e.Operation, e.StatusCode)
	if len(e.Errors) > 0 {
		messages := make([]string, 0, len(e.Errors))
		for _, gqlErr := range e.Errors {
			msg := gqlErr.Message
			if gqlErr.ErrorType != "" {
				msg = gqlErr.ErrorType + ": " + msg
			}
			messages = append(messages, msg)
		}
		fmt.Fprintf(&b, ": %s", strings.Join(messages, "; "))
	} else if e.Body != "" {
		fmt.Fprintf(&b, ": %s", e.Body)
	}
	if e.cause != nil {
		fmt.Fprintf(&b, ": %v", e.cause)
	}
	return b.String()
}

// Unwrap exposes the classification marker and underlying cause.
func (e *ResponseError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.marker != nil {
		errs = append(errs, e.marker)
	}
	if e.cause != nil {
		errs = append(errs, e.cause)
	}
	return errs
}

func markerForStatus(status int) error {
	switch {
	case status == http.StatusTooManyRequests, status >= 500:
		return services.ErrTransient
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return services.ErrConfiguration
	default:
		return services.ErrValidation
	}
}

func markerForGraphQL(errs []GraphQLError) error {
	for _, gqlErr := range errs {
		kind := strings.ToLower(gqlErr.ErrorType)
		switch {
		case strings.Contains(kind, "unauthorized"):
			return services.ErrConfiguration
		case strings.Contains(kind, "validation"), strings.Contains(kind, "conditionalcheck"):
			return services.ErrValidation
		}
	}
	return services.ErrExternalTool
}
