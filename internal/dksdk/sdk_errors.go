package dksdk

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/imroc/req/v3"
)

var (
	// sdk common
	ErrNoServerURL      = errors.New("sdk: server url missing")
	ErrInvalidServerURL = errors.New("sdk: invalid server url")
	ErrInvalidRequest   = errors.New("sdk: invalid request")

	// transport
	ErrRemoteUnreachable = errors.New("sdk: remote unreachable")
	ErrServerTimeout     = errors.New("Server timeout (Code 504)")
	ErrMalformedResponse = errors.New("sdk: malformed response")
)

const (
	statusSuccess = "success"

	SeverityError   = "error"
	SeverityWarning = "warning"
)

type SDKError interface {
	error
	ErrorCode() string
	ErrorMessage() string
}

// BaseError provides common error functionality
type BaseError struct {
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (e *BaseError) ErrorCode() string    { return e.Code }
func (e *BaseError) ErrorMessage() string { return e.Message }

// Issue is a validation finding reported by the server for a recipe change.
type Issue struct {
	Severity    string `json:"severity"`
	File        string `json:"file"`
	Description string `json:"description"`
}

func (i Issue) String() string {
	return fmt.Sprintf("Severity: %s\nFile: %s\nDescription: %s", i.Severity, i.File, i.Description)
}

// FormatIssues renders issues one block per issue.
func FormatIssues(issues []Issue) string {
	parts := make([]string, 0, len(issues))
	for _, i := range issues {
		parts = append(parts, i.String())
	}
	return strings.Join(parts, "\n\n")
}

// APIError represents a failed API call: a non-2xx status or a 2xx body
// whose status is not success.
type APIError struct {
	BaseError
	StatusCode int     `json:"-"`
	Issues     []Issue `json:"issues,omitempty"`
}

func NewAPIError(statusCode int, code, message string) *APIError {
	return &APIError{
		BaseError:  BaseError{Code: code, Message: message},
		StatusCode: statusCode,
	}
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "unknown error"
	}
	if len(e.Issues) > 0 {
		msg += "\n" + FormatIssues(e.Issues)
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("api error: %d - %s", e.StatusCode, msg)
	}
	return fmt.Sprintf("api error: %s", msg)
}

var _ SDKError = (*APIError)(nil)

// statusEnvelope is the status part shared by most responses.
type statusEnvelope struct {
	Status string  `json:"status,omitempty"`
	Error  string  `json:"error,omitempty"`
	Issues []Issue `json:"issues,omitempty"`
}

func (e *statusEnvelope) check(operation string) error {
	if e.Status == "" || e.Status == statusSuccess {
		return nil
	}
	apiErr := NewAPIError(0, e.Status, e.Error)
	apiErr.Issues = e.Issues
	return fmt.Errorf("%s %w", operation, apiErr)
}

// handleAPIError is a helper function that handles the common error pattern
func handleAPIError(resp *req.Response, requestErr error, operation string) error {
	if requestErr != nil {
		return fmt.Errorf("%w: %s: %w", ErrRemoteUnreachable, operation, requestErr)
	}

	// got a response, but api returned an error
	if resp.IsErrorState() {
		if resp.StatusCode == http.StatusGatewayTimeout {
			return fmt.Errorf("%s: %w", operation, ErrServerTimeout)
		}

		apiErr := NewAPIError(resp.StatusCode, "", "")
		if err := decodeLegacy(resp.Bytes(), apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(resp.String())
		}
		apiErr.StatusCode = resp.StatusCode
		return fmt.Errorf("%s %w", operation, apiErr)
	}

	return nil
}
