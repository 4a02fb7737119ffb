package toolkit

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrorKind is a stable, machine-readable tool-failure classification. It
// is carried on every non-success tool result and never thrown out of the
// executor.
type ErrorKind string

const (
	KindToolNotFound        ErrorKind = "TOOL_NOT_FOUND"
	KindToolNoHandler       ErrorKind = "TOOL_NO_HANDLER"
	KindValidationError     ErrorKind = "VALIDATION_ERROR"
	KindUserDenied          ErrorKind = "USER_DENIED"
	KindConfirmationTimeout ErrorKind = "CONFIRMATION_TIMEOUT"
	KindClientTimeout       ErrorKind = "CLIENT_TIMEOUT"
	KindNetworkError        ErrorKind = "NETWORK_ERROR"
	KindRateLimitError      ErrorKind = "RATE_LIMIT_ERROR"
	KindAuthError           ErrorKind = "AUTH_ERROR"
	KindTimeoutError        ErrorKind = "TIMEOUT_ERROR"
	KindAbortError          ErrorKind = "ABORT_ERROR"
	KindApplicationError    ErrorKind = "APPLICATION_ERROR"
	KindUnknownError        ErrorKind = "UNKNOWN_ERROR"
)

// recoverable reports the default recoverability of a well-known error
// kind, per the executor's error→result mapping table.
func (k ErrorKind) recoverable() bool {
	switch k {
	case KindNetworkError, KindRateLimitError, KindTimeoutError, KindUnknownError, KindClientTimeout, KindConfirmationTimeout:
		return true
	default:
		return false
	}
}

// ToolError is a structured, chain-preserving tool failure. It implements
// Unwrap so callers can walk to an underlying transport or handler error
// with errors.Is/errors.As, while the executor itself surfaces only the
// Kind and the error message in the tool result; Recoverable and
// FieldPaths are not copied into it.
type ToolError struct {
	Kind        ErrorKind
	Message     string
	FieldPaths  []string
	Recoverable bool
	Cause       error
}

func (e *ToolError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
	}
	return string(e.Kind)
}

func (e *ToolError) Unwrap() error { return e.Cause }

// NewToolError constructs a ToolError of kind with a message, recoverability
// defaulted from the kind's usual classification.
func NewToolError(kind ErrorKind, message string) *ToolError {
	return &ToolError{Kind: kind, Message: message, Recoverable: kind.recoverable()}
}

// classifyError maps an arbitrary error returned by a tool handler,
// transport, or subprocess into the executor's error-kind table. A context
// deadline or cancellation classifies as ABORT_ERROR only when ctx itself
// was canceled; a handler-local context.DeadlineExceeded not tied to the
// caller's ctx is treated as TIMEOUT_ERROR.
func classifyError(ctx context.Context, err error) *ToolError {
	if err == nil {
		return nil
	}

	var alreadyClassified *ToolError
	if errors.As(err, &alreadyClassified) {
		return alreadyClassified
	}

	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return &ToolError{Kind: KindAbortError, Message: err.Error(), Recoverable: false, Cause: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return &ToolError{Kind: KindTimeoutError, Message: err.Error(), Recoverable: true, Cause: err}
		}
		return &ToolError{Kind: KindNetworkError, Message: err.Error(), Recoverable: true, Cause: err}
	}

	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "etimedout") || strings.Contains(lower, "econnreset") || strings.Contains(lower, "enotfound"):
		return &ToolError{Kind: KindNetworkError, Message: msg, Recoverable: true, Cause: err}
	case strings.Contains(msg, "429") || strings.Contains(lower, "rate limit"):
		return &ToolError{Kind: KindRateLimitError, Message: msg, Recoverable: true, Cause: err}
	case strings.Contains(msg, "401") || strings.Contains(msg, "403") || strings.Contains(lower, "unauthorized") || strings.Contains(lower, "forbidden"):
		return &ToolError{Kind: KindAuthError, Message: msg, Recoverable: false, Cause: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &ToolError{Kind: KindTimeoutError, Message: msg, Recoverable: true, Cause: err}
	default:
		return &ToolError{Kind: KindUnknownError, Message: msg, Recoverable: true, Cause: err}
	}
}
