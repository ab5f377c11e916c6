package engine

import (
	"errors"
	"fmt"
)

// RuntimeErrorCode categorizes fatal dispatch errors.
type RuntimeErrorCode string

const (
	// ErrCodeUnknownEffect: the core issued an effect outside the closed set.
	ErrCodeUnknownEffect RuntimeErrorCode = "UNKNOWN_EFFECT"

	// ErrCodeSchemaMismatch: a payload from the core did not decode.
	ErrCodeSchemaMismatch RuntimeErrorCode = "SCHEMA_MISMATCH"

	// ErrCodeCoreFailure: a core call returned an error.
	ErrCodeCoreFailure RuntimeErrorCode = "CORE_FAILURE"

	// ErrCodeExecutorFailure: an executor returned an internal error.
	ErrCodeExecutorFailure RuntimeErrorCode = "EXECUTOR_FAILURE"

	// ErrCodeDuplicateRequest: a continuing request reused an outstanding id.
	ErrCodeDuplicateRequest RuntimeErrorCode = "DUPLICATE_REQUEST"

	// ErrCodeQuotaExceeded: the flow issued more continuing requests than
	// the step quota allows.
	ErrCodeQuotaExceeded RuntimeErrorCode = "QUOTA_EXCEEDED"
)

// RuntimeError is a fatal error that aborted a flow.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// FlowToken identifies the aborted flow.
	FlowToken string

	// RequestID is the request being handled, or 0.
	RequestID uint32

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	switch {
	case e.FlowToken != "" && e.RequestID != 0:
		msg += fmt.Sprintf(" (flow=%s, request=%d)", e.FlowToken, e.RequestID)
	case e.FlowToken != "":
		msg += fmt.Sprintf(" (flow=%s)", e.FlowToken)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

func newRuntimeError(code RuntimeErrorCode, flowToken string, id uint32, err error, format string, args ...any) *RuntimeError {
	return &RuntimeError{
		Code:      code,
		Message:   fmt.Sprintf(format, args...),
		FlowToken: flowToken,
		RequestID: id,
		Err:       err,
	}
}

// CodeOf returns the RuntimeErrorCode in err's chain, or "".
func CodeOf(err error) RuntimeErrorCode {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

// IsSchemaError reports whether err aborted a flow on a decode failure.
func IsSchemaError(err error) bool { return CodeOf(err) == ErrCodeSchemaMismatch }

// IsUnknownEffectError reports whether err aborted a flow on an unknown effect.
func IsUnknownEffectError(err error) bool { return CodeOf(err) == ErrCodeUnknownEffect }

// IsCoreError reports whether err aborted a flow on a core failure.
func IsCoreError(err error) bool { return CodeOf(err) == ErrCodeCoreFailure }

// IsExecutorError reports whether err aborted a flow on an executor failure.
func IsExecutorError(err error) bool { return CodeOf(err) == ErrCodeExecutorFailure }

// IsDuplicateRequestError reports whether err aborted a flow on a reused id.
func IsDuplicateRequestError(err error) bool { return CodeOf(err) == ErrCodeDuplicateRequest }

// IsQuotaError reports whether err is a quota error. Matches both a
// RuntimeError with ErrCodeQuotaExceeded and a bare StepsExceededError.
func IsQuotaError(err error) bool {
	if CodeOf(err) == ErrCodeQuotaExceeded {
		return true
	}
	var se *StepsExceededError
	return errors.As(err, &se)
}
