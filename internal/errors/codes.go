package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode represents internal error codes for engine operations
type ErrorCode string

const (
	ErrCodeOK ErrorCode = "OK"

	// Client errors
	ErrCodeInvalidArgument  ErrorCode = "INVALID_ARGUMENT"
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeTableNotFound    ErrorCode = "TABLE_NOT_FOUND"
	ErrCodeTableExists      ErrorCode = "TABLE_EXISTS"
	ErrCodeStrategyNotFound ErrorCode = "STRATEGY_NOT_FOUND"

	// Server errors
	ErrCodeInternal       ErrorCode = "INTERNAL"
	ErrCodeInjectedFault  ErrorCode = "INJECTED_FAULT"
	ErrCodeRollbackFailed ErrorCode = "ROLLBACK_FAILED"
)

// EngineError represents a structured error with code and context
type EngineError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Cause   error
}

// Error implements the error interface
func (e *EngineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// HTTPStatus maps the error code to an HTTP status for the dashboard API
func (e *EngineError) HTTPStatus() int {
	switch e.Code {
	case ErrCodeOK:
		return http.StatusOK
	case ErrCodeInvalidArgument, ErrCodeValidationFailed:
		return http.StatusBadRequest
	case ErrCodeTableNotFound, ErrCodeStrategyNotFound:
		return http.StatusNotFound
	case ErrCodeTableExists:
		return http.StatusConflict
	case ErrCodeInjectedFault:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// NewEngineError creates a new EngineError
func NewEngineError(code ErrorCode, message string, cause error) *EngineError {
	return &EngineError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Cause:   cause,
	}
}

// WithDetail adds a detail to the error
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	e.Details[key] = value
	return e
}

// Convenience constructors for common errors

func InvalidArgument(message string, cause error) *EngineError {
	return NewEngineError(ErrCodeInvalidArgument, message, cause)
}

// ValidationFailed aggregates every violated rule into one error
func ValidationFailed(table string, violations []string, detail interface{}) *EngineError {
	msg := fmt.Sprintf("validation failed for %s: %s", table, strings.Join(violations, "; "))
	return NewEngineError(ErrCodeValidationFailed, msg, nil).
		WithDetail("table", table).
		WithDetail("violations", detail)
}

func TableNotFound(table string) *EngineError {
	return NewEngineError(ErrCodeTableNotFound, fmt.Sprintf("table not found: %s", table), nil).
		WithDetail("table", table)
}

func TableExists(table string) *EngineError {
	return NewEngineError(ErrCodeTableExists, fmt.Sprintf("table already registered: %s", table), nil).
		WithDetail("table", table)
}

func StrategyNotFound(id string) *EngineError {
	return NewEngineError(ErrCodeStrategyNotFound, fmt.Sprintf("optimization strategy not found: %s", id), nil).
		WithDetail("strategy_id", id)
}

func InjectedFault(operation string, rate float64) *EngineError {
	return NewEngineError(ErrCodeInjectedFault, fmt.Sprintf("injected fault during %s", operation), nil).
		WithDetail("operation", operation).
		WithDetail("rate", rate)
}

func RollbackFailed(id string, cause error) *EngineError {
	return NewEngineError(ErrCodeRollbackFailed, fmt.Sprintf("rollback of %s failed", id), cause).
		WithDetail("id", id)
}

func InternalError(message string, cause error) *EngineError {
	return NewEngineError(ErrCodeInternal, message, cause)
}

// IsEngineError checks if an error is, or wraps, an EngineError
func IsEngineError(err error) bool {
	var ee *EngineError
	return stderrors.As(err, &ee)
}

// AsEngineError returns the EngineError in err's chain, if any
func AsEngineError(err error) (*EngineError, bool) {
	var ee *EngineError
	if stderrors.As(err, &ee) {
		return ee, true
	}
	return nil, false
}

// GetCode extracts the error code from an error
func GetCode(err error) ErrorCode {
	if err == nil {
		return ErrCodeOK
	}
	var ee *EngineError
	if stderrors.As(err, &ee) {
		return ee.Code
	}
	return ErrCodeInternal
}

// HTTPStatus returns the HTTP status for any error
func HTTPStatus(err error) int {
	var ee *EngineError
	if stderrors.As(err, &ee) {
		return ee.HTTPStatus()
	}
	return http.StatusInternalServerError
}
