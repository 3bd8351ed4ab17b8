package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// ErrorCode represents a unique error code for categorizing errors
type ErrorCode string

const (
	// Warehouse errors (1xxx)
	ErrCodeConnectionFailed ErrorCode = "CPE1001"
	ErrCodeLockTimeout      ErrorCode = "CPE1002"
	ErrCodeMissingExtract   ErrorCode = "CPE1003"
	ErrCodeLoadFailed       ErrorCode = "CPE1004"
	ErrCodeSQLExecution     ErrorCode = "CPE1005"

	// Configuration errors (2xxx)
	ErrCodeConfigInvalid  ErrorCode = "CPE2001"
	ErrCodeConfigNotFound ErrorCode = "CPE2002"

	// Task errors (3xxx)
	ErrCodeTaskExecution          ErrorCode = "CPE3001"
	ErrCodeTaskTimeout            ErrorCode = "CPE3002"
	ErrCodeDependencyNotSatisfied ErrorCode = "CPE3003"
	ErrCodeQualityCheckFailed     ErrorCode = "CPE3004"
	ErrCodeExportFailed           ErrorCode = "CPE3005"

	// Run errors (4xxx)
	ErrCodeGraphInvalid  ErrorCode = "CPE4001"
	ErrCodeRunInProgress ErrorCode = "CPE4002"
	ErrCodeRunCancelled  ErrorCode = "CPE4003"
	ErrCodeInvalidState  ErrorCode = "CPE4004"

	// System errors (9xxx)
	ErrCodeStateStore ErrorCode = "CPE9001"
	ErrCodeInternal   ErrorCode = "CPE9002"
)

// ErrorSeverity represents the severity level of an error
type ErrorSeverity string

const (
	SeverityCritical ErrorSeverity = "CRITICAL" // Process must abort
	SeverityError    ErrorSeverity = "ERROR"    // Operation failed, but system continues
	SeverityWarning  ErrorSeverity = "WARNING"  // Operation succeeded with issues
	SeverityInfo     ErrorSeverity = "INFO"     // Informational, not an error
)

// AppError represents a structured application error with context
type AppError struct {
	Code        ErrorCode
	Message     string
	Severity    ErrorSeverity
	Context     map[string]interface{}
	Cause       error
	Stack       string
	Timestamp   time.Time
	Recoverable bool
	Suggestions []string
}

// Error implements the error interface
func (e *AppError) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("[%s] %s: %s", e.Code, e.Severity, e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf("\nCaused by: %v", e.Cause))
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\nSuggestions:")
		for i, suggestion := range e.Suggestions {
			b.WriteString(fmt.Sprintf("\n  %d. %s", i+1, suggestion))
		}
	}

	return b.String()
}

// Unwrap returns the cause of the error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:        code,
		Message:     message,
		Severity:    SeverityError,
		Context:     make(map[string]interface{}),
		Stack:       captureStack(),
		Timestamp:   time.Now(),
		Recoverable: false,
	}
}

// Wrap wraps an existing error with AppError
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}

	appErr := New(code, message)
	appErr.Cause = err

	// Inherit context from a wrapped AppError
	var ae *AppError
	if errors.As(err, &ae) {
		for k, v := range ae.Context {
			appErr.Context[k] = v
		}
	}

	return appErr
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithSeverity sets the error severity
func (e *AppError) WithSeverity(severity ErrorSeverity) *AppError {
	e.Severity = severity
	return e
}

// WithSuggestions adds recovery suggestions
func (e *AppError) WithSuggestions(suggestions ...string) *AppError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// AsRecoverable marks the error as recoverable
func (e *AppError) AsRecoverable() *AppError {
	e.Recoverable = true
	return e
}

// captureStack captures the current stack trace
func captureStack() string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])

	var b strings.Builder
	frames := runtime.CallersFrames(pcs[:n])

	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "runtime/") {
			b.WriteString(fmt.Sprintf("%s:%d %s\n", frame.File, frame.Line, frame.Function))
		}
		if !more {
			break
		}
	}

	return b.String()
}

// Common error constructors

// ConnectionError creates an error for a warehouse that cannot be opened or created.
// It is always critical: callers abort the process.
func ConnectionError(message string, cause error) *AppError {
	appErr := New(ErrCodeConnectionFailed, message)
	appErr.Cause = cause
	return appErr.
		WithSeverity(SeverityCritical).
		WithSuggestions(
			"Check that the warehouse directory exists and is writable",
			"Make sure no other process holds the database file open",
		)
}

// MissingExtractWarning reports an absent source extract. Loading continues.
func MissingExtractWarning(table, path string) *AppError {
	return New(ErrCodeMissingExtract, fmt.Sprintf("extract for raw.%s not found at %s", table, path)).
		WithContext("table", table).
		WithContext("path", path).
		WithSeverity(SeverityWarning).
		AsRecoverable()
}

// TaskExecutionError wraps the failure of a stage, check or export step.
func TaskExecutionError(task string, cause error) *AppError {
	return Wrap(cause, ErrCodeTaskExecution, fmt.Sprintf("task %s failed", task)).
		WithContext("task", task).
		AsRecoverable()
}

// TaskTimeoutError reports a task that exceeded its timeout. It retries like any failure.
func TaskTimeoutError(task string, timeout time.Duration) *AppError {
	return New(ErrCodeTaskTimeout, fmt.Sprintf("task %s timed out after %s", task, timeout)).
		WithContext("task", task).
		WithContext("timeout", timeout.String()).
		AsRecoverable()
}

// DependencyNotSatisfiedError reports an attempt to invoke a task whose upstream did not
// succeed. It indicates an orchestrator bug and is never retried.
func DependencyNotSatisfiedError(task, upstream, state string) *AppError {
	return New(ErrCodeDependencyNotSatisfied,
		fmt.Sprintf("task %s invoked while upstream %s is %s", task, upstream, state)).
		WithContext("task", task).
		WithContext("upstream", upstream).
		WithContext("upstream_state", state).
		WithSeverity(SeverityCritical)
}

// GraphError creates an error for an invalid task graph
func GraphError(message string) *AppError {
	return New(ErrCodeGraphInvalid, message).
		WithSeverity(SeverityCritical)
}

// ConfigError creates a configuration-related error
func ConfigError(message string, field string) *AppError {
	return New(ErrCodeConfigInvalid, message).
		WithContext("field", field).
		WithSuggestions(
			fmt.Sprintf("Check the '%s' configuration value", field),
			"Run 'coursepipe config init' to write a default configuration",
		)
}

// SQLError creates an SQL execution error
func SQLError(message string, query string, cause error) *AppError {
	return Wrap(cause, ErrCodeSQLExecution, message).
		WithContext("query", truncateString(query, 200))
}

// IsRecoverable checks if an error is recoverable
func IsRecoverable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Recoverable
	}
	return false
}

// GetErrorCode extracts the error code from an error
func GetErrorCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// IsCode reports whether any AppError in err's chain carries code.
func IsCode(err error, code ErrorCode) bool {
	for err != nil {
		var appErr *AppError
		if !errors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Cause
	}
	return false
}

// truncateString truncates a string to maxLen characters
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
