package errors

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestAppError(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		expected string
	}{
		{
			name:     "basic error",
			err:      New(ErrCodeConnectionFailed, "Connection failed"),
			expected: "[CPE1001] ERROR: Connection failed",
		},
		{
			name: "error with suggestions",
			err: New(ErrCodeConnectionFailed, "Connection failed").
				WithSuggestions("Check path", "Close other clients"),
			expected: "[CPE1001] ERROR: Connection failed\nSuggestions:\n  1. Check path\n  2. Close other clients",
		},
		{
			name: "error with context",
			err: New(ErrCodeConnectionFailed, "Connection failed").
				WithContext("path", "mock_data.duckdb"),
			expected: "[CPE1001] ERROR: Connection failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Error() != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, tt.err.Error())
			}
		})
	}
}

func TestErrorWrapping(t *testing.T) {
	baseErr := fmt.Errorf("exit status 2")

	appErr := TaskExecutionError("staging", baseErr)

	if appErr.Cause != baseErr {
		t.Error("Wrapped error should contain original error as cause")
	}
	if appErr.Code != ErrCodeTaskExecution {
		t.Errorf("Expected code %s, got %s", ErrCodeTaskExecution, appErr.Code)
	}
	if !IsRecoverable(appErr) {
		t.Error("Task execution errors should be recoverable")
	}
	if appErr.Context["task"] != "staging" {
		t.Errorf("Expected task context, got %v", appErr.Context["task"])
	}
}

func TestWrapInheritsContext(t *testing.T) {
	inner := New(ErrCodeSQLExecution, "query failed").WithContext("table", "raw.users")
	outer := Wrap(fmt.Errorf("load: %w", inner), ErrCodeLoadFailed, "load failed")

	if outer.Context["table"] != "raw.users" {
		t.Errorf("Expected inherited context, got %v", outer.Context)
	}
	if Wrap(nil, ErrCodeInternal, "nothing") != nil {
		t.Error("Wrapping nil should return nil")
	}
}

func TestIsCode(t *testing.T) {
	timeout := TaskTimeoutError("marts", time.Minute)
	wrapped := TaskExecutionError("marts", timeout)

	if !IsCode(wrapped, ErrCodeTaskTimeout) {
		t.Error("Expected timeout code in chain")
	}
	if !IsCode(wrapped, ErrCodeTaskExecution) {
		t.Error("Expected execution code in chain")
	}
	if IsCode(fmt.Errorf("plain"), ErrCodeTaskExecution) {
		t.Error("Plain errors carry no code")
	}
}

func TestErrorCodes(t *testing.T) {
	err1 := New(ErrCodeConnectionFailed, "Test")
	if GetErrorCode(err1) != ErrCodeConnectionFailed {
		t.Error("Failed to extract error code from AppError")
	}

	err2 := fmt.Errorf("regular error")
	if GetErrorCode(err2) != ErrCodeInternal {
		t.Error("Should return internal error code for non-AppError")
	}
}

func TestErrorSeverity(t *testing.T) {
	tests := []struct {
		severity ErrorSeverity
		err      *AppError
	}{
		{
			severity: SeverityCritical,
			err:      ConnectionError("cannot open warehouse", fmt.Errorf("permission denied")),
		},
		{
			severity: SeverityWarning,
			err:      MissingExtractWarning("users", "data/raw_users.csv"),
		},
		{
			severity: SeverityCritical,
			err:      DependencyNotSatisfiedError("report", "marts", "FAILED"),
		},
	}

	for _, tt := range tests {
		if tt.err.Severity != tt.severity {
			t.Errorf("Expected severity %s, got %s", tt.severity, tt.err.Severity)
		}
	}
}

func TestRetryPolicy(t *testing.T) {
	policy := RetryPolicy{
		MaxRetries: 2,
		Delay:      10 * time.Millisecond,
		Multiplier: 2.0,
		MaxDelay:   30 * time.Millisecond,
	}

	if policy.MaxAttempts() != 3 {
		t.Errorf("Expected 3 attempts, got %d", policy.MaxAttempts())
	}

	delays := []time.Duration{
		policy.DelayFor(1),
		policy.DelayFor(2),
		policy.DelayFor(3),
	}
	expected := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond}
	for i := range delays {
		if delays[i] != expected[i] {
			t.Errorf("Attempt %d: expected delay %s, got %s", i+1, expected[i], delays[i])
		}
	}

	recoverable := TaskExecutionError("staging", fmt.Errorf("boom"))
	if !policy.ShouldRetry(1, recoverable) || !policy.ShouldRetry(2, recoverable) {
		t.Error("Expected retries while attempts remain")
	}
	if policy.ShouldRetry(3, recoverable) {
		t.Error("Expected no retry after the last attempt")
	}
	if policy.ShouldRetry(1, DependencyNotSatisfiedError("report", "marts", "FAILED")) {
		t.Error("Contract violations must not be retried")
	}
}

func TestDefaultRetryPolicy(t *testing.T) {
	policy := DefaultRetryPolicy()
	if policy.MaxRetries != 1 {
		t.Errorf("Expected one retry by default, got %d", policy.MaxRetries)
	}
	if policy.MaxAttempts() != 2 {
		t.Errorf("Expected 2 attempts, got %d", policy.MaxAttempts())
	}
}

func TestRetryPolicyWaitHonoursCancellation(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 1, Delay: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := policy.Wait(ctx, 1); err != context.Canceled {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

// Benchmark tests
func BenchmarkErrorCreation(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = New(ErrCodeTaskExecution, "Task failed").
			WithContext("task", "staging").
			WithSuggestions("Check dbt logs")
	}
}
