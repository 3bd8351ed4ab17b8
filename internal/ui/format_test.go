package ui

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	apperrors "coursepipe/pkg/errors"
)

func TestColorFunc(t *testing.T) {
	originalSupportsColor := supportsColor
	defer func() {
		supportsColor = originalSupportsColor
	}()

	tests := []struct {
		name          string
		supportsColor bool
		expectColored bool
	}{
		{name: "with color support", supportsColor: true, expectColored: true},
		{name: "without color support", supportsColor: false, expectColored: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			supportsColor = tt.supportsColor

			funcs := []func(string) string{
				ColorSuccess,
				ColorError,
				ColorWarning,
				ColorInfo,
				ColorProgress,
				ColorBold,
				ColorDim,
			}

			for _, colorFunc := range funcs {
				result := colorFunc("test text")
				if tt.expectColored && result == "test text" {
					t.Error("Expected colored output, got plain text")
				}
				if !tt.expectColored && result != "test text" {
					t.Error("Expected plain text, got colored output")
				}
			}
		})
	}
}

func TestWriteHeader(t *testing.T) {
	supportsColor = false

	var buf bytes.Buffer
	writeHeader(&buf, "Pipeline Run")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("Expected 3 lines, got %d: %q", len(lines), buf.String())
	}
	if !strings.Contains(lines[1], "Pipeline Run") {
		t.Errorf("Expected title in header, got %q", lines[1])
	}
	if len(lines[0]) != len(lines[1]) {
		t.Errorf("Header box is not aligned: %q vs %q", lines[0], lines[1])
	}
}

func TestWriteError(t *testing.T) {
	supportsColor = false

	tests := []struct {
		name     string
		err      error
		contains []string
		excludes []string
	}{
		{
			name:     "plain error with suggestion",
			err:      errors.New(`exec: "dbt": executable file not found in $PATH`),
			contains: []string{"ERROR:", "executable file not found", "TIP:", "Install dbt"},
		},
		{
			name:     "plain error without suggestion",
			err:      errors.New("something odd"),
			contains: []string{"ERROR:", "something odd"},
			excludes: []string{"TIP:"},
		},
		{
			name:     "app error shows code and own suggestions",
			err:      apperrors.ConnectionError("warehouse.duckdb", errors.New("Could not set lock on file")),
			contains: []string{"[CPE1001]", "warehouse.duckdb", "Could not set lock on file", "TIP:"},
		},
		{
			name:     "wrapped app error",
			err:      errors.Join(apperrors.SQLError("verify", "SELECT 1", errors.New("Catalog Error: missing"))),
			contains: []string{"ERROR:", "Catalog Error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			writeError(&buf, tt.err)
			out := buf.String()
			for _, want := range tt.contains {
				if !strings.Contains(out, want) {
					t.Errorf("Expected output to contain %q, got:\n%s", want, out)
				}
			}
			for _, unwanted := range tt.excludes {
				if strings.Contains(out, unwanted) {
					t.Errorf("Expected output not to contain %q, got:\n%s", unwanted, out)
				}
			}
		})
	}
}

func TestGetSuggestion(t *testing.T) {
	tests := []struct {
		message  string
		expected string
	}{
		{"IO Error: Could not set lock on file \"warehouse.duckdb\"", "Another process"},
		{"warehouse is locked by another process", "Another process"},
		{"exec: \"dbt\": executable file not found in $PATH", "Install dbt"},
		{"Catalog Error: Table with name course_engagement does not exist", "coursepipe init"},
		{"Conversion Error: Could not convert string 'x' to INT32", "CSV columns"},
		{"open out/report.csv: permission denied", "writable"},
		{"unknown error", ""},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			result := getSuggestion(tt.message)
			if tt.expected == "" {
				if result != "" {
					t.Errorf("Expected no suggestion, got %q", result)
				}
				return
			}
			if !strings.Contains(result, tt.expected) {
				t.Errorf("Expected suggestion containing %q, got %q", tt.expected, result)
			}
		})
	}
}
