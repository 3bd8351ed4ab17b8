package ui

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	apperrors "coursepipe/pkg/errors"

	"github.com/mattn/go-isatty"
	"github.com/mgutz/ansi"
)

var (
	// Check if output supports colors
	supportsColor = isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())

	// Color functions
	ColorSuccess  = colorFunc(ansi.Green)
	ColorError    = colorFunc(ansi.Red)
	ColorWarning  = colorFunc(ansi.Yellow)
	ColorInfo     = colorFunc(ansi.Cyan)
	ColorProgress = colorFunc(ansi.Blue)
	ColorBold     = colorFunc("default+b")
	ColorDim      = colorFunc("default+h")
)

// colorFunc returns a function that colors text if supported
func colorFunc(color string) func(string) string {
	return func(text string) string {
		if supportsColor {
			return ansi.Color(text, color)
		}
		return text
	}
}

// writeHeader draws a boxed title
func writeHeader(w io.Writer, title string) {
	width := 50
	padding := (width - len(title) - 2) / 2
	if padding < 0 {
		padding = 0
	}
	right := width - 2 - padding - len(title)
	if right < 0 {
		right = 0
	}

	fmt.Fprintln(w, "\n+"+strings.Repeat("-", width-2)+"+")
	fmt.Fprintf(w, "|%s%s%s|\n",
		strings.Repeat(" ", padding),
		ColorBold(title),
		strings.Repeat(" ", right),
	)
	fmt.Fprintln(w, "+"+strings.Repeat("-", width-2)+"+")
}

// writeError prints err with its code, context lines and suggestions
func writeError(w io.Writer, err error) {
	fmt.Fprintf(w, "\n%s\n", ColorError("ERROR:"))

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		fmt.Fprintf(w, "  %s %s\n", ColorDim("["+string(appErr.Code)+"]"), appErr.Message)
		if appErr.Cause != nil {
			for _, line := range strings.Split(appErr.Cause.Error(), "\n") {
				fmt.Fprintf(w, "  %s\n", ColorDim(line))
			}
		}
		for _, s := range appErr.Suggestions {
			fmt.Fprintf(w, "\n  %s %s\n", ColorInfo("TIP:"), ColorInfo(s))
		}
		if len(appErr.Suggestions) > 0 {
			return
		}
	} else {
		lines := strings.Split(err.Error(), "\n")
		for i, line := range lines {
			if i == 0 {
				fmt.Fprintf(w, "  %s\n", line)
			} else {
				fmt.Fprintf(w, "  %s\n", ColorDim(line))
			}
		}
	}

	if suggestion := getSuggestion(err.Error()); suggestion != "" {
		fmt.Fprintf(w, "\n  %s %s\n", ColorInfo("TIP:"), ColorInfo(suggestion))
	}
}

// ShowError displays a formatted error message
func ShowError(err error) {
	writeError(os.Stderr, err)
}

// getSuggestion returns helpful suggestions based on error messages
func getSuggestion(message string) string {
	lower := strings.ToLower(message)

	switch {
	case strings.Contains(lower, "could not set lock on file"), strings.Contains(lower, "locked by another process"):
		return "Another process has the warehouse open; wait for it or stop it"
	case strings.Contains(lower, "executable file not found"):
		return "Install dbt or set dbt.binary to its full path"
	case strings.Contains(lower, "catalog error"):
		return "Run 'coursepipe init' to create the raw tables, then the pipeline to build the marts"
	case strings.Contains(lower, "conversion error"):
		return "An extract does not match the raw table column types; check the CSV columns"
	case strings.Contains(lower, "permission denied"):
		return "Check that the warehouse and output directories are writable"
	default:
		return ""
	}
}
