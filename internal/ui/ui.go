package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// UI writes command output. It satisfies warehouse.Progress so the
// initializer can report steps as they happen.
type UI struct {
	Verbose bool
	Quiet   bool
	Out     io.Writer
	Err     io.Writer

	mu      sync.Mutex
	spinner *Spinner
}

// NewUI creates a new UI instance writing to stdout and stderr
func NewUI(verbose, quiet bool) *UI {
	return &UI{
		Verbose: verbose,
		Quiet:   quiet,
		Out:     os.Stdout,
		Err:     os.Stderr,
	}
}

func (u *UI) out() io.Writer {
	if u.Out == nil {
		return os.Stdout
	}
	return u.Out
}

func (u *UI) errOut() io.Writer {
	if u.Err == nil {
		return os.Stderr
	}
	return u.Err
}

// IsVerbose returns true if verbose mode is enabled
func (u *UI) IsVerbose() bool {
	return u.Verbose
}

// IsQuiet returns true if quiet mode is enabled
func (u *UI) IsQuiet() bool {
	return u.Quiet
}

// Printf prints formatted output if not in quiet mode
func (u *UI) Printf(format string, args ...interface{}) {
	if !u.Quiet {
		fmt.Fprintf(u.out(), format, args...)
	}
}

// Println prints a line if not in quiet mode
func (u *UI) Println(args ...interface{}) {
	if !u.Quiet {
		fmt.Fprintln(u.out(), args...)
	}
}

// VerbosePrintf prints formatted output only in verbose mode
func (u *UI) VerbosePrintf(format string, args ...interface{}) {
	if u.Verbose && !u.Quiet {
		fmt.Fprintf(u.out(), format, args...)
	}
}

// StartProgress starts a spinner with a message
func (u *UI) StartProgress(message string) {
	if u.Quiet {
		return
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.spinner != nil {
		u.spinner.UpdateMessage(message)
		return
	}
	u.spinner = NewSpinner(u.out(), message)
	u.spinner.Start()
}

// StopProgress stops the spinner, printing message with a success or failure mark
func (u *UI) StopProgress(success bool, message string) {
	u.mu.Lock()
	s := u.spinner
	u.spinner = nil
	u.mu.Unlock()
	if s != nil {
		s.Stop(success, message)
	}
}

// Step announces the start of a phase.
func (u *UI) Step(message string) {
	if !u.Quiet {
		fmt.Fprintf(u.out(), "%s %s\n", ColorProgress("►"), ColorBold(message))
	}
}

// Loaded reports rows inserted into table.
func (u *UI) Loaded(table string, rows int64) {
	if !u.Quiet {
		fmt.Fprintf(u.out(), "  %s %s %s\n", ColorSuccess("✓"), table, ColorDim(fmt.Sprintf("(%d rows)", rows)))
	}
}

// Warning prints a warning message
func (u *UI) Warning(message string) {
	if !u.Quiet {
		fmt.Fprintf(u.out(), "  %s %s\n", ColorWarning("⚠"), message)
	}
}

// Error prints an error message. Errors are shown even in quiet mode.
func (u *UI) Error(message string) {
	fmt.Fprintf(u.errOut(), "%s %s\n", ColorError("✗"), message)
}

// ShowError prints err with its code and suggestions
func (u *UI) ShowError(err error) {
	writeError(u.errOut(), err)
}

// Info prints an information message
func (u *UI) Info(message string) {
	if !u.Quiet {
		fmt.Fprintf(u.out(), "%s %s\n", ColorInfo("INFO:"), message)
	}
}

// Success prints a success message
func (u *UI) Success(message string) {
	if !u.Quiet {
		fmt.Fprintf(u.out(), "%s %s\n", ColorSuccess("SUCCESS:"), message)
	}
}

// Header prints a boxed title
func (u *UI) Header(title string) {
	if !u.Quiet {
		writeHeader(u.out(), title)
	}
}

// Section prints a section header
func (u *UI) Section(title string) {
	if u.Quiet {
		return
	}
	fmt.Fprintf(u.out(), "\n%s %s\n", ColorBold("▶"), ColorBold(title))
	fmt.Fprintln(u.out(), strings.Repeat("─", 50))
}

// KeyValue prints a key-value pair in a formatted way
func (u *UI) KeyValue(key, value string) {
	if !u.Quiet {
		fmt.Fprintf(u.out(), "  %-20s %s\n", ColorDim(key+":"), value)
	}
}
