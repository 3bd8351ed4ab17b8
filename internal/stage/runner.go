// Package stage invokes the dbt transformation engine for one model layer at a time.
package stage

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"coursepipe/internal/observability"
	apperrors "coursepipe/pkg/errors"

	"go.uber.org/zap"
)

// Stage names, in the order the pipeline runs them.
const (
	Staging      = "staging"
	Intermediate = "intermediate"
	Marts        = "marts"
)

// Names returns the stages in execution order.
func Names() []string {
	return []string{Staging, Intermediate, Marts}
}

// Valid reports whether name is a known stage.
func Valid(name string) bool {
	for _, n := range Names() {
		if n == name {
			return true
		}
	}
	return false
}

const outputTailLines = 20

// Runner runs `dbt <command> --select path:models/<stage>` as a subprocess.
type Runner struct {
	Binary      string
	ProjectDir  string
	ProfilesDir string
	Target      string
	Command     string        // run, build or test
	Timeout     time.Duration // zero means no limit beyond ctx
	Logger      *zap.Logger

	execCommand func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// Result describes one finished invocation.
type Result struct {
	Stage    string
	Args     []string
	Output   string
	Duration time.Duration
}

// Args returns the command-line arguments passed to the binary for stage.
func (r *Runner) Args(stage string) []string {
	command := r.Command
	if command == "" {
		command = "run"
	}
	args := []string{command, "--select", "path:models/" + stage}
	if r.ProjectDir != "" {
		args = append(args, "--project-dir", r.ProjectDir)
	}
	if r.ProfilesDir != "" {
		args = append(args, "--profiles-dir", r.ProfilesDir)
	}
	if r.Target != "" {
		args = append(args, "--target", r.Target)
	}
	return args
}

// Run executes one stage and blocks until it exits.
//
// A non-zero exit becomes a TaskExecutionError carrying the tail of the output, an
// exceeded Timeout becomes a TaskTimeoutError. Cancellation of ctx is returned as ctx.Err().
func (r *Runner) Run(ctx context.Context, stage string) (*Result, error) {
	if !Valid(stage) {
		return nil, apperrors.New(apperrors.ErrCodeTaskExecution, fmt.Sprintf("unknown stage %q", stage)).
			WithContext("stage", stage).
			WithSuggestions("Valid stages: " + strings.Join(Names(), ", "))
	}

	logger := observability.OrNop(r.Logger).With(zap.String("stage", stage))

	runCtx := ctx
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	binary := r.Binary
	if binary == "" {
		binary = "dbt"
	}
	args := r.Args(stage)

	newCmd := r.execCommand
	if newCmd == nil {
		newCmd = exec.CommandContext
	}
	cmd := newCmd(runCtx, binary, args...)
	cmd.WaitDelay = 5 * time.Second

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	logger.Info("Stage started", zap.String("binary", binary), zap.Strings("args", args))
	start := time.Now()
	err := cmd.Run()
	res := &Result{Stage: stage, Args: args, Output: output.String(), Duration: time.Since(start)}

	if err == nil {
		logger.Info("Stage finished", zap.Duration("duration", res.Duration))
		return res, nil
	}

	switch {
	case ctx.Err() != nil:
		logger.Warn("Stage cancelled", zap.Duration("duration", res.Duration))
		return res, ctx.Err()
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		logger.Error("Stage timed out", zap.Duration("timeout", r.Timeout))
		return res, apperrors.TaskTimeoutError(stage, r.Timeout)
	}

	appErr := apperrors.TaskExecutionError(stage, err).
		WithContext("output", tail(res.Output, outputTailLines))
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		appErr = appErr.WithContext("exit_code", exitErr.ExitCode())
	}
	logger.Error("Stage failed", zap.Error(err), zap.Duration("duration", res.Duration))
	return res, appErr
}

// tail returns the last n lines of s.
func tail(s string, n int) string {
	var lines []string
	scanner := bufio.NewScanner(strings.NewReader(s))
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
		if len(lines) > n {
			lines = lines[1:]
		}
	}
	return strings.Join(lines, "\n")
}
