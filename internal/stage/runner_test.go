package stage

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	apperrors "coursepipe/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDBT re-executes the test binary as a stand-in for dbt. mode selects the behaviour
// of TestHelperProcess.
func fakeDBT(mode string) func(ctx context.Context, name string, args ...string) *exec.Cmd {
	return func(ctx context.Context, name string, args ...string) *exec.Cmd {
		cs := append([]string{"-test.run=TestHelperProcess", "--", name}, args...)
		cmd := exec.CommandContext(ctx, os.Args[0], cs...)
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "HELPER_MODE="+mode)
		return cmd
	}
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	args := os.Args
	for len(args) > 0 && args[0] != "--" {
		args = args[1:]
	}
	if len(args) > 0 {
		args = args[1:]
	}

	switch os.Getenv("HELPER_MODE") {
	case "ok":
		fmt.Printf("Running with %s\n", strings.Join(args, " "))
		fmt.Println("Completed successfully")
		os.Exit(0)
	case "fail":
		fmt.Println("Compilation Error in model stg_users")
		fmt.Fprintln(os.Stderr, "Done. PASS=3 WARN=0 ERROR=1 SKIP=0 TOTAL=4")
		os.Exit(2)
	case "hang":
		time.Sleep(time.Minute)
		os.Exit(0)
	}
	os.Exit(0)
}

func TestArgs(t *testing.T) {
	tests := []struct {
		name   string
		runner Runner
		want   []string
	}{
		{
			name:   "defaults",
			runner: Runner{},
			want:   []string{"run", "--select", "path:models/staging"},
		},
		{
			name:   "all options",
			runner: Runner{Command: "build", ProjectDir: "dbt", ProfilesDir: "profiles", Target: "prod"},
			want: []string{"build", "--select", "path:models/staging",
				"--project-dir", "dbt", "--profiles-dir", "profiles", "--target", "prod"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.runner.Args(Staging))
		})
	}
}

func TestValid(t *testing.T) {
	assert.True(t, Valid(Staging))
	assert.True(t, Valid(Intermediate))
	assert.True(t, Valid(Marts))
	assert.False(t, Valid("report"))
	assert.Equal(t, []string{"staging", "intermediate", "marts"}, Names())
}

func TestRunSuccess(t *testing.T) {
	r := &Runner{Binary: "dbt", ProjectDir: "transform", execCommand: fakeDBT("ok")}

	res, err := r.Run(context.Background(), Intermediate)
	require.NoError(t, err)
	assert.Equal(t, Intermediate, res.Stage)
	assert.Contains(t, res.Output, "dbt run --select path:models/intermediate --project-dir transform")
	assert.Contains(t, res.Output, "Completed successfully")
}

func TestRunFailureIsTaskExecutionError(t *testing.T) {
	r := &Runner{execCommand: fakeDBT("fail")}

	res, err := r.Run(context.Background(), Marts)
	require.Error(t, err)
	require.NotNil(t, res)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrCodeTaskExecution, appErr.Code)
	assert.True(t, appErr.Recoverable)
	assert.Equal(t, 2, appErr.Context["exit_code"])
	assert.Contains(t, appErr.Context["output"], "ERROR=1")
}

func TestRunTimeout(t *testing.T) {
	r := &Runner{Timeout: 200 * time.Millisecond, execCommand: fakeDBT("hang")}

	_, err := r.Run(context.Background(), Staging)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeTaskTimeout))
	assert.True(t, apperrors.IsRecoverable(err))
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{execCommand: fakeDBT("hang")}

	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	_, err := r.Run(ctx, Staging)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRunUnknownStage(t *testing.T) {
	r := &Runner{execCommand: fakeDBT("ok")}

	_, err := r.Run(context.Background(), "seeds")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown stage "seeds"`)
}

func TestTail(t *testing.T) {
	assert.Equal(t, "c\nd", tail("a\nb\nc\nd\n", 2))
	assert.Equal(t, "a", tail("a", 5))
	assert.Equal(t, "", tail("", 5))
}
