package ui

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"coursepipe/internal/dag"
	"coursepipe/internal/state"
	"coursepipe/internal/warehouse"

	"github.com/fatih/color"
)

var _ warehouse.Progress = (*UI)(nil)

func newTestUI(quiet bool) (*UI, *bytes.Buffer, *bytes.Buffer) {
	supportsColor = false
	color.NoColor = true
	var out, errOut bytes.Buffer
	u := NewUI(false, quiet)
	u.Out = &out
	u.Err = &errOut
	return u, &out, &errOut
}

func TestUI_Progress(t *testing.T) {
	u, out, _ := newTestUI(false)

	u.Step("Loading CSV extracts")
	u.Loaded("raw.courses", 42)
	u.Warning("data/enrollments.csv not found, skipping")

	got := out.String()
	for _, want := range []string{
		"► Loading CSV extracts",
		"✓ raw.courses (42 rows)",
		"⚠ data/enrollments.csv not found, skipping",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("Expected %q in output, got:\n%s", want, got)
		}
	}
}

func TestUI_Quiet(t *testing.T) {
	u, out, errOut := newTestUI(true)

	u.Step("step")
	u.Info("info")
	u.Success("done")
	u.Section("section")
	u.KeyValue("key", "value")
	u.Printf("%s", "printf")
	u.Error("broken")

	if out.Len() != 0 {
		t.Errorf("Expected no output in quiet mode, got %q", out.String())
	}
	if !strings.Contains(errOut.String(), "broken") {
		t.Errorf("Errors must be shown in quiet mode, got %q", errOut.String())
	}
}

func TestUI_VerbosePrintf(t *testing.T) {
	u, out, _ := newTestUI(false)

	u.VerbosePrintf("hidden\n")
	if out.Len() != 0 {
		t.Errorf("Expected no output without verbose, got %q", out.String())
	}

	u.Verbose = true
	u.VerbosePrintf("shown\n")
	if out.String() != "shown\n" {
		t.Errorf("Expected verbose output, got %q", out.String())
	}
}

func TestUI_KeyValueAndSection(t *testing.T) {
	u, out, _ := newTestUI(false)

	u.Section("Run")
	u.KeyValue("Logical date", "2025-12-01")

	got := out.String()
	if !strings.Contains(got, "▶ Run") {
		t.Errorf("Expected section title, got %q", got)
	}
	if !strings.Contains(got, "Logical date:") || !strings.Contains(got, "2025-12-01") {
		t.Errorf("Expected key and value, got %q", got)
	}
}

func TestUI_ShowError(t *testing.T) {
	u, _, errOut := newTestUI(false)

	u.ShowError(errors.New("boom"))
	if !strings.Contains(errOut.String(), "boom") {
		t.Errorf("Expected error on stderr, got %q", errOut.String())
	}
}

func TestRowCountTable(t *testing.T) {
	_, _, _ = newTestUI(false)
	var buf bytes.Buffer

	RowCountTable(&buf, []string{"raw.courses", "raw.students"}, []warehouse.TableCount{
		{Table: "raw.courses", Rows: 3},
	})

	got := buf.String()
	if !strings.Contains(got, "TABLE") || !strings.Contains(got, "ROWS") {
		t.Errorf("Expected header, got:\n%s", got)
	}
	if !strings.Contains(got, "raw.courses") || !strings.Contains(got, "3") {
		t.Errorf("Expected counted row, got:\n%s", got)
	}
	lines := strings.Split(got, "\n")
	var students string
	for _, l := range lines {
		if strings.Contains(l, "raw.students") {
			students = l
		}
	}
	if !strings.Contains(students, "-") {
		t.Errorf("Expected uncounted table to show a dash, got %q", students)
	}
}

func TestTaskTable(t *testing.T) {
	_, _, _ = newTestUI(false)
	var buf bytes.Buffer
	start := time.Date(2025, 12, 2, 6, 0, 0, 0, time.UTC)

	TaskTable(&buf, []dag.TaskInstance{
		{Task: "staging", State: dag.StateSuccess, Attempts: 1, StartedAt: start, FinishedAt: start.Add(2 * time.Second)},
		{Task: "intermediate", State: dag.StateFailed, Attempts: 3, LastError: "task intermediate failed\nmore detail"},
		{Task: "report", State: dag.StateSkipped},
	})

	got := buf.String()
	for _, want := range []string{"staging", "SUCCESS", "2.0s", "FAILED", "task intermediate failed", "SKIPPED"} {
		if !strings.Contains(got, want) {
			t.Errorf("Expected %q in table, got:\n%s", want, got)
		}
	}
	if strings.Contains(got, "more detail") {
		t.Errorf("Expected only the first error line, got:\n%s", got)
	}
}

func TestRunsTable(t *testing.T) {
	_, _, _ = newTestUI(false)
	var buf bytes.Buffer
	start := time.Date(2025, 12, 2, 6, 0, 0, 0, time.UTC)

	RunsTable(&buf, []state.Run{
		{
			ID:          "0f8fad5b-d9cb-469f-a165-70867728950e",
			LogicalDate: time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC),
			Trigger:     "scheduled",
			Status:      dag.StateSuccess,
			StartedAt:   start,
			FinishedAt:  start.Add(65 * time.Second),
		},
	})

	got := buf.String()
	for _, want := range []string{"0f8fad5b", "2025-12-01", "scheduled", "SUCCESS", "1m5s"} {
		if !strings.Contains(got, want) {
			t.Errorf("Expected %q in table, got:\n%s", want, got)
		}
	}
	if strings.Contains(got, "d9cb") {
		t.Errorf("Expected a shortened run ID, got:\n%s", got)
	}
}

func TestGraphTable(t *testing.T) {
	_, _, _ = newTestUI(false)
	g, err := dag.NewBuilder().Chain("staging", "intermediate", "marts").Build()
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	GraphTable(&buf, g)

	got := buf.String()
	staging := strings.Index(got, "staging")
	marts := strings.Index(got, "marts")
	if staging < 0 || marts < 0 || staging > marts {
		t.Errorf("Expected tasks in execution order, got:\n%s", got)
	}
	if !strings.Contains(got, "intermediate") {
		t.Errorf("Expected upstream column, got:\n%s", got)
	}
}

func TestFirstLine(t *testing.T) {
	if got := firstLine("short", 10); got != "short" {
		t.Errorf("Expected short, got %q", got)
	}
	if got := firstLine(strings.Repeat("x", 20), 10); got != "xxxxxxx..." {
		t.Errorf("Expected truncated line, got %q", got)
	}
}
