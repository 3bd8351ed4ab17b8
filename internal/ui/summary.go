package ui

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"coursepipe/internal/dag"
	"coursepipe/internal/state"
	"coursepipe/internal/warehouse"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
)

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	return table
}

// StateString colors a task or run state.
func StateString(s dag.TaskState) string {
	switch s {
	case dag.StateSuccess:
		return color.GreenString(string(s))
	case dag.StateFailed, dag.StateCancelled:
		return color.RedString(string(s))
	case dag.StateRetrying, dag.StateSkipped:
		return color.YellowString(string(s))
	case dag.StateRunning:
		return color.CyanString(string(s))
	default:
		return string(s)
	}
}

// RowCountTable prints verified row counts. Tables that could not be counted are
// listed with a dash.
func RowCountTable(w io.Writer, tables []string, counts []warehouse.TableCount) {
	byTable := make(map[string]int64, len(counts))
	for _, c := range counts {
		byTable[c.Table] = c.Rows
	}

	table := newTable(w, "Table", "Rows")
	for _, name := range tables {
		rows, ok := byTable[name]
		value := "-"
		if ok {
			value = strconv.FormatInt(rows, 10)
		}
		table.Append([]string{name, value})
	}
	table.Render()
}

// TaskTable prints one row per task instance.
func TaskTable(w io.Writer, tasks []dag.TaskInstance) {
	table := newTable(w, "Task", "State", "Attempts", "Duration", "Error")
	for _, ti := range tasks {
		duration := "-"
		if d := ti.Duration(); d > 0 {
			duration = FormatDuration(d)
		}
		table.Append([]string{
			ti.Task,
			StateString(ti.State),
			strconv.Itoa(ti.Attempts),
			duration,
			firstLine(ti.LastError, 60),
		})
	}
	table.Render()
}

// RunsTable prints recorded runs, newest first as given.
func RunsTable(w io.Writer, runs []state.Run) {
	table := newTable(w, "Run", "Logical Date", "Trigger", "Status", "Started", "Duration")
	for _, r := range runs {
		duration := "-"
		if !r.FinishedAt.IsZero() {
			duration = FormatDuration(r.FinishedAt.Sub(r.StartedAt))
		}
		table.Append([]string{
			shortID(r.ID),
			r.LogicalDate.Format(time.DateOnly),
			r.Trigger,
			StateString(r.Status),
			r.StartedAt.Local().Format(time.DateTime),
			duration,
		})
	}
	table.Render()
}

// GraphTable prints tasks in execution order with their upstream dependencies.
func GraphTable(w io.Writer, g *dag.Graph) {
	table := newTable(w, "#", "Task", "Upstream")
	for i, name := range g.TopologicalOrder() {
		upstream := strings.Join(g.Upstream(name), ", ")
		if upstream == "" {
			upstream = "-"
		}
		table.Append([]string{strconv.Itoa(i + 1), name, upstream})
	}
	table.Render()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func firstLine(s string, max int) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > max {
		return fmt.Sprintf("%s...", s[:max-3])
	}
	return s
}
