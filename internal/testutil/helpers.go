package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"coursepipe/internal/common"
)

// TestHelper provides common test utilities
type TestHelper struct {
	t *testing.T
}

// NewTestHelper creates a new test helper
func NewTestHelper(t *testing.T) *TestHelper {
	return &TestHelper{t: t}
}

// WriteFile writes content to a file in the given directory
func (h *TestHelper) WriteFile(dir, filename, content string) string {
	h.t.Helper()
	path := filepath.Join(dir, filename)

	if err := os.MkdirAll(filepath.Dir(path), common.DirPermissionNormal); err != nil {
		h.t.Fatalf("Failed to create directories: %v", err)
	}

	if err := os.WriteFile(path, []byte(content), common.FilePermissionNormal); err != nil {
		h.t.Fatalf("Failed to write file %s: %v", path, err)
	}

	return path
}

// WriteExtracts writes raw_<table>.csv files into dir with the given number of data rows.
// Tables not present in rows get no file.
func (h *TestHelper) WriteExtracts(dir string, rows map[string]int) {
	h.t.Helper()
	gen := NewTestDataGenerator()
	for table, n := range rows {
		h.WriteFile(dir, "raw_"+table+".csv", gen.ExtractCSV(table, n))
	}
}

// TestDataGenerator produces deterministic extract rows
type TestDataGenerator struct {
	seed int
}

// NewTestDataGenerator creates a new test data generator
func NewTestDataGenerator() *TestDataGenerator {
	return &TestDataGenerator{seed: 1}
}

// NextInt generates a unique integer
func (g *TestDataGenerator) NextInt() int {
	result := g.seed
	g.seed++
	return result
}

var extractHeaders = map[string]string{
	"users":      "id,fullName,email,signupDate,state,isGovEmployee,updatedAt,deleted",
	"courses":    "course_id,title,category_name,level,publisher,course_created_at",
	"enrolments": "enrolment_id,user_id,course_id,enrolled_at,status",
	"events":     "id,user_id,course_id,event_type,event_timestamp,session_id,metadata",
}

// ExtractCSV renders a header plus n rows in the column order of the raw table.
func (g *TestDataGenerator) ExtractCSV(table string, n int) string {
	var b strings.Builder
	b.WriteString(extractHeaders[table])
	b.WriteString("\n")
	for i := 0; i < n; i++ {
		id := g.NextInt()
		switch table {
		case "users":
			fmt.Fprintf(&b, "%d,User %d,user%d@example.com,2025-11-01,NSW,false,2025-11-02 10:00:00,false\n", id, id, id)
		case "courses":
			fmt.Fprintf(&b, "%d,Course %d,Data,Beginner,Example,2025-10-01\n", id, id)
		case "enrolments":
			fmt.Fprintf(&b, "%d,%d,%d,2025-11-15 09:30:00,active\n", id, id%100+1, id%20+1)
		case "events":
			fmt.Fprintf(&b, "%d,%d,%d,video_play,2025-12-01 12:00:00,s-%d,\n", id, id%100+1, id%20+1, id)
		default:
			fmt.Fprintf(&b, "%d\n", id)
		}
	}
	return b.String()
}
