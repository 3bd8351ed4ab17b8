package testutil

import (
	"database/sql"
	"sync"
	"testing"
	"time"

	"coursepipe/pkg/models"

	"github.com/DATA-DOG/go-sqlmock"
)

// NewMockDB opens a sqlmock database matching queries by exact text.
// Unmet expectations fail the test at cleanup.
func NewMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("Failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("Unmet sqlmock expectations: %v", err)
		}
		db.Close()
	})
	return db, mock
}

// RecordingProgress captures initializer progress callbacks
type RecordingProgress struct {
	mu       sync.Mutex
	Steps    []string
	Rows     map[string]int64
	Warnings []string
}

// NewRecordingProgress creates an empty recorder
func NewRecordingProgress() *RecordingProgress {
	return &RecordingProgress{Rows: make(map[string]int64)}
}

func (p *RecordingProgress) Step(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Steps = append(p.Steps, message)
}

func (p *RecordingProgress) Loaded(table string, rows int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Rows[table] = rows
}

func (p *RecordingProgress) Warning(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Warnings = append(p.Warnings, message)
}

// TestConfig returns a sample configuration rooted at dir
func TestConfig(dir string) *models.Config {
	return &models.Config{
		Warehouse: models.Warehouse{
			Path:        dir + "/test.duckdb",
			DataDir:     dir + "/data",
			LockTimeout: 0,
		},
		DBT: models.DBT{
			Binary:     "dbt",
			ProjectDir: dir,
			Command:    "run",
			Timeout:    time.Minute,
		},
		Schedule: models.Schedule{
			StartDate:    "2025-11-20",
			Timezone:     "UTC",
			PollInterval: 10 * time.Millisecond,
		},
		Retry: models.Retry{
			MaxRetries: 1,
			Delay:      time.Millisecond,
			Multiplier: 1.0,
		},
		Report: models.Report{
			OutputDir: dir + "/output",
			Table:     "analytics.mart_course_engagement",
			Prefix:    "course_engagement",
		},
		Pipeline: models.Pipeline{
			MaxParallel: 4,
		},
		State: models.State{
			Path: dir + "/state.db",
		},
	}
}
