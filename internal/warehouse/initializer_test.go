package warehouse

import (
	"context"
	"errors"
	"testing"

	"coursepipe/internal/testutil"
	apperrors "coursepipe/pkg/errors"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fullCounts = map[string]int64{"users": 100, "courses": 20, "enrolments": 500, "events": 2000}

// expectInitialize registers the complete statement sequence for one Initialize call.
// loaded lists the tables whose extract exists; failing maps a statement to the error it returns.
func expectInitialize(mock sqlmock.Sqlmock, dataDir string, loaded map[string]bool, counts map[string]int64, failing map[string]error) {
	expectExec := func(query string, rows int64) {
		e := mock.ExpectExec(query)
		if err, ok := failing[query]; ok {
			e.WillReturnError(err)
			return
		}
		e.WillReturnResult(sqlmock.NewResult(0, rows))
	}

	expectExec("CREATE SCHEMA IF NOT EXISTS raw", 0)
	for i := len(RawTables) - 1; i >= 0; i-- {
		expectExec(RawTables[i].DropSQL(), 0)
	}
	for _, t := range RawTables {
		expectExec(t.CreateSQL(), 0)
	}
	for _, t := range RawTables {
		if loaded[t.Name] {
			expectExec(t.LoadSQL(t.ExtractPath(dataDir)), counts[t.Name])
		}
	}
	for _, idx := range RawIndexes {
		expectExec(idx.CreateSQL(), 0)
	}
	for _, t := range RawTables {
		mock.ExpectQuery(t.CountSQL()).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(counts[t.Name]))
	}
}

func allLoaded() map[string]bool {
	return map[string]bool{"users": true, "courses": true, "enrolments": true, "events": true}
}

func TestInitializeLoadsAllExtracts(t *testing.T) {
	dir := t.TempDir()
	h := testutil.NewTestHelper(t)
	h.WriteExtracts(dir, map[string]int{"users": 100, "courses": 20, "enrolments": 500, "events": 2000})

	db, mock := testutil.NewMockDB(t)
	expectInitialize(mock, dir, allLoaded(), fullCounts, nil)

	progress := testutil.NewRecordingProgress()
	res, err := NewInitializer(db, dir, WithProgress(progress)).Initialize(context.Background())
	require.NoError(t, err)

	assert.True(t, res.Clean())
	assert.Equal(t, []TableCount{
		{Table: "users", Rows: 100},
		{Table: "courses", Rows: 20},
		{Table: "enrolments", Rows: 500},
		{Table: "events", Rows: 2000},
	}, res.Counts)
	assert.Equal(t, int64(2000), progress.Rows["raw.events"])
	assert.Len(t, progress.Steps, 4)
}

func TestInitializeIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	testutil.NewTestHelper(t).WriteExtracts(dir, map[string]int{"users": 100, "courses": 20, "enrolments": 500, "events": 2000})

	db, mock := testutil.NewMockDB(t)
	expectInitialize(mock, dir, allLoaded(), fullCounts, nil)
	expectInitialize(mock, dir, allLoaded(), fullCounts, nil)

	initializer := NewInitializer(db, dir)
	first, err := initializer.Initialize(context.Background())
	require.NoError(t, err)
	second, err := initializer.Initialize(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first.Counts, second.Counts)
	for table, want := range fullCounts {
		assert.Equal(t, want, second.Count(table), table)
	}
}

func TestInitializeMissingExtractIsPartialSuccess(t *testing.T) {
	dir := t.TempDir()
	testutil.NewTestHelper(t).WriteExtracts(dir, map[string]int{"users": 100, "courses": 20, "enrolments": 500})

	counts := map[string]int64{"users": 100, "courses": 20, "enrolments": 500, "events": 0}
	loaded := allLoaded()
	delete(loaded, "events")

	db, mock := testutil.NewMockDB(t)
	expectInitialize(mock, dir, loaded, counts, nil)

	progress := testutil.NewRecordingProgress()
	res, err := NewInitializer(db, dir, WithProgress(progress)).Initialize(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Warnings, 1)
	assert.Equal(t, apperrors.ErrCodeMissingExtract, res.Warnings[0].Code)
	assert.Equal(t, "events", res.Warnings[0].Context["table"])
	assert.Empty(t, res.Errors)
	assert.Equal(t, int64(0), res.Count("events"))
	assert.Equal(t, int64(500), res.Count("enrolments"))
	require.Len(t, progress.Warnings, 1)
	assert.Contains(t, progress.Warnings[0], "raw_events.csv")
}

func TestInitializeCollectsStatementErrors(t *testing.T) {
	dir := t.TempDir()
	testutil.NewTestHelper(t).WriteExtracts(dir, map[string]int{"users": 100, "courses": 20, "enrolments": 500, "events": 2000})

	courses := RawTables[1]
	failing := map[string]error{
		courses.LoadSQL(courses.ExtractPath(dir)): errors.New("Conversion Error: Could not convert string 'x' to INT32"),
		RawIndexes[0].CreateSQL():                 errors.New("Catalog Error: index already exists"),
	}
	counts := map[string]int64{"users": 100, "courses": 0, "enrolments": 500, "events": 2000}

	db, mock := testutil.NewMockDB(t)
	expectInitialize(mock, dir, allLoaded(), counts, failing)

	res, err := NewInitializer(db, dir).Initialize(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Errors, 2)
	for _, e := range res.Errors {
		assert.True(t, apperrors.IsCode(e, apperrors.ErrCodeSQLExecution))
	}
	assert.Equal(t, int64(0), res.Count("courses"))
	assert.Equal(t, int64(2000), res.Count("events"))
}

func TestInitializeCountFailureLeavesTableUncounted(t *testing.T) {
	dir := t.TempDir()
	db, mock := testutil.NewMockDB(t)

	mock.ExpectExec("CREATE SCHEMA IF NOT EXISTS raw").WillReturnResult(sqlmock.NewResult(0, 0))
	for i := len(RawTables) - 1; i >= 0; i-- {
		mock.ExpectExec(RawTables[i].DropSQL()).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	for _, tbl := range RawTables {
		mock.ExpectExec(tbl.CreateSQL()).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	for _, idx := range RawIndexes {
		mock.ExpectExec(idx.CreateSQL()).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectQuery(RawTables[0].CountSQL()).WillReturnError(errors.New("table does not exist"))
	for _, tbl := range RawTables[1:] {
		mock.ExpectQuery(tbl.CountSQL()).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	}

	res, err := NewInitializer(db, dir).Initialize(context.Background())
	require.NoError(t, err)

	assert.Len(t, res.Warnings, len(RawTables))
	assert.Len(t, res.Errors, 1)
	assert.Equal(t, int64(-1), res.Count("users"))
	assert.Len(t, res.Counts, len(RawTables)-1)
}

func TestInitializeStopsOnCancellation(t *testing.T) {
	dir := t.TempDir()
	testutil.NewTestHelper(t).WriteExtracts(dir, map[string]int{"users": 1})

	db, mock := testutil.NewMockDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mock.ExpectExec("CREATE SCHEMA IF NOT EXISTS raw").WillReturnResult(sqlmock.NewResult(0, 0))
	for i := len(RawTables) - 1; i >= 0; i-- {
		mock.ExpectExec(RawTables[i].DropSQL()).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	for _, tbl := range RawTables {
		mock.ExpectExec(tbl.CreateSQL()).WillReturnResult(sqlmock.NewResult(0, 0))
	}

	progress := &cancelOnStep{cancel: cancel, at: "Loading CSV extracts", RecordingProgress: testutil.NewRecordingProgress()}
	res, err := NewInitializer(db, dir, WithProgress(progress)).Initialize(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, res.Counts)
	assert.Equal(t, []string{"Creating schema and tables", "Loading CSV extracts"}, progress.Steps)
}

type cancelOnStep struct {
	*testutil.RecordingProgress
	cancel context.CancelFunc
	at     string
}

func (p *cancelOnStep) Step(message string) {
	p.RecordingProgress.Step(message)
	if message == p.at {
		p.cancel()
	}
}
