package quality

import (
	"context"
	"errors"
	"testing"

	"coursepipe/internal/testutil"
	"coursepipe/internal/warehouse"
	apperrors "coursepipe/pkg/errors"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mart = "analytics.mart_course_engagement"

func countRows(n int64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"count"}).AddRow(n)
}

func expectRawCounts(mock sqlmock.Sqlmock, counts ...int64) {
	for i, t := range warehouse.RawTables {
		mock.ExpectQuery("SELECT COUNT(*) FROM " + t.QualifiedName()).WillReturnRows(countRows(counts[i]))
	}
}

func TestRunAllChecksPass(t *testing.T) {
	db, mock := testutil.NewMockDB(t)
	expectRawCounts(mock, 100, 20, 500, 2000)
	mock.ExpectQuery("SELECT COUNT(*) FROM " + mart).WillReturnRows(countRows(20))
	mock.ExpectQuery("SELECT COUNT(*) FROM " + mart + " WHERE course_id IS NULL").WillReturnRows(countRows(0))

	c := &Checker{DB: db, MartTable: mart}
	report, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Passed())
	assert.Len(t, report.Results, 6)
}

func TestRunReportsFailedChecks(t *testing.T) {
	db, mock := testutil.NewMockDB(t)
	expectRawCounts(mock, 100, 20, 500, 0)
	mock.ExpectQuery("SELECT COUNT(*) FROM " + mart).WillReturnRows(countRows(20))
	mock.ExpectQuery("SELECT COUNT(*) FROM " + mart + " WHERE course_id IS NULL").WillReturnRows(countRows(3))

	c := &Checker{DB: db, MartTable: mart}
	report, err := c.Run(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeQualityCheckFailed))
	assert.False(t, apperrors.IsRecoverable(err))
	assert.Contains(t, err.Error(), "raw.events not empty (0 rows)")
	assert.Contains(t, err.Error(), "3 null rows")

	failed := report.Failed()
	require.Len(t, failed, 2)
}

func TestCheckMartCustomKey(t *testing.T) {
	db, mock := testutil.NewMockDB(t)
	mock.ExpectQuery("SELECT COUNT(*) FROM " + mart).WillReturnRows(countRows(0))
	mock.ExpectQuery("SELECT COUNT(*) FROM " + mart + " WHERE user_id IS NULL").WillReturnRows(countRows(0))

	c := &Checker{DB: db, MartTable: mart, KeyColumn: "user_id"}
	report, err := c.CheckMart(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Passed())
	assert.Equal(t, "analytics.mart_course_engagement not empty", report.Failed()[0].Name)
}

func TestQueryErrorIsReturned(t *testing.T) {
	db, mock := testutil.NewMockDB(t)
	mock.ExpectQuery("SELECT COUNT(*) FROM raw.users").WillReturnError(errors.New("no such table"))

	c := &Checker{DB: db, MartTable: mart}
	_, err := c.CheckRaw(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeSQLExecution))
}

func TestInvalidIdentifiersAreRejected(t *testing.T) {
	tests := []struct {
		name    string
		checker Checker
		want    string
	}{
		{name: "table", checker: Checker{MartTable: "analytics.mart; DROP TABLE raw.users"}, want: "invalid mart table name"},
		{name: "empty table", checker: Checker{}, want: "invalid mart table name"},
		{name: "key column", checker: Checker{MartTable: mart, KeyColumn: "course_id OR 1=1"}, want: "invalid key column"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, _ := testutil.NewMockDB(t)
			c := tt.checker
			c.DB = db

			_, err := c.Run(context.Background())
			require.Error(t, err)
			assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeConfigInvalid))
			assert.Contains(t, err.Error(), tt.want)

			_, err = c.CheckMart(context.Background())
			require.Error(t, err)
			assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeConfigInvalid))
		})
	}
}
