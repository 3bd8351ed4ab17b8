// Package report exports the engagement mart to a dated CSV file.
package report

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"coursepipe/internal/common"
	"coursepipe/internal/observability"
	apperrors "coursepipe/pkg/errors"

	"go.uber.org/zap"
)

// Exporter writes the contents of one mart table to <OutputDir>/<Prefix>_<YYYYMMDD>.csv.
type Exporter struct {
	DB         *sql.DB
	OutputDir  string
	Table      string
	Prefix     string
	DateColumn string // when set, only rows whose date equals the run date are exported
	Logger     *zap.Logger
}

// FileName returns the report file name for runDate.
func (e *Exporter) FileName(runDate time.Time) string {
	prefix := e.Prefix
	if prefix == "" {
		prefix = "course_engagement"
	}
	return fmt.Sprintf("%s_%s.csv", prefix, runDate.Format("20060102"))
}

// Path returns the full report path for runDate.
func (e *Exporter) Path(runDate time.Time) string {
	return filepath.Join(e.OutputDir, e.FileName(runDate))
}

// Query returns the statement and arguments used for runDate.
func (e *Exporter) Query(runDate time.Time) (string, []any, error) {
	if !common.IsIdentifier(e.Table) {
		return "", nil, exportError(fmt.Sprintf("invalid table name %q", e.Table), nil)
	}
	if e.DateColumn == "" {
		return "SELECT * FROM " + e.Table, nil, nil
	}
	if !common.IsIdentifier(e.DateColumn) {
		return "", nil, exportError(fmt.Sprintf("invalid date column %q", e.DateColumn), nil)
	}
	query := fmt.Sprintf("SELECT * FROM %s WHERE CAST(%s AS DATE) = CAST(? AS DATE)", e.Table, e.DateColumn)
	return query, []any{runDate.Format("2006-01-02")}, nil
}

// Export queries the mart and writes the report for runDate, creating the output directory
// as needed. An existing file for the same date is replaced; a failed export leaves no file.
func (e *Exporter) Export(ctx context.Context, runDate time.Time) (string, error) {
	logger := observability.OrNop(e.Logger)

	query, args, err := e.Query(runDate)
	if err != nil {
		return "", err
	}

	if err := common.EnsureDir(e.OutputDir, common.DirPermissionNormal); err != nil {
		return "", exportError("failed to create output directory", err)
	}

	rows, err := e.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return "", exportError("failed to query mart", apperrors.SQLError("query failed", query, err))
	}
	defer rows.Close()

	target := e.Path(runDate)
	tmp, err := os.CreateTemp(e.OutputDir, "."+e.FileName(runDate)+".*.tmp")
	if err != nil {
		return "", exportError("failed to create temporary report", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	count, err := writeCSV(tmp, rows)
	if err != nil {
		return "", exportError("failed to write report", err)
	}
	if err := tmp.Sync(); err != nil {
		return "", exportError("failed to flush report", err)
	}
	if err := tmp.Close(); err != nil {
		return "", exportError("failed to close report", err)
	}
	if err := os.Chmod(tmpName, common.FilePermissionNormal); err != nil {
		return "", exportError("failed to set report permissions", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return "", exportError("failed to move report into place", err)
	}
	committed = true

	logger.Info("Report exported",
		zap.String("path", target),
		zap.Int("rows", count),
		zap.String("run_date", runDate.Format("2006-01-02")))
	return target, nil
}

func writeCSV(f *os.File, rows *sql.Rows) (int, error) {
	columns, err := rows.Columns()
	if err != nil {
		return 0, err
	}

	w := csv.NewWriter(f)
	if err := w.Write(columns); err != nil {
		return 0, err
	}

	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	record := make([]string, len(columns))

	count := 0
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return count, err
		}
		for i, v := range values {
			record[i] = formatValue(v)
		}
		if err := w.Write(record); err != nil {
			return count, err
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return count, err
	}

	w.Flush()
	return count, w.Error()
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(val)
	case string:
		return val
	case time.Time:
		if val.Hour() == 0 && val.Minute() == 0 && val.Second() == 0 && val.Nanosecond() == 0 {
			return val.Format("2006-01-02")
		}
		return val.Format("2006-01-02 15:04:05.999999")
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}

func exportError(message string, cause error) *apperrors.AppError {
	var err *apperrors.AppError
	if cause != nil {
		err = apperrors.Wrap(cause, apperrors.ErrCodeExportFailed, message)
	} else {
		err = apperrors.New(apperrors.ErrCodeExportFailed, message)
	}
	return err.AsRecoverable()
}
