// Package quality runs row-count and null checks against the warehouse.
package quality

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"coursepipe/internal/common"
	"coursepipe/internal/observability"
	"coursepipe/internal/warehouse"
	apperrors "coursepipe/pkg/errors"

	"go.uber.org/zap"
)

// DefaultKeyColumn is the mart column that must never be NULL.
const DefaultKeyColumn = "course_id"

// Result is the outcome of one check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Report collects check results.
type Report struct {
	Results []Result
}

// Passed reports whether every check passed.
func (r *Report) Passed() bool {
	for _, res := range r.Results {
		if !res.Passed {
			return false
		}
	}
	return true
}

// Failed returns the failed checks.
func (r *Report) Failed() []Result {
	var failed []Result
	for _, res := range r.Results {
		if !res.Passed {
			failed = append(failed, res)
		}
	}
	return failed
}

// Err returns a QualityCheckFailed error naming the failed checks, or nil.
func (r *Report) Err() error {
	failed := r.Failed()
	if len(failed) == 0 {
		return nil
	}
	names := make([]string, len(failed))
	for i, f := range failed {
		names[i] = f.Name + " (" + f.Detail + ")"
	}
	return apperrors.New(apperrors.ErrCodeQualityCheckFailed,
		fmt.Sprintf("%d quality check(s) failed: %s", len(failed), strings.Join(names, "; "))).
		WithContext("failed", len(failed))
}

// Checker runs checks with one query each.
type Checker struct {
	DB        *sql.DB
	MartTable string
	KeyColumn string
	Logger    *zap.Logger
}

// CheckRaw verifies every raw table has at least one row.
func (c *Checker) CheckRaw(ctx context.Context) (*Report, error) {
	report := &Report{}
	for _, t := range warehouse.RawTables {
		if err := c.nonEmpty(ctx, report, t.QualifiedName()); err != nil {
			return report, err
		}
	}
	c.log(report)
	return report, nil
}

// CheckMart verifies the mart has rows and no NULL key values.
func (c *Checker) CheckMart(ctx context.Context) (*Report, error) {
	report := &Report{}
	if err := c.validate(); err != nil {
		return report, err
	}
	if err := c.nonEmpty(ctx, report, c.MartTable); err != nil {
		return report, err
	}

	key := c.keyColumn()
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s IS NULL", c.MartTable, key)
	nulls, err := c.count(ctx, query)
	if err != nil {
		return report, err
	}
	report.Results = append(report.Results, Result{
		Name:   fmt.Sprintf("%s.%s not null", c.MartTable, key),
		Passed: nulls == 0,
		Detail: fmt.Sprintf("%d null rows", nulls),
	})

	c.log(report)
	return report, nil
}

// Run performs the raw and mart checks and fails with QualityCheckFailed when any fails.
func (c *Checker) Run(ctx context.Context) (*Report, error) {
	if err := c.validate(); err != nil {
		return &Report{}, err
	}
	raw, err := c.CheckRaw(ctx)
	if err != nil {
		return raw, err
	}
	mart, err := c.CheckMart(ctx)
	if err != nil {
		return mart, err
	}

	report := &Report{Results: append(raw.Results, mart.Results...)}
	return report, report.Err()
}

func (c *Checker) keyColumn() string {
	if c.KeyColumn == "" {
		return DefaultKeyColumn
	}
	return c.KeyColumn
}

// validate rejects table and column names that are not plain identifiers.
func (c *Checker) validate() error {
	if !common.IsIdentifier(c.MartTable) {
		return apperrors.ConfigError(fmt.Sprintf("invalid mart table name %q", c.MartTable), "report.table")
	}
	if key := c.keyColumn(); !common.IsIdentifier(key) {
		return apperrors.ConfigError(fmt.Sprintf("invalid key column %q", key), "key_column")
	}
	return nil
}

func (c *Checker) nonEmpty(ctx context.Context, report *Report, table string) error {
	n, err := c.count(ctx, "SELECT COUNT(*) FROM "+table)
	if err != nil {
		return err
	}
	report.Results = append(report.Results, Result{
		Name:   table + " not empty",
		Passed: n > 0,
		Detail: fmt.Sprintf("%d rows", n),
	})
	return nil
}

func (c *Checker) count(ctx context.Context, query string) (int64, error) {
	var n int64
	if err := c.DB.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, apperrors.SQLError("quality check query failed", query, err).AsRecoverable()
	}
	return n, nil
}

func (c *Checker) log(report *Report) {
	logger := observability.OrNop(c.Logger)
	for _, r := range report.Results {
		if r.Passed {
			logger.Debug("Quality check passed", zap.String("check", r.Name), zap.String("detail", r.Detail))
		} else {
			logger.Warn("Quality check failed", zap.String("check", r.Name), zap.String("detail", r.Detail))
		}
	}
}
