package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"coursepipe/internal/common"
	"coursepipe/internal/observability"
	apperrors "coursepipe/pkg/errors"

	"go.uber.org/zap"
)

// Progress receives human-readable initializer progress.
type Progress interface {
	Step(message string)
	Loaded(table string, rows int64)
	Warning(message string)
}

type noProgress struct{}

func (noProgress) Step(string)          {}
func (noProgress) Loaded(string, int64) {}
func (noProgress) Warning(string)       {}

// TableCount is the verified row count of one raw table.
type TableCount struct {
	Table string
	Rows  int64
}

// Result is what Initialize reports back. Counts are the only success signal;
// Warnings hold missing extracts and Errors hold caught statement failures.
type Result struct {
	Counts   []TableCount
	Warnings []*apperrors.AppError
	Errors   []error
	Duration time.Duration
}

// Count returns the verified row count for table, or -1 if it could not be read.
func (r *Result) Count(table string) int64 {
	for _, c := range r.Counts {
		if c.Table == table {
			return c.Rows
		}
	}
	return -1
}

// Clean reports whether initialization finished without warnings or errors.
func (r *Result) Clean() bool {
	return len(r.Warnings) == 0 && len(r.Errors) == 0
}

// Initializer builds the raw schema and loads source extracts.
type Initializer struct {
	db       *sql.DB
	dataDir  string
	logger   *zap.Logger
	progress Progress
	timeout  time.Duration
}

// Option configures an Initializer
type Option func(*Initializer)

// WithLogger sets the structured logger
func WithLogger(logger *zap.Logger) Option {
	return func(i *Initializer) { i.logger = observability.OrNop(logger) }
}

// WithProgress sets the human-readable progress sink
func WithProgress(p Progress) Option {
	return func(i *Initializer) {
		if p != nil {
			i.progress = p
		}
	}
}

// WithStatementTimeout bounds each statement
func WithStatementTimeout(d time.Duration) Option {
	return func(i *Initializer) { i.timeout = d }
}

// NewInitializer creates an initializer for db reading extracts from dataDir.
func NewInitializer(db *sql.DB, dataDir string, opts ...Option) *Initializer {
	i := &Initializer{
		db:       db,
		dataDir:  dataDir,
		logger:   zap.NewNop(),
		progress: noProgress{},
		timeout:  10 * time.Minute,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Initialize drops and recreates the raw tables, loads every extract that exists,
// builds indexes and returns verified row counts.
//
// Statement failures and missing extracts are recorded on the Result and never abort
// the procedure. The only returned error is context cancellation.
func (i *Initializer) Initialize(ctx context.Context) (*Result, error) {
	start := time.Now()
	res := &Result{}

	i.progress.Step("Creating schema and tables")
	i.createSchema(ctx, res)
	if err := ctx.Err(); err != nil {
		return res, err
	}

	i.progress.Step("Loading CSV extracts")
	i.loadExtracts(ctx, res)
	if err := ctx.Err(); err != nil {
		return res, err
	}

	i.progress.Step("Creating indexes")
	i.createIndexes(ctx, res)
	if err := ctx.Err(); err != nil {
		return res, err
	}

	i.progress.Step("Verifying row counts")
	i.verify(ctx, res)

	res.Duration = time.Since(start)
	i.logger.Info("Warehouse initialized",
		zap.Int("warnings", len(res.Warnings)),
		zap.Int("errors", len(res.Errors)),
		zap.Duration("duration", res.Duration))
	return res, ctx.Err()
}

func (i *Initializer) createSchema(ctx context.Context, res *Result) {
	i.exec(ctx, res, "CREATE SCHEMA IF NOT EXISTS "+RawSchema)

	// Drop in reverse load order
	for idx := len(RawTables) - 1; idx >= 0; idx-- {
		i.exec(ctx, res, RawTables[idx].DropSQL())
	}

	for _, t := range RawTables {
		i.exec(ctx, res, t.CreateSQL())
	}
}

func (i *Initializer) loadExtracts(ctx context.Context, res *Result) {
	for _, t := range RawTables {
		if ctx.Err() != nil {
			return
		}

		path := t.ExtractPath(i.dataDir)
		if !common.FileExists(path) {
			warning := apperrors.MissingExtractWarning(t.Name, path)
			res.Warnings = append(res.Warnings, warning)
			i.progress.Warning(fmt.Sprintf("%s not found, skipping", path))
			i.logger.Warn("Extract missing", zap.String("table", t.QualifiedName()), zap.String("path", path))
			continue
		}

		abs, err := common.CleanPath(path)
		if err != nil {
			res.Errors = append(res.Errors, apperrors.Wrap(err, apperrors.ErrCodeLoadFailed, "invalid extract path").
				WithContext("table", t.Name))
			continue
		}

		result, ok := i.exec(ctx, res, t.LoadSQL(abs))
		if !ok {
			continue
		}

		rows, err := result.RowsAffected()
		if err != nil {
			rows = -1
		}
		i.progress.Loaded(t.QualifiedName(), rows)
		i.logger.Info("Extract loaded", zap.String("table", t.QualifiedName()), zap.Int64("rows", rows))
	}
}

func (i *Initializer) createIndexes(ctx context.Context, res *Result) {
	for _, idx := range RawIndexes {
		i.exec(ctx, res, idx.CreateSQL())
	}
}

func (i *Initializer) verify(ctx context.Context, res *Result) {
	for _, t := range RawTables {
		stmtCtx, cancel := context.WithTimeout(ctx, i.timeout)
		var count int64
		err := i.db.QueryRowContext(stmtCtx, t.CountSQL()).Scan(&count)
		cancel()
		if err != nil {
			res.Errors = append(res.Errors, apperrors.SQLError("failed to count rows", t.CountSQL(), err).
				WithContext("table", t.Name))
			i.logger.Error("Row count failed", zap.String("table", t.QualifiedName()), zap.Error(err))
			continue
		}
		res.Counts = append(res.Counts, TableCount{Table: t.Name, Rows: count})
	}
}

// exec runs one statement, recording any failure on res instead of returning it.
func (i *Initializer) exec(ctx context.Context, res *Result, query string) (sql.Result, bool) {
	stmtCtx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	result, err := i.db.ExecContext(stmtCtx, query)
	if err != nil {
		sqlErr := apperrors.SQLError("statement failed", query, err)
		res.Errors = append(res.Errors, sqlErr)
		i.progress.Warning(fmt.Sprintf("statement failed: %v", err))
		i.logger.Error("Statement failed", zap.String("query", query), zap.Error(err))
		return nil, false
	}
	return result, true
}
