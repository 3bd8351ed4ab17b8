package warehouse

import (
	"context"
	"database/sql"
	"time"

	"coursepipe/internal/common"
	apperrors "coursepipe/pkg/errors"
)

// DriverName is the database/sql driver registered by github.com/marcboeker/go-duckdb/v2.
const DriverName = "duckdb"

// Open connects to the DuckDB file at path, creating it if needed. The returned handle
// is limited to a single connection because DuckDB allows one writer per file.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	return OpenWithDriver(ctx, DriverName, path)
}

// OpenWithDriver is Open for an explicit driver name.
func OpenWithDriver(ctx context.Context, driver, path string) (*sql.DB, error) {
	cleaned, err := common.CleanPath(path)
	if err != nil {
		return nil, apperrors.ConnectionError("Invalid warehouse path", err).
			WithContext("path", path)
	}

	db, err := sql.Open(driver, cleaned)
	if err != nil {
		return nil, apperrors.ConnectionError("Failed to open warehouse", err).
			WithContext("path", cleaned)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, apperrors.ConnectionError("Failed to connect to warehouse", err).
			WithContext("path", cleaned)
	}

	return db, nil
}
