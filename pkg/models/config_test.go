package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestConfigYAMLDurations(t *testing.T) {
	input := `
warehouse:
  path: mock_data.duckdb
  data_dir: data
  lock_timeout: 45s
dbt:
  binary: dbt
  command: build
  timeout: 20m
schedule:
  start_date: "2025-12-01"
  catchup: false
retry:
  max_retries: 2
  delay: 90s
report:
  table: analytics.mart_course_engagement
`
	var cfg Config
	require.NoError(t, yaml.Unmarshal([]byte(input), &cfg))

	assert.Equal(t, "mock_data.duckdb", cfg.Warehouse.Path)
	assert.Equal(t, 45*time.Second, cfg.Warehouse.LockTimeout)
	assert.Equal(t, "build", cfg.DBT.Command)
	assert.Equal(t, 20*time.Minute, cfg.DBT.Timeout)
	assert.Equal(t, "2025-12-01", cfg.Schedule.StartDate)
	assert.False(t, cfg.Schedule.CatchUp)
	assert.Equal(t, 2, cfg.Retry.MaxRetries)
	assert.Equal(t, 90*time.Second, cfg.Retry.Delay)
	assert.Equal(t, "analytics.mart_course_engagement", cfg.Report.Table)
}
