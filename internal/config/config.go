package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"coursepipe/internal/common"
	apperrors "coursepipe/pkg/errors"
	"coursepipe/pkg/models"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// EnvPrefix prefixes every environment override, e.g. COURSEPIPE_WAREHOUSE_PATH.
	EnvPrefix = "COURSEPIPE"
	// EnvConfigFile points at an explicit config file.
	EnvConfigFile = "COURSEPIPE_CONFIG"

	configName = "coursepipe"
	configType = "yaml"
	dateLayout = "2006-01-02"
)

var dbtCommands = map[string]bool{"run": true, "build": true, "test": true}

// Defaults returns the configuration used when no file or override is present.
func Defaults() *models.Config {
	return &models.Config{
		Warehouse: models.Warehouse{
			Path:        "mock_data.duckdb",
			DataDir:     "data",
			LockTimeout: 30 * time.Second,
		},
		DBT: models.DBT{
			Binary:     "dbt",
			ProjectDir: ".",
			Command:    "run",
			Timeout:    30 * time.Minute,
		},
		Schedule: models.Schedule{
			StartDate:    "2025-12-01",
			CatchUp:      false,
			Timezone:     "UTC",
			PollInterval: time.Minute,
		},
		Retry: models.Retry{
			MaxRetries: 1,
			Delay:      5 * time.Minute,
			Multiplier: 1.0,
			MaxDelay:   30 * time.Minute,
		},
		Report: models.Report{
			OutputDir: "output",
			Table:     "analytics.mart_course_engagement",
			Prefix:    "course_engagement",
		},
		Pipeline: models.Pipeline{
			MaxParallel: 4,
		},
		State: models.State{
			Path: filepath.Join(".coursepipe", "state.db"),
		},
	}
}

// SetDefaults registers every default with v so environment overrides resolve for all keys.
func SetDefaults(v *viper.Viper) {
	d := Defaults()

	v.SetDefault("warehouse.path", d.Warehouse.Path)
	v.SetDefault("warehouse.data_dir", d.Warehouse.DataDir)
	v.SetDefault("warehouse.lock_timeout", d.Warehouse.LockTimeout)

	v.SetDefault("dbt.binary", d.DBT.Binary)
	v.SetDefault("dbt.project_dir", d.DBT.ProjectDir)
	v.SetDefault("dbt.profiles_dir", d.DBT.ProfilesDir)
	v.SetDefault("dbt.target", d.DBT.Target)
	v.SetDefault("dbt.command", d.DBT.Command)
	v.SetDefault("dbt.timeout", d.DBT.Timeout)

	v.SetDefault("schedule.start_date", d.Schedule.StartDate)
	v.SetDefault("schedule.catchup", d.Schedule.CatchUp)
	v.SetDefault("schedule.timezone", d.Schedule.Timezone)
	v.SetDefault("schedule.poll_interval", d.Schedule.PollInterval)

	v.SetDefault("retry.max_retries", d.Retry.MaxRetries)
	v.SetDefault("retry.delay", d.Retry.Delay)
	v.SetDefault("retry.multiplier", d.Retry.Multiplier)
	v.SetDefault("retry.max_delay", d.Retry.MaxDelay)

	v.SetDefault("report.output_dir", d.Report.OutputDir)
	v.SetDefault("report.table", d.Report.Table)
	v.SetDefault("report.prefix", d.Report.Prefix)
	v.SetDefault("report.date_column", d.Report.DateColumn)

	v.SetDefault("pipeline.max_parallel", d.Pipeline.MaxParallel)
	v.SetDefault("pipeline.quality_checks", d.Pipeline.QualityChecks)

	v.SetDefault("state.path", d.State.Path)
}

// Load reads configuration into v and returns the validated result.
//
// Resolution order: explicit path, $COURSEPIPE_CONFIG, ./coursepipe.yaml,
// $HOME/.coursepipe/coursepipe.yaml. A missing file is not an error.
func Load(v *viper.Viper, explicitPath string) (*models.Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if explicitPath == "" {
		explicitPath = os.Getenv(EnvConfigFile)
	}

	if explicitPath != "" {
		cleaned, err := common.CleanPath(explicitPath)
		if err != nil {
			return nil, apperrors.ConfigError(fmt.Sprintf("invalid config path: %v", err), "config")
		}
		v.SetConfigFile(cleaned)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType(configType)
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".coursepipe"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicitPath != "" || !errors.As(err, &notFound) {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeConfigNotFound, "failed to read config file")
		}
	}

	var cfg models.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeConfigInvalid, "failed to unmarshal config")
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes cfg as YAML to path, creating parent directories.
func Save(cfg *models.Config, path string) error {
	if err := common.EnsureDir(filepath.Dir(path), common.DirPermissionNormal); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, common.FilePermissionSecure); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate rejects configurations the pipeline cannot run with.
func Validate(cfg *models.Config) error {
	if strings.TrimSpace(cfg.Warehouse.Path) == "" {
		return apperrors.ConfigError("warehouse path is required", "warehouse.path")
	}
	if cfg.Warehouse.LockTimeout < 0 {
		return apperrors.ConfigError("lock timeout must not be negative", "warehouse.lock_timeout")
	}
	if strings.TrimSpace(cfg.DBT.Binary) == "" {
		return apperrors.ConfigError("dbt binary is required", "dbt.binary")
	}
	if !dbtCommands[cfg.DBT.Command] {
		return apperrors.ConfigError(fmt.Sprintf("unsupported dbt command %q (want run, build or test)", cfg.DBT.Command), "dbt.command")
	}
	if cfg.DBT.Timeout <= 0 {
		return apperrors.ConfigError("dbt timeout must be positive", "dbt.timeout")
	}
	if _, err := StartDate(cfg); err != nil {
		return err
	}
	if cfg.Schedule.PollInterval <= 0 {
		return apperrors.ConfigError("poll interval must be positive", "schedule.poll_interval")
	}
	if cfg.Retry.MaxRetries < 0 {
		return apperrors.ConfigError("max retries must not be negative", "retry.max_retries")
	}
	if cfg.Retry.Delay < 0 {
		return apperrors.ConfigError("retry delay must not be negative", "retry.delay")
	}
	if strings.TrimSpace(cfg.Report.Table) == "" {
		return apperrors.ConfigError("report table is required", "report.table")
	}
	if strings.TrimSpace(cfg.Report.OutputDir) == "" {
		return apperrors.ConfigError("report output directory is required", "report.output_dir")
	}
	if cfg.Pipeline.MaxParallel < 1 {
		return apperrors.ConfigError("max parallel must be at least 1", "pipeline.max_parallel")
	}
	return nil
}

// Location resolves the schedule time zone.
func Location(cfg *models.Config) (*time.Location, error) {
	name := cfg.Schedule.Timezone
	if name == "" {
		name = "UTC"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, apperrors.ConfigError(fmt.Sprintf("unknown time zone %q", name), "schedule.timezone")
	}
	return loc, nil
}

// StartDate parses the schedule start date in the schedule time zone.
func StartDate(cfg *models.Config) (time.Time, error) {
	loc, err := Location(cfg)
	if err != nil {
		return time.Time{}, err
	}
	start, err := time.ParseInLocation(dateLayout, cfg.Schedule.StartDate, loc)
	if err != nil {
		return time.Time{}, apperrors.ConfigError(fmt.Sprintf("start date %q is not YYYY-MM-DD", cfg.Schedule.StartDate), "schedule.start_date")
	}
	return start, nil
}

// RetryPolicy converts the retry section into the policy the orchestrator uses.
func RetryPolicy(cfg *models.Config) apperrors.RetryPolicy {
	return apperrors.RetryPolicy{
		MaxRetries: cfg.Retry.MaxRetries,
		Delay:      cfg.Retry.Delay,
		Multiplier: cfg.Retry.Multiplier,
		MaxDelay:   cfg.Retry.MaxDelay,
	}
}
