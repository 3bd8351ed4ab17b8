package models

import "time"

type Config struct {
	Warehouse Warehouse `yaml:"warehouse" mapstructure:"warehouse"`
	DBT       DBT       `yaml:"dbt" mapstructure:"dbt"`
	Schedule  Schedule  `yaml:"schedule" mapstructure:"schedule"`
	Retry     Retry     `yaml:"retry" mapstructure:"retry"`
	Report    Report    `yaml:"report" mapstructure:"report"`
	Pipeline  Pipeline  `yaml:"pipeline" mapstructure:"pipeline"`
	State     State     `yaml:"state" mapstructure:"state"`
}

type Warehouse struct {
	Path        string        `yaml:"path" mapstructure:"path"`         // DuckDB database file
	DataDir     string        `yaml:"data_dir" mapstructure:"data_dir"` // Directory holding raw_<table>.csv extracts
	LockTimeout time.Duration `yaml:"lock_timeout" mapstructure:"lock_timeout"`
}

// DBT describes how the transformation engine is invoked
type DBT struct {
	Binary      string        `yaml:"binary" mapstructure:"binary"`
	ProjectDir  string        `yaml:"project_dir" mapstructure:"project_dir"`
	ProfilesDir string        `yaml:"profiles_dir" mapstructure:"profiles_dir"`
	Target      string        `yaml:"target" mapstructure:"target"`
	Command     string        `yaml:"command" mapstructure:"command"` // run, build or test
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"` // Per stage invocation
}

type Schedule struct {
	StartDate    string        `yaml:"start_date" mapstructure:"start_date"` // YYYY-MM-DD
	CatchUp      bool          `yaml:"catchup" mapstructure:"catchup"`
	Timezone     string        `yaml:"timezone" mapstructure:"timezone"`
	PollInterval time.Duration `yaml:"poll_interval" mapstructure:"poll_interval"`
}

type Retry struct {
	MaxRetries int           `yaml:"max_retries" mapstructure:"max_retries"`
	Delay      time.Duration `yaml:"delay" mapstructure:"delay"`
	Multiplier float64       `yaml:"multiplier" mapstructure:"multiplier"`
	MaxDelay   time.Duration `yaml:"max_delay" mapstructure:"max_delay"`
}

type Report struct {
	OutputDir  string `yaml:"output_dir" mapstructure:"output_dir"`
	Table      string `yaml:"table" mapstructure:"table"`
	Prefix     string `yaml:"prefix" mapstructure:"prefix"`
	DateColumn string `yaml:"date_column" mapstructure:"date_column"` // Empty exports the full snapshot
}

type Pipeline struct {
	MaxParallel   int  `yaml:"max_parallel" mapstructure:"max_parallel"`
	QualityChecks bool `yaml:"quality_checks" mapstructure:"quality_checks"`
}

type State struct {
	Path string `yaml:"path" mapstructure:"path"` // SQLite run history
}
