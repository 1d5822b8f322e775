// Package config defines the quakemart runtime configuration.
//
// Configuration is loaded from a YAML file and merged over defaults.
// Components receive a *Config explicitly through their constructors;
// there is no process-wide configuration singleton.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	defaults "github.com/seismolab/quakemart/config"
)

// Config represents the complete application configuration.
type Config struct {
	// Paths configures data and staging locations.
	Paths PathsConfig `yaml:"paths"`

	// Source configures the upstream earthquake data source.
	Source SourceConfig `yaml:"source"`

	// Warehouse configures the DuckDB analytical store.
	Warehouse WarehouseConfig `yaml:"warehouse"`

	// ETL configures download and validation behavior.
	ETL ETLConfig `yaml:"etl"`

	// Pipeline configures run parallelism.
	Pipeline PipelineConfig `yaml:"pipeline"`

	// Benchmark configures run metrics capture.
	Benchmark BenchmarkConfig `yaml:"benchmark"`
}

// PathsConfig configures data and staging locations.
type PathsConfig struct {
	// DataDir is the root directory for all data files. The tracker's
	// metadata.json lives directly under it.
	DataDir string `yaml:"data_dir"`

	// RawDir holds downloaded CSV files (download cache).
	RawDir string `yaml:"raw_dir"`

	// StagingDir holds per-partition parquet staging files.
	StagingDir string `yaml:"staging_dir"`

	// ProcessedDir holds parquet exports of warehouse tables.
	ProcessedDir string `yaml:"processed_dir"`
}

// SourceConfig configures the upstream earthquake data source.
type SourceConfig struct {
	// BaseURL is the FDSN event query endpoint.
	BaseURL string `yaml:"base_url"`

	// FeedURL is the fallback summary feed when UseAPI is false.
	FeedURL string `yaml:"feed_url"`

	// UseAPI selects the query API (per-partition date ranges) over the
	// fixed feed.
	UseAPI bool `yaml:"use_api"`

	// Params are extra query parameters appended to every API request.
	Params map[string]string `yaml:"params"`

	// YearsToLoad pins the exact partition list. Takes precedence over
	// StartYear/EndYear.
	YearsToLoad []int `yaml:"years_to_load"`

	// StartYear/EndYear define the inclusive requested partition range.
	StartYear int `yaml:"start_year"`
	EndYear   int `yaml:"end_year"`
}

// WarehouseConfig configures the DuckDB analytical store.
type WarehouseConfig struct {
	// Database is the DuckDB file name, relative to Paths.DataDir unless
	// absolute.
	Database string `yaml:"database"`

	// MemoryLimit caps DuckDB memory use (e.g. "8GB").
	MemoryLimit string `yaml:"memory_limit"`

	// Threads is the DuckDB thread count.
	Threads int `yaml:"threads"`

	// TempDirectory is DuckDB's spill directory.
	TempDirectory string `yaml:"temp_directory"`

	// MaxTempDirectorySize caps spill space (e.g. "50GB").
	MaxTempDirectorySize string `yaml:"max_temp_directory_size"`

	// PreserveInsertionOrder trades memory for stable scan order.
	PreserveInsertionOrder bool `yaml:"preserve_insertion_order"`
}

// ETLConfig configures download and validation behavior.
type ETLConfig struct {
	// DownloadTimeout bounds a single download request.
	DownloadTimeout time.Duration `yaml:"download_timeout"`

	// RetryAttempts is the number of download attempts per file.
	RetryAttempts int `yaml:"retry_attempts"`

	// RetryDelay is the pause between attempts.
	RetryDelay time.Duration `yaml:"retry_delay"`

	// ChunkMonths splits a partition download into date chunks of this
	// many months. 12 downloads a calendar year in one request.
	ChunkMonths int `yaml:"chunk_months"`

	// Validation bounds for raw records.
	Validation ValidationConfig `yaml:"validation"`
}

// ValidationConfig bounds raw record values. Rows outside these ranges
// are dropped during transform and counted.
type ValidationConfig struct {
	MinMagnitude float64 `yaml:"min_magnitude"`
	MaxMagnitude float64 `yaml:"max_magnitude"`
	MinDepth     float64 `yaml:"min_depth"`
	MaxDepth     float64 `yaml:"max_depth"`
}

// PipelineConfig configures run parallelism.
type PipelineConfig struct {
	// IngestWorkers is the number of partitions ingested concurrently.
	IngestWorkers int `yaml:"ingest_workers"`

	// CubeWorkers bounds concurrent cube materialization passes.
	CubeWorkers int `yaml:"cube_workers"`
}

// BenchmarkConfig configures run metrics capture.
type BenchmarkConfig struct {
	// Enabled turns step timing on.
	Enabled bool `yaml:"enabled"`

	// OutputDir is where run result JSON files are written.
	OutputDir string `yaml:"output_dir"`
}

// Load reads a configuration file, merging it over defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			DataDir:      defaults.DefaultDataDir,
			RawDir:       filepath.Join(defaults.DefaultDataDir, "raw"),
			StagingDir:   filepath.Join(defaults.DefaultDataDir, "staging"),
			ProcessedDir: filepath.Join(defaults.DefaultDataDir, "processed"),
		},
		Source: SourceConfig{
			BaseURL: defaults.DefaultBaseURL,
			FeedURL: defaults.DefaultFeedURL,
			UseAPI:  true,
			Params: map[string]string{
				"format": "csv",
			},
		},
		Warehouse: WarehouseConfig{
			Database:             defaults.DefaultDatabaseFile,
			MemoryLimit:          defaults.DefaultMemoryLimit,
			Threads:              defaults.DefaultThreads,
			TempDirectory:        filepath.Join(defaults.DefaultDataDir, "duckdb-temp"),
			MaxTempDirectorySize: defaults.DefaultMaxTempDirSize,
		},
		ETL: ETLConfig{
			DownloadTimeout: defaults.DefaultDownloadTimeout,
			RetryAttempts:   defaults.DefaultRetryAttempts,
			RetryDelay:      defaults.DefaultRetryDelay,
			ChunkMonths:     defaults.DefaultChunkMonths,
			Validation: ValidationConfig{
				MinMagnitude: defaults.DefaultMinMagnitude,
				MaxMagnitude: defaults.DefaultMaxMagnitude,
				MinDepth:     defaults.DefaultMinDepthKm,
				MaxDepth:     defaults.DefaultMaxDepthKm,
			},
		},
		Pipeline: PipelineConfig{
			IngestWorkers: defaults.DefaultIngestWorkers,
			CubeWorkers:   defaults.DefaultCubeWorkers,
		},
		Benchmark: BenchmarkConfig{
			Enabled:   true,
			OutputDir: "benchmark_results",
		},
	}
}

// DatabasePath returns the resolved DuckDB file path.
func (c *Config) DatabasePath() string {
	if filepath.IsAbs(c.Warehouse.Database) {
		return c.Warehouse.Database
	}
	return filepath.Join(c.Paths.DataDir, c.Warehouse.Database)
}

// MetadataPath returns the tracker metadata file path.
func (c *Config) MetadataPath() string {
	return filepath.Join(c.Paths.DataDir, "metadata.json")
}

// RequestedYears resolves the configured partition range to an explicit
// ascending year list. An empty configuration yields the current year.
func (c *Config) RequestedYears(now time.Time) []int {
	if len(c.Source.YearsToLoad) > 0 {
		years := make([]int, len(c.Source.YearsToLoad))
		copy(years, c.Source.YearsToLoad)
		return years
	}
	if c.Source.StartYear != 0 && c.Source.EndYear != 0 {
		years := make([]int, 0, c.Source.EndYear-c.Source.StartYear+1)
		for y := c.Source.StartYear; y <= c.Source.EndYear; y++ {
			years = append(years, y)
		}
		return years
	}
	return []int{now.UTC().Year()}
}
