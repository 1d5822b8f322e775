package config

import (
	"errors"
	"fmt"
	"os"
)

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Paths.DataDir == "" {
		errs = append(errs, errors.New("paths.data_dir is required"))
	}

	if err := c.Source.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("source: %w", err))
	}

	if err := c.Warehouse.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("warehouse: %w", err))
	}

	if err := c.ETL.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("etl: %w", err))
	}

	if err := c.Pipeline.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("pipeline: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the source configuration.
func (c *SourceConfig) Validate() error {
	var errs []error

	if c.UseAPI && c.BaseURL == "" {
		errs = append(errs, errors.New("base_url is required when use_api is set"))
	}
	if !c.UseAPI && c.FeedURL == "" {
		errs = append(errs, errors.New("feed_url is required when use_api is unset"))
	}
	if c.StartYear != 0 && c.EndYear != 0 && c.EndYear < c.StartYear {
		errs = append(errs, fmt.Errorf("end_year %d before start_year %d", c.EndYear, c.StartYear))
	}
	for _, y := range c.YearsToLoad {
		if y < 1900 || y > 2200 {
			errs = append(errs, fmt.Errorf("year %d out of range", y))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the warehouse configuration.
func (c *WarehouseConfig) Validate() error {
	var errs []error

	if c.Database == "" {
		errs = append(errs, errors.New("database is required"))
	}
	if c.Threads < 0 {
		errs = append(errs, errors.New("threads must not be negative"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the ETL configuration.
func (c *ETLConfig) Validate() error {
	var errs []error

	if c.RetryAttempts < 1 {
		errs = append(errs, errors.New("retry_attempts must be at least 1"))
	}
	if c.RetryDelay < 0 {
		errs = append(errs, errors.New("retry_delay must not be negative"))
	}
	if c.ChunkMonths < 1 || c.ChunkMonths > 12 {
		errs = append(errs, errors.New("chunk_months must be between 1 and 12"))
	}
	v := c.Validation
	if v.MaxMagnitude <= v.MinMagnitude {
		errs = append(errs, errors.New("validation: max_magnitude must exceed min_magnitude"))
	}
	if v.MaxDepth <= v.MinDepth {
		errs = append(errs, errors.New("validation: max_depth must exceed min_depth"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the pipeline configuration.
func (c *PipelineConfig) Validate() error {
	var errs []error

	if c.IngestWorkers < 1 {
		errs = append(errs, errors.New("ingest_workers must be at least 1"))
	}
	if c.CubeWorkers < 1 {
		errs = append(errs, errors.New("cube_workers must be at least 1"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Paths.DataDir,
		c.Paths.RawDir,
		c.Paths.StagingDir,
		c.Paths.ProcessedDir,
		c.Warehouse.TempDirectory,
	}
	if c.Benchmark.Enabled {
		dirs = append(dirs, c.Benchmark.OutputDir)
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}
