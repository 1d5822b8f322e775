// Package config provides configuration defaults and utilities
// for the quakemart application.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via config.yaml or command-line flags.
package config

import "time"

// =============================================================================
// Data Source Defaults
// =============================================================================

const (
	// DefaultBaseURL is the USGS FDSN event query endpoint.
	// Override via config: source.base_url
	DefaultBaseURL = "https://earthquake.usgs.gov/fdsnws/event/1/query"

	// DefaultFeedURL is the fallback monthly summary feed used when the
	// query API is disabled.
	// Override via config: source.feed_url
	DefaultFeedURL = "https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary/all_month.csv"

	// DefaultDownloadTimeout bounds a single download request.
	// Override via config: etl.download_timeout_sec
	DefaultDownloadTimeout = 300 * time.Second

	// DefaultRetryAttempts is the number of download attempts before
	// giving up on a partition.
	// Override via config: etl.retry_attempts
	DefaultRetryAttempts = 3

	// DefaultRetryDelay is the pause between download attempts.
	// Override via config: etl.retry_delay_sec
	DefaultRetryDelay = 5 * time.Second

	// DefaultChunkMonths is the maximum span of a single API request.
	// Ranges longer than this are split into sequential chunks.
	DefaultChunkMonths = 12
)

// =============================================================================
// Storage Defaults
// =============================================================================

const (
	// DefaultDataDir is the root directory for all data files.
	// Override via config: paths.data_dir
	DefaultDataDir = "data"

	// DefaultDatabaseFile is the DuckDB database file, relative to DataDir.
	// Override via config: warehouse.database
	DefaultDatabaseFile = "earthquakes.duckdb"

	// DefaultMemoryLimit caps DuckDB memory use during merges and rebuilds.
	// Override via config: warehouse.memory_limit
	DefaultMemoryLimit = "8GB"

	// DefaultThreads is the DuckDB thread count.
	// Override via config: warehouse.threads
	DefaultThreads = 4

	// DefaultMaxTempDirSize caps DuckDB spill space for large sorts.
	// Override via config: warehouse.max_temp_directory_size
	DefaultMaxTempDirSize = "50GB"
)

// =============================================================================
// Validation Defaults
// =============================================================================

// Raw record validation bounds. Rows outside these ranges are dropped
// during transform and counted in the batch report.
const (
	DefaultMinMagnitude = -2.0
	DefaultMaxMagnitude = 10.0
	DefaultMinDepthKm   = -10.0
	DefaultMaxDepthKm   = 1000.0
)

// =============================================================================
// Pipeline Defaults
// =============================================================================

const (
	// DefaultIngestWorkers is the number of partitions ingested concurrently.
	// Each partition writes a distinct staging file and a distinct
	// per-year relation, so ingestion parallelism is safe.
	// Override via config: pipeline.ingest_workers
	DefaultIngestWorkers = 2

	// DefaultCubeWorkers bounds concurrent cube materialization passes.
	// Cubes only read fact/dimension tables and write their own output,
	// so they have no ordering dependency.
	// Override via config: pipeline.cube_workers
	DefaultCubeWorkers = 5
)
