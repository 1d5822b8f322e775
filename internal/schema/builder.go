// Package schema derives the star schema from the unified raw table.
//
// Every build is a full drop-and-recreate over the accumulated raw set:
// dimension surrogate keys are assigned by stable sort order over the
// coalesced natural key, so an unchanged raw table always reproduces
// identical dimensions, and fact foreign keys are re-resolved by value
// join on every rebuild rather than persisted.
package schema

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/seismolab/quakemart/internal/catalog"
	"github.com/seismolab/quakemart/internal/logging"
	"github.com/seismolab/quakemart/internal/warehouse"
)

// Builder rebuilds the dimensional schema.
type Builder struct {
	store *warehouse.Store
	log   *slog.Logger
}

// New creates a schema builder over the given store.
func New(store *warehouse.Store) *Builder {
	return &Builder{
		store: store,
		log:   logging.Component("schema"),
	}
}

// BuildReport surfaces row accounting for one rebuild so callers can
// detect silent data loss. RawRows = MissingPrereqs + UnresolvedJoins +
// Duplicates + FactRows always holds.
type BuildReport struct {
	// RawRows is the row count of the unified raw table.
	RawRows int64

	// MissingPrereqs counts raw rows excluded for a NULL datetime,
	// latitude, longitude or magnitude.
	MissingPrereqs int64

	// UnresolvedJoins counts rows dropped because a dimension lookup
	// found no matching row.
	UnresolvedJoins int64

	// Duplicates counts fact rows removed by event_id deduplication.
	Duplicates int64

	// FactRows is the final fact table row count.
	FactRows int64

	// Dimension row counts.
	DimTimeRows      int64
	DimLocationRows  int64
	DimMagnitudeRows int64
}

// Build rebuilds all three dimensions and the fact table from the
// unified raw table. An empty raw table yields empty outputs and is
// not an error; a missing raw table is.
func (b *Builder) Build(ctx context.Context) (BuildReport, error) {
	var report BuildReport

	rawRows, err := b.store.RowCount(ctx, catalog.RawEvents.Name())
	if err != nil {
		return report, err
	}
	report.RawRows = rawRows

	b.log.Info("rebuilding star schema", "raw_rows", rawRows)

	if report.DimTimeRows, err = b.buildDimTime(ctx); err != nil {
		return report, err
	}
	if report.DimLocationRows, err = b.buildDimLocation(ctx); err != nil {
		return report, err
	}
	if report.DimMagnitudeRows, err = b.buildDimMagnitude(ctx); err != nil {
		return report, err
	}

	if err := b.buildFact(ctx, &report); err != nil {
		return report, err
	}

	b.log.Info("star schema rebuilt",
		"fact_rows", report.FactRows,
		"missing_prereqs", report.MissingPrereqs,
		"unresolved_joins", report.UnresolvedJoins,
		"duplicates", report.Duplicates)

	return report, nil
}

// buildDimTime derives the time dimension. Surrogate keys follow
// ascending datetime order over the distinct instants.
func (b *Builder) buildDimTime(ctx context.Context) (int64, error) {
	stmt := fmt.Sprintf(`
	CREATE OR REPLACE TABLE %s AS
	SELECT
		ROW_NUMBER() OVER (ORDER BY datetime) AS time_id,
		datetime,
		DATE_TRUNC('day', CAST(datetime AS TIMESTAMP)) AS date,
		year,
		month,
		day,
		hour,
		day_of_week,
		CASE day_of_week
			WHEN 1 THEN 'Monday'
			WHEN 2 THEN 'Tuesday'
			WHEN 3 THEN 'Wednesday'
			WHEN 4 THEN 'Thursday'
			WHEN 5 THEN 'Friday'
			WHEN 6 THEN 'Saturday'
			WHEN 7 THEN 'Sunday'
		END AS day_name,
		CASE
			WHEN month IN (12, 1, 2) THEN 'Winter'
			WHEN month IN (3, 4, 5) THEN 'Spring'
			WHEN month IN (6, 7, 8) THEN 'Summer'
			ELSE 'Fall'
		END AS season,
		day_of_week IN (6, 7) AS is_weekend
	FROM (
		SELECT DISTINCT datetime, year, month, day, hour, day_of_week
		FROM %s
		WHERE datetime IS NOT NULL
	)
	ORDER BY datetime`,
		catalog.DimTime, catalog.RawEvents)

	return b.createAndCount(ctx, catalog.DimTime.Name(), stmt)
}

// buildDimLocation derives the location dimension. place and region are
// coalesced to 'Unknown' before distinctness so a NULL and an explicit
// 'Unknown' collapse to one row.
func (b *Builder) buildDimLocation(ctx context.Context) (int64, error) {
	stmt := fmt.Sprintf(`
	CREATE OR REPLACE TABLE %s AS
	SELECT
		ROW_NUMBER() OVER (ORDER BY latitude, longitude, place, region) AS location_id,
		latitude,
		longitude,
		place,
		region,
		CASE WHEN latitude >= 0 THEN 'Northern' ELSE 'Southern' END AS hemisphere_ns,
		CASE WHEN longitude >= 0 THEN 'Eastern' ELSE 'Western' END AS hemisphere_ew,
		CASE
			WHEN latitude BETWEEN -23.5 AND 23.5 THEN 'Tropical'
			WHEN latitude BETWEEN 23.5 AND 66.5 OR latitude BETWEEN -66.5 AND -23.5 THEN 'Temperate'
			ELSE 'Polar'
		END AS climate_zone
	FROM (
		SELECT DISTINCT
			latitude,
			longitude,
			COALESCE(place, 'Unknown') AS place,
			COALESCE(region, 'Unknown') AS region
		FROM %s
		WHERE latitude IS NOT NULL AND longitude IS NOT NULL
	)
	ORDER BY latitude, longitude, place, region`,
		catalog.DimLocation, catalog.RawEvents)

	return b.createAndCount(ctx, catalog.DimLocation.Name(), stmt)
}

// buildDimMagnitude derives the magnitude dimension, including the
// Richter effects description and the released energy
// (10^(1.5*magnitude + 4.8) joules).
func (b *Builder) buildDimMagnitude(ctx context.Context) (int64, error) {
	stmt := fmt.Sprintf(`
	CREATE OR REPLACE TABLE %s AS
	SELECT
		ROW_NUMBER() OVER (ORDER BY magnitude, magnitude_type, magnitude_category) AS magnitude_id,
		magnitude,
		magnitude_category,
		magnitude_type,
		CASE
			WHEN magnitude < 2.0 THEN 'Micro - Not felt'
			WHEN magnitude < 3.0 THEN 'Minor - Rarely felt'
			WHEN magnitude < 4.0 THEN 'Light - Often felt, rarely causes damage'
			WHEN magnitude < 5.0 THEN 'Moderate - Notable shaking, slight damage'
			WHEN magnitude < 6.0 THEN 'Strong - Can cause damage in populated areas'
			WHEN magnitude < 7.0 THEN 'Major - Serious damage over large areas'
			WHEN magnitude < 8.0 THEN 'Great - Serious damage over very large areas'
			ELSE 'Epic - Devastating over extremely large areas'
		END AS effects_description,
		POWER(10, (1.5 * magnitude + 4.8)) AS energy_joules
	FROM (
		SELECT DISTINCT
			magnitude,
			COALESCE(magnitude_type, 'Unknown') AS magnitude_type,
			magnitude_category
		FROM %s
		WHERE magnitude IS NOT NULL
	)
	ORDER BY magnitude, magnitude_type, magnitude_category`,
		catalog.DimMagnitude, catalog.RawEvents)

	return b.createAndCount(ctx, catalog.DimMagnitude.Name(), stmt)
}

// buildFact resolves each raw row to its dimension surrogate keys and
// deduplicates on event_id. Rows missing a prerequisite field or
// failing a dimension lookup are dropped and counted, never kept with
// a NULL key.
func (b *Builder) buildFact(ctx context.Context, report *BuildReport) error {
	const prereq = `r.datetime IS NOT NULL
		AND r.latitude IS NOT NULL
		AND r.longitude IS NOT NULL
		AND r.magnitude IS NOT NULL`

	var prereqRows int64
	err := b.store.DB().QueryRowContext(ctx, fmt.Sprintf(
		"SELECT count(*) FROM %s r WHERE %s", catalog.RawEvents, prereq)).Scan(&prereqRows)
	if err != nil {
		return fmt.Errorf("count prerequisite rows: %w", err)
	}
	report.MissingPrereqs = report.RawRows - prereqRows

	stmt := fmt.Sprintf(`
	CREATE OR REPLACE TABLE %s AS
	SELECT
		r.event_id AS earthquake_id,
		t.time_id,
		l.location_id,
		m.magnitude_id,
		r.event_id,
		COALESCE(r.depth, 0.0) AS depth,
		COALESCE(r.depth_category, 'Unknown') AS depth_category,
		COALESCE(CAST(r.num_stations AS INTEGER), 0) AS num_stations,
		COALESCE(CAST(r.azimuthal_gap AS DOUBLE), 0.0) AS azimuthal_gap,
		COALESCE(CAST(r.min_distance AS DOUBLE), 0.0) AS min_distance,
		COALESCE(CAST(r.rms AS DOUBLE), 0.0) AS rms,
		COALESCE(CAST(r.horizontal_error AS DOUBLE), 0.0) AS horizontal_error,
		COALESCE(CAST(r.depth_error AS DOUBLE), 0.0) AS depth_error,
		COALESCE(CAST(r.magnitude_error AS DOUBLE), 0.0) AS magnitude_error,
		COALESCE(r.network, 'Unknown') AS network,
		COALESCE(r.status, 'Unknown') AS status,
		COALESCE(r.event_type, 'Unknown') AS event_type,
		COALESCE(CAST(r.moon_phase AS DOUBLE), 0.0) AS moon_phase,
		COALESCE(r.moon_phase_name, 'Unknown') AS moon_phase_name
	FROM %s r
	LEFT JOIN %s t
		ON r.datetime = t.datetime
	LEFT JOIN %s l
		ON r.latitude = l.latitude
		AND r.longitude = l.longitude
		AND COALESCE(r.place, 'Unknown') = l.place
		AND COALESCE(r.region, 'Unknown') = l.region
	LEFT JOIN %s m
		ON r.magnitude = m.magnitude
		AND COALESCE(r.magnitude_type, 'Unknown') = m.magnitude_type
		AND r.magnitude_category = m.magnitude_category
	WHERE %s
		AND t.time_id IS NOT NULL
		AND l.location_id IS NOT NULL
		AND m.magnitude_id IS NOT NULL`,
		catalog.FactEvents, catalog.RawEvents,
		catalog.DimTime, catalog.DimLocation, catalog.DimMagnitude,
		prereq)

	if err := b.store.Exec(ctx, stmt); err != nil {
		return err
	}

	resolved, err := b.store.RowCount(ctx, catalog.FactEvents.Name())
	if err != nil {
		return err
	}
	report.UnresolvedJoins = prereqRows - resolved

	if report.UnresolvedJoins > 0 {
		b.log.Warn("dropped rows with unresolved dimension keys",
			"count", report.UnresolvedJoins)
	}

	final, err := b.dedupeFact(ctx, resolved)
	if err != nil {
		return err
	}
	report.Duplicates = resolved - final
	report.FactRows = final

	return nil
}

// dedupeFact removes duplicate event_ids from the fact table, keeping
// one deterministic variant per id. Returns the final row count.
func (b *Builder) dedupeFact(ctx context.Context, resolved int64) (int64, error) {
	var distinct int64
	err := b.store.DB().QueryRowContext(ctx, fmt.Sprintf(
		"SELECT count(DISTINCT event_id) FROM %s", catalog.FactEvents)).Scan(&distinct)
	if err != nil {
		return 0, fmt.Errorf("count distinct event ids: %w", err)
	}

	if distinct == resolved {
		return resolved, nil
	}

	b.log.Warn("deduplicating fact table", "duplicates", resolved-distinct)

	// Tie-break is deterministic but carries no business meaning: the
	// variant with the lowest key tuple wins.
	stmt := fmt.Sprintf(`
	CREATE OR REPLACE TABLE %s AS
	SELECT DISTINCT ON (event_id) *
	FROM %s
	ORDER BY event_id, time_id, location_id, magnitude_id`,
		catalog.FactEvents, catalog.FactEvents)

	if err := b.store.Exec(ctx, stmt); err != nil {
		return 0, err
	}

	return b.store.RowCount(ctx, catalog.FactEvents.Name())
}

// TableStatus reports one schema table probe.
type TableStatus struct {
	Exists   bool
	RowCount int64
}

// Validate probes every schema table. Probe failures are reported
// per-table, never raised.
func (b *Builder) Validate(ctx context.Context) map[string]TableStatus {
	tables := append(catalog.Dimensions(), catalog.FactEvents)

	status := make(map[string]TableStatus, len(tables))
	for _, table := range tables {
		name := table.Name()
		st := TableStatus{Exists: b.store.Exists(ctx, name)}
		if st.Exists {
			if n, err := b.store.RowCount(ctx, name); err == nil {
				st.RowCount = n
			}
		}
		status[name] = st
	}
	return status
}

// createAndCount executes a create-or-replace statement and returns the
// resulting table's row count.
func (b *Builder) createAndCount(ctx context.Context, table, stmt string) (int64, error) {
	if err := b.store.Exec(ctx, stmt); err != nil {
		return 0, err
	}
	n, err := b.store.RowCount(ctx, table)
	if err != nil {
		return 0, err
	}
	b.log.Info("created dimension", "table", table, "rows", n)
	return n, nil
}
