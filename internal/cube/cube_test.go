package cube

import (
	"context"
	"strings"
	"testing"

	"github.com/seismolab/quakemart/internal/catalog"
	"github.com/seismolab/quakemart/internal/config"
	"github.com/seismolab/quakemart/internal/warehouse"
)

func openMemory(t *testing.T) *warehouse.Store {
	t.Helper()
	s, err := warehouse.Open(":memory:", config.DefaultConfig().Warehouse)
	if err != nil {
		t.Fatalf("Open(:memory:) = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// seedStarSchema creates a small fact table with two dimension rows
// each, just the columns the cube specs touch.
func seedStarSchema(t *testing.T, s *warehouse.Store) {
	t.Helper()
	ctx := context.Background()

	stmts := []string{
		`CREATE TABLE dim_time (time_id BIGINT, date DATE, year INTEGER, month INTEGER,
			hour INTEGER, day_of_week INTEGER, day_name VARCHAR,
			season VARCHAR, is_weekend BOOLEAN)`,
		`INSERT INTO dim_time VALUES
			(1, DATE '2023-03-06', 2023, 3, 14, 1, 'Monday', 'Spring', false),
			(2, DATE '2023-07-01', 2023, 7, 2, 6, 'Saturday', 'Summer', true)`,

		`CREATE TABLE dim_location (location_id BIGINT,
			latitude DOUBLE, longitude DOUBLE, region VARCHAR,
			hemisphere_ns VARCHAR, hemisphere_ew VARCHAR, climate_zone VARCHAR)`,
		`INSERT INTO dim_location VALUES
			(1, 35.7, 139.7, 'Tokyo, Japan', 'Northern', 'Eastern', 'Temperate'),
			(2, -12.0, 166.5, 'Lata, Solomon Islands', 'Southern', 'Eastern', 'Tropical')`,

		`CREATE TABLE dim_magnitude (magnitude_id BIGINT, magnitude DOUBLE,
			magnitude_category VARCHAR, energy_joules DOUBLE)`,
		`INSERT INTO dim_magnitude VALUES
			(1, 5.1, 'Moderate', 2.9e12),
			(2, 6.3, 'Strong', 1.8e14)`,

		`CREATE TABLE fact_earthquakes (event_id VARCHAR,
			time_id BIGINT, location_id BIGINT, magnitude_id BIGINT,
			depth DOUBLE, depth_category VARCHAR,
			num_stations INTEGER, azimuthal_gap DOUBLE,
			horizontal_error DOUBLE, depth_error DOUBLE,
			moon_phase DOUBLE, moon_phase_name VARCHAR)`,
		`INSERT INTO fact_earthquakes VALUES
			('ev1', 1, 1, 1, 10.0, 'Shallow', 20, 90.0, 1.0, 2.0, 0.25, 'First Quarter'),
			('ev2', 1, 1, 1, 35.0, 'Shallow', 30, 80.0, 1.5, 2.5, 0.25, 'First Quarter'),
			('ev3', 2, 2, 2, 120.0, 'Intermediate', 40, 70.0, 0.5, 1.0, 0.5, 'Full Moon')`,
	}
	for _, stmt := range stmts {
		if err := s.Exec(ctx, stmt); err != nil {
			t.Fatal(err)
		}
	}
}

func TestMaterialize(t *testing.T) {
	s := openMemory(t)
	seedStarSchema(t, s)
	ctx := context.Background()

	summaries, err := New(s, 2).Materialize(ctx)
	if err != nil {
		t.Fatalf("Materialize() = %v", err)
	}
	if len(summaries) != len(catalog.Cubes()) {
		t.Fatalf("len(summaries) = %d, want %d", len(summaries), len(catalog.Cubes()))
	}

	// Summaries come back in registry order regardless of which worker
	// finished first.
	for i, spec := range Registry() {
		if summaries[i].Table != spec.Table.Name() {
			t.Errorf("summaries[%d].Table = %q, want %q", i, summaries[i].Table, spec.Table)
		}
		if summaries[i].Rows == 0 {
			t.Errorf("cube %s is empty", summaries[i].Table)
		}
		if !s.Exists(ctx, spec.Table.Name()) {
			t.Errorf("cube table %s missing", spec.Table)
		}
	}

	// Two Moderate events in March 2023 aggregate to one group.
	var count int64
	var avg float64
	err = s.DB().QueryRow(`SELECT event_count, avg_magnitude FROM cube_time_magnitude
		WHERE year = 2023 AND month = 3 AND magnitude_category = 'Moderate'`).Scan(&count, &avg)
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 || avg != 5.1 {
		t.Errorf("time/magnitude group = %d events avg %g, want 2 events avg 5.1", count, avg)
	}

	// Magnitude 6.3 lands in the '6-7' group.
	var group string
	err = s.DB().QueryRow(`SELECT magnitude_group FROM cube_moon_phase
		WHERE moon_phase_name = 'Full Moon'`).Scan(&group)
	if err != nil {
		t.Fatal(err)
	}
	if group != "6-7" {
		t.Errorf("magnitude_group = %q, want 6-7", group)
	}

	// Depth cube cells are depth x magnitude x season.
	var depthCount int64
	err = s.DB().QueryRow(`SELECT event_count FROM cube_depth_analysis
		WHERE depth_category = 'Shallow'
		AND magnitude_category = 'Moderate'
		AND season = 'Spring'`).Scan(&depthCount)
	if err != nil {
		t.Fatal(err)
	}
	if depthCount != 2 {
		t.Errorf("depth cell event_count = %d, want 2", depthCount)
	}

	// The trend cube rolls up per calendar day.
	var daily, regions int64
	err = s.DB().QueryRow(`SELECT daily_event_count, affected_regions
		FROM cube_temporal_trends WHERE date = DATE '2023-03-06'`).Scan(&daily, &regions)
	if err != nil {
		t.Fatal(err)
	}
	if daily != 2 || regions != 1 {
		t.Errorf("daily trend = %d events over %d regions, want 2 over 1", daily, regions)
	}
}

func TestRegistryGroupings(t *testing.T) {
	want := map[catalog.Table][]string{
		catalog.CubeTimeMagnitude: {
			"t.year", "t.month", "t.day_name", "t.hour",
			"t.season", "t.is_weekend", "m.magnitude_category",
		},
		catalog.CubeLocationMagnitude: {
			"l.region", "l.hemisphere_ns", "l.hemisphere_ew",
			"l.climate_zone", "m.magnitude_category",
		},
		catalog.CubeDepthAnalysis: {
			"f.depth_category", "m.magnitude_category", "t.season",
		},
		catalog.CubeTemporalTrends: {
			"t.date", "t.year", "t.month", "t.day_of_week",
		},
	}

	for _, spec := range Registry() {
		cols, ok := want[spec.Table]
		if !ok {
			continue
		}
		if len(spec.GroupBy) != len(cols) {
			t.Errorf("%s groups by %v, want %v", spec.Table, spec.GroupBy, cols)
			continue
		}
		for i, col := range cols {
			if spec.GroupBy[i] != col {
				t.Errorf("%s grouping[%d] = %q, want %q", spec.Table, i, spec.GroupBy[i], col)
			}
		}
	}

	// The moon cube groups by phase name plus the bucketed magnitude.
	for _, spec := range Registry() {
		if spec.Table != catalog.CubeMoonPhase {
			continue
		}
		if len(spec.GroupBy) != 2 || spec.GroupBy[0] != "f.moon_phase_name" {
			t.Errorf("moon cube groups by %v", spec.GroupBy)
		}
		if !strings.Contains(spec.GroupBy[1], "AS magnitude_group") {
			t.Errorf("moon cube second grouping = %q, want bucketed magnitude_group", spec.GroupBy[1])
		}
	}
}

func TestMaterializeEmptyFact(t *testing.T) {
	s := openMemory(t)
	seedStarSchema(t, s)
	ctx := context.Background()

	if err := s.Exec(ctx, "DELETE FROM fact_earthquakes"); err != nil {
		t.Fatal(err)
	}

	summaries, err := New(s, 1).Materialize(ctx)
	if err != nil {
		t.Fatalf("Materialize(empty fact) = %v", err)
	}
	for _, sum := range summaries {
		if sum.Rows != 0 {
			t.Errorf("cube %s has %d rows over an empty fact table", sum.Table, sum.Rows)
		}
	}
}

func TestMaterializeMissingSchema(t *testing.T) {
	s := openMemory(t)

	if _, err := New(s, 2).Materialize(context.Background()); err == nil {
		t.Error("Materialize() without a star schema = nil error")
	}
}

func TestStatus(t *testing.T) {
	s := openMemory(t)
	seedStarSchema(t, s)
	ctx := context.Background()

	m := New(s, 1)

	// Before materialization every cube probes as absent.
	for _, sum := range m.Status(ctx) {
		if sum.Exists || sum.Rows != 0 {
			t.Errorf("cube %s probes as present before materialization", sum.Table)
		}
	}

	if _, err := m.Materialize(ctx); err != nil {
		t.Fatal(err)
	}
	status := m.Status(ctx)
	if len(status) != len(catalog.Cubes()) {
		t.Fatalf("len(Status) = %d, want %d", len(status), len(catalog.Cubes()))
	}
	for _, sum := range status {
		if !sum.Exists || sum.Rows == 0 || sum.Description == "" {
			t.Errorf("cube %s = %+v, want present with rows and a description", sum.Table, sum)
		}
	}

	// A materialized cube over an empty fact table is present with zero
	// rows, not absent.
	if err := s.Exec(ctx, "DELETE FROM fact_earthquakes"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Materialize(ctx); err != nil {
		t.Fatal(err)
	}
	for _, sum := range m.Status(ctx) {
		if !sum.Exists || sum.Rows != 0 {
			t.Errorf("empty cube %s = %+v, want present with zero rows", sum.Table, sum)
		}
	}
}

func TestDrop(t *testing.T) {
	s := openMemory(t)
	seedStarSchema(t, s)
	ctx := context.Background()

	m := New(s, 1)
	if _, err := m.Materialize(ctx); err != nil {
		t.Fatal(err)
	}
	if err := m.Drop(ctx); err != nil {
		t.Fatal(err)
	}
	for _, table := range catalog.Cubes() {
		if s.Exists(ctx, table.Name()) {
			t.Errorf("cube %s survived Drop", table)
		}
	}
}

func TestRegistryMatchesCatalog(t *testing.T) {
	specs := Registry()
	cubes := catalog.Cubes()
	if len(specs) != len(cubes) {
		t.Fatalf("registry has %d specs, catalog has %d cubes", len(specs), len(cubes))
	}
	seen := make(map[catalog.Table]bool)
	for _, spec := range specs {
		if seen[spec.Table] {
			t.Errorf("duplicate spec for %s", spec.Table)
		}
		seen[spec.Table] = true
		if len(spec.GroupBy) == 0 || len(spec.Measures) == 0 || len(spec.Joins) == 0 {
			t.Errorf("spec %s is incomplete", spec.Table)
		}
	}
	for _, table := range cubes {
		if !seen[table] {
			t.Errorf("catalog cube %s has no spec", table)
		}
	}
}

func TestGroupExpr(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"t.year", "t.year"},
		{"l.region", "l.region"},
		{"CASE WHEN x THEN 'a' ELSE 'b' END AS bucket", "CASE WHEN x THEN 'a' ELSE 'b' END"},
		{"lower(name) as alias", "lower(name)"},
	}
	for _, tt := range tests {
		if got := groupExpr(tt.in); got != tt.want {
			t.Errorf("groupExpr(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSpecSQLShape(t *testing.T) {
	for _, spec := range Registry() {
		sql := spec.SQL()
		if !strings.HasPrefix(sql, "CREATE OR REPLACE TABLE "+spec.Table.Name()) {
			t.Errorf("%s: SQL does not target its own table", spec.Table)
		}
		if !strings.Contains(sql, "FROM fact_earthquakes f") {
			t.Errorf("%s: SQL does not read the fact table", spec.Table)
		}
		if !strings.Contains(sql, "GROUP BY ") {
			t.Errorf("%s: SQL has no grouping", spec.Table)
		}
		grouping := sql[strings.Index(sql, "GROUP BY"):]
		if i := strings.Index(grouping, "ORDER BY"); i >= 0 {
			grouping = grouping[:i]
		}
		if strings.Contains(strings.ToUpper(grouping), " AS ") {
			t.Errorf("%s: grouping kept an alias:\n%s", spec.Table, grouping)
		}
	}
}
