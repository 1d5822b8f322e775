package cube

import (
	"fmt"
	"strings"

	"github.com/seismolab/quakemart/internal/catalog"
)

// Spec declares one aggregate cube over the star schema. The SQL shape
// is identical for every cube; only the grouping columns, measures and
// join set differ, so adding a cube is a registry entry, not new code.
type Spec struct {
	// Table is the target relation.
	Table catalog.Table

	// Description appears in logs and the shell's cube listing.
	Description string

	// GroupBy lists the grouping expressions. Each entry is either a
	// plain column or "expr AS alias"; grouping uses the expression,
	// projection keeps the alias.
	GroupBy []string

	// Measures lists aggregate expressions with aliases.
	Measures []string

	// Joins lists the dimension tables the grouping columns come from.
	Joins []catalog.Table

	// OrderBy optionally fixes the output order for stable exports.
	OrderBy []string
}

// Standard measure set shared by most cubes.
var baseMeasures = []string{
	"COUNT(*) AS event_count",
	"AVG(m.magnitude) AS avg_magnitude",
	"MAX(m.magnitude) AS max_magnitude",
	"MIN(m.magnitude) AS min_magnitude",
	"AVG(f.depth) AS avg_depth",
	"SUM(m.energy_joules) AS total_energy_joules",
}

// Registry returns the cube definitions in build order.
func Registry() []Spec {
	return []Spec{
		{
			Table:       catalog.CubeTimeMagnitude,
			Description: "magnitude stats by calendar attributes and magnitude category",
			GroupBy: []string{
				"t.year", "t.month", "t.day_name", "t.hour",
				"t.season", "t.is_weekend", "m.magnitude_category",
			},
			Measures: baseMeasures,
			Joins:    []catalog.Table{catalog.DimTime, catalog.DimMagnitude},
			OrderBy:  []string{"t.year", "t.month", "t.hour"},
		},
		{
			Table:       catalog.CubeLocationMagnitude,
			Description: "regional activity by hemisphere, climate zone and magnitude category",
			GroupBy: []string{
				"l.region", "l.hemisphere_ns", "l.hemisphere_ew",
				"l.climate_zone", "m.magnitude_category",
			},
			Measures: append(baseMeasures,
				"AVG(l.latitude) AS center_latitude",
				"AVG(l.longitude) AS center_longitude"),
			Joins:   []catalog.Table{catalog.DimLocation, catalog.DimMagnitude},
			OrderBy: []string{"event_count DESC"},
		},
		{
			Table:       catalog.CubeDepthAnalysis,
			Description: "depth category profile by magnitude category and season",
			GroupBy:     []string{"f.depth_category", "m.magnitude_category", "t.season"},
			Measures: []string{
				"COUNT(*) AS event_count",
				"AVG(f.depth) AS avg_depth",
				"MAX(f.depth) AS max_depth",
				"MIN(f.depth) AS min_depth",
				"AVG(m.magnitude) AS avg_magnitude",
				"AVG(f.num_stations) AS avg_stations",
				"AVG(f.azimuthal_gap) AS avg_gap",
				"AVG(f.horizontal_error) AS avg_horizontal_error",
				"AVG(f.depth_error) AS avg_depth_error",
			},
			Joins:   []catalog.Table{catalog.DimMagnitude, catalog.DimTime},
			OrderBy: []string{"f.depth_category", "event_count DESC"},
		},
		{
			Table:       catalog.CubeTemporalTrends,
			Description: "daily activity trend",
			GroupBy:     []string{"t.date", "t.year", "t.month", "t.day_of_week"},
			Measures: []string{
				"COUNT(*) AS daily_event_count",
				"AVG(m.magnitude) AS daily_avg_magnitude",
				"MAX(m.magnitude) AS daily_max_magnitude",
				"SUM(m.energy_joules) AS daily_total_energy",
				"COUNT(DISTINCT l.region) AS affected_regions",
			},
			Joins:   []catalog.Table{catalog.DimTime, catalog.DimMagnitude, catalog.DimLocation},
			OrderBy: []string{"t.date"},
		},
		{
			Table:       catalog.CubeMoonPhase,
			Description: "event counts by moon phase and coarse magnitude group",
			GroupBy: []string{
				"f.moon_phase_name",
				`CASE
				WHEN m.magnitude < 4 THEN '1-3'
				WHEN m.magnitude < 5 THEN '4'
				WHEN m.magnitude < 6 THEN '5'
				WHEN m.magnitude < 8 THEN '6-7'
				ELSE '8-9'
			END AS magnitude_group`,
			},
			Measures: []string{
				"COUNT(*) AS event_count",
				"AVG(m.magnitude) AS avg_magnitude",
				"AVG(f.moon_phase) AS avg_moon_phase",
			},
			Joins:   []catalog.Table{catalog.DimMagnitude},
			OrderBy: []string{"f.moon_phase_name", "magnitude_group"},
		},
	}
}

// SQL renders the create-or-replace statement for the cube.
func (s Spec) SQL() string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE OR REPLACE TABLE %s AS\nSELECT\n", s.Table)

	cols := make([]string, 0, len(s.GroupBy)+len(s.Measures))
	cols = append(cols, s.GroupBy...)
	cols = append(cols, s.Measures...)
	b.WriteString("\t" + strings.Join(cols, ",\n\t"))

	fmt.Fprintf(&b, "\nFROM %s f\n", catalog.FactEvents)
	for _, dim := range s.Joins {
		switch dim {
		case catalog.DimTime:
			fmt.Fprintf(&b, "JOIN %s t ON f.time_id = t.time_id\n", dim)
		case catalog.DimLocation:
			fmt.Fprintf(&b, "JOIN %s l ON f.location_id = l.location_id\n", dim)
		case catalog.DimMagnitude:
			fmt.Fprintf(&b, "JOIN %s m ON f.magnitude_id = m.magnitude_id\n", dim)
		}
	}

	groups := make([]string, len(s.GroupBy))
	for i, g := range s.GroupBy {
		groups[i] = groupExpr(g)
	}
	b.WriteString("GROUP BY " + strings.Join(groups, ", "))

	if len(s.OrderBy) > 0 {
		b.WriteString("\nORDER BY " + strings.Join(s.OrderBy, ", "))
	}
	return b.String()
}

// groupExpr strips a trailing "AS alias" so grouping uses the raw
// expression.
func groupExpr(col string) string {
	if i := strings.LastIndex(strings.ToUpper(col), " AS "); i >= 0 {
		return strings.TrimSpace(col[:i])
	}
	return col
}
