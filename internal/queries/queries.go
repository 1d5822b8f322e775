// Package queries provides the canned analytical queries and a generic
// result runner for the interactive shell.
//
// Results come back as formatted string grids rather than typed rows:
// every consumer here is a table renderer or an export, and the column
// set varies per query.
package queries

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/seismolab/quakemart/internal/catalog"
	qerrors "github.com/seismolab/quakemart/internal/errors"
)

// Result is a generic query result grid.
type Result struct {
	Columns []string
	Rows    [][]string
}

// Runner executes queries against the warehouse.
type Runner struct {
	db *sql.DB
}

// NewRunner creates a runner over an open database handle.
func NewRunner(db *sql.DB) *Runner {
	return &Runner{db: db}
}

// Run executes an arbitrary SQL statement and collects its result grid.
// NULLs render as empty cells.
func (r *Runner) Run(ctx context.Context, query string, args ...any) (*Result, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, qerrors.NewStorage("query", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, qerrors.NewStorage("columns", err)
	}

	res := &Result{Columns: cols}
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, qerrors.NewStorage("scan", err)
		}
		row := make([]string, len(cols))
		for i, v := range values {
			row[i] = formatValue(v)
		}
		res.Rows = append(res.Rows, row)
	}
	return res, rows.Err()
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(x)
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case time.Time:
		return x.UTC().Format("2006-01-02 15:04:05")
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

// TopMagnitudeEvents returns the strongest events with their full
// dimensional context.
func (r *Runner) TopMagnitudeEvents(ctx context.Context, limit int) (*Result, error) {
	if limit < 1 {
		limit = 10
	}
	return r.Run(ctx, fmt.Sprintf(`
	SELECT
		f.event_id,
		t.datetime,
		l.place,
		l.region,
		m.magnitude,
		m.magnitude_category,
		f.depth,
		f.depth_category
	FROM %s f
	JOIN %s t ON f.time_id = t.time_id
	JOIN %s l ON f.location_id = l.location_id
	JOIN %s m ON f.magnitude_id = m.magnitude_id
	ORDER BY m.magnitude DESC, t.datetime
	LIMIT %d`,
		catalog.FactEvents, catalog.DimTime, catalog.DimLocation,
		catalog.DimMagnitude, limit))
}

// EventsByRegion returns the most active regions.
func (r *Runner) EventsByRegion(ctx context.Context, topN int) (*Result, error) {
	if topN < 1 {
		topN = 10
	}
	return r.Run(ctx, fmt.Sprintf(`
	SELECT
		region,
		SUM(event_count) AS total_events,
		AVG(avg_magnitude) AS avg_magnitude,
		MAX(max_magnitude) AS max_magnitude,
		SUM(total_energy_joules) AS total_energy_joules
	FROM %s
	GROUP BY region
	ORDER BY total_events DESC
	LIMIT %d`,
		catalog.CubeLocationMagnitude, topN))
}

// MagnitudeDistribution returns event counts per magnitude category in
// severity order.
func (r *Runner) MagnitudeDistribution(ctx context.Context) (*Result, error) {
	return r.Run(ctx, fmt.Sprintf(`
	SELECT
		magnitude_category,
		SUM(event_count) AS total_events,
		AVG(avg_magnitude) AS avg_magnitude,
		AVG(avg_depth) AS avg_depth
	FROM %s
	GROUP BY magnitude_category
	ORDER BY
		CASE magnitude_category
			WHEN 'Minor' THEN 1
			WHEN 'Light' THEN 2
			WHEN 'Moderate' THEN 3
			WHEN 'Strong' THEN 4
			WHEN 'Major' THEN 5
			WHEN 'Great' THEN 6
		END`,
		catalog.CubeTimeMagnitude))
}

// MonthlyTrends returns month-by-month activity over the loaded range.
func (r *Runner) MonthlyTrends(ctx context.Context) (*Result, error) {
	return r.Run(ctx, fmt.Sprintf(`
	SELECT
		year,
		month,
		SUM(event_count) AS total_events,
		AVG(avg_magnitude) AS avg_magnitude,
		MAX(max_magnitude) AS max_magnitude
	FROM %s
	GROUP BY year, month
	ORDER BY year, month`,
		catalog.CubeTimeMagnitude))
}

// DepthAnalysis returns the depth category profile.
func (r *Runner) DepthAnalysis(ctx context.Context) (*Result, error) {
	return r.Run(ctx, fmt.Sprintf(`
	SELECT
		depth_category,
		SUM(event_count) AS total_events,
		AVG(avg_depth) AS avg_depth,
		MAX(max_depth) AS max_depth,
		AVG(avg_magnitude) AS avg_magnitude
	FROM %s
	GROUP BY depth_category
	ORDER BY
		CASE depth_category
			WHEN 'Shallow' THEN 1
			WHEN 'Intermediate' THEN 2
			WHEN 'Deep' THEN 3
		END`,
		catalog.CubeDepthAnalysis))
}

// DailyTrends returns the day-by-day activity trend.
func (r *Runner) DailyTrends(ctx context.Context) (*Result, error) {
	return r.Run(ctx, fmt.Sprintf(`
	SELECT
		date,
		daily_event_count,
		daily_avg_magnitude,
		daily_max_magnitude,
		affected_regions
	FROM %s
	ORDER BY date`,
		catalog.CubeTemporalTrends))
}

// HourlyPatterns returns activity by hour of day.
func (r *Runner) HourlyPatterns(ctx context.Context) (*Result, error) {
	return r.Run(ctx, fmt.Sprintf(`
	SELECT
		hour,
		SUM(event_count) AS total_events,
		AVG(avg_magnitude) AS avg_magnitude
	FROM %s
	GROUP BY hour
	ORDER BY hour`,
		catalog.CubeTimeMagnitude))
}

// SeasonalPatterns returns activity by season.
func (r *Runner) SeasonalPatterns(ctx context.Context) (*Result, error) {
	return r.Run(ctx, fmt.Sprintf(`
	SELECT
		season,
		SUM(event_count) AS total_events,
		AVG(avg_magnitude) AS avg_magnitude,
		AVG(avg_depth) AS avg_depth
	FROM %s
	GROUP BY season
	ORDER BY
		CASE season
			WHEN 'Winter' THEN 1
			WHEN 'Spring' THEN 2
			WHEN 'Summer' THEN 3
			WHEN 'Fall' THEN 4
		END`,
		catalog.CubeTimeMagnitude))
}

// MoonPhaseAnalysis returns the moon phase distribution, optionally
// restricted to cells at or above a minimum average magnitude.
func (r *Runner) MoonPhaseAnalysis(ctx context.Context, minMagnitude float64) (*Result, error) {
	where := ""
	if minMagnitude > 0 {
		where = fmt.Sprintf("WHERE avg_magnitude >= %g", minMagnitude)
	}
	return r.Run(ctx, fmt.Sprintf(`
	SELECT
		moon_phase_name,
		magnitude_group,
		event_count,
		avg_magnitude,
		avg_moon_phase
	FROM %s
	%s
	ORDER BY avg_moon_phase, magnitude_group`,
		catalog.CubeMoonPhase, where))
}
