package queries

import "context"

// Canned is a named analytical query the shell can run without SQL.
type Canned struct {
	Name        string
	Description string
	Run         func(ctx context.Context, r *Runner) (*Result, error)
}

// CannedQueries lists the built-in analytical queries.
func CannedQueries() []Canned {
	return []Canned{
		{
			Name:        "top",
			Description: "strongest events with dimensional context",
			Run: func(ctx context.Context, r *Runner) (*Result, error) {
				return r.TopMagnitudeEvents(ctx, 10)
			},
		},
		{
			Name:        "regions",
			Description: "most active regions",
			Run: func(ctx context.Context, r *Runner) (*Result, error) {
				return r.EventsByRegion(ctx, 10)
			},
		},
		{
			Name:        "magnitudes",
			Description: "event counts per magnitude category",
			Run: func(ctx context.Context, r *Runner) (*Result, error) {
				return r.MagnitudeDistribution(ctx)
			},
		},
		{
			Name:        "trends",
			Description: "month-by-month activity",
			Run: func(ctx context.Context, r *Runner) (*Result, error) {
				return r.MonthlyTrends(ctx)
			},
		},
		{
			Name:        "daily",
			Description: "day-by-day activity trend",
			Run: func(ctx context.Context, r *Runner) (*Result, error) {
				return r.DailyTrends(ctx)
			},
		},
		{
			Name:        "depths",
			Description: "depth category profile",
			Run: func(ctx context.Context, r *Runner) (*Result, error) {
				return r.DepthAnalysis(ctx)
			},
		},
		{
			Name:        "hours",
			Description: "activity by hour of day",
			Run: func(ctx context.Context, r *Runner) (*Result, error) {
				return r.HourlyPatterns(ctx)
			},
		},
		{
			Name:        "seasons",
			Description: "activity by season",
			Run: func(ctx context.Context, r *Runner) (*Result, error) {
				return r.SeasonalPatterns(ctx)
			},
		},
		{
			Name:        "moon",
			Description: "moon phase distribution",
			Run: func(ctx context.Context, r *Runner) (*Result, error) {
				return r.MoonPhaseAnalysis(ctx, 0)
			},
		},
	}
}
