package ingest

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/seismolab/quakemart/internal/config"
	"github.com/seismolab/quakemart/internal/logging"
	"github.com/seismolab/quakemart/internal/moon"
	"github.com/seismolab/quakemart/internal/rawbatch"
)

// TransformReport accounts for every input row of one transform pass.
// RowsIn = DroppedMissing + DroppedMagnitude + DroppedDepth +
// DroppedCoordinates + DroppedWrongYear + Duplicates + RowsOut.
type TransformReport struct {
	RowsIn int

	// DroppedMissing counts rows missing a prerequisite field (time,
	// coordinates, magnitude, event id) or carrying an unparseable one.
	DroppedMissing int

	// Range validation drops, per rule.
	DroppedMagnitude   int
	DroppedDepth       int
	DroppedCoordinates int

	// DroppedWrongYear counts rows whose timestamp falls outside the
	// partition year. The upstream endtime bound is exclusive, so a
	// boundary event can arrive in the wrong chunk.
	DroppedWrongYear int

	// Duplicates counts intra-partition duplicate event ids.
	Duplicates int

	RowsOut int
}

// Transformer validates and enriches extracted rows into a staging
// batch.
type Transformer struct {
	bounds config.ValidationConfig
	log    *slog.Logger
}

// NewTransformer creates a transformer using the configured validation
// bounds.
func NewTransformer(cfg *config.Config) *Transformer {
	return &Transformer{
		bounds: cfg.ETL.Validation,
		log:    logging.Component("transform"),
	}
}

// Transform builds the staging batch for one partition year. Rows are
// dropped, never repaired: a row missing or failing anything required
// is counted under its first failing rule and skipped.
func (t *Transformer) Transform(rows []Row, year int) (*rawbatch.Batch, TransformReport) {
	report := TransformReport{RowsIn: len(rows)}
	batch := &rawbatch.Batch{Year: year, Records: make([]rawbatch.Record, 0, len(rows))}

	for _, row := range rows {
		rec, reason := t.buildRecord(row, year)
		switch reason {
		case dropNone:
			batch.Records = append(batch.Records, rec)
		case dropMissing:
			report.DroppedMissing++
		case dropMagnitude:
			report.DroppedMagnitude++
		case dropDepth:
			report.DroppedDepth++
		case dropCoordinates:
			report.DroppedCoordinates++
		case dropWrongYear:
			report.DroppedWrongYear++
		}
	}

	report.Duplicates = batch.DedupeByEventID()
	report.RowsOut = len(batch.Records)

	dropped := report.RowsIn - report.RowsOut
	if dropped > 0 {
		t.log.Warn("dropped rows during transform",
			"year", year,
			"missing", report.DroppedMissing,
			"magnitude", report.DroppedMagnitude,
			"depth", report.DroppedDepth,
			"coordinates", report.DroppedCoordinates,
			"wrong_year", report.DroppedWrongYear,
			"duplicates", report.Duplicates)
	}
	t.log.Info("transformed partition", "year", year,
		"rows_in", report.RowsIn, "rows_out", report.RowsOut)

	return batch, report
}

type dropReason int

const (
	dropNone dropReason = iota
	dropMissing
	dropMagnitude
	dropDepth
	dropCoordinates
	dropWrongYear
)

// Timestamp layouts seen in upstream feeds, most common first.
var timeLayouts = []string{
	"2006-01-02T15:04:05.000Z",
	time.RFC3339Nano,
	time.RFC3339,
}

func (t *Transformer) buildRecord(row Row, year int) (rawbatch.Record, dropReason) {
	var rec rawbatch.Record

	eventID, ok := row["event_id"]
	if !ok {
		return rec, dropMissing
	}
	when, ok := parseTime(row["time"])
	if !ok {
		return rec, dropMissing
	}
	lat, ok := parseFloat(row["latitude"])
	if !ok {
		return rec, dropMissing
	}
	lon, ok := parseFloat(row["longitude"])
	if !ok {
		return rec, dropMissing
	}
	mag, ok := parseFloat(row["magnitude"])
	if !ok {
		return rec, dropMissing
	}

	// Absent depth is legitimate (some networks omit it) and defaults
	// to the surface rather than dropping the event.
	depth := 0.0
	if raw, present := row["depth"]; present {
		d, ok := parseFloat(raw)
		if !ok {
			return rec, dropMissing
		}
		depth = d
	}

	if mag < t.bounds.MinMagnitude || mag > t.bounds.MaxMagnitude {
		return rec, dropMagnitude
	}
	if depth < t.bounds.MinDepth || depth > t.bounds.MaxDepth {
		return rec, dropDepth
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return rec, dropCoordinates
	}
	if when.UTC().Year() != year {
		return rec, dropWrongYear
	}

	place := row["place"]
	if place == "" {
		place = "Unknown"
	}

	rec = rawbatch.Record{
		EventID:   eventID,
		Time:      when.UTC(),
		Latitude:  lat,
		Longitude: lon,
		Magnitude: mag,
		Depth:     depth,
		Place:     place,
		Region:    regionOf(place),

		MagnitudeType: optString(row, "magnitude_type"),
		NumStations:   optInt32(row, "num_stations"),
		AzimuthalGap:  optFloat(row, "azimuthal_gap"),
		MinDistance:   optFloat(row, "min_distance"),
		RMS:           optFloat(row, "rms"),
		HorizontalErr: optFloat(row, "horizontal_error"),
		DepthErr:      optFloat(row, "depth_error"),
		MagnitudeErr:  optFloat(row, "magnitude_error"),
		Network:       optString(row, "network"),
		Status:        optString(row, "status"),
		EventType:     optString(row, "event_type"),

		MagnitudeCategory: MagnitudeCategory(mag),
		DepthCategory:     DepthCategory(depth),
	}

	rec.MoonPhase = moon.Phase(rec.Time)
	rec.MoonPhaseName = moon.PhaseName(rec.MoonPhase)

	rec.Year = int32(rec.Time.Year())
	rec.Month = int32(rec.Time.Month())
	rec.Day = int32(rec.Time.Day())
	rec.Hour = int32(rec.Time.Hour())
	rec.DayOfWeek = isoWeekday(rec.Time)

	return rec, dropNone
}

// MagnitudeCategory buckets a magnitude into its named class.
func MagnitudeCategory(mag float64) string {
	switch {
	case mag < 3.0:
		return "Minor"
	case mag < 5.0:
		return "Light"
	case mag < 6.0:
		return "Moderate"
	case mag < 7.0:
		return "Strong"
	case mag < 8.0:
		return "Major"
	default:
		return "Great"
	}
}

// DepthCategory buckets a depth (km) into its named class.
func DepthCategory(depth float64) string {
	switch {
	case depth < 70:
		return "Shallow"
	case depth < 300:
		return "Intermediate"
	default:
		return "Deep"
	}
}

// regionOf extracts the coarse region from a place description: the
// text after the last " of " separator ("63 km SE of Adak, Alaska"
// yields "Adak, Alaska"). Places without the separator are their own
// region.
func regionOf(place string) string {
	if i := strings.LastIndex(place, " of "); i >= 0 {
		return place[i+len(" of "):]
	}
	return place
}

// isoWeekday maps time.Weekday to ISO numbering, Monday=1 .. Sunday=7.
func isoWeekday(t time.Time) int32 {
	wd := int32(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

func parseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseFloat(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func optFloat(row Row, key string) *float64 {
	f, ok := parseFloat(row[key])
	if !ok {
		return nil
	}
	return &f
}

func optInt32(row Row, key string) *int32 {
	s := row[key]
	if s == "" {
		return nil
	}
	// Some feeds emit station counts as floats.
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	n := int32(f)
	return &n
}

func optString(row Row, key string) *string {
	s, ok := row[key]
	if !ok {
		return nil
	}
	return &s
}
