// Package rawbatch defines the cleaned, enriched event records produced
// by ingestion for one partition, and their parquet staging format.
//
// A Batch is the unit handed from the transformer to the warehouse: all
// records for one calendar year, deduplicated within the partition,
// with derived fields already populated. Uniqueness of event_id across
// partitions is only established later, at merge time.
package rawbatch

import (
	"time"
)

// Record is one cleaned, enriched earthquake observation.
//
// EventID, Time, Latitude, Longitude and Magnitude are hard
// prerequisites: the transformer drops rows missing any of them before
// a Record is ever constructed. Optional upstream fields are pointers
// so that absent values stay NULL through staging and into the raw
// relation, where the schema builder coalesces them.
type Record struct {
	EventID   string
	Time      time.Time
	Latitude  float64
	Longitude float64
	Magnitude float64
	Depth     float64

	Place  string
	Region string

	// Optional upstream attributes.
	MagnitudeType *string
	NumStations   *int32
	AzimuthalGap  *float64
	MinDistance   *float64
	RMS           *float64
	HorizontalErr *float64
	DepthErr      *float64
	MagnitudeErr  *float64
	Network       *string
	Status        *string
	EventType     *string

	// Derived fields.
	MoonPhase         float64
	MoonPhaseName     string
	MagnitudeCategory string
	DepthCategory     string
	Year              int32
	Month             int32
	Day               int32
	Hour              int32
	DayOfWeek         int32
}

// Batch holds the records of one partition.
type Batch struct {
	Year    int
	Records []Record
}

// Stats summarizes a batch for tracker bookkeeping.
type Stats struct {
	RowCount int
	DateMin  time.Time
	DateMax  time.Time
}

// Stats computes batch statistics. An empty batch yields zero times.
func (b *Batch) Stats() Stats {
	st := Stats{RowCount: len(b.Records)}
	for i := range b.Records {
		t := b.Records[i].Time
		if st.DateMin.IsZero() || t.Before(st.DateMin) {
			st.DateMin = t
		}
		if t.After(st.DateMax) {
			st.DateMax = t
		}
	}
	return st
}

// DedupeByEventID removes intra-partition duplicate event IDs in place,
// keeping the first occurrence, and returns the number removed.
// Cross-partition duplicates are the merge step's concern.
func (b *Batch) DedupeByEventID() int {
	seen := make(map[string]struct{}, len(b.Records))
	out := b.Records[:0]
	removed := 0
	for i := range b.Records {
		id := b.Records[i].EventID
		if _, dup := seen[id]; dup {
			removed++
			continue
		}
		seen[id] = struct{}{}
		out = append(out, b.Records[i])
	}
	b.Records = out
	return removed
}
