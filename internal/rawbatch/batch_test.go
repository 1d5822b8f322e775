package rawbatch

import (
	"testing"
	"time"
)

func makeRecord(id string, when time.Time) Record {
	return Record{
		EventID:   id,
		Time:      when,
		Latitude:  61.2,
		Longitude: -147.7,
		Magnitude: 4.5,
		Depth:     35.0,
		Place:     "63 km SE of Adak, Alaska",
		Region:    "Adak, Alaska",

		MagnitudeCategory: "Light",
		DepthCategory:     "Shallow",
	}
}

func TestBatchStats(t *testing.T) {
	base := time.Date(2020, time.June, 1, 12, 0, 0, 0, time.UTC)
	b := &Batch{
		Year: 2020,
		Records: []Record{
			makeRecord("a", base.AddDate(0, 1, 0)),
			makeRecord("b", base),
			makeRecord("c", base.AddDate(0, 3, 2)),
		},
	}

	st := b.Stats()
	if st.RowCount != 3 {
		t.Errorf("RowCount = %d, want 3", st.RowCount)
	}
	if !st.DateMin.Equal(base) {
		t.Errorf("DateMin = %v, want %v", st.DateMin, base)
	}
	if want := base.AddDate(0, 3, 2); !st.DateMax.Equal(want) {
		t.Errorf("DateMax = %v, want %v", st.DateMax, want)
	}
}

func TestBatchStatsEmpty(t *testing.T) {
	b := &Batch{Year: 2020}
	st := b.Stats()
	if st.RowCount != 0 || !st.DateMin.IsZero() || !st.DateMax.IsZero() {
		t.Errorf("Stats() = %+v, want zero values", st)
	}
}

func TestDedupeByEventID(t *testing.T) {
	when := time.Date(2020, time.June, 1, 0, 0, 0, 0, time.UTC)

	first := makeRecord("dup", when)
	first.Magnitude = 5.0
	second := makeRecord("dup", when.Add(time.Hour))
	second.Magnitude = 6.0

	b := &Batch{
		Year: 2020,
		Records: []Record{
			first,
			makeRecord("solo", when),
			second,
		},
	}

	removed := b.DedupeByEventID()
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if len(b.Records) != 2 {
		t.Fatalf("len(Records) = %d, want 2", len(b.Records))
	}
	// First occurrence wins.
	if b.Records[0].EventID != "dup" || b.Records[0].Magnitude != 5.0 {
		t.Errorf("kept record = %+v, want the first occurrence", b.Records[0])
	}
}

func TestDedupeNoDuplicates(t *testing.T) {
	when := time.Now().UTC()
	b := &Batch{Records: []Record{makeRecord("a", when), makeRecord("b", when)}}
	if removed := b.DedupeByEventID(); removed != 0 {
		t.Errorf("removed = %d, want 0", removed)
	}
	if len(b.Records) != 2 {
		t.Errorf("len(Records) = %d, want 2", len(b.Records))
	}
}
