package tracker

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/seismolab/quakemart/internal/catalog"
)

// fakeStore is an in-memory LiveStore: table name -> row count, plus
// unified raw rows per year.
type fakeStore struct {
	tables  map[string]int64
	unified map[int]int64
}

func (f *fakeStore) Exists(ctx context.Context, table string) bool {
	_, ok := f.tables[table]
	return ok
}

func (f *fakeStore) RowCount(ctx context.Context, table string) (int64, error) {
	return f.tables[table], nil
}

func (f *fakeStore) PartitionRows(ctx context.Context, year int) (int64, error) {
	return f.unified[year], nil
}

func storeWithPartitions(years ...int) *fakeStore {
	f := &fakeStore{tables: map[string]int64{}, unified: map[int]int64{}}
	for _, y := range years {
		f.tables[catalog.PartitionTable(y)] = 100
	}
	return f
}

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "metadata.json"))
}

func equalYears(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestMarkLoadedAndLoadedPartitions(t *testing.T) {
	tr := newTestTracker(t)

	for _, y := range []int{2022, 2020, 2021, 2020} {
		if err := tr.MarkLoaded(y); err != nil {
			t.Fatalf("MarkLoaded(%d) = %v", y, err)
		}
	}

	got := tr.LoadedPartitions()
	if !equalYears(got, []int{2020, 2021, 2022}) {
		t.Errorf("LoadedPartitions() = %v, want [2020 2021 2022]", got)
	}
}

func TestValidatePurgesMissing(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	for _, y := range []int{2020, 2021, 2023} {
		if err := tr.MarkLoaded(y); err != nil {
			t.Fatal(err)
		}
		if err := tr.RecordPartition(y, Details{RowCount: 10}); err != nil {
			t.Fatal(err)
		}
	}

	// 2021 has no live backing data.
	store := storeWithPartitions(2020, 2023)
	got := tr.Validate(ctx, store)
	if !equalYears(got, []int{2020, 2023}) {
		t.Fatalf("Validate() = %v, want [2020 2023]", got)
	}

	// The correction is persisted: a fresh tracker over the same file
	// sees the purged state.
	fresh := New(tr.path)
	if got := fresh.LoadedPartitions(); !equalYears(got, []int{2020, 2023}) {
		t.Errorf("persisted LoadedPartitions() = %v, want [2020 2023]", got)
	}
	if _, ok := fresh.PartitionDetails(2021); ok {
		t.Error("details for purged partition survived")
	}
}

func TestValidateAcceptsMergedPartitions(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	if err := tr.MarkLoaded(2019); err != nil {
		t.Fatal(err)
	}

	// Per-year table already merged away; rows live in the unified
	// relation.
	store := &fakeStore{
		tables:  map[string]int64{catalog.RawEvents.Name(): 500},
		unified: map[int]int64{2019: 500},
	}

	if got := tr.Validate(ctx, store); !equalYears(got, []int{2019}) {
		t.Errorf("Validate() = %v, want [2019]", got)
	}
}

func TestValidateRejectsEmptyPartitionTable(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	if err := tr.MarkLoaded(2020); err != nil {
		t.Fatal(err)
	}

	store := storeWithPartitions(2020)
	store.tables[catalog.PartitionTable(2020)] = 0

	if got := tr.Validate(ctx, store); len(got) != 0 {
		t.Errorf("Validate() = %v, want empty for zero-row backing table", got)
	}
}

func TestPartitionsToProcess(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	for _, y := range []int{2020, 2022} {
		if err := tr.MarkLoaded(y); err != nil {
			t.Fatal(err)
		}
	}
	store := storeWithPartitions(2020, 2022)

	tests := []struct {
		name      string
		requested []int
		want      []int
	}{
		{"missing years only", []int{2020, 2021, 2022, 2023}, []int{2021, 2023}},
		{"all loaded", []int{2020, 2022}, nil},
		{"duplicates collapse", []int{2024, 2024, 2021}, []int{2021, 2024}},
		{"empty request", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tr.PartitionsToProcess(ctx, store, tt.requested)
			if !equalYears(got, tt.want) {
				t.Errorf("PartitionsToProcess(%v) = %v, want %v", tt.requested, got, tt.want)
			}
		})
	}
}

func TestRecordAndClearPartition(t *testing.T) {
	tr := newTestTracker(t)

	d := Details{
		RowCount:      1234,
		FileSizeBytes: 56789,
		DateRange:     [2]string{"2020-01-01", "2020-12-31"},
	}
	if err := tr.RecordPartition(2020, d); err != nil {
		t.Fatal(err)
	}
	if err := tr.MarkLoaded(2020); err != nil {
		t.Fatal(err)
	}

	got, ok := tr.PartitionDetails(2020)
	if !ok {
		t.Fatal("PartitionDetails(2020) not found")
	}
	if got.RowCount != 1234 || got.FileSizeBytes != 56789 {
		t.Errorf("details = %+v", got)
	}
	if got.LoadedAt == "" {
		t.Error("LoadedAt not stamped")
	}

	if err := tr.ClearPartition(2020); err != nil {
		t.Fatal(err)
	}
	if len(tr.LoadedPartitions()) != 0 {
		t.Error("partition survived ClearPartition")
	}
	if _, ok := tr.PartitionDetails(2020); ok {
		t.Error("details survived ClearPartition")
	}
}

func TestCorruptMetadataFallsBackToEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "metadata.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	tr := New(path)
	if got := tr.LoadedPartitions(); len(got) != 0 {
		t.Errorf("LoadedPartitions() = %v, want empty for corrupt file", got)
	}

	// Still usable for writes afterwards.
	if err := tr.MarkLoaded(2020); err != nil {
		t.Fatalf("MarkLoaded after corrupt load = %v", err)
	}
	if got := tr.LoadedPartitions(); !equalYears(got, []int{2020}) {
		t.Errorf("LoadedPartitions() = %v, want [2020]", got)
	}
}

func TestReset(t *testing.T) {
	tr := newTestTracker(t)
	if err := tr.MarkLoaded(2020); err != nil {
		t.Fatal(err)
	}
	if err := tr.Reset(); err != nil {
		t.Fatal(err)
	}
	if len(tr.LoadedPartitions()) != 0 {
		t.Error("state survived Reset")
	}
}

func TestSummaryGaps(t *testing.T) {
	tr := newTestTracker(t)

	for _, y := range []int{2018, 2019, 2022, 2024} {
		if err := tr.MarkLoaded(y); err != nil {
			t.Fatal(err)
		}
		if err := tr.RecordPartition(y, Details{RowCount: 100}); err != nil {
			t.Fatal(err)
		}
	}

	s := tr.Summary()
	if s.TotalYears != 4 {
		t.Errorf("TotalYears = %d, want 4", s.TotalYears)
	}
	if s.Range == nil || s.Range.First != 2018 || s.Range.Last != 2024 {
		t.Errorf("Range = %+v, want 2018-2024", s.Range)
	}
	if s.TotalEvents != 400 {
		t.Errorf("TotalEvents = %d, want 400", s.TotalEvents)
	}

	wantGaps := []YearRange{{First: 2020, Last: 2021}, {First: 2023, Last: 2023}}
	if len(s.Gaps) != len(wantGaps) {
		t.Fatalf("Gaps = %v, want %v", s.Gaps, wantGaps)
	}
	for i, g := range s.Gaps {
		if g != wantGaps[i] {
			t.Fatalf("Gaps = %v, want %v", s.Gaps, wantGaps)
		}
	}
}

func TestSummaryEmpty(t *testing.T) {
	tr := newTestTracker(t)
	s := tr.Summary()
	if s.TotalYears != 0 || s.Range != nil || len(s.Gaps) != 0 {
		t.Errorf("Summary() = %+v, want empty", s)
	}
}
