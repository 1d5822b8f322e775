// Package tracker decides which partitions still need processing and
// keeps the persisted load state honest.
//
// State lives in a single JSON metadata file owned exclusively by this
// package. The file records which calendar years have been merged and
// per-year load details. The live warehouse is always ground truth:
// Validate probes it and corrects the metadata to match observed
// reality, never the reverse. A corrupt or missing metadata file falls
// back to an empty state rather than aborting a run.
package tracker

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/seismolab/quakemart/internal/catalog"
	"github.com/seismolab/quakemart/internal/logging"
)

// LiveStore is the warehouse surface the tracker probes during
// validation. Probes never fail: an erroring backing relation reads as
// absent.
type LiveStore interface {
	Exists(ctx context.Context, table string) bool
	RowCount(ctx context.Context, table string) (int64, error)

	// PartitionRows counts the unified raw rows belonging to one
	// partition year.
	PartitionRows(ctx context.Context, year int) (int64, error)
}

// Details records what was loaded for one partition.
type Details struct {
	RowCount      int64     `json:"row_count"`
	FileSizeBytes int64     `json:"file_size_bytes"`
	DateRange     [2]string `json:"date_range"`
	LoadedAt      string    `json:"loaded_at"`
}

// metadata is the persisted document. Field layout is part of the
// on-disk contract.
type metadata struct {
	LoadedYears []int              `json:"loaded_years"`
	YearDetails map[string]Details `json:"year_details"`
	LastUpdated string             `json:"last_updated"`
	CreatedAt   string             `json:"created_at,omitempty"`
}

func emptyMetadata() *metadata {
	return &metadata{
		LoadedYears: []int{},
		YearDetails: map[string]Details{},
	}
}

// Tracker manages incremental load state for year partitions.
type Tracker struct {
	path string
	log  *slog.Logger
	now  func() time.Time
}

// New creates a tracker backed by the metadata file at path.
func New(path string) *Tracker {
	return &Tracker{
		path: path,
		log:  logging.Component("tracker"),
		now:  time.Now,
	}
}

// LoadedPartitions returns the years the metadata claims are loaded,
// ascending. No I/O validation is performed; use Validate for that.
func (t *Tracker) LoadedPartitions() []int {
	meta := t.load()
	years := make([]int, len(meta.LoadedYears))
	copy(years, meta.LoadedYears)
	sort.Ints(years)
	return years
}

// Validate probes the live store for each claimed partition and purges
// the ones whose backing relation is absent or empty, persisting the
// correction. It returns the corrected ascending year list.
func (t *Tracker) Validate(ctx context.Context, store LiveStore) []int {
	meta := t.load()

	var actual, missing []int
	for _, year := range meta.LoadedYears {
		if t.probe(ctx, store, year) {
			actual = append(actual, year)
		} else {
			missing = append(missing, year)
		}
	}
	sort.Ints(actual)

	if len(missing) > 0 {
		t.log.Warn("metadata claims partitions with no live backing data",
			"missing", missing)

		meta.LoadedYears = actual
		for _, year := range missing {
			delete(meta.YearDetails, strconv.Itoa(year))
		}
		if err := t.save(meta); err != nil {
			t.log.Error("persist metadata correction", "error", err)
		}
	}

	return actual
}

// probe reports whether a partition has non-empty live backing data:
// either a still-standing per-year staging table, or rows for that
// year in the unified raw table after the staging tables were merged
// away.
func (t *Tracker) probe(ctx context.Context, store LiveStore, year int) bool {
	table := catalog.PartitionTable(year)
	if store.Exists(ctx, table) {
		if n, err := store.RowCount(ctx, table); err == nil && n > 0 {
			return true
		}
	}
	n, err := store.PartitionRows(ctx, year)
	return err == nil && n > 0
}

// PartitionsToProcess returns requested minus validated, ascending and
// deduplicated.
func (t *Tracker) PartitionsToProcess(ctx context.Context, store LiveStore, requested []int) []int {
	loaded := make(map[int]struct{})
	for _, year := range t.Validate(ctx, store) {
		loaded[year] = struct{}{}
	}

	seen := make(map[int]struct{}, len(requested))
	var todo []int
	for _, year := range requested {
		if _, dup := seen[year]; dup {
			continue
		}
		seen[year] = struct{}{}
		if _, ok := loaded[year]; !ok {
			todo = append(todo, year)
		}
	}
	sort.Ints(todo)

	if len(todo) > 0 {
		t.log.Info("partitions to process", "years", todo)
	} else {
		t.log.Info("all requested partitions already loaded")
	}
	return todo
}

// RecordPartition stores load details for a year. LoadedAt is stamped
// here.
func (t *Tracker) RecordPartition(year int, d Details) error {
	meta := t.load()
	d.LoadedAt = t.now().UTC().Format(time.RFC3339)
	meta.YearDetails[strconv.Itoa(year)] = d
	return t.save(meta)
}

// MarkLoaded marks a year as loaded. Marking an already-present year is
// a no-op beyond re-sorting.
func (t *Tracker) MarkLoaded(year int) error {
	meta := t.load()
	for _, y := range meta.LoadedYears {
		if y == year {
			sort.Ints(meta.LoadedYears)
			return t.save(meta)
		}
	}
	meta.LoadedYears = append(meta.LoadedYears, year)
	sort.Ints(meta.LoadedYears)

	t.log.Info("marked partition loaded", "year", year)
	return t.save(meta)
}

// PartitionDetails returns the recorded details for a year, if any.
func (t *Tracker) PartitionDetails(year int) (Details, bool) {
	meta := t.load()
	d, ok := meta.YearDetails[strconv.Itoa(year)]
	return d, ok
}

// ClearPartition removes a year from the tracked state so it will be
// reprocessed on the next run.
func (t *Tracker) ClearPartition(year int) error {
	meta := t.load()

	kept := meta.LoadedYears[:0]
	for _, y := range meta.LoadedYears {
		if y != year {
			kept = append(kept, y)
		}
	}
	meta.LoadedYears = kept
	delete(meta.YearDetails, strconv.Itoa(year))

	t.log.Warn("cleared partition, will be reprocessed", "year", year)
	return t.save(meta)
}

// Reset clears all tracked state.
func (t *Tracker) Reset() error {
	t.log.Warn("resetting all load metadata")
	return t.save(emptyMetadata())
}

// load reads the metadata file. Missing or unreadable files yield an
// empty state.
func (t *Tracker) load() *metadata {
	data, err := os.ReadFile(t.path)
	if err != nil {
		if !os.IsNotExist(err) {
			t.log.Error("read metadata", "error", err)
		}
		meta := emptyMetadata()
		meta.CreatedAt = t.now().UTC().Format(time.RFC3339)
		return meta
	}

	meta := emptyMetadata()
	if err := json.Unmarshal(data, meta); err != nil {
		t.log.Error("metadata corrupt, starting from empty state", "error", err)
		return emptyMetadata()
	}
	if meta.YearDetails == nil {
		meta.YearDetails = map[string]Details{}
	}
	if meta.LoadedYears == nil {
		meta.LoadedYears = []int{}
	}
	sort.Ints(meta.LoadedYears)
	return meta
}

// save writes the metadata file atomically (temp file + rename).
func (t *Tracker) save(meta *metadata) error {
	meta.LastUpdated = t.now().UTC().Format(time.RFC3339)

	if err := os.MkdirAll(filepath.Dir(t.path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}

	tmp := t.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, t.path)
}
