package warehouse

import (
	"context"
	"fmt"
	"strings"

	"github.com/seismolab/quakemart/internal/catalog"
)

// MergeReport summarizes a partition merge so callers can detect silent
// data loss.
type MergeReport struct {
	// TablesMerged lists the years whose relations contributed rows.
	TablesMerged []int

	// RowsIn is the total row count across contributing relations.
	RowsIn int64

	// RowsOut is the row count of the unified raw table after dedup.
	RowsOut int64

	// Duplicates is RowsIn - RowsOut.
	Duplicates int64
}

// MergePartitions folds the per-year raw relations for the given years
// into the unified raw table, deduplicating on event_id. The newest
// record per event_id wins (ORDER BY event_id, datetime DESC). Years
// whose relation is absent or empty are skipped, not errors.
//
// Rows already in the unified table for years outside the merged set
// are carried forward, so partitions whose per-year relations were
// cleaned up by an earlier run survive the merge.
func (s *Store) MergePartitions(ctx context.Context, years []int) (MergeReport, error) {
	var report MergeReport

	var selects []string
	for _, year := range years {
		table := catalog.PartitionTable(year)
		n, err := s.RowCount(ctx, table)
		if err != nil || n == 0 {
			continue
		}
		report.TablesMerged = append(report.TablesMerged, year)
		report.RowsIn += n
		selects = append(selects, "SELECT * FROM "+quoteIdent(table))
	}

	if carried, sel := s.carriedRows(ctx, report.TablesMerged); sel != "" {
		report.RowsIn += carried
		selects = append(selects, sel)
	}

	if len(selects) == 0 {
		s.log.Warn("no partition tables to merge", "requested", len(years))
		return report, nil
	}

	union := strings.Join(selects, " UNION ALL ")
	stmt := fmt.Sprintf(
		`CREATE OR REPLACE TABLE %s AS
		SELECT DISTINCT ON (event_id) *
		FROM (%s)
		ORDER BY event_id, datetime DESC`,
		quoteIdent(catalog.RawEvents.Name()), union)

	if err := s.Exec(ctx, stmt); err != nil {
		return report, err
	}

	out, err := s.RowCount(ctx, catalog.RawEvents.Name())
	if err != nil {
		return report, err
	}
	report.RowsOut = out
	report.Duplicates = report.RowsIn - out

	s.log.Info("merged partitions",
		"tables", len(report.TablesMerged),
		"rows_in", report.RowsIn,
		"rows_out", report.RowsOut,
		"duplicates", report.Duplicates)

	return report, nil
}

// carriedRows returns the count of unified raw rows outside the merged
// year set, plus the SELECT carrying them into the union. An absent
// unified table or zero carried rows yield an empty select.
func (s *Store) carriedRows(ctx context.Context, merged []int) (int64, string) {
	raw := catalog.RawEvents.Name()
	if !s.Exists(ctx, raw) {
		return 0, ""
	}

	cond := ""
	if len(merged) > 0 {
		parts := make([]string, len(merged))
		for i, year := range merged {
			parts[i] = fmt.Sprintf("%d", year)
		}
		cond = " WHERE year NOT IN (" + strings.Join(parts, ", ") + ")"
	}

	var n int64
	err := s.db.QueryRowContext(ctx,
		"SELECT count(*) FROM "+quoteIdent(raw)+cond).Scan(&n)
	if err != nil || n == 0 {
		return 0, ""
	}
	return n, "SELECT * FROM " + quoteIdent(raw) + cond
}

// DropPartitionTables removes all per-year raw relations, returning the
// number dropped. It is called after a successful merge.
func (s *Store) DropPartitionTables(ctx context.Context) (int, error) {
	names, err := s.TableNames(ctx)
	if err != nil {
		return 0, err
	}

	dropped := 0
	for _, name := range names {
		if _, ok := catalog.ParsePartitionTable(name); !ok {
			continue
		}
		if err := s.Drop(ctx, name); err != nil {
			return dropped, err
		}
		dropped++
	}

	if dropped > 0 {
		s.log.Info("dropped partition tables", "count", dropped)
	}
	return dropped, nil
}
