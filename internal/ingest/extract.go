package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	qerrors "github.com/seismolab/quakemart/internal/errors"
	"github.com/seismolab/quakemart/internal/logging"
)

// Row is one parsed CSV row keyed by canonical column name. Absent and
// empty upstream cells are both absent from the map.
type Row map[string]string

// columnMapping renames upstream catalog CSV headers to canonical
// snake_case names. Unknown headers pass through unchanged.
var columnMapping = map[string]string{
	"time":            "time",
	"latitude":        "latitude",
	"longitude":       "longitude",
	"depth":           "depth",
	"mag":             "magnitude",
	"magType":         "magnitude_type",
	"nst":             "num_stations",
	"gap":             "azimuthal_gap",
	"dmin":            "min_distance",
	"rms":             "rms",
	"net":             "network",
	"id":              "event_id",
	"updated":         "updated",
	"place":           "place",
	"type":            "event_type",
	"horizontalError": "horizontal_error",
	"depthError":      "depth_error",
	"magError":        "magnitude_error",
	"magNst":          "magnitude_stations",
	"status":          "status",
	"locationSource":  "location_source",
	"magSource":       "magnitude_source",
}

// ExtractStats reports one extraction pass.
type ExtractStats struct {
	// Rows is the number of parsed data rows.
	Rows int

	// Malformed counts rows skipped for a bad field count.
	Malformed int
}

// Extractor parses cached CSV files into rows.
type Extractor struct {
	log *slog.Logger
}

// NewExtractor creates an extractor.
func NewExtractor() *Extractor {
	return &Extractor{log: logging.Component("extract")}
}

// ExtractCSV parses one CSV file. The header row drives column naming,
// so upstream column reordering and additions are tolerated; rows whose
// field count disagrees with the header are skipped and counted. A
// header-only file yields zero rows without error.
func (e *Extractor) ExtractCSV(path string) ([]Row, ExtractStats, error) {
	var stats ExtractStats

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, stats, qerrors.NewNotFound("file", path)
		}
		return nil, stats, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err == io.EOF {
		return nil, stats, fmt.Errorf("%w: %s has no header row", qerrors.ErrMalformedRow, path)
	}
	if err != nil {
		return nil, stats, fmt.Errorf("read header of %s: %w", path, err)
	}

	columns := make([]string, len(header))
	for i, name := range header {
		if canonical, ok := columnMapping[name]; ok {
			columns[i] = canonical
		} else {
			columns[i] = name
		}
	}

	var rows []Row
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			stats.Malformed++
			continue
		}
		if len(record) != len(columns) {
			stats.Malformed++
			continue
		}

		row := make(Row, len(columns))
		for i, value := range record {
			if value != "" {
				row[columns[i]] = value
			}
		}
		rows = append(rows, row)
	}

	stats.Rows = len(rows)
	if stats.Malformed > 0 {
		e.log.Warn("skipped malformed rows",
			"file", filepath.Base(path), "count", stats.Malformed)
	}
	e.log.Info("extracted file",
		"file", filepath.Base(path), "rows", stats.Rows, "columns", len(columns))

	return rows, stats, nil
}

// ExtractAll parses multiple CSV files and concatenates their rows in
// file order. Empty files are skipped; stats are summed.
func (e *Extractor) ExtractAll(paths []string) ([]Row, ExtractStats, error) {
	var all []Row
	var total ExtractStats

	for _, path := range paths {
		rows, stats, err := e.ExtractCSV(path)
		if err != nil {
			return nil, total, err
		}
		total.Rows += stats.Rows
		total.Malformed += stats.Malformed
		all = append(all, rows...)
	}
	return all, total, nil
}
