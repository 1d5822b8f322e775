package rawbatch

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	qerrors "github.com/seismolab/quakemart/internal/errors"
)

// Options configures the parquet staging writer.
type Options struct {
	// Compression algorithm
	Compression CompressionType

	// RowGroupSize is the target number of rows per row group
	RowGroupSize int
}

// CompressionType represents a parquet compression algorithm.
type CompressionType int

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionZstd
	CompressionLZ4
	CompressionGzip
)

// DefaultOptions returns default staging options.
func DefaultOptions() Options {
	return Options{
		Compression:  CompressionZstd,
		RowGroupSize: 100000,
	}
}

// ParseCompressionType parses a compression type string.
func ParseCompressionType(s string) CompressionType {
	switch s {
	case "snappy":
		return CompressionSnappy
	case "zstd":
		return CompressionZstd
	case "lz4":
		return CompressionLZ4
	case "gzip":
		return CompressionGzip
	case "none", "":
		return CompressionNone
	default:
		return CompressionZstd
	}
}

// getCompression returns the parquet-go compression codec.
func getCompression(ct CompressionType) compress.Codec {
	switch ct {
	case CompressionSnappy:
		return &parquet.Snappy
	case CompressionZstd:
		return &parquet.Zstd
	case CompressionLZ4:
		return &parquet.Lz4Raw
	case CompressionGzip:
		return &parquet.Gzip
	default:
		return &parquet.Uncompressed
	}
}

// StagingFile returns the staging path for a partition.
func StagingFile(stagingDir string, year int) string {
	return filepath.Join(stagingDir, "earthquakes_"+strconv.Itoa(year)+".parquet")
}

// EventRow is the parquet representation of a Record. Column names match
// the raw relation contract, so DuckDB's read_parquet produces the
// per-partition table directly.
type EventRow struct {
	EventID   string  `parquet:"event_id,zstd"`
	Datetime  int64   `parquet:"datetime,timestamp"`
	Latitude  float64 `parquet:"latitude"`
	Longitude float64 `parquet:"longitude"`
	Magnitude float64 `parquet:"magnitude"`
	Depth     float64 `parquet:"depth"`

	Place  string `parquet:"place,zstd"`
	Region string `parquet:"region,zstd"`

	MagnitudeType *string  `parquet:"magnitude_type,optional,zstd"`
	NumStations   *int32   `parquet:"num_stations,optional"`
	AzimuthalGap  *float64 `parquet:"azimuthal_gap,optional"`
	MinDistance   *float64 `parquet:"min_distance,optional"`
	RMS           *float64 `parquet:"rms,optional"`
	HorizontalErr *float64 `parquet:"horizontal_error,optional"`
	DepthErr      *float64 `parquet:"depth_error,optional"`
	MagnitudeErr  *float64 `parquet:"magnitude_error,optional"`
	Network       *string  `parquet:"network,optional,zstd"`
	Status        *string  `parquet:"status,optional,zstd"`
	EventType     *string  `parquet:"event_type,optional,zstd"`

	MoonPhase         float64 `parquet:"moon_phase"`
	MoonPhaseName     string  `parquet:"moon_phase_name,zstd"`
	MagnitudeCategory string  `parquet:"magnitude_category,zstd"`
	DepthCategory     string  `parquet:"depth_category,zstd"`
	Year              int32   `parquet:"year"`
	Month             int32   `parquet:"month"`
	Day               int32   `parquet:"day"`
	Hour              int32   `parquet:"hour"`
	DayOfWeek         int32   `parquet:"day_of_week"`
}

// RecordToRow converts a Record to its parquet row.
func RecordToRow(r *Record) EventRow {
	return EventRow{
		EventID:   r.EventID,
		Datetime:  r.Time.UTC().UnixMilli(),
		Latitude:  r.Latitude,
		Longitude: r.Longitude,
		Magnitude: r.Magnitude,
		Depth:     r.Depth,

		Place:  r.Place,
		Region: r.Region,

		MagnitudeType: r.MagnitudeType,
		NumStations:   r.NumStations,
		AzimuthalGap:  r.AzimuthalGap,
		MinDistance:   r.MinDistance,
		RMS:           r.RMS,
		HorizontalErr: r.HorizontalErr,
		DepthErr:      r.DepthErr,
		MagnitudeErr:  r.MagnitudeErr,
		Network:       r.Network,
		Status:        r.Status,
		EventType:     r.EventType,

		MoonPhase:         r.MoonPhase,
		MoonPhaseName:     r.MoonPhaseName,
		MagnitudeCategory: r.MagnitudeCategory,
		DepthCategory:     r.DepthCategory,
		Year:              r.Year,
		Month:             r.Month,
		Day:               r.Day,
		Hour:              r.Hour,
		DayOfWeek:         r.DayOfWeek,
	}
}

// RowToRecord converts a parquet row back to a Record.
func RowToRecord(row *EventRow) Record {
	return Record{
		EventID:   row.EventID,
		Time:      time.UnixMilli(row.Datetime).UTC(),
		Latitude:  row.Latitude,
		Longitude: row.Longitude,
		Magnitude: row.Magnitude,
		Depth:     row.Depth,

		Place:  row.Place,
		Region: row.Region,

		MagnitudeType: row.MagnitudeType,
		NumStations:   row.NumStations,
		AzimuthalGap:  row.AzimuthalGap,
		MinDistance:   row.MinDistance,
		RMS:           row.RMS,
		HorizontalErr: row.HorizontalErr,
		DepthErr:      row.DepthErr,
		MagnitudeErr:  row.MagnitudeErr,
		Network:       row.Network,
		Status:        row.Status,
		EventType:     row.EventType,

		MoonPhase:         row.MoonPhase,
		MoonPhaseName:     row.MoonPhaseName,
		MagnitudeCategory: row.MagnitudeCategory,
		DepthCategory:     row.DepthCategory,
		Year:              row.Year,
		Month:             row.Month,
		Day:               row.Day,
		Hour:              row.Hour,
		DayOfWeek:         row.DayOfWeek,
	}
}

// Writer writes a partition batch to a parquet staging file.
type Writer struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	writer   *parquet.GenericWriter[EventRow]
	rowCount int64
	closed   bool
}

// NewWriter creates a staging writer at path.
func NewWriter(path string, opts Options) (*Writer, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}

	writerOpts := []parquet.WriterOption{
		parquet.Compression(getCompression(opts.Compression)),
	}

	return &Writer{
		path:   path,
		file:   f,
		writer: parquet.NewGenericWriter[EventRow](f, writerOpts...),
	}, nil
}

// Write appends records to the staging file.
func (w *Writer) Write(records []Record) error {
	if len(records) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return qerrors.ErrWriterClosed
	}

	rows := make([]EventRow, len(records))
	for i := range records {
		rows[i] = RecordToRow(&records[i])
	}

	n, err := w.writer.Write(rows)
	if err != nil {
		return fmt.Errorf("write rows: %w", err)
	}

	w.rowCount += int64(n)
	return nil
}

// Close flushes and closes the staging file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("close writer: %w", err)
	}

	return w.file.Close()
}

// RowCount returns the number of rows written.
func (w *Writer) RowCount() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rowCount
}

// Path returns the staging file path.
func (w *Writer) Path() string {
	return w.path
}

// WriteBatch stages a whole batch and returns the file size in bytes.
func WriteBatch(path string, b *Batch, opts Options) (int64, error) {
	w, err := NewWriter(path, opts)
	if err != nil {
		return 0, err
	}
	if err := w.Write(b.Records); err != nil {
		w.Close()
		return 0, err
	}
	if err := w.Close(); err != nil {
		return 0, err
	}

	stat, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat staging file: %w", err)
	}
	return stat.Size(), nil
}

// Reader reads a parquet staging file.
type Reader struct {
	file   *os.File
	reader *parquet.GenericReader[EventRow]
}

// NewReader opens a staging file for reading.
func NewReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	return &Reader{
		file:   f,
		reader: parquet.NewGenericReader[EventRow](f),
	}, nil
}

// ReadAll reads every record in the file.
func (r *Reader) ReadAll() ([]Record, error) {
	numRows := r.reader.NumRows()
	rows := make([]EventRow, numRows)

	n, err := r.reader.Read(rows)
	if err != nil && err != io.EOF {
		return nil, err
	}

	records := make([]Record, n)
	for i := 0; i < n; i++ {
		records[i] = RowToRecord(&rows[i])
	}

	return records, nil
}

// NumRows returns the total number of rows in the file.
func (r *Reader) NumRows() int64 {
	return r.reader.NumRows()
}

// Close closes the reader.
func (r *Reader) Close() error {
	if err := r.reader.Close(); err != nil {
		r.file.Close()
		return fmt.Errorf("close reader: %w", err)
	}
	return r.file.Close()
}
