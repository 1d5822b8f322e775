package rawbatch

import (
	"path/filepath"
	"testing"
	"time"

	qerrors "github.com/seismolab/quakemart/internal/errors"
)

func TestParseCompressionType(t *testing.T) {
	tests := []struct {
		in   string
		want CompressionType
	}{
		{"zstd", CompressionZstd},
		{"snappy", CompressionSnappy},
		{"gzip", CompressionGzip},
		{"lz4", CompressionLZ4},
		{"none", CompressionNone},
		{"", CompressionNone},
		{"bogus", CompressionZstd},
	}
	for _, tt := range tests {
		if got := ParseCompressionType(tt.in); got != tt.want {
			t.Errorf("ParseCompressionType(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestStagingFile(t *testing.T) {
	got := StagingFile("/data/staging", 2021)
	want := filepath.Join("/data/staging", "earthquakes_2021.parquet")
	if got != want {
		t.Errorf("StagingFile = %q, want %q", got, want)
	}
}

func TestWriteBatchReadBack(t *testing.T) {
	magType := "ml"
	stations := int32(24)
	gap := 103.5

	when := time.Date(2021, time.March, 4, 17, 41, 26, 0, time.UTC)
	withOptionals := makeRecord("ak0213abc", when)
	withOptionals.MagnitudeType = &magType
	withOptionals.NumStations = &stations
	withOptionals.AzimuthalGap = &gap
	withOptionals.MoonPhase = 0.42
	withOptionals.MoonPhaseName = "Waxing Gibbous"
	withOptionals.Year = 2021
	withOptionals.Month = 3
	withOptionals.Day = 4
	withOptionals.Hour = 17
	withOptionals.DayOfWeek = 4

	bare := makeRecord("ak0213xyz", when.Add(time.Hour))

	path := filepath.Join(t.TempDir(), "earthquakes_2021.parquet")
	b := &Batch{Year: 2021, Records: []Record{withOptionals, bare}}

	size, err := WriteBatch(path, b, DefaultOptions())
	if err != nil {
		t.Fatalf("WriteBatch() = %v", err)
	}
	if size <= 0 {
		t.Errorf("staged size = %d, want > 0", size)
	}

	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader() = %v", err)
	}
	defer r.Close()

	if n := r.NumRows(); n != 2 {
		t.Fatalf("NumRows() = %d, want 2", n)
	}

	records, err := r.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}

	got := records[0]
	if got.EventID != "ak0213abc" {
		t.Errorf("EventID = %q", got.EventID)
	}
	if !got.Time.Equal(when) {
		t.Errorf("Time = %v, want %v", got.Time, when)
	}
	if got.MagnitudeType == nil || *got.MagnitudeType != "ml" {
		t.Errorf("MagnitudeType = %v, want ml", got.MagnitudeType)
	}
	if got.NumStations == nil || *got.NumStations != 24 {
		t.Errorf("NumStations = %v, want 24", got.NumStations)
	}
	if got.AzimuthalGap == nil || *got.AzimuthalGap != 103.5 {
		t.Errorf("AzimuthalGap = %v, want 103.5", got.AzimuthalGap)
	}

	// Absent optionals stay nil through the file, they must not come
	// back as zero values.
	if records[1].MagnitudeType != nil || records[1].NumStations != nil {
		t.Errorf("optionals materialized on bare record: %+v", records[1])
	}
}

func TestWriterClosed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.parquet")
	w, err := NewWriter(path, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	err = w.Write([]Record{makeRecord("a", time.Now().UTC())})
	if !qerrors.Is(err, qerrors.ErrWriterClosed) {
		t.Errorf("Write after Close = %v, want ErrWriterClosed", err)
	}
	// Double close is harmless.
	if err := w.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
}

func TestReaderMissingFile(t *testing.T) {
	_, err := NewReader(filepath.Join(t.TempDir(), "absent.parquet"))
	if err == nil {
		t.Fatal("NewReader(absent) = nil error")
	}
}
