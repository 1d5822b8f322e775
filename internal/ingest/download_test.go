package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/seismolab/quakemart/internal/config"
	qerrors "github.com/seismolab/quakemart/internal/errors"
)

func newTestDownloader(t *testing.T, baseURL string) *Downloader {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Source.BaseURL = baseURL
	cfg.Paths.RawDir = t.TempDir()
	cfg.ETL.RetryAttempts = 3
	cfg.ETL.RetryDelay = time.Millisecond
	return NewDownloader(cfg)
}

func TestFetchYearDownloadsAndCaches(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Query().Get("starttime") != "2020-01-01" {
			t.Errorf("starttime = %q", r.URL.Query().Get("starttime"))
		}
		if r.URL.Query().Get("endtime") != "2021-01-01" {
			t.Errorf("endtime = %q", r.URL.Query().Get("endtime"))
		}
		if r.URL.Query().Get("format") != "csv" {
			t.Errorf("format = %q", r.URL.Query().Get("format"))
		}
		w.Write([]byte("time,mag\n2020-01-01T00:00:00.000Z,4.2\n"))
	}))
	defer srv.Close()

	d := newTestDownloader(t, srv.URL)
	paths, err := d.FetchYear(context.Background(), 2020)
	if err != nil {
		t.Fatalf("FetchYear() = %v", err)
	}
	if len(paths) != 1 {
		t.Fatalf("len(paths) = %d, want 1", len(paths))
	}
	if _, err := os.Stat(paths[0]); err != nil {
		t.Fatalf("downloaded file missing: %v", err)
	}

	// Second fetch reuses the cache.
	if _, err := d.FetchYear(context.Background(), 2020); err != nil {
		t.Fatal(err)
	}
	if hits.Load() != 1 {
		t.Errorf("server hits = %d, want 1 (cache reuse)", hits.Load())
	}

	// Force re-downloads.
	d.Force = true
	if _, err := d.FetchYear(context.Background(), 2020); err != nil {
		t.Fatal(err)
	}
	if hits.Load() != 2 {
		t.Errorf("server hits = %d, want 2 after force", hits.Load())
	}
}

func TestFetchYearRetriesTransientFailure(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("time,mag\n"))
	}))
	defer srv.Close()

	d := newTestDownloader(t, srv.URL)
	paths, err := d.FetchYear(context.Background(), 2020)
	if err != nil {
		t.Fatalf("FetchYear() = %v, want success on third attempt", err)
	}
	if hits.Load() != 3 {
		t.Errorf("server hits = %d, want 3", hits.Load())
	}
	if len(paths) != 1 {
		t.Errorf("len(paths) = %d", len(paths))
	}
}

func TestFetchYearExhaustsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := newTestDownloader(t, srv.URL)
	_, err := d.FetchYear(context.Background(), 2020)
	if !qerrors.IsRetriable(err) {
		t.Errorf("FetchYear() = %v, want ErrDownloadFailed in chain", err)
	}

	// No truncated cache entry left behind.
	files, _ := d.CachedFiles()
	if len(files) != 0 {
		t.Errorf("cached files after failure: %v", files)
	}
}

func TestFetchYearChunked(t *testing.T) {
	var starts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		starts = append(starts, r.URL.Query().Get("starttime"))
		w.Write([]byte("time,mag\n"))
	}))
	defer srv.Close()

	d := newTestDownloader(t, srv.URL)
	d.chunkMonths = 4

	paths, err := d.FetchYear(context.Background(), 2021)
	if err != nil {
		t.Fatalf("FetchYear() = %v", err)
	}
	if len(paths) != 3 {
		t.Fatalf("len(paths) = %d, want 3 chunks", len(paths))
	}
	want := []string{"2021-01-01", "2021-05-01", "2021-09-01"}
	for i, s := range starts {
		if s != want[i] {
			t.Errorf("chunk %d starttime = %q, want %q", i, s, want[i])
		}
	}
}

func TestYearChunks(t *testing.T) {
	tests := []struct {
		months int
		want   int
	}{
		{12, 1},
		{6, 2},
		{4, 3},
		{1, 12},
		{0, 1}, // falls back to a single chunk
	}
	for _, tt := range tests {
		chunks := yearChunks(2020, tt.months)
		if len(chunks) != tt.want {
			t.Errorf("yearChunks(2020, %d) = %d chunks, want %d", tt.months, len(chunks), tt.want)
			continue
		}
		first := chunks[0]
		if !first.start.Equal(time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)) {
			t.Errorf("first chunk starts %v", first.start)
		}
		last := chunks[len(chunks)-1]
		if !last.end.Equal(time.Date(2021, time.January, 1, 0, 0, 0, 0, time.UTC)) {
			t.Errorf("last chunk ends %v, want next Jan 1", last.end)
		}
	}
}

func TestFetchYearContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := newTestDownloader(t, srv.URL)
	d.retryDelay = time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	_, err := d.FetchYear(ctx, 2020)
	if err == nil {
		t.Fatal("FetchYear(cancelled) = nil error")
	}
	if time.Since(start) > 5*time.Second {
		t.Error("cancelled fetch waited out the retry delay")
	}
}

func TestFeedSourceIgnoresYear(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("time,mag\n"))
	}))
	defer srv.Close()

	cfg := config.DefaultConfig()
	cfg.Source.UseAPI = false
	cfg.Source.FeedURL = srv.URL + "/all_month.csv"
	cfg.Paths.RawDir = t.TempDir()
	cfg.ETL.RetryDelay = time.Millisecond
	d := NewDownloader(cfg)

	paths, err := d.FetchYear(context.Background(), 1999)
	if err != nil {
		t.Fatalf("FetchYear() = %v", err)
	}
	if filepath.Base(paths[0]) != "all_month.csv" {
		t.Errorf("feed cache name = %q, want all_month.csv", filepath.Base(paths[0]))
	}
}
