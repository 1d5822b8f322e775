// Package ingest acquires, parses and enriches raw earthquake events.
//
// A partition flows through three collaborators: the Downloader fetches
// CSV files from the upstream catalog into the raw cache, the Extractor
// parses them into loosely typed rows, and the Transformer validates
// and enriches those rows into a staging batch. Each stage reports its
// row accounting so a run can state exactly where data was lost.
package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/seismolab/quakemart/internal/config"
	qerrors "github.com/seismolab/quakemart/internal/errors"
	"github.com/seismolab/quakemart/internal/logging"
)

// Downloader fetches raw CSV files from the upstream event catalog.
// Downloaded files are cached in the raw directory and reused until
// forced; a calendar year maps to one or more files depending on the
// configured chunk size.
type Downloader struct {
	client *http.Client
	source config.SourceConfig
	rawDir string

	retryAttempts int
	retryDelay    time.Duration
	chunkMonths   int

	// Force re-downloads even when a cached file exists.
	Force bool

	log *slog.Logger
}

// NewDownloader creates a downloader from the application configuration.
func NewDownloader(cfg *config.Config) *Downloader {
	return &Downloader{
		client:        &http.Client{Timeout: cfg.ETL.DownloadTimeout},
		source:        cfg.Source,
		rawDir:        cfg.Paths.RawDir,
		retryAttempts: cfg.ETL.RetryAttempts,
		retryDelay:    cfg.ETL.RetryDelay,
		chunkMonths:   cfg.ETL.ChunkMonths,
		log:           logging.Component("download"),
	}
}

// FetchYear downloads the event CSVs covering one calendar year and
// returns their paths in chunk order. With the feed source configured
// it ignores the year and fetches the fixed summary feed instead.
func (d *Downloader) FetchYear(ctx context.Context, year int) ([]string, error) {
	if !d.source.UseAPI {
		path, err := d.fetchFile(ctx, d.source.FeedURL, d.feedCachePath())
		if err != nil {
			return nil, err
		}
		return []string{path}, nil
	}

	var paths []string
	for _, ch := range yearChunks(year, d.chunkMonths) {
		name := fmt.Sprintf("earthquakes_%s_%s.csv",
			ch.start.Format("20060102"), ch.end.Format("20060102"))
		path, err := d.fetchFile(ctx, d.queryURL(ch), filepath.Join(d.rawDir, name))
		if err != nil {
			return nil, fmt.Errorf("year %d chunk %s: %w", year, ch.start.Format("2006-01"), err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// chunk is a half-open [start, end) date range.
type chunk struct {
	start, end time.Time
}

// yearChunks splits a calendar year into months-sized chunks. The last
// chunk always ends at January 1 of the following year.
func yearChunks(year, months int) []chunk {
	if months < 1 {
		months = 12
	}
	yearEnd := time.Date(year+1, time.January, 1, 0, 0, 0, 0, time.UTC)

	var chunks []chunk
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	for start.Before(yearEnd) {
		end := start.AddDate(0, months, 0)
		if end.After(yearEnd) {
			end = yearEnd
		}
		chunks = append(chunks, chunk{start: start, end: end})
		start = end
	}
	return chunks
}

// queryURL builds the event query URL for one chunk, merging the
// configured extra parameters. format=csv is always forced.
func (d *Downloader) queryURL(ch chunk) string {
	params := url.Values{}
	for key, value := range d.source.Params {
		params.Set(key, value)
	}
	params.Set("format", "csv")
	params.Set("starttime", ch.start.Format("2006-01-02"))
	params.Set("endtime", ch.end.Format("2006-01-02"))
	return d.source.BaseURL + "?" + params.Encode()
}

func (d *Downloader) feedCachePath() string {
	name := filepath.Base(d.source.FeedURL)
	if filepath.Ext(name) == "" {
		name = "earthquakes.csv"
	}
	return filepath.Join(d.rawDir, name)
}

// fetchFile downloads url to path, reusing an existing cached file
// unless Force is set. Retries are spaced by the configured delay and
// abandoned when the context is done.
func (d *Downloader) fetchFile(ctx context.Context, fileURL, path string) (string, error) {
	if !d.Force {
		if fi, err := os.Stat(path); err == nil && fi.Size() > 0 {
			d.log.Info("using cached file", "file", filepath.Base(path), "bytes", fi.Size())
			return path, nil
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("create raw directory: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= d.retryAttempts; attempt++ {
		if err := d.fetchOnce(ctx, fileURL, path); err != nil {
			lastErr = err
			d.log.Warn("download attempt failed",
				"attempt", attempt, "of", d.retryAttempts, "error", err)

			if attempt < d.retryAttempts {
				select {
				case <-time.After(d.retryDelay):
				case <-ctx.Done():
					return "", ctx.Err()
				}
			}
			continue
		}
		return path, nil
	}

	return "", fmt.Errorf("%w after %d attempts: %w",
		qerrors.ErrDownloadFailed, d.retryAttempts, lastErr)
}

// fetchOnce writes the response body to a temp file and renames it into
// place, so a failed download never leaves a truncated cache entry.
func (d *Downloader) fetchOnce(ctx context.Context, fileURL, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}

	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write body: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("finalize download: %w", err)
	}

	d.log.Info("downloaded file", "file", filepath.Base(path), "bytes", n)
	return nil
}

// CachedFiles lists the cached raw CSV files in name order.
func (d *Downloader) CachedFiles() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(d.rawDir, "earthquakes_*.csv"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}
