// Package benchmark records step timings for a pipeline run.
//
// Steps that repeat within a run (one per partition, for example) are
// folded into a quantile sketch per step name, so the exported report
// carries percentiles instead of an unbounded sample list. Disabled
// trackers accept the full API and do nothing.
package benchmark

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"

	"github.com/seismolab/quakemart/internal/config"
	"github.com/seismolab/quakemart/internal/logging"
)

// Sketch accuracy: quantiles are within 1% of the true value.
const relativeAccuracy = 0.01

// Tracker accumulates step timings for one run. Safe for concurrent
// use; partition workers time their steps in parallel.
type Tracker struct {
	enabled   bool
	runID     string
	startedAt time.Time
	outputDir string
	log       *slog.Logger

	mu       sync.Mutex
	sketches map[string]*ddsketch.DDSketch
	order    []string
	dataInfo map[string]any
}

// New creates a tracker. The run id is derived from the wall clock.
func New(cfg config.BenchmarkConfig) *Tracker {
	now := time.Now()
	return &Tracker{
		enabled:   cfg.Enabled,
		runID:     now.Format("20060102_150405"),
		startedAt: now,
		outputDir: cfg.OutputDir,
		log:       logging.Component("benchmark"),
		sketches:  make(map[string]*ddsketch.DDSketch),
		dataInfo:  make(map[string]any),
	}
}

// RunID returns the run identifier.
func (t *Tracker) RunID() string { return t.runID }

// Step is one in-flight timed step.
type Step struct {
	tracker *Tracker
	name    string
	started time.Time
}

// Start begins timing a named step.
func (t *Tracker) Start(name string) *Step {
	return &Step{tracker: t, name: name, started: time.Now()}
}

// Stop ends the step and returns its duration.
func (s *Step) Stop() time.Duration {
	d := time.Since(s.started)
	s.tracker.Observe(s.name, d)
	return d
}

// Track times fn under the given step name.
func (t *Tracker) Track(name string, fn func() error) error {
	step := t.Start(name)
	err := fn()
	d := step.Stop()
	t.log.Debug("step finished", "step", name, "duration", d, "error", err != nil)
	return err
}

// Observe records one duration sample for a step name.
func (t *Tracker) Observe(name string, d time.Duration) {
	if !t.enabled {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	sketch, ok := t.sketches[name]
	if !ok {
		var err error
		sketch, err = ddsketch.NewDefaultDDSketch(relativeAccuracy)
		if err != nil {
			t.log.Warn("sketch init failed", "step", name, "error", err)
			return
		}
		t.sketches[name] = sketch
		t.order = append(t.order, name)
	}

	if err := sketch.Add(d.Seconds()); err != nil {
		t.log.Warn("sketch add failed", "step", name, "error", err)
	}
}

// Record attaches a data point (row counts, partition lists) to the run
// report.
func (t *Tracker) Record(key string, value any) {
	if !t.enabled {
		return
	}
	t.mu.Lock()
	t.dataInfo[key] = value
	t.mu.Unlock()
}

// StepSummary reports one step name's timing distribution in seconds.
type StepSummary struct {
	Name    string  `json:"name"`
	Count   int64   `json:"count"`
	TotalS  float64 `json:"total_seconds"`
	P50S    float64 `json:"p50_seconds"`
	P95S    float64 `json:"p95_seconds"`
	P99S    float64 `json:"p99_seconds"`
	MaxS    float64 `json:"max_seconds"`
	AvgS    float64 `json:"avg_seconds"`
	ShareOf float64 `json:"share_of_run"`
}

// Result is the exported run report.
type Result struct {
	RunID     string             `json:"run_id"`
	Timestamp string             `json:"timestamp"`
	System    map[string]any     `json:"system_info"`
	Steps     []StepSummary      `json:"steps"`
	DataInfo  map[string]any     `json:"data_info"`
	Summary   map[string]float64 `json:"summary"`
}

// Result snapshots the current run report. Step order follows first
// observation.
func (t *Tracker) Result() Result {
	t.mu.Lock()
	defer t.mu.Unlock()

	res := Result{
		RunID:     t.runID,
		Timestamp: t.startedAt.UTC().Format(time.RFC3339),
		System: map[string]any{
			"go_version": runtime.Version(),
			"go_os":      runtime.GOOS,
			"go_arch":    runtime.GOARCH,
			"num_cpu":    runtime.NumCPU(),
		},
		DataInfo: make(map[string]any, len(t.dataInfo)),
		Summary:  make(map[string]float64),
	}
	for k, v := range t.dataInfo {
		res.DataInfo[k] = v
	}

	var runTotal float64
	for _, name := range t.order {
		runTotal += t.sketches[name].GetSum()
	}

	for _, name := range t.order {
		sketch := t.sketches[name]
		count := int64(sketch.GetCount())
		if count == 0 {
			continue
		}

		sum := sketch.GetSum()
		s := StepSummary{
			Name:   name,
			Count:  count,
			TotalS: sum,
			AvgS:   sum / float64(count),
		}
		s.P50S = quantile(sketch, 0.50)
		s.P95S = quantile(sketch, 0.95)
		s.P99S = quantile(sketch, 0.99)
		if max, err := sketch.GetMaxValue(); err == nil {
			s.MaxS = max
		}
		if runTotal > 0 {
			s.ShareOf = sum / runTotal
		}
		res.Steps = append(res.Steps, s)
	}

	res.Summary["total_duration_seconds"] = runTotal
	res.Summary["step_count"] = float64(len(res.Steps))
	return res
}

func quantile(sketch *ddsketch.DDSketch, q float64) float64 {
	v, err := sketch.GetValueAtQuantile(q)
	if err != nil {
		return 0
	}
	return v
}

// WriteJSON exports the run report to the output directory and returns
// the file path. A disabled tracker writes nothing.
func (t *Tracker) WriteJSON() (string, error) {
	if !t.enabled {
		return "", nil
	}

	res := t.Result()
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal benchmark result: %w", err)
	}

	if err := os.MkdirAll(t.outputDir, 0755); err != nil {
		return "", fmt.Errorf("create benchmark directory: %w", err)
	}

	path := filepath.Join(t.outputDir, "benchmark_"+t.runID+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write benchmark result: %w", err)
	}

	t.log.Info("wrote benchmark report", "file", path, "steps", len(res.Steps))
	return path, nil
}

// StepNames lists the observed step names sorted alphabetically.
func (t *Tracker) StepNames() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	names := make([]string, len(t.order))
	copy(names, t.order)
	sort.Strings(names)
	return names
}
