// quakemart builds and queries the earthquake analytical warehouse.
//
// Commands:
//
//	run     execute one incremental pipeline run (default)
//	status  show tracked partition state and warehouse tables
//	shell   open the interactive query shell
//	export  export the analytical tables to parquet
//	reset   clear tracked state and drop the analytical tables
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/seismolab/quakemart/internal/catalog"
	"github.com/seismolab/quakemart/internal/config"
	"github.com/seismolab/quakemart/internal/cube"
	"github.com/seismolab/quakemart/internal/logging"
	"github.com/seismolab/quakemart/internal/pipeline"
	"github.com/seismolab/quakemart/internal/warehouse"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfgPath := flag.String("config", "config.yaml", "config file path")
	dataDir := flag.String("data-dir", "", "data directory (overrides config)")
	dbPath := flag.String("db", "", "database file path (overrides config)")
	years := flag.String("years", "", "partition years, e.g. 2020-2023 or 2020,2022")
	force := flag.Bool("force", false, "re-download cached files")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	logJSON := flag.Bool("log-json", false, "log in JSON format")
	noBench := flag.Bool("no-benchmark", false, "disable run metrics capture")
	flag.Parse()

	logging.Init(logging.ParseLevel(*logLevel), *logJSON)

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg = config.DefaultConfig()
		} else {
			log.Fatalf("Load config: %v", err)
		}
	}

	if *dataDir != "" {
		cfg.Paths.DataDir = *dataDir
	}
	if *dbPath != "" {
		cfg.Warehouse.Database = *dbPath
	}
	if *years != "" {
		list, err := parseYears(*years)
		if err != nil {
			log.Fatalf("Parse -years: %v", err)
		}
		cfg.Source.YearsToLoad = list
	}
	if *noBench {
		cfg.Benchmark.Enabled = false
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Validate config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("Create directories: %v", err)
	}

	store, err := warehouse.Open(cfg.DatabasePath(), cfg.Warehouse)
	if err != nil {
		log.Fatalf("Open warehouse: %v", err)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd := flag.Arg(0)
	if cmd == "" {
		cmd = "run"
	}

	switch cmd {
	case "run":
		err = cmdRun(ctx, cfg, store, *force)
	case "status":
		err = cmdStatus(ctx, cfg, store)
	case "shell":
		err = cmdShell(ctx, store)
	case "export":
		err = cmdExport(ctx, cfg, store)
	case "reset":
		err = cmdReset(ctx, cfg, store)
	default:
		log.Fatalf("Unknown command %q (run, status, shell, export, reset)", cmd)
	}
	if err != nil {
		log.Fatalf("%s: %v", cmd, err)
	}
}

func cmdRun(ctx context.Context, cfg *config.Config, store *warehouse.Store, force bool) error {
	p := pipeline.New(cfg, store)
	if force {
		p.ForceDownload()
	}

	report, err := p.Run(ctx)
	if err != nil {
		return err
	}

	if report.ShortCircuited {
		fmt.Println("Nothing to do: all requested partitions loaded and analytical layer standing.")
		return nil
	}

	fmt.Printf("Run %s finished in %s\n", report.RunID, report.Duration.Round(10*time.Millisecond))
	fmt.Printf("  partitions processed: %v\n", report.Processed)
	fmt.Printf("  raw rows:             %d (%d duplicates removed)\n",
		report.Merge.RowsOut, report.Merge.Duplicates)
	fmt.Printf("  fact rows:            %d (%d dropped, %d unresolved, %d duplicates)\n",
		report.Build.FactRows, report.Build.MissingPrereqs,
		report.Build.UnresolvedJoins, report.Build.Duplicates)
	for _, c := range report.Cubes {
		fmt.Printf("  %-26s %d rows\n", c.Table, c.Rows)
	}
	if report.BenchmarkFile != "" {
		fmt.Printf("  benchmark report:     %s\n", report.BenchmarkFile)
	}
	return nil
}

func cmdStatus(ctx context.Context, cfg *config.Config, store *warehouse.Store) error {
	p := pipeline.New(cfg, store)
	t := p.Tracker()

	validated := t.Validate(ctx, store)
	summary := t.Summary()

	fmt.Printf("Metadata: %s\n", cfg.MetadataPath())
	fmt.Printf("Database: %s\n\n", cfg.DatabasePath())

	if len(validated) == 0 {
		fmt.Println("No partitions loaded.")
	} else {
		fmt.Printf("Loaded partitions (%d): %v\n", len(validated), validated)
		if summary.Range != nil {
			fmt.Printf("Range: %d-%d\n", summary.Range.First, summary.Range.Last)
		}
		for _, gap := range summary.Gaps {
			fmt.Printf("Gap:   %d-%d\n", gap.First, gap.Last)
		}
		fmt.Printf("Total events: %d\n", summary.TotalEvents)
	}

	names, err := store.TableNames(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("\nWarehouse tables (%d):\n", len(names))
	for _, name := range names {
		n, err := store.RowCount(ctx, name)
		if err != nil {
			fmt.Printf("  %-28s (unreadable)\n", name)
			continue
		}
		fmt.Printf("  %-28s %d rows\n", name, n)
	}

	fmt.Println("\nCubes:")
	for _, c := range cube.New(store, 1).Status(ctx) {
		if !c.Exists {
			fmt.Printf("  %-28s (not materialized)\n", c.Table)
			continue
		}
		fmt.Printf("  %-28s %d rows  %s\n", c.Table, c.Rows, c.Description)
	}
	return nil
}

func cmdExport(ctx context.Context, cfg *config.Config, store *warehouse.Store) error {
	tables := append(catalog.Dimensions(), catalog.FactEvents)
	tables = append(tables, catalog.Cubes()...)

	exported := 0
	for _, table := range tables {
		name := table.Name()
		if !store.Exists(ctx, name) {
			continue
		}
		out := cfg.Paths.ProcessedDir + "/" + name + ".parquet"
		if err := store.ExportParquet(ctx, name, out); err != nil {
			return err
		}
		fmt.Printf("exported %s -> %s\n", name, out)
		exported++
	}
	if exported == 0 {
		fmt.Println("Nothing to export: analytical layer not built yet.")
	}
	return nil
}

func cmdReset(ctx context.Context, cfg *config.Config, store *warehouse.Store) error {
	p := pipeline.New(cfg, store)
	if err := p.Tracker().Reset(); err != nil {
		return err
	}

	names, err := store.TableNames(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := store.Drop(ctx, name); err != nil {
			return err
		}
	}

	fmt.Printf("Dropped %d table(s) and cleared tracked state.\n", len(names))
	return nil
}

// parseYears parses "2020-2023" ranges and "2020,2022" lists.
func parseYears(s string) ([]int, error) {
	if first, last, ok := strings.Cut(s, "-"); ok {
		lo, err := strconv.Atoi(strings.TrimSpace(first))
		if err != nil {
			return nil, err
		}
		hi, err := strconv.Atoi(strings.TrimSpace(last))
		if err != nil {
			return nil, err
		}
		if hi < lo {
			return nil, fmt.Errorf("range %d-%d is inverted", lo, hi)
		}
		years := make([]int, 0, hi-lo+1)
		for y := lo; y <= hi; y++ {
			years = append(years, y)
		}
		return years, nil
	}

	var years []int
	for _, part := range strings.Split(s, ",") {
		y, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		years = append(years, y)
	}
	return years, nil
}
