// Package cube materializes the aggregate cubes over the star schema.
//
// Cubes are persisted tables rebuilt by full replacement after every
// schema rebuild. Each cube is declared once in the registry; the
// materializer turns specs into SQL and runs them through a bounded
// worker group. Cubes read only the fact and dimension tables, so the
// orchestrator must finish the schema rebuild before calling in here.
package cube

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/seismolab/quakemart/internal/catalog"
	"github.com/seismolab/quakemart/internal/logging"
	"github.com/seismolab/quakemart/internal/warehouse"
)

// Summary reports one cube probe. A materialized zero-row cube has
// Exists set with Rows zero; an absent cube has neither.
type Summary struct {
	Table       string
	Description string
	Exists      bool
	Rows        int64
}

// Materializer rebuilds the cube set.
type Materializer struct {
	store   *warehouse.Store
	workers int
	log     *slog.Logger
}

// New creates a materializer. workers bounds how many cubes rebuild
// concurrently; values below 1 run sequentially.
func New(store *warehouse.Store, workers int) *Materializer {
	if workers < 1 {
		workers = 1
	}
	return &Materializer{
		store:   store,
		workers: workers,
		log:     logging.Component("cube"),
	}
}

// Materialize rebuilds every registered cube. All cubes are attempted
// even when the fact table is empty; the first failure cancels the
// remaining ones and is returned.
func (m *Materializer) Materialize(ctx context.Context) ([]Summary, error) {
	specs := Registry()

	summaries := make([]Summary, len(specs))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)

	for i, spec := range specs {
		g.Go(func() error {
			s, err := m.materializeOne(ctx, spec)
			if err != nil {
				return err
			}
			mu.Lock()
			summaries[i] = s
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var total int64
	for _, s := range summaries {
		total += s.Rows
	}
	m.log.Info("materialized cubes", "cubes", len(summaries), "total_rows", total)

	return summaries, nil
}

func (m *Materializer) materializeOne(ctx context.Context, spec Spec) (Summary, error) {
	if err := m.store.Exec(ctx, spec.SQL()); err != nil {
		return Summary{}, err
	}
	rows, err := m.store.RowCount(ctx, spec.Table.Name())
	if err != nil {
		return Summary{}, err
	}
	m.log.Info("materialized cube", "table", spec.Table, "rows", rows)
	return Summary{
		Table:       spec.Table.Name(),
		Description: spec.Description,
		Exists:      true,
		Rows:        rows,
	}, nil
}

// Status probes each registered cube. Probe failures read as an
// absent cube, never an error.
func (m *Materializer) Status(ctx context.Context) []Summary {
	specs := Registry()
	out := make([]Summary, 0, len(specs))
	for _, spec := range specs {
		s := Summary{Table: spec.Table.Name(), Description: spec.Description}
		if m.store.Exists(ctx, s.Table) {
			s.Exists = true
			if n, err := m.store.RowCount(ctx, s.Table); err == nil {
				s.Rows = n
			}
		}
		out = append(out, s)
	}
	return out
}

// Drop removes every registered cube table.
func (m *Materializer) Drop(ctx context.Context) error {
	for _, table := range catalog.Cubes() {
		if err := m.store.Drop(ctx, table.Name()); err != nil {
			return err
		}
	}
	return nil
}
