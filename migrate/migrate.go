// Package migrate runs schema setup and the seller index backfill as one
// re-runnable job: ensure tables and indexes exist, then rebuild the
// lookup table from the cached snapshots. Upserts downstream make a
// restart after interruption safe.
package migrate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sellerlens/adsvault/sellerindex"
	"github.com/sellerlens/adsvault/storage"
)

// Config controls one migration run.
type Config struct {
	// SkipData runs schema setup only, leaving the lookup table alone.
	// Read once at the start of Run; flipping it mid-run has no effect.
	SkipData bool `yaml:"skip_data"`

	// BatchSize and Offset are handed to the backfill unchanged.
	BatchSize int `yaml:"batch_size"`
	Offset    int `yaml:"offset"`
}

// Runner executes migrations against one bound provider.
type Runner struct {
	provider storage.Provider
	index    *sellerindex.Index
	logger   *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// New creates a Runner over the provider and index.
func New(p storage.Provider, ix *sellerindex.Index, opts ...Option) *Runner {
	r := &Runner{provider: p, index: ix, logger: slog.Default()}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run ensures the schema and then backfills the seller lookup table.
// Idempotent end to end: DDL is IF NOT EXISTS and the backfill upserts.
func (r *Runner) Run(ctx context.Context, cfg Config) (sellerindex.Progress, error) {
	skipData := cfg.SkipData

	if err := r.provider.Init(ctx); err != nil {
		return sellerindex.Progress{}, fmt.Errorf("migrate: init schema: %w", err)
	}
	r.logger.Info("migrate: schema ensured")

	if skipData {
		r.logger.Info("migrate: data backfill skipped")
		return sellerindex.Progress{}, nil
	}

	prog, err := r.index.Backfill(ctx, sellerindex.BackfillConfig{
		BatchSize: cfg.BatchSize,
		Offset:    cfg.Offset,
	})
	if err != nil {
		return prog, fmt.Errorf("migrate: %w", err)
	}
	return prog, nil
}
