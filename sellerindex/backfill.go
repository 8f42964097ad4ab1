package sellerindex

import (
	"context"
	"fmt"

	"github.com/sellerlens/adsvault/domcache"
	"github.com/sellerlens/adsvault/storage"
)

// DefaultBatchSize bounds how many cache snapshots one backfill batch
// loads. The job is an ETL loop, not a single transaction: peak memory is
// one batch of documents, and an interrupted run resumes from an offset.
const DefaultBatchSize = 100

// BackfillConfig controls a backfill run.
type BackfillConfig struct {
	// BatchSize is the number of snapshots per batch. Default: DefaultBatchSize.
	BatchSize int

	// Offset skips already-processed snapshots when resuming an
	// interrupted run. Snapshots are ordered by created_at, so the offset
	// is stable across runs as long as no rows are deleted.
	Offset int

	// Progress, when set, receives the cumulative progress after every
	// batch.
	Progress func(Progress)
}

// Progress is the cumulative state of a backfill run.
type Progress struct {
	Snapshots      int   `json:"snapshots"`       // snapshots processed this run
	TotalSnapshots int64 `json:"total_snapshots"` // successful snapshots in the cache
	Sellers        int   `json:"sellers"`         // lookup rows upserted
	Skipped        int   `json:"skipped"`         // seller records skipped (no seller_id, bad snapshot)
}

// Backfill (re)builds the lookup table from every successful sellers.json
// cache snapshot. Upserts make it idempotent: a second run over the same
// snapshots converges to the same rows. Malformed snapshots and seller
// records are logged and skipped; storage errors abort the run with the
// progress made so far, and a re-run with Offset set to cfg.Offset plus the
// returned Snapshots count resumes where it stopped.
func (ix *Index) Backfill(ctx context.Context, cfg BackfillConfig) (Progress, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Offset < 0 {
		cfg.Offset = 0
	}

	successCond := []storage.Cond{storage.Eq("status", string(domcache.StatusSuccess))}
	total, err := ix.provider.Count(ctx, storage.TableSellersJSONCache, successCond)
	if err != nil {
		return Progress{}, fmt.Errorf("sellerindex: backfill: count snapshots: %w", err)
	}

	prog := Progress{TotalSnapshots: total}
	offset := cfg.Offset

	ix.logger.Info("sellerindex: backfill starting",
		"total_snapshots", total, "batch_size", cfg.BatchSize, "offset", offset)

	for {
		if err := ctx.Err(); err != nil {
			return prog, fmt.Errorf("sellerindex: backfill: %w", err)
		}

		batch, err := ix.provider.Query(ctx, storage.TableSellersJSONCache, &storage.Query{
			Conds:  successCond,
			Sort:   &storage.Sort{Field: storage.FieldCreatedAt},
			Limit:  cfg.BatchSize,
			Offset: offset,
		})
		if err != nil {
			return prog, fmt.Errorf("sellerindex: backfill: load batch at %d: %w", offset, err)
		}
		if len(batch) == 0 {
			break
		}

		for _, rec := range batch {
			up, sk, err := ix.backfillSnapshot(ctx, rec)
			prog.Sellers += up
			prog.Skipped += sk
			if err != nil {
				return prog, fmt.Errorf("sellerindex: backfill: snapshot %s: %w", rec.ID(), err)
			}
			prog.Snapshots++
		}
		offset += len(batch)

		ix.logger.Info("sellerindex: backfill progress",
			"snapshots", prog.Snapshots, "total_snapshots", prog.TotalSnapshots,
			"sellers", prog.Sellers, "skipped", prog.Skipped)
		if cfg.Progress != nil {
			cfg.Progress(prog)
		}

		if len(batch) < cfg.BatchSize {
			break
		}
	}

	ix.logger.Info("sellerindex: backfill done",
		"snapshots", prog.Snapshots, "sellers", prog.Sellers, "skipped", prog.Skipped)
	return prog, nil
}

// backfillSnapshot indexes one cache row, tolerating bad content. A
// snapshot whose stored document no longer parses is skipped whole; a
// storage failure inside the upsert loop is returned so the run aborts
// instead of silently under-indexing.
func (ix *Index) backfillSnapshot(ctx context.Context, rec storage.Record) (upserted, skipped int, err error) {
	cacheID := rec.ID()
	domain := rec.String("domain")

	sj, err := domcache.ParseSellersJSON([]byte(rec.String("content")))
	if err != nil {
		ix.logger.Warn("sellerindex: backfill: snapshot no longer parses, skipping",
			"domain", domain, "cache_id", cacheID, "error", err)
		return 0, 1, nil
	}
	if len(sj.Sellers) == 0 {
		return 0, 0, nil
	}

	return ix.IndexSnapshot(ctx, cacheID, domain, sj.Sellers)
}
