// Package sellerindex maintains the normalized seller lookup table derived
// from cached sellers.json snapshots. It turns "does domain D declare
// seller S" into an indexed point lookup instead of deserializing and
// scanning the whole document, and owns the batched backfill job that
// (re)builds the table from existing cache rows.
package sellerindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sellerlens/adsvault/domcache"
	"github.com/sellerlens/adsvault/storage"
)

// ErrSellerNotFound is returned by FindSeller when no row matches.
var ErrSellerNotFound = errors.New("sellerindex: seller not found")

// Index writes and queries the seller lookup table through the bound
// storage provider. Rows are derived data: callers never edit them by
// hand, they are replaced when a domain's snapshot refreshes or inserted
// in bulk by Backfill.
type Index struct {
	provider storage.Provider
	logger   *slog.Logger
}

// Option configures an Index.
type Option func(*Index)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(ix *Index) { ix.logger = logger }
}

// New creates an Index over the provider.
func New(p storage.Provider, opts ...Option) *Index {
	ix := &Index{provider: p, logger: slog.Default()}
	for _, o := range opts {
		o(ix)
	}
	return ix
}

// rowID derives the deterministic row id for a (snapshot, seller) pair.
// The id doubles as the (cache_id, seller_id) uniqueness key, which keeps
// the upsert a portable get-then-write instead of a dialect-specific
// ON CONFLICT clause.
func rowID(cacheID, sellerID string) string {
	return cacheID + ":" + sellerID
}

// UpsertSeller inserts the seller row for (cacheID, seller) or overwrites
// its domain and seller data in place. Safe to re-run: the second write
// converges to the same row.
func (ix *Index) UpsertSeller(ctx context.Context, cacheID, domain string, s domcache.Seller) error {
	if s.SellerID == "" {
		return fmt.Errorf("sellerindex: upsert: seller without seller_id")
	}
	data, err := json.Marshal(&s)
	if err != nil {
		return fmt.Errorf("sellerindex: upsert %s/%s: %w", domain, s.SellerID, err)
	}

	id := rowID(cacheID, s.SellerID)
	patch := storage.Record{
		"domain":      domcache.Normalize(domain),
		"seller_data": string(data),
	}

	existing, err := ix.provider.GetByID(ctx, storage.TableSellers, id)
	if err != nil {
		return fmt.Errorf("sellerindex: upsert %s: %w", id, err)
	}
	if existing != nil {
		if _, err := ix.provider.Update(ctx, storage.TableSellers, id, patch); err != nil {
			return fmt.Errorf("sellerindex: upsert %s: %w", id, err)
		}
		return nil
	}

	rec := patch.Clone()
	rec["id"] = id
	rec["cache_id"] = cacheID
	rec["seller_id"] = s.SellerID
	_, err = ix.provider.Insert(ctx, storage.TableSellers, rec)
	if errors.Is(err, storage.ErrDuplicateKey) {
		// Lost a race with a concurrent upsert of the same pair; converge
		// by overwriting.
		_, err = ix.provider.Update(ctx, storage.TableSellers, id, patch)
	}
	if err != nil {
		return fmt.Errorf("sellerindex: upsert %s: %w", id, err)
	}
	return nil
}

// IndexSnapshot upserts one snapshot's sellers. Within the snapshot,
// repeated seller ids resolve to the last occurrence (array order is
// authoritative; real sellers.json files do contain duplicates). Entries
// without a seller id are logged and skipped, never fatal. Storage errors
// abort and propagate.
func (ix *Index) IndexSnapshot(ctx context.Context, cacheID, domain string, sellers []domcache.Seller) (upserted, skipped int, err error) {
	keep := make(map[string]int, len(sellers))
	order := make([]string, 0, len(sellers))
	for i, s := range sellers {
		if s.SellerID == "" {
			skipped++
			ix.logger.Warn("sellerindex: skipping seller without seller_id",
				"domain", domain, "cache_id", cacheID, "position", i)
			continue
		}
		if _, seen := keep[s.SellerID]; !seen {
			order = append(order, s.SellerID)
		}
		keep[s.SellerID] = i
	}

	for _, sellerID := range order {
		if err := ix.UpsertSeller(ctx, cacheID, domain, sellers[keep[sellerID]]); err != nil {
			return upserted, skipped, err
		}
		upserted++
	}
	return upserted, skipped, nil
}

// ReplaceSnapshot deletes every lookup row for the domain and then indexes
// the given snapshot, so FindSeller answers always reflect the live cache
// row rather than a superseded one. Called by the cache-write path after a
// successful sellers.json refresh.
func (ix *Index) ReplaceSnapshot(ctx context.Context, cacheID, domain string, sellers []domcache.Seller) (upserted, skipped int, err error) {
	d := domcache.Normalize(domain)
	stale, err := ix.provider.Query(ctx, storage.TableSellers, &storage.Query{
		Conds: []storage.Cond{storage.Eq("domain", d)},
	})
	if err != nil {
		return 0, 0, fmt.Errorf("sellerindex: replace %s: %w", d, err)
	}
	for _, rec := range stale {
		if _, err := ix.provider.Delete(ctx, storage.TableSellers, rec.ID()); err != nil {
			return 0, 0, fmt.Errorf("sellerindex: replace %s: %w", d, err)
		}
	}
	return ix.IndexSnapshot(ctx, cacheID, d, sellers)
}

// FindSeller returns the seller data for (domain, sellerID), preferring the
// most recently written row when superseded snapshots have not been purged.
// ErrSellerNotFound when absent.
func (ix *Index) FindSeller(ctx context.Context, domain, sellerID string) (*domcache.Seller, error) {
	d := domcache.Normalize(domain)
	recs, err := ix.provider.Query(ctx, storage.TableSellers, &storage.Query{
		Conds: []storage.Cond{
			storage.Eq("domain", d),
			storage.Eq("seller_id", sellerID),
		},
		Sort:  &storage.Sort{Field: storage.FieldUpdatedAt, Desc: true},
		Limit: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("sellerindex: find %s/%s: %w", d, sellerID, err)
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%w: %s/%s", ErrSellerNotFound, d, sellerID)
	}

	var s domcache.Seller
	if err := json.Unmarshal([]byte(recs[0].String("seller_data")), &s); err != nil {
		return nil, fmt.Errorf("sellerindex: find %s/%s: decode row: %w", d, sellerID, err)
	}
	return &s, nil
}

// Count returns the number of lookup rows.
func (ix *Index) Count(ctx context.Context) (int64, error) {
	return ix.provider.Count(ctx, storage.TableSellers, nil)
}
