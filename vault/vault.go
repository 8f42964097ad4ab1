// Package vault is the adsvault orchestrator. It binds one storage
// provider, wires the ads.txt and sellers.json caches, the seller lookup
// index, and the event trail, and exposes the operations external
// collaborators (fetch jobs, HTTP handlers, CLI one-shots) call.
//
// Usage:
//
//	v, err := vault.New(cfg, logger)
//	defer v.Close()
//	v.SaveSellersJSON(ctx, fetchResult) // cache write + index refresh
//	v.FindSeller(ctx, "example.com", "491787")
package vault

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sellerlens/adsvault/domcache"
	"github.com/sellerlens/adsvault/migrate"
	"github.com/sellerlens/adsvault/observability"
	"github.com/sellerlens/adsvault/sellerindex"
	"github.com/sellerlens/adsvault/storage"
)

// Vault is the main adsvault orchestrator.
type Vault struct {
	provider storage.Provider
	adsTxt   *domcache.Cache
	sellers  *domcache.Cache
	index    *sellerindex.Index
	events   *observability.EventLogger
	logger   *slog.Logger
	config   *Config
}

// New binds the storage backend and wires all subsystems. The provider is
// chosen once from cfg.Storage; schema setup runs here so every method is
// usable immediately.
func New(cfg *Config, logger *slog.Logger) (*Vault, error) {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}

	p, err := storage.Open(cfg.Storage, logger)
	if err != nil {
		return nil, err
	}
	if err := p.Init(context.Background()); err != nil {
		p.Close()
		return nil, fmt.Errorf("vault: init schema: %w", err)
	}

	return &Vault{
		provider: p,
		adsTxt:   domcache.NewAdsTxt(p, domcache.WithLogger(logger)),
		sellers:  domcache.NewSellersJSON(p, domcache.WithLogger(logger)),
		index:    sellerindex.New(p, sellerindex.WithLogger(logger)),
		events:   observability.NewEventLogger(p, observability.WithEventLogger(logger)),
		logger:   logger,
		config:   cfg,
	}, nil
}

// Close releases the storage backend.
func (v *Vault) Close() error {
	return v.provider.Close()
}

// Provider returns the bound provider for direct access (testing, admin).
func (v *Vault) Provider() storage.Provider {
	return v.provider
}

// AdsTxt returns the cached ads.txt entry for a domain, or nil when the
// domain has never been fetched.
func (v *Vault) AdsTxt(ctx context.Context, domain string) (*domcache.Entry, error) {
	return v.adsTxt.GetByDomain(ctx, domain)
}

// SellersJSON returns the cached sellers.json entry for a domain, or nil.
func (v *Vault) SellersJSON(ctx context.Context, domain string) (*domcache.Entry, error) {
	return v.sellers.GetByDomain(ctx, domain)
}

// Fresh reports whether a cache entry is still inside the configured
// freshness window. A nil entry is never fresh.
func (v *Vault) Fresh(e *domcache.Entry) bool {
	return e != nil && !domcache.IsExpired(e.LastUpdated, v.config.MaxAge)
}

// SaveAdsTxt records an ads.txt fetch outcome.
func (v *Vault) SaveAdsTxt(ctx context.Context, fr domcache.FetchResult) (*domcache.Entry, error) {
	entry, err := v.adsTxt.SaveFetchResult(ctx, fr)
	if err != nil {
		return nil, err
	}
	v.events.LogEvent(ctx, observability.Event{
		EventType:  observability.EventCacheRefresh,
		EntityType: "domain",
		EntityID:   entry.Domain,
		Action:     "ads_txt",
		Success:    entry.Status == domcache.StatusSuccess,
	})
	return entry, nil
}

// SaveSellersJSON records a sellers.json fetch outcome. A successful fetch
// also replaces the domain's seller lookup rows with the new snapshot, so
// FindSeller reflects it immediately.
func (v *Vault) SaveSellersJSON(ctx context.Context, fr domcache.FetchResult) (*domcache.Entry, error) {
	entry, err := v.sellers.SaveFetchResult(ctx, fr)
	if err != nil {
		return nil, err
	}

	details := ""
	if entry.Status == domcache.StatusSuccess {
		sj, err := domcache.ParseSellersJSON([]byte(entry.Content))
		if err != nil {
			// Unreachable in practice: the cache validator already parsed
			// this content.
			return nil, fmt.Errorf("vault: reparse %s: %w", entry.Domain, err)
		}
		upserted, skipped, err := v.index.ReplaceSnapshot(ctx, entry.ID, entry.Domain, sj.Sellers)
		if err != nil {
			return nil, err
		}
		details = fmt.Sprintf(`{"upserted":%d,"skipped":%d}`, upserted, skipped)
	}

	v.events.LogEvent(ctx, observability.Event{
		EventType:  observability.EventCacheRefresh,
		EntityType: "domain",
		EntityID:   entry.Domain,
		Action:     "sellers_json",
		Details:    details,
		Success:    entry.Status == domcache.StatusSuccess,
	})
	return entry, nil
}

// FindSeller resolves (domain, sellerID) through the lookup index.
// sellerindex.ErrSellerNotFound when the domain declares no such seller.
func (v *Vault) FindSeller(ctx context.Context, domain, sellerID string) (*domcache.Seller, error) {
	return v.index.FindSeller(ctx, domain, sellerID)
}

// Backfill rebuilds the seller lookup index from the cached snapshots
// using the configured migration settings.
func (v *Vault) Backfill(ctx context.Context) (sellerindex.Progress, error) {
	runner := migrate.New(v.provider, v.index, migrate.WithLogger(v.logger))
	prog, err := runner.Run(ctx, v.config.Migrate)

	v.events.LogEvent(ctx, observability.Event{
		EventType:  observability.EventBackfillRun,
		EntityType: "index",
		Action:     "backfill",
		Details: fmt.Sprintf(`{"snapshots":%d,"sellers":%d,"skipped":%d}`,
			prog.Snapshots, prog.Sellers, prog.Skipped),
		Success: err == nil,
	})
	return prog, err
}

// Events returns the most recent business events of a type ("" for all).
func (v *Vault) Events(ctx context.Context, eventType string, limit int) ([]observability.Event, error) {
	return v.events.Recent(ctx, eventType, limit)
}

/// Stats holds adsvault counts: cache rows per status plus totals, lookup
// rows, and recorded events.
type Stats struct {
	AdsTxt      map[string]int64 `json:"ads_txt"`
	SellersJSON map[string]int64 `json:"sellers_json"`
	Sellers     int64            `json:"sellers"`
	Events      int64            `json:"events"`
}

// Stats returns current store statistics.
func (v *Vault) Stats(ctx context.Context) (*Stats, error) {
	adsTxt, err := v.cacheCounts(ctx, v.adsTxt.Table())
	if err != nil {
		return nil, err
	}
	sellersJSON, err := v.cacheCounts(ctx, v.sellers.Table())
	if err != nil {
		return nil, err
	}
	sellers, err := v.index.Count(ctx)
	if err != nil {
		return nil, err
	}
	events, err := v.provider.Count(ctx, storage.TableEvents, nil)
	if err != nil {
		return nil, err
	}
	return &Stats{
		AdsTxt:      adsTxt,
		SellersJSON: sellersJSON,
		Sellers:     sellers,
		Events:      events,
	}, nil
}

func (v *Vault) cacheCounts(ctx context.Context, table string) (map[string]int64, error) {
	out := make(map[string]int64, 5)
	total, err := v.provider.Count(ctx, table, nil)
	if err != nil {
		return nil, err
	}
	out["total"] = total

	statuses := []domcache.Status{
		domcache.StatusSuccess,
		domcache.StatusError,
		domcache.StatusNotFound,
		domcache.StatusInvalidFormat,
	}
	for _, s := range statuses {
		n, err := v.provider.Count(ctx, table, []storage.Cond{storage.Eq("status", string(s))})
		if err != nil {
			return nil, err
		}
		out[string(s)] = n
	}
	return out, nil
}
