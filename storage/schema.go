package storage

// Table names owned by the adsvault core. Clear() wipes exactly these.
const (
	// TableAdsTxtCache holds one cached ads.txt document per domain.
	TableAdsTxtCache = "adstxt_cache"

	// TableSellersJSONCache holds one cached sellers.json document per
	// domain. Successful rows are the snapshots the seller index derives
	// from.
	TableSellersJSONCache = "sellersjson_cache"

	// TableSellers is the normalized seller lookup table, one row per
	// (cache snapshot, seller id).
	TableSellers = "sellers"

	// TableEvents holds business events (cache refreshes, backfill runs).
	TableEvents = "events"
)

// Tables lists every table the providers manage.
var Tables = []string{TableAdsTxtCache, TableSellersJSONCache, TableSellers, TableEvents}

// schemaSQLite contains the complete DDL for the embedded backend.
//
// The sellers table carries a uniqueness constraint on (cache_id,
// seller_id) — duplicates within one snapshot resolve last-write-wins
// upstream — and a covering index on (domain, seller_id, cache_id) so a
// lookup by (domain, seller_id) resolves without touching the row. The
// seller_data blob is deliberately excluded from the index: it can be
// arbitrarily large per seller.
const schemaSQLite = `
CREATE TABLE IF NOT EXISTS adstxt_cache (
    id            TEXT PRIMARY KEY,
    domain        TEXT NOT NULL UNIQUE,
    content       TEXT,
    status        TEXT NOT NULL CHECK (status IN ('success','error','not_found','invalid_format')),
    error_message TEXT,
    last_updated  INTEGER NOT NULL,
    created_at    INTEGER NOT NULL,
    updated_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_adstxt_cache_status ON adstxt_cache(status);

CREATE TABLE IF NOT EXISTS sellersjson_cache (
    id            TEXT PRIMARY KEY,
    domain        TEXT NOT NULL UNIQUE,
    content       TEXT,
    status        TEXT NOT NULL CHECK (status IN ('success','error','not_found','invalid_format')),
    error_message TEXT,
    last_updated  INTEGER NOT NULL,
    created_at    INTEGER NOT NULL,
    updated_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sellersjson_cache_status ON sellersjson_cache(status);

CREATE TABLE IF NOT EXISTS sellers (
    id          TEXT PRIMARY KEY,
    cache_id    TEXT NOT NULL,
    domain      TEXT NOT NULL,
    seller_id   TEXT NOT NULL,
    seller_data TEXT NOT NULL,
    created_at  INTEGER NOT NULL,
    updated_at  INTEGER NOT NULL,
    UNIQUE (cache_id, seller_id)
);
CREATE INDEX IF NOT EXISTS idx_sellers_domain_seller ON sellers(domain, seller_id, cache_id);

CREATE TABLE IF NOT EXISTS events (
    id          TEXT PRIMARY KEY,
    event_type  TEXT NOT NULL,
    entity_type TEXT NOT NULL DEFAULT '',
    entity_id   TEXT NOT NULL DEFAULT '',
    action      TEXT NOT NULL DEFAULT '',
    details     TEXT NOT NULL DEFAULT '',
    success     INTEGER NOT NULL DEFAULT 1,
    created_at  INTEGER NOT NULL,
    updated_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_type_time ON events(event_type, created_at DESC);
`

// schemaPostgres mirrors schemaSQLite for the server backend. Timestamps
// stay unix-millisecond BIGINT columns so both backends return the same
// values.
const schemaPostgres = `
CREATE TABLE IF NOT EXISTS adstxt_cache (
    id            TEXT PRIMARY KEY,
    domain        TEXT NOT NULL UNIQUE,
    content       TEXT,
    status        TEXT NOT NULL CHECK (status IN ('success','error','not_found','invalid_format')),
    error_message TEXT,
    last_updated  BIGINT NOT NULL,
    created_at    BIGINT NOT NULL,
    updated_at    BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_adstxt_cache_status ON adstxt_cache(status);

CREATE TABLE IF NOT EXISTS sellersjson_cache (
    id            TEXT PRIMARY KEY,
    domain        TEXT NOT NULL UNIQUE,
    content       TEXT,
    status        TEXT NOT NULL CHECK (status IN ('success','error','not_found','invalid_format')),
    error_message TEXT,
    last_updated  BIGINT NOT NULL,
    created_at    BIGINT NOT NULL,
    updated_at    BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sellersjson_cache_status ON sellersjson_cache(status);

CREATE TABLE IF NOT EXISTS sellers (
    id          TEXT PRIMARY KEY,
    cache_id    TEXT NOT NULL,
    domain      TEXT NOT NULL,
    seller_id   TEXT NOT NULL,
    seller_data TEXT NOT NULL,
    created_at  BIGINT NOT NULL,
    updated_at  BIGINT NOT NULL,
    UNIQUE (cache_id, seller_id)
);
CREATE INDEX IF NOT EXISTS idx_sellers_domain_seller ON sellers(domain, seller_id, cache_id);

CREATE TABLE IF NOT EXISTS events (
    id          TEXT PRIMARY KEY,
    event_type  TEXT NOT NULL,
    entity_type TEXT NOT NULL DEFAULT '',
    entity_id   TEXT NOT NULL DEFAULT '',
    action      TEXT NOT NULL DEFAULT '',
    details     TEXT NOT NULL DEFAULT '',
    success     BIGINT NOT NULL DEFAULT 1,
    created_at  BIGINT NOT NULL,
    updated_at  BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_type_time ON events(event_type, created_at DESC);
`
