// Package domcache is the per-domain document cache for ads.txt and
// sellers.json.
//
// Two independent Cache instances share one implementation, parameterized
// only by table name and content validation: NewAdsTxt caches raw ads.txt
// text, NewSellersJSON caches sellers.json documents. A domain has at most
// one live cache row at any time — Save is an upsert keyed by the
// normalized domain, preserving the original row id and created_at.
//
// The cache performs no network I/O and never auto-expires rows: a fetch
// collaborator hands results to SaveFetchResult, and callers decide whether
// to refetch using IsExpired.
package domcache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sellerlens/adsvault/idgen"
	"github.com/sellerlens/adsvault/storage"
)

// Status classifies the outcome of the last fetch attempt for a domain.
type Status string

const (
	// StatusSuccess means content holds the fetched document.
	StatusSuccess Status = "success"
	// StatusError means the fetch failed (network, timeout, non-2xx other
	// than 404).
	StatusError Status = "error"
	// StatusNotFound means the document does not exist (HTTP 404). The UI
	// distinguishes "no data yet" from "we tried and failed".
	StatusNotFound Status = "not_found"
	// StatusInvalidFormat means the document was fetched but unparseable.
	StatusInvalidFormat Status = "invalid_format"
)

// DefaultMaxAge is the freshness threshold callers use when they have no
// better policy.
const DefaultMaxAge = 24 * time.Hour

// Entry is one per-domain cache row.
type Entry struct {
	ID           string `json:"id"`
	Domain       string `json:"domain"`
	Content      string `json:"content,omitempty"`
	Status       Status `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
	LastUpdated  int64  `json:"last_updated"`
	CreatedAt    int64  `json:"created_at"`
	UpdatedAt    int64  `json:"updated_at"`
}

// FetchResult is what the external fetch collaborator hands to
// SaveFetchResult. The cache does not fetch anything itself.
type FetchResult struct {
	Domain     string
	Body       []byte
	SourceURL  string
	StatusCode int
	// Err is the transport failure, if any. It is recorded in the cache
	// row, never raised to the caller.
	Err error
}

// Validator checks a successfully fetched body. A validation failure is
// recorded as StatusInvalidFormat.
type Validator func([]byte) error

// Cache is one per-domain document cache over a storage Provider.
type Cache struct {
	provider storage.Provider
	table    string
	validate Validator
	newID    idgen.Generator
	logger   *slog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) { c.logger = logger }
}

// WithIDGenerator sets a custom ID generator.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(c *Cache) { c.newID = gen }
}

// WithValidator sets the content validator applied to 2xx fetches.
func WithValidator(v Validator) Option {
	return func(c *Cache) { c.validate = v }
}

// New creates a cache over the given table.
func New(p storage.Provider, table string, opts ...Option) *Cache {
	c := &Cache{
		provider: p,
		table:    table,
		newID:    idgen.Prefixed("cache_", idgen.Default),
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// NewAdsTxt creates the ads.txt flavor: content is opaque text, any 2xx
// body is a success.
func NewAdsTxt(p storage.Provider, opts ...Option) *Cache {
	return New(p, storage.TableAdsTxtCache, opts...)
}

// NewSellersJSON creates the sellers.json flavor: 2xx bodies must decode as
// a sellers.json document, otherwise the row is marked invalid_format.
func NewSellersJSON(p storage.Provider, opts ...Option) *Cache {
	opts = append([]Option{WithValidator(ValidateSellersJSON)}, opts...)
	return New(p, storage.TableSellersJSONCache, opts...)
}

// Table returns the backing table name.
func (c *Cache) Table() string {
	return c.table
}

// GetByDomain returns the cache entry for a domain, or nil when absent.
// The domain is normalized before lookup.
func (c *Cache) GetByDomain(ctx context.Context, domain string) (*Entry, error) {
	d := Normalize(domain)
	recs, err := c.provider.Query(ctx, c.table, &storage.Query{
		Conds: []storage.Cond{storage.Eq("domain", d)},
		Limit: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("domcache: get %s: %w", d, err)
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return entryFromRecord(recs[0]), nil
}

// Save upserts the entry by normalized domain. An existing row keeps its id
// and created_at; content, status, error_message and last_updated are
// replaced in place. Storage errors propagate unchanged — retry policy
// belongs to the caller.
func (c *Cache) Save(ctx context.Context, e *Entry) (*Entry, error) {
	d := Normalize(e.Domain)
	now := time.Now().UnixMilli()
	if e.LastUpdated == 0 {
		e.LastUpdated = now
	}

	existing, err := c.GetByDomain(ctx, d)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		rec, err := c.provider.Update(ctx, c.table, existing.ID, storage.Record{
			"content":       e.Content,
			"status":        string(e.Status),
			"error_message": e.ErrorMessage,
			"last_updated":  e.LastUpdated,
		})
		if err != nil {
			return nil, fmt.Errorf("domcache: update %s: %w", d, err)
		}
		return entryFromRecord(rec), nil
	}

	rec, err := c.provider.Insert(ctx, c.table, storage.Record{
		"id":            c.newID(),
		"domain":        d,
		"content":       e.Content,
		"status":        string(e.Status),
		"error_message": e.ErrorMessage,
		"last_updated":  e.LastUpdated,
	})
	if err != nil {
		return nil, fmt.Errorf("domcache: insert %s: %w", d, err)
	}
	return entryFromRecord(rec), nil
}

// SaveFetchResult maps a fetch collaborator's outcome to a cache entry and
// upserts it. Transport and content failures are recorded in the row, not
// raised; only storage errors propagate.
func (c *Cache) SaveFetchResult(ctx context.Context, fr FetchResult) (*Entry, error) {
	e := &Entry{Domain: fr.Domain}

	switch {
	case fr.Err != nil:
		e.Status = StatusError
		e.ErrorMessage = fr.Err.Error()
	case fr.StatusCode == 404:
		e.Status = StatusNotFound
		e.ErrorMessage = fmt.Sprintf("%s returned 404", fr.SourceURL)
	case fr.StatusCode < 200 || fr.StatusCode > 299:
		e.Status = StatusError
		e.ErrorMessage = fmt.Sprintf("%s returned status %d", fr.SourceURL, fr.StatusCode)
	default:
		if c.validate != nil {
			if err := c.validate(fr.Body); err != nil {
				e.Status = StatusInvalidFormat
				e.ErrorMessage = err.Error()
				break
			}
		}
		e.Status = StatusSuccess
		e.Content = string(fr.Body)
	}

	if e.Status != StatusSuccess {
		c.logger.Debug("domcache: recording failed fetch",
			"table", c.table, "domain", fr.Domain, "status", string(e.Status))
	}
	return c.Save(ctx, e)
}

// IsExpired reports whether a cache row older than maxAge should be
// refetched. Pure function of elapsed wall-clock time; the cache itself
// never expires rows.
func IsExpired(lastUpdated int64, maxAge time.Duration) bool {
	return time.Since(time.UnixMilli(lastUpdated)) > maxAge
}

func entryFromRecord(rec storage.Record) *Entry {
	return &Entry{
		ID:           rec.ID(),
		Domain:       rec.String("domain"),
		Content:      rec.String("content"),
		Status:       Status(rec.String("status")),
		ErrorMessage: rec.String("error_message"),
		LastUpdated:  rec.Int64("last_updated"),
		CreatedAt:    rec.Int64("created_at"),
		UpdatedAt:    rec.Int64("updated_at"),
	}
}
