// Package observability records business events (cache refreshes, backfill
// runs) through the bound storage provider. Event writes never propagate
// failures: a broken event store must not take the write path down with it.
package observability

import (
	"context"
	"log/slog"

	"github.com/sellerlens/adsvault/idgen"
	"github.com/sellerlens/adsvault/storage"
)

// Well-known event types.
const (
	EventCacheRefresh = "cache_refresh"
	EventBackfillRun  = "backfill_run"
)

// Event is a domain-level occurrence worth keeping a trail of.
type Event struct {
	EventType  string `json:"event_type"`
	EntityType string `json:"entity_type,omitempty"` // e.g. "domain", "index"
	EntityID   string `json:"entity_id,omitempty"`
	Action     string `json:"action,omitempty"`
	Details    string `json:"details,omitempty"` // optional JSON
	Success    bool   `json:"success"`
}

// EventLogger writes events into the events table.
type EventLogger struct {
	provider storage.Provider
	newID    idgen.Generator
	logger   *slog.Logger
}

// EventLoggerOption configures an EventLogger.
type EventLoggerOption func(*EventLogger)

// WithEventIDGenerator sets a custom ID generator for event IDs.
func WithEventIDGenerator(gen idgen.Generator) EventLoggerOption {
	return func(l *EventLogger) { l.newID = gen }
}

// WithEventLogger sets the slog logger used for write failures.
func WithEventLogger(logger *slog.Logger) EventLoggerOption {
	return func(l *EventLogger) { l.logger = logger }
}

// NewEventLogger creates a logger writing through the given provider.
func NewEventLogger(p storage.Provider, opts ...EventLoggerOption) *EventLogger {
	l := &EventLogger{
		provider: p,
		newID:    idgen.Prefixed("evt_", idgen.Default),
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// LogEvent records an event. Errors are logged via slog but do not
// propagate, so a failing event store never blocks the caller.
func (l *EventLogger) LogEvent(ctx context.Context, event Event) {
	success := int64(0)
	if event.Success {
		success = 1
	}
	_, err := l.provider.Insert(ctx, storage.TableEvents, storage.Record{
		"id":          l.newID(),
		"event_type":  event.EventType,
		"entity_type": event.EntityType,
		"entity_id":   event.EntityID,
		"action":      event.Action,
		"details":     event.Details,
		"success":     success,
	})
	if err != nil {
		l.logger.Error("observability: event write failed",
			"event_type", event.EventType, "entity_id", event.EntityID, "error", err)
	}
}

// Recent returns the newest events of a type, most recent first. eventType
// "" means all types.
func (l *EventLogger) Recent(ctx context.Context, eventType string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	var conds []storage.Cond
	if eventType != "" {
		conds = append(conds, storage.Eq("event_type", eventType))
	}
	recs, err := l.provider.Query(ctx, storage.TableEvents, &storage.Query{
		Conds: conds,
		Sort:  &storage.Sort{Field: storage.FieldCreatedAt, Desc: true},
		Limit: limit,
	})
	if err != nil {
		return nil, err
	}
	out := make([]Event, 0, len(recs))
	for _, r := range recs {
		out = append(out, Event{
			EventType:  r.String("event_type"),
			EntityType: r.String("entity_type"),
			EntityID:   r.String("entity_id"),
			Action:     r.String("action"),
			Details:    r.String("details"),
			Success:    r.Int64("success") != 0,
		})
	}
	return out, nil
}
