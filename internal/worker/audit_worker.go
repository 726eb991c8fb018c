// Package worker holds the queue consumers run by the background binaries.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gradeboard/internal/amqp"
	"gradeboard/internal/cache"
	applog "gradeboard/internal/log"
	"gradeboard/internal/storage"
)

const (
	seenCapacity = 1024
	seenTTL      = time.Hour
)

// Stats is what the audit worker has observed since start.
type Stats struct {
	Events     int64
	Duplicates int64
	Students   int64
	Sessions   int
	BySource   map[string]int64
	LastEvent  time.Time
}

// EventStore persists load events. RecordEvent reports false for an event
// it already holds.
type EventStore interface {
	RecordEvent(ctx context.Context, e storage.Event) (bool, error)
}

// AuditWorker logs every dataset load event and, with a store, keeps it.
// Redelivered messages are recognised and counted once.
type AuditWorker struct {
	logger *applog.Logger
	seen   *cache.LRUCache[struct{}]
	store  EventStore

	mu       sync.Mutex
	stats    Stats
	sessions map[string]struct{}
}

// NewAuditWorker creates a worker with empty statistics.
func NewAuditWorker() *AuditWorker {
	return &AuditWorker{
		logger:   applog.WithComponent(applog.ComponentAudit),
		seen:     cache.NewLRUCache[struct{}](seenCapacity, seenTTL),
		stats:    Stats{BySource: make(map[string]int64)},
		sessions: make(map[string]struct{}),
	}
}

// WithStore makes the worker persist events. A store error fails the
// message so the broker redelivers it.
func (w *AuditWorker) WithStore(store EventStore) *AuditWorker {
	w.store = store
	return w
}

// Cleaner lets a cache.Manager expire the redelivery window.
func (w *AuditWorker) Cleaner() cache.Cleaner {
	return w.seen
}

// HandleDatasetLoaded records one load event.
func (w *AuditWorker) HandleDatasetLoaded(ctx context.Context, msg *amqp.DatasetLoadedMessage) error {
	if msg == nil {
		return fmt.Errorf("nil message")
	}

	key := msg.SessionID + "|" + msg.Timestamp.UTC().Format(time.RFC3339Nano)
	if _, dup := w.seen.Get(key); dup {
		w.mu.Lock()
		w.stats.Duplicates++
		w.mu.Unlock()
		w.logger.DebugContext(ctx, "Duplicate dataset event ignored", applog.FieldSessionID, msg.SessionID)
		return nil
	}
	if w.store != nil {
		inserted, err := w.store.RecordEvent(ctx, storage.Event{
			SessionID: msg.SessionID,
			Source:    msg.Source,
			Rows:      msg.Rows,
			Classes:   msg.Classes,
			Students:  msg.Total,
			LoadedAt:  msg.Timestamp,
		})
		if err != nil {
			return fmt.Errorf("record event: %w", err)
		}
		if !inserted {
			w.seen.Set(key, struct{}{})
			w.mu.Lock()
			w.stats.Duplicates++
			w.mu.Unlock()
			return nil
		}
	}
	w.seen.Set(key, struct{}{})

	w.mu.Lock()
	w.stats.Events++
	w.stats.Students += msg.Total
	w.stats.BySource[msg.Source]++
	if msg.Timestamp.After(w.stats.LastEvent) {
		w.stats.LastEvent = msg.Timestamp
	}
	w.sessions[msg.SessionID] = struct{}{}
	w.mu.Unlock()

	fields := applog.NewFields().
		WithDataset(msg.Source, msg.Rows, msg.Classes, msg.Total).
		WithSession(msg.SessionID).
		WithOperation(applog.OpConsume)
	w.logger.InfoContext(ctx, "Dataset loaded", append(fields.ToSlice(), "loaded_at", msg.Timestamp.Format(time.RFC3339))...)
	return nil
}

// Stats returns a copy of the counters.
func (w *AuditWorker) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := w.stats
	out.Sessions = len(w.sessions)
	out.BySource = make(map[string]int64, len(w.stats.BySource))
	for k, v := range w.stats.BySource {
		out.BySource[k] = v
	}
	return out
}

// LogSummary writes the counters as one log line.
func (w *AuditWorker) LogSummary(ctx context.Context) {
	s := w.Stats()
	w.logger.InfoContext(ctx, "Audit summary",
		"events", s.Events,
		"duplicates", s.Duplicates,
		"sessions", s.Sessions,
		applog.FieldStudents, s.Students)
}
