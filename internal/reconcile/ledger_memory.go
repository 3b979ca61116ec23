package reconcile

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryLedger is an in-process Ledger. Entries do not survive a restart.
type MemoryLedger struct {
	mu      sync.Mutex
	orphans map[string]time.Time
	events  map[string]PendingEvent
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		orphans: make(map[string]time.Time),
		events:  make(map[string]PendingEvent),
	}
}

func (l *MemoryLedger) RecordOrphan(_ context.Context, storageKey string, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, seen := l.orphans[storageKey]; !seen {
		l.orphans[storageKey] = at
	}
	return nil
}

func (l *MemoryLedger) RecordPendingEvent(_ context.Context, event PendingEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	event.Payload = append([]byte(nil), event.Payload...)
	l.events[event.ID] = event
	return nil
}

func (l *MemoryLedger) DueOrphans(_ context.Context, before time.Time, limit int) ([]Orphan, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Orphan, 0)
	for key, at := range l.orphans {
		if !at.After(before) {
			out = append(out, Orphan{StorageKey: key, RecordedAt: at})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordedAt.Before(out[j].RecordedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (l *MemoryLedger) PendingEvents(_ context.Context, limit int) ([]PendingEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]PendingEvent, 0, len(l.events))
	for _, ev := range l.events {
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordedAt.Before(out[j].RecordedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (l *MemoryLedger) ForgetOrphan(_ context.Context, storageKey string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.orphans, storageKey)
	return nil
}

func (l *MemoryLedger) ForgetPendingEvent(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.events, id)
	return nil
}
