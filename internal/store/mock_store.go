// ABOUTME: Mock Ledger implementation for testing
// ABOUTME: Allows tests to run without SQLite and to inject save failures

package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MockStore is an in-memory Ledger implementation for testing.
type MockStore struct {
	mu     sync.RWMutex
	events []*LedgerEvent
	byID   map[string]*LedgerEvent
	audit  []AuditEntry

	// SaveErr, when set, is returned by SaveEvent.
	SaveErr error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		byID: make(map[string]*LedgerEvent),
	}
}

// SaveEvent stores a copy of the event.
func (m *MockStore) SaveEvent(ctx context.Context, event *LedgerEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SaveErr != nil {
		return m.SaveErr
	}
	if _, exists := m.byID[event.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateEvent, event.ID)
	}

	e := *event
	m.events = append(m.events, &e)
	m.byID[e.ID] = &e
	return nil
}

// GetEvent retrieves an event by ID.
func (m *MockStore) GetEvent(ctx context.Context, id string) (*LedgerEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.byID[id]
	if !ok {
		return nil, ErrEventNotFound
	}
	cp := *e
	return &cp, nil
}

// ListEventsBySession returns the newest limit events of a session, oldest first.
func (m *MockStore) ListEventsBySession(ctx context.Context, sessionID string, limit int) ([]*LedgerEvent, error) {
	events := m.filter(func(e *LedgerEvent) bool { return e.SessionID == sessionID })
	sort.SliceStable(events, func(i, j int) bool { return events[i].Timestamp.Before(events[j].Timestamp) })

	limit = normalizeEventLimit(limit)
	if len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events, nil
}

// ListEventsByTenant returns the newest limit events of a tenant, newest first.
func (m *MockStore) ListEventsByTenant(ctx context.Context, tenantID string, limit int) ([]*LedgerEvent, error) {
	events := m.filter(func(e *LedgerEvent) bool { return e.TenantID == tenantID })
	sort.SliceStable(events, func(i, j int) bool { return events[i].Timestamp.After(events[j].Timestamp) })

	limit = normalizeEventLimit(limit)
	if len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

// PruneEventsBefore removes events older than cutoff.
func (m *MockStore) PruneEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.events[:0]
	var removed int64
	for _, e := range m.events {
		if e.Timestamp.Before(cutoff) {
			delete(m.byID, e.ID)
			removed++
			continue
		}
		kept = append(kept, e)
	}
	m.events = kept
	return removed, nil
}

// AppendAuditLog records an audit entry.
func (m *MockStore) AppendAuditLog(ctx context.Context, e *AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	fillAuditDefaults(e)
	m.audit = append(m.audit, *e)
	return nil
}

// ListAuditLog returns audit entries matching the filter, newest first.
func (m *MockStore) ListAuditLog(ctx context.Context, f AuditFilter) ([]AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := []AuditEntry{}
	for i := len(m.audit) - 1; i >= 0; i-- {
		e := m.audit[i]
		if f.Since != nil && e.Timestamp.Before(*f.Since) {
			continue
		}
		if f.Actor != nil && e.Actor != *f.Actor {
			continue
		}
		if f.Action != nil && e.Action != *f.Action {
			continue
		}
		if f.TargetType != nil && e.TargetType != *f.TargetType {
			continue
		}
		if f.TargetID != nil && e.TargetID != *f.TargetID {
			continue
		}
		entries = append(entries, e)
		if len(entries) == normalizeAuditLimit(f.Limit) {
			break
		}
	}
	return entries, nil
}

// Events returns copies of every saved event in insertion order.
func (m *MockStore) Events() []LedgerEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]LedgerEvent, len(m.events))
	for i, e := range m.events {
		out[i] = *e
	}
	return out
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}

func (m *MockStore) filter(keep func(*LedgerEvent) bool) []*LedgerEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []*LedgerEvent{}
	for _, e := range m.events {
		if keep(e) {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out
}
