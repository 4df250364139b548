// ABOUTME: Ledger interface and shared errors for gateway persistence
// ABOUTME: Implemented by SQLiteStore and the in-memory MockStore

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Ledger records message events and administrative actions.
type Ledger interface {
	SaveEvent(ctx context.Context, event *LedgerEvent) error
	GetEvent(ctx context.Context, id string) (*LedgerEvent, error)
	ListEventsBySession(ctx context.Context, sessionID string, limit int) ([]*LedgerEvent, error)
	ListEventsByTenant(ctx context.Context, tenantID string, limit int) ([]*LedgerEvent, error)
	PruneEventsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	AppendAuditLog(ctx context.Context, e *AuditEntry) error
	ListAuditLog(ctx context.Context, f AuditFilter) ([]AuditEntry, error)

	Close() error
}

// Compile-time checks
var (
	_ Ledger = (*SQLiteStore)(nil)
	_ Ledger = (*MockStore)(nil)
)

// normalizeEventLimit applies default (100) and cap (500) to event list limits.
func normalizeEventLimit(limit int) int {
	switch {
	case limit <= 0:
		return 100
	case limit > 500:
		return 500
	default:
		return limit
	}
}

// timeLayout is fixed width so lexical order in SQLite matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}
