// ABOUTME: Ledger events recording every message in and out of the gateway
// ABOUTME: Provides the LedgerEvent type and its SQLite persistence

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrEventNotFound is returned when a requested event does not exist
var ErrEventNotFound = errors.New("event not found")

// ErrDuplicateEvent is returned when an event id is saved twice
var ErrDuplicateEvent = errors.New("duplicate event")

// EventDirection indicates whether an event is inbound (to agent) or outbound (from agent)
type EventDirection string

const (
	EventDirectionInbound  EventDirection = "inbound_to_agent"
	EventDirectionOutbound EventDirection = "outbound_from_agent"
)

// EventType categorizes the kind of event
type EventType string

const (
	EventTypeMessage EventType = "message"
	EventTypeError   EventType = "error"
)

// LedgerEvent is one message crossing the gateway.
type LedgerEvent struct {
	ID        string         `json:"id"`
	TenantID  string         `json:"tenantId"`
	SessionID string         `json:"sessionId"`
	Channel   string         `json:"channel"`
	Direction EventDirection `json:"direction"`
	Author    string         `json:"author"` // user id inbound, "agent" outbound
	Timestamp time.Time      `json:"timestamp"`
	Type      EventType      `json:"type"`
	Text      string         `json:"text,omitempty"`
	MessageID string         `json:"messageId,omitempty"` // normalized message id
}

const eventColumns = `event_id, tenant_id, session_id, channel, direction, author, timestamp, type, text, message_id`

// SaveEvent persists a ledger event to the database
func (s *SQLiteStore) SaveEvent(ctx context.Context, event *LedgerEvent) error {
	query := `INSERT INTO ledger_events (` + eventColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.TenantID,
		event.SessionID,
		event.Channel,
		string(event.Direction),
		event.Author,
		formatTime(event.Timestamp),
		string(event.Type),
		nullString(event.Text),
		nullString(event.MessageID),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateEvent, event.ID)
		}
		return fmt.Errorf("inserting event: %w", err)
	}

	s.logger.Debug("saved ledger event",
		"event_id", event.ID,
		"session_id", event.SessionID,
		"direction", event.Direction,
		"type", event.Type,
	)
	return nil
}

// GetEvent retrieves a single event by ID
func (s *SQLiteStore) GetEvent(ctx context.Context, id string) (*LedgerEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM ledger_events WHERE event_id = ?`

	event, err := scanEvent(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	return event, nil
}

// ListEventsBySession returns the most recent events of a session, oldest first.
func (s *SQLiteStore) ListEventsBySession(ctx context.Context, sessionID string, limit int) ([]*LedgerEvent, error) {
	query := `
		SELECT ` + eventColumns + ` FROM (
			SELECT rowid AS seq, ` + eventColumns + `
			FROM ledger_events
			WHERE session_id = ?
			ORDER BY timestamp DESC, seq DESC
			LIMIT ?
		) ORDER BY timestamp ASC, seq ASC
	`
	return s.queryEvents(ctx, query, sessionID, normalizeEventLimit(limit))
}

// ListEventsByTenant returns the most recent events of a tenant, newest first.
func (s *SQLiteStore) ListEventsByTenant(ctx context.Context, tenantID string, limit int) ([]*LedgerEvent, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM ledger_events
		WHERE tenant_id = ?
		ORDER BY timestamp DESC, rowid DESC
		LIMIT ?
	`
	return s.queryEvents(ctx, query, tenantID, normalizeEventLimit(limit))
}

// PruneEventsBefore deletes events older than cutoff and returns how many were removed.
func (s *SQLiteStore) PruneEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM ledger_events WHERE timestamp < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("pruning events: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	if n > 0 {
		s.logger.Info("pruned ledger events", "count", n, "before", cutoff)
	}
	return n, nil
}

func (s *SQLiteStore) queryEvents(ctx context.Context, query string, args ...any) ([]*LedgerEvent, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	events := []*LedgerEvent{}
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating event rows: %w", err)
	}
	return events, nil
}

func scanEvent(scanner interface{ Scan(dest ...any) error }) (*LedgerEvent, error) {
	event := &LedgerEvent{}
	var timestampStr, direction, eventType string
	var text, messageID sql.NullString

	if err := scanner.Scan(
		&event.ID,
		&event.TenantID,
		&event.SessionID,
		&event.Channel,
		&direction,
		&event.Author,
		&timestampStr,
		&eventType,
		&text,
		&messageID,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning event row: %w", err)
	}

	event.Direction = EventDirection(direction)
	event.Type = EventType(eventType)
	event.Text = text.String
	event.MessageID = messageID.String

	var err error
	event.Timestamp, err = parseTime(timestampStr)
	if err != nil {
		return nil, fmt.Errorf("parsing timestamp: %w", err)
	}
	return event, nil
}
