// ABOUTME: Tests for ledger event store operations
// ABOUTME: Covers save/get, session and tenant listing order, limits and pruning

package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEvent(id, tenant, session string, ts time.Time, dir EventDirection) *LedgerEvent {
	return &LedgerEvent{
		ID:        id,
		TenantID:  tenant,
		SessionID: session,
		Channel:   "slack",
		Direction: dir,
		Author:    "U123",
		Timestamp: ts,
		Type:      EventTypeMessage,
		Text:      "text of " + id,
	}
}

func TestEventStore_SaveEvent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	ts := time.Date(2026, 3, 4, 5, 6, 7, 891011, time.UTC)
	event := testEvent("event-123", "acme", "acme-U123-slack-1", ts, EventDirectionInbound)
	event.MessageID = "1772600767000-abcdef012"

	require.NoError(t, store.SaveEvent(ctx, event))

	retrieved, err := store.GetEvent(ctx, "event-123")
	require.NoError(t, err)
	assert.Equal(t, "acme", retrieved.TenantID)
	assert.Equal(t, "acme-U123-slack-1", retrieved.SessionID)
	assert.Equal(t, "slack", retrieved.Channel)
	assert.Equal(t, EventDirectionInbound, retrieved.Direction)
	assert.Equal(t, EventTypeMessage, retrieved.Type)
	assert.Equal(t, "text of event-123", retrieved.Text)
	assert.Equal(t, "1772600767000-abcdef012", retrieved.MessageID)
	assert.True(t, ts.Equal(retrieved.Timestamp), "timestamp keeps nanoseconds")
}

func TestEventStore_SaveEvent_EmptyOptionalFields(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	event := testEvent("bare", "t", "s", time.Now(), EventDirectionOutbound)
	event.Text = ""
	event.Type = EventTypeError
	require.NoError(t, store.SaveEvent(ctx, event))

	retrieved, err := store.GetEvent(ctx, "bare")
	require.NoError(t, err)
	assert.Empty(t, retrieved.Text)
	assert.Empty(t, retrieved.MessageID)
	assert.Equal(t, EventTypeError, retrieved.Type)
}

func TestEventStore_SaveEvent_Duplicate(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	event := testEvent("dup", "t", "s", time.Now(), EventDirectionInbound)
	require.NoError(t, store.SaveEvent(ctx, event))
	assert.ErrorIs(t, store.SaveEvent(ctx, event), ErrDuplicateEvent)
}

func TestEventStore_SaveEvent_RejectsUnknownDirection(t *testing.T) {
	store := setupTestStore(t)

	event := testEvent("bad", "t", "s", time.Now(), EventDirection("sideways"))
	assert.Error(t, store.SaveEvent(context.Background(), event))
}

func TestEventStore_GetEvent_NotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetEvent(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestEventStore_ListEventsBySession(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	// Inserted out of order.
	require.NoError(t, store.SaveEvent(ctx, testEvent("e3", "t", "s1", base.Add(3*time.Second), EventDirectionInbound)))
	require.NoError(t, store.SaveEvent(ctx, testEvent("e1", "t", "s1", base.Add(1*time.Second), EventDirectionInbound)))
	require.NoError(t, store.SaveEvent(ctx, testEvent("e2", "t", "s1", base.Add(2*time.Second), EventDirectionOutbound)))
	require.NoError(t, store.SaveEvent(ctx, testEvent("other", "t", "s2", base, EventDirectionInbound)))

	events, err := store.ListEventsBySession(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "e1", events[0].ID)
	assert.Equal(t, "e2", events[1].ID)
	assert.Equal(t, "e3", events[2].ID)
}

func TestEventStore_ListEventsBySession_LimitKeepsNewest(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	for i := range 5 {
		id := fmt.Sprintf("e%d", i)
		require.NoError(t, store.SaveEvent(ctx, testEvent(id, "t", "s1", base.Add(time.Duration(i)*time.Second), EventDirectionInbound)))
	}

	events, err := store.ListEventsBySession(ctx, "s1", 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "e3", events[0].ID)
	assert.Equal(t, "e4", events[1].ID)
}

func TestEventStore_ListEventsBySession_Empty(t *testing.T) {
	store := setupTestStore(t)

	events, err := store.ListEventsBySession(context.Background(), "nobody", 10)
	require.NoError(t, err)
	assert.NotNil(t, events)
	assert.Empty(t, events)
}

func TestEventStore_ListEventsByTenant(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	require.NoError(t, store.SaveEvent(ctx, testEvent("a1", "acme", "s1", base, EventDirectionInbound)))
	require.NoError(t, store.SaveEvent(ctx, testEvent("a2", "acme", "s2", base.Add(time.Second), EventDirectionInbound)))
	require.NoError(t, store.SaveEvent(ctx, testEvent("g1", "globex", "s3", base, EventDirectionInbound)))

	events, err := store.ListEventsByTenant(ctx, "acme", 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "a2", events[0].ID, "newest first")
	assert.Equal(t, "a1", events[1].ID)
}

func TestEventStore_PruneEventsBefore(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	require.NoError(t, store.SaveEvent(ctx, testEvent("old", "t", "s", base.Add(-48*time.Hour), EventDirectionInbound)))
	require.NoError(t, store.SaveEvent(ctx, testEvent("new", "t", "s", base, EventDirectionInbound)))

	n, err := store.PruneEventsBefore(ctx, base.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = store.GetEvent(ctx, "old")
	assert.ErrorIs(t, err, ErrEventNotFound)
	_, err = store.GetEvent(ctx, "new")
	assert.NoError(t, err)
}

func TestNormalizeEventLimit(t *testing.T) {
	assert.Equal(t, 100, normalizeEventLimit(0))
	assert.Equal(t, 100, normalizeEventLimit(-3))
	assert.Equal(t, 7, normalizeEventLimit(7))
	assert.Equal(t, 500, normalizeEventLimit(10_000))
}
