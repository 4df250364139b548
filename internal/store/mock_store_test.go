// ABOUTME: Tests for the in-memory MockStore
// ABOUTME: Keeps the mock's ordering and limits in line with SQLiteStore

package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockStore_MatchesSQLiteOrdering(t *testing.T) {
	ctx := context.Background()
	base := time.Now().UTC()

	for _, ledger := range []Ledger{NewMockStore(), setupTestStore(t)} {
		for i := range 4 {
			id := fmt.Sprintf("e%d", i)
			require.NoError(t, ledger.SaveEvent(ctx, testEvent(id, "t", "s", base.Add(time.Duration(i)*time.Second), EventDirectionInbound)))
		}

		session, err := ledger.ListEventsBySession(ctx, "s", 3)
		require.NoError(t, err)
		require.Len(t, session, 3)
		assert.Equal(t, "e1", session[0].ID)
		assert.Equal(t, "e3", session[2].ID)

		tenant, err := ledger.ListEventsByTenant(ctx, "t", 2)
		require.NoError(t, err)
		require.Len(t, tenant, 2)
		assert.Equal(t, "e3", tenant[0].ID)
	}
}

func TestMockStore_SaveErr(t *testing.T) {
	m := NewMockStore()
	m.SaveErr = errors.New("disk full")

	err := m.SaveEvent(context.Background(), testEvent("x", "t", "s", time.Now(), EventDirectionInbound))
	assert.EqualError(t, err, "disk full")
	assert.Empty(t, m.Events())
}

func TestMockStore_ReturnsCopies(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()
	require.NoError(t, m.SaveEvent(ctx, testEvent("x", "t", "s", time.Now(), EventDirectionInbound)))

	got, err := m.GetEvent(ctx, "x")
	require.NoError(t, err)
	got.Text = "changed"

	again, _ := m.GetEvent(ctx, "x")
	assert.Equal(t, "text of x", again.Text)
}

func TestMockStore_Prune(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, m.SaveEvent(ctx, testEvent("old", "t", "s", now.Add(-time.Hour), EventDirectionInbound)))
	require.NoError(t, m.SaveEvent(ctx, testEvent("new", "t", "s", now, EventDirectionInbound)))

	n, err := m.PruneEventsBefore(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Len(t, m.Events(), 1)
}
