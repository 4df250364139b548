// ABOUTME: Tests for the administrative audit log
// ABOUTME: Covers defaults, detail round trip, filters and ordering

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAuditLog_FillsDefaults(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	e := &AuditEntry{
		Actor:      "ops",
		Action:     AuditRegisterTenant,
		TargetType: "tenant",
		TargetID:   "acme",
		Detail:     map[string]any{"invokeUrl": "http://agent/api"},
	}
	require.NoError(t, store.AppendAuditLog(ctx, e))
	assert.NotEmpty(t, e.ID)
	assert.False(t, e.Timestamp.IsZero())

	entries, err := store.ListAuditLog(ctx, AuditFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ops", entries[0].Actor)
	assert.Equal(t, AuditRegisterTenant, entries[0].Action)
	assert.Equal(t, "http://agent/api", entries[0].Detail["invokeUrl"])
}

func TestListAuditLog_Filters(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	entries := []*AuditEntry{
		{Actor: "alice", Action: AuditRegisterTenant, TargetType: "tenant", TargetID: "acme", Timestamp: base},
		{Actor: "bob", Action: AuditClearSession, TargetType: "session", TargetID: "s1", Timestamp: base.Add(time.Second)},
		{Actor: "alice", Action: AuditRemoveTenant, TargetType: "tenant", TargetID: "acme", Timestamp: base.Add(2 * time.Second)},
	}
	for _, e := range entries {
		require.NoError(t, store.AppendAuditLog(ctx, e))
	}

	all, err := store.ListAuditLog(ctx, AuditFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, AuditRemoveTenant, all[0].Action, "newest first")

	alice := "alice"
	byActor, err := store.ListAuditLog(ctx, AuditFilter{Actor: &alice})
	require.NoError(t, err)
	assert.Len(t, byActor, 2)

	action := AuditClearSession
	byAction, err := store.ListAuditLog(ctx, AuditFilter{Action: &action})
	require.NoError(t, err)
	require.Len(t, byAction, 1)
	assert.Equal(t, "s1", byAction[0].TargetID)

	since := base.Add(time.Second)
	recent, err := store.ListAuditLog(ctx, AuditFilter{Since: &since})
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	limited, err := store.ListAuditLog(ctx, AuditFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
