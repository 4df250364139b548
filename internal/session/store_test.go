// ABOUTME: Tests for the session store: id resolution, merge, reaping and sweeper
// ABOUTME: Uses an injected clock so idle expiry is deterministic

package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/switchboard/internal/message"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestGetOrCreate_SynthesizesID(t *testing.T) {
	clock := newFakeClock()
	s := New(WithClock(clock.Now))

	sess := s.GetOrCreate("u1", "default", message.ChannelSlack, "")
	assert.Equal(t, fmt.Sprintf("default-u1-slack-%d", clock.Now().UnixMilli()), sess.ID)
	assert.Equal(t, clock.Now(), sess.CreatedAt)
	assert.Equal(t, sess.CreatedAt, sess.LastActivity)
}

func TestGetOrCreate_ExplicitIDIsStable(t *testing.T) {
	clock := newFakeClock()
	s := New(WithClock(clock.Now))

	first := s.GetOrCreate("u1", "acme", message.ChannelWeb, "abc")
	clock.Advance(time.Minute)
	second := s.GetOrCreate("u1", "acme", message.ChannelWeb, "abc")

	assert.Equal(t, "abc", first.ID)
	assert.Equal(t, "abc", second.ID)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.True(t, second.LastActivity.After(first.LastActivity))
	assert.Equal(t, 1, s.Len())
}

func TestGetOrCreate_ExplicitIDFromOtherTenant(t *testing.T) {
	clock := newFakeClock()
	s := New(WithClock(clock.Now))

	owned := s.GetOrCreate("u1", "acme", message.ChannelWeb, "shared")
	other := s.GetOrCreate("u1", "globex", message.ChannelWeb, "shared")

	assert.Equal(t, "shared", owned.ID)
	assert.NotEqual(t, "shared", other.ID)
	assert.Equal(t, "globex", other.TenantID)

	got, ok := s.Get("shared")
	require.True(t, ok)
	assert.Equal(t, "acme", got.TenantID)
}

func TestUpdate_MergesMetadata(t *testing.T) {
	clock := newFakeClock()
	s := New(WithClock(clock.Now))
	sess := s.GetOrCreate("u", "t", message.ChannelWeb, "s1")

	_, ok := s.Update(sess.ID, message.Metadata{"a": message.String("1")})
	require.True(t, ok)
	clock.Advance(time.Second)
	updated, ok := s.Update(sess.ID, message.Metadata{"b": message.String("2")})
	require.True(t, ok)

	assert.Equal(t, "1", updated.Metadata.Get("a"))
	assert.Equal(t, "2", updated.Metadata.Get("b"))
	assert.Equal(t, clock.Now(), updated.LastActivity)
}

func TestUpdate_Absent(t *testing.T) {
	s := New()
	_, ok := s.Update("missing", message.Metadata{"a": message.String("1")})
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())
}

func TestGet_ReturnsSnapshot(t *testing.T) {
	s := New()
	s.GetOrCreate("u", "t", message.ChannelWeb, "s1")
	s.Update("s1", message.Metadata{"k": message.String("v")})

	got, _ := s.Get("s1")
	got.Metadata["k"] = message.String("mutated")

	again, _ := s.Get("s1")
	assert.Equal(t, "v", again.Metadata.Get("k"))
}

func TestList_ReapsIdleBeforeFiltering(t *testing.T) {
	clock := newFakeClock()
	s := New(WithClock(clock.Now))

	s.GetOrCreate("old", "acme", message.ChannelWeb, "old")
	clock.Advance(25 * time.Hour)
	s.GetOrCreate("new", "acme", message.ChannelWeb, "new")
	s.GetOrCreate("other", "globex", message.ChannelWeb, "other")

	// Still readable until something enumerates.
	_, ok := s.Get("old")
	assert.True(t, ok)

	acme := s.List("acme")
	require.Len(t, acme, 1)
	assert.Equal(t, "new", acme[0].ID)

	_, ok = s.Get("old")
	assert.False(t, ok, "reaped by List")
	assert.Len(t, s.List(""), 2)
}

func TestSweep(t *testing.T) {
	clock := newFakeClock()
	s := New(WithClock(clock.Now), WithIdleTimeout(time.Hour))

	s.GetOrCreate("a", "t", message.ChannelWeb, "a")
	s.GetOrCreate("b", "t", message.ChannelWeb, "b")
	clock.Advance(30 * time.Minute)
	s.GetOrCreate("b", "t", message.ChannelWeb, "b")
	clock.Advance(45 * time.Minute)

	assert.Equal(t, 1, s.Sweep())
	_, ok := s.Get("b")
	assert.True(t, ok)
}

func TestClear(t *testing.T) {
	s := New()
	s.GetOrCreate("u", "t", message.ChannelWeb, "x")
	assert.True(t, s.Clear("x"))
	assert.False(t, s.Clear("x"))
}

func TestStats(t *testing.T) {
	s := New()
	s.GetOrCreate("u1", "t", message.ChannelWeb, "s-b")
	s.GetOrCreate("u2", "t", message.ChannelDiscord, "s-a")

	st := s.Stats()
	assert.Equal(t, 2, st.TotalSessions)
	require.Len(t, st.Sessions, 2)
	assert.Equal(t, "s-a", st.Sessions[0].SessionID)
	assert.Equal(t, message.ChannelDiscord, st.Sessions[0].Channel)
}

func TestStartSweeper_RemovesIdle(t *testing.T) {
	clock := newFakeClock()
	s := New(WithClock(clock.Now), WithIdleTimeout(time.Minute))
	defer s.Close()

	s.GetOrCreate("u", "t", message.ChannelWeb, "x")
	clock.Advance(2 * time.Minute)
	s.StartSweeper(5 * time.Millisecond)

	assert.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestClose_WithoutSweeper(t *testing.T) {
	s := New()
	assert.NoError(t, s.Close())
}

func TestConcurrentUpdates_NoLostKeys(t *testing.T) {
	s := New()
	s.GetOrCreate("u", "t", message.ChannelWeb, "shared")

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			s.GetOrCreate("u", "t", message.ChannelWeb, "shared")
			s.Update("shared", message.Metadata{fmt.Sprintf("k%d", n): message.Int(int64(n))})
		}(i)
	}
	wg.Wait()

	got, ok := s.Get("shared")
	require.True(t, ok)
	assert.Len(t, got.Metadata, 50)
	assert.Equal(t, 1, s.Len())
}
