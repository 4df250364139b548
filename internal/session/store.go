// ABOUTME: In-memory session store with idle expiry and metadata merge
// ABOUTME: Read-then-write paths run under one write lock so concurrent updates never lose keys

package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/2389/switchboard/internal/message"
)

// DefaultIdleTimeout is how long a session may sit unused before it is reaped.
const DefaultIdleTimeout = 24 * time.Hour

// Session is one conversation between a user and a tenant's agent.
type Session struct {
	ID           string           `json:"sessionId"`
	UserID       string           `json:"userId"`
	TenantID     string           `json:"tenantId"`
	Channel      message.Channel  `json:"channel"`
	CreatedAt    time.Time        `json:"createdAt"`
	LastActivity time.Time        `json:"lastActivity"`
	Metadata     message.Metadata `json:"metadata,omitempty"`
}

func (s *Session) snapshot() Session {
	out := *s
	out.Metadata = s.Metadata.Clone()
	return out
}

// Summary is the per-session row in Stats.
type Summary struct {
	SessionID    string          `json:"sessionId"`
	UserID       string          `json:"userId"`
	TenantID     string          `json:"tenantId"`
	Channel      message.Channel `json:"channel"`
	CreatedAt    time.Time       `json:"createdAt"`
	LastActivity time.Time       `json:"lastActivity"`
}

// Stats summarizes the store contents.
type Stats struct {
	TotalSessions int       `json:"totalSessions"`
	Sessions      []Summary `json:"sessions"`
}

// Store is a concurrency-safe in-memory session store.
type Store struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	idleTimeout time.Duration
	now         func() time.Time
	logger      *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Store.
type Option func(*Store)

// WithIdleTimeout overrides the idle threshold.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.idleTimeout = d
		}
	}
}

// WithClock replaces the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		sessions:    make(map[string]*Session),
		idleTimeout: DefaultIdleTimeout,
		now:         time.Now,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "sessions")
	return s
}

// IdleTimeout returns the configured idle threshold.
func (s *Store) IdleTimeout() time.Duration {
	return s.idleTimeout
}

// NewID synthesizes a session id for a tenant, user and channel.
func NewID(tenantID, userID string, channel message.Channel, now time.Time) string {
	return fmt.Sprintf("%s-%s-%s-%d", tenantID, userID, channel, now.UnixMilli())
}

// GetOrCreate resolves the session for a message.
//
// An explicit id that exists in the same tenant is refreshed and returned. An
// explicit id that does not exist is created under that id. An explicit id
// owned by another tenant is never reused; a fresh id is synthesized instead.
// Without an explicit id a new id is synthesized.
func (s *Store) GetOrCreate(userID, tenantID string, channel message.Channel, explicitID string) Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	id := explicitID
	if id != "" {
		if existing, ok := s.sessions[id]; ok && existing.TenantID != tenantID {
			s.logger.Warn("session id belongs to another tenant, creating a new session",
				"session_id", id,
				"tenant_id", tenantID,
			)
			id = ""
		}
	}
	if id == "" {
		id = NewID(tenantID, userID, channel, now)
	}

	if existing, ok := s.sessions[id]; ok {
		existing.LastActivity = now
		return existing.snapshot()
	}

	sess := &Session{
		ID:           id,
		UserID:       userID,
		TenantID:     tenantID,
		Channel:      channel,
		CreatedAt:    now,
		LastActivity: now,
		Metadata:     message.Metadata{},
	}
	s.sessions[id] = sess

	s.logger.Debug("session created",
		"session_id", id,
		"tenant_id", tenantID,
		"channel", channel,
	)
	return sess.snapshot()
}

// Get returns a session by id. It does not check expiry.
func (s *Store) Get(id string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, false
	}
	return sess.snapshot(), true
}

// Update merges patch into the session metadata and bumps LastActivity.
func (s *Store) Update(id string, patch message.Metadata) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, false
	}
	if sess.Metadata == nil {
		sess.Metadata = message.Metadata{}
	}
	sess.Metadata.Merge(patch)
	sess.LastActivity = s.now()
	return sess.snapshot(), true
}

// List reaps idle sessions, then returns those belonging to tenantID, or all
// sessions when tenantID is empty. Results are ordered by creation time.
func (s *Store) List(tenantID string) []Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reapLocked()

	out := make([]Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		if tenantID != "" && sess.TenantID != tenantID {
			continue
		}
		out = append(out, sess.snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Clear removes a session and reports whether it existed.
func (s *Store) Clear(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	return true
}

// Stats returns the session count and a summary row per session.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		TotalSessions: len(s.sessions),
		Sessions:      make([]Summary, 0, len(s.sessions)),
	}
	for _, sess := range s.sessions {
		st.Sessions = append(st.Sessions, Summary{
			SessionID:    sess.ID,
			UserID:       sess.UserID,
			TenantID:     sess.TenantID,
			Channel:      sess.Channel,
			CreatedAt:    sess.CreatedAt,
			LastActivity: sess.LastActivity,
		})
	}
	sort.Slice(st.Sessions, func(i, j int) bool { return st.Sessions[i].SessionID < st.Sessions[j].SessionID })
	return st
}

// Len returns the number of stored sessions, idle ones included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep removes idle sessions and returns how many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reapLocked()
}

// reapLocked deletes sessions idle longer than the threshold. Must be called with mu held.
func (s *Store) reapLocked() int {
	cutoff := s.now().Add(-s.idleTimeout)
	removed := 0
	for id, sess := range s.sessions {
		if sess.LastActivity.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		s.logger.Debug("reaped idle sessions", "count", removed)
	}
	return removed
}

// StartSweeper runs Sweep every interval until Close is called.
func (s *Store) StartSweeper(interval time.Duration) {
	if interval <= 0 || s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep()
			}
		}
	}()
}

// Close stops the sweeper and waits for it to exit. Safe to call without StartSweeper.
func (s *Store) Close() error {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	return nil
}
