// ABOUTME: In-memory fan-out of recorded ledger events to live watchers
// ABOUTME: Subscribers register per tenant or for all tenants; slow ones drop events

package conversation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/switchboard/internal/store"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 64

	// AllTenants subscribes to events of every tenant.
	AllTenants = ""
)

// EventBroadcaster provides in-memory pub/sub for LedgerEvents keyed by tenant.
type EventBroadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan *store.LedgerEvent // tenantID -> subID -> ch
	closed      bool
	logger      *slog.Logger
}

// NewEventBroadcaster creates a broadcaster. Pass nil logger for default.
func NewEventBroadcaster(logger *slog.Logger) *EventBroadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventBroadcaster{
		subscribers: make(map[string]map[string]chan *store.LedgerEvent),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers for events of tenantID, or of every tenant when
// tenantID is AllTenants. The subscription is removed and its channel closed
// when ctx is cancelled. On a closed broadcaster the channel is already closed.
func (b *EventBroadcaster) Subscribe(ctx context.Context, tenantID string) (<-chan *store.LedgerEvent, string) {
	subID := uuid.New().String()
	ch := make(chan *store.LedgerEvent, subscriberBufferSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, subID
	}
	if _, ok := b.subscribers[tenantID]; !ok {
		b.subscribers[tenantID] = make(map[string]chan *store.LedgerEvent)
	}
	b.subscribers[tenantID][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "tenant_id", tenantID, "sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(tenantID, subID)
	}()

	return ch, subID
}

// Publish delivers event to subscribers of its tenant and to AllTenants
// subscribers. It never blocks: full subscriber buffers drop the event.
func (b *EventBroadcaster) Publish(event *store.LedgerEvent) {
	if event == nil {
		return
	}

	// Sends happen under the read lock so Unsubscribe cannot close a channel
	// mid-send. They are non-blocking, so the lock is held briefly.
	b.mu.RLock()
	defer b.mu.RUnlock()

	b.deliverLocked(event.TenantID, event)
	if event.TenantID != AllTenants {
		b.deliverLocked(AllTenants, event)
	}
}

func (b *EventBroadcaster) deliverLocked(key string, event *store.LedgerEvent) {
	for subID, ch := range b.subscribers[key] {
		select {
		case ch <- event:
		default:
			b.logger.Debug("dropped event for slow subscriber",
				"tenant_id", event.TenantID,
				"sub_id", subID,
				"event_id", event.ID)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *EventBroadcaster) Unsubscribe(tenantID, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[tenantID]
	if !ok {
		return
	}
	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)
	if len(subs) == 0 {
		delete(b.subscribers, tenantID)
	}

	b.logger.Debug("subscriber removed", "tenant_id", tenantID, "sub_id", subID)
}

// Subscribers returns the number of live subscriptions.
func (b *EventBroadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for _, subs := range b.subscribers {
		n += len(subs)
	}
	return n
}

// Close closes every subscriber channel. Later subscriptions get a closed channel.
func (b *EventBroadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for tenantID, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, tenantID)
	}

	b.logger.Debug("broadcaster closed")
}
