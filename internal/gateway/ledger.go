// ABOUTME: Ledger event recording for messages crossing the gateway
// ABOUTME: Failures are logged and never affect the response

package gateway

import (
	"context"

	"github.com/google/uuid"

	"github.com/2389/switchboard/internal/message"
	"github.com/2389/switchboard/internal/store"
)

// agentAuthor is the author recorded on outbound events.
const agentAuthor = "agent"

func (g *Gateway) recordInbound(ctx context.Context, msg *message.UnifiedMessage) {
	g.recordEvent(ctx, &store.LedgerEvent{
		ID:        uuid.NewString(),
		TenantID:  msg.TenantID,
		SessionID: msg.SessionID,
		Channel:   string(msg.Channel),
		Direction: store.EventDirectionInbound,
		Author:    msg.UserID,
		Timestamp: g.now(),
		Type:      store.EventTypeMessage,
		Text:      msg.Text,
		MessageID: msg.ID,
	})
}

func (g *Gateway) recordOutbound(ctx context.Context, msg *message.UnifiedMessage, resp message.AgentResponse) {
	eventType := store.EventTypeMessage
	if !resp.Success {
		eventType = store.EventTypeError
	}
	g.recordEvent(ctx, &store.LedgerEvent{
		ID:        uuid.NewString(),
		TenantID:  msg.TenantID,
		SessionID: msg.SessionID,
		Channel:   string(msg.Channel),
		Direction: store.EventDirectionOutbound,
		Author:    agentAuthor,
		Timestamp: g.now(),
		Type:      eventType,
		Text:      resp.Response,
		MessageID: msg.ID,
	})
}

// recordEvent publishes event to the live feed and saves it to the ledger,
// each only when configured.
func (g *Gateway) recordEvent(ctx context.Context, event *store.LedgerEvent) {
	if g.feed != nil {
		g.feed.Publish(event)
	}
	if g.ledger == nil {
		return
	}
	// The reply has already been produced; a cancelled request still gets its events.
	if err := g.ledger.SaveEvent(context.WithoutCancel(ctx), event); err != nil {
		g.logger.Warn("failed to record ledger event",
			"event_id", event.ID,
			"session_id", event.SessionID,
			"direction", event.Direction,
			"error", err,
		)
	}
}
