// Package conversation fans recorded message traffic out to live watchers.
//
// The gateway publishes every ledger event it records, whether or not a
// ledger is configured. Subscribers pick one tenant or every tenant:
//
//	ch, _ := feed.Subscribe(ctx, "acme")              // one tenant
//	all, _ := feed.Subscribe(ctx, conversation.AllTenants)
//
// Delivery is best-effort. A subscriber whose buffer is full misses events
// rather than slowing the message pipeline down. Subscriptions end when their
// context is cancelled or the broadcaster is closed; either way the channel is
// closed.
//
// The admin API exposes the feed as server-sent events on
// GET /api/events/stream.
package conversation
