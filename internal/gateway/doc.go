// Package gateway is the message pipeline at the center of switchboard.
//
// A Gateway owns the tenant registry, the session store and one agent
// invoker per tenant. Adapters hand it a raw message and a channel tag;
// ProcessMessage validates the tenant, normalizes the message, resolves the
// session, invokes the tenant's agent and returns an AgentResponse. Every
// failure comes back as an unsuccessful envelope rather than an error.
//
// # Pipeline
//
//	adapter -> ProcessMessage(raw, channel)
//	  -> tenant gate -> normalize -> validate -> session
//	  -> invoke agent -> update session -> AgentResponse
//
// Chat adapters call HandleBridgeMessage instead, which drops platform
// redeliveries before entering the pipeline.
//
// # Ledger
//
// When a store.Ledger is configured every processed message produces an
// inbound and an outbound ledger event keyed by session id. Ledger errors are
// logged and never change the response.
//
// # Health
//
// HealthCheck probes every tenant's agent concurrently and reports healthy,
// degraded or unhealthy.
package gateway
