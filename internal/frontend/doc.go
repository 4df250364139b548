// Package frontend contains the channel adapters that carry platform
// messages into the gateway and deliver the agent's reply back.
//
// The web adapter serves POST /api/chat and a websocket at /api/ws. The
// Slack, Discord and Matrix adapters hold a long-lived platform connection
// opened by Initialize and released by Close. Chat adapters submit through
// HandleBridgeMessage so platform redeliveries are dropped.
package frontend
