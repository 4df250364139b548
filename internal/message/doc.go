// Package message defines the canonical message shape shared by every channel
// the gateway serves, and the pure functions that produce it.
//
// # Overview
//
// Each front-end (web, Slack, Discord, Matrix) delivers text in its own
// dialect. The normalizers in this package turn an [Inbound] payload into a
// [UnifiedMessage]: whitespace is trimmed, platform mention tokens are
// stripped, and channel extras (channel id, thread id, guild id) are folded
// into [Metadata] next to a millisecond timestamp.
//
// # Metadata
//
// Metadata is a string-keyed map over a closed set of value kinds: strings,
// numbers and nested maps. JSON booleans decode to the strings "true" and
// "false"; arrays and nulls are rejected when decoding.
//
// # Responses
//
// [AgentResponse] is the envelope returned to adapters. Its Extra map is
// flattened into the JSON object next to success, response and sessionId.
package message
