// Package session tracks conversational sessions across messages.
//
// A session is keyed by id and owned by one tenant. The gateway resolves a
// session for every message, either under the id the adapter supplied or
// under a synthesized tenant-user-channel-millis id, and merges state into
// its metadata after the agent replies.
//
// Idle sessions (24h by default) are reaped whenever sessions are listed, and
// by an optional background sweeper started with StartSweeper. Get does not
// reap, so a session that is never listed or swept stays readable.
//
// Every method returns copies. The store owns its records.
package session
