// Package store persists the gateway's message ledger in SQLite.
//
// Sessions and tenants live in memory; the ledger is the only durable state.
// Every processed message produces an inbound event (user to agent) and an
// outbound event (agent reply or failure text), both keyed by session id so
// operators can replay a conversation after the fact.
//
// # SQLite Configuration
//
// The store uses the pure-Go modernc.org/sqlite driver with WAL mode:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// Pass ":memory:" for a throwaway database in tests.
//
// # Testing
//
// MockStore implements Ledger in memory for tests that do not need SQLite.
package store
