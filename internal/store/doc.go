// Package store provides persistent storage for the relay gateway using SQLite.
//
// # Data Models
//
//   - Message: the canonical record every delivery backend normalizes into.
//     Append-only; the sole mutations are append and retention trim.
//   - ConversationSummary: query-time projection of messages grouped by
//     phone number. Conversations are never created or deleted directly.
//   - Campaign: lifecycle record of a batch fan-out, with replace-style
//     progress updates (callers supply cumulative totals, not deltas).
//
// # Serialization
//
// The Store contract requires that no concurrent append loses a record and
// that campaign progress updates for one id never interleave mid-cycle.
// SQLiteStore meets this by running each append+trim and each campaign
// read-modify-write inside a single transaction on a single writer
// connection. MockStore uses one mutex for the same effect.
//
// # Retention
//
// Message retention is global, not per conversation: when the total record
// count passes the bound (default 1000), the oldest records are dropped
// first regardless of phone number.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// # Error Handling
//
// Common errors:
//
//   - ErrNotFound: Requested entity does not exist
//   - ErrDuplicateCampaign: Campaign id already tracked
//
// All methods accept context.Context for cancellation support.
//
// # Testing
//
// Use NewMockStore() for unit tests, or NewSQLiteStore with a temp path for
// integration tests against real SQLite.
package store
