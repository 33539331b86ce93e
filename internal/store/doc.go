// Package store provides SQLite-backed storage for the reference remote
// store and the client-side outbox journal.
//
// Server tables:
//   - students: autoincrement ids, seed flag, optional team member
//   - story_states: one canonical JSON document per (student_id, story);
//     last write wins
//   - measurements: one row per (student_id, galaxy_name); upserted
//
// Client table:
//   - outbox: one row per write or measurement submission, keyed by a
//     ULID, with status pending, sent or failed
//
// Story states are stored in canonical JSON (sorted keys, NFC strings)
// together with their domain-separated content hash, so identical states
// always produce identical rows.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
package store
