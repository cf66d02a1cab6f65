// Package sqlite provides a SQLite-backed case store for single-node
// deployments and tests.
//
// Every transaction is opened with BEGIN IMMEDIATE (the _txlock=immediate
// DSN option), so the count-then-insert inside AppendTurnIfUnderCap holds
// the database write lock from its first statement. Two appenders can
// never both observe the same turn count. The (case_id, seq) unique
// constraint backs this up at the schema level.
//
// Database configuration:
//   - WAL mode for reads during writes
//   - busy_timeout=5000 so contended writers wait instead of failing
//   - foreign_keys=ON
//   - a single open connection, matching SQLite's single writer
package sqlite
