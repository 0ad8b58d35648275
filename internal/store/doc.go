// Package store provides SQLite-backed durable storage for execution
// sessions, step records, and vote ledgers.
//
// The store is the resume point for long-running sessions: every step
// transition and every accepted vote is persisted before the caller
// moves on, so an interrupted execution picks up at the first
// non-terminal step with nothing lost.
//
// # Invariants
//
//   - A session's k is fixed at initialization and never changes.
//   - Step status only moves forward: pending -> voting -> decided|failed.
//     Terminal steps reject further updates (StatusRegressionError).
//   - A terminal session rejects all writes (ErrSessionComplete).
//   - Vote ledgers are append-only per (session, step) and cleared in
//     the same transaction that applies the decision, so no reader can
//     observe a decided step with a live ledger.
//   - Red flag counts accumulate across updates until the session is
//     reinitialized.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
//   - MaxOpenConns=1: single writer, appends cannot interleave
package store
