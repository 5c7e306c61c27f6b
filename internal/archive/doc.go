// Package archive provides SQLite-backed durable storage for the
// publication workflow.
//
// The database holds both sides of the system:
//   - Workflow state: publications, their content items, and the
//     acceptance ledger rows. Mutable, but only through guarded updates.
//   - The archive proper: archive_records, an append-only log of
//     committed content versions. A (content_id, version) pair is
//     written exactly once and never overwritten.
//
// Critical patterns:
//
//   - Commit atomicity: CommitPublication writes every record of a
//     publication plus the archived state flip in ONE transaction.
//     A crash mid-commit rolls back completely; partial commits are
//     never observable to readers.
//
//   - Version compare-and-swap: inside the commit transaction each
//     item's next version is recomputed as MAX(version)+1 and checked
//     against the advisory candidate fixed at resolution time. A
//     mismatch aborts the whole commit with a VersionConflictError so
//     two publications racing on one identifier cannot both claim the
//     same version.
//
//   - Commit idempotency: records carry UNIQUE(content_id,
//     publication_id), so replaying a commit for the same publication
//     finds its own records and completes as a no-op.
//
//   - Tuple-level decisions: DecideAcceptance transitions a ledger row
//     with UPDATE ... WHERE state = 'pending'. Concurrent decisions on
//     the same tuple resolve so exactly one wins.
//
//   - Logical ordering: decided_seq and record seq come from a
//     monotonic logical clock, never wall time.
//
// Database configuration:
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
package archive
