// Package engine implements the publication workflow engine.
//
// The engine owns the lifecycle of each publication from intake through
// archival or terminal failure:
//
//	intaking → resolving → awaiting-acceptance → ready → submitting → archived
//
// with terminal branches rejected (any requirement tuple rejected) and
// failed (malformed input, unknown base identifier, or an unrecoverable
// commit error).
//
// ARCHITECTURE:
//
// Durable state, stateless engine:
// All workflow state lives in the archive store. The engine holds no
// per-publication memory, so many engines (or a restarted one) see the
// same truth and a crash mid-submission resumes from the durable state.
//
// Poke, don't block:
// "Await acceptance" is a pure state query, not a blocking call. Each
// recorded acceptance pokes the publication: if the ledger became
// satisfied the state flips to ready, if it saw a rejection the
// publication terminates as rejected. Poke is also the crash-recovery
// entry point and bails out early for publications already past
// awaiting-acceptance.
//
// Commit discipline:
// Submit is only valid from ready (or submitting, for crash replays).
// The commit itself is a single store transaction with per-identifier
// version compare-and-swap; on a version conflict the coordinator
// re-resolves the advisory candidates and retries within a bounded
// budget. Publications archive at most once: replaying Submit on an
// archived publication returns the prior result.
//
// Unrelated publications proceed fully in parallel; serialization
// happens only at the store's commit transaction, keyed by the content
// identifiers involved.
package engine
