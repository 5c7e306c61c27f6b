// Package harness runs declarative workflow scenarios against a real
// engine over a temporary database.
//
// A scenario is a YAML file describing seeded archive content, a fixed
// identifier sequence, a series of workflow steps (intake, accept,
// reject, submit, locate) with optional per-step expectations, and
// final assertions on publication state, archived versions, and
// dispatched jobs.
//
// Execution is fully deterministic: identifiers come from the
// scenario's fixed list, wall-clock timestamps are pinned to the epoch,
// and event ordering uses the engine's logical clock. Each run produces
// a trace that can be compared against a golden file, so a behavior
// change anywhere in the pipeline shows up as a golden diff.
package harness
