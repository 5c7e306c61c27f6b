// Package model defines the core types of the publication workflow:
// publications, content items, acceptance requirements, lifecycle states,
// and the identifier/hash scheme used for content addressing.
//
// Types here are shared by every other package and carry no behavior
// beyond validation and formatting. Ownership rules:
//   - Publication rows are owned by the engine's state machine.
//   - Requirement rows are owned by the acceptance ledger.
//   - Archive records are owned by the submission coordinator and are
//     append-only: a (content identifier, version) pair is written once
//     and never mutated.
package model
