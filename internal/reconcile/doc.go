// Package reconcile runs reconciliation passes between a grid and a remote
// record store.
//
// A pass reads the grid selection, normalizes and classifies the rows,
// sends one bulk request, demultiplexes the store's flat result list back
// onto row positions and writes the generated identifiers and versions
// into the grid. Every pass walks the same state machine:
//
//	Idle → Validating → AwaitingStoreResponse → Demultiplexing → WritingBack → Idle
//	                 ↘ Failed → Idle        ↘ Failed → Idle
//
// A rejected row fails the pass before any network call. A store error
// fails it without retry. Integrity violations found while demultiplexing
// are recorded in the report and never abort the pass.
//
// Only one pass may run against a grid at a time; a second caller gets
// ir.ErrPassInProgress.
package reconcile
