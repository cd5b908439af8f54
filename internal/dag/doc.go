// Package dag resolves where a session stands in a workflow graph and
// renders the graph for terminals.
//
// The package supports:
//   - Readiness: pending parents of every stage given the completed set
//   - Resolve: completed and stale stages, progress, and the current stage
//   - ASCII and one-line visualization of stage dependencies
//
// Everything here is a pure function of the graph and the completed and
// stale sets; nothing reads storage.
package dag
