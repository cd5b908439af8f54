// Package manifest provides stage-graph manifest parsing, validation, and the
// immutable in-memory graph shared by every session.
//
// The package supports:
//   - Parsing YAML manifests with line/column tracking for error reporting
//   - Parsing TOML manifests into the same model
//   - Aggregated structural validation (roots, outputs, parent references, cycles)
//   - Deterministic topological ordering with manifest-order tie-breaking
//   - A lazily populated, read-only registry of parsed manifests
//
// A manifest lists stages in the order the workflow author expects them to be
// visited. That order is preserved on the Graph and used for tie-breaking and
// for choosing the default current stage.
package manifest
