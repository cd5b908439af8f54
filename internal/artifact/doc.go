// Package artifact persists stage outputs into a session's artifact tree.
//
// Every stage output is an Envelope stored at <dir>/data/<stage>.json, where
// <dir> nests the stage under its parents: a root stage lives at <stage>, a
// single-parent stage under its parent's directory, and a multi-parent stage
// under a synthesized _join_<parents> directory whose data/ holds one link
// per parent. Changed output of a non-root stage is written to a
// <stage>_BRANCH_<timestamp>_<suffix> sibling so earlier artifacts are never
// modified.
package artifact
