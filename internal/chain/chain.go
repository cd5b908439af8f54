// Package chain decides whether materialized stage outputs are still valid
// against the current outputs of the stages they were built from.
package chain

import (
	"fmt"
	"sort"

	"github.com/ariel-frischer/stagetrail/internal/fingerprint"
	"github.com/ariel-frischer/stagetrail/internal/manifest"
)

// StalenessResult is the outcome of checking one stage's recorded parent
// fingerprints against the parents' current fingerprints.
type StalenessResult struct {
	StageID            string   `json:"stage_id"`
	Stale              bool     `json:"stale"`
	StaleParents       []string `json:"stale_parents,omitempty"`
	CurrentFingerprint string   `json:"current_fingerprint"`
}

// Check compares rec against current, which maps each materialized parent to
// its current fingerprint. A parent whose recorded fingerprint is missing or
// different makes the stage stale. Parents absent from current are not
// compared.
func Check(stageID string, rec fingerprint.Record, current map[string]string) StalenessResult {
	res := StalenessResult{StageID: stageID, CurrentFingerprint: rec.Fingerprint}
	for parent, fp := range current {
		recorded, ok := rec.ParentFingerprints[parent]
		if !ok || recorded != fp {
			res.StaleParents = append(res.StaleParents, parent)
		}
	}
	sort.Strings(res.StaleParents)
	res.Stale = len(res.StaleParents) > 0
	return res
}

// Reader returns the latest fingerprint record of a stage. found is false,
// with a nil error, when the stage has never been materialized.
type Reader interface {
	Record(stageID string) (rec fingerprint.Record, found bool, err error)
}

// ReaderFunc adapts a function to Reader.
type ReaderFunc func(stageID string) (fingerprint.Record, bool, error)

// Record implements Reader.
func (f ReaderFunc) Record(stageID string) (fingerprint.Record, bool, error) {
	return f(stageID)
}

// Result summarizes a chain validation.
type Result struct {
	Valid         bool     `json:"valid"`
	StaleStages   []string `json:"stale_stages"`
	MissingStages []string `json:"missing_stages"`
	// Details holds the per-stage check for every materialized stage.
	Details map[string]StalenessResult `json:"details,omitempty"`
}

// IsStale reports whether id was found stale.
func (r Result) IsStale(id string) bool {
	return r.Details[id].Stale
}

// Validate walks the graph in topological order. Unmaterialized stages are
// reported missing and not checked. A materialized stage is stale when its
// own comparison fails or when any parent is already stale; a stale ancestor
// invalidates everything built on it even if fingerprints still line up.
//
// A missing stage whose completes_with alias is materialized counts as
// satisfied and is reported in neither list.
func Validate(g *manifest.Graph, r Reader) (Result, error) {
	order := g.TopoOrder()

	records := make(map[string]fingerprint.Record, len(order))
	for _, id := range order {
		rec, found, err := r.Record(id)
		if err != nil {
			return Result{}, fmt.Errorf("reading fingerprint of stage %q: %w", id, err)
		}
		if found {
			records[id] = rec
		}
	}

	res := Result{
		StaleStages:   []string{},
		MissingStages: []string{},
		Details:       make(map[string]StalenessResult, len(records)),
	}
	stale := make(map[string]bool)

	for _, id := range order {
		node, _ := g.Node(id)
		rec, ok := records[id]
		if !ok {
			if _, aliased := records[node.CompletesWith]; node.CompletesWith != "" && aliased {
				continue
			}
			res.MissingStages = append(res.MissingStages, id)
			continue
		}

		current := make(map[string]string, len(node.Previous))
		for _, parent := range node.Previous {
			if prec, ok := records[parent]; ok {
				current[parent] = prec.Fingerprint
			}
		}

		check := Check(id, rec, current)
		for _, parent := range node.Previous {
			if stale[parent] && !contains(check.StaleParents, parent) {
				check.StaleParents = append(check.StaleParents, parent)
			}
		}
		sort.Strings(check.StaleParents)
		check.Stale = len(check.StaleParents) > 0

		res.Details[id] = check
		if check.Stale {
			stale[id] = true
			res.StaleStages = append(res.StaleStages, id)
		}
	}

	res.Valid = len(res.StaleStages) == 0 && len(res.MissingStages) == 0
	return res, nil
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
