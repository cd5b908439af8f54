package dag

import (
	"github.com/ariel-frischer/stagetrail/internal/manifest"
)

// NodeReadiness describes one stage's readiness given the completed set.
type NodeReadiness struct {
	StageID string `json:"stage_id"`
	// PendingParents are declared parents not yet completed, in declared order.
	PendingParents []string `json:"pending_parents,omitempty"`
	Completed      bool     `json:"completed"`
	// Ready is true when no parents are pending and the stage is not completed.
	Ready bool `json:"ready"`
}

// Progress counts completed stages against the graph size.
type Progress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// Percent returns completion as an integer percentage.
func (p Progress) Percent() int {
	if p.Total == 0 {
		return 100
	}
	return p.Completed * 100 / p.Total
}

// Position is where a session stands in the workflow.
type Position struct {
	// CurrentStage is the next actionable stage, empty when the workflow is complete.
	CurrentStage    string          `json:"current_stage"`
	CompletedStages []string        `json:"completed_stages"`
	StaleStages     []string        `json:"stale_stages"`
	Progress        Progress        `json:"progress"`
	Readiness       []NodeReadiness `json:"readiness"`
}

// Complete reports whether no actionable stage remains.
func (p Position) Complete() bool {
	return p.CurrentStage == ""
}

// Readiness computes pending parents for every stage, in manifest order.
// Parent IDs absent from the graph are ignored.
func Readiness(g *manifest.Graph, completed []string) []NodeReadiness {
	done := toSet(completed)

	out := make([]NodeReadiness, 0, g.Len())
	for _, node := range g.Nodes() {
		var pending []string
		for _, parent := range node.Previous {
			if g.Has(parent) && !done[parent] {
				pending = append(pending, parent)
			}
		}
		out = append(out, NodeReadiness{
			StageID:        node.ID,
			PendingParents: pending,
			Completed:      done[node.ID],
			Ready:          len(pending) == 0 && !done[node.ID],
		})
	}
	return out
}

// Resolve derives the session's position from the completed and stale sets.
// The current stage is the first stage in manifest order that is neither
// completed nor stale and has no pending parents.
func Resolve(g *manifest.Graph, completed, stale []string) Position {
	readiness := Readiness(g, completed)
	done := toSet(completed)
	staleSet := toSet(stale)

	pos := Position{
		CompletedStages: []string{},
		StaleStages:     []string{},
		Readiness:       readiness,
	}
	for _, id := range g.Order() {
		if done[id] {
			pos.CompletedStages = append(pos.CompletedStages, id)
		}
		if staleSet[id] {
			pos.StaleStages = append(pos.StaleStages, id)
		}
	}
	pos.Progress = Progress{Completed: len(pos.CompletedStages), Total: g.Len()}

	for _, r := range readiness {
		if r.Completed || staleSet[r.StageID] || len(r.PendingParents) > 0 {
			continue
		}
		pos.CurrentStage = r.StageID
		break
	}
	return pos
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
