package workflow

import (
	"fmt"
	"strings"
)

// TransitionResult is the verdict on running a command. Blocking is never an
// error: Allowed is false and HardBlock tells a soft warning, which goes away
// after enough repeats, apart from a block only completing the parent lifts.
type TransitionResult struct {
	Allowed   bool `json:"allowed"`
	HardBlock bool `json:"hard_block"`
	// Stage is the target stage, empty when the command routes nowhere.
	Stage string `json:"stage,omitempty"`
	// BlockingStage is the parent that caused a block.
	BlockingStage string `json:"blocking_stage,omitempty"`
	Message       string `json:"message,omitempty"`
	Reason        string `json:"reason,omitempty"`
	Suggestion    string `json:"suggestion,omitempty"`
	// Warning is the 1-based number of this soft warning; MaxWarnings the limit.
	Warning     int `json:"warning,omitempty"`
	MaxWarnings int `json:"max_warnings,omitempty"`
	// Pending lists the target's uncompleted parents in declared order.
	Pending []string `json:"pending,omitempty"`
}

// CheckTransition decides whether command may run now.
//
// A completed target is always allowed. Otherwise each pending parent is
// checked in declared order: a parent without a skip warning hard-blocks
// unless it is optional; a parent with one soft-blocks until the session has
// been warned max_warnings times, after which it counts as satisfied. Last,
// the target's condition must hold. Commands that route to no stage are
// allowed so the surrounding shell can handle them.
func (a *Adapter) CheckTransition(command string, ws *Workspace) (TransitionResult, error) {
	stageID, ok := a.commands.Resolve(command)
	if !ok {
		return TransitionResult{Allowed: true, Message: "command does not map to a workflow stage"}, nil
	}
	return a.CheckStage(stageID, ws)
}

// CheckStage applies the transition policy to a stage directly, bypassing
// command routing. Unknown stages are an error.
func (a *Adapter) CheckStage(stageID string, ws *Workspace) (TransitionResult, error) {
	node, err := a.graph.MustNode(stageID)
	if err != nil {
		return TransitionResult{}, err
	}

	completed, err := a.completed(ws)
	if err != nil {
		return TransitionResult{}, err
	}
	res := TransitionResult{Stage: stageID}
	if completed[stageID] {
		res.Allowed = true
		return res, nil
	}

	for _, parent := range node.Previous {
		if a.graph.Has(parent) && !completed[parent] {
			res.Pending = append(res.Pending, parent)
		}
	}

	for _, parentID := range res.Pending {
		parent, _ := a.graph.Node(parentID)
		if parent.SkipWarning == nil {
			if parent.Optional {
				continue
			}
			res.HardBlock = true
			res.BlockingStage = parentID
			res.Message = fmt.Sprintf("%s requires %s to be completed first.", node.DisplayName(), parent.DisplayName())
			a.logger.Debug("transition hard-blocked", "stage", stageID, "parent", parentID)
			return res, nil
		}

		sw := parent.SkipWarning
		if ws.Session.SkipCount(parentID) >= sw.MaxWarnings {
			continue
		}

		n := ws.Session.IncrementSkip(parentID)
		if ws.Sessions != nil {
			if err := ws.Sessions.Save(ws.Session); err != nil {
				return TransitionResult{}, err
			}
		}
		res.BlockingStage = parentID
		res.Warning = n
		res.MaxWarnings = sw.MaxWarnings
		res.Message = sw.Short
		if n > 1 {
			res.Reason = sw.Reason
			res.Suggestion = sw.Suggestion
		}
		a.logger.Debug("transition soft-blocked", "stage", stageID, "parent", parentID, "warning", n, "max", sw.MaxWarnings)
		return res, nil
	}

	if node.Condition != nil {
		holds, err := node.Condition.Eval(&predicateEnv{ws: ws, completed: completed})
		if err != nil {
			return TransitionResult{}, fmt.Errorf("stage %q condition: %w", stageID, err)
		}
		if !holds {
			res.HardBlock = true
			res.Message = fmt.Sprintf("%s is not available yet: condition %s does not hold.", node.DisplayName(), node.Condition)
			return res, nil
		}
	}

	res.Allowed = true
	return res, nil
}

// Text renders the result the way a shell would print it.
func (r TransitionResult) Text() string {
	if r.Allowed {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(r.Message)
	if r.Reason != "" {
		sb.WriteString("\n" + r.Reason)
	}
	if r.Suggestion != "" {
		sb.WriteString("\n" + r.Suggestion)
	}
	if !r.HardBlock && r.MaxWarnings > 0 {
		fmt.Fprintf(&sb, "\n(warning %d of %d)", r.Warning, r.MaxWarnings)
	}
	return sb.String()
}

// predicateEnv exposes a workspace to stage conditions.
type predicateEnv struct {
	ws        *Workspace
	completed map[string]bool
}

func (e *predicateEnv) PathExists(path string) (bool, error) {
	return e.ws.Store.FS().PathExists(path)
}

func (e *predicateEnv) Selection() []string { return e.ws.Selection }

func (e *predicateEnv) StageComplete(stageID string) bool { return e.completed[stageID] }
