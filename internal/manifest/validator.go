package manifest

import (
	"fmt"
	"strings"
)

// Validate checks a graph for structural soundness. It never stops at the
// first problem: every check runs and all errors are returned, empty if valid.
// Callers decide which errors are fatal.
func Validate(g *Graph) []error {
	var errs []error

	errs = append(errs, g.buildErrs...)
	errs = append(errs, validateRoots(g)...)
	errs = append(errs, validateProduces(g)...)
	errs = append(errs, validateParents(g)...)
	errs = append(errs, detectCycles(g)...)
	errs = append(errs, validateAliases(g)...)
	errs = append(errs, validateSkipWarnings(g)...)
	errs = append(errs, validateConditions(g)...)

	return errs
}

// validateRoots checks that at least one stage has no previous stage.
func validateRoots(g *Graph) []error {
	if g.Len() == 0 {
		return []error{&MissingFieldError{Field: "stages", Context: "root (at least one stage required)"}}
	}
	if len(g.Roots()) == 0 {
		return []error{&MissingRootError{}}
	}
	return nil
}

// validateProduces checks that every stage declares at least one output.
func validateProduces(g *Graph) []error {
	var errs []error
	for _, node := range g.Nodes() {
		if len(nonBlank(node.Produces)) == 0 {
			errs = append(errs, &EmptyProducesError{StageID: node.ID, Line: g.Position(node.ID).Line})
		}
	}
	return errs
}

// validateParents checks that every previous reference resolves.
func validateParents(g *Graph) []error {
	var errs []error
	for _, node := range g.Nodes() {
		for _, parent := range node.Previous {
			if !g.Has(parent) {
				errs = append(errs, &UnknownParentError{
					StageID: node.ID, Parent: parent, Line: g.Position(node.ID).Line,
				})
			}
		}
	}
	return errs
}

// detectCycles detects cycles by in-degree counting. Stages that are never
// dequeued sit on or behind a cycle.
func detectCycles(g *Graph) []error {
	dequeued := g.kahn()
	if len(dequeued) == g.Len() {
		return nil
	}
	seen := make(map[string]bool, len(dequeued))
	for _, id := range dequeued {
		seen[id] = true
	}
	var stuck []string
	for _, id := range g.order {
		if !seen[id] {
			stuck = append(stuck, id)
		}
	}
	return []error{&CycleError{Stages: stuck}}
}

// validateAliases checks completes_with references.
func validateAliases(g *Graph) []error {
	var errs []error
	for _, node := range g.Nodes() {
		if node.CompletesWith == "" {
			continue
		}
		if node.CompletesWith == node.ID {
			errs = append(errs, fmt.Errorf("stage %q completes_with itself", node.ID))
			continue
		}
		if !g.Has(node.CompletesWith) {
			errs = append(errs, fmt.Errorf("stage %q completes_with: %w: %s", node.ID, ErrUnknownStage, node.CompletesWith))
		}
	}
	return errs
}

// validateSkipWarnings checks that configured warnings have something to say.
func validateSkipWarnings(g *Graph) []error {
	var errs []error
	for _, node := range g.Nodes() {
		if node.SkipWarning == nil {
			continue
		}
		if strings.TrimSpace(node.SkipWarning.Short) == "" {
			errs = append(errs, &MissingFieldError{
				Field: "short", Context: fmt.Sprintf("skip_warning of stage %q", node.ID),
				Line: g.Position(node.ID).Line,
			})
		}
		if node.SkipWarning.MaxWarnings < 0 {
			errs = append(errs, fmt.Errorf("stage %q: skip_warning.max_warnings must be >= 0, got %d",
				node.ID, node.SkipWarning.MaxWarnings))
		}
	}
	return errs
}

// validateConditions checks predicate trees and their stage references.
func validateConditions(g *Graph) []error {
	var errs []error
	for _, node := range g.Nodes() {
		if node.Condition == nil {
			continue
		}
		if err := node.Condition.Validate(g.Has); err != nil {
			errs = append(errs, &InvalidConditionError{StageID: node.ID, Err: err})
		}
	}
	return errs
}

func nonBlank(values []string) []string {
	var out []string
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}
