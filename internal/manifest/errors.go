package manifest

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownStage is returned when an operation references a stage that is
// not declared in the manifest.
var ErrUnknownStage = errors.New("unknown stage")

// ParseError represents an error during manifest parsing with location information.
type ParseError struct {
	Line    int
	Column  int
	Message string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d, column %d: %s", e.Line, e.Column, e.Message)
	}
	return e.Message
}

// CycleError represents a cycle detected in stage dependencies.
type CycleError struct {
	// Stages lists the stages that could not be ordered, in manifest order.
	Stages []string
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	if len(e.Stages) == 0 {
		return "cycle detected in stage dependencies"
	}
	return fmt.Sprintf("cycle detected in stage dependencies among: %s", strings.Join(e.Stages, ", "))
}

// MissingRootError is returned when every stage has at least one parent.
type MissingRootError struct{}

// Error implements the error interface.
func (e *MissingRootError) Error() string {
	return "no root stage: at least one stage must have no previous stage"
}

// EmptyProducesError represents a stage that declares no outputs.
type EmptyProducesError struct {
	// StageID is the offending stage.
	StageID string
	// Line is the source line number where the stage is defined.
	Line int
}

// Error implements the error interface.
func (e *EmptyProducesError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: stage %q must produce at least one output", e.Line, e.StageID)
	}
	return fmt.Sprintf("stage %q must produce at least one output", e.StageID)
}

// UnknownParentError represents a previous reference to a stage that doesn't exist.
type UnknownParentError struct {
	// StageID is the stage containing the invalid reference.
	StageID string
	// Parent is the referenced stage ID that doesn't exist.
	Parent string
	// Line is the source line number where the stage is defined.
	Line int
}

// Error implements the error interface.
func (e *UnknownParentError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: stage %q references non-existent previous stage %q", e.Line, e.StageID, e.Parent)
	}
	return fmt.Sprintf("stage %q references non-existent previous stage %q", e.StageID, e.Parent)
}

// DuplicateStageError represents two stages sharing one ID.
type DuplicateStageError struct {
	// StageID is the duplicated ID.
	StageID string
	// FirstIndex is the manifest position of the first definition.
	FirstIndex int
	// SecondIndex is the manifest position of the duplicate.
	SecondIndex int
}

// Error implements the error interface.
func (e *DuplicateStageError) Error() string {
	return fmt.Sprintf("duplicate stage ID %q (first defined at stages[%d], duplicate at stages[%d])",
		e.StageID, e.FirstIndex, e.SecondIndex)
}

// MissingFieldError represents a required field that is missing.
type MissingFieldError struct {
	// Field is the name of the missing field.
	Field string
	// Context describes where the field is expected.
	Context string
	// Line is the source line number where the error applies.
	Line int
}

// Error implements the error interface.
func (e *MissingFieldError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: missing required field %q in %s", e.Line, e.Field, e.Context)
	}
	return fmt.Sprintf("missing required field %q in %s", e.Field, e.Context)
}

// InvalidConditionError wraps a malformed or dangling stage condition.
type InvalidConditionError struct {
	StageID string
	Err     error
}

// Error implements the error interface.
func (e *InvalidConditionError) Error() string {
	return fmt.Sprintf("stage %q condition: %v", e.StageID, e.Err)
}

// Unwrap returns the underlying error.
func (e *InvalidConditionError) Unwrap() error {
	return e.Err
}

// InvalidManifestError is returned by loaders when validation finds problems.
type InvalidManifestError struct {
	// Path is the manifest file, if known.
	Path string
	// Errs holds every validation error, in check order.
	Errs []error
}

// Error implements the error interface.
func (e *InvalidManifestError) Error() string {
	where := e.Path
	if where == "" {
		where = "manifest"
	}
	if len(e.Errs) == 1 {
		return fmt.Sprintf("%s: %v", where, e.Errs[0])
	}
	return fmt.Sprintf("%s: %d validation errors (first: %v)", where, len(e.Errs), e.Errs[0])
}

// Unwrap exposes the individual validation errors to errors.Is / errors.As.
func (e *InvalidManifestError) Unwrap() []error {
	return e.Errs
}
