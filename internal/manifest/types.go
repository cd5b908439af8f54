package manifest

import "github.com/ariel-frischer/stagetrail/internal/predicate"

// DefaultMaxWarnings is used when a skip_warning omits max_warnings.
const DefaultMaxWarnings = 2

// Header carries the manifest's descriptive metadata.
type Header struct {
	// Name is the human-readable workflow name.
	Name string `yaml:"name" toml:"name" json:"name"`
	// Version is the manifest version recorded on sessions created from it.
	Version string `yaml:"version" toml:"version" json:"version"`
	// Persona is the default persona for sessions created from this manifest.
	Persona string `yaml:"persona" toml:"persona" json:"persona"`
}

// SkipWarning describes the soft warning shown when a user tries to move past
// a stage without completing it.
type SkipWarning struct {
	// Short is shown on every warning.
	Short string `json:"short"`
	// Reason explains why the stage matters; shown from the second warning on.
	Reason string `json:"reason,omitempty"`
	// Suggestion tells the user what to run instead; shown with Reason.
	Suggestion string `json:"suggestion,omitempty"`
	// MaxWarnings is how many warnings are issued before the stage is treated
	// as satisfied.
	MaxWarnings int `json:"max_warnings"`
}

// StageNode is one unit of work in the workflow graph.
type StageNode struct {
	// ID is the unique, stable stage identifier.
	ID string `json:"id"`
	// Name is the display name.
	Name string `json:"name"`
	// Previous lists parent stage IDs in declared order. Empty means root.
	Previous []string `json:"previous,omitempty"`
	// Produces lists the logical output names. Must be non-empty.
	Produces []string `json:"produces"`
	// Optional stages may be skipped once their warnings are exhausted.
	Optional bool `json:"optional,omitempty"`
	// SkipWarning configures soft blocking; nil means no soft path.
	SkipWarning *SkipWarning `json:"skip_warning,omitempty"`
	// Parameters is opaque stage configuration.
	Parameters map[string]any `json:"parameters,omitempty"`
	// Instruction is free text shown to the user for this stage.
	Instruction string `json:"instruction,omitempty"`
	// Commands are the trigger phrases routed to this stage.
	Commands []string `json:"commands,omitempty"`
	// CompletesWith names another stage whose completion satisfies this one.
	CompletesWith string `json:"completes_with,omitempty"`
	// Condition gates transitions into this stage.
	Condition *predicate.Predicate `json:"-"`
}

// IsRoot reports whether the stage has no parents.
func (n *StageNode) IsRoot() bool {
	return len(n.Previous) == 0
}

// IsJoin reports whether the stage has two or more parents.
func (n *StageNode) IsJoin() bool {
	return len(n.Previous) > 1
}

// DisplayName returns Name, falling back to ID.
func (n *StageNode) DisplayName() string {
	if n.Name != "" {
		return n.Name
	}
	return n.ID
}
