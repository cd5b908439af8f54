package manifest

import (
	"fmt"
	"strings"

	"github.com/ariel-frischer/stagetrail/internal/predicate"
	toml "github.com/pelletier/go-toml/v2"
)

// tomlManifest mirrors the YAML schema for [[stages]] tables.
type tomlManifest struct {
	SchemaVersion string      `toml:"schema_version"`
	Workflow      Header      `toml:"workflow"`
	Stages        []tomlStage `toml:"stages"`
}

type tomlStage struct {
	ID            string           `toml:"id"`
	Name          string           `toml:"name"`
	Previous      any              `toml:"previous"`
	Produces      any              `toml:"produces"`
	Optional      bool             `toml:"optional"`
	Instruction   string           `toml:"instruction"`
	Commands      any              `toml:"commands"`
	CompletesWith string           `toml:"completes_with"`
	Parameters    map[string]any   `toml:"parameters"`
	SkipWarning   *tomlSkipWarning `toml:"skip_warning"`
	Condition     any              `toml:"condition"`
}

type tomlSkipWarning struct {
	Short       string `toml:"short"`
	Reason      string `toml:"reason"`
	Suggestion  string `toml:"suggestion"`
	MaxWarnings int    `toml:"max_warnings"`
}

// ParseTOMLBytes parses a TOML manifest into the same model as ParseBytes.
// TOML carries no per-node positions, so NodeInfos is empty.
func ParseTOMLBytes(data []byte) (*ParseResult, error) {
	var raw tomlManifest
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing TOML: %w", err)
	}

	var (
		stages []StageNode
		errs   []error
	)
	for i, ts := range raw.Stages {
		stage, err := ts.toStage(i)
		if err != nil {
			return nil, err
		}
		if stage.ID == "" {
			errs = append(errs, &MissingFieldError{Field: "id", Context: fmt.Sprintf("stage at index %d", i)})
			continue
		}
		stages = append(stages, stage)
	}

	g := newGraph(raw.Workflow, stages, errs)
	g.SchemaVersion = raw.SchemaVersion
	return &ParseResult{Graph: g, NodeInfos: map[string]NodeInfo{}}, nil
}

func (ts tomlStage) toStage(idx int) (StageNode, error) {
	stage := StageNode{
		ID:            strings.TrimSpace(ts.ID),
		Name:          ts.Name,
		Optional:      ts.Optional,
		Instruction:   ts.Instruction,
		CompletesWith: strings.TrimSpace(ts.CompletesWith),
		Parameters:    ts.Parameters,
	}

	var err error
	if stage.Previous, err = stringOrList(ts.Previous, idx, "previous"); err != nil {
		return StageNode{}, err
	}
	if stage.Produces, err = stringOrList(ts.Produces, idx, "produces"); err != nil {
		return StageNode{}, err
	}
	if stage.Commands, err = stringOrList(ts.Commands, idx, "commands"); err != nil {
		return StageNode{}, err
	}

	if ts.SkipWarning != nil {
		stage.SkipWarning = &SkipWarning{
			Short:       ts.SkipWarning.Short,
			Reason:      ts.SkipWarning.Reason,
			Suggestion:  ts.SkipWarning.Suggestion,
			MaxWarnings: ts.SkipWarning.MaxWarnings,
		}
		if stage.SkipWarning.MaxWarnings == 0 {
			stage.SkipWarning.MaxWarnings = DefaultMaxWarnings
		}
	}

	if ts.Condition != nil {
		pred, err := predicate.Decode(ts.Condition)
		if err != nil {
			return StageNode{}, &ParseError{Message: fmt.Sprintf("stages[%d]: invalid 'condition': %v", idx, err)}
		}
		stage.Condition = &pred
	}

	return stage, nil
}

func stringOrList(value any, idx int, field string) ([]string, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, nil
		}
		return []string{strings.TrimSpace(v)}, nil
	case []any:
		items := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, &ParseError{Message: fmt.Sprintf("stages[%d]: expected string entries in '%s'", idx, field)}
			}
			items = append(items, strings.TrimSpace(s))
		}
		return items, nil
	default:
		return nil, &ParseError{Message: fmt.Sprintf("stages[%d]: expected string or list for '%s' field", idx, field)}
	}
}
