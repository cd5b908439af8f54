package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ariel-frischer/stagetrail/internal/predicate"
	"gopkg.in/yaml.v3"
)

// ParseResult contains the parsed graph and source location information.
type ParseResult struct {
	Graph     *Graph
	NodeInfos map[string]NodeInfo // Maps path (e.g., "stages[0].previous") to location
}

// NodeInfo stores source location information for a manifest node.
type NodeInfo struct {
	Line   int
	Column int
}

// ParseFile parses a manifest file. The format is chosen by extension:
// .toml files are read as TOML, everything else as YAML.
func ParseFile(path string) (*ParseResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return ParseTOMLBytes(data)
	}
	return ParseBytes(data)
}

// ParseBytes parses a YAML manifest.
// Returns the parsed graph with source location tracking for error reporting.
func ParseBytes(data []byte) (*ParseResult, error) {
	var rootNode yaml.Node
	if err := yaml.Unmarshal(data, &rootNode); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}

	if rootNode.Kind != yaml.DocumentNode || len(rootNode.Content) == 0 {
		return nil, fmt.Errorf("parsing YAML: empty document")
	}

	p := &yamlParser{infos: make(map[string]NodeInfo)}
	if err := p.parseRoot(rootNode.Content[0]); err != nil {
		return nil, err
	}

	g := newGraph(p.header, p.stages, p.errs)
	g.SchemaVersion = p.schemaVersion
	for i, stage := range p.stages {
		if _, seen := g.positions[stage.ID]; !seen {
			g.positions[stage.ID] = p.infos[fmt.Sprintf("stages[%d]", p.stageIndex[i])]
		}
	}

	return &ParseResult{Graph: g, NodeInfos: p.infos}, nil
}

type yamlParser struct {
	infos         map[string]NodeInfo
	header        Header
	schemaVersion string
	stages        []StageNode
	stageIndex    []int // source index of each kept stage
	errs          []error
}

func infoOf(node *yaml.Node) NodeInfo {
	return NodeInfo{Line: node.Line, Column: node.Column}
}

// parseRoot parses the root mapping node.
func (p *yamlParser) parseRoot(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return &ParseError{Line: node.Line, Column: node.Column, Message: "expected mapping node at root"}
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode := node.Content[i]
		valueNode := node.Content[i+1]

		switch keyNode.Value {
		case "schema_version":
			p.infos["schema_version"] = infoOf(valueNode)
			p.schemaVersion = valueNode.Value
		case "workflow":
			if err := p.parseHeader(valueNode); err != nil {
				return err
			}
		case "stages":
			if err := p.parseStages(valueNode); err != nil {
				return err
			}
		}
	}

	return nil
}

// parseHeader extracts the workflow header from a YAML node.
func (p *yamlParser) parseHeader(node *yaml.Node) error {
	p.infos["workflow"] = infoOf(node)

	if node.Kind != yaml.MappingNode {
		return &ParseError{Line: node.Line, Column: node.Column, Message: "expected mapping for 'workflow' field"}
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode := node.Content[i]
		valueNode := node.Content[i+1]

		switch keyNode.Value {
		case "name":
			p.header.Name = valueNode.Value
		case "version":
			p.header.Version = valueNode.Value
		case "persona":
			p.header.Persona = valueNode.Value
		}
	}

	return nil
}

// parseStages extracts the stage list from a YAML node.
func (p *yamlParser) parseStages(node *yaml.Node) error {
	p.infos["stages"] = infoOf(node)

	if node.Kind != yaml.SequenceNode {
		return &ParseError{Line: node.Line, Column: node.Column, Message: "expected sequence for 'stages' field"}
	}

	for i, stageNode := range node.Content {
		stage, err := p.parseStage(stageNode, i)
		if err != nil {
			return err
		}
		if stage.ID == "" {
			p.errs = append(p.errs, &MissingFieldError{
				Field: "id", Context: fmt.Sprintf("stage at index %d", i), Line: stageNode.Line,
			})
			continue
		}
		p.stages = append(p.stages, stage)
		p.stageIndex = append(p.stageIndex, i)
	}

	return nil
}

// parseStage extracts a single stage from a YAML node.
func (p *yamlParser) parseStage(node *yaml.Node, idx int) (StageNode, error) {
	prefix := fmt.Sprintf("stages[%d]", idx)
	p.infos[prefix] = infoOf(node)

	if node.Kind != yaml.MappingNode {
		return StageNode{}, &ParseError{Line: node.Line, Column: node.Column, Message: "expected mapping for stage"}
	}

	var stage StageNode
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode := node.Content[i]
		valueNode := node.Content[i+1]
		p.infos[prefix+"."+keyNode.Value] = infoOf(valueNode)

		var err error
		switch keyNode.Value {
		case "id":
			stage.ID = strings.TrimSpace(valueNode.Value)
		case "name":
			stage.Name = valueNode.Value
		case "previous":
			stage.Previous, err = parseStringOrList(valueNode, "previous")
		case "produces":
			stage.Produces, err = parseStringOrList(valueNode, "produces")
		case "commands":
			stage.Commands, err = parseStringOrList(valueNode, "commands")
		case "optional":
			err = decodeField(valueNode, &stage.Optional, "optional")
		case "instruction":
			stage.Instruction = valueNode.Value
		case "completes_with":
			stage.CompletesWith = strings.TrimSpace(valueNode.Value)
		case "parameters":
			err = decodeField(valueNode, &stage.Parameters, "parameters")
		case "skip_warning":
			stage.SkipWarning, err = parseSkipWarning(valueNode)
		case "condition":
			stage.Condition, err = parseCondition(valueNode)
		}
		if err != nil {
			return StageNode{}, err
		}
	}

	return stage, nil
}

// parseStringOrList accepts null, a scalar, or a sequence of scalars.
func parseStringOrList(node *yaml.Node, field string) ([]string, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" || strings.TrimSpace(node.Value) == "" {
			return nil, nil
		}
		return []string{strings.TrimSpace(node.Value)}, nil
	case yaml.SequenceNode:
		var items []string
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return nil, &ParseError{Line: item.Line, Column: item.Column,
					Message: fmt.Sprintf("expected string entries in '%s'", field)}
			}
			items = append(items, strings.TrimSpace(item.Value))
		}
		return items, nil
	default:
		return nil, &ParseError{Line: node.Line, Column: node.Column,
			Message: fmt.Sprintf("expected string or list for '%s' field", field)}
	}
}

func decodeField(node *yaml.Node, out any, field string) error {
	if err := node.Decode(out); err != nil {
		return &ParseError{Line: node.Line, Column: node.Column,
			Message: fmt.Sprintf("invalid '%s' field: %v", field, err)}
	}
	return nil
}

// parseSkipWarning extracts a skip_warning block.
func parseSkipWarning(node *yaml.Node) (*SkipWarning, error) {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, &ParseError{Line: node.Line, Column: node.Column, Message: "expected mapping for 'skip_warning' field"}
	}

	sw := &SkipWarning{}
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode := node.Content[i]
		valueNode := node.Content[i+1]

		switch keyNode.Value {
		case "short":
			sw.Short = valueNode.Value
		case "reason":
			sw.Reason = valueNode.Value
		case "suggestion":
			sw.Suggestion = valueNode.Value
		case "max_warnings":
			if err := decodeField(valueNode, &sw.MaxWarnings, "max_warnings"); err != nil {
				return nil, err
			}
		}
	}
	if sw.MaxWarnings == 0 {
		sw.MaxWarnings = DefaultMaxWarnings
	}
	return sw, nil
}

// parseCondition decodes a tagged predicate.
func parseCondition(node *yaml.Node) (*predicate.Predicate, error) {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return nil, &ParseError{Line: node.Line, Column: node.Column, Message: fmt.Sprintf("invalid 'condition': %v", err)}
	}
	if raw == nil {
		return nil, nil
	}
	pred, err := predicate.Decode(raw)
	if err != nil {
		return nil, &ParseError{Line: node.Line, Column: node.Column, Message: fmt.Sprintf("invalid 'condition': %v", err)}
	}
	return &pred, nil
}
