// Package predicate implements the closed set of stage conditions a manifest
// may declare. Conditions are data, not code: each variant is a tagged value
// interpreted by Eval, so a manifest can never smuggle an expression into the
// process.
package predicate

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind identifies a predicate variant.
type Kind string

const (
	// KindPathExists holds when a path relative to the session root exists.
	KindPathExists Kind = "path_exists"
	// KindSelectionNonEmpty holds when the user has a non-empty selection.
	KindSelectionNonEmpty Kind = "selection_non_empty"
	// KindStageComplete holds when the named stage has a materialized artifact.
	KindStageComplete Kind = "stage_complete"
	// KindAll holds when every child holds (true for no children).
	KindAll Kind = "all"
	// KindAny holds when at least one child holds.
	KindAny Kind = "any"
	// KindNot negates its single child.
	KindNot Kind = "not"
)

// ErrUnknownKind is returned when decoding meets a tag outside the closed set.
var ErrUnknownKind = errors.New("unknown predicate kind")

// Predicate is one node of a condition tree.
type Predicate struct {
	Kind     Kind
	Path     string      // KindPathExists
	Stage    string      // KindStageComplete
	Children []Predicate // KindAll, KindAny, KindNot
}

// Env exposes the runtime state a predicate may observe.
type Env interface {
	PathExists(path string) (bool, error)
	Selection() []string
	StageComplete(stageID string) bool
}

// PathExists builds a KindPathExists predicate.
func PathExists(path string) Predicate { return Predicate{Kind: KindPathExists, Path: path} }

// SelectionNonEmpty builds a KindSelectionNonEmpty predicate.
func SelectionNonEmpty() Predicate { return Predicate{Kind: KindSelectionNonEmpty} }

// StageComplete builds a KindStageComplete predicate.
func StageComplete(stageID string) Predicate {
	return Predicate{Kind: KindStageComplete, Stage: stageID}
}

// All builds a conjunction.
func All(children ...Predicate) Predicate { return Predicate{Kind: KindAll, Children: children} }

// Any builds a disjunction.
func Any(children ...Predicate) Predicate { return Predicate{Kind: KindAny, Children: children} }

// Not negates p.
func Not(p Predicate) Predicate { return Predicate{Kind: KindNot, Children: []Predicate{p}} }

// Eval interprets the predicate against env.
func (p Predicate) Eval(env Env) (bool, error) {
	switch p.Kind {
	case KindPathExists:
		ok, err := env.PathExists(p.Path)
		if err != nil {
			return false, fmt.Errorf("evaluating %s: %w", p, err)
		}
		return ok, nil
	case KindSelectionNonEmpty:
		return len(env.Selection()) > 0, nil
	case KindStageComplete:
		return env.StageComplete(p.Stage), nil
	case KindAll:
		for _, child := range p.Children {
			ok, err := child.Eval(env)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case KindAny:
		for _, child := range p.Children {
			ok, err := child.Eval(env)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case KindNot:
		if len(p.Children) != 1 {
			return false, fmt.Errorf("not: expected exactly one operand, got %d", len(p.Children))
		}
		ok, err := p.Children[0].Eval(env)
		return !ok, err
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownKind, p.Kind)
	}
}

// Validate checks the tree for missing operands and stage references that
// the caller does not know about. known may be nil to skip reference checks.
func (p Predicate) Validate(known func(stageID string) bool) error {
	switch p.Kind {
	case KindPathExists:
		if strings.TrimSpace(p.Path) == "" {
			return fmt.Errorf("%s: path is required", p.Kind)
		}
	case KindSelectionNonEmpty:
	case KindStageComplete:
		if p.Stage == "" {
			return fmt.Errorf("%s: stage is required", p.Kind)
		}
		if known != nil && !known(p.Stage) {
			return fmt.Errorf("%s: unknown stage %q", p.Kind, p.Stage)
		}
	case KindAll, KindAny:
		for i, child := range p.Children {
			if err := child.Validate(known); err != nil {
				return fmt.Errorf("%s[%d]: %w", p.Kind, i, err)
			}
		}
	case KindNot:
		if len(p.Children) != 1 {
			return fmt.Errorf("not: expected exactly one operand, got %d", len(p.Children))
		}
		return p.Children[0].Validate(known)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, p.Kind)
	}
	return nil
}

// String renders the predicate in a compact, human readable form.
func (p Predicate) String() string {
	switch p.Kind {
	case KindPathExists:
		return fmt.Sprintf("path_exists(%s)", p.Path)
	case KindSelectionNonEmpty:
		return "selection_non_empty"
	case KindStageComplete:
		return fmt.Sprintf("stage_complete(%s)", p.Stage)
	case KindAll, KindAny, KindNot:
		parts := make([]string, len(p.Children))
		for i, child := range p.Children {
			parts[i] = child.String()
		}
		return fmt.Sprintf("%s(%s)", p.Kind, strings.Join(parts, ", "))
	default:
		return string(p.Kind)
	}
}

// Decode builds a predicate from a generic decoded value, as produced by
// yaml.v3 or go-toml when unmarshalling into any. Accepted shapes:
//
//	selection_non_empty
//	{path_exists: "gather/data"}
//	{stage_complete: search}
//	{all: [...]} / {any: [...]}
//	{not: {...}}
func Decode(raw any) (Predicate, error) {
	switch v := raw.(type) {
	case string:
		if Kind(v) == KindSelectionNonEmpty {
			return SelectionNonEmpty(), nil
		}
		return Predicate{}, fmt.Errorf("%w: %q", ErrUnknownKind, v)
	case map[string]any:
		return decodeMap(v)
	case map[any]any:
		converted := make(map[string]any, len(v))
		for key, value := range v {
			converted[fmt.Sprint(key)] = value
		}
		return decodeMap(converted)
	case nil:
		return Predicate{}, errors.New("empty predicate")
	default:
		return Predicate{}, fmt.Errorf("unsupported predicate value of type %T", raw)
	}
}

func decodeMap(m map[string]any) (Predicate, error) {
	if len(m) != 1 {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return Predicate{}, fmt.Errorf("predicate must have exactly one tag, got [%s]", strings.Join(keys, ", "))
	}
	for key, value := range m {
		switch Kind(key) {
		case KindPathExists:
			path, ok := value.(string)
			if !ok {
				return Predicate{}, fmt.Errorf("path_exists: expected string, got %T", value)
			}
			return PathExists(path), nil
		case KindStageComplete:
			stage, ok := value.(string)
			if !ok {
				return Predicate{}, fmt.Errorf("stage_complete: expected string, got %T", value)
			}
			return StageComplete(stage), nil
		case KindSelectionNonEmpty:
			return SelectionNonEmpty(), nil
		case KindAll, KindAny:
			items, ok := value.([]any)
			if !ok {
				return Predicate{}, fmt.Errorf("%s: expected list, got %T", key, value)
			}
			children := make([]Predicate, 0, len(items))
			for i, item := range items {
				child, err := Decode(item)
				if err != nil {
					return Predicate{}, fmt.Errorf("%s[%d]: %w", key, i, err)
				}
				children = append(children, child)
			}
			return Predicate{Kind: Kind(key), Children: children}, nil
		case KindNot:
			child, err := Decode(value)
			if err != nil {
				return Predicate{}, fmt.Errorf("not: %w", err)
			}
			return Not(child), nil
		default:
			return Predicate{}, fmt.Errorf("%w: %q", ErrUnknownKind, key)
		}
	}
	return Predicate{}, errors.New("empty predicate")
}
