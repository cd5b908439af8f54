package workflow

import (
	"sort"
	"strings"

	"github.com/ariel-frischer/stagetrail/internal/manifest"
)

// searchWord always routes to the stage with this ID when one exists.
const searchWord = "search"

type phrase struct {
	words []string
	stage string
}

// CommandIndex routes user commands to stages. It is built once per graph
// and is read-only afterwards.
//
// Precedence, highest first:
//  1. multi-word phrases, longest match first
//  2. single-word commands equal to their own stage ID
//  3. the word "search", when a search stage exists
//  4. the first word of any other command, unless that word starts a
//     multi-word phrase of a different stage
type CommandIndex struct {
	phrases []phrase
	words   map[string]string
	graph   *manifest.Graph
}

// NewCommandIndex builds the index for g.
func NewCommandIndex(g *manifest.Graph) *CommandIndex {
	idx := &CommandIndex{words: make(map[string]string), graph: g}

	seen := make(map[string]bool)
	phraseHeads := make(map[string]map[string]bool) // first word -> stages with such a phrase
	for _, node := range g.Nodes() {
		for _, cmd := range node.Commands {
			words := strings.Fields(Normalize(cmd))
			if len(words) < 2 {
				continue
			}
			key := strings.Join(words, " ")
			if seen[key] {
				continue
			}
			seen[key] = true
			idx.phrases = append(idx.phrases, phrase{words: words, stage: node.ID})
			if phraseHeads[words[0]] == nil {
				phraseHeads[words[0]] = make(map[string]bool)
			}
			phraseHeads[words[0]][node.ID] = true
		}
	}
	sort.SliceStable(idx.phrases, func(i, j int) bool {
		return len(idx.phrases[i].words) > len(idx.phrases[j].words)
	})

	for _, node := range g.Nodes() {
		for _, cmd := range node.Commands {
			if w := Normalize(cmd); w == strings.ToLower(node.ID) && !strings.Contains(w, " ") {
				idx.add(w, node.ID)
			}
		}
	}

	if g.Has(searchWord) {
		idx.words[searchWord] = searchWord
	}

	for _, node := range g.Nodes() {
		for _, cmd := range node.Commands {
			words := strings.Fields(Normalize(cmd))
			if len(words) == 0 {
				continue
			}
			head := words[0]
			if shadowsOtherPhrase(phraseHeads[head], node.ID) {
				continue
			}
			idx.add(head, node.ID)
		}
	}

	return idx
}

func (idx *CommandIndex) add(word, stage string) {
	if _, taken := idx.words[word]; !taken {
		idx.words[word] = stage
	}
}

func shadowsOtherPhrase(stages map[string]bool, own string) bool {
	for stage := range stages {
		if stage != own {
			return true
		}
	}
	return false
}

// Resolve returns the stage a command routes to. Exact stage IDs resolve to
// themselves when nothing else matches.
func (idx *CommandIndex) Resolve(command string) (string, bool) {
	words := strings.Fields(Normalize(command))
	if len(words) == 0 {
		return "", false
	}

	for _, p := range idx.phrases {
		if hasPrefix(words, p.words) {
			return p.stage, true
		}
	}
	if stage, ok := idx.words[words[0]]; ok {
		return stage, true
	}
	if len(words) == 1 && idx.graph.Has(words[0]) {
		return words[0], true
	}
	return "", false
}

// Entries lists every indexed trigger with its stage, phrases first.
func (idx *CommandIndex) Entries() []CommandEntry {
	out := make([]CommandEntry, 0, len(idx.phrases)+len(idx.words))
	for _, p := range idx.phrases {
		out = append(out, CommandEntry{Trigger: strings.Join(p.words, " "), Stage: p.stage})
	}
	words := make([]string, 0, len(idx.words))
	for w := range idx.words {
		words = append(words, w)
	}
	sort.Strings(words)
	for _, w := range words {
		out = append(out, CommandEntry{Trigger: w, Stage: idx.words[w]})
	}
	return out
}

// CommandEntry is one indexed trigger.
type CommandEntry struct {
	Trigger string `json:"trigger"`
	Stage   string `json:"stage"`
}

// Normalize lowercases a command and collapses whitespace.
func Normalize(command string) string {
	return strings.Join(strings.Fields(strings.ToLower(command)), " ")
}

func hasPrefix(words, prefix []string) bool {
	if len(prefix) > len(words) {
		return false
	}
	for i := range prefix {
		if words[i] != prefix[i] {
			return false
		}
	}
	return true
}
