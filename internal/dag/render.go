package dag

import (
	"fmt"
	"strings"

	"github.com/ariel-frischer/stagetrail/internal/manifest"
)

// Stage markers used by RenderASCII. Portable ASCII only.
const (
	markDone    = "[x]"
	markStale   = "[!]"
	markCurrent = "[>]"
	markBlocked = "[ ]"
	markReady   = "[-]"
)

// RenderASCII draws the graph in topological order with each stage's state.
func RenderASCII(g *manifest.Graph, pos Position) string {
	if g.Len() == 0 {
		return "Workflow has no stages to visualize."
	}

	var sb strings.Builder
	sb.WriteString(renderHeader(g, pos))
	sb.WriteString("\n")

	pending := make(map[string][]string, len(pos.Readiness))
	for _, r := range pos.Readiness {
		pending[r.StageID] = r.PendingParents
	}
	done := toSet(pos.CompletedStages)
	stale := toSet(pos.StaleStages)

	for _, id := range g.TopoOrder() {
		node, _ := g.Node(id)
		sb.WriteString(renderStageLine(node, stageMark(id, pos.CurrentStage, done, stale, pending[id])))
	}

	sb.WriteString("\n")
	sb.WriteString(renderLegend())
	return sb.String()
}

func renderHeader(g *manifest.Graph, pos Position) string {
	name := g.Header.Name
	if name == "" {
		name = "workflow"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Workflow: %s\n", name)
	sb.WriteString(strings.Repeat("=", len(name)+10) + "\n")
	fmt.Fprintf(&sb, "Stages: %d  |  Completed: %d (%d%%)", pos.Progress.Total, pos.Progress.Completed, pos.Progress.Percent())
	if len(pos.StaleStages) > 0 {
		fmt.Fprintf(&sb, "  |  Stale: %d", len(pos.StaleStages))
	}
	sb.WriteString("\n")
	return sb.String()
}

func stageMark(id, current string, done, stale map[string]bool, pending []string) string {
	switch {
	case stale[id]:
		return markStale
	case done[id]:
		return markDone
	case id == current:
		return markCurrent
	case len(pending) > 0:
		return markBlocked
	default:
		return markReady
	}
}

func renderStageLine(node *manifest.StageNode, mark string) string {
	line := fmt.Sprintf("%s %s", mark, node.ID)
	if node.Name != "" && node.Name != node.ID {
		line += fmt.Sprintf(" (%s)", node.Name)
	}
	if node.Optional {
		line += " optional"
	}
	if len(node.Previous) > 0 {
		line += " <-- " + strings.Join(node.Previous, ", ")
	}
	return line + "\n"
}

func renderLegend() string {
	var sb strings.Builder
	sb.WriteString("Legend:\n")
	sb.WriteString("  [x] = completed   [!] = stale   [>] = current\n")
	sb.WriteString("  [-] = ready       [ ] = waiting on parents\n")
	sb.WriteString("  <-- = previous stages\n")
	return sb.String()
}

// RenderCompact renders the topological order on one line, marking the
// current stage with an asterisk.
// Format: search -> gather* -> harmonize
func RenderCompact(g *manifest.Graph, pos Position) string {
	if g.Len() == 0 {
		return "Empty workflow"
	}
	order := g.TopoOrder()
	parts := make([]string, len(order))
	for i, id := range order {
		parts[i] = id
		if id == pos.CurrentStage {
			parts[i] += "*"
		}
	}
	return strings.Join(parts, " -> ")
}
