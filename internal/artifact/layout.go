package artifact

import (
	"encoding/json"
	"fmt"
	"maps"
	"path"
	"sort"
	"strings"

	"github.com/ariel-frischer/stagetrail/internal/vfs"
)

const (
	dataDirName    = "data"
	joinPrefix     = "_join_"
	branchMarker   = "_BRANCH_"
	joinDescriptor = "join.json"
)

// JoinDescriptor is persisted as join.json inside a join directory.
type JoinDescriptor struct {
	Parents     []string          `json:"parents"`
	ParentPaths map[string]string `json:"parent_paths"`
	// Targets maps each linked member to the data directory its link points at.
	Targets map[string]string `json:"targets"`
}

// JoinName returns the directory name for a join over parents.
func JoinName(parents []string) string {
	sorted := append([]string(nil), parents...)
	sort.Strings(sorted)
	return joinPrefix + strings.Join(sorted, "_")
}

// placement is the resolved position of a stage directory.
type placement struct {
	dir     string
	depth   int
	join    string   // join directory, empty unless the stage joins parents
	members []string // join members in declared order
}

// underJoin moves p's stage directory into join.
func (p placement) underJoin(join string) placement {
	p.dir = vfs.Join(join, path.Base(p.dir))
	p.join = join
	return p
}

// layout resolves stage directories for one operation. Results are memoized
// so a stage reached through several descendants is resolved once.
type layout struct {
	s    *Store
	memo map[string]placement
	busy map[string]bool
}

func (s *Store) newLayout() *layout {
	return &layout{s: s, memo: make(map[string]placement), busy: make(map[string]bool)}
}

// place returns the canonical directory of a stage: the chain of ancestor
// directories with no branch segments.
func (l *layout) place(stageID string) (placement, error) {
	if p, ok := l.memo[stageID]; ok {
		return p, nil
	}
	if l.busy[stageID] {
		return placement{}, fmt.Errorf("artifact: cycle through stage %q", stageID)
	}
	l.busy[stageID] = true
	defer delete(l.busy, stageID)

	node, err := l.s.graph.MustNode(stageID)
	if err != nil {
		return placement{}, err
	}

	members, err := l.joinMembers(node.Previous)
	if err != nil {
		return placement{}, err
	}

	var p placement
	switch len(members) {
	case 0:
		p = placement{dir: stageID, depth: 1}
	case 1:
		parent, err := l.place(members[0])
		if err != nil {
			return placement{}, err
		}
		p = placement{dir: vfs.Join(parent.dir, stageID), depth: parent.depth + 1}
	default:
		anchor, err := l.anchor(members)
		if err != nil {
			return placement{}, err
		}
		join := vfs.Join(anchor.dir, JoinName(members))
		p = placement{
			dir:     vfs.Join(join, stageID),
			depth:   anchor.depth + 2,
			join:    join,
			members: members,
		}
	}

	l.memo[stageID] = p
	return p, nil
}

// joinMembers drops optional parents that were never materialized. When that
// would leave nothing, every declared parent is kept so the placement stays
// stable; members that never ran still get no link.
func (l *layout) joinMembers(parents []string) ([]string, error) {
	var kept []string
	for _, parent := range parents {
		node, ok := l.s.graph.Node(parent)
		if !ok {
			continue
		}
		if node.Optional {
			_, found, err := l.s.Latest(parent)
			if err != nil {
				return nil, err
			}
			if !found {
				continue
			}
		}
		kept = append(kept, parent)
	}
	if len(kept) == 0 {
		for _, parent := range parents {
			if l.s.graph.Has(parent) {
				kept = append(kept, parent)
			}
		}
	}
	return kept, nil
}

// anchor picks the member with the deepest directory; ties go to the
// lexically larger stage ID.
func (l *layout) anchor(members []string) (placement, error) {
	var (
		best   placement
		bestID string
	)
	for _, id := range members {
		p, err := l.place(id)
		if err != nil {
			return placement{}, err
		}
		if bestID == "" || p.depth > best.depth || (p.depth == best.depth && id > bestID) {
			best, bestID = p, id
		}
	}
	return best, nil
}

// resolveJoin returns the placement a write of p's stage uses. The canonical
// join directory is reused while its links match every member's current data
// directory. Once a member has moved on, the write goes to a branched join
// with its own links. Existing links are never re-pointed. branched reports
// whether a new branched join was created.
func (s *Store) resolveJoin(p placement, stamp string) (_ placement, branched bool, err error) {
	if p.join == "" {
		return p, false, nil
	}
	targets, err := s.joinTargets(p.members)
	if err != nil {
		return placement{}, false, err
	}

	candidates, err := s.joinCandidates(p.join)
	if err != nil {
		return placement{}, false, err
	}
	for _, join := range candidates {
		desc, err := s.ReadJoin(join)
		if vfs.IsNotFound(err) && join == p.join {
			return p, false, s.createJoin(join, p.members, targets)
		}
		if err != nil {
			s.logger.Debug("skipping unreadable join", "join", join, "error", err)
			continue
		}
		if maps.Equal(desc.Targets, targets) {
			return p.underJoin(join), false, nil
		}
	}

	join := branchDir(p.join, path.Base(p.join), stamp, s.suffix())
	if err := s.createJoin(join, p.members, targets); err != nil {
		return placement{}, false, err
	}
	return p.underJoin(join), true, nil
}

// joinTargets maps each materialized member to its current data directory.
// Members that never ran get no link.
func (s *Store) joinTargets(members []string) (map[string]string, error) {
	targets := make(map[string]string, len(members))
	for _, member := range members {
		loc, found, err := s.Latest(member)
		if err != nil {
			return nil, err
		}
		if found {
			targets[member] = path.Dir(loc.Path)
		}
	}
	return targets, nil
}

// joinCandidates lists the canonical join followed by its branches, oldest
// name first.
func (s *Store) joinCandidates(join string) ([]string, error) {
	candidates := []string{join}
	anchor := path.Dir(join)
	if anchor == "." {
		anchor = ""
	}
	entries, err := s.fs.ChildrenList(anchor)
	if vfs.IsNotFound(err) {
		return candidates, nil
	}
	if err != nil {
		return nil, fmt.Errorf("artifact: join %s: %w", join, err)
	}
	prefix := path.Base(join) + branchMarker
	for _, e := range entries {
		if e.Kind == vfs.KindDir && strings.HasPrefix(e.Name, prefix) {
			candidates = append(candidates, vfs.Join(anchor, e.Name))
		}
	}
	return candidates, nil
}

// createJoin materializes a join directory: data/ with one link per
// materialized member, plus join.json.
func (s *Store) createJoin(join string, members []string, targets map[string]string) error {
	desc := JoinDescriptor{
		Parents:     members,
		ParentPaths: make(map[string]string, len(targets)),
		Targets:     targets,
	}
	for _, member := range members {
		target, ok := targets[member]
		if !ok {
			continue
		}
		if err := s.fs.LinkCreate(vfs.Join(join, dataDirName, member), target); err != nil {
			return fmt.Errorf("artifact: join %s: %w", join, err)
		}
		desc.ParentPaths[member] = path.Join(dataDirName, member)
	}

	data, err := json.MarshalIndent(desc, "", "  ")
	if err != nil {
		return fmt.Errorf("artifact: encode join descriptor: %w", err)
	}
	if err := s.fs.ArtifactWrite(vfs.Join(join, joinDescriptor), append(data, '\n')); err != nil {
		return fmt.Errorf("artifact: join %s: %w", join, err)
	}
	s.logger.Debug("join synthesized", "join", join, "parents", members)
	return nil
}

// ReadJoin reads the descriptor of the join directory at joinDir.
func (s *Store) ReadJoin(joinDir string) (*JoinDescriptor, error) {
	data, err := s.fs.ArtifactRead(vfs.Join(joinDir, joinDescriptor))
	if err != nil {
		return nil, err
	}
	var desc JoinDescriptor
	if err := json.Unmarshal(data, &desc); err != nil {
		return nil, fmt.Errorf("artifact: decode join descriptor: %w", err)
	}
	return &desc, nil
}

func artifactFile(dir, stageID string) string {
	return vfs.Join(dir, dataDirName, stageID+".json")
}

// branchDir replaces the final segment of dir with a branch segment.
func branchDir(dir, stageID, stamp, suffix string) string {
	parent := path.Dir(dir)
	if parent == "." {
		parent = ""
	}
	return vfs.Join(parent, fmt.Sprintf("%s%s%s_%s", stageID, branchMarker, stamp, suffix))
}
