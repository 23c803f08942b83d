package store

import (
	"regexp"
	"sort"
	"strings"
)

// blocksCycle reports whether adding a blocks-typed edge (child, blocker)
// would create a cycle: it is a DFS forward from blocker over the
// blocks-subgraph, rejecting if child is reachable (spec.md §4.6).
func blocksCycle(s *State, child, blocker string) bool {
	if child == blocker {
		return true
	}
	visited := make(map[string]bool)
	var dfs func(id string) bool
	dfs = func(id string) bool {
		if id == child {
			return true
		}
		if visited[id] {
			return false
		}
		visited[id] = true
		for _, edge := range s.Deps[id] {
			if edge.DepType != DepBlocks {
				continue
			}
			if dfs(edge.Blocker) {
				return true
			}
		}
		return false
	}
	return dfs(blocker)
}

// duplicateChainCycles reports whether marking source as a duplicate of
// canonical would create a cycle in the duplicate_of chain: walk the chain
// from canonical, and reject if source is encountered (spec.md §4.6).
func duplicateChainCycles(s *State, source, canonical string) bool {
	visited := make(map[string]bool)
	id := canonical
	for {
		if id == source {
			return true
		}
		if visited[id] {
			return false
		}
		visited[id] = true
		t, ok := s.Tasks[id]
		if !ok || t.DuplicateOf == "" {
			return false
		}
		id = t.DuplicateOf
	}
}

// IsReady reports whether the task with id is ready per spec.md §3
// invariant 5: status in {open, in_progress} and every blocks-typed
// blocker exists in state with status in {closed, canceled}. A missing
// blocker (not in state) makes the task NOT ready.
func IsReady(s *State, id string) bool {
	t, ok := s.Tasks[id]
	if !ok {
		return false
	}
	if t.Status != StatusOpen && t.Status != StatusInProgress {
		return false
	}
	for _, edge := range s.Deps[id] {
		if edge.DepType != DepBlocks {
			continue
		}
		blocker, ok := s.Tasks[edge.Blocker]
		if !ok {
			return false
		}
		if blocker.Status != StatusClosed && blocker.Status != StatusCanceled {
			return false
		}
	}
	return true
}

// ListReady returns every ready task id, ordered by created_order (spec.md
// §4.6).
func ListReady(s *State) []string {
	var out []string
	for _, id := range s.CreatedOrder {
		if IsReady(s, id) {
			out = append(out, id)
		}
	}
	return out
}

// DependentEntry is one entry of a blocker's dependents index.
type DependentEntry struct {
	Child   string
	DepType DepType
}

// Dependents builds dependents[blocker] -> []DependentEntry on demand by
// scanning Deps, used by show and tree rendering (spec.md §4.6).
func Dependents(s *State) map[string][]DependentEntry {
	out := make(map[string][]DependentEntry)
	for child, edges := range s.Deps {
		for _, e := range edges {
			out[e.Blocker] = append(out[e.Blocker], DependentEntry{Child: child, DepType: e.DepType})
		}
	}
	for _, list := range out {
		sort.Slice(list, func(i, j int) bool { return list[i].Child < list[j].Child })
	}
	return out
}

// TreeNode is one node of the parent/child forest built by BuildTree.
type TreeNode struct {
	Task     Task
	Children []*TreeNode
}

// BuildTree derives a parent-child forest from a filtered task list: tasks
// whose parent is missing from the filtered set become roots, and children
// are sorted by created_order (spec.md §4.6).
func BuildTree(s *State, ids []string) []*TreeNode {
	included := make(map[string]bool, len(ids))
	for _, id := range ids {
		included[id] = true
	}
	nodes := make(map[string]*TreeNode, len(ids))
	for _, id := range ids {
		t := s.Tasks[id]
		nodes[id] = &TreeNode{Task: t}
	}
	var roots []*TreeNode
	order := make(map[string]int, len(s.CreatedOrder))
	for i, id := range s.CreatedOrder {
		order[id] = i
	}
	for _, id := range ids {
		t := s.Tasks[id]
		if t.ParentID != "" && included[t.ParentID] {
			parent := nodes[t.ParentID]
			parent.Children = append(parent.Children, nodes[id])
		} else {
			roots = append(roots, nodes[id])
		}
	}
	sortByCreated := func(list []*TreeNode) {
		sort.Slice(list, func(i, j int) bool { return order[list[i].Task.ID] < order[list[j].Task.ID] })
	}
	sortByCreated(roots)
	for _, n := range nodes {
		sortByCreated(n.Children)
	}
	return roots
}

var nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]+`)

// normalizedTitle collapses non-alphanumerics, lower-cases, and trims, used
// by the duplicate candidate scan (spec.md §4.6).
func normalizedTitle(title string) string {
	lower := strings.ToLower(title)
	collapsed := nonAlphanumeric.ReplaceAllString(lower, " ")
	return strings.TrimSpace(collapsed)
}

// DuplicateGroup is a set of tasks sharing a normalized title.
type DuplicateGroup struct {
	NormalizedTitle string
	TaskIDs         []string
}

// FindDuplicateCandidates groups active (non-closed, non-canceled) tasks by
// normalized title and returns groups of size >= 2, capped at limit groups,
// ordered by created_order within each group (spec.md §4.6, read-only).
func FindDuplicateCandidates(s *State, limit int) []DuplicateGroup {
	groups := make(map[string][]string)
	var order []string
	for _, id := range s.CreatedOrder {
		t := s.Tasks[id]
		if t.Status == StatusClosed || t.Status == StatusCanceled {
			continue
		}
		key := normalizedTitle(t.Title)
		if key == "" {
			continue
		}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], id)
	}
	var out []DuplicateGroup
	for _, key := range order {
		ids := groups[key]
		if len(ids) < 2 {
			continue
		}
		out = append(out, DuplicateGroup{NormalizedTitle: key, TaskIDs: ids})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}
