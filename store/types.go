// Package store implements the tasque durable projection engine: the
// append-only event log, the in-memory projected state, the snapshot
// cache, the advisory lock, and the command layer that wires them together
// (spec.md §2). This package is the entire subject of the specification;
// CLI parsing, skill-file installation, and release tooling are
// deliberately not part of it (spec.md §1) and live, if at all, outside
// this package under cmd/tsq.
package store

import "time"

// Kind is the task's category.
type Kind string

const (
	KindTask    Kind = "task"
	KindFeature Kind = "feature"
	KindEpic    Kind = "epic"
)

// Status is a task's lifecycle state.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusBlocked    Status = "blocked"
	StatusClosed     Status = "closed"
	StatusCanceled   Status = "canceled"
	StatusDeferred   Status = "deferred"
)

// PlanningState tracks whether a task still needs a plan before it can be
// worked ("planning lane" vs "coding lane" in the GLOSSARY).
type PlanningState string

const (
	NeedsPlanning PlanningState = "needs_planning"
	Planned       PlanningState = "planned"
)

// DepType distinguishes hard blockers from soft ordering hints.
type DepType string

const (
	DepBlocks      DepType = "blocks"
	DepStartsAfter DepType = "starts_after"
)

// LinkKind is the relation encoded by a RelationLink.
type LinkKind string

const (
	LinkRelatesTo  LinkKind = "relates_to"
	LinkRepliesTo  LinkKind = "replies_to"
	LinkDuplicates LinkKind = "duplicates"
	LinkSupersedes LinkKind = "supersedes"
)

// Note is one entry in a task's ordered notes list.
type Note struct {
	EventID string    `json:"event_id"`
	TS      time.Time `json:"ts"`
	Actor   string    `json:"actor"`
	Text    string    `json:"text"`
}

// Task is the fundamental graph node (spec.md §3).
type Task struct {
	ID       string `json:"id"`
	Kind     Kind   `json:"kind"`
	Title    string `json:"title"`
	Status   Status `json:"status"`
	Priority int    `json:"priority"`

	Labels []string `json:"labels,omitempty"`
	Notes  []Note   `json:"notes,omitempty"`

	PlanningState PlanningState `json:"planning_state"`

	Assignee       string `json:"assignee,omitempty"`
	ParentID       string `json:"parent_id,omitempty"`
	Description    string `json:"description,omitempty"`
	ExternalRef    string `json:"external_ref,omitempty"`
	DiscoveredFrom string `json:"discovered_from,omitempty"`
	SupersededBy   string `json:"superseded_by,omitempty"`
	DuplicateOf    string `json:"duplicate_of,omitempty"`

	ClosedAt *time.Time `json:"closed_at,omitempty"`

	SpecPath        string     `json:"spec_path,omitempty"`
	SpecFingerprint string     `json:"spec_fingerprint,omitempty"`
	SpecAttachedAt  *time.Time `json:"spec_attached_at,omitempty"`
	SpecAttachedBy  string     `json:"spec_attached_by,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep-enough copy of t suitable for storing back into
// State without aliasing slices with the caller.
func (t Task) Clone() Task {
	c := t
	if t.Labels != nil {
		c.Labels = append([]string(nil), t.Labels...)
	}
	if t.Notes != nil {
		c.Notes = append([]Note(nil), t.Notes...)
	}
	return c
}

// DependencyEdge is one (child, blocker, dep_type) edge, per spec.md §3.
type DependencyEdge struct {
	Blocker string  `json:"blocker"`
	DepType DepType `json:"dep_type"`
}

// RelationLink key: links[src][kind] -> set of dst. We model the set as a
// map[string]struct{} for O(1) membership and idempotent add/remove.
type linkSet map[string]struct{}

// State is the projected in-memory structure (spec.md §3).
type State struct {
	Tasks map[string]Task `json:"tasks"`

	// Deps maps a child id to the set of its edges, keyed by
	// "dep_type|blocker" for idempotent coalescing.
	Deps map[string]map[string]DependencyEdge `json:"deps"`

	// Links maps src -> kind -> set of dst.
	Links map[string]map[LinkKind]linkSet `json:"links"`

	ChildCounters map[string]int `json:"child_counters"`
	CreatedOrder  []string       `json:"created_order"`
	AppliedEvents int64          `json:"applied_events"`
}

// NewState returns an empty, fully initialized State.
func NewState() *State {
	return &State{
		Tasks:         make(map[string]Task),
		Deps:          make(map[string]map[string]DependencyEdge),
		Links:         make(map[string]map[LinkKind]linkSet),
		ChildCounters: make(map[string]int),
	}
}

func depKey(blocker string, dt DepType) string {
	return string(dt) + "|" + blocker
}

func (s *State) addDep(child string, e DependencyEdge) {
	m, ok := s.Deps[child]
	if !ok {
		m = make(map[string]DependencyEdge)
		s.Deps[child] = m
	}
	m[depKey(e.Blocker, e.DepType)] = e
}

func (s *State) removeDep(child, blocker string, dt DepType) {
	m, ok := s.Deps[child]
	if !ok {
		return
	}
	delete(m, depKey(blocker, dt))
	if len(m) == 0 {
		delete(s.Deps, child)
	}
}

func (s *State) hasDep(child, blocker string, dt DepType) bool {
	m, ok := s.Deps[child]
	if !ok {
		return false
	}
	_, ok = m[depKey(blocker, dt)]
	return ok
}

func (s *State) addLink(src string, kind LinkKind, dst string) {
	byKind, ok := s.Links[src]
	if !ok {
		byKind = make(map[LinkKind]linkSet)
		s.Links[src] = byKind
	}
	set, ok := byKind[kind]
	if !ok {
		set = make(linkSet)
		byKind[kind] = set
	}
	set[dst] = struct{}{}
}

func (s *State) removeLink(src string, kind LinkKind, dst string) {
	byKind, ok := s.Links[src]
	if !ok {
		return
	}
	set, ok := byKind[kind]
	if !ok {
		return
	}
	delete(set, dst)
	if len(set) == 0 {
		delete(byKind, kind)
	}
	if len(byKind) == 0 {
		delete(s.Links, src)
	}
}

func (s *State) hasLink(src string, kind LinkKind, dst string) bool {
	byKind, ok := s.Links[src]
	if !ok {
		return false
	}
	set, ok := byKind[kind]
	if !ok {
		return false
	}
	_, ok = set[dst]
	return ok
}

// Clone returns a deep copy of s, used by the projector to apply a batch of
// events without mutating a State a caller might still be reading (e.g. a
// concurrent read-only query holding the previously loaded projection).
func (s *State) Clone() *State {
	out := NewState()
	for id, t := range s.Tasks {
		out.Tasks[id] = t.Clone()
	}
	for child, edges := range s.Deps {
		m := make(map[string]DependencyEdge, len(edges))
		for k, e := range edges {
			m[k] = e
		}
		out.Deps[child] = m
	}
	for src, byKind := range s.Links {
		bk := make(map[LinkKind]linkSet, len(byKind))
		for kind, set := range byKind {
			s2 := make(linkSet, len(set))
			for dst := range set {
				s2[dst] = struct{}{}
			}
			bk[kind] = s2
		}
		out.Links[src] = bk
	}
	for parent, n := range s.ChildCounters {
		out.ChildCounters[parent] = n
	}
	out.CreatedOrder = append([]string(nil), s.CreatedOrder...)
	out.AppliedEvents = s.AppliedEvents
	return out
}
