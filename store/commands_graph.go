package store

import "github.com/BumpyClock/tasque/store/tsqerr"

// DepAddInput is the input to DepAdd.
type DepAddInput struct {
	ChildID  string
	Blocker  string
	DepType  DepType
	ExactID  bool
}

// DepAddResult is DepAdd's response payload.
type DepAddResult struct {
	Child Task `json:"child"`
}

// DepAdd adds a (child, blocker, dep_type) edge via dep.added. A blocks-typed
// edge that would introduce a cycle is rejected with DEPENDENCY_CYCLE
// (spec.md §4.6); starts_after edges are never cycle-checked, since they are
// an ordering hint rather than a hard blocker (spec.md §3 invariant 5 note).
func DepAdd(repoRoot, actor string, now Clock, in DepAddInput) (DepAddResult, error) {
	if in.DepType == "" {
		in.DepType = DepBlocks
	}
	if in.DepType != DepBlocks && in.DepType != DepStartsAfter {
		return DepAddResult{}, tsqerr.New(tsqerr.ValidationError, "invalid dep_type %q", in.DepType)
	}

	var childID string
	outcome, err := mutate(repoRoot, actor, now, func(proj Projection, alloc *eventIDAllocator, now Clock) ([]EventRecord, error) {
		s := proj.State
		var err error
		childID, err = ResolveID(s, in.ChildID, in.ExactID)
		if err != nil {
			return nil, err
		}
		blockerID, err := ResolveID(s, in.Blocker, in.ExactID)
		if err != nil {
			return nil, err
		}
		if childID == blockerID {
			return nil, tsqerr.New(tsqerr.ValidationError, "a task cannot depend on itself")
		}
		if s.hasDep(childID, blockerID, in.DepType) {
			return nil, nil
		}
		if in.DepType == DepBlocks && blocksCycle(s, childID, blockerID) {
			return nil, tsqerr.New(tsqerr.DependencyCycle, "adding blocks(%s, %s) would create a cycle", childID, blockerID)
		}
		return []EventRecord{{
			EventID: alloc.Allocate(), TS: now(), Actor: actor,
			Type: EventDepAdded, TaskID: childID,
			Payload: map[string]any{"blocker": blockerID, "dep_type": string(in.DepType)},
		}}, nil
	})
	if err != nil {
		return DepAddResult{}, err
	}
	return DepAddResult{Child: outcome.State.Tasks[childID]}, nil
}

// DepRemoveInput is the input to DepRemove.
type DepRemoveInput struct {
	ChildID string
	Blocker string
	DepType DepType
	ExactID bool
}

// DepRemoveResult is DepRemove's response payload.
type DepRemoveResult struct {
	Child Task `json:"child"`
}

// DepRemove removes a (child, blocker, dep_type) edge via dep.removed. It is
// idempotent: removing an edge that does not exist is a no-op, not an error.
func DepRemove(repoRoot, actor string, now Clock, in DepRemoveInput) (DepRemoveResult, error) {
	if in.DepType == "" {
		in.DepType = DepBlocks
	}
	var childID string
	outcome, err := mutate(repoRoot, actor, now, func(proj Projection, alloc *eventIDAllocator, now Clock) ([]EventRecord, error) {
		s := proj.State
		var err error
		childID, err = ResolveID(s, in.ChildID, in.ExactID)
		if err != nil {
			return nil, err
		}
		blockerID, err := ResolveID(s, in.Blocker, in.ExactID)
		if err != nil {
			return nil, err
		}
		if !s.hasDep(childID, blockerID, in.DepType) {
			return nil, nil
		}
		return []EventRecord{{
			EventID: alloc.Allocate(), TS: now(), Actor: actor,
			Type: EventDepRemoved, TaskID: childID,
			Payload: map[string]any{"blocker": blockerID, "dep_type": string(in.DepType)},
		}}, nil
	})
	if err != nil {
		return DepRemoveResult{}, err
	}
	return DepRemoveResult{Child: outcome.State.Tasks[childID]}, nil
}

// LinkAddInput is the input to LinkAdd.
type LinkAddInput struct {
	SrcID   string
	Kind    LinkKind
	DstID   string
	ExactID bool
}

// LinkAddResult is LinkAdd's response payload.
type LinkAddResult struct {
	Src Task `json:"src"`
}

// LinkAdd adds a (src, kind, dst) relation link via link.added. relates_to
// and replies_to are freely addable; duplicates and supersedes links are
// normally created as a side effect of Duplicate/Supersede, but adding them
// directly is still permitted as a lower-level escape hatch (spec.md §4.5).
func LinkAdd(repoRoot, actor string, now Clock, in LinkAddInput) (LinkAddResult, error) {
	switch in.Kind {
	case LinkRelatesTo, LinkRepliesTo, LinkDuplicates, LinkSupersedes:
	default:
		return LinkAddResult{}, tsqerr.New(tsqerr.ValidationError, "invalid link kind %q", in.Kind)
	}
	var srcID string
	outcome, err := mutate(repoRoot, actor, now, func(proj Projection, alloc *eventIDAllocator, now Clock) ([]EventRecord, error) {
		s := proj.State
		var err error
		srcID, err = ResolveID(s, in.SrcID, in.ExactID)
		if err != nil {
			return nil, err
		}
		dstID, err := ResolveID(s, in.DstID, in.ExactID)
		if err != nil {
			return nil, err
		}
		if srcID == dstID {
			return nil, tsqerr.New(tsqerr.ValidationError, "a task cannot link to itself")
		}
		if s.hasLink(srcID, in.Kind, dstID) {
			return nil, nil
		}
		return []EventRecord{{
			EventID: alloc.Allocate(), TS: now(), Actor: actor,
			Type: EventLinkAdded, TaskID: srcID,
			Payload: map[string]any{"kind": string(in.Kind), "dst": dstID},
		}}, nil
	})
	if err != nil {
		return LinkAddResult{}, err
	}
	return LinkAddResult{Src: outcome.State.Tasks[srcID]}, nil
}

// LinkRemoveInput is the input to LinkRemove.
type LinkRemoveInput struct {
	SrcID   string
	Kind    LinkKind
	DstID   string
	ExactID bool
}

// LinkRemoveResult is LinkRemove's response payload.
type LinkRemoveResult struct {
	Src Task `json:"src"`
}

// LinkRemove removes a (src, kind, dst) relation link via link.removed,
// idempotently.
func LinkRemove(repoRoot, actor string, now Clock, in LinkRemoveInput) (LinkRemoveResult, error) {
	var srcID string
	outcome, err := mutate(repoRoot, actor, now, func(proj Projection, alloc *eventIDAllocator, now Clock) ([]EventRecord, error) {
		s := proj.State
		var err error
		srcID, err = ResolveID(s, in.SrcID, in.ExactID)
		if err != nil {
			return nil, err
		}
		dstID, err := ResolveID(s, in.DstID, in.ExactID)
		if err != nil {
			return nil, err
		}
		if !s.hasLink(srcID, in.Kind, dstID) {
			return nil, nil
		}
		return []EventRecord{{
			EventID: alloc.Allocate(), TS: now(), Actor: actor,
			Type: EventLinkRemoved, TaskID: srcID,
			Payload: map[string]any{"kind": string(in.Kind), "dst": dstID},
		}}, nil
	})
	if err != nil {
		return LinkRemoveResult{}, err
	}
	return LinkRemoveResult{Src: outcome.State.Tasks[srcID]}, nil
}

// LabelAddInput is the input to LabelAdd.
type LabelAddInput struct {
	ID      string
	Labels  []string
	ExactID bool
}

// LabelAddResult is LabelAdd's response payload.
type LabelAddResult struct {
	Task Task `json:"task"`
}

// LabelAdd normalizes and adds labels to a task via label.added, rejecting
// the whole command if any label fails [ValidLabel] (spec.md §4.4).
func LabelAdd(repoRoot, actor string, now Clock, in LabelAddInput) (LabelAddResult, error) {
	labels := normalizeLabels(in.Labels)
	if len(labels) == 0 {
		return LabelAddResult{}, tsqerr.New(tsqerr.ValidationError, "at least one label is required")
	}
	for _, l := range labels {
		if !ValidLabel(l) {
			return LabelAddResult{}, tsqerr.New(tsqerr.ValidationError, "invalid label %q", l)
		}
	}

	var id string
	outcome, err := mutate(repoRoot, actor, now, func(proj Projection, alloc *eventIDAllocator, now Clock) ([]EventRecord, error) {
		s := proj.State
		var err error
		id, err = ResolveID(s, in.ID, in.ExactID)
		if err != nil {
			return nil, err
		}
		existing := make(map[string]bool)
		for _, l := range s.Tasks[id].Labels {
			existing[l] = true
		}
		var events []EventRecord
		ts := now()
		for _, l := range labels {
			if existing[l] {
				continue
			}
			events = append(events, EventRecord{
				EventID: alloc.Allocate(), TS: ts, Actor: actor,
				Type: EventLabelAdded, TaskID: id,
				Payload: map[string]any{"label": l},
			})
			existing[l] = true
		}
		return events, nil
	})
	if err != nil {
		return LabelAddResult{}, err
	}
	return LabelAddResult{Task: outcome.State.Tasks[id]}, nil
}

// LabelRemoveInput is the input to LabelRemove.
type LabelRemoveInput struct {
	ID      string
	Labels  []string
	ExactID bool
}

// LabelRemoveResult is LabelRemove's response payload.
type LabelRemoveResult struct {
	Task Task `json:"task"`
}

// LabelRemove removes labels from a task via label.removed, idempotently.
func LabelRemove(repoRoot, actor string, now Clock, in LabelRemoveInput) (LabelRemoveResult, error) {
	labels := normalizeLabels(in.Labels)
	if len(labels) == 0 {
		return LabelRemoveResult{}, tsqerr.New(tsqerr.ValidationError, "at least one label is required")
	}

	var id string
	outcome, err := mutate(repoRoot, actor, now, func(proj Projection, alloc *eventIDAllocator, now Clock) ([]EventRecord, error) {
		s := proj.State
		var err error
		id, err = ResolveID(s, in.ID, in.ExactID)
		if err != nil {
			return nil, err
		}
		existing := make(map[string]bool)
		for _, l := range s.Tasks[id].Labels {
			existing[l] = true
		}
		var events []EventRecord
		ts := now()
		for _, l := range labels {
			if !existing[l] {
				continue
			}
			events = append(events, EventRecord{
				EventID: alloc.Allocate(), TS: ts, Actor: actor,
				Type: EventLabelRemoved, TaskID: id,
				Payload: map[string]any{"label": l},
			})
			delete(existing, l)
		}
		return events, nil
	})
	if err != nil {
		return LabelRemoveResult{}, err
	}
	return LabelRemoveResult{Task: outcome.State.Tasks[id]}, nil
}
