package store

import (
	"github.com/BumpyClock/tasque/store/tsqerr"
)

// CreateInput is the input to Create (spec.md §4.5).
type CreateInput struct {
	Kind        Kind
	Title       string
	ParentID    string
	Priority    int
	Description string
	ExternalRef string
	DiscoveredFrom string
	Labels      []string
}

// CreateResult is Create's response payload.
type CreateResult struct {
	Task Task `json:"task"`
}

// Create allocates a new task id and appends task.created (spec.md §4.5).
func Create(repoRoot, actor string, now Clock, in CreateInput) (CreateResult, error) {
	if in.Title == "" {
		return CreateResult{}, tsqerr.New(tsqerr.ValidationError, "title is required")
	}
	if in.Kind == "" {
		in.Kind = KindTask
	}
	if in.Priority < 0 || in.Priority > 3 {
		return CreateResult{}, tsqerr.New(tsqerr.ValidationError, "priority must be 0-3")
	}

	var newID string
	outcome, err := mutate(repoRoot, actor, now, func(proj Projection, alloc *eventIDAllocator, now Clock) ([]EventRecord, error) {
		s := proj.State
		if in.ParentID != "" {
			if _, ok := s.Tasks[in.ParentID]; !ok {
				return nil, tsqerr.New(tsqerr.TaskNotFound, "parent %q not found", in.ParentID)
			}
		}
		if in.DiscoveredFrom != "" {
			if _, ok := s.Tasks[in.DiscoveredFrom]; !ok {
				return nil, tsqerr.New(tsqerr.TaskNotFound, "discovered_from %q not found", in.DiscoveredFrom)
			}
		}

		payload := map[string]any{
			"title":    in.Title,
			"kind":     string(in.Kind),
			"priority": in.Priority,
		}
		if in.ParentID != "" {
			counter := s.ChildCounters[in.ParentID]
			newID = ChildID(in.ParentID, counter)
			payload["parent_id"] = in.ParentID
			payload["child_counter"] = counter
		} else {
			id, err := NewRootID()
			if err != nil {
				return nil, tsqerr.Wrap(tsqerr.InternalError, err, "allocate task id")
			}
			newID = id
		}
		if in.Description != "" {
			payload["description"] = in.Description
		}
		if in.ExternalRef != "" {
			payload["external_ref"] = in.ExternalRef
		}
		if in.DiscoveredFrom != "" {
			payload["discovered_from"] = in.DiscoveredFrom
		}
		if len(in.Labels) > 0 {
			labels := normalizeLabels(in.Labels)
			for _, l := range labels {
				if !ValidLabel(l) {
					return nil, tsqerr.New(tsqerr.ValidationError, "invalid label %q", l)
				}
			}
			anySlice := make([]any, len(labels))
			for i, l := range labels {
				anySlice[i] = l
			}
			payload["labels"] = anySlice
		}

		return []EventRecord{{
			EventID: alloc.Allocate(),
			TS:      now(),
			Actor:   actor,
			Type:    EventTaskCreated,
			TaskID:  newID,
			Payload: payload,
		}}, nil
	})
	if err != nil {
		return CreateResult{}, err
	}
	return CreateResult{Task: outcome.State.Tasks[newID]}, nil
}

// UpdateInput is the input to Update. Pointer fields are "set if non-nil",
// matching spec.md's field-by-field diff reducer semantics.
type UpdateInput struct {
	ID             string
	ExactID        bool
	Title          *string
	Description    *string
	Priority       *int
	Kind           *Kind
	PlanningState  *PlanningState
	ExternalRef    *string
	Claim          bool
	Assignee       string
	RequireSpec    bool
}

// UpdateResult is Update's response payload.
type UpdateResult struct {
	Task Task `json:"task"`
}

// Update applies a field-by-field diff, or a claim, via task.updated /
// task.claimed (spec.md §4.5). Claim without Assignee is rejected; Assignee
// is only read when Claim is set and is ignored otherwise.
func Update(repoRoot, actor string, now Clock, in UpdateInput) (UpdateResult, error) {
	if in.Claim && in.Assignee == "" {
		return UpdateResult{}, tsqerr.New(tsqerr.ValidationError, "--claim requires --assignee")
	}

	var resolvedID string
	outcome, err := mutate(repoRoot, actor, now, func(proj Projection, alloc *eventIDAllocator, now Clock) ([]EventRecord, error) {
		s := proj.State
		id, err := ResolveID(s, in.ID, in.ExactID)
		if err != nil {
			return nil, err
		}
		resolvedID = id
		t := s.Tasks[id]

		var events []EventRecord
		if in.Claim {
			if in.RequireSpec && t.SpecPath == "" {
				return nil, tsqerr.New(tsqerr.SpecValidationFailed, "task %s has no attached spec; claim requires one", id)
			}
			if t.Status != StatusOpen && t.Status != StatusInProgress {
				return nil, tsqerr.New(tsqerr.InvalidStatus, "cannot claim task in status %s", t.Status)
			}
			if t.Assignee != "" && t.Assignee != in.Assignee {
				return nil, tsqerr.New(tsqerr.ClaimConflict, "task %s already claimed by %s", id, t.Assignee).
					WithDetails(map[string]any{"assignee": t.Assignee})
			}
			events = append(events, EventRecord{
				EventID: alloc.Allocate(), TS: now(), Actor: actor,
				Type: EventTaskClaimed, TaskID: id,
				Payload: map[string]any{"assignee": in.Assignee},
			})
		}

		payload := map[string]any{}
		if in.Title != nil {
			if *in.Title == "" {
				return nil, tsqerr.New(tsqerr.ValidationError, "title cannot be empty")
			}
			payload["title"] = *in.Title
		}
		if in.Description != nil {
			payload["description"] = *in.Description
		}
		if in.Priority != nil {
			if *in.Priority < 0 || *in.Priority > 3 {
				return nil, tsqerr.New(tsqerr.ValidationError, "priority must be 0-3")
			}
			payload["priority"] = *in.Priority
		}
		if in.Kind != nil {
			payload["kind"] = string(*in.Kind)
		}
		if in.PlanningState != nil {
			payload["planning_state"] = string(*in.PlanningState)
		}
		if in.ExternalRef != nil {
			payload["external_ref"] = *in.ExternalRef
		}
		if len(payload) > 0 {
			events = append(events, EventRecord{
				EventID: alloc.Allocate(), TS: now(), Actor: actor,
				Type: EventTaskUpdated, TaskID: id, Payload: payload,
			})
		}
		if len(events) == 0 {
			return nil, tsqerr.New(tsqerr.ValidationError, "update requires at least one change")
		}
		return events, nil
	})
	if err != nil {
		return UpdateResult{}, err
	}
	return UpdateResult{Task: outcome.State.Tasks[resolvedID]}, nil
}

// CloseInput is the input to Close (spec.md §4.5, variadic ids).
type CloseInput struct {
	IDs     []string
	ExactID bool
}

// CloseResult reports the closed tasks.
type CloseResult struct {
	Tasks []Task `json:"tasks"`
}

// Close closes each resolved id via task.closed. Any already-closed or
// already-canceled id fails the whole batch with INVALID_STATUS, since a
// partially-applied "close" with no indication of which ids succeeded
// would be a worse user experience than an all-or-nothing batch.
func Close(repoRoot, actor string, now Clock, in CloseInput) (CloseResult, error) {
	if len(in.IDs) == 0 {
		return CloseResult{}, tsqerr.New(tsqerr.ValidationError, "close requires at least one id")
	}
	var resolved []string
	outcome, err := mutate(repoRoot, actor, now, func(proj Projection, alloc *eventIDAllocator, now Clock) ([]EventRecord, error) {
		s := proj.State
		var events []EventRecord
		for _, rawID := range in.IDs {
			id, err := ResolveID(s, rawID, in.ExactID)
			if err != nil {
				return nil, err
			}
			t := s.Tasks[id]
			if t.Status == StatusClosed || t.Status == StatusCanceled {
				return nil, tsqerr.New(tsqerr.InvalidStatus, "task %s already %s", id, t.Status)
			}
			resolved = append(resolved, id)
			events = append(events, EventRecord{
				EventID: alloc.Allocate(), TS: now(), Actor: actor,
				Type: EventTaskClosed, TaskID: id, Payload: map[string]any{},
			})
		}
		return events, nil
	})
	if err != nil {
		return CloseResult{}, err
	}
	var out CloseResult
	for _, id := range resolved {
		out.Tasks = append(out.Tasks, outcome.State.Tasks[id])
	}
	return out, nil
}

// ReopenInput is the input to Reopen (spec.md §4.5, variadic ids).
type ReopenInput struct {
	IDs     []string
	ExactID bool
}

// ReopenResult reports the reopened tasks.
type ReopenResult struct {
	Tasks []Task `json:"tasks"`
}

// Reopen reopens each resolved id via task.reopened. A non-closed id fails
// the whole batch with VALIDATION_ERROR, per spec.md §8 seed scenario 4.
func Reopen(repoRoot, actor string, now Clock, in ReopenInput) (ReopenResult, error) {
	if len(in.IDs) == 0 {
		return ReopenResult{}, tsqerr.New(tsqerr.ValidationError, "reopen requires at least one id")
	}
	var resolved []string
	outcome, err := mutate(repoRoot, actor, now, func(proj Projection, alloc *eventIDAllocator, now Clock) ([]EventRecord, error) {
		s := proj.State
		var events []EventRecord
		for _, rawID := range in.IDs {
			id, err := ResolveID(s, rawID, in.ExactID)
			if err != nil {
				return nil, err
			}
			t := s.Tasks[id]
			if t.Status != StatusClosed {
				return nil, tsqerr.New(tsqerr.ValidationError, "task %s is not closed (status %s)", id, t.Status)
			}
			resolved = append(resolved, id)
			events = append(events, EventRecord{
				EventID: alloc.Allocate(), TS: now(), Actor: actor,
				Type: EventTaskReopened, TaskID: id, Payload: map[string]any{},
			})
		}
		return events, nil
	})
	if err != nil {
		return ReopenResult{}, err
	}
	var out ReopenResult
	for _, id := range resolved {
		out.Tasks = append(out.Tasks, outcome.State.Tasks[id])
	}
	return out, nil
}

// SupersedeInput is the input to Supersede.
type SupersedeInput struct {
	SourceID    string
	CanonicalID string
	ExactID     bool
}

// SupersedeResult is Supersede's response payload.
type SupersedeResult struct {
	Source    Task `json:"source"`
	Canonical Task `json:"canonical"`
}

// Supersede closes SourceID and records SupersededBy=CanonicalID, linking
// supersedes(source -> canonical) (spec.md §4.5).
func Supersede(repoRoot, actor string, now Clock, in SupersedeInput) (SupersedeResult, error) {
	var sourceID, canonicalID string
	outcome, err := mutate(repoRoot, actor, now, func(proj Projection, alloc *eventIDAllocator, now Clock) ([]EventRecord, error) {
		s := proj.State
		var err error
		sourceID, err = ResolveID(s, in.SourceID, in.ExactID)
		if err != nil {
			return nil, err
		}
		canonicalID, err = ResolveID(s, in.CanonicalID, in.ExactID)
		if err != nil {
			return nil, err
		}
		if sourceID == canonicalID {
			return nil, tsqerr.New(tsqerr.ValidationError, "a task cannot supersede itself")
		}
		t := s.Tasks[sourceID]
		if t.Status == StatusClosed || t.Status == StatusCanceled {
			return nil, tsqerr.New(tsqerr.InvalidStatus, "task %s already %s", sourceID, t.Status)
		}
		ts := now()
		return []EventRecord{
			{EventID: alloc.Allocate(), TS: ts, Actor: actor, Type: EventTaskSuperseded, TaskID: sourceID,
				Payload: map[string]any{"superseded_by": canonicalID}},
			{EventID: alloc.Allocate(), TS: ts, Actor: actor, Type: EventLinkAdded, TaskID: sourceID,
				Payload: map[string]any{"kind": string(LinkSupersedes), "dst": canonicalID}},
		}, nil
	})
	if err != nil {
		return SupersedeResult{}, err
	}
	return SupersedeResult{Source: outcome.State.Tasks[sourceID], Canonical: outcome.State.Tasks[canonicalID]}, nil
}

// DuplicateInput is the input to Duplicate.
type DuplicateInput struct {
	SourceID    string
	CanonicalID string
	ExactID     bool
}

// DuplicateResult is Duplicate's response payload.
type DuplicateResult struct {
	Source    Task `json:"source"`
	Canonical Task `json:"canonical"`
}

// Duplicate closes SourceID, marks DuplicateOf=CanonicalID, and links
// duplicates(source -> canonical); rejects DUPLICATE_CYCLE per spec.md
// §4.6.
func Duplicate(repoRoot, actor string, now Clock, in DuplicateInput) (DuplicateResult, error) {
	var sourceID, canonicalID string
	outcome, err := mutate(repoRoot, actor, now, func(proj Projection, alloc *eventIDAllocator, now Clock) ([]EventRecord, error) {
		s := proj.State
		var err error
		sourceID, err = ResolveID(s, in.SourceID, in.ExactID)
		if err != nil {
			return nil, err
		}
		canonicalID, err = ResolveID(s, in.CanonicalID, in.ExactID)
		if err != nil {
			return nil, err
		}
		if sourceID == canonicalID {
			return nil, tsqerr.New(tsqerr.ValidationError, "a task cannot duplicate itself")
		}
		if duplicateChainCycles(s, sourceID, canonicalID) {
			return nil, tsqerr.New(tsqerr.DuplicateCycle, "marking %s as duplicate of %s would cycle", sourceID, canonicalID)
		}
		t := s.Tasks[sourceID]
		if t.Status == StatusClosed || t.Status == StatusCanceled {
			return nil, tsqerr.New(tsqerr.InvalidStatus, "task %s already %s", sourceID, t.Status)
		}
		ts := now()
		return []EventRecord{
			{EventID: alloc.Allocate(), TS: ts, Actor: actor, Type: EventTaskDuplicated, TaskID: sourceID,
				Payload: map[string]any{"duplicate_of": canonicalID}},
		}, nil
	})
	if err != nil {
		return DuplicateResult{}, err
	}
	return DuplicateResult{Source: outcome.State.Tasks[sourceID], Canonical: outcome.State.Tasks[canonicalID]}, nil
}

// MergeInput is the input to Merge: mark every SourceID as a duplicate of
// CanonicalID atomically (spec.md §4.5).
type MergeInput struct {
	SourceIDs   []string
	CanonicalID string
	ExactID     bool
	DryRun      bool
}

// MergeResult is Merge's response payload.
type MergeResult struct {
	Canonical Task   `json:"canonical"`
	Merged    []Task `json:"merged"`
	DryRun    bool   `json:"dry_run"`
}

// Merge applies Duplicate's semantics to every source in one atomic
// pipeline run, or, in DryRun mode, validates without appending anything.
func Merge(repoRoot, actor string, now Clock, in MergeInput) (MergeResult, error) {
	if len(in.SourceIDs) == 0 {
		return MergeResult{}, tsqerr.New(tsqerr.ValidationError, "merge requires at least one source id")
	}

	if in.DryRun {
		proj, err := query(repoRoot)
		if err != nil {
			return MergeResult{}, err
		}
		s := proj.State
		canonicalID, err := ResolveID(s, in.CanonicalID, in.ExactID)
		if err != nil {
			return MergeResult{}, err
		}
		var merged []Task
		for _, raw := range in.SourceIDs {
			id, err := ResolveID(s, raw, in.ExactID)
			if err != nil {
				return MergeResult{}, err
			}
			if id == canonicalID {
				return MergeResult{}, tsqerr.New(tsqerr.ValidationError, "a task cannot duplicate itself")
			}
			if duplicateChainCycles(s, id, canonicalID) {
				return MergeResult{}, tsqerr.New(tsqerr.DuplicateCycle, "marking %s as duplicate of %s would cycle", id, canonicalID)
			}
			merged = append(merged, s.Tasks[id])
		}
		return MergeResult{Canonical: s.Tasks[canonicalID], Merged: merged, DryRun: true}, nil
	}

	var resolvedSources []string
	var canonicalID string
	outcome, err := mutate(repoRoot, actor, now, func(proj Projection, alloc *eventIDAllocator, now Clock) ([]EventRecord, error) {
		s := proj.State
		var err error
		canonicalID, err = ResolveID(s, in.CanonicalID, in.ExactID)
		if err != nil {
			return nil, err
		}
		var events []EventRecord
		for _, raw := range in.SourceIDs {
			id, err := ResolveID(s, raw, in.ExactID)
			if err != nil {
				return nil, err
			}
			if id == canonicalID {
				return nil, tsqerr.New(tsqerr.ValidationError, "a task cannot duplicate itself")
			}
			if duplicateChainCycles(s, id, canonicalID) {
				return nil, tsqerr.New(tsqerr.DuplicateCycle, "marking %s as duplicate of %s would cycle", id, canonicalID)
			}
			t := s.Tasks[id]
			if t.Status == StatusClosed || t.Status == StatusCanceled {
				return nil, tsqerr.New(tsqerr.InvalidStatus, "task %s already %s", id, t.Status)
			}
			resolvedSources = append(resolvedSources, id)
			events = append(events, EventRecord{
				EventID: alloc.Allocate(), TS: now(), Actor: actor,
				Type: EventTaskDuplicated, TaskID: id,
				Payload: map[string]any{"duplicate_of": canonicalID},
			})
		}
		return events, nil
	})
	if err != nil {
		return MergeResult{}, err
	}
	var merged []Task
	for _, id := range resolvedSources {
		merged = append(merged, outcome.State.Tasks[id])
	}
	return MergeResult{Canonical: outcome.State.Tasks[canonicalID], Merged: merged}, nil
}
