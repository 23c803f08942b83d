package store

import (
	"fmt"
)

// replayResult is the output of replaying a sequence of events onto a
// starting State (spec.md §4.2).
type replayResult struct {
	State    *State
	Warnings []string
}

// replay applies events in order onto a clone of start, skipping (and
// warning about) any event whose preconditions fail, per spec.md §4.2:
// "the projector never aborts on a single bad event." Unknown event types
// are ignored outright for forward compatibility.
func replay(start *State, events []EventRecord) replayResult {
	s := start.Clone()
	var warnings []string
	for _, e := range events {
		if err := applyEvent(s, e); err != nil {
			warnings = append(warnings, fmt.Sprintf("event %s (%s) skipped: %v", e.EventID, e.Type, err))
			continue
		}
		s.AppliedEvents++
	}
	return replayResult{State: s, Warnings: warnings}
}

// applyEvent is the single deterministic reducer dispatch table (spec.md
// §4.2). It mutates s in place and returns an error describing why the
// event's preconditions failed, if they did; the caller treats that as a
// skip-with-warning, never an abort.
func applyEvent(s *State, e EventRecord) error {
	switch e.Type {
	case EventTaskCreated:
		return applyTaskCreated(s, e)
	case EventTaskUpdated:
		return applyTaskUpdated(s, e)
	case EventTaskClaimed:
		return applyTaskClaimed(s, e)
	case EventTaskClosed:
		return applyTaskClosed(s, e)
	case EventTaskReopened:
		return applyTaskReopened(s, e)
	case EventTaskSuperseded:
		return applyTaskSuperseded(s, e)
	case EventTaskDuplicated:
		return applyTaskDuplicated(s, e)
	case EventNoteAdded:
		return applyNoteAdded(s, e)
	case EventDepAdded:
		return applyDepAdded(s, e)
	case EventDepRemoved:
		return applyDepRemoved(s, e)
	case EventLinkAdded:
		return applyLinkAdded(s, e)
	case EventLinkRemoved:
		return applyLinkRemoved(s, e)
	case EventLabelAdded:
		return applyLabelAdded(s, e)
	case EventLabelRemoved:
		return applyLabelRemoved(s, e)
	case EventSpecAttached:
		return applySpecAttached(s, e)
	case EventRepairApplied:
		return applyRepairApplied(s, e)
	default:
		// Forward compatibility: unknown event types are ignored, not
		// treated as failures, so they don't generate spurious warnings.
		return nil
	}
}

func applyTaskCreated(s *State, e EventRecord) error {
	if e.TaskID == "" {
		return fmt.Errorf("task.created missing task_id")
	}
	if _, exists := s.Tasks[e.TaskID]; exists {
		return fmt.Errorf("task %s already exists", e.TaskID)
	}
	title, _ := payloadString(e.Payload, "title")
	if title == "" {
		return fmt.Errorf("task.created missing title")
	}
	kind := Kind(firstNonEmpty(mustString(e.Payload, "kind"), string(KindTask)))
	priority, _ := payloadInt(e.Payload, "priority")
	parentID, _ := payloadString(e.Payload, "parent_id")

	if parentID != "" {
		if _, ok := s.Tasks[parentID]; !ok {
			return fmt.Errorf("parent %s does not exist", parentID)
		}
		wantCounter, _ := payloadInt(e.Payload, "child_counter")
		haveCounter := s.ChildCounters[parentID]
		if wantCounter != haveCounter {
			return fmt.Errorf("parent %s counter mismatch: event wants %d, state has %d", parentID, wantCounter, haveCounter)
		}
		expected := ChildID(parentID, wantCounter)
		if expected != e.TaskID {
			return fmt.Errorf("child id mismatch: expected %s, got %s", expected, e.TaskID)
		}
		s.ChildCounters[parentID] = wantCounter + 1
	}

	t := Task{
		ID:            e.TaskID,
		Kind:          kind,
		Title:         title,
		Status:        StatusOpen,
		Priority:      priority,
		ParentID:      parentID,
		PlanningState: NeedsPlanning,
		CreatedAt:     e.TS,
		UpdatedAt:     e.TS,
	}
	if desc, ok := payloadString(e.Payload, "description"); ok {
		t.Description = desc
	}
	if ref, ok := payloadString(e.Payload, "external_ref"); ok {
		t.ExternalRef = ref
	}
	if df, ok := payloadString(e.Payload, "discovered_from"); ok {
		if _, exists := s.Tasks[df]; !exists {
			return fmt.Errorf("discovered_from %s does not exist", df)
		}
		t.DiscoveredFrom = df
	}
	if ps, ok := payloadString(e.Payload, "planning_state"); ok && ps != "" {
		t.PlanningState = PlanningState(ps)
	}
	if labels, ok := payloadStrings(e.Payload, "labels"); ok {
		t.Labels = normalizeLabels(labels)
	}
	s.Tasks[e.TaskID] = t
	s.ChildCounters[e.TaskID] = 0
	s.CreatedOrder = append(s.CreatedOrder, e.TaskID)
	return nil
}

func applyTaskUpdated(s *State, e EventRecord) error {
	t, err := mustTask(s, e.TaskID)
	if err != nil {
		return err
	}
	if v, ok := payloadString(e.Payload, "title"); ok {
		if v == "" {
			return fmt.Errorf("title cannot be empty")
		}
		t.Title = v
	}
	if v, ok := payloadString(e.Payload, "description"); ok {
		t.Description = v
	}
	if v, ok := payloadInt(e.Payload, "priority"); ok {
		t.Priority = v
	}
	if v, ok := payloadString(e.Payload, "status"); ok {
		t.Status = Status(v)
	}
	if v, ok := payloadString(e.Payload, "assignee"); ok {
		t.Assignee = v
	}
	if v, ok := payloadString(e.Payload, "kind"); ok {
		t.Kind = Kind(v)
	}
	if v, ok := payloadString(e.Payload, "planning_state"); ok {
		t.PlanningState = PlanningState(v)
	}
	if v, ok := payloadString(e.Payload, "external_ref"); ok {
		t.ExternalRef = v
	}
	t.UpdatedAt = e.TS
	s.Tasks[e.TaskID] = t
	return nil
}

func applyTaskClaimed(s *State, e EventRecord) error {
	t, err := mustTask(s, e.TaskID)
	if err != nil {
		return err
	}
	if t.Status != StatusOpen && t.Status != StatusInProgress {
		return fmt.Errorf("cannot claim task in status %s", t.Status)
	}
	assignee, _ := payloadString(e.Payload, "assignee")
	if t.Assignee != "" && t.Assignee != assignee {
		return fmt.Errorf("already claimed by %s", t.Assignee)
	}
	t.Assignee = assignee
	if t.Status == StatusOpen {
		t.Status = StatusInProgress
	}
	t.UpdatedAt = e.TS
	s.Tasks[e.TaskID] = t
	return nil
}

func applyTaskClosed(s *State, e EventRecord) error {
	t, err := mustTask(s, e.TaskID)
	if err != nil {
		return err
	}
	if t.Status == StatusClosed || t.Status == StatusCanceled {
		return fmt.Errorf("task already %s", t.Status)
	}
	status := StatusClosed
	if v, ok := payloadString(e.Payload, "status"); ok && v != "" {
		status = Status(v)
	}
	t.Status = status
	ts := e.TS
	t.ClosedAt = &ts
	t.UpdatedAt = e.TS
	s.Tasks[e.TaskID] = t
	return nil
}

func applyTaskReopened(s *State, e EventRecord) error {
	t, err := mustTask(s, e.TaskID)
	if err != nil {
		return err
	}
	if t.Status != StatusClosed {
		return fmt.Errorf("cannot reopen task in status %s", t.Status)
	}
	t.Status = StatusOpen
	t.ClosedAt = nil
	t.UpdatedAt = e.TS
	s.Tasks[e.TaskID] = t
	return nil
}

func applyTaskSuperseded(s *State, e EventRecord) error {
	t, err := mustTask(s, e.TaskID)
	if err != nil {
		return err
	}
	canonical, ok := payloadString(e.Payload, "superseded_by")
	if !ok || canonical == "" {
		return fmt.Errorf("task.superseded missing superseded_by")
	}
	if _, ok := s.Tasks[canonical]; !ok {
		return fmt.Errorf("superseded_by %s does not exist", canonical)
	}
	if t.Status == StatusClosed || t.Status == StatusCanceled {
		return fmt.Errorf("task already %s", t.Status)
	}
	t.SupersededBy = canonical
	t.Status = StatusClosed
	ts := e.TS
	t.ClosedAt = &ts
	t.UpdatedAt = e.TS
	s.Tasks[e.TaskID] = t
	return nil
}

func applyTaskDuplicated(s *State, e EventRecord) error {
	t, err := mustTask(s, e.TaskID)
	if err != nil {
		return err
	}
	canonical, ok := payloadString(e.Payload, "duplicate_of")
	if !ok || canonical == "" {
		return fmt.Errorf("task.duplicated missing duplicate_of")
	}
	if _, ok := s.Tasks[canonical]; !ok {
		return fmt.Errorf("duplicate_of %s does not exist", canonical)
	}
	if duplicateChainCycles(s, e.TaskID, canonical) {
		return fmt.Errorf("duplicate chain would cycle through %s", e.TaskID)
	}
	if t.Status == StatusClosed || t.Status == StatusCanceled {
		return fmt.Errorf("task already %s", t.Status)
	}
	t.DuplicateOf = canonical
	t.Status = StatusClosed
	ts := e.TS
	t.ClosedAt = &ts
	t.UpdatedAt = e.TS
	s.Tasks[e.TaskID] = t
	s.addLink(e.TaskID, LinkDuplicates, canonical)
	return nil
}

func applyNoteAdded(s *State, e EventRecord) error {
	t, err := mustTask(s, e.TaskID)
	if err != nil {
		return err
	}
	text, _ := payloadString(e.Payload, "text")
	if text == "" {
		return fmt.Errorf("note.added missing text")
	}
	t.Notes = append(t.Notes, Note{EventID: e.EventID, TS: e.TS, Actor: e.Actor, Text: text})
	t.UpdatedAt = e.TS
	s.Tasks[e.TaskID] = t
	return nil
}

// depFromPayload normalizes the older bare-blocker-string shape and the
// current {blocker, dep_type} shape into a DependencyEdge, per spec.md §9's
// "dependency edge normalization" design note.
func depFromPayload(p map[string]any) (DependencyEdge, error) {
	if blocker, ok := payloadString(p, "blocker"); ok {
		dt := DepBlocks
		if v, ok := payloadString(p, "dep_type"); ok && v != "" {
			dt = DepType(v)
		}
		return DependencyEdge{Blocker: blocker, DepType: dt}, nil
	}
	return DependencyEdge{}, fmt.Errorf("missing blocker")
}

func applyDepAdded(s *State, e EventRecord) error {
	if _, ok := s.Tasks[e.TaskID]; !ok {
		return fmt.Errorf("child %s does not exist", e.TaskID)
	}
	edge, err := depFromPayload(e.Payload)
	if err != nil {
		return err
	}
	if _, ok := s.Tasks[edge.Blocker]; !ok {
		return fmt.Errorf("blocker %s does not exist", edge.Blocker)
	}
	if edge.Blocker == e.TaskID {
		return fmt.Errorf("self-edge rejected")
	}
	if edge.DepType == DepBlocks && blocksCycle(s, e.TaskID, edge.Blocker) {
		return fmt.Errorf("adding blocker %s would create a cycle", edge.Blocker)
	}
	s.addDep(e.TaskID, edge)
	return nil
}

func applyDepRemoved(s *State, e EventRecord) error {
	edge, err := depFromPayload(e.Payload)
	if err != nil {
		return err
	}
	s.removeDep(e.TaskID, edge.Blocker, edge.DepType)
	return nil
}

func applyLinkAdded(s *State, e EventRecord) error {
	kind, _ := payloadString(e.Payload, "kind")
	dst, _ := payloadString(e.Payload, "dst")
	if kind == "" || dst == "" {
		return fmt.Errorf("link.added missing kind or dst")
	}
	if _, ok := s.Tasks[e.TaskID]; !ok {
		return fmt.Errorf("src %s does not exist", e.TaskID)
	}
	if _, ok := s.Tasks[dst]; !ok {
		return fmt.Errorf("dst %s does not exist", dst)
	}
	s.addLink(e.TaskID, LinkKind(kind), dst)
	return nil
}

func applyLinkRemoved(s *State, e EventRecord) error {
	kind, _ := payloadString(e.Payload, "kind")
	dst, _ := payloadString(e.Payload, "dst")
	if kind == "" || dst == "" {
		return fmt.Errorf("link.removed missing kind or dst")
	}
	s.removeLink(e.TaskID, LinkKind(kind), dst)
	return nil
}

func applyLabelAdded(s *State, e EventRecord) error {
	t, err := mustTask(s, e.TaskID)
	if err != nil {
		return err
	}
	label, _ := payloadString(e.Payload, "label")
	label = normalizeLabel(label)
	if label == "" {
		return fmt.Errorf("label.added missing label")
	}
	for _, l := range t.Labels {
		if l == label {
			return nil
		}
	}
	t.Labels = append(t.Labels, label)
	s.Tasks[e.TaskID] = t
	return nil
}

func applyLabelRemoved(s *State, e EventRecord) error {
	t, err := mustTask(s, e.TaskID)
	if err != nil {
		return err
	}
	label, _ := payloadString(e.Payload, "label")
	label = normalizeLabel(label)
	out := t.Labels[:0:0]
	for _, l := range t.Labels {
		if l != label {
			out = append(out, l)
		}
	}
	t.Labels = out
	s.Tasks[e.TaskID] = t
	return nil
}

func applySpecAttached(s *State, e EventRecord) error {
	t, err := mustTask(s, e.TaskID)
	if err != nil {
		return err
	}
	path, _ := payloadString(e.Payload, "spec_path")
	fingerprint, _ := payloadString(e.Payload, "spec_fingerprint")
	if path == "" || fingerprint == "" {
		return fmt.Errorf("spec.attached missing spec_path or spec_fingerprint")
	}
	t.SpecPath = path
	t.SpecFingerprint = fingerprint
	ts := e.TS
	t.SpecAttachedAt = &ts
	t.SpecAttachedBy = e.Actor
	t.UpdatedAt = e.TS
	s.Tasks[e.TaskID] = t
	return nil
}

func applyRepairApplied(s *State, e EventRecord) error {
	removedDeps, _ := e.Payload["removed_deps"].([]any)
	for _, item := range removedDeps {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		child, _ := m["child"].(string)
		blocker, _ := m["blocker"].(string)
		dt, _ := m["dep_type"].(string)
		s.removeDep(child, blocker, DepType(dt))
	}
	removedLinks, _ := e.Payload["removed_links"].([]any)
	for _, item := range removedLinks {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		src, _ := m["src"].(string)
		kind, _ := m["kind"].(string)
		dst, _ := m["dst"].(string)
		s.removeLink(src, LinkKind(kind), dst)
	}
	return nil
}

func mustTask(s *State, id string) (Task, error) {
	t, ok := s.Tasks[id]
	if !ok {
		return Task{}, fmt.Errorf("task %s does not exist", id)
	}
	return t, nil
}

func mustString(p map[string]any, key string) string {
	s, _ := payloadString(p, key)
	return s
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
