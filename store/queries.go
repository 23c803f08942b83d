package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/BumpyClock/tasque/store/internal/atomicfile"
	"github.com/BumpyClock/tasque/store/tsqerr"
)

// ShowResult is Show's response payload (spec.md §4.5 "show": "Task,
// blockers, dependents, relation links, history, ready").
type ShowResult struct {
	Task       Task              `json:"task"`
	Blockers   []DependencyEdge  `json:"blockers"`
	Dependents []DependentEntry  `json:"dependents"`
	Links      map[LinkKind][]string `json:"links,omitempty"`
	History    []EventRecord     `json:"history"`
	Ready      bool              `json:"ready"`
}

// Show resolves id and returns its full local context.
func Show(repoRoot, id string, exact bool) (ShowResult, error) {
	proj, err := query(repoRoot)
	if err != nil {
		return ShowResult{}, err
	}
	s := proj.State
	resolved, err := ResolveID(s, id, exact)
	if err != nil {
		return ShowResult{}, err
	}
	t := s.Tasks[resolved]

	var blockers []DependencyEdge
	for _, edge := range s.Deps[resolved] {
		blockers = append(blockers, edge)
	}
	sort.Slice(blockers, func(i, j int) bool { return blockers[i].Blocker < blockers[j].Blocker })

	deps := Dependents(s)[resolved]

	var links map[LinkKind][]string
	if byKind, ok := s.Links[resolved]; ok {
		links = make(map[LinkKind][]string, len(byKind))
		for kind, set := range byKind {
			var dsts []string
			for dst := range set {
				dsts = append(dsts, dst)
			}
			sort.Strings(dsts)
			links[kind] = dsts
		}
	}

	var history []EventRecord
	for _, e := range proj.AllEvents {
		if e.References(resolved) {
			history = append(history, e)
		}
	}

	return ShowResult{
		Task:       t,
		Blockers:   blockers,
		Dependents: deps,
		Links:      links,
		History:    history,
		Ready:      IsReady(s, resolved),
	}, nil
}

// ListFilter is List's filter set (spec.md §4.5 "list").
type ListFilter struct {
	Status         Status
	Statuses       []Status
	Assignee       string
	Unassigned     bool
	ExternalRef    string
	DiscoveredFrom string
	Kind           Kind
	Label          string
	LabelAny       []string
	CreatedAfter   *time.Time
	UpdatedAfter   *time.Time
	ClosedAfter    *time.Time
	IDs            []string
	PlanningState  PlanningState
	DepType        DepType
	Direction      string // "in" (task is blocked by something) or "out" (task blocks something)
}

// List returns every task matching filter, ordered by created_order.
func List(repoRoot string, filter ListFilter) ([]Task, error) {
	proj, err := query(repoRoot)
	if err != nil {
		return nil, err
	}
	s := proj.State

	var idSet map[string]bool
	if len(filter.IDs) > 0 {
		idSet = make(map[string]bool, len(filter.IDs))
		for _, id := range filter.IDs {
			idSet[id] = true
		}
	}
	var labelAnySet map[string]bool
	if len(filter.LabelAny) > 0 {
		labelAnySet = make(map[string]bool, len(filter.LabelAny))
		for _, l := range normalizeLabels(filter.LabelAny) {
			labelAnySet[l] = true
		}
	}

	var out []Task
	for _, id := range s.CreatedOrder {
		t := s.Tasks[id]
		if idSet != nil && !idSet[id] {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, t.Status) {
			continue
		}
		if filter.Unassigned {
			if t.Assignee != "" {
				continue
			}
		} else if filter.Assignee != "" && t.Assignee != filter.Assignee {
			continue
		}
		if filter.ExternalRef != "" && t.ExternalRef != filter.ExternalRef {
			continue
		}
		if filter.DiscoveredFrom != "" && t.DiscoveredFrom != filter.DiscoveredFrom {
			continue
		}
		if filter.Kind != "" && t.Kind != filter.Kind {
			continue
		}
		if filter.Label != "" && !hasLabel(t, normalizeLabel(filter.Label)) {
			continue
		}
		if labelAnySet != nil && !hasAnyLabel(t, labelAnySet) {
			continue
		}
		if filter.CreatedAfter != nil && !t.CreatedAt.After(*filter.CreatedAfter) {
			continue
		}
		if filter.UpdatedAfter != nil && !t.UpdatedAt.After(*filter.UpdatedAfter) {
			continue
		}
		if filter.ClosedAfter != nil && (t.ClosedAt == nil || !t.ClosedAt.After(*filter.ClosedAfter)) {
			continue
		}
		if filter.PlanningState != "" && t.PlanningState != filter.PlanningState {
			continue
		}
		if filter.DepType != "" && !matchesDepTypeFilter(s, id, filter.DepType, filter.Direction) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func containsStatus(list []Status, st Status) bool {
	for _, s := range list {
		if s == st {
			return true
		}
	}
	return false
}

func hasLabel(t Task, label string) bool {
	for _, l := range t.Labels {
		if l == label {
			return true
		}
	}
	return false
}

func hasAnyLabel(t Task, set map[string]bool) bool {
	for _, l := range t.Labels {
		if set[l] {
			return true
		}
	}
	return false
}

func matchesDepTypeFilter(s *State, id string, dt DepType, direction string) bool {
	if direction == "out" {
		for _, edges := range s.Deps {
			for _, edge := range edges {
				if edge.Blocker == id && edge.DepType == dt {
					return true
				}
			}
		}
		return false
	}
	for _, edge := range s.Deps[id] {
		if edge.DepType == dt {
			return true
		}
	}
	return false
}

// ListTreeOptions controls ListTree (spec.md §4.5 "list tree").
type ListTreeOptions struct {
	Full   bool
	Filter ListFilter
}

// ListTree returns the parent/child forest over the filtered task set.
// Closed and canceled tasks are excluded unless Full is set, matching
// "default excludes closed/canceled unless --full" (spec.md §4.5).
func ListTree(repoRoot string, opts ListTreeOptions) ([]*TreeNode, error) {
	proj, err := query(repoRoot)
	if err != nil {
		return nil, err
	}
	tasks, err := List(repoRoot, opts.Filter)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, t := range tasks {
		if !opts.Full && (t.Status == StatusClosed || t.Status == StatusCanceled) {
			continue
		}
		ids = append(ids, t.ID)
	}
	return BuildTree(proj.State, ids), nil
}

// ReadyOptions controls Ready (spec.md §4.5 "ready": "Lane filter
// {planning: needs_planning, coding: planned}").
type ReadyOptions struct {
	Lane string // "" (any), "planning", or "coding"
}

// Ready returns every ready task, optionally restricted to a planning lane.
func Ready(repoRoot string, opts ReadyOptions) ([]Task, error) {
	proj, err := query(repoRoot)
	if err != nil {
		return nil, err
	}
	s := proj.State
	var want PlanningState
	switch opts.Lane {
	case "planning":
		want = NeedsPlanning
	case "coding":
		want = Planned
	case "":
	default:
		return nil, tsqerr.New(tsqerr.ValidationError, "unknown lane %q", opts.Lane)
	}
	var out []Task
	for _, id := range ListReady(s) {
		t := s.Tasks[id]
		if want != "" && t.PlanningState != want {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// StaleOptions controls Stale (spec.md §4.5 "stale": "tasks not updated
// within N days, scoped to statuses").
type StaleOptions struct {
	Days     int
	Statuses []Status
	Now      time.Time
}

// Stale returns every task whose updated_at is older than Days days,
// restricted to Statuses if given (defaulting to open and in_progress,
// since closed/canceled tasks being "stale" carries no actionable meaning).
func Stale(repoRoot string, opts StaleOptions) ([]Task, error) {
	proj, err := query(repoRoot)
	if err != nil {
		return nil, err
	}
	statuses := opts.Statuses
	if len(statuses) == 0 {
		statuses = []Status{StatusOpen, StatusInProgress}
	}
	cutoff := opts.Now.AddDate(0, 0, -opts.Days)
	var out []Task
	for _, id := range proj.State.CreatedOrder {
		t := proj.State.Tasks[id]
		if !containsStatus(statuses, t.Status) {
			continue
		}
		if t.UpdatedAt.After(cutoff) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// HistoryOptions controls History (spec.md §4.5 "history").
type HistoryOptions struct {
	TaskID  string
	ExactID bool
	Type    EventType
	Actor   string
	Since   *time.Time
	Limit   int
}

// HistoryResult is History's response payload, reporting whether the result
// was capped by Limit (spec.md §4.5: "reports truncated").
type HistoryResult struct {
	Events    []EventRecord `json:"events"`
	Truncated bool          `json:"truncated"`
}

// History returns events touching TaskID (by task_id or by any payload
// field equal to it), filtered and capped at Limit (default 50, newest
// last to match the log's natural order).
func History(repoRoot string, opts HistoryOptions) (HistoryResult, error) {
	proj, err := query(repoRoot)
	if err != nil {
		return HistoryResult{}, err
	}
	var taskID string
	if opts.TaskID != "" {
		taskID, err = ResolveID(proj.State, opts.TaskID, opts.ExactID)
		if err != nil {
			return HistoryResult{}, err
		}
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	var matched []EventRecord
	for _, e := range proj.AllEvents {
		if taskID != "" && !e.References(taskID) {
			continue
		}
		if opts.Type != "" && e.Type != opts.Type {
			continue
		}
		if opts.Actor != "" && e.Actor != opts.Actor {
			continue
		}
		if opts.Since != nil && !e.TS.After(*opts.Since) {
			continue
		}
		matched = append(matched, e)
	}

	truncated := false
	if len(matched) > limit {
		matched = matched[len(matched)-limit:]
		truncated = true
	}
	return HistoryResult{Events: matched, Truncated: truncated}, nil
}

// SearchResult is Search's response payload.
type SearchResult struct {
	Tasks []Task `json:"tasks"`
}

// SearchQuery parses and runs query against repoRoot's current projection.
func SearchQuery(repoRoot, queryStr string) (SearchResult, error) {
	proj, err := query(repoRoot)
	if err != nil {
		return SearchResult{}, err
	}
	ids, err := Search(proj.State, queryStr)
	if err != nil {
		return SearchResult{}, err
	}
	var out SearchResult
	for _, id := range ids {
		out.Tasks = append(out.Tasks, proj.State.Tasks[id])
	}
	return out, nil
}

// SpecCheckResult is SpecCheck's response payload (spec.md §4.5 "spec
// check").
type SpecCheckResult struct {
	OK              bool     `json:"ok"`
	FingerprintOK   bool     `json:"fingerprint_ok"`
	MissingSections []string `json:"missing_sections,omitempty"`
}

// SpecCheck re-reads the task's attached spec file, verifies its SHA-256
// against the recorded fingerprint, and checks for the required section
// headings (spec.md §7 invariant 7, §9 clarification 3).
func SpecCheck(repoRoot, id string, exact bool) (SpecCheckResult, error) {
	proj, err := query(repoRoot)
	if err != nil {
		return SpecCheckResult{}, err
	}
	resolved, err := ResolveID(proj.State, id, exact)
	if err != nil {
		return SpecCheckResult{}, err
	}
	t := proj.State.Tasks[resolved]
	if t.SpecPath == "" {
		return SpecCheckResult{}, tsqerr.New(tsqerr.SpecValidationFailed, "task %s has no attached spec", resolved)
	}

	storeRoot := StoreRoot(repoRoot)
	absPath := filepath.Join(storeRoot, filepath.FromSlash(t.SpecPath))
	unlock, err := specMutex(absPath).Lock()
	if err != nil {
		return SpecCheckResult{}, tsqerr.Wrap(tsqerr.IOError, err, "lock spec file")
	}
	defer unlock()
	content, err := os.ReadFile(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return SpecCheckResult{}, tsqerr.New(tsqerr.SpecValidationFailed, "spec file %s is missing", t.SpecPath)
		}
		return SpecCheckResult{}, tsqerr.Wrap(tsqerr.IOError, err, "read spec file")
	}

	sum := sha256.Sum256(content)
	fingerprint := hex.EncodeToString(sum[:])
	fingerprintOK := fingerprint == t.SpecFingerprint
	missing := missingSpecSections(content)

	return SpecCheckResult{
		OK:              fingerprintOK && len(missing) == 0,
		FingerprintOK:   fingerprintOK,
		MissingSections: missing,
	}, nil
}

// OrphanDep is a dangling dependency edge, reported by Orphans.
type OrphanDep struct {
	Child   string  `json:"child"`
	Blocker string  `json:"blocker"`
	DepType DepType `json:"dep_type"`
}

// OrphanLink is a dangling relation link, reported by Orphans.
type OrphanLink struct {
	Src  string   `json:"src"`
	Kind LinkKind `json:"kind"`
	Dst  string   `json:"dst"`
}

// OrphansResult is Orphans's response payload (spec.md §4.5 "orphans":
// "Lists dangling deps and links (read-only)").
type OrphansResult struct {
	Deps  []OrphanDep  `json:"deps"`
	Links []OrphanLink `json:"links"`
}

// Orphans scans the projected state for edges and links whose endpoints no
// longer exist in Tasks.
func Orphans(repoRoot string) (OrphansResult, error) {
	proj, err := query(repoRoot)
	if err != nil {
		return OrphansResult{}, err
	}
	return findOrphans(proj.State), nil
}

func findOrphans(s *State) OrphansResult {
	var out OrphansResult
	for child, edges := range s.Deps {
		_, childOK := s.Tasks[child]
		for _, edge := range edges {
			_, blockerOK := s.Tasks[edge.Blocker]
			if !childOK || !blockerOK {
				out.Deps = append(out.Deps, OrphanDep{Child: child, Blocker: edge.Blocker, DepType: edge.DepType})
			}
		}
	}
	for src, byKind := range s.Links {
		_, srcOK := s.Tasks[src]
		for kind, set := range byKind {
			for dst := range set {
				_, dstOK := s.Tasks[dst]
				if !srcOK || !dstOK {
					out.Links = append(out.Links, OrphanLink{Src: src, Kind: kind, Dst: dst})
				}
			}
		}
	}
	sort.Slice(out.Deps, func(i, j int) bool {
		if out.Deps[i].Child != out.Deps[j].Child {
			return out.Deps[i].Child < out.Deps[j].Child
		}
		return out.Deps[i].Blocker < out.Deps[j].Blocker
	})
	sort.Slice(out.Links, func(i, j int) bool {
		if out.Links[i].Src != out.Links[j].Src {
			return out.Links[i].Src < out.Links[j].Src
		}
		return out.Links[i].Dst < out.Links[j].Dst
	})
	return out
}

// DoctorResult is Doctor's response payload (spec.md §4.5 "doctor": "Tasks
// count, events count, snapshot loaded, warning, issues").
type DoctorResult struct {
	TaskCount      int      `json:"task_count"`
	EventCount     int      `json:"event_count"`
	SnapshotLoaded bool     `json:"snapshot_loaded"`
	Warning        string   `json:"warning,omitempty"`
	Issues         []string `json:"issues,omitempty"`
}

// Doctor reports the store's overall health without modifying anything.
func Doctor(repoRoot string) (DoctorResult, error) {
	proj, err := query(repoRoot)
	if err != nil {
		return DoctorResult{}, err
	}
	orphans := findOrphans(proj.State)

	var issues []string
	if len(orphans.Deps) > 0 {
		issues = append(issues, "orphan dependency edges present")
	}
	if len(orphans.Links) > 0 {
		issues = append(issues, "orphan relation links present")
	}
	storeRoot := StoreRoot(repoRoot)
	if stale, info, err := lockIsStale(storeRoot); err == nil && stale {
		issues = append(issues, "stale lock held by pid "+strconv.Itoa(info.PID))
	}
	if names, err := listSnapshotFiles(storeRoot); err == nil && len(names) > defaultSnapshotKeep {
		issues = append(issues, fmt.Sprintf("more than %d snapshots retained", defaultSnapshotKeep))
	}
	if tmps, err := staleTempFiles(storeRoot); err == nil && len(tmps) > 0 {
		issues = append(issues, "stale temp files present")
	}

	return DoctorResult{
		TaskCount:      len(proj.State.Tasks),
		EventCount:     len(proj.AllEvents),
		SnapshotLoaded: proj.Snapshot != nil,
		Warning:        proj.Warning,
		Issues:         issues,
	}, nil
}

// staleTempFiles lists files directly under storeRoot matching the
// atomicfile temp-name pattern "*.tmp-*" (spec.md §4.7).
func staleTempFiles(storeRoot string) ([]string, error) {
	entries, err := os.ReadDir(storeRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if atomicfile.IsTempName(e.Name()) {
			out = append(out, e.Name())
		}
	}
	return out, nil
}
