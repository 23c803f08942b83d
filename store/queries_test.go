package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-quicktest/qt"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/BumpyClock/tasque/store/tsqerr"
)

func validSpecContent() []byte {
	return []byte(strings.Join([]string{
		"# Overview",
		"some overview text",
		"## Constraints / Non-goals",
		"none",
		"## Interfaces (CLI/API)",
		"none",
		"## Data model / schema changes",
		"none",
		"## Acceptance criteria",
		"none",
		"## Test plan",
		"none",
		"",
	}, "\n"))
}

func TestSpecAttachAndCheckRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	clock := testClock()

	created, err := Create(repo, "alice", clock, CreateInput{Title: "task"})
	qt.Assert(t, qt.IsNil(err))
	id := created.Task.ID

	attached, err := SpecAttach(repo, "alice", clock, SpecAttachInput{ID: id, Content: validSpecContent(), ExactID: true})
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.HasLen(attached.Missing, 0))
	qt.Assert(t, qt.Equals(attached.Task.SpecFingerprint, attached.Fingerprint))

	check, err := SpecCheck(repo, id, true)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.IsTrue(check.OK))
	qt.Assert(t, qt.IsTrue(check.FingerprintOK))
	qt.Assert(t, qt.HasLen(check.MissingSections, 0))
}

func TestSpecAttachReportsMissingSections(t *testing.T) {
	repo := newTestRepo(t)
	clock := testClock()

	created, err := Create(repo, "alice", clock, CreateInput{Title: "task"})
	qt.Assert(t, qt.IsNil(err))

	attached, err := SpecAttach(repo, "alice", clock, SpecAttachInput{
		ID: created.Task.ID, Content: []byte("# Overview\njust this\n"), ExactID: true,
	})
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.IsTrue(len(attached.Missing) > 0))

	check, err := SpecCheck(repo, created.Task.ID, true)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.IsFalse(check.OK))
	qt.Assert(t, qt.IsTrue(check.FingerprintOK))
	qt.Assert(t, qt.IsTrue(len(check.MissingSections) > 0))
}

func TestOrphansDetectsDanglingDepsAndLinks(t *testing.T) {
	repo := newTestRepo(t)
	clock := testClock()

	a, err := Create(repo, "alice", clock, CreateInput{Title: "a"})
	qt.Assert(t, qt.IsNil(err))
	b, err := Create(repo, "alice", clock, CreateInput{Title: "b"})
	qt.Assert(t, qt.IsNil(err))

	_, err = DepAdd(repo, "alice", clock, DepAddInput{ChildID: b.Task.ID, Blocker: a.Task.ID, ExactID: true})
	qt.Assert(t, qt.IsNil(err))
	_, err = LinkAdd(repo, "alice", clock, LinkAddInput{SrcID: a.Task.ID, Kind: LinkRelatesTo, DstID: b.Task.ID, ExactID: true})
	qt.Assert(t, qt.IsNil(err))

	orphans, err := Orphans(repo)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.HasLen(orphans.Deps, 0))
	qt.Assert(t, qt.HasLen(orphans.Links, 0))

	doctor, err := Doctor(repo)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.HasLen(doctor.Issues, 0))
	qt.Assert(t, qt.Equals(doctor.TaskCount, 2))
}

func TestHistoryTruncation(t *testing.T) {
	repo := newTestRepo(t)
	clock := testClock()

	created, err := Create(repo, "alice", clock, CreateInput{Title: "task"})
	qt.Assert(t, qt.IsNil(err))
	id := created.Task.ID

	for i := 0; i < 5; i++ {
		_, err := NoteAdd(repo, "alice", clock, NoteAddInput{ID: id, Text: "note", ExactID: true})
		qt.Assert(t, qt.IsNil(err))
	}

	full, err := History(repo, HistoryOptions{TaskID: id, ExactID: true, Limit: 100})
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.IsFalse(full.Truncated))
	qt.Assert(t, qt.Equals(len(full.Events), 6)) // task.created + 5 note.added

	capped, err := History(repo, HistoryOptions{TaskID: id, ExactID: true, Limit: 2})
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.IsTrue(capped.Truncated))
	qt.Assert(t, qt.HasLen(capped.Events, 2))
}

func TestListTreeExcludesClosedUnlessFull(t *testing.T) {
	repo := newTestRepo(t)
	clock := testClock()

	root, err := Create(repo, "alice", clock, CreateInput{Title: "root"})
	qt.Assert(t, qt.IsNil(err))
	child, err := Create(repo, "alice", clock, CreateInput{Title: "child", ParentID: root.Task.ID})
	qt.Assert(t, qt.IsNil(err))

	_, err = Close(repo, "alice", clock, CloseInput{IDs: []string{child.Task.ID}, ExactID: true})
	qt.Assert(t, qt.IsNil(err))

	trimmed, err := ListTree(repo, ListTreeOptions{})
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.IsFalse(treeContains(trimmed, child.Task.ID)))

	full, err := ListTree(repo, ListTreeOptions{Full: true})
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.IsTrue(treeContains(full, child.Task.ID)))
}

func TestListFilterByIDsAndStatus(t *testing.T) {
	repo := newTestRepo(t)
	clock := testClock()

	a, err := Create(repo, "alice", clock, CreateInput{Title: "a"})
	qt.Assert(t, qt.IsNil(err))
	b, err := Create(repo, "alice", clock, CreateInput{Title: "b"})
	qt.Assert(t, qt.IsNil(err))
	_, err = Create(repo, "alice", clock, CreateInput{Title: "c"})
	qt.Assert(t, qt.IsNil(err))

	got, err := List(repo, ListFilter{IDs: []string{a.Task.ID, b.Task.ID}})
	qt.Assert(t, qt.IsNil(err))
	var gotIDs []string
	for _, t := range got {
		gotIDs = append(gotIDs, t.ID)
	}
	qt.Assert(t, qt.CmpEquals(gotIDs, []string{a.Task.ID, b.Task.ID}, cmpopts.EquateEmpty()))

	_, err = Close(repo, "alice", clock, CloseInput{IDs: []string{b.Task.ID}, ExactID: true})
	qt.Assert(t, qt.IsNil(err))
	got, err = List(repo, ListFilter{IDs: []string{a.Task.ID, b.Task.ID}, Status: StatusOpen})
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.HasLen(got, 1))
	qt.Assert(t, qt.Equals(got[0].ID, a.Task.ID))
}

func treeContains(nodes []*TreeNode, id string) bool {
	for _, n := range nodes {
		if n.Task.ID == id || treeContains(n.Children, id) {
			return true
		}
	}
	return false
}

func TestRepairScanAndApplyRemovesOrphansAndStaleTemp(t *testing.T) {
	repo := newTestRepo(t)
	clock := testClock()

	a, err := Create(repo, "alice", clock, CreateInput{Title: "a"})
	qt.Assert(t, qt.IsNil(err))
	b, err := Create(repo, "alice", clock, CreateInput{Title: "b"})
	qt.Assert(t, qt.IsNil(err))
	_, err = DepAdd(repo, "alice", clock, DepAddInput{ChildID: b.Task.ID, Blocker: a.Task.ID, ExactID: true})
	qt.Assert(t, qt.IsNil(err))

	// Deleting the blocker task directly from storage (outside the command
	// layer) simulates the orphan-producing scenario repair targets: no
	// command currently deletes a Task outright, so this is the only way to
	// exercise the dangling-edge path.
	storeRoot := StoreRoot(repo)
	proj, err := loadProjectedState(storeRoot)
	qt.Assert(t, qt.IsNil(err))
	delete(proj.State.Tasks, a.Task.ID)
	idx := -1
	for i, id := range proj.State.CreatedOrder {
		if id == a.Task.ID {
			idx = i
		}
	}
	qt.Assert(t, qt.IsTrue(idx >= 0))
	proj.State.CreatedOrder = append(proj.State.CreatedOrder[:idx], proj.State.CreatedOrder[idx+1:]...)
	qt.Assert(t, qt.IsNil(writeSnapshot(storeRoot, Snapshot{
		TakenAt:    time.Now(),
		EventCount: int64(len(proj.AllEvents)),
		State:      proj.State,
	})))

	// A leftover atomicfile temp file in the store root is the stale-temp
	// case repair also cleans up.
	staleTmp := filepath.Join(storeRoot, "events.jsonl.tmp-stale")
	qt.Assert(t, qt.IsNil(os.WriteFile(staleTmp, []byte("x"), 0o644)))

	plan, err := RepairScan(repo, RepairScanInput{})
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.HasLen(plan.OrphanDeps, 1))
	qt.Assert(t, qt.DeepEquals(plan.StaleTempFiles, []string{"events.jsonl.tmp-stale"}))

	applied, err := RepairApply(repo, "alice", clock, RepairApplyInput{})
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.HasLen(applied.Plan.OrphanDeps, 1))
	_, err = os.Stat(staleTmp)
	qt.Assert(t, qt.IsTrue(os.IsNotExist(err)))

	after, err := RepairScan(repo, RepairScanInput{})
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.IsTrue(after.Empty()))
}

func TestRepairApplyForceUnlockWithoutStaleLockRejected(t *testing.T) {
	repo := newTestRepo(t)
	clock := testClock()

	_, err := RepairApply(repo, "alice", clock, RepairApplyInput{ForceUnlock: true})
	qt.Assert(t, qt.IsNotNil(err))
}

func TestRepairScanForceUnlockWithoutFixRejected(t *testing.T) {
	repo := newTestRepo(t)

	_, err := RepairScan(repo, RepairScanInput{ForceUnlock: true})
	qt.Assert(t, qt.Equals(tsqerr.CodeOf(err), tsqerr.ValidationError))
}
