package store

import (
	"testing"
	"time"

	"github.com/go-quicktest/qt"

	"github.com/BumpyClock/tasque/store/tsqerr"
)

// testClock returns a Clock that advances by one second on every call,
// starting at a fixed instant, so assertions on ordering and CreatedAt never
// depend on wall-clock time.
func testClock() Clock {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	n := 0
	return func() time.Time {
		ts := t0.Add(time.Duration(n) * time.Second)
		n++
		return ts
	}
}

func newTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	qt.Assert(t, qt.IsNil(Init(dir)))
	return dir
}

func TestCreateAndShow(t *testing.T) {
	repo := newTestRepo(t)
	clock := testClock()

	created, err := Create(repo, "alice", clock, CreateInput{Title: "write tests"})
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(created.Task.Title, "write tests"))
	qt.Assert(t, qt.Equals(created.Task.Status, StatusOpen))
	qt.Assert(t, qt.IsTrue(IsValidTaskID(created.Task.ID)))

	shown, err := Show(repo, created.Task.ID, true)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(shown.Task.ID, created.Task.ID))
	qt.Assert(t, qt.IsTrue(shown.Ready))
}

func TestDependencyCycleRejected(t *testing.T) {
	repo := newTestRepo(t)
	clock := testClock()

	a, err := Create(repo, "alice", clock, CreateInput{Title: "a"})
	qt.Assert(t, qt.IsNil(err))
	b, err := Create(repo, "alice", clock, CreateInput{Title: "b"})
	qt.Assert(t, qt.IsNil(err))

	_, err = DepAdd(repo, "alice", clock, DepAddInput{ChildID: b.Task.ID, Blocker: a.Task.ID, DepType: DepBlocks, ExactID: true})
	qt.Assert(t, qt.IsNil(err))

	_, err = DepAdd(repo, "alice", clock, DepAddInput{ChildID: a.Task.ID, Blocker: b.Task.ID, DepType: DepBlocks, ExactID: true})
	qt.Assert(t, qt.IsNotNil(err))
	qt.Assert(t, qt.Equals(tsqerr.CodeOf(err), tsqerr.DependencyCycle))
}

func TestStartsAfterDoesNotBlockReadiness(t *testing.T) {
	repo := newTestRepo(t)
	clock := testClock()

	a, err := Create(repo, "alice", clock, CreateInput{Title: "a"})
	qt.Assert(t, qt.IsNil(err))
	b, err := Create(repo, "alice", clock, CreateInput{Title: "b"})
	qt.Assert(t, qt.IsNil(err))

	_, err = DepAdd(repo, "alice", clock, DepAddInput{ChildID: b.Task.ID, Blocker: a.Task.ID, DepType: DepStartsAfter, ExactID: true})
	qt.Assert(t, qt.IsNil(err))

	ready, err := Ready(repo, ReadyOptions{})
	qt.Assert(t, qt.IsNil(err))
	var found bool
	for _, task := range ready {
		if task.ID == b.Task.ID {
			found = true
		}
	}
	qt.Assert(t, qt.IsTrue(found))
}

func TestClaimTransitionsAndConflict(t *testing.T) {
	repo := newTestRepo(t)
	clock := testClock()

	created, err := Create(repo, "alice", clock, CreateInput{Title: "task"})
	qt.Assert(t, qt.IsNil(err))
	id := created.Task.ID

	claimed, err := Update(repo, "alice", clock, UpdateInput{ID: id, ExactID: true, Claim: true, Assignee: "alice"})
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(claimed.Task.Status, StatusInProgress))
	qt.Assert(t, qt.Equals(claimed.Task.Assignee, "alice"))

	// Re-claiming by the same assignee is idempotent, not a conflict.
	_, err = Update(repo, "alice", clock, UpdateInput{ID: id, ExactID: true, Claim: true, Assignee: "alice"})
	qt.Assert(t, qt.IsNil(err))

	_, err = Update(repo, "bob", clock, UpdateInput{ID: id, ExactID: true, Claim: true, Assignee: "bob"})
	qt.Assert(t, qt.IsNotNil(err))
	qt.Assert(t, qt.Equals(tsqerr.CodeOf(err), tsqerr.ClaimConflict))
}

func TestCloseAndReopenRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	clock := testClock()

	created, err := Create(repo, "alice", clock, CreateInput{Title: "task"})
	qt.Assert(t, qt.IsNil(err))
	id := created.Task.ID

	_, err = Close(repo, "alice", clock, CloseInput{IDs: []string{id}, ExactID: true})
	qt.Assert(t, qt.IsNil(err))

	shown, err := Show(repo, id, true)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(shown.Task.Status, StatusClosed))
	qt.Assert(t, qt.IsNotNil(shown.Task.ClosedAt))

	_, err = Reopen(repo, "alice", clock, ReopenInput{IDs: []string{id}, ExactID: true})
	qt.Assert(t, qt.IsNil(err))

	shown, err = Show(repo, id, true)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(shown.Task.Status, StatusOpen))
	qt.Assert(t, qt.IsNil(shown.Task.ClosedAt))
}

func TestReopenRejectsNonClosed(t *testing.T) {
	repo := newTestRepo(t)
	clock := testClock()

	created, err := Create(repo, "alice", clock, CreateInput{Title: "task"})
	qt.Assert(t, qt.IsNil(err))

	_, err = Reopen(repo, "alice", clock, ReopenInput{IDs: []string{created.Task.ID}, ExactID: true})
	qt.Assert(t, qt.IsNotNil(err))
	qt.Assert(t, qt.Equals(tsqerr.CodeOf(err), tsqerr.ValidationError))
}

func TestSnapshotReplayEquivalence(t *testing.T) {
	repo := newTestRepo(t)
	clock := testClock()

	var lastID string
	for i := 0; i < 7; i++ {
		created, err := Create(repo, "alice", clock, CreateInput{Title: "task"})
		qt.Assert(t, qt.IsNil(err))
		lastID = created.Task.ID
	}

	// Force a snapshot boundary well within range by lowering snapshot_every.
	storeRoot := StoreRoot(repo)
	cfg, err := loadConfig(storeRoot)
	qt.Assert(t, qt.IsNil(err))
	cfg.SnapshotEvery = 4
	qt.Assert(t, qt.IsNil(writeConfig(storeRoot, cfg)))

	// The note is the 8th event, a multiple of 4.
	_, err = NoteAdd(repo, "alice", clock, NoteAddInput{ID: lastID, Text: "triggers a snapshot", ExactID: true})
	qt.Assert(t, qt.IsNil(err))

	projFromSnapshot, err := loadProjectedState(storeRoot)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.IsNotNil(projFromSnapshot.Snapshot))

	fullReplay := replay(NewState(), projFromSnapshot.AllEvents)

	qt.Assert(t, qt.Equals(len(projFromSnapshot.State.Tasks), len(fullReplay.State.Tasks)))
	qt.Assert(t, qt.Equals(projFromSnapshot.State.Tasks[lastID].Title, fullReplay.State.Tasks[lastID].Title))
}

// TestConcurrentClaimExclusivity checks that exactly one of two simultaneous
// claims on the same task wins; the loser may see either CLAIM_CONFLICT (its
// claim was appended after the other's) or LOCK_HELD (it lost the race for
// the advisory lock itself), since the lock manager fails fast rather than
// blocking (spec.md §4.4).
func TestConcurrentClaimExclusivity(t *testing.T) {
	repo := newTestRepo(t)
	clock := testClock()

	created, err := Create(repo, "alice", clock, CreateInput{Title: "task"})
	qt.Assert(t, qt.IsNil(err))
	id := created.Task.ID

	results := make(chan error, 2)
	claim := func(actor string) {
		_, err := Update(repo, actor, SystemClock(), UpdateInput{ID: id, ExactID: true, Claim: true, Assignee: actor})
		results <- err
	}
	go claim("alice")
	go claim("bob")

	var errs []error
	errs = append(errs, <-results, <-results)

	successes := 0
	for _, e := range errs {
		if e == nil {
			successes++
		}
	}
	qt.Assert(t, qt.Equals(successes, 1))
}
