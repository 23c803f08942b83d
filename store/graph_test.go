package store

import (
	"testing"

	"github.com/go-quicktest/qt"
)

func newTestTask(id string, status Status) Task {
	return Task{ID: id, Title: id, Status: status, PlanningState: NeedsPlanning}
}

func TestBlocksCycleDetection(t *testing.T) {
	s := NewState()
	s.Tasks["a"] = newTestTask("a", StatusOpen)
	s.Tasks["b"] = newTestTask("b", StatusOpen)
	s.Tasks["c"] = newTestTask("c", StatusOpen)
	s.addDep("b", DependencyEdge{Blocker: "a", DepType: DepBlocks})
	s.addDep("c", DependencyEdge{Blocker: "b", DepType: DepBlocks})

	// a <- b <- c; adding a blocked-by c would cycle.
	qt.Assert(t, qt.IsTrue(blocksCycle(s, "a", "c")))
	qt.Assert(t, qt.IsFalse(blocksCycle(s, "c", "a")))
	qt.Assert(t, qt.IsTrue(blocksCycle(s, "x", "x")))
}

func TestIsReady(t *testing.T) {
	s := NewState()
	s.Tasks["a"] = newTestTask("a", StatusOpen)
	s.Tasks["b"] = newTestTask("b", StatusOpen)
	s.addDep("b", DependencyEdge{Blocker: "a", DepType: DepBlocks})

	qt.Assert(t, qt.IsTrue(IsReady(s, "a")))
	qt.Assert(t, qt.IsFalse(IsReady(s, "b")))

	closed := s.Tasks["a"]
	closed.Status = StatusClosed
	s.Tasks["a"] = closed
	qt.Assert(t, qt.IsTrue(IsReady(s, "b")))
}

func TestIsReadyIgnoresStartsAfter(t *testing.T) {
	s := NewState()
	s.Tasks["a"] = newTestTask("a", StatusOpen)
	s.Tasks["b"] = newTestTask("b", StatusOpen)
	s.addDep("b", DependencyEdge{Blocker: "a", DepType: DepStartsAfter})

	// starts_after is an ordering hint, not a hard blocker: b stays ready
	// even though a is still open.
	qt.Assert(t, qt.IsTrue(IsReady(s, "b")))
}

func TestDuplicateChainCycle(t *testing.T) {
	s := NewState()
	s.Tasks["a"] = newTestTask("a", StatusOpen)
	s.Tasks["b"] = newTestTask("b", StatusOpen)
	bTask := s.Tasks["b"]
	bTask.DuplicateOf = "a"
	s.Tasks["b"] = bTask

	qt.Assert(t, qt.IsTrue(duplicateChainCycles(s, "a", "b")))
	qt.Assert(t, qt.IsFalse(duplicateChainCycles(s, "a", "c")))
}

func TestNormalizedTitleAndDuplicateCandidates(t *testing.T) {
	qt.Assert(t, qt.Equals(normalizedTitle("  Fix The Bug!! "), "fix the bug"))

	s := NewState()
	s.Tasks["a"] = newTestTask("a", StatusOpen)
	ta := s.Tasks["a"]
	ta.Title = "Fix login bug"
	s.Tasks["a"] = ta
	s.CreatedOrder = append(s.CreatedOrder, "a")

	s.Tasks["b"] = newTestTask("b", StatusOpen)
	tb := s.Tasks["b"]
	tb.Title = "fix login bug!"
	s.Tasks["b"] = tb
	s.CreatedOrder = append(s.CreatedOrder, "b")

	groups := FindDuplicateCandidates(s, 10)
	qt.Assert(t, qt.HasLen(groups, 1))
	qt.Assert(t, qt.DeepEquals(groups[0].TaskIDs, []string{"a", "b"}))
}
