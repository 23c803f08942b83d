package store

import (
	"testing"

	"github.com/go-quicktest/qt"
)

func TestNewRootIDShape(t *testing.T) {
	id, err := NewRootID()
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.IsTrue(IsValidTaskID(id)))
	qt.Assert(t, qt.IsTrue(len(id) > len("tsq-")))
}

func TestChildIDDeterministic(t *testing.T) {
	parent := "tsq-ABCDEFGH"
	qt.Assert(t, qt.Equals(ChildID(parent, 0), "tsq-ABCDEFGH.0"))
	qt.Assert(t, qt.Equals(ChildID(parent, 1), "tsq-ABCDEFGH.1"))
	qt.Assert(t, qt.Equals(ChildID(ChildID(parent, 0), 0), "tsq-ABCDEFGH.0.0"))
}

func TestIsValidTaskID(t *testing.T) {
	qt.Assert(t, qt.IsTrue(IsValidTaskID("tsq-ABCDEFGH")))
	qt.Assert(t, qt.IsTrue(IsValidTaskID("tsq-ABCDEFGH.0")))
	qt.Assert(t, qt.IsTrue(IsValidTaskID("tsq-ABCDEFGH.0.3")))
	qt.Assert(t, qt.IsFalse(IsValidTaskID("")))
	qt.Assert(t, qt.IsFalse(IsValidTaskID("not-a-task-id")))
	qt.Assert(t, qt.IsFalse(IsValidTaskID("tsq-")))
}

func TestEventIDAllocatorMonotonic(t *testing.T) {
	alloc := newEventIDAllocator(5)
	a := alloc.Allocate()
	b := alloc.Allocate()
	qt.Assert(t, qt.Equals(a, "6"))
	qt.Assert(t, qt.Equals(b, "7"))
}
