package store

import (
	"testing"

	"github.com/go-quicktest/qt"
)

func TestLabelAddRemoveIdempotent(t *testing.T) {
	repo := newTestRepo(t)
	clock := testClock()

	created, err := Create(repo, "alice", clock, CreateInput{Title: "task"})
	qt.Assert(t, qt.IsNil(err))
	id := created.Task.ID

	added, err := LabelAdd(repo, "alice", clock, LabelAddInput{ID: id, Labels: []string{"Urgent", "urgent", "backend"}, ExactID: true})
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.DeepEquals(added.Task.Labels, []string{"urgent", "backend"}))

	// Re-adding the same labels is a no-op, not a duplicate.
	again, err := LabelAdd(repo, "alice", clock, LabelAddInput{ID: id, Labels: []string{"urgent"}, ExactID: true})
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.DeepEquals(again.Task.Labels, []string{"urgent", "backend"}))

	removed, err := LabelRemove(repo, "alice", clock, LabelRemoveInput{ID: id, Labels: []string{"urgent"}, ExactID: true})
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.DeepEquals(removed.Task.Labels, []string{"backend"}))

	// Removing an absent label is a no-op, not an error.
	again2, err := LabelRemove(repo, "alice", clock, LabelRemoveInput{ID: id, Labels: []string{"urgent"}, ExactID: true})
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.DeepEquals(again2.Task.Labels, []string{"backend"}))
}

func TestLabelAddRejectsInvalidShape(t *testing.T) {
	repo := newTestRepo(t)
	clock := testClock()

	created, err := Create(repo, "alice", clock, CreateInput{Title: "task"})
	qt.Assert(t, qt.IsNil(err))

	_, err = LabelAdd(repo, "alice", clock, LabelAddInput{ID: created.Task.ID, Labels: []string{"!!not-valid"}, ExactID: true})
	qt.Assert(t, qt.IsNotNil(err))
}

func TestDepAddRemoveIdempotentAndSelfEdgeRejected(t *testing.T) {
	repo := newTestRepo(t)
	clock := testClock()

	a, err := Create(repo, "alice", clock, CreateInput{Title: "a"})
	qt.Assert(t, qt.IsNil(err))
	b, err := Create(repo, "alice", clock, CreateInput{Title: "b"})
	qt.Assert(t, qt.IsNil(err))

	_, err = DepAdd(repo, "alice", clock, DepAddInput{ChildID: a.Task.ID, Blocker: a.Task.ID, ExactID: true})
	qt.Assert(t, qt.IsNotNil(err))

	_, err = DepAdd(repo, "alice", clock, DepAddInput{ChildID: b.Task.ID, Blocker: a.Task.ID, ExactID: true})
	qt.Assert(t, qt.IsNil(err))

	// Adding the identical edge again is a no-op.
	_, err = DepAdd(repo, "alice", clock, DepAddInput{ChildID: b.Task.ID, Blocker: a.Task.ID, ExactID: true})
	qt.Assert(t, qt.IsNil(err))

	removed, err := DepRemove(repo, "alice", clock, DepRemoveInput{ChildID: b.Task.ID, Blocker: a.Task.ID, ExactID: true})
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(removed.Child.ID, b.Task.ID))

	shown, err := Show(repo, b.Task.ID, true)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.HasLen(shown.Blockers, 0))

	// Removing an edge that no longer exists is a no-op.
	_, err = DepRemove(repo, "alice", clock, DepRemoveInput{ChildID: b.Task.ID, Blocker: a.Task.ID, ExactID: true})
	qt.Assert(t, qt.IsNil(err))
}

func TestLinkAddRemoveIdempotentAndSelfLinkRejected(t *testing.T) {
	repo := newTestRepo(t)
	clock := testClock()

	a, err := Create(repo, "alice", clock, CreateInput{Title: "a"})
	qt.Assert(t, qt.IsNil(err))
	b, err := Create(repo, "alice", clock, CreateInput{Title: "b"})
	qt.Assert(t, qt.IsNil(err))

	_, err = LinkAdd(repo, "alice", clock, LinkAddInput{SrcID: a.Task.ID, Kind: LinkRelatesTo, DstID: a.Task.ID, ExactID: true})
	qt.Assert(t, qt.IsNotNil(err))

	_, err = LinkAdd(repo, "alice", clock, LinkAddInput{SrcID: a.Task.ID, Kind: LinkRelatesTo, DstID: b.Task.ID, ExactID: true})
	qt.Assert(t, qt.IsNil(err))
	_, err = LinkAdd(repo, "alice", clock, LinkAddInput{SrcID: a.Task.ID, Kind: LinkRelatesTo, DstID: b.Task.ID, ExactID: true})
	qt.Assert(t, qt.IsNil(err))

	shown, err := Show(repo, a.Task.ID, true)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.DeepEquals(shown.Links[LinkRelatesTo], []string{b.Task.ID}))

	_, err = LinkRemove(repo, "alice", clock, LinkRemoveInput{SrcID: a.Task.ID, Kind: LinkRelatesTo, DstID: b.Task.ID, ExactID: true})
	qt.Assert(t, qt.IsNil(err))
	_, err = LinkRemove(repo, "alice", clock, LinkRemoveInput{SrcID: a.Task.ID, Kind: LinkRelatesTo, DstID: b.Task.ID, ExactID: true})
	qt.Assert(t, qt.IsNil(err))

	shown, err = Show(repo, a.Task.ID, true)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.HasLen(shown.Links[LinkRelatesTo], 0))
}
