package store

import (
	"testing"

	"github.com/go-quicktest/qt"
)

func TestParseSearchQueryQuotedNegatedField(t *testing.T) {
	terms, err := ParseSearchQuery(`status:open -label:"blocked item" deploy pipeline`)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.HasLen(terms, 3))

	qt.Assert(t, qt.Equals(terms[0].Field, fieldStatus))
	qt.Assert(t, qt.Equals(terms[0].Value, "open"))
	qt.Assert(t, qt.IsFalse(terms[0].Negate))

	qt.Assert(t, qt.Equals(terms[1].Field, fieldLabel))
	qt.Assert(t, qt.Equals(terms[1].Value, "blocked item"))
	qt.Assert(t, qt.IsTrue(terms[1].Negate))

	qt.Assert(t, qt.Equals(terms[2].Field, fieldText))
	qt.Assert(t, qt.Equals(terms[2].Value, "deploy pipeline"))
}

func TestParseSearchQueryRejectsBareDepType(t *testing.T) {
	_, err := ParseSearchQuery("dep_type:blocks")
	qt.Assert(t, qt.IsNotNil(err))
}

func TestParseSearchQueryRejectsUnterminatedQuote(t *testing.T) {
	_, err := ParseSearchQuery(`title:"unterminated`)
	qt.Assert(t, qt.IsNotNil(err))
}

func TestSearchMatchesAndNegation(t *testing.T) {
	s := NewState()
	s.Tasks["a"] = Task{ID: "a", Title: "fix login bug", Status: StatusOpen, Labels: []string{"urgent"}}
	s.Tasks["b"] = Task{ID: "b", Title: "write docs", Status: StatusClosed}
	s.CreatedOrder = []string{"a", "b"}

	ids, err := Search(s, "status:open")
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.DeepEquals(ids, []string{"a"}))

	ids, err = Search(s, "-status:open")
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.DeepEquals(ids, []string{"b"}))

	ids, err = Search(s, "label:urgent")
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.DeepEquals(ids, []string{"a"}))

	ids, err = Search(s, "login")
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.DeepEquals(ids, []string{"a"}))
}
