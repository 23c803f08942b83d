package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-quicktest/qt"
)

func TestReadEventLogDropsUnterminatedTailLine(t *testing.T) {
	repo := newTestRepo(t)
	clock := testClock()

	_, err := Create(repo, "alice", clock, CreateInput{Title: "a"})
	qt.Assert(t, qt.IsNil(err))

	logPath := filepath.Join(StoreRoot(repo), eventLogFile)
	before, err := readEventLog(logPath)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.HasLen(before.Events, 1))
	qt.Assert(t, qt.Equals(before.Warning, ""))

	// Append a second, well-formed event record but without its trailing
	// newline, simulating a process that crashed mid-append (spec.md §4.1).
	tail := `{"event_id":"2","ts":"2026-01-01T00:00:02Z","actor":"alice","type":"task.created","task_id":"t-deadbeef","payload":{}}`
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_WRONLY, 0o644)
	qt.Assert(t, qt.IsNil(err))
	_, err = f.WriteString(tail)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.IsNil(f.Close()))

	after, err := readEventLog(logPath)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.HasLen(after.Events, 1))
	qt.Assert(t, qt.IsTrue(strings.Contains(after.Warning, "partial (unterminated) line")))

	proj, err := loadProjectedState(StoreRoot(repo))
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.HasLen(proj.AllEvents, 1))
	qt.Assert(t, qt.IsTrue(strings.Contains(proj.Warning, "partial (unterminated) line")))
}

func TestReadEventLogKeepsAllWellFormedLines(t *testing.T) {
	repo := newTestRepo(t)
	clock := testClock()

	_, err := Create(repo, "alice", clock, CreateInput{Title: "a"})
	qt.Assert(t, qt.IsNil(err))
	_, err = Create(repo, "alice", clock, CreateInput{Title: "b"})
	qt.Assert(t, qt.IsNil(err))

	logPath := filepath.Join(StoreRoot(repo), eventLogFile)
	result, err := readEventLog(logPath)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.HasLen(result.Events, 2))
	qt.Assert(t, qt.Equals(result.Warning, ""))
}
