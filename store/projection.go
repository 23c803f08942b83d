package store

import (
	"path/filepath"
)

// Projection is the result of loadProjectedState: the replayed state, the
// full event vector (for history queries), any cumulative warning, and the
// snapshot used, if any (spec.md §4.2).
type Projection struct {
	State      *State
	AllEvents  []EventRecord
	Warning    string
	Snapshot   *Snapshot
	IDAllocGen int64 // highest event id seen, for seeding a fresh allocator
}

// loadProjectedState loads storeRoot's newest usable snapshot (if any) and
// tails the event log from that point, per spec.md §4.3: "Startup loads the
// newest valid snapshot whose event_count <= total events in log, then
// tails the log from that count to present. If no snapshot exists,
// projection starts from the empty state."
func loadProjectedState(storeRoot string) (Projection, error) {
	logPath := filepath.Join(storeRoot, eventLogFile)
	logResult, err := readEventLog(logPath)
	if err != nil {
		return Projection{}, err
	}

	snapResult, err := selectSnapshot(storeRoot, countEvents(logResult.Events))
	if err != nil {
		return Projection{}, err
	}

	base := NewState()
	var tail []EventRecord
	if snapResult.Snapshot != nil {
		base = snapResult.Snapshot.State
		tail = logResult.Events[snapResult.Snapshot.EventCount:]
	} else {
		tail = logResult.Events
	}

	result := replay(base, tail)

	warnings := []string{}
	if logResult.Warning != "" {
		warnings = append(warnings, logResult.Warning)
	}
	if snapResult.Warning != "" {
		warnings = append(warnings, snapResult.Warning)
	}
	warnings = append(warnings, result.Warnings...)

	proj := Projection{
		State:      result.State,
		AllEvents:  logResult.Events,
		Snapshot:   snapResult.Snapshot,
		IDAllocGen: highestEventID(logResult.Events),
	}
	if len(warnings) > 0 {
		proj.Warning = joinWarnings(warnings)
	}
	return proj, nil
}
