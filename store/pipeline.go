package store

import (
	"path/filepath"

	"github.com/BumpyClock/tasque/store/tsqerr"
)

// mutationBuilder validates preconditions against the current projection
// and synthesizes the events a mutating command should append. It returns
// VALIDATION_ERROR-class errors (or any other *tsqerr.Error) for rejected
// commands; the events it returns are applied to the in-memory state and
// appended to the log together, exactly as built.
type mutationBuilder func(proj Projection, alloc *eventIDAllocator, now Clock) ([]EventRecord, error)

// mutationOutcome is what every mutating command in the command layer
// returns to its caller after a successful run of the pipeline in
// spec.md §4.5: "lock -> loadProjection -> validate -> buildEvents ->
// appendEvents -> applyToState -> maybeSnapshot -> unlock -> respond".
type mutationOutcome struct {
	State         *State
	Events        []EventRecord
	Warning       string
	SnapshotTaken bool
}

// mutate runs the full mutating-command pipeline against repoRoot's store.
// actor is stamped into every produced event; now is the injected clock
// (spec.md §9). build is called once, after the lock is held and the
// projection is loaded, with a State the builder may read but must not
// mutate directly — mutation happens only through the events it returns.
func mutate(repoRoot, actor string, now Clock, build mutationBuilder) (mutationOutcome, error) {
	storeRoot := StoreRoot(repoRoot)
	cfg, err := loadConfig(storeRoot)
	if err != nil {
		return mutationOutcome{}, err
	}

	lock, err := acquireLock(storeRoot, now())
	if err != nil {
		return mutationOutcome{}, err
	}
	defer lock.Release()

	proj, err := loadProjectedState(storeRoot)
	if err != nil {
		return mutationOutcome{}, tsqerr.Wrap(tsqerr.IOError, err, "load projection")
	}

	alloc := newEventIDAllocator(proj.IDAllocGen)
	events, err := build(proj, alloc, now)
	if err != nil {
		return mutationOutcome{}, err
	}
	if len(events) == 0 {
		return mutationOutcome{State: proj.State, Warning: proj.Warning}, nil
	}

	logPath := filepath.Join(storeRoot, eventLogFile)
	if err := appendEvents(logPath, events); err != nil {
		return mutationOutcome{}, tsqerr.Wrap(tsqerr.IOError, err, "append events")
	}

	result := replay(proj.State, events)
	snapshotTaken := false
	if shouldSnapshot(result.State.AppliedEvents, cfg.SnapshotEvery) {
		snap := Snapshot{TakenAt: now(), EventCount: result.State.AppliedEvents, State: result.State}
		if err := writeSnapshot(storeRoot, snap); err != nil {
			// The log is authoritative; a failed snapshot write does not
			// invalidate the command that already succeeded durably, but
			// it is still reported as an internal error so the operator
			// notices the cache degraded to full-replay-only.
			return mutationOutcome{}, tsqerr.Wrap(tsqerr.InternalError, err, "write snapshot after successful append")
		}
		snapshotTaken = true
	}

	warnings := []string{}
	if proj.Warning != "" {
		warnings = append(warnings, proj.Warning)
	}
	warnings = append(warnings, result.Warnings...)

	out := mutationOutcome{State: result.State, Events: events, SnapshotTaken: snapshotTaken}
	if len(warnings) > 0 {
		out.Warning = joinWarnings(warnings)
	}
	return out, nil
}

// query runs the read-only pipeline: loadProjection without ever touching
// the lock or the log (spec.md §4.5: "Read-only commands skip the lock and
// event append, but still perform the snapshot+tail load").
func query(repoRoot string) (Projection, error) {
	storeRoot := StoreRoot(repoRoot)
	if _, err := loadConfig(storeRoot); err != nil {
		return Projection{}, err
	}
	return loadProjectedState(storeRoot)
}
