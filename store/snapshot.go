package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rogpeppe/go-internal/lockedfile"

	"github.com/BumpyClock/tasque/store/internal/atomicfile"
)

const snapshotsDir = "snapshots"

// snapshotLockFile is the advisory mutex guarding the snapshot directory's
// read-compact-write critical section: a GC pass removing old snapshots
// (repair --fix) must never run concurrently with a reader in the middle of
// selecting one to load, or the reader's candidate file could vanish
// between being listed and being opened (spec.md §4.3's GC and §9's
// concurrent-reader guarantees). atomicfile.Write's own rename-after-fsync
// already makes a single snapshot's content atomic; this mutex closes the
// remaining directory-level race across multiple files, the same shape as
// the teacher's mod/modcache lock guarding its disk cache directory.
const snapshotLockFile = ".snapshot-lock"

// defaultSnapshotKeep is the number of newest snapshots GC retains
// (spec.md §4.3, "default keep=5").
const defaultSnapshotKeep = 5

// withSnapshotLock runs fn while holding storeRoot's snapshot directory
// mutex, creating the directory first since lockedfile.Mutex needs it to
// exist to open its lock file.
func withSnapshotLock(storeRoot string, fn func() error) error {
	dir := filepath.Join(storeRoot, snapshotsDir)
	if err := os.MkdirAll(dir, 0o777); err != nil {
		return fmt.Errorf("snapshot lock: mkdir %s: %w", dir, err)
	}
	unlock, err := lockedfile.MutexAt(filepath.Join(dir, snapshotLockFile)).Lock()
	if err != nil {
		return fmt.Errorf("snapshot lock: %w", err)
	}
	defer unlock()
	return fn()
}

// Snapshot is a persisted cache of a past projection (spec.md §3, §4.3).
type Snapshot struct {
	TakenAt    time.Time `json:"taken_at"`
	EventCount int64     `json:"event_count"`
	State      *State    `json:"state"`
}

// snapshotFileName encodes the timestamp and event count for chronological
// sort (spec.md §4.3): "<iso>-<n>.json".
func snapshotFileName(snap Snapshot) string {
	ts := snap.TakenAt.UTC().Format("20060102T150405.000Z")
	return fmt.Sprintf("%s-%d.json", ts, snap.EventCount)
}

// writeSnapshot atomically persists snap under storeRoot/snapshots, per
// spec.md §4.3: temp file in the same directory, fsync, rename. Readers
// never observe a half-written snapshot because atomicfile.Write only
// renames after a full fsynced write.
func writeSnapshot(storeRoot string, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	path := filepath.Join(storeRoot, snapshotsDir, snapshotFileName(snap))
	return withSnapshotLock(storeRoot, func() error {
		if err := atomicfile.Write(path, data, 0o644); err != nil {
			return fmt.Errorf("write snapshot: %w", err)
		}
		return nil
	})
}

// listSnapshotFiles returns the snapshot directory's *.json files sorted
// newest-first by file name (which sorts chronologically by construction).
func listSnapshotFiles(storeRoot string) ([]string, error) {
	dir := filepath.Join(storeRoot, snapshotsDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

// loadSnapshotResult carries the selected snapshot, if any, plus a warning
// describing any skipped (corrupt or too-new) candidates.
type loadSnapshotResult struct {
	Snapshot *Snapshot
	FileName string
	Warning  string
}

// selectSnapshot loads the newest snapshot whose EventCount <= totalEvents,
// falling back to the next older candidate on parse failure or an
// EventCount exceeding the log length, per spec.md §4.3. If every candidate
// fails, it returns a nil Snapshot so the caller replays from empty state.
func selectSnapshot(storeRoot string, totalEvents int64) (loadSnapshotResult, error) {
	var result loadSnapshotResult
	err := withSnapshotLock(storeRoot, func() error {
		names, err := listSnapshotFiles(storeRoot)
		if err != nil {
			return err
		}
		var skipped []string
		for _, name := range names {
			path := filepath.Join(storeRoot, snapshotsDir, name)
			data, err := os.ReadFile(path)
			if err != nil {
				skipped = append(skipped, fmt.Sprintf("%s (read error: %v)", name, err))
				continue
			}
			var snap Snapshot
			if err := json.Unmarshal(data, &snap); err != nil {
				skipped = append(skipped, fmt.Sprintf("%s (parse error: %v)", name, err))
				continue
			}
			if snap.EventCount > totalEvents {
				skipped = append(skipped, fmt.Sprintf("%s (event_count %d exceeds log length %d)", name, snap.EventCount, totalEvents))
				continue
			}
			result = loadSnapshotResult{Snapshot: &snap, FileName: name}
			if len(skipped) > 0 {
				result.Warning = "skipped snapshot(s): " + joinWarnings(skipped)
			}
			return nil
		}
		if len(skipped) > 0 {
			result = loadSnapshotResult{Warning: "skipped snapshot(s), falling back to full replay: " + joinWarnings(skipped)}
		}
		return nil
	})
	return result, err
}

// shouldSnapshot reports whether appliedEvents is an exact multiple of every
// (spec.md §4.3: "after any write that advances applied_events to a
// multiple of snapshot_every"). A multi-event write that steps past a
// multiple without ending on one does not trigger a snapshot.
func shouldSnapshot(appliedEvents int64, every int) bool {
	if every <= 0 {
		return false
	}
	return appliedEvents%int64(every) == 0
}

// gcSnapshots removes all but the keep most recent snapshots by name
// (spec.md §4.3 GC, default keep=5), returning the names removed.
func gcSnapshots(storeRoot string, keep int) ([]string, error) {
	var removed []string
	err := withSnapshotLock(storeRoot, func() error {
		names, err := listSnapshotFiles(storeRoot)
		if err != nil {
			return err
		}
		if len(names) <= keep {
			return nil
		}
		for _, name := range names[keep:] {
			path := filepath.Join(storeRoot, snapshotsDir, name)
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("remove snapshot %s: %w", name, err)
			}
			removed = append(removed, name)
		}
		return nil
	})
	return removed, err
}
