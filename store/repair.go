package store

import (
	"os"
	"path/filepath"

	"github.com/BumpyClock/tasque/store/tsqerr"
)

// RepairPlan is the set of fixable issues detected by RepairScan (spec.md
// §4.7).
type RepairPlan struct {
	OrphanDeps     []OrphanDep  `json:"orphan_deps"`
	OrphanLinks    []OrphanLink `json:"orphan_links"`
	StaleTempFiles []string     `json:"stale_temp_files"`
	StaleLock      bool         `json:"stale_lock"`
	StaleLockInfo  *lockInfo    `json:"stale_lock_info,omitempty"`
	OldSnapshots   []string     `json:"old_snapshots"`
}

// Empty reports whether the plan has nothing to do.
func (p RepairPlan) Empty() bool {
	return len(p.OrphanDeps) == 0 && len(p.OrphanLinks) == 0 && len(p.StaleTempFiles) == 0 &&
		!p.StaleLock && len(p.OldSnapshots) == 0
}

// RepairScanInput is the input to RepairScan.
type RepairScanInput struct {
	ForceUnlock bool
}

// RepairScan computes the repair plan without applying anything (spec.md
// §4.7's dry-run default). ForceUnlock is rejected here rather than silently
// ignored: a scan never applies anything, so "force-unlock" without "--fix"
// names an action this call cannot perform (spec.md §9: "repair under
// --force-unlock without --fix must be rejected as a validation error; do
// not silently drop the flag").
func RepairScan(repoRoot string, in RepairScanInput) (RepairPlan, error) {
	if in.ForceUnlock {
		return RepairPlan{}, tsqerr.New(tsqerr.ValidationError, "--force-unlock requires --fix")
	}

	proj, err := query(repoRoot)
	if err != nil {
		return RepairPlan{}, err
	}
	storeRoot := StoreRoot(repoRoot)

	orphans := findOrphans(proj.State)
	plan := RepairPlan{OrphanDeps: orphans.Deps, OrphanLinks: orphans.Links}

	if tmps, err := staleTempFiles(storeRoot); err == nil {
		plan.StaleTempFiles = tmps
	}

	if stale, info, err := lockIsStale(storeRoot); err == nil && stale {
		plan.StaleLock = true
		plan.StaleLockInfo = &info
	}

	if names, err := listSnapshotFiles(storeRoot); err == nil && len(names) > defaultSnapshotKeep {
		plan.OldSnapshots = names[defaultSnapshotKeep:]
	}

	return plan, nil
}

// RepairApplyInput is the input to RepairApply.
type RepairApplyInput struct {
	ForceUnlock bool
}

// RepairApplyResult is RepairApply's response payload.
type RepairApplyResult struct {
	Plan RepairPlan `json:"plan"`
}

// RepairApply runs RepairScan and then applies it: orphan deps/links are
// removed via a single repair.applied event through the normal mutating
// pipeline; stale temp files and old snapshots are removed directly, since
// they are not part of the projected state and have no event-sourced
// representation; a stale lock is only force-removed if ForceUnlock is set
// (spec.md §4.7: "--fix applies ... stale lock (with --force-unlock)").
// ForceUnlock without a stale lock present is rejected, since force-unlocking
// a live lock would break the single-writer guarantee the rest of the
// package depends on.
func RepairApply(repoRoot, actor string, now Clock, in RepairApplyInput) (RepairApplyResult, error) {
	plan, err := RepairScan(repoRoot, RepairScanInput{})
	if err != nil {
		return RepairApplyResult{}, err
	}

	if in.ForceUnlock && !plan.StaleLock {
		return RepairApplyResult{}, tsqerr.New(tsqerr.ValidationError, "--force-unlock requested but no stale lock was found")
	}

	storeRoot := StoreRoot(repoRoot)

	if len(plan.OldSnapshots) > 0 {
		// Compaction goes through gcSnapshots, not a raw os.Remove loop, so
		// it serializes against a concurrent reader selecting a snapshot to
		// load (store/snapshot.go's withSnapshotLock).
		if _, err := gcSnapshots(storeRoot, defaultSnapshotKeep); err != nil {
			return RepairApplyResult{}, tsqerr.Wrap(tsqerr.IOError, err, "remove old snapshots")
		}
	}
	for _, name := range plan.StaleTempFiles {
		_ = os.Remove(filepath.Join(storeRoot, name))
	}

	if len(plan.OrphanDeps) > 0 || len(plan.OrphanLinks) > 0 {
		_, err := mutate(repoRoot, actor, now, func(proj Projection, alloc *eventIDAllocator, now Clock) ([]EventRecord, error) {
			removedDeps := make([]any, 0, len(plan.OrphanDeps))
			for _, d := range plan.OrphanDeps {
				removedDeps = append(removedDeps, map[string]any{
					"child": d.Child, "blocker": d.Blocker, "dep_type": string(d.DepType),
				})
			}
			removedLinks := make([]any, 0, len(plan.OrphanLinks))
			for _, l := range plan.OrphanLinks {
				removedLinks = append(removedLinks, map[string]any{
					"src": l.Src, "kind": string(l.Kind), "dst": l.Dst,
				})
			}
			return []EventRecord{{
				EventID: alloc.Allocate(), TS: now(), Actor: actor,
				Type: EventRepairApplied,
				Payload: map[string]any{
					"removed_deps":  removedDeps,
					"removed_links": removedLinks,
				},
			}}, nil
		})
		if err != nil {
			return RepairApplyResult{}, err
		}
	}

	// The lock guarding the mutation above has already been released by the
	// time we force-unlock a *different*, stale lock (if any lingers from a
	// dead process); forceUnlock is unconditional removal, not a guarded
	// acquire, so it is safe to call after mutate has released its own lock.
	if in.ForceUnlock {
		if err := forceUnlock(storeRoot); err != nil {
			return RepairApplyResult{}, err
		}
	}

	return RepairApplyResult{Plan: plan}, nil
}
