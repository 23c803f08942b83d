// Package atomicfile writes files so that readers never observe a
// partially written result: write to a temp file in the destination's own
// directory, fsync it, then rename into place.
//
// The pattern is lifted from the teacher's own cache and config writers
// (mod/modcache.Cache.writeDiskCache, internal/cueconfig.writeLoginsUnlocked):
// write-temp, fsync, rename, and clean up the temp file on any failure.
package atomicfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Write durably replaces name with data: the bytes are fully present or the
// old contents are untouched, even across a process crash between the
// write and the rename.
func Write(name string, data []byte, perm os.FileMode) (err error) {
	dir := filepath.Dir(name)
	if err := os.MkdirAll(dir, 0o777); err != nil {
		return fmt.Errorf("atomicfile: mkdir %s: %w", dir, err)
	}

	f, err := os.CreateTemp(dir, filepath.Base(name)+".tmp-*")
	if err != nil {
		return fmt.Errorf("atomicfile: create temp for %s: %w", name, err)
	}
	tmpName := f.Name()
	defer func() {
		// Only remove the temp file if we never got to rename it away:
		// another process may have reused the name afterward.
		if err != nil {
			f.Close()
			os.Remove(tmpName)
		}
	}()

	if _, err = f.Write(data); err != nil {
		return fmt.Errorf("atomicfile: write %s: %w", tmpName, err)
	}
	if err = f.Sync(); err != nil {
		return fmt.Errorf("atomicfile: fsync %s: %w", tmpName, err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("atomicfile: close %s: %w", tmpName, err)
	}
	if err = os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("atomicfile: chmod %s: %w", tmpName, err)
	}
	if err = rename(tmpName, name); err != nil {
		return fmt.Errorf("atomicfile: rename %s to %s: %w", tmpName, name, err)
	}
	return nil
}

// AppendFsync opens name for append (creating it if absent), writes data in
// a single call, and fsyncs before returning, per spec.md §4.1's append
// protocol. The caller's data should already end in the record's delimiter.
func AppendFsync(name string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(name)
	if err := os.MkdirAll(dir, 0o777); err != nil {
		return fmt.Errorf("atomicfile: mkdir %s: %w", dir, err)
	}
	f, err := os.OpenFile(name, os.O_APPEND|os.O_CREATE|os.O_WRONLY, perm)
	if err != nil {
		return fmt.Errorf("atomicfile: open %s: %w", name, err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("atomicfile: append %s: %w", name, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("atomicfile: fsync %s: %w", name, err)
	}
	return nil
}

// IsTempName reports whether name matches the "*.tmp-*" pattern Write's
// os.CreateTemp call produces, used by repair's stale-temp-file scan.
func IsTempName(name string) bool {
	return strings.Contains(name, ".tmp-")
}
