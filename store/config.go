package store

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/BumpyClock/tasque/store/internal/atomicfile"
	"github.com/BumpyClock/tasque/store/tsqerr"
)

// SchemaVersion is the monolithic on-disk format constant (spec.md §6): it
// bumps only when the event, snapshot, or envelope formats change.
const SchemaVersion = 1

// DefaultSnapshotEvery is config.json's default snapshot_every (spec.md
// §4.3).
const DefaultSnapshotEvery = 100

const configFileName = "config.json"

// Config is the contents of .tasque/config.json (spec.md §6).
type Config struct {
	SchemaVersion int `json:"schema_version"`
	SnapshotEvery int `json:"snapshot_every"`
}

func defaultConfig() Config {
	return Config{SchemaVersion: SchemaVersion, SnapshotEvery: DefaultSnapshotEvery}
}

func loadConfig(storeRoot string) (Config, error) {
	path := filepath.Join(storeRoot, configFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, tsqerr.New(tsqerr.NotInitialized, "%s is not a tasque store (missing config.json)", storeRoot)
		}
		return Config{}, tsqerr.Wrap(tsqerr.IOError, err, "read config")
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, tsqerr.Wrap(tsqerr.IOError, err, "parse config")
	}
	if cfg.SnapshotEvery <= 0 {
		cfg.SnapshotEvery = DefaultSnapshotEvery
	}
	return cfg, nil
}

func writeConfig(storeRoot string, cfg Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return atomicfile.Write(filepath.Join(storeRoot, configFileName), data, 0o644)
}

const gitignoreContents = "events.jsonl\nsnapshots/\n.lock\nstate.json\nspecs/\n"

// Init creates storeRoot/.tasque (spec.md §4.5 "init"): config.json,
// events.jsonl (as an empty file so early readers don't need to special-case
// a missing store), and .gitignore. It is idempotent: re-running Init on an
// already-initialized store is a no-op rather than an error, since a second
// "tsq init" in a directory that's already a store is a natural slip, not a
// meaningful mistake.
func Init(repoRoot string) error {
	storeRoot := StoreRoot(repoRoot)
	if _, err := os.Stat(filepath.Join(storeRoot, configFileName)); err == nil {
		return nil
	}
	if err := os.MkdirAll(storeRoot, 0o777); err != nil {
		return tsqerr.Wrap(tsqerr.IOError, err, "create store directory")
	}
	if err := writeConfig(storeRoot, defaultConfig()); err != nil {
		return tsqerr.Wrap(tsqerr.IOError, err, "write config")
	}
	logPath := filepath.Join(storeRoot, eventLogFile)
	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		if err := os.WriteFile(logPath, nil, 0o644); err != nil {
			return tsqerr.Wrap(tsqerr.IOError, err, "create event log")
		}
	}
	if err := atomicfile.Write(filepath.Join(storeRoot, ".gitignore"), []byte(gitignoreContents), 0o644); err != nil {
		return tsqerr.Wrap(tsqerr.IOError, err, "write .gitignore")
	}
	return nil
}

// StoreRoot returns the .tasque directory under repoRoot (spec.md §6).
func StoreRoot(repoRoot string) string {
	return filepath.Join(repoRoot, ".tasque")
}
