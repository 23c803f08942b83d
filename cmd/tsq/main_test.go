package main

import (
	"os"
	"testing"

	"github.com/rogpeppe/go-internal/testscript"
)

// TestMain installs this binary's own command dispatch as a "tsq" verb
// runnable from testscript scripts, following the in-process-subcommand
// pattern cmd/cue's own e2e tests use (internal/e2e/script_test.go).
func TestMain(m *testing.M) {
	os.Exit(testscript.RunMain(m, map[string]func() int{
		"tsq": func() int {
			if err := newRootCmd().Execute(); err != nil {
				return 2
			}
			return 0
		},
	}))
}

func TestScript(t *testing.T) {
	testscript.Run(t, testscript.Params{
		Dir: "testdata/script",
	})
}
