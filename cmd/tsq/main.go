// Command tsq is a thin CLI front end over the store package: it parses
// flags, resolves the actor and repo root, and renders a store.Envelope (in
// --json mode) or human-readable text. It carries no projection, locking, or
// graph logic of its own.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/BumpyClock/tasque/store"
	"github.com/BumpyClock/tasque/store/tsqerr"
)

var (
	flagJSON    bool
	flagRepo    string
	flagActor   string
	flagExactID bool
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		os.Exit(2)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tsq",
		Short:         "tasque: a durable, event-sourced task graph",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&flagJSON, "json", false, "emit machine-readable JSON envelopes")
	root.PersistentFlags().StringVar(&flagRepo, "repo", ".", "repository root containing .tasque")
	root.PersistentFlags().StringVar(&flagActor, "actor", defaultActor(), "actor name stamped on events")
	root.PersistentFlags().BoolVar(&flagExactID, "exact-id", false, "disable id prefix matching")

	root.AddCommand(
		newInitCmd(),
		newCreateCmd(),
		newShowCmd(),
		newUpdateCmd(),
		newClaimCmd(),
		newCloseCmd(),
		newReopenCmd(),
		newSupersedeCmd(),
		newDuplicateCmd(),
		newMergeCmd(),
		newDepCmd(),
		newLinkCmd(),
		newLabelCmd(),
		newNoteCmd(),
		newSpecCmd(),
		newListCmd(),
		newReadyCmd(),
		newStaleCmd(),
		newHistoryCmd(),
		newSearchCmd(),
		newOrphansCmd(),
		newDoctorCmd(),
		newRepairCmd(),
	)
	return root
}

// defaultActor resolves TSQ_ACTOR, falling back to the OS user name and
// finally "unknown" (spec.md §9: actor is always a plain string, never
// inferred from process identity beyond this one convenience default).
func defaultActor() string {
	if a := os.Getenv("TSQ_ACTOR"); a != "" {
		return a
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "unknown"
}

// emit renders result (or err) as a JSON envelope or as plain text,
// and maps err to the process exit code from tsqerr.ExitCode.
func emit(cmd *cobra.Command, command string, result any, err error) error {
	if flagJSON {
		var env store.Envelope
		if err != nil {
			env = store.NewErrorEnvelope(command, err)
		} else {
			env = store.NewEnvelope(command, result)
		}
		enc := newJSONEncoder(cmd.OutOrStdout())
		if encErr := enc.Encode(env); encErr != nil {
			return encErr
		}
	} else {
		if err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), "error:", err.Error())
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "%+v\n", result)
		}
	}
	if err != nil {
		os.Exit(tsqerr.ExitCode(err))
	}
	return nil
}
