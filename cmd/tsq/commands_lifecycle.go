package main

import (
	"github.com/spf13/cobra"

	"github.com/BumpyClock/tasque/store"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "create .tasque in the repository root",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := store.Init(flagRepo)
			return emit(cmd, "init", nil, err)
		},
	}
}

func newCreateCmd() *cobra.Command {
	var (
		kind           string
		parentID       string
		priority       int
		description    string
		externalRef    string
		discoveredFrom string
		labels         []string
	)
	cmd := &cobra.Command{
		Use:   "create <title>",
		Short: "create a new task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := store.Create(flagRepo, flagActor, store.SystemClock(), store.CreateInput{
				Kind:           store.Kind(kind),
				Title:          args[0],
				ParentID:       parentID,
				Priority:       priority,
				Description:    description,
				ExternalRef:    externalRef,
				DiscoveredFrom: discoveredFrom,
				Labels:         labels,
			})
			return emit(cmd, "create", res, err)
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "task", "task|feature|epic")
	cmd.Flags().StringVar(&parentID, "parent", "", "parent task id")
	cmd.Flags().IntVar(&priority, "priority", 0, "priority 0-3")
	cmd.Flags().StringVar(&description, "description", "", "task description")
	cmd.Flags().StringVar(&externalRef, "external-ref", "", "external reference")
	cmd.Flags().StringVar(&discoveredFrom, "discovered-from", "", "task id this was discovered from")
	cmd.Flags().StringSliceVar(&labels, "label", nil, "labels to attach (repeatable)")
	return cmd
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "show a task and its local graph context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := store.Show(flagRepo, args[0], flagExactID)
			return emit(cmd, "show", res, err)
		},
	}
}

func newUpdateCmd() *cobra.Command {
	var (
		title, description, externalRef, kind, planningState string
		priority                                              int
		hasPriority                                           bool
		claim                                                  bool
		assignee                                              string
		requireSpec                                            bool
	)
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "update task fields, or claim it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := store.UpdateInput{ID: args[0], ExactID: flagExactID, Claim: claim, Assignee: assignee, RequireSpec: requireSpec}
			if cmd.Flags().Changed("title") {
				in.Title = &title
			}
			if cmd.Flags().Changed("description") {
				in.Description = &description
			}
			if cmd.Flags().Changed("priority") {
				hasPriority = true
			}
			if hasPriority {
				in.Priority = &priority
			}
			if cmd.Flags().Changed("kind") {
				k := store.Kind(kind)
				in.Kind = &k
			}
			if cmd.Flags().Changed("planning-state") {
				p := store.PlanningState(planningState)
				in.PlanningState = &p
			}
			if cmd.Flags().Changed("external-ref") {
				in.ExternalRef = &externalRef
			}
			res, err := store.Update(flagRepo, flagActor, store.SystemClock(), in)
			return emit(cmd, "update", res, err)
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&description, "description", "", "new description")
	cmd.Flags().IntVar(&priority, "priority", 0, "new priority 0-3")
	cmd.Flags().StringVar(&kind, "kind", "", "new kind")
	cmd.Flags().StringVar(&planningState, "planning-state", "", "needs_planning|planned")
	cmd.Flags().StringVar(&externalRef, "external-ref", "", "new external reference")
	cmd.Flags().BoolVar(&claim, "claim", false, "claim the task for --assignee")
	cmd.Flags().StringVar(&assignee, "assignee", "", "assignee to claim as")
	cmd.Flags().BoolVar(&requireSpec, "require-spec", false, "reject the claim unless a spec is attached")
	return cmd
}

func newClaimCmd() *cobra.Command {
	var assignee string
	var requireSpec bool
	cmd := &cobra.Command{
		Use:   "claim <id>",
		Short: "claim a task for an assignee",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := store.Update(flagRepo, flagActor, store.SystemClock(), store.UpdateInput{
				ID: args[0], ExactID: flagExactID, Claim: true, Assignee: assignee, RequireSpec: requireSpec,
			})
			return emit(cmd, "claim", res, err)
		},
	}
	cmd.Flags().StringVar(&assignee, "assignee", flagActor, "assignee to claim as")
	cmd.Flags().BoolVar(&requireSpec, "require-spec", false, "reject the claim unless a spec is attached")
	return cmd
}

func newCloseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "close <id>...",
		Short: "close one or more tasks",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := store.Close(flagRepo, flagActor, store.SystemClock(), store.CloseInput{IDs: args, ExactID: flagExactID})
			return emit(cmd, "close", res, err)
		},
	}
	return cmd
}

func newReopenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reopen <id>...",
		Short: "reopen one or more closed tasks",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := store.Reopen(flagRepo, flagActor, store.SystemClock(), store.ReopenInput{IDs: args, ExactID: flagExactID})
			return emit(cmd, "reopen", res, err)
		},
	}
	return cmd
}

func newSupersedeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "supersede <source-id> <canonical-id>",
		Short: "close source and mark it superseded by canonical",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := store.Supersede(flagRepo, flagActor, store.SystemClock(), store.SupersedeInput{
				SourceID: args[0], CanonicalID: args[1], ExactID: flagExactID,
			})
			return emit(cmd, "supersede", res, err)
		},
	}
}

func newDuplicateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "duplicate <source-id> <canonical-id>",
		Short: "close source and mark it a duplicate of canonical",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := store.Duplicate(flagRepo, flagActor, store.SystemClock(), store.DuplicateInput{
				SourceID: args[0], CanonicalID: args[1], ExactID: flagExactID,
			})
			return emit(cmd, "duplicate", res, err)
		},
	}
}

func newMergeCmd() *cobra.Command {
	var canonical string
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "merge <source-id>...",
		Short: "mark every source as a duplicate of --canonical, atomically",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := store.Merge(flagRepo, flagActor, store.SystemClock(), store.MergeInput{
				SourceIDs: args, CanonicalID: canonical, ExactID: flagExactID, DryRun: dryRun,
			})
			return emit(cmd, "merge", res, err)
		},
	}
	cmd.Flags().StringVar(&canonical, "canonical", "", "canonical task id (required)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate without applying")
	cmd.MarkFlagRequired("canonical")
	return cmd
}
