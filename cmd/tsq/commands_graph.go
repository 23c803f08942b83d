package main

import (
	"github.com/spf13/cobra"

	"github.com/BumpyClock/tasque/store"
)

func newDepCmd() *cobra.Command {
	dep := &cobra.Command{Use: "dep", Short: "manage dependency edges"}

	var depType string
	add := &cobra.Command{
		Use:   "add <child-id> <blocker-id>",
		Short: "add a dependency edge",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := store.DepAdd(flagRepo, flagActor, store.SystemClock(), store.DepAddInput{
				ChildID: args[0], Blocker: args[1], DepType: store.DepType(depType), ExactID: flagExactID,
			})
			return emit(cmd, "dep add", res, err)
		},
	}
	add.Flags().StringVar(&depType, "type", string(store.DepBlocks), "blocks|starts_after")

	var removeType string
	remove := &cobra.Command{
		Use:   "remove <child-id> <blocker-id>",
		Short: "remove a dependency edge",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := store.DepRemove(flagRepo, flagActor, store.SystemClock(), store.DepRemoveInput{
				ChildID: args[0], Blocker: args[1], DepType: store.DepType(removeType), ExactID: flagExactID,
			})
			return emit(cmd, "dep remove", res, err)
		},
	}
	remove.Flags().StringVar(&removeType, "type", string(store.DepBlocks), "blocks|starts_after")

	dep.AddCommand(add, remove)
	return dep
}

func newLinkCmd() *cobra.Command {
	link := &cobra.Command{Use: "link", Short: "manage relation links"}

	add := &cobra.Command{
		Use:   "add <src-id> <kind> <dst-id>",
		Short: "add a relation link (relates_to|replies_to|duplicates|supersedes)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := store.LinkAdd(flagRepo, flagActor, store.SystemClock(), store.LinkAddInput{
				SrcID: args[0], Kind: store.LinkKind(args[1]), DstID: args[2], ExactID: flagExactID,
			})
			return emit(cmd, "link add", res, err)
		},
	}
	remove := &cobra.Command{
		Use:   "remove <src-id> <kind> <dst-id>",
		Short: "remove a relation link",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := store.LinkRemove(flagRepo, flagActor, store.SystemClock(), store.LinkRemoveInput{
				SrcID: args[0], Kind: store.LinkKind(args[1]), DstID: args[2], ExactID: flagExactID,
			})
			return emit(cmd, "link remove", res, err)
		},
	}
	link.AddCommand(add, remove)
	return link
}

func newLabelCmd() *cobra.Command {
	label := &cobra.Command{Use: "label", Short: "manage task labels"}

	add := &cobra.Command{
		Use:   "add <id> <label>...",
		Short: "add one or more labels to a task",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := store.LabelAdd(flagRepo, flagActor, store.SystemClock(), store.LabelAddInput{
				ID: args[0], Labels: args[1:], ExactID: flagExactID,
			})
			return emit(cmd, "label add", res, err)
		},
	}
	remove := &cobra.Command{
		Use:   "remove <id> <label>...",
		Short: "remove one or more labels from a task",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := store.LabelRemove(flagRepo, flagActor, store.SystemClock(), store.LabelRemoveInput{
				ID: args[0], Labels: args[1:], ExactID: flagExactID,
			})
			return emit(cmd, "label remove", res, err)
		},
	}
	label.AddCommand(add, remove)
	return label
}

func newNoteCmd() *cobra.Command {
	note := &cobra.Command{Use: "note", Short: "manage task notes"}
	add := &cobra.Command{
		Use:   "add <id> <text>",
		Short: "append a note to a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := store.NoteAdd(flagRepo, flagActor, store.SystemClock(), store.NoteAddInput{
				ID: args[0], Text: args[1], ExactID: flagExactID,
			})
			return emit(cmd, "note add", res, err)
		},
	}
	note.AddCommand(add)
	return note
}

func newSpecCmd() *cobra.Command {
	spec := &cobra.Command{Use: "spec", Short: "manage attached specs"}

	attach := &cobra.Command{
		Use:   "attach <id> <file>",
		Short: "attach a markdown spec file to a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readFile(args[1])
			if err != nil {
				return emit(cmd, "spec attach", nil, err)
			}
			res, err := store.SpecAttach(flagRepo, flagActor, store.SystemClock(), store.SpecAttachInput{
				ID: args[0], Content: content, ExactID: flagExactID,
			})
			return emit(cmd, "spec attach", res, err)
		},
	}
	check := &cobra.Command{
		Use:   "check <id>",
		Short: "verify an attached spec's fingerprint and required sections",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := store.SpecCheck(flagRepo, args[0], flagExactID)
			return emit(cmd, "spec check", res, err)
		},
	}
	spec.AddCommand(attach, check)
	return spec
}
