package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/BumpyClock/tasque/store"
)

func newListCmd() *cobra.Command {
	var (
		status, assignee, externalRef, discoveredFrom, kind, label, planningState, depType, direction string
		statuses, labelAny, ids                                                                        []string
		unassigned                                                                                     bool
		tree, full                                                                                      bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "list tasks matching filters",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := store.ListFilter{
				Status:         store.Status(status),
				Assignee:       assignee,
				Unassigned:     unassigned,
				ExternalRef:    externalRef,
				DiscoveredFrom: discoveredFrom,
				Kind:           store.Kind(kind),
				Label:          label,
				LabelAny:       labelAny,
				IDs:            ids,
				PlanningState:  store.PlanningState(planningState),
				DepType:        store.DepType(depType),
				Direction:      direction,
			}
			for _, s := range statuses {
				filter.Statuses = append(filter.Statuses, store.Status(s))
			}
			if tree {
				res, err := store.ListTree(flagRepo, store.ListTreeOptions{Full: full, Filter: filter})
				return emit(cmd, "list tree", res, err)
			}
			res, err := store.List(flagRepo, filter)
			return emit(cmd, "list", res, err)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by exact status")
	cmd.Flags().StringSliceVar(&statuses, "statuses", nil, "filter by any of these statuses")
	cmd.Flags().StringVar(&assignee, "assignee", "", "filter by assignee")
	cmd.Flags().BoolVar(&unassigned, "unassigned", false, "only tasks with no assignee")
	cmd.Flags().StringVar(&externalRef, "external-ref", "", "filter by external reference")
	cmd.Flags().StringVar(&discoveredFrom, "discovered-from", "", "filter by discovered_from")
	cmd.Flags().StringVar(&kind, "kind", "", "filter by kind")
	cmd.Flags().StringVar(&label, "label", "", "filter: task must have this label")
	cmd.Flags().StringSliceVar(&labelAny, "label-any", nil, "filter: task must have any of these labels")
	cmd.Flags().StringSliceVar(&ids, "ids", nil, "restrict to this id set")
	cmd.Flags().StringVar(&planningState, "planning-state", "", "needs_planning|planned")
	cmd.Flags().StringVar(&depType, "dep-type", "", "blocks|starts_after, paired with --direction")
	cmd.Flags().StringVar(&direction, "direction", "in", "in|out, direction of --dep-type")
	cmd.Flags().BoolVar(&tree, "tree", false, "render as a parent/child forest")
	cmd.Flags().BoolVar(&full, "full", false, "include closed/canceled tasks in --tree")
	return cmd
}

func newReadyCmd() *cobra.Command {
	var lane string
	cmd := &cobra.Command{
		Use:   "ready",
		Short: "list ready tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := store.Ready(flagRepo, store.ReadyOptions{Lane: lane})
			return emit(cmd, "ready", res, err)
		},
	}
	cmd.Flags().StringVar(&lane, "lane", "", "planning|coding")
	return cmd
}

func newStaleCmd() *cobra.Command {
	var days int
	var statuses []string
	cmd := &cobra.Command{
		Use:   "stale",
		Short: "list tasks not updated within N days",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := store.StaleOptions{Days: days, Now: time.Now().UTC()}
			for _, s := range statuses {
				opts.Statuses = append(opts.Statuses, store.Status(s))
			}
			res, err := store.Stale(flagRepo, opts)
			return emit(cmd, "stale", res, err)
		},
	}
	cmd.Flags().IntVar(&days, "days", 14, "staleness threshold in days")
	cmd.Flags().StringSliceVar(&statuses, "statuses", nil, "restrict to these statuses")
	return cmd
}

func newHistoryCmd() *cobra.Command {
	var (
		eventType, actor, since string
		limit                   int
	)
	cmd := &cobra.Command{
		Use:   "history [id]",
		Short: "show events touching a task, or all events if no id is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := store.HistoryOptions{Type: store.EventType(eventType), Actor: actor, Limit: limit}
			if len(args) == 1 {
				opts.TaskID = args[0]
				opts.ExactID = flagExactID
			}
			if since != "" {
				t, err := time.Parse(time.RFC3339, since)
				if err != nil {
					return emit(cmd, "history", nil, err)
				}
				opts.Since = &t
			}
			res, err := store.History(flagRepo, opts)
			return emit(cmd, "history", res, err)
		},
	}
	cmd.Flags().StringVar(&eventType, "type", "", "filter by event type")
	cmd.Flags().StringVar(&actor, "actor", "", "filter by actor")
	cmd.Flags().StringVar(&since, "since", "", "filter to events after this RFC3339 timestamp")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum events to return")
	return cmd
}

func newSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "search tasks with the field:value query language",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := store.SearchQuery(flagRepo, args[0])
			return emit(cmd, "search", res, err)
		},
	}
}

func newOrphansCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "orphans",
		Short: "list dangling dependency edges and relation links",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := store.Orphans(flagRepo)
			return emit(cmd, "orphans", res, err)
		},
	}
}

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "report the store's overall health",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := store.Doctor(flagRepo)
			return emit(cmd, "doctor", res, err)
		},
	}
}

func newRepairCmd() *cobra.Command {
	var fix, forceUnlock bool
	cmd := &cobra.Command{
		Use:   "repair",
		Short: "scan for, and optionally fix, orphaned edges, stale locks, and stray files",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !fix {
				res, err := store.RepairScan(flagRepo, store.RepairScanInput{ForceUnlock: forceUnlock})
				return emit(cmd, "repair", res, err)
			}
			res, err := store.RepairApply(flagRepo, flagActor, store.SystemClock(), store.RepairApplyInput{ForceUnlock: forceUnlock})
			return emit(cmd, "repair", res, err)
		},
	}
	cmd.Flags().BoolVar(&fix, "fix", false, "apply the repair plan instead of just reporting it")
	cmd.Flags().BoolVar(&forceUnlock, "force-unlock", false, "also remove a stale lock (requires --fix)")
	return cmd
}
