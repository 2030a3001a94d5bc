package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/untoldecay/cfaitgo/internal/taskstore"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks, ranked the same way the interactive view sorts them",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := currentApp

		search, _ := cmd.Flags().GetString("search")
		cats, _ := cmd.Flags().GetStringSlice("category")
		cals, _ := cmd.Flags().GetStringSlice("calendar")
		hideCompleted, _ := cmd.Flags().GetBool("hide-completed")
		all, _ := cmd.Flags().GetBool("all")

		opts := taskstore.FilterOptions{
			ActiveCalendars:      cals,
			Categories:           cats,
			SearchTerm:           search,
			HideCompleted:        hideCompleted || (!all && a.cfg.HideCompleted),
			UrgentDaysHorizon:    a.cfg.UrgentDaysHorizon,
			UrgentPriorityMin:    uint8(a.cfg.UrgentPriorityThreshold),
			StartGracePeriodDays: a.cfg.StartGracePeriodDays,
			Now:                  time.Now(),
		}

		tasks := a.store.Filter(opts)
		printTasks(tasks)
		return nil
	},
}

func init() {
	listCmd.Flags().String("search", "", "search predicate, e.g. '!>5 due:today'")
	listCmd.Flags().StringSlice("category", nil, "only tasks in these categories")
	listCmd.Flags().StringSlice("calendar", nil, "only tasks from these calendar hrefs")
	listCmd.Flags().Bool("hide-completed", false, "hide completed/cancelled tasks")
	listCmd.Flags().Bool("all", false, "ignore the configured hide_completed default")
	rootCmd.AddCommand(listCmd)
}
