package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/untoldecay/cfaitgo/internal/alarmindex"
)

var alarmsCmd = &cobra.Command{
	Use:   "alarms",
	Short: "Inspect and rebuild the alarm index",
}

var alarmsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show alarms currently due within the firing window",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := currentApp
		idx := a.alarms.Load()
		firing := idx.GetFiringAlarms(time.Now())
		if len(firing) == 0 {
			fmt.Println("no alarms firing")
			return nil
		}
		w := newTable()
		fmt.Fprintln(w, "TASK\tTRIGGER\tIMPLICIT\tDESCRIPTION")
		for _, e := range firing {
			t := time.UnixMilli(e.TriggerMS).Local().Format("2006-01-02 15:04")
			fmt.Fprintf(w, "%s\t%s\t%v\t%s\n", e.TaskTitle, t, e.IsImplicit, e.Description)
		}
		w.Flush()
		return nil
	},
}

var alarmsRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Recompute the alarm index from the current task set",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := currentApp
		now := time.Now()
		idx := alarmindex.RebuildFromTasks(a.store.AllCalendars(), a.cfg.AutoRemindersEnabled, a.cfg.DefaultReminderTime, now)
		idx = idx.PruneOldAlarms(now)
		if err := a.alarms.Save(idx); err != nil {
			return err
		}
		fmt.Printf("rebuilt alarm index: %d entries\n", len(idx.Alarms))
		return nil
	},
}

func init() {
	alarmsCmd.AddCommand(alarmsListCmd, alarmsRebuildCmd)
	rootCmd.AddCommand(alarmsCmd)
}
