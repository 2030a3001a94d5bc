package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/untoldecay/cfaitgo/internal/model"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Report the health of local state: paths, journal, load gates",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := currentApp

		fmt.Println("data dir:", a.paths.DataDir)
		fmt.Println("config dir:", a.paths.ConfigDir)
		fmt.Println("cache dir:", a.paths.CacheDir)

		if a.cfg.URL == "" {
			fmt.Println("caldav: not configured (local:// only)")
		} else {
			fmt.Printf("caldav: %s as %s\n", a.cfg.URL, a.cfg.Username)
		}

		j := a.journal.Load()
		fmt.Printf("journal: %d queued action(s)\n", len(j.Queue))

		if !a.local.CanSave(model.LocalDefaultHref) {
			fmt.Println("WARNING: default local calendar is in a failed load state; saves are blocked until repaired")
		} else {
			fmt.Println("default local calendar: ok")
		}

		locals, err := a.registry.LoadLocal()
		if err != nil {
			return err
		}
		remotes, err := a.registry.LoadRemote()
		if err != nil {
			return err
		}
		fmt.Printf("calendars: %d local, %d remote\n", len(locals), len(remotes))

		idx := a.alarms.Load()
		fmt.Printf("alarm index: %d entries\n", len(idx.Alarms))

		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
