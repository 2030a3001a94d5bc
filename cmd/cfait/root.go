package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/untoldecay/cfaitgo/internal/debug"
)

var debugFlag bool

// currentApp is built once per process, in PersistentPreRunE, and reused by
// every subcommand's RunE (mirroring the teacher's package-level rootCtx).
var currentApp *app

var rootCmd = &cobra.Command{
	Use:           "cfait",
	Short:         "Offline-first CalDAV task manager",
	Long:          "cfait keeps a local mirror of your VTODO calendars, queues mutations made while offline, and drains them against the server when a sync runs.",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if debugFlag {
			os.Setenv("CFAIT_DEBUG", "1")
		}
		a, err := newApp()
		if err != nil {
			return err
		}
		debug.Init(a.paths.DataDir)
		currentApp = a
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable verbose debug logging to debug.log")
}
