package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Drain the action journal against the server and refetch calendars",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := currentApp
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		warnings, err := a.runSync(ctx)
		for _, w := range warnings {
			fmt.Println("warning:", w)
		}
		if err != nil {
			return err
		}
		fmt.Println("sync complete")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
