package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/untoldecay/cfaitgo/internal/model"
)

var calendarsCmd = &cobra.Command{
	Use:   "calendars",
	Short: "List and manage known calendars",
}

var calendarsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List local and remote calendars",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := currentApp
		locals, err := a.registry.LoadLocal()
		if err != nil {
			return err
		}
		remotes, err := a.registry.LoadRemote()
		if err != nil {
			return err
		}
		w := newTable()
		fmt.Fprintln(w, "HREF\tNAME\tKIND")
		for _, c := range locals {
			fmt.Fprintf(w, "%s\t%s\tlocal\n", c.Href, c.Name)
		}
		for _, c := range remotes {
			fmt.Fprintf(w, "%s\t%s\tremote\n", c.Href, c.Name)
		}
		w.Flush()
		return nil
	},
}

var calendarsAddLocalCmd = &cobra.Command{
	Use:   "add-local <name>",
	Short: "Register a new purely local calendar",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := currentApp
		locals, err := a.registry.LoadLocal()
		if err != nil {
			return err
		}
		href := model.LocalSchemePrefix + uuid.NewString()
		locals = append(locals, model.CalendarListEntry{
			Name:    args[0],
			Href:    href,
			IsLocal: true,
		})
		if err := a.registry.SaveLocal(locals); err != nil {
			return err
		}
		fmt.Printf("created local calendar %q at %s\n", args[0], href)
		return nil
	},
}

func init() {
	calendarsCmd.AddCommand(calendarsListCmd, calendarsAddLocalCmd)
	rootCmd.AddCommand(calendarsCmd)
}
