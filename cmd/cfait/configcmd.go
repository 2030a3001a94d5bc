package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/untoldecay/cfaitgo/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View and edit config.toml",
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print every recognized config option",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := currentApp
		c := a.cfg
		fmt.Printf("url = %q\n", c.URL)
		fmt.Printf("username = %q\n", c.Username)
		fmt.Printf("default_calendar = %q\n", c.DefaultCalendar)
		fmt.Printf("allow_insecure_certs = %v\n", c.AllowInsecureCerts)
		fmt.Printf("hide_completed = %v\n", c.HideCompleted)
		fmt.Printf("sort_cutoff_months = %d\n", c.SortCutoffMonths)
		fmt.Printf("urgent_days_horizon = %d\n", c.UrgentDaysHorizon)
		fmt.Printf("urgent_priority_threshold = %d\n", c.UrgentPriorityThreshold)
		fmt.Printf("start_grace_period_days = %d\n", c.StartGracePeriodDays)
		fmt.Printf("auto_reminders_enabled = %v\n", c.AutoRemindersEnabled)
		fmt.Printf("default_reminder_time = %q\n", c.DefaultReminderTime)
		fmt.Printf("snooze_short_mins = %d\n", c.SnoozeShortMins)
		fmt.Printf("snooze_long_mins = %d\n", c.SnoozeLongMins)
		fmt.Printf("create_events_for_tasks = %v\n", c.CreateEventsForTasks)
		fmt.Printf("delete_events_on_completion = %v\n", c.DeleteEventsOnCompletion)
		fmt.Printf("trash_retention_days = %d\n", c.TrashRetentionDays)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set one config option and save config.toml",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := currentApp
		if err := setConfigField(&a.cfg, args[0], args[1]); err != nil {
			return err
		}
		if err := config.Save(a.paths, a.cfg); err != nil {
			return err
		}
		fmt.Printf("%s = %s\n", args[0], args[1])
		return nil
	},
}

// configLoginCmd prompts for CalDAV credentials without echoing the
// password to the terminal, then saves them to config.toml.
var configLoginCmd = &cobra.Command{
	Use:   "login <url> <username>",
	Short: "Save CalDAV server credentials",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := currentApp
		fmt.Print("password: ")
		pwBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("reading password: %w", err)
		}
		a.cfg.URL = args[0]
		a.cfg.Username = args[1]
		a.cfg.Password = string(pwBytes)
		if err := config.Save(a.paths, a.cfg); err != nil {
			return err
		}
		fmt.Println("credentials saved")
		return nil
	},
}

func setConfigField(c *config.Config, key, value string) error {
	switch key {
	case "url":
		c.URL = value
	case "username":
		c.Username = value
	case "default_calendar":
		c.DefaultCalendar = value
	case "allow_insecure_certs":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		c.AllowInsecureCerts = b
	case "hide_completed":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		c.HideCompleted = b
	case "sort_cutoff_months":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		c.SortCutoffMonths = n
	case "urgent_days_horizon":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		c.UrgentDaysHorizon = n
	case "urgent_priority_threshold":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		c.UrgentPriorityThreshold = n
	case "start_grace_period_days":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		c.StartGracePeriodDays = n
	case "auto_reminders_enabled":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		c.AutoRemindersEnabled = b
	case "default_reminder_time":
		c.DefaultReminderTime = value
	case "snooze_short_mins":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		c.SnoozeShortMins = n
	case "snooze_long_mins":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		c.SnoozeLongMins = n
	case "create_events_for_tasks":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		c.CreateEventsForTasks = b
	case "delete_events_on_completion":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		c.DeleteEventsOnCompletion = b
	case "trash_retention_days":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		c.TrashRetentionDays = n
	default:
		return fmt.Errorf("unrecognized config key %q", key)
	}
	return nil
}

func init() {
	configCmd.AddCommand(configListCmd, configSetCmd, configLoginCmd)
	rootCmd.AddCommand(configCmd)
}
