package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/untoldecay/cfaitgo/internal/model"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Create, edit, and transition tasks",
}

var taskCreateCmd = &cobra.Command{
	Use:   "create <summary>",
	Short: "Create a new task",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := currentApp
		dueFlag, _ := cmd.Flags().GetString("due")
		priFlag, _ := cmd.Flags().GetInt("priority")
		calFlag, _ := cmd.Flags().GetString("calendar")
		catsFlag, _ := cmd.Flags().GetStringSlice("category")
		parentFlag, _ := cmd.Flags().GetString("parent")

		due, err := parseDueFlag(dueFlag)
		if err != nil {
			return err
		}

		href := calFlag
		if href == "" {
			href = resolveCalendarHref(a.cfg)
		}

		t := &model.Task{
			UID:          uuid.NewString(),
			Summary:      strings.Join(args, " "),
			Status:       model.NeedsAction,
			Priority:     uint8(priFlag),
			Due:          due,
			Categories:   catsFlag,
			CalendarHref: href,
		}
		if parentFlag != "" {
			pUID, err := resolveUID(a, parentFlag)
			if err != nil {
				return err
			}
			t.ParentUID = pUID
		}

		if err := a.controller.CreateTask(t); err != nil {
			return err
		}
		fmt.Printf("created %s: %s\n", shortUID(t.UID), t.Summary)
		return nil
	},
}

var taskUpdateCmd = &cobra.Command{
	Use:   "update <uid>",
	Short: "Edit a task's fields",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := currentApp
		uid, err := resolveUID(a, args[0])
		if err != nil {
			return err
		}
		t, ok := a.store.GetTask(uid)
		if !ok {
			return fmt.Errorf("no task %q", args[0])
		}
		t = t.Clone()

		if s, _ := cmd.Flags().GetString("summary"); s != "" {
			t.Summary = s
		}
		if s, _ := cmd.Flags().GetString("description"); cmd.Flags().Changed("description") {
			t.Description = s
		}
		if cmd.Flags().Changed("priority") {
			p, _ := cmd.Flags().GetInt("priority")
			t.Priority = uint8(p)
		}
		if cmd.Flags().Changed("due") {
			s, _ := cmd.Flags().GetString("due")
			due, err := parseDueFlag(s)
			if err != nil {
				return err
			}
			t.Due = due
		}
		if cmd.Flags().Changed("category") {
			cats, _ := cmd.Flags().GetStringSlice("category")
			t.Categories = cats
		}

		if err := a.controller.UpdateTask(t); err != nil {
			return err
		}
		fmt.Printf("updated %s\n", shortUID(t.UID))
		return nil
	},
}

var taskCloseCmd = &cobra.Command{
	Use:   "close <uid>",
	Short: "Mark a task completed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return transitionTask(args[0], model.Completed)
	},
}

var taskCancelCmd = &cobra.Command{
	Use:   "cancel <uid>",
	Short: "Mark a task cancelled",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return transitionTask(args[0], model.Cancelled)
	},
}

var taskReopenCmd = &cobra.Command{
	Use:   "reopen <uid>",
	Short: "Return a completed or cancelled task to needs-action",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return transitionTask(args[0], model.NeedsAction)
	},
}

func transitionTask(rawUID string, status model.TaskStatus) error {
	a := currentApp
	uid, err := resolveUID(a, rawUID)
	if err != nil {
		return err
	}
	primary, secondary, _, err := a.controller.SetStatus(uid, status)
	if err != nil {
		return err
	}
	fmt.Printf("%s -> %s\n", shortUID(primary.UID), formatStatus(primary.Status))
	if secondary != nil {
		fmt.Printf("spawned next occurrence %s due %s\n", shortUID(secondary.UID), formatDue(secondary))
	}
	return nil
}

var taskDeleteCmd = &cobra.Command{
	Use:   "delete <uid>",
	Short: "Delete a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := currentApp
		uid, err := resolveUID(a, args[0])
		if err != nil {
			return err
		}
		children, err := a.controller.DeleteTask(uid)
		if err != nil {
			return err
		}
		fmt.Printf("deleted %s\n", shortUID(uid))
		if len(children) > 0 {
			fmt.Printf("warning: %d child task(s) are now orphaned\n", len(children))
		}
		return nil
	},
}

var taskMoveCmd = &cobra.Command{
	Use:   "move <uid> <calendar-href>",
	Short: "Move a task to a different calendar",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := currentApp
		uid, err := resolveUID(a, args[0])
		if err != nil {
			return err
		}
		t, err := a.controller.MoveTask(uid, args[1])
		if err != nil {
			return err
		}
		fmt.Printf("moved %s to %s\n", shortUID(t.UID), t.CalendarHref)
		return nil
	},
}

var taskStartCmd = &cobra.Command{
	Use:   "start <uid>",
	Short: "Begin a tracked work session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := currentApp
		uid, err := resolveUID(a, args[0])
		if err != nil {
			return err
		}
		t, err := a.controller.StartTask(uid)
		if err != nil {
			return err
		}
		fmt.Printf("started %s\n", shortUID(t.UID))
		return nil
	},
}

var taskPauseCmd = &cobra.Command{
	Use:   "pause <uid>",
	Short: "Pause the current work session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := currentApp
		uid, err := resolveUID(a, args[0])
		if err != nil {
			return err
		}
		t, err := a.controller.PauseTask(uid)
		if err != nil {
			return err
		}
		fmt.Printf("paused %s, time spent %s\n", shortUID(t.UID), strconv.FormatInt(t.TimeSpentSeconds, 10)+"s")
		return nil
	},
}

var taskStopCmd = &cobra.Command{
	Use:   "stop <uid>",
	Short: "Stop the current work session and clear progress",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := currentApp
		uid, err := resolveUID(a, args[0])
		if err != nil {
			return err
		}
		t, err := a.controller.StopTask(uid)
		if err != nil {
			return err
		}
		fmt.Printf("stopped %s\n", shortUID(t.UID))
		return nil
	},
}

func init() {
	taskCreateCmd.Flags().String("due", "", "due date (YYYY-MM-DD or RFC3339)")
	taskCreateCmd.Flags().Int("priority", 0, "priority 0-9, 0 means unset")
	taskCreateCmd.Flags().String("calendar", "", "calendar href, defaults to the configured default")
	taskCreateCmd.Flags().StringSlice("category", nil, "one or more categories")
	taskCreateCmd.Flags().String("parent", "", "parent task uid")

	taskUpdateCmd.Flags().String("summary", "", "new summary")
	taskUpdateCmd.Flags().String("description", "", "new description")
	taskUpdateCmd.Flags().Int("priority", 0, "priority 0-9")
	taskUpdateCmd.Flags().String("due", "", "due date (YYYY-MM-DD or RFC3339)")
	taskUpdateCmd.Flags().StringSlice("category", nil, "replace categories")

	taskCmd.AddCommand(taskCreateCmd, taskUpdateCmd, taskCloseCmd, taskCancelCmd,
		taskReopenCmd, taskDeleteCmd, taskMoveCmd, taskStartCmd, taskPauseCmd, taskStopCmd)
	rootCmd.AddCommand(taskCmd)
}
