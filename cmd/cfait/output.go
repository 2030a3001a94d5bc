package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/untoldecay/cfaitgo/internal/config"
	"github.com/untoldecay/cfaitgo/internal/model"
)

func newTable() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
}

func shortUID(uid string) string {
	if len(uid) <= 8 {
		return uid
	}
	return uid[:8]
}

func formatDue(t *model.Task) string {
	if t.Due == nil {
		return "-"
	}
	if t.Due.Kind == model.AllDay {
		return t.Due.Date.Format("2006-01-02")
	}
	return t.Due.Time.Local().Format("2006-01-02 15:04")
}

func formatStatus(s model.TaskStatus) string {
	switch s {
	case model.Completed:
		return "done"
	case model.Cancelled:
		return "cancelled"
	case model.InProcess:
		return "in-process"
	default:
		return "open"
	}
}

// parseDueFlag accepts either a bare date (all-day) or an RFC3339 instant.
func parseDueFlag(s string) (*model.DateType, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		d := model.NewAllDay(t)
		return &d, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: use YYYY-MM-DD or RFC3339", s)
	}
	d := model.NewSpecific(t)
	return &d, nil
}

func resolveCalendarHref(cfg config.Config) string {
	if cfg.DefaultCalendar != "" {
		return cfg.DefaultCalendar
	}
	return model.LocalDefaultHref
}

func printTasks(tasks []*model.Task) {
	if len(tasks) == 0 {
		fmt.Println("no matching tasks")
		return
	}
	w := newTable()
	fmt.Fprintln(w, "UID\tSTATUS\tPRI\tDUE\tSUMMARY")
	for _, t := range tasks {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", shortUID(t.UID), formatStatus(t.Status), t.Priority, formatDue(t), t.Summary)
	}
	w.Flush()
}

// resolveUID expands a short (8-char) uid prefix typed on the CLI to the
// full stored uid, erroring on an ambiguous or absent match.
func resolveUID(a *app, prefix string) (string, error) {
	if _, ok := a.store.GetTask(prefix); ok {
		return prefix, nil
	}
	var match string
	for _, href := range knownCalendarHrefs(a) {
		for _, t := range a.store.AllInCalendar(href) {
			if len(t.UID) >= len(prefix) && t.UID[:len(prefix)] == prefix {
				if match != "" && match != t.UID {
					return "", fmt.Errorf("uid prefix %q is ambiguous", prefix)
				}
				match = t.UID
			}
		}
	}
	if match == "" {
		return "", fmt.Errorf("no task matching uid %q", prefix)
	}
	return match, nil
}

func knownCalendarHrefs(a *app) []string {
	hrefs := []string{model.LocalDefaultHref}
	if locals, err := a.registry.LoadLocal(); err == nil {
		for _, c := range locals {
			hrefs = append(hrefs, c.Href)
		}
	}
	if remotes, err := a.registry.LoadRemote(); err == nil {
		for _, c := range remotes {
			hrefs = append(hrefs, c.Href)
		}
	}
	return hrefs
}
