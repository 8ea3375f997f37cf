package main

import (
	"fmt"
	"time"

	"github.com/metalagman/taskflow/internal/timeentry"
	"github.com/spf13/cobra"
)

func timeCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "time",
		Short: "Track time spent on tasks",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "start <task-id>",
		Short: "Start a time entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts.cfg, func(a *app) error {
				e, err := a.timeEntries.Start(cmd.Context(), args[0], opts.actor())
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), e.ID)
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "stop <entry-id>",
		Short: "Stop a running time entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts.cfg, func(a *app) error {
				e, err := a.timeEntries.Stop(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "entry %s stopped after %s\n", e.ID, entryDuration(e))
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list <task-id>",
		Short: "List time entries of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts.cfg, func(a *app) error {
				items, err := a.timeEntries.ListForTask(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				var total time.Duration
				_, _ = fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("%-36s  %-12s  %-16s  %s", "ID", "USER", "STARTED", "DURATION")))
				for _, e := range items {
					started := e.StartedAt
					_, _ = fmt.Fprintf(out, "%-36s  %-12s  %-16s  %s\n", e.ID, e.UserID, formatDue(&started), entryDuration(e))
					if e.DurationSeconds != nil {
						total += time.Duration(*e.DurationSeconds) * time.Second
					}
				}
				_, _ = fmt.Fprintf(out, "total %s\n", total)
				return nil
			})
		},
	})
	return cmd
}

func entryDuration(e timeentry.Entry) string {
	if e.DurationSeconds == nil {
		return "running"
	}
	return (time.Duration(*e.DurationSeconds) * time.Second).String()
}
