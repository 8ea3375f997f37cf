package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/metalagman/taskflow/internal/lockfile"
	"github.com/metalagman/taskflow/internal/reminder"
	"github.com/spf13/cobra"
)

func reminderCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reminder",
		Short: "Manage task reminders",
	}
	cmd.AddCommand(reminderAddCmd(opts))
	cmd.AddCommand(reminderListCmd(opts))
	cmd.AddCommand(reminderSnoozeCmd(opts))
	cmd.AddCommand(reminderDeleteCmd(opts))
	cmd.AddCommand(reminderScanCmd(opts))
	return cmd
}

func reminderAddCmd(opts *options) *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "add <task-id>",
		Short: "Schedule a reminder for the acting user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			when, err := parseWhen(at)
			if err != nil {
				return err
			}
			return withApp(opts.cfg, func(a *app) error {
				created, err := a.reminders.Create(cmd.Context(), reminder.NewReminder{
					TaskID:   args[0],
					UserID:   opts.actor(),
					RemindAt: when,
				})
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), created.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "fire time")
	_ = cmd.MarkFlagRequired("at")
	return cmd
}

func reminderListCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the acting user's reminders",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(opts.cfg, func(a *app) error {
				items, err := a.reminders.ListForUser(cmd.Context(), opts.actor())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(items) == 0 {
					_, _ = fmt.Fprintln(out, "no reminders")
					return nil
				}
				_, _ = fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("%-36s  %-36s  %-16s  %-16s  %s", "ID", "TASK", "AT", "SNOOZED UNTIL", "STATE")))
				now := time.Now()
				for _, r := range items {
					state := "pending"
					switch {
					case r.Sent:
						state = "sent"
					case r.Snoozed(now):
						state = "snoozed"
					}
					_, _ = fmt.Fprintf(out, "%-36s  %-36s  %-16s  %-16s  %s\n", r.ID, r.TaskID, formatDue(r.RemindAt), formatDue(r.SnoozedUntil), state)
				}
				return nil
			})
		},
	}
}

func reminderSnoozeCmd(opts *options) *cobra.Command {
	var until string
	var forDur time.Duration
	cmd := &cobra.Command{
		Use:   "snooze <reminder-id>",
		Short: "Suppress a reminder until a later time",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var when time.Time
			switch {
			case until != "":
				t, err := parseWhen(until)
				if err != nil {
					return err
				}
				when = t
			case forDur > 0:
				when = time.Now().Add(forDur)
			default:
				return fmt.Errorf("either --until or --for is required")
			}
			return withApp(opts.cfg, func(a *app) error {
				r, err := a.reminders.Snooze(cmd.Context(), args[0], when)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "reminder %s snoozed until %s\n", r.ID, formatDue(r.SnoozedUntil))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&until, "until", "", "snooze until this time")
	cmd.Flags().DurationVar(&forDur, "for", 0, "snooze for a duration, e.g. 30m")
	return cmd
}

func reminderDeleteCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <reminder-id>",
		Short: "Delete a reminder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts.cfg, func(a *app) error {
				if err := a.reminders.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "reminder %s deleted\n", args[0])
				return nil
			})
		},
	}
}

func reminderScanCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Deliver due reminders once and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			lock, ok, err := lockfile.TryAcquire(lockDir(opts.cfg), schedulerLock)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("reminders are being delivered by another process")
			}
			defer func() { _ = lock.Release() }()

			return withApp(opts.cfg, func(a *app) error {
				res, err := newScheduler(a, opts.cfg).RunOnce(cmd.Context(), time.Now())
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			})
		},
	}
}
