package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/metalagman/taskflow/internal/task"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func taskCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
	}
	cmd.AddCommand(taskAddCmd(opts))
	cmd.AddCommand(taskListCmd(opts))
	cmd.AddCommand(taskReadyCmd(opts))
	cmd.AddCommand(taskShowCmd(opts))
	cmd.AddCommand(taskUpdateCmd(opts))
	cmd.AddCommand(taskDoneCmd(opts))
	cmd.AddCommand(taskDeleteCmd(opts))
	cmd.AddCommand(taskLinkCmd(opts))
	cmd.AddCommand(taskUnlinkCmd(opts))
	return cmd
}

// parseWhen accepts RFC 3339 timestamps, "2006-01-02 15:04" and bare dates in
// local time.
func parseWhen(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	for _, layout := range []string{timeFormat, "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q: use RFC 3339, %q or YYYY-MM-DD", value, timeFormat)
}

func taskAddCmd(opts *options) *cobra.Command {
	var (
		description string
		priority    string
		due         string
		assignee    string
		recurrence  string
	)
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Add a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields := task.Fields{
				Title:       strings.Join(args, " "),
				Description: description,
				Priority:    task.Priority(priority),
				CreatorID:   opts.actor(),
				AssigneeID:  assignee,
				Recurrence:  task.Recurrence(recurrence),
			}
			if due != "" {
				t, err := parseWhen(due)
				if err != nil {
					return err
				}
				fields.DueAt = &t
			}
			return withApp(opts.cfg, func(a *app) error {
				created, err := a.tasks.Create(cmd.Context(), fields)
				if err != nil {
					return err
				}
				log.Debug().Str("task_id", created.ID).Msg("task added")
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), created.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "task description (markdown)")
	cmd.Flags().StringVarP(&priority, "priority", "p", "", "priority (high|medium|low)")
	cmd.Flags().StringVar(&due, "due", "", "due time")
	cmd.Flags().StringVar(&assignee, "assignee", "", "assignee user id")
	cmd.Flags().StringVar(&recurrence, "repeat", "", "recurrence (daily|weekly|monthly)")
	return cmd
}

func taskListCmd(opts *options) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(opts.cfg, func(a *app) error {
				items, err := a.tasks.List(cmd.Context())
				if err != nil {
					return err
				}
				if !all {
					open := items[:0]
					for _, t := range items {
						if !t.Completed {
							open = append(open, t)
						}
					}
					items = open
				}
				writeTaskTable(cmd.OutOrStdout(), items)
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "include completed tasks")
	return cmd
}

func taskReadyCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "ready",
		Short: "List open tasks whose prerequisites are complete",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(opts.cfg, func(a *app) error {
				items, err := a.tasks.Ready(cmd.Context())
				if err != nil {
					return err
				}
				writeTaskTable(cmd.OutOrStdout(), items)
				return nil
			})
		},
	}
}

func taskShowCmd(opts *options) *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts.cfg, func(a *app) error {
				ctx := cmd.Context()
				t, err := a.tasks.Get(ctx, args[0])
				if err != nil {
					return err
				}
				deps, err := a.tasks.Dependencies(ctx, t.ID)
				if err != nil {
					return err
				}
				md := taskMarkdown(t, deps)
				if !raw {
					md = renderMarkdown(md)
				}
				_, _ = fmt.Fprint(cmd.OutOrStdout(), md)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print markdown without rendering")
	return cmd
}

func taskUpdateCmd(opts *options) *cobra.Command {
	var (
		title       string
		description string
		priority    string
		due         string
		assignee    string
		recurrence  string
		completed   bool
	)
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update task fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			var patch task.Patch
			if flags.Changed("title") {
				patch.Title = &title
			}
			if flags.Changed("description") {
				patch.Description = &description
			}
			if flags.Changed("priority") {
				p := task.Priority(priority)
				patch.Priority = &p
			}
			if flags.Changed("due") {
				if due == "" || due == "none" {
					patch.ClearDueAt = true
				} else {
					t, err := parseWhen(due)
					if err != nil {
						return err
					}
					patch.DueAt = &t
				}
			}
			if flags.Changed("assignee") {
				patch.AssigneeID = &assignee
			}
			if flags.Changed("repeat") {
				r := task.Recurrence(recurrence)
				patch.Recurrence = &r
			}
			if flags.Changed("completed") {
				patch.Completed = &completed
			}
			return withApp(opts.cfg, func(a *app) error {
				res, err := a.tasks.Update(cmd.Context(), args[0], patch)
				if err != nil {
					return err
				}
				printUpdate(cmd, res)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVarP(&description, "description", "d", "", "new description")
	cmd.Flags().StringVarP(&priority, "priority", "p", "", "new priority (high|medium|low)")
	cmd.Flags().StringVar(&due, "due", "", `new due time, or "none" to clear`)
	cmd.Flags().StringVar(&assignee, "assignee", "", "new assignee user id")
	cmd.Flags().StringVar(&recurrence, "repeat", "", "new recurrence (daily|weekly|monthly, empty to stop)")
	cmd.Flags().BoolVar(&completed, "completed", false, "set the completed flag")
	return cmd
}

func taskDoneCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "done <id>",
		Short: "Mark a task as completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts.cfg, func(a *app) error {
				res, err := a.tasks.Complete(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printUpdate(cmd, res)
				return nil
			})
		},
	}
}

func printUpdate(cmd *cobra.Command, res task.UpdateResult) {
	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintln(out, okStyle.Render(fmt.Sprintf("task %s updated", res.Task.ID)))
	if res.Successor != nil {
		_, _ = fmt.Fprintf(out, "next %s occurrence %s due %s\n", res.Successor.Recurrence, res.Successor.ID, formatDue(res.Successor.DueAt))
	}
}

func taskDeleteCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts.cfg, func(a *app) error {
				if err := a.tasks.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "task %s deleted\n", args[0])
				return nil
			})
		},
	}
}

func taskLinkCmd(opts *options) *cobra.Command {
	var dependsOn []string
	cmd := &cobra.Command{
		Use:   "link <task-id>",
		Short: "Make a task depend on other tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID := args[0]
			if len(dependsOn) == 0 {
				return fmt.Errorf("at least one --depends-on id is required")
			}
			return withApp(opts.cfg, func(a *app) error {
				for _, dep := range dependsOn {
					if dep == taskID {
						return fmt.Errorf("task cannot depend on itself")
					}
					if err := a.tasks.AddDependency(cmd.Context(), taskID, dep); err != nil {
						return err
					}
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "task %s linked\n", taskID)
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&dependsOn, "depends-on", nil, "task id this task depends on (repeatable)")
	return cmd
}

func taskUnlinkCmd(opts *options) *cobra.Command {
	var dependsOn []string
	cmd := &cobra.Command{
		Use:   "unlink <task-id>",
		Short: "Remove task dependencies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(dependsOn) == 0 {
				return fmt.Errorf("at least one --depends-on id is required")
			}
			return withApp(opts.cfg, func(a *app) error {
				for _, dep := range dependsOn {
					if err := a.tasks.RemoveDependency(cmd.Context(), args[0], dep); err != nil {
						return err
					}
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "task %s unlinked\n", args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&dependsOn, "depends-on", nil, "dependency id to remove (repeatable)")
	return cmd
}
