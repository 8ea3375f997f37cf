package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/metalagman/taskflow/internal/task"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	doneStyle   = lipgloss.NewStyle().Faint(true).Strikethrough(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))

	priorityStyles = map[task.Priority]lipgloss.Style{
		task.PriorityHigh:   lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		task.PriorityMedium: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		task.PriorityLow:    lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
	}
)

const timeFormat = "2006-01-02 15:04"

func formatDue(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format(timeFormat)
}

func status(t task.Task) string {
	if t.Completed {
		return "done"
	}
	return "open"
}

func writeTaskTable(w io.Writer, items []task.Task) {
	if len(items) == 0 {
		_, _ = fmt.Fprintln(w, "no tasks")
		return
	}
	_, _ = fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%-36s  %-6s  %-6s  %-16s  %s", "ID", "PRIO", "STATUS", "DUE", "TITLE")))
	for _, t := range items {
		prio := priorityStyles[t.Priority].Render(fmt.Sprintf("%-6s", t.Priority))
		title := t.Title
		if t.Recurrence != task.RecurrenceNone {
			title += " (" + string(t.Recurrence) + ")"
		}
		if t.Completed {
			title = doneStyle.Render(title)
		}
		_, _ = fmt.Fprintf(w, "%-36s  %s  %-6s  %-16s  %s\n", t.ID, prio, status(t), formatDue(t.DueAt), title)
	}
}

// taskMarkdown renders a task as a markdown document.
func taskMarkdown(t task.Task, deps []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", t.Title)
	fmt.Fprintf(&b, "- **ID:** `%s`\n", t.ID)
	fmt.Fprintf(&b, "- **Status:** %s\n", status(t))
	fmt.Fprintf(&b, "- **Priority:** %s\n", t.Priority)
	fmt.Fprintf(&b, "- **Due:** %s\n", formatDue(t.DueAt))
	if t.Recurrence != task.RecurrenceNone {
		fmt.Fprintf(&b, "- **Repeats:** %s\n", t.Recurrence)
	}
	if t.CreatorID != "" {
		fmt.Fprintf(&b, "- **Creator:** %s\n", t.CreatorID)
	}
	if t.AssigneeID != "" {
		fmt.Fprintf(&b, "- **Assignee:** %s\n", t.AssigneeID)
	}
	if len(deps) > 0 {
		quoted := make([]string, len(deps))
		for i, d := range deps {
			quoted[i] = "`" + d + "`"
		}
		fmt.Fprintf(&b, "- **Depends on:** %s\n", strings.Join(quoted, ", "))
	}
	if desc := strings.TrimSpace(t.Description); desc != "" {
		fmt.Fprintf(&b, "\n%s\n", desc)
	}
	return b.String()
}

func renderMarkdown(md string) string {
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}
