package bot

import (
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"task-planner/internal/model"
	"task-planner/internal/service"
)

const (
	iconOpen      = "🟢"
	iconDone      = "✅"
	iconDelegated = "👤"
	iconReminder  = "⏰"
	iconAssigned  = "🤝"
	iconError     = "❌"
	iconWarning   = "⚠️"
)

const helpText = `📋 <b>Task commands</b>

<code>add task Buy wood</code> – add a task
<code>view tasks</code> – your list, delegated tasks and reminders
<code>view assigned</code> – tasks other people assigned to you
<code>complete task #1</code> – mark a task done
<code>edit task #1 Buy oak wood</code> – change a description (omit the text to type it next)
<code>del task #1</code> – delete a task; later tasks move up
<code>del all tasks</code> – clear your list
<code>remind task #1 30m</code> – remind me later
<code>assign task #1 to 123456 with note by Friday</code> – delegate a task
<code>unassign task #1</code> – take a task back
<code>tasks set name Bob</code>, <code>tasks set timezone Europe/Berlin</code>, <code>tasks profile</code>

⏰ Times: <code>5m</code>, <code>2h</code>, <code>3d</code>, <code>tomorrow</code>, <code>tomorrow at 9am</code>, <code>today at 18:30</code>, <code>june 3 at 14:00</code>, <code>9pm</code>`

// messageFor turns a service error into a sentence for the user.
func messageFor(err error) string {
	var uerr *UsageError
	switch {
	case errors.As(err, &uerr):
		return fmt.Sprintf("Usage: <code>%s</code>", html.EscapeString(uerr.Usage))
	case errors.Is(err, ErrUnknownCommand):
		return "I don't know that command. Type <code>help tasks</code> to see what I can do."
	case errors.Is(err, service.ErrInPast):
		return iconReminder + " That time has already passed. Pick a moment in the future."
	case errors.Is(err, service.ErrParse):
		return iconError + " I couldn't read that time. Try <code>30m</code>, <code>tomorrow at 9am</code> or <code>june 3 at 14:00</code>."
	case errors.Is(err, service.ErrNotFound):
		return iconError + " There is no such task."
	case errors.Is(err, service.ErrNotStarted):
		return iconWarning + " Reminders are still starting up. Try again in a moment."
	}

	switch service.ReasonOf(err) {
	case service.ReasonSelfAssign:
		return iconError + " You can't assign a task to yourself."
	case service.ReasonAlreadyAssigned:
		return iconError + " That task is already assigned to this person."
	case service.ReasonAssignCompleted:
		return iconError + " That task is already done, so it can't be assigned."
	case service.ReasonUnknownAssignee:
		return iconError + " I don't know that user yet. They need to message me once first."
	case service.ReasonNotAssigned:
		return iconError + " That task isn't assigned to anyone."
	case service.ReasonLimitExceeded:
		return iconError + " Your list is full. Complete or delete something first."
	case service.ReasonTaskCompleted:
		return iconError + " That task is already done."
	case service.ReasonNotParticipant:
		return iconError + " Only the owner or the assignee can do that."
	case service.ReasonEmptyDescription:
		return iconError + " The task needs a description."
	case service.ReasonInvalidTimezone:
		return iconError + " Unknown timezone. Use an IANA name such as <code>Europe/Berlin</code>."
	case service.ReasonEmptyName:
		return iconError + " The name can't be empty."
	}

	return iconWarning + " Something went wrong on my side. Please try again."
}

// namer resolves display names while rendering.
type namer func(userID int64) string

func formatOverview(ov service.Overview, name namer, loc *time.Location) string {
	var sb strings.Builder

	open := 0
	for _, t := range ov.Tasks {
		if !t.Completed {
			open++
		}
	}
	sb.WriteString(fmt.Sprintf("📋 <b>Your tasks</b> (%d open, %d/%d)\n", open, len(ov.Tasks), ov.MaxTasks))
	if len(ov.Tasks) == 0 {
		sb.WriteString("Nothing yet. Add one with <code>add task …</code>\n")
	}

	reminders := make(map[int][]model.Reminder)
	for _, r := range ov.Reminders {
		reminders[r.TaskID] = append(reminders[r.TaskID], r)
	}
	for _, t := range ov.Tasks {
		sb.WriteString(formatTask(t, name))
		for _, r := range reminders[t.TaskID] {
			sb.WriteString(fmt.Sprintf("\n   %s %s", iconReminder, r.FireAt.In(loc).Format("Jan 2 15:04")))
		}
		sb.WriteByte('\n')
	}

	if len(ov.Assigned) > 0 {
		sb.WriteString("\n")
		sb.WriteString(formatAssigned(ov.Assigned, name))
	}
	return strings.TrimSpace(sb.String())
}

func formatTask(t model.Task, name namer) string {
	desc := html.EscapeString(t.Description)
	switch {
	case t.Completed:
		return fmt.Sprintf("%s %d. <s>%s</s>", iconDone, t.TaskID, desc)
	case t.IsAssigned():
		line := fmt.Sprintf("%s %d. %s → %s", iconDelegated, t.TaskID, desc, html.EscapeString(name(t.AssignedTo)))
		if t.AssignmentNote != "" {
			line += fmt.Sprintf("\n   <i>%s</i>", html.EscapeString(t.AssignmentNote))
		}
		return line
	default:
		return fmt.Sprintf("%s %d. %s", iconOpen, t.TaskID, desc)
	}
}

func formatAssigned(assigned []model.AssignedTask, name namer) string {
	if len(assigned) == 0 {
		return iconAssigned + " Nobody has assigned you anything."
	}
	var sb strings.Builder
	sb.WriteString(iconAssigned + " <b>Assigned to you</b>\n")
	for _, a := range assigned {
		sb.WriteString(fmt.Sprintf("• %s, task #%d: %s\n",
			html.EscapeString(name(a.OwnerID)), a.Task.TaskID, html.EscapeString(a.Task.Description)))
		if a.Task.AssignmentNote != "" {
			sb.WriteString(fmt.Sprintf("   <i>%s</i>\n", html.EscapeString(a.Task.AssignmentNote)))
		}
	}
	return strings.TrimSpace(sb.String())
}

func formatProfile(p model.Profile) string {
	return fmt.Sprintf("👤 <b>%s</b>\nID: <code>%d</code>\nTimezone: %s",
		html.EscapeString(p.DisplayName), p.UserID, html.EscapeString(p.Timezone))
}
