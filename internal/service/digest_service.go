package service

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"task-planner/internal/logging"
	"task-planner/internal/metrics"
	"task-planner/internal/model"
)

// DigestService builds periodic summaries of pending work.
type DigestService struct {
	tasks     *TaskService
	reminders *ReminderService
	profiles  *ProfileService
	notifier  Notifier
	clock     Clock
	metrics   *metrics.Metrics
	logger    logging.Logger
}

func NewDigestService(tasks *TaskService, reminders *ReminderService, profiles *ProfileService, notifier Notifier, clock Clock, m *metrics.Metrics, logger logging.Logger) *DigestService {
	if clock == nil {
		clock = SystemClock{}
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &DigestService{
		tasks:     tasks,
		reminders: reminders,
		profiles:  profiles,
		notifier:  notifier,
		clock:     clock,
		metrics:   m,
		logger:    logging.OrNop(logger),
	}
}

// Summary renders the owner's open tasks, delegated work and upcoming
// reminders. ok is false when there is nothing open.
func (s *DigestService) Summary(ctx context.Context, ownerID int64) (text string, ok bool, err error) {
	owned, err := s.tasks.ListOwned(ctx, ownerID)
	if err != nil {
		return "", false, err
	}
	assigned, err := s.tasks.ListAssignedTo(ctx, ownerID)
	if err != nil {
		return "", false, err
	}
	reminders, err := s.reminders.ListPending(ctx, ownerID)
	if err != nil {
		return "", false, err
	}
	loc, err := s.profiles.Location(ctx, ownerID)
	if err != nil {
		return "", false, err
	}
	now := s.clock.Now().In(loc)

	var pending []model.Task
	for _, t := range owned {
		if !t.Completed {
			pending = append(pending, t)
		}
	}
	if len(pending) == 0 && len(assigned) == 0 {
		return "", false, nil
	}

	nextReminder := make(map[int]time.Time)
	for _, r := range reminders {
		if at, seen := nextReminder[r.TaskID]; !seen || r.FireAt.Before(at) {
			nextReminder[r.TaskID] = r.FireAt
		}
	}

	var builder strings.Builder
	builder.WriteString("📋 <b>Task digest</b>\n")
	builder.WriteString(fmt.Sprintf("🗓 %s\n\n", now.Format("Jan 2, 2006")))

	builder.WriteString("🔥 <b>Open tasks</b>\n")
	if len(pending) == 0 {
		builder.WriteString("• nothing open\n")
	} else {
		for _, task := range pending {
			builder.WriteString(s.formatTask(ctx, task, nextReminder, now))
		}
	}

	if len(assigned) > 0 {
		builder.WriteString("\n🤝 <b>Assigned to you</b>\n")
		for _, at := range assigned {
			builder.WriteString(fmt.Sprintf("• #%d %s <i>(from %s)</i>\n",
				at.Task.TaskID,
				html.EscapeString(at.Task.Description),
				html.EscapeString(s.profiles.DisplayName(ctx, at.OwnerID))))
		}
	}

	return strings.TrimSpace(builder.String()), true, nil
}

// RunOnce sends a digest to every owner with open work.
func (s *DigestService) RunOnce(ctx context.Context) error {
	s.metrics.DigestRun()
	lists, err := s.tasks.ListOwners(ctx)
	if err != nil {
		return err
	}
	sent := 0
	for _, list := range lists {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		text, ok, err := s.Summary(ctx, list.OwnerID)
		if err != nil {
			s.logger.Warn("digest: build summary for %d: %v", list.OwnerID, err)
			continue
		}
		if !ok {
			continue
		}
		err = s.notifier.Deliver(ctx, list.OwnerID, Notification{Kind: KindDigest, Title: "Task digest", Body: text})
		s.metrics.Delivery(string(KindDigest), err)
		if err != nil {
			s.logger.Warn("digest: send to %d: %v", list.OwnerID, err)
			continue
		}
		sent++
	}
	s.logger.Info("digest: sent %d summaries", sent)
	return nil
}

func (s *DigestService) formatTask(ctx context.Context, task model.Task, nextReminder map[int]time.Time, now time.Time) string {
	var sb strings.Builder

	icon := "🟢"
	age := now.Sub(task.CreatedAt)
	switch {
	case task.IsAssigned():
		icon = "👤"
	case age >= 7*24*time.Hour:
		icon = "⚠️"
	case age >= 48*time.Hour:
		icon = "⏳"
	}

	sb.WriteString(fmt.Sprintf("%s #%d %s", icon, task.TaskID, html.EscapeString(strings.TrimSpace(task.Description))))

	if task.IsAssigned() {
		sb.WriteString(fmt.Sprintf("\n   🤝 with %s", html.EscapeString(s.profiles.DisplayName(ctx, task.AssignedTo))))
	}
	if at, ok := nextReminder[task.TaskID]; ok {
		sb.WriteString(fmt.Sprintf("\n   ⏰ %s", at.In(now.Location()).Format("Jan 2 15:04")))
	}
	if days := int(age.Hours() / 24); days > 0 {
		sb.WriteString(fmt.Sprintf("\n   📝 open for %d d.", days))
	}

	sb.WriteByte('\n')
	return sb.String()
}
