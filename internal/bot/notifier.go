package bot

import (
	"context"
	"fmt"
	"html"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"task-planner/internal/logging"
	"task-planner/internal/service"
)

var kindIcons = map[service.NotificationKind]string{
	service.KindReminder:   iconReminder,
	service.KindAssigned:   iconDelegated,
	service.KindUnassigned: "↩️",
	service.KindCompleted:  iconDone,
	service.KindDeleted:    "🗑",
	service.KindEdited:     "✏️",
}

// Notifier delivers engine notifications as Telegram messages to the
// user's private chat.
type Notifier struct {
	out    sender
	logger logging.Logger
}

func NewNotifier(api *tgbotapi.BotAPI, logger logging.Logger) *Notifier {
	return newNotifier(api, logger)
}

func newNotifier(out sender, logger logging.Logger) *Notifier {
	return &Notifier{out: out, logger: logging.OrNop(logger)}
}

func (n *Notifier) Deliver(ctx context.Context, userID int64, note service.Notification) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", service.ErrDeliveryFailed, err)
	}
	msg := tgbotapi.NewMessage(userID, renderNotification(note))
	msg.ParseMode = tgbotapi.ModeHTML
	if kb, ok := actionKeyboard(note); ok {
		msg.ReplyMarkup = kb
	}
	if _, err := n.out.Send(msg); err != nil {
		return fmt.Errorf("%w: send to %d: %w", service.ErrDeliveryFailed, userID, err)
	}
	n.logger.Debug("bot: delivered %s to %d", note.Kind, userID)
	return nil
}

func renderNotification(note service.Notification) string {
	if note.Kind == service.KindDigest {
		return note.Body
	}
	icon := kindIcons[note.Kind]
	text := fmt.Sprintf("%s <b>%s</b>\n", icon, html.EscapeString(note.Title))
	if note.Kind == service.KindReminder && note.Task != nil {
		return text + fmt.Sprintf("Task #%d: %s", note.Task.TaskID, html.EscapeString(note.Task.Description))
	}
	return text + html.EscapeString(note.Body)
}

func actionKeyboard(note service.Notification) (tgbotapi.InlineKeyboardMarkup, bool) {
	var row []tgbotapi.InlineKeyboardButton
	for _, action := range note.Actions {
		switch action {
		case service.ActionComplete:
			if note.Task == nil {
				continue
			}
			row = append(row, tgbotapi.NewInlineKeyboardButtonData("✅ Complete",
				cbCompleteFromReminder+taskKey(note.Task.OwnerID, note.Task.TaskID)))
		case service.ActionSnooze:
			if note.ReminderID == "" {
				continue
			}
			row = append(row, tgbotapi.NewInlineKeyboardButtonData("💤 Snooze 1h", cbSnoozeReminder+note.ReminderID))
		}
	}
	if len(row) == 0 {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	return tgbotapi.NewInlineKeyboardMarkup(row), true
}
