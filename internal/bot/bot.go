package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"task-planner/internal/logging"
	"task-planner/internal/model"
	"task-planner/internal/service"
)

const (
	cbComplete             = "complete_task:"
	cbCompleteFromReminder = "complete_from_reminder:"
	cbSnoozeReminder       = "snooze_reminder:"
	cbClearConfirm         = "clear_tasks:confirm"
	cbClearCancel          = "clear_tasks:cancel"
)

const (
	editSessionTTL      = 5 * time.Minute
	defaultEphemeralTTL = time.Minute
)

// sender is the part of the Telegram API the bot writes through.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type editSession struct {
	taskID int
}

// Bot routes Telegram messages and button presses to the planner.
type Bot struct {
	api     *tgbotapi.BotAPI
	out     sender
	planner *service.Planner
	expirer *service.Expirer
	ttl     time.Duration
	logger  logging.Logger

	mu    sync.Mutex
	edits map[int64]editSession
}

// Connect authorizes against the Bot API.
func Connect(token string, logger logging.Logger) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	logging.OrNop(logger).Info("bot authorized on account %s", api.Self.UserName)
	return api, nil
}

// New wires the router. Short replies are deleted after ttl.
func New(api *tgbotapi.BotAPI, planner *service.Planner, expirer *service.Expirer, ttl time.Duration, logger logging.Logger) *Bot {
	b := newBot(api, planner, expirer, ttl, logger)
	b.api = api
	return b
}

func newBot(out sender, planner *service.Planner, expirer *service.Expirer, ttl time.Duration, logger logging.Logger) *Bot {
	if ttl <= 0 {
		ttl = defaultEphemeralTTL
	}
	return &Bot{
		out:     out,
		planner: planner,
		expirer: expirer,
		ttl:     ttl,
		logger:  logging.OrNop(logger),
		edits:   make(map[int64]editSession),
	}
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	if b.api == nil {
		return errors.New("bot: no api client")
	}
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	b.logger.Info("bot: start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		switch {
		case update.CallbackQuery != nil:
			if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
				b.logger.Warn("bot: handle callback: %v", err)
			}
		case update.Message != nil:
			if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
				continue
			}
			if err := b.handleMessage(ctx, update.Message); err != nil {
				b.logger.Warn("bot: handle message: %v", err)
			}
		}
	}

	return ctx.Err()
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil || msg.Chat == nil {
		return nil
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return nil
	}
	chatID, userID := msg.Chat.ID, msg.From.ID

	if _, err := b.planner.Touch(ctx, userID, userName(msg.From)); err != nil {
		return b.replyError(chatID, err)
	}

	cmd, err := ParseCommand(text)
	if errors.Is(err, ErrUnknownCommand) {
		if session, ok := b.takeEdit(userID); ok {
			return b.finishEdit(ctx, chatID, userID, session.taskID, text)
		}
	}
	if err != nil {
		return b.replyError(chatID, err)
	}
	b.takeEdit(userID)

	b.logger.Debug("bot: command %d from %d", cmd.Kind, userID)
	return b.dispatch(ctx, chatID, userID, cmd)
}

func (b *Bot) dispatch(ctx context.Context, chatID, userID int64, cmd Command) error {
	switch cmd.Kind {
	case CmdHelp:
		return b.send(chatID, helpText, nil, false)

	case CmdAdd:
		task, err := b.planner.AddTask(ctx, userID, cmd.Text)
		if err != nil {
			return b.replyError(chatID, err)
		}
		return b.ack(chatID, fmt.Sprintf("%s Added task #%d: %s", iconOpen, task.TaskID, html.EscapeString(task.Description)))

	case CmdDelete:
		task, err := b.planner.DeleteTask(ctx, userID, cmd.TaskID)
		if err != nil {
			return b.replyError(chatID, err)
		}
		return b.ack(chatID, fmt.Sprintf("🗑 Deleted task #%d: %s", cmd.TaskID, html.EscapeString(task.Description)))

	case CmdComplete:
		task, err := b.planner.CompleteTask(ctx, userID, userID, cmd.TaskID)
		if err != nil {
			return b.replyError(chatID, err)
		}
		return b.ack(chatID, fmt.Sprintf("%s Completed task #%d: %s", iconDone, task.TaskID, html.EscapeString(task.Description)))

	case CmdEdit:
		if cmd.Text == "" {
			if _, err := b.planner.Tasks.Get(ctx, userID, cmd.TaskID); err != nil {
				return b.replyError(chatID, err)
			}
			b.startEdit(userID, cmd.TaskID)
			return b.ack(chatID, fmt.Sprintf("✏️ Send the new description for task #%d within %d minutes.", cmd.TaskID, int(editSessionTTL.Minutes())))
		}
		return b.finishEdit(ctx, chatID, userID, cmd.TaskID, cmd.Text)

	case CmdClear:
		kb := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🧹 Delete everything", cbClearConfirm),
			tgbotapi.NewInlineKeyboardButtonData("↩️ Keep", cbClearCancel),
		))
		return b.send(chatID, iconWarning+" Delete <b>all</b> your tasks and reminders?", kb, true)

	case CmdRemind:
		rem, err := b.planner.SetReminder(ctx, userID, cmd.TaskID, cmd.Text)
		if err != nil {
			return b.replyError(chatID, err)
		}
		return b.ack(chatID, fmt.Sprintf("%s I'll remind you about task #%d on %s.", iconReminder, rem.TaskID, b.localTime(ctx, userID, rem.FireAt)))

	case CmdView:
		ov, err := b.planner.Overview(ctx, userID)
		if err != nil {
			return b.replyError(chatID, err)
		}
		return b.send(chatID, formatOverview(ov, b.namer(ctx), location(ov.Profile.Timezone)), nil, false)

	case CmdViewAssigned:
		assigned, err := b.planner.AssignedToMe(ctx, userID)
		if err != nil {
			return b.replyError(chatID, err)
		}
		var markup interface{}
		if kb, ok := assignedKeyboard(assigned); ok {
			markup = kb
		}
		return b.send(chatID, formatAssigned(assigned, b.namer(ctx)), markup, false)

	case CmdAssign:
		task, err := b.planner.AssignTask(ctx, userID, cmd.TaskID, cmd.AssigneeID, cmd.Note)
		if err != nil {
			return b.replyError(chatID, err)
		}
		return b.ack(chatID, fmt.Sprintf("%s Task #%d assigned to %s.", iconDelegated, task.TaskID,
			html.EscapeString(b.planner.Profiles.DisplayName(ctx, task.AssignedTo))))

	case CmdUnassign:
		task, err := b.planner.UnassignTask(ctx, userID, cmd.TaskID)
		if err != nil {
			return b.replyError(chatID, err)
		}
		return b.ack(chatID, fmt.Sprintf("↩️ Task #%d is yours again.", task.TaskID))

	case CmdSetName:
		p, err := b.planner.SetProfile(ctx, userID, model.ProfileUpdate{DisplayName: &cmd.Text})
		if err != nil {
			return b.replyError(chatID, err)
		}
		return b.ack(chatID, formatProfile(p))

	case CmdSetTimezone:
		p, err := b.planner.SetProfile(ctx, userID, model.ProfileUpdate{Timezone: &cmd.Text})
		if err != nil {
			return b.replyError(chatID, err)
		}
		return b.ack(chatID, formatProfile(p))

	case CmdProfile:
		p, err := b.planner.Touch(ctx, userID, "")
		if err != nil {
			return b.replyError(chatID, err)
		}
		return b.send(chatID, formatProfile(p), nil, false)
	}

	return b.replyError(chatID, ErrUnknownCommand)
}

func (b *Bot) finishEdit(ctx context.Context, chatID, userID int64, taskID int, text string) error {
	task, err := b.planner.EditTask(ctx, userID, taskID, text)
	if err != nil {
		return b.replyError(chatID, err)
	}
	return b.ack(chatID, fmt.Sprintf("✏️ Task #%d is now: %s", task.TaskID, html.EscapeString(task.Description)))
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb == nil || cb.From == nil || cb.Message == nil || cb.Message.Chat == nil {
		return nil
	}
	if _, err := b.out.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.logger.Debug("bot: callback ack: %v", err)
	}

	chatID, messageID, userID := cb.Message.Chat.ID, cb.Message.MessageID, cb.From.ID
	data := cb.Data
	b.logger.Debug("bot: callback %s from %d", data, userID)

	switch {
	case strings.HasPrefix(data, cbCompleteFromReminder), strings.HasPrefix(data, cbComplete):
		raw := strings.TrimPrefix(strings.TrimPrefix(data, cbCompleteFromReminder), cbComplete)
		ownerID, taskID, err := parseTaskKey(raw)
		if err != nil {
			return nil
		}
		task, err := b.planner.CompleteTask(ctx, userID, ownerID, taskID)
		if err != nil {
			return b.replyError(chatID, err)
		}
		return b.edit(chatID, messageID, fmt.Sprintf("%s <b>Completed</b>\n%s", iconDone, html.EscapeString(task.Description)))

	case strings.HasPrefix(data, cbSnoozeReminder):
		id := strings.TrimPrefix(data, cbSnoozeReminder)
		rem, err := b.planner.Snooze(ctx, userID, id, strings.TrimPrefix(service.ActionSnooze, "snooze:"))
		if err != nil {
			return b.replyError(chatID, err)
		}
		return b.edit(chatID, messageID, fmt.Sprintf("💤 Snoozed task #%d until %s.", rem.TaskID, b.localTime(ctx, userID, rem.FireAt)))

	case data == cbClearConfirm:
		n, err := b.planner.ClearAll(ctx, userID)
		if err != nil {
			return b.replyError(chatID, err)
		}
		return b.edit(chatID, messageID, fmt.Sprintf("🧹 Removed %d tasks.", n))

	case data == cbClearCancel:
		return b.edit(chatID, messageID, "↩️ Your tasks are untouched.")
	}
	return nil
}

func (b *Bot) startEdit(userID int64, taskID int) {
	b.mu.Lock()
	b.edits[userID] = editSession{taskID: taskID}
	b.mu.Unlock()
	if b.expirer != nil {
		b.expirer.Schedule(editKey(userID), editSessionTTL, func() { b.takeEdit(userID) })
	}
}

// takeEdit pops the user's pending edit session.
func (b *Bot) takeEdit(userID int64) (editSession, bool) {
	b.mu.Lock()
	session, ok := b.edits[userID]
	delete(b.edits, userID)
	b.mu.Unlock()
	if ok && b.expirer != nil {
		b.expirer.Cancel(editKey(userID))
	}
	return session, ok
}

func (b *Bot) ack(chatID int64, text string) error {
	return b.send(chatID, text, nil, true)
}

func (b *Bot) replyError(chatID int64, err error) error {
	if service.ReasonOf(err) == "" && !isUserError(err) {
		b.logger.Warn("bot: request in chat %d failed: %v", chatID, err)
	}
	return b.send(chatID, messageFor(err), nil, true)
}

func (b *Bot) send(chatID int64, text string, markup interface{}, ephemeral bool) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	sent, err := b.out.Send(msg)
	if err != nil {
		return fmt.Errorf("send to %d: %w", chatID, err)
	}
	if ephemeral {
		b.expire(chatID, sent.MessageID)
	}
	return nil
}

func (b *Bot) edit(chatID int64, messageID int, text string) error {
	cfg := tgbotapi.NewEditMessageText(chatID, messageID, text)
	cfg.ParseMode = tgbotapi.ModeHTML
	if _, err := b.out.Send(cfg); err != nil {
		return fmt.Errorf("edit message %d: %w", messageID, err)
	}
	return nil
}

// expire deletes a short reply once its ttl passes.
func (b *Bot) expire(chatID int64, messageID int) {
	if b.expirer == nil || messageID == 0 {
		return
	}
	key := fmt.Sprintf("msg:%d:%d", chatID, messageID)
	b.expirer.Schedule(key, b.ttl, func() {
		if _, err := b.out.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
			b.logger.Debug("bot: delete message %d: %v", messageID, err)
		}
	})
}

func (b *Bot) namer(ctx context.Context) namer {
	return func(userID int64) string {
		return b.planner.Profiles.DisplayName(ctx, userID)
	}
}

func (b *Bot) localTime(ctx context.Context, userID int64, t time.Time) string {
	loc, err := b.planner.Profiles.Location(ctx, userID)
	if err != nil {
		loc = time.UTC
	}
	return t.In(loc).Format("Mon Jan 2 at 15:04 MST")
}

func assignedKeyboard(assigned []model.AssignedTask) (tgbotapi.InlineKeyboardMarkup, bool) {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, a := range assigned {
		label := fmt.Sprintf("✅ #%d %s", a.Task.TaskID, shortTitle(a.Task.Description, 24))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, cbComplete+taskKey(a.OwnerID, a.Task.TaskID))))
	}
	if len(rows) == 0 {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...), true
}

func isUserError(err error) bool {
	var uerr *UsageError
	return errors.As(err, &uerr) ||
		errors.Is(err, ErrUnknownCommand) ||
		errors.Is(err, service.ErrParse) ||
		errors.Is(err, service.ErrNotFound)
}

func editKey(userID int64) string {
	return "edit:" + strconv.FormatInt(userID, 10)
}

func taskKey(ownerID int64, taskID int) string {
	return fmt.Sprintf("%d:%d", ownerID, taskID)
}

func parseTaskKey(raw string) (int64, int, error) {
	owner, task, ok := strings.Cut(raw, ":")
	if !ok {
		return 0, 0, fmt.Errorf("malformed task key %q", raw)
	}
	ownerID, err := strconv.ParseInt(owner, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed task key %q: %w", raw, err)
	}
	taskID, err := strconv.Atoi(task)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed task key %q: %w", raw, err)
	}
	return ownerID, taskID, nil
}

func shortTitle(title string, maxLen int) string {
	runes := []rune(strings.TrimSpace(title))
	if len(runes) <= maxLen {
		return string(runes)
	}
	if maxLen <= 1 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-1]) + "…"
}

func location(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

func userName(u *tgbotapi.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.UserName
	}
	return name
}
