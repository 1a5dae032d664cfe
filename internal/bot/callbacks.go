package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"recorderbot/internal/pipeline"
	"recorderbot/internal/registry"
)

// handleCallback routes inline-keyboard presses. Payloads are opaque strings
// minted by this package; every privileged action re-checks authorization
// here because button visibility is not access control.
func (b *Bot) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) {
	if q.Message == nil || q.From == nil {
		return
	}
	data := q.Data

	switch {
	case data == "noop":
		b.answer(q, "")
	case data == "help":
		b.edit(q, helpText, nil)
		b.answer(q, "")
	case data == "plan":
		b.edit(q, planText, nil)
		b.answer(q, "")

	case strings.HasPrefix(data, "status_page_"):
		b.cbStatusPage(q, data)

	case strings.HasPrefix(data, "cancel_user_"):
		b.cbCancelUser(q, data)
	case strings.HasPrefix(data, "cancel_task_"):
		b.cbCancelTask(q, data)
	case strings.HasPrefix(data, "cancel_all_confirm_"):
		b.cbCancelAllConfirm(q, data)
	case strings.HasPrefix(data, "cancel_all_"):
		b.cbCancelAll(q, data)
	case data == "cancel_back":
		b.cbCancelBack(q)
	case data == "cancel_exit":
		b.deleteMessage(q)
		b.answer(q, "")

	case strings.HasPrefix(data, "cancelme_task_"):
		b.cbCancelmeTask(q, data)
	case strings.HasPrefix(data, "cancelme_confirm_"):
		b.cbCancelmeConfirm(q, data)
	case data == "cancelme_back":
		b.cbCancelmeBack(q)
	case data == "cancelme_exit":
		b.deleteMessage(q)
		b.answer(q, "")
	}
}

func (b *Bot) cbStatusPage(q *tgbotapi.CallbackQuery, data string) {
	if !b.cfg.IsPrivileged(q.From.ID) {
		b.alert(q, "⛔ Not authorized.")
		return
	}
	page, err := strconv.Atoi(strings.TrimPrefix(data, "status_page_"))
	if err != nil {
		return
	}
	text, kb := buildStatusPage(b.reg.ListAll(), page)
	b.edit(q, text, kb)
	b.answer(q, "")
}

func (b *Bot) cbCancelUser(q *tgbotapi.CallbackQuery, data string) {
	if !b.cfg.IsPrivileged(q.From.ID) {
		b.alert(q, "⛔ Not authorized.")
		return
	}
	userID, err := strconv.ParseInt(strings.TrimPrefix(data, "cancel_user_"), 10, 64)
	if err != nil {
		return
	}
	tasks := b.reg.ListForUser(userID)
	if len(tasks) == 0 {
		b.alert(q, "No active tasks for this user.")
		b.edit(q, "⚠️ No active tasks for this user.", nil)
		return
	}
	kb := buildTaskListKB(userID, tasks)
	b.edit(q, fmt.Sprintf("📋 Tasks for %s:", userLabel(tasks, userID)), &kb)
	b.answer(q, "")
}

func (b *Bot) cbCancelTask(q *tgbotapi.CallbackQuery, data string) {
	if !b.cfg.IsPrivileged(q.From.ID) {
		b.alert(q, "⛔ Not authorized.")
		return
	}
	taskID, err := strconv.ParseInt(strings.TrimPrefix(data, "cancel_task_"), 10, 64)
	if err != nil {
		return
	}
	out, err := b.runner.Cancel(taskID, q.From.ID, true)
	switch {
	case errors.Is(err, registry.ErrNotFound):
		b.alert(q, "Task already finished.")
		b.edit(q, "⚠️ Task not found or already completed.", nil)
	case err != nil:
		b.logger.Error("admin cancel failed", zap.Int64("task_id", taskID), zap.Error(err))
		b.alert(q, "Cancel failed.")
	case out.Delivered:
		b.answer(q, "Task cancelled.")
		b.edit(q, "✅ Task cancelled and file sent to user.", nil)
	default:
		b.answer(q, "Task cancelled.")
		b.edit(q, "✅ Task cancelled.", nil)
	}
}

func (b *Bot) cbCancelAll(q *tgbotapi.CallbackQuery, data string) {
	if !b.cfg.IsPrivileged(q.From.ID) {
		b.alert(q, "⛔ Not authorized.")
		return
	}
	userID, err := strconv.ParseInt(strings.TrimPrefix(data, "cancel_all_"), 10, 64)
	if err != nil {
		return
	}
	kb := buildCancelAllConfirmKB(userID)
	b.edit(q, "⚠️ Cancel ALL recordings for this user?", &kb)
	b.answer(q, "")
}

func (b *Bot) cbCancelAllConfirm(q *tgbotapi.CallbackQuery, data string) {
	if !b.cfg.IsPrivileged(q.From.ID) {
		b.alert(q, "⛔ Not authorized.")
		return
	}
	userID, err := strconv.ParseInt(strings.TrimPrefix(data, "cancel_all_confirm_"), 10, 64)
	if err != nil {
		return
	}
	count := b.runner.CancelAllForUser(userID, q.From.ID, true)
	if count == 0 {
		b.edit(q, "⚠️ No active tasks found for this user.", nil)
	} else {
		b.edit(q, fmt.Sprintf("✅ All (%d) tasks cancelled for user.", count), nil)
	}
	b.answer(q, "")
}

func (b *Bot) cbCancelBack(q *tgbotapi.CallbackQuery) {
	if !b.cfg.IsPrivileged(q.From.ID) {
		b.alert(q, "⛔ Not authorized.")
		return
	}
	snapshot := b.reg.ListAll()
	if len(snapshot) == 0 {
		b.edit(q, "⚠️ No active recording users.", nil)
		b.answer(q, "")
		return
	}
	kb := buildUserListKB(snapshot)
	b.edit(q, "👥 Select user to cancel recording:", &kb)
	b.answer(q, "")
}

func (b *Bot) cbCancelmeTask(q *tgbotapi.CallbackQuery, data string) {
	taskID, err := strconv.ParseInt(strings.TrimPrefix(data, "cancelme_task_"), 10, 64)
	if err != nil {
		return
	}
	task, ok := b.reg.Get(taskID)
	if !ok || task.UserID != q.From.ID {
		b.alert(q, "❌ Task not found or already completed.")
		return
	}
	kb := buildConfirmCancelKB(taskID)
	b.edit(q, taskDetails(task), &kb)
	b.answer(q, "")
}

func (b *Bot) cbCancelmeConfirm(q *tgbotapi.CallbackQuery, data string) {
	taskID, err := strconv.ParseInt(strings.TrimPrefix(data, "cancelme_confirm_"), 10, 64)
	if err != nil {
		return
	}
	_, err = b.runner.Cancel(taskID, q.From.ID, false)
	switch {
	case errors.Is(err, pipeline.ErrUnauthorized):
		b.alert(q, "❌ You cannot cancel this task.")
	case errors.Is(err, registry.ErrNotFound):
		b.alert(q, "❌ Task not found or already completed.")
		b.edit(q, "⚠️ Task not found or already completed.", nil)
	case err != nil:
		b.logger.Error("self cancel failed", zap.Int64("task_id", taskID), zap.Error(err))
		b.alert(q, "Cancel failed.")
	default:
		b.edit(q, "✅ Task cancelled and file sent (if available).", nil)
		b.answer(q, "")
	}
}

func (b *Bot) cbCancelmeBack(q *tgbotapi.CallbackQuery) {
	tasks := b.reg.ListForUser(q.From.ID)
	if len(tasks) == 0 {
		b.edit(q, "❌ No active tasks found.", nil)
		b.answer(q, "")
		return
	}
	kb := buildOwnTaskListKB(tasks)
	b.edit(q, "📋 Your active tasks:", &kb)
	b.answer(q, "")
}

func (b *Bot) answer(q *tgbotapi.CallbackQuery, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(q.ID, text)); err != nil {
		b.logger.Debug("callback answer failed", zap.Error(err))
	}
}

func (b *Bot) alert(q *tgbotapi.CallbackQuery, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallbackWithAlert(q.ID, text)); err != nil {
		b.logger.Debug("callback alert failed", zap.Error(err))
	}
}

func (b *Bot) edit(q *tgbotapi.CallbackQuery, text string, kb *tgbotapi.InlineKeyboardMarkup) {
	var msg tgbotapi.Chattable
	if kb != nil {
		m := tgbotapi.NewEditMessageTextAndMarkup(q.Message.Chat.ID, q.Message.MessageID, text, *kb)
		msg = m
	} else {
		m := tgbotapi.NewEditMessageText(q.Message.Chat.ID, q.Message.MessageID, text)
		msg = m
	}
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Debug("edit message failed", zap.Error(err))
	}
}

func (b *Bot) deleteMessage(q *tgbotapi.CallbackQuery) {
	if _, err := b.api.Request(tgbotapi.NewDeleteMessage(q.Message.Chat.ID, q.Message.MessageID)); err != nil {
		b.logger.Debug("delete message failed", zap.Error(err))
	}
}
