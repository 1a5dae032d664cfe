package bot

import (
	"fmt"
	"sort"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"recorderbot/internal/models"
)

const statusPageSize = 5

func taskLines(sb *strings.Builder, t models.Task) {
	fmt.Fprintf(sb, "  🆔 Task ID: %d\n", t.ID)
	fmt.Fprintf(sb, "  📁 Filename: %s\n", t.Filename)
	fmt.Fprintf(sb, "  ⏱ Duration: %s\n", t.DurationText)
	fmt.Fprintf(sb, "  🕒 Start: %s\n", t.StartedAt.Format("03:04:05 PM"))
	fmt.Fprintf(sb, "  🕔 Expected End: %s\n  —\n", t.ExpectedEnd.Format("03:04:05 PM"))
}

func userLabel(tasks []models.Task, userID int64) string {
	if len(tasks) > 0 && tasks[0].Username != "" {
		return tasks[0].Username
	}
	return fmt.Sprintf("User ID: %d", userID)
}

// sortedUsers gives the snapshot a stable page order.
func sortedUsers(snapshot map[int64][]models.Task) []int64 {
	ids := make([]int64, 0, len(snapshot))
	for id := range snapshot {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// buildStatusPage renders one page of the admin status listing, clamping the
// requested page into the valid range.
func buildStatusPage(snapshot map[int64][]models.Task, page int) (string, *tgbotapi.InlineKeyboardMarkup) {
	users := sortedUsers(snapshot)
	totalPages := (len(users) + statusPageSize - 1) / statusPageSize
	if totalPages == 0 {
		totalPages = 1
	}
	if page < 0 {
		page = 0
	}
	if page > totalPages-1 {
		page = totalPages - 1
	}

	start := page * statusPageSize
	end := start + statusPageSize
	if end > len(users) {
		end = len(users)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 Active Recording Tasks — Page %d/%d:\n\n", page+1, totalPages)
	for _, userID := range users[start:end] {
		tasks := snapshot[userID]
		fmt.Fprintf(&sb, " 👤 Username: %s\n", userLabel(tasks, userID))
		for _, t := range tasks {
			taskLines(&sb, t)
		}
		sb.WriteString("\n")
	}

	var row []tgbotapi.InlineKeyboardButton
	if page > 0 {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("⬅️ Back", fmt.Sprintf("status_page_%d", page-1)))
	}
	if page < totalPages-1 {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("Next ➡️", fmt.Sprintf("status_page_%d", page+1)))
	}
	if len(row) == 0 {
		return sb.String(), nil
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(row)
	return sb.String(), &kb
}

// buildOwnStatus renders the requester's own task listing.
func buildOwnStatus(tasks []models.Task, userID int64) string {
	if len(tasks) == 0 {
		return "You have no active recording tasks."
	}

	var sb strings.Builder
	sb.WriteString("📊 Your Active Recording Tasks:\n\n")
	fmt.Fprintf(&sb, " 👤 Username: %s\n", userLabel(tasks, userID))
	for _, t := range tasks {
		taskLines(&sb, t)
	}
	return sb.String()
}

// buildUserListKB lists every user with active tasks for the admin cancel
// flow.
func buildUserListKB(snapshot map[int64][]models.Task) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, userID := range sortedUsers(snapshot) {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(
				userLabel(snapshot[userID], userID),
				fmt.Sprintf("cancel_user_%d", userID),
			),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("❌ Exit", "cancel_exit"),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// buildTaskListKB lists one user's tasks for the admin cancel flow.
func buildTaskListKB(userID int64, tasks []models.Task) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for i, t := range tasks {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("🆔 Task %d", i+1),
				fmt.Sprintf("cancel_task_%d", t.ID),
			),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🗑 Cancel All", fmt.Sprintf("cancel_all_%d", userID)),
		tgbotapi.NewInlineKeyboardButtonData("🔙 Back", "cancel_back"),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func buildCancelAllConfirmKB(userID int64) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Confirm Cancel All", fmt.Sprintf("cancel_all_confirm_%d", userID)),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔙 Back", fmt.Sprintf("cancel_user_%d", userID)),
		),
	)
}

// buildOwnTaskListKB lists the requester's tasks for the self-service flow.
func buildOwnTaskListKB(tasks []models.Task) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for i, t := range tasks {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("🆔 Task %d", i+1),
				fmt.Sprintf("cancelme_task_%d", t.ID),
			),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("❌ Exit", "cancelme_exit"),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func buildConfirmCancelKB(taskID int64) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Confirm Cancel", fmt.Sprintf("cancelme_confirm_%d", taskID)),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔙 Back", "cancelme_back"),
		),
	)
}

func taskDetails(t models.Task) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🆔 Task ID: %d\n", t.ID)
	fmt.Fprintf(&sb, "📁 Filename: %s\n", t.Filename)
	fmt.Fprintf(&sb, "⏱ Duration: %s\n", t.DurationText)
	fmt.Fprintf(&sb, "🕒 Started at: %s\n", t.StartedAt.Format("03:04:05 PM"))
	fmt.Fprintf(&sb, "🕔 Expected End: %s", t.ExpectedEnd.Format("03:04:05 PM"))
	return sb.String()
}
