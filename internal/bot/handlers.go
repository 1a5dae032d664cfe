package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"recorderbot/internal/models"
	"recorderbot/internal/pipeline"
	"recorderbot/internal/registry"
)

const helpText = "🛠 Help Menu\n\n" +
	"To start a recording:\n" +
	"http://link 00:00:00 My Filename\n\n" +
	"Commands:\n" +
	"• /statusme – Check your current recordings\n" +
	"• /cancelme – Cancel one of your recordings\n" +
	"• /verify – Unlock recording access\n" +
	"• /start – Welcome screen\n" +
	"• /plan – View plans\n\n" +
	"Notes:\n" +
	"- Link must not be DRM-protected.\n" +
	"- Timestamp must be in hh:mm:ss format.\n" +
	"- Bot sends file with auto thumbnail and duration.\n" +
	"- Make sure filename doesn't use /\\:*?\"<>|"

const planText = "💠 Subscription Plans\n\n" +
	"Free Plan:\n" +
	"• ⏳ Time gap between recordings\n" +
	"• ⏱ Limited recording length\n\n" +
	"Premium Benefits:\n" +
	"• 🚫 No time gaps\n" +
	"• ⏰ Record up to 3–5 hours per task\n" +
	"• 🎧 Multi-audio support\n" +
	"• ⚡ Faster processing\n\n" +
	"To upgrade, contact the owner."

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}

	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}

	if _, _, _, ok := models.MatchRecordRequest(msg.Text); ok {
		b.handleRecord(ctx, msg)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	chatID := msg.Chat.ID

	switch msg.Command() {
	case "start":
		b.handleStart(ctx, msg)
	case "help":
		if b.allowed(userID, chatID) {
			b.reply(chatID, helpText)
		}
	case "plan":
		if b.allowed(userID, chatID) {
			b.reply(chatID, planText)
		}
	case "verify":
		b.handleVerify(ctx, msg)
	case "status":
		if !b.cfg.IsPrivileged(userID) {
			b.reply(chatID, "⛔ You are not authorized to use this command.")
			return
		}
		snapshot := b.reg.ListAll()
		if len(snapshot) == 0 {
			b.reply(chatID, "ℹ️ No active tasks for any user.")
			return
		}
		text, kb := buildStatusPage(snapshot, 0)
		if kb != nil {
			b.replyKB(chatID, text, *kb)
		} else {
			b.reply(chatID, text)
		}
	case "statusme":
		if !b.allowed(userID, chatID) {
			return
		}
		b.reply(chatID, buildOwnStatus(b.reg.ListForUser(userID), userID))
	case "cancel":
		if !b.cfg.IsPrivileged(userID) {
			b.reply(chatID, "⛔ You are not authorized to use this command.")
			return
		}
		snapshot := b.reg.ListAll()
		if len(snapshot) == 0 {
			b.reply(chatID, "⚠️ No active recording users.")
			return
		}
		b.replyKB(chatID, "👥 Select user to cancel recording:", buildUserListKB(snapshot))
	case "cancelme":
		if !b.allowed(userID, chatID) {
			return
		}
		tasks := b.reg.ListForUser(userID)
		if len(tasks) == 0 {
			b.reply(chatID, "❌ You don't have any active recording tasks.")
			return
		}
		b.replyKB(chatID, "📋 Your active tasks:", buildOwnTaskListKB(tasks))
	}
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	// Deep-link verification completion: /start verify_<token>.
	if args := msg.CommandArguments(); strings.HasPrefix(args, "verify_") {
		token := strings.TrimPrefix(args, "verify_")
		if b.verifier == nil {
			b.reply(chatID, "❌ Invalid or expired verification token.")
			return
		}
		ok, err := b.verifier.Complete(ctx, msg.From.ID, token)
		if err != nil {
			b.logger.Error("verification completion failed", zap.Error(err))
			b.reply(chatID, "⚠️ Verification is temporarily unavailable. Please try again.")
			return
		}
		if !ok {
			b.reply(chatID, "❌ Invalid or expired verification token.")
			return
		}
		b.reply(chatID, "✅ You are now verified and can use all features.")
		go b.broadcastVerified(displayName(msg.From))
		return
	}

	if !msg.Chat.IsPrivate() {
		b.reply(chatID, "👋 I'm ready here! Use /verify or /help to get started.")
		return
	}

	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("📖 Help", "help")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("💠 Plans", "plan")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL("📢 Group", b.cfg.GroupLink)),
	)
	welcome := fmt.Sprintf(
		"👋 Hi %s, welcome!\n\n"+
			"▶️ How to use:\n"+
			"Send a message in this format:\n"+
			"http://video_link 00:00:00 Your Filename\n\n"+
			"⏰ Timestamp must be in HH:MM:SS format.\n"+
			"📁 Filename is the name for your recorded clip.\n\n"+
			"Use /help to see all commands and instructions.",
		displayName(msg.From),
	)
	b.replyKB(chatID, welcome, kb)
}

func (b *Bot) handleVerify(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	chatID := msg.Chat.ID

	if !b.cfg.EnableShortlink || b.verifier == nil {
		b.reply(chatID, "⚠️ Verification system is currently disabled.")
		return
	}
	if chatID != b.cfg.WorkingGroup {
		b.reply(chatID, "❌ You can only use /verify in the main group.")
		return
	}
	if b.cfg.IsPrivileged(userID) {
		b.reply(chatID, "✅ You are already authorized. No verification needed.")
		return
	}

	res, err := b.verifier.Issue(ctx, userID, displayName(msg.From))
	if err != nil {
		b.logger.Error("token issue failed", zap.Int64("user_id", userID), zap.Error(err))
		b.reply(chatID, "⚠️ Verification is temporarily unavailable. Please try again.")
		return
	}
	if res.AlreadyVerified {
		h := int(res.Remaining.Hours())
		m := int(res.Remaining.Minutes()) % 60
		b.reply(chatID, fmt.Sprintf("✅ You are already verified.\n⏳ Remaining time: %dh %dm", h, m))
		return
	}

	link := fmt.Sprintf("https://t.me/%s?start=verify_%s", b.api.Self.UserName, res.Token)
	if b.shortener != nil {
		link = b.shortener.Shorten(ctx, link)
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL("🔗 Verify Here", link)),
	)
	hours := int(b.cfg.VerifyWindow().Hours())
	b.replyKB(chatID, fmt.Sprintf(
		"🔐 Verification Required\n\nClick the button below to verify and unlock recording for %d hours.", hours), kb)
}

func (b *Bot) handleRecord(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	chatID := msg.Chat.ID
	if !b.allowed(userID, chatID) {
		return
	}

	url, timestamp, filename, ok := models.MatchRecordRequest(msg.Text)
	if !ok {
		return
	}

	task, err := b.runner.Admit(ctx, pipeline.Request{
		UserID:     userID,
		ChatID:     chatID,
		Username:   displayName(msg.From),
		URL:        url,
		Timestamp:  timestamp,
		Filename:   filename,
		Privileged: b.cfg.IsPrivileged(userID),
	})
	if err != nil {
		b.reply(chatID, b.admissionErrorText(err))
		return
	}

	b.reply(chatID, fmt.Sprintf(
		"⏳ Recording started.\n🆔 Task ID: %d\n📁 Filename: %s\n⏱ Duration: %s",
		task.ID, task.Filename, task.DurationText))

	go b.runner.Run(ctx, task)
}

func (b *Bot) admissionErrorText(err error) string {
	var capErr *registry.CapacityError
	if errors.As(err, &capErr) {
		end := capErr.SoonestEnd.In(b.cfg.Location()).Format("03:04:05 PM")
		if capErr.Scope == "user" {
			return fmt.Sprintf("❌ Your task is already running.\n⏳ Expected completion: %s", end)
		}
		return fmt.Sprintf("❌ Group Limit Reached. Please wait until a current task finishes.\n⏳ Expected time: %s", end)
	}

	var durErr *pipeline.DurationCapError
	if errors.As(err, &durErr) {
		max := int(durErr.Max.Seconds())
		return fmt.Sprintf(
			"❌ This plan supports only up to %02d:%02d:%02d per recording.\nUpgrade to premium to unlock longer durations.",
			max/3600, (max%3600)/60, max%60)
	}

	switch {
	case errors.Is(err, pipeline.ErrUnverified):
		hours := int(b.cfg.VerifyWindow().Hours())
		return fmt.Sprintf(
			"❌ You are not a verified user.\nPlease use /verify to continue recording. Verification lasts for %d hours.", hours)
	case errors.Is(err, pipeline.ErrInvalidInput):
		return "❌ Invalid timestamp format. Use hh:mm:ss (e.g., 00:45:00)."
	default:
		b.logger.Error("admission failed", zap.Error(err))
		return "⚠️ Could not start the recording. Please try again."
	}
}

func displayName(u *tgbotapi.User) string {
	if u == nil {
		return "anonymous"
	}
	if u.UserName != "" {
		return "@" + u.UserName
	}
	if u.FirstName != "" {
		return u.FirstName
	}
	return "anonymous"
}
