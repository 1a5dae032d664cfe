// Package bot is the Telegram front-end: long-poll update loop, command
// handlers and the inline-keyboard callback router.
package bot

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"recorderbot/internal/config"
	"recorderbot/internal/pipeline"
	"recorderbot/internal/registry"
	"recorderbot/internal/verify"
)

const maxConcurrentUpdates = 10

type Bot struct {
	api       *tgbotapi.BotAPI
	cfg       *config.Config
	reg       *registry.Registry
	runner    *pipeline.Runner
	verifier  *verify.Store // nil when shortlink verification is disabled
	shortener *verify.Shortener
	logger    *zap.Logger

	sem chan struct{}
}

func New(api *tgbotapi.BotAPI, cfg *config.Config, reg *registry.Registry, runner *pipeline.Runner, verifier *verify.Store, shortener *verify.Shortener, logger *zap.Logger) *Bot {
	return &Bot{
		api:       api,
		cfg:       cfg,
		reg:       reg,
		runner:    runner,
		verifier:  verifier,
		shortener: shortener,
		logger:    logger,
		sem:       make(chan struct{}, maxConcurrentUpdates),
	}
}

// Run consumes updates until ctx is cancelled. Each update is handled on its
// own goroutine behind a semaphore so a stuck handler cannot stall polling.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	b.logger.Info("bot started", zap.String("username", b.api.Self.UserName))

	for update := range updates {
		b.sem <- struct{}{}
		go func(update tgbotapi.Update) {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("panic in update handler", zap.Any("panic", r))
				}
				<-b.sem
			}()
			b.dispatch(ctx, update)
		}(update)
	}
}

func (b *Bot) dispatch(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	}
}

// allowed gates the recording surface: privileged users anywhere, everyone
// else only inside the working group.
func (b *Bot) allowed(userID, chatID int64) bool {
	if b.cfg.IsPrivileged(userID) {
		return true
	}
	return b.cfg.WorkingGroup != 0 && chatID == b.cfg.WorkingGroup
}

func (b *Bot) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Warn("send message failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (b *Bot) replyKB(chatID int64, text string, kb tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = kb
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Warn("send message failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

// broadcastVerified announces a fresh verification in the working group.
// Best effort only; verification never fails on a broadcast error.
func (b *Bot) broadcastVerified(displayName string) {
	if b.cfg.WorkingGroup == 0 {
		return
	}
	text := "✅ " + displayName + " has successfully verified and can now access recording features."
	if _, err := b.api.Send(tgbotapi.NewMessage(b.cfg.WorkingGroup, text)); err != nil {
		b.logger.Warn("verification broadcast failed", zap.Error(err))
	}
}
