package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"recorderbot/internal/api"
	"recorderbot/internal/config"
	"recorderbot/internal/verify"
)

// groupBroadcaster announces verifications in the working group through the
// same bot account the recorder runs on.
type groupBroadcaster struct {
	api    *tgbotapi.BotAPI
	chatID int64
	logger *zap.Logger
}

func (g *groupBroadcaster) BroadcastVerified(displayName string) {
	text := "✅ " + displayName + " has successfully verified and can now access recording features."
	if _, err := g.api.Send(tgbotapi.NewMessage(g.chatID, text)); err != nil {
		g.logger.Warn("verification broadcast failed", zap.Error(err))
	}
}

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	kv, err := verify.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer kv.Close()

	store := verify.NewStore(kv, cfg.VerifyWindow(), logger)

	var broadcaster api.Broadcaster
	if cfg.WorkingGroup != 0 {
		botAPI, err := tgbotapi.NewBotAPI(cfg.BotToken)
		if err != nil {
			logger.Warn("Telegram unavailable, broadcasts disabled", zap.Error(err))
		} else {
			broadcaster = &groupBroadcaster{api: botAPI, chatID: cfg.WorkingGroup, logger: logger}
		}
	}

	handler := api.NewHandler(store, broadcaster, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.VerifyAPIPort,
		Handler:      handler.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("Verify API starting", zap.String("address", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("Server failed", zap.Error(err))
	}

	logger.Info("Verify API stopped")
}
