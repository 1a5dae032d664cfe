package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"recorderbot/internal/bot"
	"recorderbot/internal/config"
	"recorderbot/internal/pipeline"
	"recorderbot/internal/recorder"
	"recorderbot/internal/registry"
	"recorderbot/internal/verify"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	if err := os.MkdirAll(cfg.DownloadDir, 0o755); err != nil {
		logger.Fatal("Failed to create download directory", zap.Error(err))
	}

	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		logger.Fatal("Failed to connect to Telegram", zap.Error(err))
	}

	reg := registry.New(cfg.PerUserTaskLimit, cfg.GlobalTaskLimit, logger)
	capture := recorder.New(cfg.FFmpegBin, cfg.FFprobeBin, logger)
	sender := bot.NewSender(api, logger)

	var (
		store     *verify.Store
		verifier  pipeline.Verifier
		shortener *verify.Shortener
	)
	if cfg.EnableShortlink {
		kv, err := verify.ConnectRedis(cfg.RedisAddr)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer kv.Close()

		store = verify.NewStore(kv, cfg.VerifyWindow(), logger)
		verifier = store
		shortener = verify.NewShortener(cfg.ShortlinkBaseURL, cfg.ShortlinkAPIKey, logger)
	}

	runner := pipeline.NewRunner(reg, pipeline.NewRecorderCapturer(capture), sender, verifier, pipeline.Options{
		DownloadRoot:   cfg.DownloadDir,
		StoreChannelID: cfg.StoreChannelID,
		MaxDuration:    cfg.MaxDuration(),
		DefaultName:    cfg.DefaultFilename,
		TitleTag:       cfg.TitleTag,
		Location:       cfg.Location(),
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b := bot.New(api, cfg, reg, runner, store, shortener, logger)
	b.Run(ctx)

	logger.Info("Bot stopped")
}
