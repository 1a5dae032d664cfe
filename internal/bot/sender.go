package bot

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Sender is the pipeline's delivery path into Telegram.
type Sender struct {
	api    *tgbotapi.BotAPI
	logger *zap.Logger
}

func NewSender(api *tgbotapi.BotAPI, logger *zap.Logger) *Sender {
	return &Sender{api: api, logger: logger}
}

func (s *Sender) SendText(chatID int64, text string) error {
	_, err := s.api.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

func (s *Sender) SendVideo(chatID int64, videoPath, thumbPath, caption string) error {
	video := tgbotapi.NewVideo(chatID, tgbotapi.FilePath(videoPath))
	video.Caption = caption
	if thumbPath != "" {
		video.Thumb = tgbotapi.FilePath(thumbPath)
	}
	_, err := s.api.Send(video)
	return err
}
