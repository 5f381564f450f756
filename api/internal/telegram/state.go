package telegram

import (
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"ecovision/api/internal/app"
)

// Bot: то, что роутеру нужно от *tgbotapi.BotAPI.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// scope чата: история чата хранится под ecovision_history:tg:<chatID>.
func chatScope(chatID int64) string { return "tg:" + strconv.FormatInt(chatID, 10) }

func (r *Router) controller(chatID int64) *app.Controller {
	return r.Sessions.Get(chatScope(chatID))
}
