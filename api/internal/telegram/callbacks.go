package telegram

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Данные кнопок: "analyze", "tips_refresh", "poster", "nav:<page>", "view:<id>", "del:<id>".
func (r *Router) handleCallback(ctx context.Context, cb tgbotapi.CallbackQuery) {
	if cb.Message == nil {
		return
	}
	cid := cb.Message.Chat.ID
	_, _ = r.Bot.Request(tgbotapi.NewCallback(cb.ID, "")) // ack

	data := cb.Data
	switch {
	case data == "analyze":
		r.startAnalysis(ctx, cid)
	case data == "tips_refresh":
		tips := r.controller(cid).RefreshTips()
		kb := tipsKeyboard()
		r.sendMarkup(cid, formatTips(tips), &kb)
	case data == "poster":
		r.sendPoster(ctx, cid)
	case strings.HasPrefix(data, "nav:"):
		v, err := r.controller(cid).NavigateTo(ctx, strings.TrimPrefix(data, "nav:"))
		if err != nil {
			r.SendError(cid, err)
			return
		}
		r.sendView(cid, v)
	case strings.HasPrefix(data, "view:"):
		r.viewEntry(ctx, cid, strings.TrimPrefix(data, "view:"))
	case strings.HasPrefix(data, "del:"):
		// убрать кнопки у удалённой записи
		edit := tgbotapi.NewEditMessageReplyMarkup(cid, cb.Message.MessageID, tgbotapi.InlineKeyboardMarkup{
			InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{},
		})
		_, _ = r.Bot.Send(edit)
		r.deleteEntry(ctx, cid, strings.TrimPrefix(data, "del:"))
	}
}
