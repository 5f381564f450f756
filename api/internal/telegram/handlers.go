package telegram

import (
	"context"
	"errors"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"ecovision/api/internal/app"
)

// startAnalysis: сессия занимается синхронно, затем сообщение о загрузке;
// дашборд: когда анализ закончится в отдельной горутине.
func (r *Router) startAnalysis(ctx context.Context, chatID int64) {
	c := r.controller(chatID)
	run, err := c.StartAnalysis()
	if err != nil {
		r.SendError(chatID, err)
		return
	}
	r.send(chatID, "🔍 Analyzing your image… this can take a few seconds.")

	// апдейт уже обработан; анализ живёт дольше его контекста
	actx := context.WithoutCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		start := time.Now()
		v, err := run(actx)
		if err != nil {
			r.logger().Info("telegram analysis failed", "chat_id", chatID, "error", err)
			r.SendError(chatID, err)
			return
		}
		r.logger().Info("telegram analysis done", "chat_id", chatID, "took", time.Since(start))
		r.sendView(chatID, v)
	}()
}

func (r *Router) sendPoster(ctx context.Context, chatID int64) {
	c := r.controller(chatID)
	png, err := c.Poster(ctx)
	if err != nil {
		r.SendError(chatID, err)
		return
	}
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: "ecovision-report.png", Bytes: png})
	photo.Caption = "EcoVision AI Analysis Report"
	if _, err := r.Bot.Send(photo); err != nil {
		r.logger().Warn("telegram poster send failed", "chat_id", chatID, "error", err)
		return
	}
	if url, err := c.PublishPoster(ctx); err == nil {
		r.send(chatID, "🔗 "+url)
	} else if !errors.Is(err, app.ErrPublishDisabled) {
		r.logger().Warn("poster publish failed", "chat_id", chatID, "error", err)
	}
}
