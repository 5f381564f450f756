package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"ecovision/api/internal/analysis"
	"ecovision/api/internal/app"
	"ecovision/api/internal/session"
)

type Router struct {
	Bot      Bot
	Sessions *app.Sessions
	Log      *slog.Logger

	wg sync.WaitGroup // фоновые анализы
}

func (r *Router) logger() *slog.Logger {
	if r.Log == nil {
		return slog.Default()
	}
	return r.Log
}

// Wait дожидается запущенных анализов (graceful shutdown и тесты).
func (r *Router) Wait() { r.wg.Wait() }

func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.CallbackQuery != nil {
		r.handleCallback(ctx, *upd.CallbackQuery)
		return
	}
	if upd.Message == nil {
		return
	}
	msg := upd.Message
	switch {
	case msg.IsCommand():
		r.HandleCommand(ctx, msg)
	case len(msg.Photo) > 0:
		r.acceptPhoto(ctx, *msg)
	case msg.Document != nil:
		r.acceptDocument(ctx, *msg)
	case strings.TrimSpace(msg.Text) != "":
		r.send(msg.Chat.ID, "Send me a photo to analyze, or use /start to see the commands.")
	}
}

func (r *Router) HandleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cid := msg.Chat.ID
	c := r.controller(cid)
	arg := strings.TrimSpace(msg.CommandArguments())

	switch msg.Command() {
	case "start":
		v, _ := c.NavigateTo(ctx, string(session.PageHome))
		r.sendView(cid, v)
	case "upload":
		v, _ := c.NavigateTo(ctx, string(session.PageUpload))
		r.sendView(cid, v)
	case "analyze":
		r.startAnalysis(ctx, cid)
	case "dashboard", "tips", "history":
		v, err := c.NavigateTo(ctx, msg.Command())
		if err != nil {
			r.SendError(cid, err)
			return
		}
		r.sendView(cid, v)
	case "view":
		if arg == "" {
			r.send(cid, "Usage: /view <id>")
			return
		}
		r.viewEntry(ctx, cid, arg)
	case "delete":
		if arg == "" {
			r.send(cid, "Usage: /delete <id>")
			return
		}
		r.deleteEntry(ctx, cid, arg)
	case "remove":
		c.ClearImage()
		r.send(cid, "Image removed. Send another photo when you are ready.")
	case "poster":
		r.sendPoster(ctx, cid)
	case "engine":
		r.handleEngineCommand(cid, arg)
	case "health":
		r.send(cid, "✅ OK")
	default:
		r.send(cid, "Unknown command. Use /start to see what I can do.")
	}
}

// handleEngineCommand: /engine {stub|gemini|gemini-sdk|openai} [model]
func (r *Router) handleEngineCommand(chatID int64, arg string) {
	c := r.controller(chatID)
	args := strings.Fields(arg)
	if len(args) == 0 {
		p := c.Provider()
		r.send(chatID, fmt.Sprintf("Current engine: %s (%s)\nAvailable: %s\nUsage: /engine <name> [model]",
			p.Name(), p.Model(), strings.Join(c.Registry().Names(), " | ")))
		return
	}
	var model string
	if len(args) > 1 {
		model = args[1]
	}
	p, err := c.SetProvider(args[0], model)
	if err != nil {
		r.send(chatID, "❌ "+err.Error())
		return
	}
	r.send(chatID, fmt.Sprintf("✅ Engine: %s (%s)", p.Name(), p.Model()))
}

func (r *Router) viewEntry(ctx context.Context, chatID int64, id string) {
	v, err := r.controller(chatID).ViewHistoryEntry(ctx, id)
	if err != nil {
		r.SendError(chatID, err)
		return
	}
	r.sendView(chatID, v)
}

func (r *Router) deleteEntry(ctx context.Context, chatID int64, id string) {
	v, err := r.controller(chatID).DeleteHistoryEntry(ctx, id)
	if err != nil {
		r.SendError(chatID, err)
		return
	}
	r.send(chatID, "🗑 Deleted.")
	r.sendView(chatID, v)
}

func (r *Router) send(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := r.Bot.Send(msg); err != nil {
		r.logger().Warn("telegram send failed", "chat_id", chatID, "error", err)
	}
}

func (r *Router) sendMarkup(chatID int64, text string, kb *tgbotapi.InlineKeyboardMarkup) {
	if rs := []rune(text); len(rs) > 3900 {
		text = string(rs[:3900]) + "…"
	}
	msg := tgbotapi.NewMessage(chatID, text)
	if kb != nil {
		msg.ReplyMarkup = *kb
	}
	if _, err := r.Bot.Send(msg); err != nil {
		r.logger().Warn("telegram send failed", "chat_id", chatID, "error", err)
	}
}

// SendError переводит ошибки контроллера в сообщения для пользователя.
func (r *Router) SendError(chatID int64, err error) {
	r.send(chatID, "⚠️ "+userMessage(err))
}

func userMessage(err error) string {
	switch {
	case errors.Is(err, session.ErrNotImage):
		return "Please upload an image file."
	case errors.Is(err, session.ErrTooLarge):
		return "File size must be less than 10MB."
	case errors.Is(err, session.ErrNoImage):
		return "Please upload an image first."
	case errors.Is(err, session.ErrAnalysisInProgress):
		return "Analysis already in progress, please wait."
	case errors.Is(err, app.ErrEntryNotFound):
		return "History entry not found."
	case errors.Is(err, app.ErrNoResult):
		return "No analysis yet. Upload an image and run /analyze first."
	case errors.Is(err, app.ErrUnknownPage):
		return "Page not found."
	case errors.Is(err, app.ErrPublishDisabled):
		return "Poster publishing is not configured."
	case errors.Is(err, analysis.ErrUnavailable):
		return fmt.Sprintf("Analysis unavailable right now (%s), please try again later.", analysis.ReasonOf(err))
	default:
		return "Something went wrong: " + err.Error()
	}
}
