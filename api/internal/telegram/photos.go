package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"ecovision/api/internal/session"
	"ecovision/api/internal/util"
)

func (r *Router) acceptPhoto(ctx context.Context, msg tgbotapi.Message) {
	// берём самое большое превью
	ph := msg.Photo[len(msg.Photo)-1]
	if ph.FileSize > session.MaxImageBytes {
		r.SendError(msg.Chat.ID, session.ErrTooLarge)
		return
	}
	// фото Telegram всегда перекодирует в JPEG, но MIME не сообщает: определяем по байтам
	r.acceptFile(ctx, msg.Chat.ID, ph.FileID, "")
}

func (r *Router) acceptDocument(ctx context.Context, msg tgbotapi.Message) {
	doc := msg.Document
	if !strings.HasPrefix(strings.ToLower(doc.MimeType), "image/") {
		r.SendError(msg.Chat.ID, session.ErrNotImage)
		return
	}
	if doc.FileSize > session.MaxImageBytes {
		r.SendError(msg.Chat.ID, session.ErrTooLarge)
		return
	}
	r.acceptFile(ctx, msg.Chat.ID, doc.FileID, doc.MimeType)
}

func (r *Router) acceptFile(ctx context.Context, chatID int64, fileID, mediaType string) {
	url, err := r.Bot.GetFileDirectURL(fileID)
	if err != nil {
		r.logger().Warn("telegram get file failed", "chat_id", chatID, "error", err)
		r.send(chatID, "⚠️ Could not fetch the file from Telegram, please try again.")
		return
	}
	data, err := download(ctx, url)
	if err != nil {
		r.logger().Warn("telegram download failed", "chat_id", chatID, "error", err)
		r.send(chatID, "⚠️ Could not download the file, please try again.")
		return
	}
	if mediaType == "" {
		mediaType = util.SniffMimeHTTP(data)
	}

	img, err := r.controller(chatID).SetImage(data, mediaType)
	if err != nil {
		r.SendError(chatID, err)
		return
	}
	kb := uploadKeyboard()
	r.sendMarkup(chatID, fmt.Sprintf("📷 Image received (%s, %s). Press Analyze when ready.",
		img.MediaType, humanSize(img.Size())), &kb)
}

func download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(b))
	}
	// +1 байт, чтобы SetImage увидел превышение лимита
	return io.ReadAll(io.LimitReader(resp.Body, session.MaxImageBytes+1))
}

func httpClient() *http.Client {
	return &http.Client{Timeout: 60 * time.Second}
}

func humanSize(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.0f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
