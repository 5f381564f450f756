package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-chi/chi/v5"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"ecovision/api/internal/bootstrap"
	"ecovision/api/internal/config"
	"ecovision/api/internal/httpserver"
	"ecovision/api/internal/logging"
	"ecovision/api/internal/telegram"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		logging.New("ecovision-bot", "info").Error("dotenv", "error", err)
	}
	cfg := config.Load()
	log := logging.New("ecovision-bot", cfg.LogLevel)
	if err := cfg.ValidateBot(); err != nil {
		log.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.Build(ctx, cfg, log, "ecovision-bot")
	if err != nil {
		log.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer rt.Close()
	go rt.Sessions.RunJanitor(ctx, cfg.SessionIdleTTL)

	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		log.Error("telegram login failed", "error", err)
		os.Exit(1)
	}
	bot.Debug = false
	log.Info("telegram bot authorized", "username", bot.Self.UserName,
		"provider", rt.Registry.Default().Name(), "providers", rt.Registry.Names())

	r := &telegram.Router{Bot: bot, Sessions: rt.Sessions, Log: log}

	mux := chi.NewRouter()
	mux.Get("/healthz", httpserver.Healthz(rt.Health))
	mux.Handle("/metrics", rt.Metrics.Handler())

	addr := "0.0.0.0:" + cfg.Port
	if webhookURL := strings.TrimSpace(cfg.WebhookURL); webhookURL != "" {
		err = runWebhook(ctx, addr, bot, r, mux, webhookURL, rt)
	} else {
		err = runPolling(ctx, addr, bot, r, mux, rt)
	}
	r.Wait()
	if err != nil {
		log.Error("bot stopped", "error", err)
		os.Exit(1)
	}
	log.Info("bot stopped")
}

func runWebhook(ctx context.Context, addr string, bot *tgbotapi.BotAPI, r *telegram.Router, mux *chi.Mux, baseURL string, rt *bootstrap.Runtime) error {
	path := telegram.WebhookPath(bot.Token)
	wh, err := tgbotapi.NewWebhook(strings.TrimRight(baseURL, "/") + path)
	if err != nil {
		return err
	}
	wh.DropPendingUpdates = true
	if _, err := bot.Request(wh); err != nil {
		return err
	}

	updates := make(chan tgbotapi.Update, 64)
	mux.Post(path, telegram.WebhookHandler(updates, rt.Log))
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case upd := <-updates:
				r.HandleUpdate(ctx, upd)
			}
		}
	}()

	rt.Log.Info("webhook mode", "addr", addr)
	return httpserver.Serve(ctx, addr, mux, rt.Log)
}

func runPolling(ctx context.Context, addr string, bot *tgbotapi.BotAPI, r *telegram.Router, mux *chi.Mux, rt *bootstrap.Runtime) error {
	// вебхук, оставшийся с прошлого запуска, ломает getUpdates
	if _, err := bot.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		rt.Log.Warn("delete webhook failed", "error", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- httpserver.Serve(ctx, addr, mux, rt.Log) }()

	rt.Log.Info("polling mode", "addr", addr)
	telegram.RunPolling(ctx, bot, rt.Log, func(upd tgbotapi.Update) {
		r.HandleUpdate(ctx, upd)
	})

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
