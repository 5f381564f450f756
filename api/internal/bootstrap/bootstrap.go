// Package bootstrap собирает зависимости приложения из конфига: провайдеры
// анализа, хранилище, каталог советов, события, выгрузку постеров и метрики.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"ecovision/api/internal/analysis"
	"ecovision/api/internal/analysis/gemini"
	"ecovision/api/internal/analysis/openai"
	"ecovision/api/internal/analysis/stub"
	"ecovision/api/internal/app"
	"ecovision/api/internal/config"
	"ecovision/api/internal/events"
	"ecovision/api/internal/metrics"
	"ecovision/api/internal/poster"
	"ecovision/api/internal/resilience"
	"ecovision/api/internal/store"
	"ecovision/api/internal/tips"
)

type Runtime struct {
	Config   *config.Config
	Log      *slog.Logger
	KV       store.KV
	Registry *analysis.Registry
	Catalog  []tips.Tip
	Metrics  *metrics.Metrics
	Sessions *app.Sessions

	closers []func()
}

// Build поднимает всё, что нужно сессиям. Недоступные NATS и MinIO
// не фатальны: события и публикация постеров просто выключаются.
func Build(ctx context.Context, cfg *config.Config, log *slog.Logger, service string) (*Runtime, error) {
	rt := &Runtime{Config: cfg, Log: log, Metrics: metrics.New(service)}

	reg, err := NewRegistry(cfg)
	if err != nil {
		return nil, err
	}
	rt.Registry = reg

	kv, err := store.Open(ctx, store.Options{Driver: cfg.StoreDriver, SQLitePath: cfg.SQLitePath, DSN: cfg.DatabaseURL})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	rt.KV = kv
	rt.closers = append(rt.closers, func() { _ = kv.Close() })
	switch cfg.StoreDriver {
	case "postgres":
		log.Info("store ready", "driver", cfg.StoreDriver, "dsn", config.SafeDSNSummary(cfg.DatabaseURL))
	default:
		log.Info("store ready", "driver", cfg.StoreDriver, "path", cfg.SQLitePath)
	}

	rt.Catalog = tips.DefaultCatalog()
	if cfg.TipsFile != "" {
		cat, err := tips.LoadCatalog(cfg.TipsFile)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("load tips: %w", err)
		}
		rt.Catalog = cat
	}

	opts := app.Options{
		Registry: reg,
		Catalog:  rt.Catalog,
		Timeout:  cfg.AnalysisTimeout,
		Observer: rt.Metrics,
		Logger:   log,
	}

	if cfg.NATSURL != "" {
		pub, err := events.NewNATS(cfg.NATSURL, cfg.NATSSubject, events.Options{Logger: log})
		if err != nil {
			log.Warn("analysis events disabled", "error", err)
		} else {
			opts.Publisher = pub
			rt.closers = append(rt.closers, pub.Close)
		}
	}

	if cfg.MinIOEndpoint != "" {
		up, err := poster.NewUploader(ctx, poster.UploaderConfig{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
		})
		if err != nil {
			log.Warn("poster publishing disabled", "error", err)
		} else {
			opts.Uploader = up
		}
	}

	rt.Sessions = app.NewSessions(opts, kv)
	return rt, nil
}

// NewRegistry: stub есть всегда, внешние провайдеры: если задан ключ.
// Дефолтом становится ANALYSIS_PROVIDER.
func NewRegistry(cfg *config.Config) (*analysis.Registry, error) {
	var br *resilience.Breakers
	if cfg.BreakerEnabled {
		br = resilience.NewBreakers(resilience.DefaultConfig())
	}

	providers := []analysis.Provider{stub.New(cfg.StubDelay, nil)}
	if cfg.GeminiAPIKey != "" {
		g := gemini.New(cfg.GeminiAPIKey, cfg.GeminiModel).WithBreakers(br)
		if cfg.GeminiBaseURL != "" {
			g.BaseURL = strings.TrimRight(cfg.GeminiBaseURL, "/")
		}
		providers = append(providers, g, gemini.NewSDK(cfg.GeminiAPIKey, cfg.GeminiModel).WithBreakers(br))
	}
	if cfg.OpenAIAPIKey != "" {
		providers = append(providers, openai.New(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL).WithBreakers(br))
	}

	reg := analysis.NewRegistry(nil, providers...)
	def, err := reg.Get(cfg.AnalysisProvider)
	if err != nil {
		return nil, errors.Join(err, errors.New("check ANALYSIS_PROVIDER and the matching API key"))
	}
	out := analysis.NewRegistry(def)
	for _, p := range providers {
		if p.Name() != def.Name() {
			out.Register(p)
		}
	}
	return out, nil
}

// Health проверяет хранилище, если оно умеет Ping (SQL-драйверы).
func (r *Runtime) Health(ctx context.Context) error {
	if p, ok := r.KV.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("store: %w", err)
		}
	}
	return nil
}

func (r *Runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
	r.closers = nil
}
