package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"ecovision/api/internal/analysis"
	"ecovision/api/internal/events"
	"ecovision/api/internal/history"
	"ecovision/api/internal/poster"
	"ecovision/api/internal/session"
	"ecovision/api/internal/tips"
)

var (
	ErrUnknownPage      = errors.New("page not found")
	ErrEntryNotFound    = errors.New("history entry not found")
	ErrNoResult         = errors.New("no analysis result")
	ErrPublishDisabled  = errors.New("poster publishing is not configured")
	ErrUnknownProvider  = analysis.ErrUnknownProvider
	ErrModelUnsupported = analysis.ErrModelUnsupported
)

const DefaultAnalysisTimeout = 60 * time.Second

// Observer получает метрики контроллера; nil: ничего не пишем.
type Observer interface {
	ObserveAnalysis(provider, outcome string, d time.Duration)
	ObserveNavigation(page, status string)
}

// PosterUploader публикует PNG и возвращает URL.
type PosterUploader interface {
	Upload(ctx context.Context, key string, png []byte) (string, error)
}

type Options struct {
	Scope     string // chat id / client id, для логов, событий и ключа постера
	History   *history.Store
	Registry  *analysis.Registry
	Catalog   []tips.Tip
	Timeout   time.Duration
	Publisher events.Publisher
	Uploader  PosterUploader
	Observer  Observer
	Logger    *slog.Logger
	Rand      *rand.Rand
}

// Controller: команды одной сессии: навигация, загрузка, анализ, история, советы.
type Controller struct {
	scope     string
	sess      *session.Session
	registry  *analysis.Registry
	catalog   []tips.Tip
	timeout   time.Duration
	publisher events.Publisher
	uploader  PosterUploader
	obs       Observer
	log       *slog.Logger

	mu       sync.Mutex
	provider analysis.Provider
	tips     []tips.Tip
	rng      *rand.Rand
	entryID  history.ID // запись, из которой показан текущий результат
}

func New(o Options) *Controller {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.History == nil {
		panic("app: history store is required")
	}
	if o.Registry == nil {
		panic("app: provider registry is required")
	}
	if len(o.Catalog) == 0 {
		o.Catalog = tips.DefaultCatalog()
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultAnalysisTimeout
	}
	if o.Publisher == nil {
		o.Publisher = events.Nop{}
	}
	if o.Observer == nil {
		o.Observer = nopObserver{}
	}
	if o.Rand == nil {
		o.Rand = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), rand.Uint64()))
	}
	c := &Controller{
		scope:     o.Scope,
		sess:      session.New(o.History),
		registry:  o.Registry,
		catalog:   o.Catalog,
		timeout:   o.Timeout,
		publisher: o.Publisher,
		uploader:  o.Uploader,
		obs:       o.Observer,
		log:       o.Logger.With("scope", o.Scope),
		provider:  o.Registry.Default(),
		rng:       o.Rand,
	}
	c.tips = tips.Pick(c.catalog, tips.DefaultCount, c.rng)
	return c
}

func (c *Controller) Scope() string { return c.scope }

func (c *Controller) State() session.State { return c.sess.Snapshot() }

func (c *Controller) Provider() analysis.Provider {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.provider
}

// SetProvider переключает провайдер сессии по имени из реестра.
// Непустая model действует только на эту сессию.
func (c *Controller) SetProvider(name, model string) (analysis.Provider, error) {
	p, err := c.registry.Get(name)
	if err != nil {
		return nil, err
	}
	if model = strings.TrimSpace(model); model != "" {
		ms, ok := p.(analysis.ModelSelector)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrModelUnsupported, p.Name())
		}
		p = ms.WithModel(model)
	}
	c.mu.Lock()
	c.provider = p
	c.mu.Unlock()
	c.log.Info("provider switched", "provider", p.Name(), "model", p.Model())
	return p, nil
}

func (c *Controller) Registry() *analysis.Registry { return c.registry }

// NavigateTo: неизвестная страница: ошибка, текущая страница не меняется.
func (c *Controller) NavigateTo(ctx context.Context, page string) (View, error) {
	p, ok := session.ParsePage(page)
	if !ok {
		c.obs.ObserveNavigation("unknown", "not_found")
		c.log.Warn("navigation to unknown page", "page", page)
		return c.Current(ctx), fmt.Errorf("%w: %q", ErrUnknownPage, page)
	}
	if p == session.PageTips {
		c.RefreshTips()
	}
	c.sess.SetPage(p)
	c.obs.ObserveNavigation(string(p), "ok")
	c.log.Debug("navigated", "page", p)
	return c.Current(ctx), nil
}

// Current собирает представление текущей страницы.
func (c *Controller) Current(ctx context.Context) View {
	st := c.sess.Snapshot()
	v := View{Page: st.Page, Loading: st.Analyzing, Image: st.Image}
	if p := c.Provider(); p != nil {
		v.Provider = p.Name()
	}
	switch st.Page {
	case session.PageDashboard:
		v.Dashboard = NewDashboardView(st.Result)
	case session.PageTips:
		v.Tips = c.Tips()
	case session.PageHistory:
		v.History = c.History(ctx)
	}
	return v
}

func (c *Controller) SetImage(data []byte, mediaType string) (analysis.Image, error) {
	img, err := c.sess.SetImage(data, mediaType)
	if err != nil {
		c.log.Info("image rejected", "media_type", mediaType, "size", len(data), "error", err)
		return analysis.Image{}, err
	}
	c.sess.SetPage(session.PageUpload)
	c.log.Debug("image accepted", "media_type", img.MediaType, "size", img.Size())
	return img, nil
}

func (c *Controller) ClearImage() { c.sess.ClearImage() }

// Analyze: полный цикл: анализ текущего изображения с таймаутом, запись в историю,
// событие, переход на дашборд. При ошибке результат и история не меняются.
func (c *Controller) Analyze(ctx context.Context) (View, error) {
	run, err := c.StartAnalysis()
	if err != nil {
		return c.Current(ctx), err
	}
	return run(ctx)
}

// StartAnalysis сразу занимает сессию (второй вызов получит ErrAnalysisInProgress),
// а вызов провайдера откладывает до run. run нужно вызвать ровно один раз.
func (c *Controller) StartAnalysis() (run func(context.Context) (View, error), err error) {
	img, err := c.sess.BeginAnalysis()
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context) (View, error) {
		res, entry, err := c.runAnalysis(ctx, img)
		c.sess.EndAnalysis()
		if err != nil {
			return c.Current(ctx), err
		}

		c.mu.Lock()
		c.entryID = entry.ID
		c.mu.Unlock()

		c.log.Info("analysis completed",
			"entry_id", entry.ID,
			"categories", res.Categories,
			"risk", res.RiskLevel,
			"confidence", res.Confidence)
		return c.NavigateTo(ctx, string(session.PageDashboard))
	}, nil
}

func (c *Controller) runAnalysis(ctx context.Context, img analysis.Image) (analysis.Result, history.Entry, error) {
	p := c.Provider()
	actx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	res, err := p.Analyze(actx, img)
	took := time.Since(start)
	if err != nil {
		err = normalizeError(actx, p, err)
		reason := analysis.ReasonOf(err)
		c.obs.ObserveAnalysis(p.Name(), string(reason), took)
		c.log.Error("analysis failed", "provider", p.Name(), "reason", reason, "took", took, "error", err)
		return analysis.Result{}, history.Entry{}, err
	}
	c.obs.ObserveAnalysis(p.Name(), "success", took)

	entry, err := c.sess.RecordResult(ctx, res)
	if err != nil {
		// результат уже показан; потеря записи истории не отменяет анализ
		c.log.Error("history append failed", "error", err)
		return res, entry, nil
	}
	if err := c.publisher.PublishAnalysis(ctx, c.scope, entry); err != nil {
		c.log.Warn("analysis event not published", "entry_id", entry.ID, "error", err)
	}
	return res, entry, nil
}

// normalizeError: таймаут и отмена без типизированной ошибки провайдера
// тоже считаются недоступностью анализа.
func normalizeError(actx context.Context, p analysis.Provider, err error) error {
	var ue *analysis.UnavailableError
	if errors.As(err, &ue) {
		return err
	}
	if errors.Is(actx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return analysis.Unavailable(p.Name(), analysis.ReasonTimeout, err)
	}
	return analysis.Unavailable(p.Name(), analysis.ReasonTransport, err)
}

// ViewHistoryEntry показывает сохранённый результат на дашборде.
func (c *Controller) ViewHistoryEntry(ctx context.Context, id string) (View, error) {
	e, ok := c.sess.History().Find(ctx, history.ID(id))
	if !ok {
		return c.Current(ctx), fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	c.sess.ShowResult(e.Result)
	c.mu.Lock()
	c.entryID = e.ID
	c.mu.Unlock()
	return c.NavigateTo(ctx, string(session.PageDashboard))
}

// DeleteHistoryEntry идемпотентен и перерисовывает историю.
func (c *Controller) DeleteHistoryEntry(ctx context.Context, id string) (View, error) {
	if err := c.sess.History().Remove(ctx, history.ID(id)); err != nil {
		c.log.Error("history remove failed", "entry_id", id, "error", err)
		return c.Current(ctx), err
	}
	c.log.Info("history entry removed", "entry_id", id)
	return c.NavigateTo(ctx, string(session.PageHistory))
}

func (c *Controller) History(ctx context.Context) []history.Entry {
	return c.sess.History().Load(ctx)
}

func (c *Controller) ExportHistory(ctx context.Context, w io.Writer) error {
	return history.WriteXLSX(w, c.History(ctx))
}

// RefreshTips выбирает новые 6 советов.
func (c *Controller) RefreshTips() []tips.Tip {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tips = tips.Pick(c.catalog, tips.DefaultCount, c.rng)
	return append([]tips.Tip(nil), c.tips...)
}

func (c *Controller) Tips() []tips.Tip {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]tips.Tip(nil), c.tips...)
}

func (c *Controller) Catalog() []tips.Tip { return append([]tips.Tip(nil), c.catalog...) }

// Poster: PNG-отчёт текущего результата.
func (c *Controller) Poster(ctx context.Context) ([]byte, error) {
	st := c.sess.Snapshot()
	if st.Result == nil {
		return nil, ErrNoResult
	}
	return poster.Render(*st.Result)
}

// PublishPoster рендерит постер и кладёт его в объектное хранилище.
func (c *Controller) PublishPoster(ctx context.Context) (string, error) {
	if c.uploader == nil {
		return "", ErrPublishDisabled
	}
	png, err := c.Poster(ctx)
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	id := c.entryID
	c.mu.Unlock()
	if id == "" {
		id = history.ID(fmt.Sprintf("%d", time.Now().UnixMilli()))
	}
	url, err := c.uploader.Upload(ctx, poster.ObjectKey(c.scope, string(id)), png)
	if err != nil {
		c.log.Error("poster upload failed", "entry_id", id, "error", err)
		return "", err
	}
	c.log.Info("poster published", "entry_id", id, "url", url)
	return url, nil
}

type nopObserver struct{}

func (nopObserver) ObserveAnalysis(string, string, time.Duration) {}
func (nopObserver) ObserveNavigation(string, string)              {}
