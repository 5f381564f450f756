package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"ecovision/api/internal/analysis"
	"ecovision/api/internal/app"
	"ecovision/api/internal/metrics"
	"ecovision/api/internal/session"
	"ecovision/api/internal/tips"
	"ecovision/api/internal/util"
)

// лимит изображения в base64 (JSON с data URI) плюс запас на обвязку
const maxBodyBytes = session.MaxImageBytes*4/3 + 1<<20

type Deps struct {
	Sessions *app.Sessions
	Catalog  []tips.Tip
	Metrics  *metrics.Metrics // nil: без /metrics
	Log      *slog.Logger
	Health   func(context.Context) error

	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
}

type Router struct {
	sessions *app.Sessions
	catalog  []tips.Tip
	log      *slog.Logger
}

func NewRouter(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if len(d.Catalog) == 0 {
		d.Catalog = tips.DefaultCatalog()
	}
	rt := &Router{sessions: d.Sessions, catalog: d.Catalog, log: d.Log}

	mux := chi.NewRouter()
	mux.Use(requestID(d.Log))
	if d.Metrics != nil {
		mux.Use(d.Metrics.Middleware)
	}
	origins := d.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	mux.Get("/healthz", Healthz(d.Health))
	if d.Metrics != nil {
		mux.Handle("/metrics", d.Metrics.Handler())
	}

	limiter := newClientLimiter(d.RateLimitRPS, d.RateLimitBurst)
	mux.Route("/v1", func(v1 chi.Router) {
		v1.Use(limiter.Middleware)
		v1.Get("/tips", rt.wrap(rt.handleTips))
		v1.Post("/sessions", rt.wrap(rt.handleCreateSession))
		v1.Route("/sessions/{sid}", func(s chi.Router) {
			s.Get("/", rt.wrap(rt.handleGetSession))
			s.Post("/image", rt.wrap(rt.handleSetImage))
			s.Delete("/image", rt.wrap(rt.handleClearImage))
			s.Post("/analyze", rt.wrap(rt.handleAnalyze))
			s.Post("/navigate", rt.wrap(rt.handleNavigate))
			s.Get("/history", rt.wrap(rt.handleHistory))
			s.Post("/history/{id}/view", rt.wrap(rt.handleViewEntry))
			s.Delete("/history/{id}", rt.wrap(rt.handleDeleteEntry))
			s.Post("/tips/refresh", rt.wrap(rt.handleRefreshTips))
			s.Get("/poster", rt.wrap(rt.handlePoster))
			s.Post("/poster/publish", rt.wrap(rt.handlePublishPoster))
			s.Post("/provider", rt.wrap(rt.handleProvider))
		})
	})
	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (rt *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			status, code := statusFor(err)
			if status >= 500 {
				rt.log.Error("request failed", "method", req.Method, "path", req.URL.Path,
					"status", status, "code", code, "error", err, "request_id", w.Header().Get("X-Request-ID"))
			}
			writeError(w, status, code, err.Error())
		}
	}
}

var errSessionNotFound = errors.New("session not found")

// statusFor сопоставляет ошибки контроллера HTTP-кодам.
func statusFor(err error) (int, string) {
	var mbe *http.MaxBytesError
	switch {
	case errors.As(err, &mbe), errors.Is(err, session.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "too_large"
	case errors.Is(err, session.ErrNotImage), errors.Is(err, session.ErrValidation):
		return http.StatusBadRequest, "not_image"
	case errors.Is(err, session.ErrNoImage):
		return http.StatusBadRequest, "no_image"
	case errors.Is(err, app.ErrNoResult):
		return http.StatusBadRequest, "no_result"
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, app.ErrUnknownPage):
		return http.StatusNotFound, "unknown_page"
	case errors.Is(err, app.ErrEntryNotFound):
		return http.StatusNotFound, "entry_not_found"
	case errors.Is(err, errSessionNotFound):
		return http.StatusNotFound, "session_not_found"
	case errors.Is(err, app.ErrUnknownProvider):
		return http.StatusNotFound, "unknown_provider"
	case errors.Is(err, app.ErrModelUnsupported):
		return http.StatusBadRequest, "model_unsupported"
	case errors.Is(err, session.ErrAnalysisInProgress):
		return http.StatusConflict, "analysis_in_progress"
	case errors.Is(err, app.ErrPublishDisabled):
		return http.StatusNotImplemented, "publish_disabled"
	case analysis.ReasonOf(err) == analysis.ReasonTimeout:
		return http.StatusGatewayTimeout, "analysis_timeout"
	case errors.Is(err, analysis.ErrUnavailable):
		return http.StatusBadGateway, "analysis_unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

var errBadRequest = errors.New("bad request")

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Error: code, Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func requestID(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-ID")
			if _, err := uuid.Parse(id); err != nil {
				id = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", id)
			start := time.Now()
			next.ServeHTTP(w, r)
			log.Debug("http request", "method", r.Method, "path", r.URL.Path, "request_id", id, "took", time.Since(start))
		})
	}
}

func (rt *Router) controller(req *http.Request) (*app.Controller, error) {
	sid := chi.URLParam(req, "sid")
	c, ok := rt.sessions.Lookup(sid)
	if !ok {
		return nil, errSessionNotFound
	}
	return c, nil
}

// GET /v1/tips?n=6
func (rt *Router) handleTips(w http.ResponseWriter, req *http.Request) error {
	n := tips.DefaultCount
	if s := req.URL.Query().Get("n"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 {
			return errors.Join(errBadRequest, errors.New("n must be a positive integer"))
		}
		n = v
	}
	writeJSON(w, http.StatusOK, map[string]any{"tips": tips.Pick(rt.catalog, n, nil)})
	return nil
}

// POST /v1/sessions
func (rt *Router) handleCreateSession(w http.ResponseWriter, req *http.Request) error {
	id, c := rt.sessions.Create()
	writeJSON(w, http.StatusCreated, map[string]any{"session_id": id, "view": c.Current(req.Context())})
	return nil
}

// GET /v1/sessions/{sid}
func (rt *Router) handleGetSession(w http.ResponseWriter, req *http.Request) error {
	c, err := rt.controller(req)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, c.Current(req.Context()))
	return nil
}

// POST /v1/sessions/{sid}/image: multipart поле "image", JSON с data URI или сырое тело с Content-Type.
func (rt *Router) handleSetImage(w http.ResponseWriter, req *http.Request) error {
	c, err := rt.controller(req)
	if err != nil {
		return err
	}
	req.Body = http.MaxBytesReader(w, req.Body, maxBodyBytes)

	var (
		data      []byte
		mediaType string
	)
	ct, _, _ := mime.ParseMediaType(req.Header.Get("Content-Type"))
	switch ct {
	case "application/json":
		// {"image": "data:image/png;base64,..."}: формат поля image в истории
		var body struct {
			Image string `json:"image"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				return err
			}
			return errors.Join(errBadRequest, err)
		}
		if data, mediaType, err = util.DecodeDataURL(body.Image); err != nil {
			return errors.Join(errBadRequest, err)
		}
	case "multipart/form-data":
		f, hdr, err := req.FormFile("image")
		if err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				return err
			}
			return errors.Join(errBadRequest, errors.New(`multipart field "image" is required`))
		}
		defer f.Close()
		if data, err = io.ReadAll(f); err != nil {
			return err
		}
		mediaType = hdr.Header.Get("Content-Type")
	default:
		if data, err = io.ReadAll(req.Body); err != nil {
			return err
		}
		mediaType = req.Header.Get("Content-Type")
	}

	img, err := c.SetImage(data, strings.TrimSpace(mediaType))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"mediaType": img.MediaType,
		"size":      img.Size(),
		"view":      c.Current(req.Context()),
	})
	return nil
}

// DELETE /v1/sessions/{sid}/image
func (rt *Router) handleClearImage(w http.ResponseWriter, req *http.Request) error {
	c, err := rt.controller(req)
	if err != nil {
		return err
	}
	c.ClearImage()
	writeJSON(w, http.StatusOK, c.Current(req.Context()))
	return nil
}

// POST /v1/sessions/{sid}/analyze
func (rt *Router) handleAnalyze(w http.ResponseWriter, req *http.Request) error {
	c, err := rt.controller(req)
	if err != nil {
		return err
	}
	v, err := c.Analyze(req.Context())
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, v)
	return nil
}

// POST /v1/sessions/{sid}/navigate {"page": "..."}
func (rt *Router) handleNavigate(w http.ResponseWriter, req *http.Request) error {
	c, err := rt.controller(req)
	if err != nil {
		return err
	}
	var body struct {
		Page string `json:"page"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return errors.Join(errBadRequest, err)
	}
	v, err := c.NavigateTo(req.Context(), body.Page)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, v)
	return nil
}

// GET /v1/sessions/{sid}/history[?format=xlsx]
func (rt *Router) handleHistory(w http.ResponseWriter, req *http.Request) error {
	c, err := rt.controller(req)
	if err != nil {
		return err
	}
	if req.URL.Query().Get("format") == "xlsx" {
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="ecovision-history.xlsx"`)
		return c.ExportHistory(req.Context(), w)
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": c.History(req.Context())})
	return nil
}

// POST /v1/sessions/{sid}/history/{id}/view
func (rt *Router) handleViewEntry(w http.ResponseWriter, req *http.Request) error {
	c, err := rt.controller(req)
	if err != nil {
		return err
	}
	v, err := c.ViewHistoryEntry(req.Context(), chi.URLParam(req, "id"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, v)
	return nil
}

// DELETE /v1/sessions/{sid}/history/{id}
func (rt *Router) handleDeleteEntry(w http.ResponseWriter, req *http.Request) error {
	c, err := rt.controller(req)
	if err != nil {
		return err
	}
	v, err := c.DeleteHistoryEntry(req.Context(), chi.URLParam(req, "id"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, v)
	return nil
}

// POST /v1/sessions/{sid}/tips/refresh
func (rt *Router) handleRefreshTips(w http.ResponseWriter, req *http.Request) error {
	c, err := rt.controller(req)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]any{"tips": c.RefreshTips()})
	return nil
}

// GET /v1/sessions/{sid}/poster
func (rt *Router) handlePoster(w http.ResponseWriter, req *http.Request) error {
	c, err := rt.controller(req)
	if err != nil {
		return err
	}
	png, err := c.Poster(req.Context())
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", `attachment; filename="ecovision-report.png"`)
	_, err = w.Write(png)
	return err
}

// POST /v1/sessions/{sid}/poster/publish
func (rt *Router) handlePublishPoster(w http.ResponseWriter, req *http.Request) error {
	c, err := rt.controller(req)
	if err != nil {
		return err
	}
	url, err := c.PublishPoster(req.Context())
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
	return nil
}

// POST /v1/sessions/{sid}/provider {"name": "...", "model": "..."}
func (rt *Router) handleProvider(w http.ResponseWriter, req *http.Request) error {
	c, err := rt.controller(req)
	if err != nil {
		return err
	}
	var body struct {
		Name  string `json:"name"`
		Model string `json:"model"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return errors.Join(errBadRequest, err)
	}
	p, err := c.SetProvider(body.Name, body.Model)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]string{"provider": p.Name(), "model": p.Model()})
	return nil
}
