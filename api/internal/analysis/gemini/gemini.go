package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ecovision/api/internal/analysis"
	"ecovision/api/internal/resilience"
	"ecovision/api/internal/util"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1"
	DefaultModel   = "gemini-2.5-flash"
	maxErrBody     = 2048
)

// Engine: прямой REST generateContent, ключ в query-string.
type Engine struct {
	APIKey  string
	model   string
	BaseURL string
	Prompt  string
	Now     func() time.Time

	httpc    *http.Client
	breakers *resilience.Breakers
}

func New(key, model string) *Engine {
	if strings.TrimSpace(model) == "" {
		model = DefaultModel
	}
	return &Engine{
		APIKey:  strings.TrimSpace(key),
		model:   strings.TrimSpace(model),
		BaseURL: DefaultBaseURL,
		Prompt:  analysis.Prompt,
		Now:     time.Now,
		httpc:   &http.Client{Timeout: 60 * time.Second},
	}
}

// WithBreakers включает circuit breaker (без ретраев).
func (e *Engine) WithBreakers(b *resilience.Breakers) *Engine {
	e.breakers = b
	return e
}

// WithHTTPClient: для тестов и кастомного транспорта.
func (e *Engine) WithHTTPClient(c *http.Client) *Engine {
	e.httpc = c
	return e
}

func (e *Engine) Name() string  { return "gemini" }
func (e *Engine) Model() string { return e.model }

// WithModel: копия движка с другой моделью; http-клиент и breakers общие.
func (e *Engine) WithModel(model string) analysis.Provider {
	cp := *e
	if m := strings.TrimSpace(model); m != "" {
		cp.model = m
	}
	return &cp
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type content struct {
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (e *Engine) Analyze(ctx context.Context, img analysis.Image) (analysis.Result, error) {
	var (
		res analysis.Result
		err error
	)
	callErr := e.breakers.Do(e.Name(), func() error {
		res, err = e.analyze(ctx, img)
		return err
	}, countsAsFailure)
	if callErr != nil && resilience.IsOpen(callErr) {
		return analysis.Result{}, analysis.Unavailable(e.Name(), analysis.ReasonCircuitOpen, callErr)
	}
	return res, err
}

// RawText: один вызов без нормализации (как демо-скрипт: печатаем текст модели).
func (e *Engine) RawText(ctx context.Context, img analysis.Image) (string, error) {
	return e.generate(ctx, img)
}

func (e *Engine) analyze(ctx context.Context, img analysis.Image) (analysis.Result, error) {
	txt, err := e.generate(ctx, img)
	if err != nil {
		return analysis.Result{}, err
	}
	return analysis.FromText(txt, e.Now()), nil
}

func (e *Engine) generate(ctx context.Context, img analysis.Image) (string, error) {
	if e.APIKey == "" {
		return "", analysis.Unavailable(e.Name(), analysis.ReasonConfig, errors.New("GEMINI_API_KEY is empty"))
	}

	mime := util.PickMIME(img.MediaType, "", img.Data)
	body := generateRequest{Contents: []content{{Parts: []part{
		{Text: e.Prompt},
		{InlineData: &inlineData{MimeType: mime, Data: base64.StdEncoding.EncodeToString(img.Data)}},
	}}}}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", analysis.Unavailable(e.Name(), analysis.ReasonDecode, err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		strings.TrimRight(e.BaseURL, "/"), url.PathEscape(e.model), url.QueryEscape(e.APIKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", analysis.Unavailable(e.Name(), analysis.ReasonConfig, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpc.Do(req)
	if err != nil {
		reason := analysis.ReasonTransport
		var ne net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
			reason = analysis.ReasonTimeout
		}
		return "", analysis.Unavailable(e.Name(), reason, redactKey(err, e.APIKey))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", analysis.Unavailable(e.Name(), analysis.ReasonTransport, err)
	}

	var out generateResponse
	decodeErr := json.Unmarshal(raw, &out)

	// error-payload приоритетнее статуса: в нём человекочитаемое сообщение
	if decodeErr == nil && out.Error != nil {
		return "", &analysis.UnavailableError{
			Provider: e.Name(),
			Reason:   analysis.ReasonAPIError,
			Status:   resp.StatusCode,
			Message:  out.Error.Message,
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &analysis.UnavailableError{
			Provider: e.Name(),
			Reason:   analysis.ReasonHTTPStatus,
			Status:   resp.StatusCode,
			Err:      fmt.Errorf("gemini %d: %s", resp.StatusCode, truncate(string(raw), maxErrBody)),
		}
	}
	if decodeErr != nil {
		return "", analysis.Unavailable(e.Name(), analysis.ReasonDecode, decodeErr)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", analysis.Unavailable(e.Name(), analysis.ReasonNoCandidates, errors.New("no candidates returned"))
	}

	txt := strings.TrimSpace(out.Candidates[0].Content.Parts[0].Text)
	if txt == "" {
		return "", analysis.Unavailable(e.Name(), analysis.ReasonNoCandidates, errors.New("empty candidate text"))
	}
	return txt, nil
}

// Отмена клиентом: не вина провайдера.
func countsAsFailure(err error) bool {
	return !errors.Is(err, context.Canceled)
}

// url.Error печатает URL целиком вместе с ?key=...
func redactKey(err error, key string) error {
	if key == "" {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), url.QueryEscape(key), "REDACTED"))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
