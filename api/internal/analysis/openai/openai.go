package openai

import (
	"context"
	"errors"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"ecovision/api/internal/analysis"
	"ecovision/api/internal/resilience"
	"ecovision/api/internal/util"
)

const DefaultModel = "gpt-4o-mini"

type Engine struct {
	APIKey string
	model  string
	Prompt string
	Now    func() time.Time

	client   *goopenai.Client
	breakers *resilience.Breakers
}

// New; baseURL пустой: официальный endpoint.
func New(key, model, baseURL string) *Engine {
	if strings.TrimSpace(model) == "" {
		model = DefaultModel
	}
	cfg := goopenai.DefaultConfig(strings.TrimSpace(key))
	if u := strings.TrimSpace(baseURL); u != "" {
		cfg.BaseURL = strings.TrimRight(u, "/")
	}
	return &Engine{
		APIKey: strings.TrimSpace(key),
		model:  strings.TrimSpace(model),
		Prompt: analysis.Prompt,
		Now:    time.Now,
		client: goopenai.NewClientWithConfig(cfg),
	}
}

func (e *Engine) WithBreakers(b *resilience.Breakers) *Engine {
	e.breakers = b
	return e
}

func (e *Engine) Name() string  { return "openai" }
func (e *Engine) Model() string { return e.model }

func (e *Engine) WithModel(model string) analysis.Provider {
	cp := *e
	if m := strings.TrimSpace(model); m != "" {
		cp.model = m
	}
	return &cp
}

func (e *Engine) Analyze(ctx context.Context, img analysis.Image) (analysis.Result, error) {
	var (
		res analysis.Result
		err error
	)
	callErr := e.breakers.Do(e.Name(), func() error {
		res, err = e.analyze(ctx, img)
		return err
	}, func(err error) bool { return !errors.Is(err, context.Canceled) })
	if callErr != nil && resilience.IsOpen(callErr) {
		return analysis.Result{}, analysis.Unavailable(e.Name(), analysis.ReasonCircuitOpen, callErr)
	}
	return res, err
}

func (e *Engine) analyze(ctx context.Context, img analysis.Image) (analysis.Result, error) {
	if e.APIKey == "" {
		return analysis.Result{}, analysis.Unavailable(e.Name(), analysis.ReasonConfig, errors.New("OPENAI_API_KEY is empty"))
	}
	dataURL := img.DataURI
	if dataURL == "" {
		dataURL = util.EncodeDataURL(util.PickMIME(img.MediaType, "", img.Data), img.Data)
	}

	resp, err := e.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:       e.model,
		Temperature: 0,
		ResponseFormat: &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []goopenai.ChatCompletionMessage{{
			Role: goopenai.ChatMessageRoleUser,
			MultiContent: []goopenai.ChatMessagePart{
				{Type: goopenai.ChatMessagePartTypeText, Text: e.Prompt},
				{Type: goopenai.ChatMessagePartTypeImageURL, ImageURL: &goopenai.ChatMessageImageURL{
					URL:    dataURL,
					Detail: goopenai.ImageURLDetailAuto,
				}},
			},
		}},
	})
	if err != nil {
		return analysis.Result{}, e.classify(err)
	}
	if len(resp.Choices) == 0 {
		return analysis.Result{}, analysis.Unavailable(e.Name(), analysis.ReasonNoCandidates, errors.New("no choices returned"))
	}
	txt := strings.TrimSpace(resp.Choices[0].Message.Content)
	if txt == "" {
		return analysis.Result{}, analysis.Unavailable(e.Name(), analysis.ReasonNoCandidates, errors.New("empty choice content"))
	}
	return analysis.FromText(txt, e.Now()), nil
}

func (e *Engine) classify(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return &analysis.UnavailableError{
			Provider: e.Name(),
			Reason:   analysis.ReasonAPIError,
			Status:   apiErr.HTTPStatusCode,
			Message:  apiErr.Message,
			Err:      err,
		}
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return &analysis.UnavailableError{
			Provider: e.Name(),
			Reason:   analysis.ReasonHTTPStatus,
			Status:   reqErr.HTTPStatusCode,
			Err:      err,
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return analysis.Unavailable(e.Name(), analysis.ReasonTimeout, err)
	}
	return analysis.Unavailable(e.Name(), analysis.ReasonTransport, err)
}
