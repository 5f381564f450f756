package gemini

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"ecovision/api/internal/analysis"
	"ecovision/api/internal/resilience"
	"ecovision/api/internal/util"
)

// SDKEngine: тот же анализ через официальный genai-клиент.
type SDKEngine struct {
	APIKey string
	model  string
	Prompt string
	Now    func() time.Time

	breakers *resilience.Breakers
	opts     []option.ClientOption
}

func NewSDK(apiKey, model string, opts ...option.ClientOption) *SDKEngine {
	if strings.TrimSpace(model) == "" {
		model = DefaultModel
	}
	return &SDKEngine{
		APIKey: strings.TrimSpace(apiKey),
		model:  strings.TrimSpace(model),
		Prompt: analysis.Prompt,
		Now:    time.Now,
		opts:   opts,
	}
}

func (e *SDKEngine) WithBreakers(b *resilience.Breakers) *SDKEngine {
	e.breakers = b
	return e
}

func (e *SDKEngine) Name() string  { return "gemini-sdk" }
func (e *SDKEngine) Model() string { return e.model }

func (e *SDKEngine) WithModel(model string) analysis.Provider {
	cp := *e
	if m := strings.TrimSpace(model); m != "" {
		cp.model = m
	}
	return &cp
}

func (e *SDKEngine) Analyze(ctx context.Context, img analysis.Image) (analysis.Result, error) {
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

func (e *SDKEngine) analyze(ctx context.Context, img analysis.Image) (analysis.Result, error) {
	if e.APIKey == "" {
		return analysis.Result{}, analysis.Unavailable(e.Name(), analysis.ReasonConfig, errors.New("GEMINI_API_KEY is empty"))
	}
	opts := append([]option.ClientOption{option.WithAPIKey(e.APIKey)}, e.opts...)
	cl, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return analysis.Result{}, analysis.Unavailable(e.Name(), analysis.ReasonConfig, err)
	}
	defer cl.Close()

	m := cl.GenerativeModel(e.model)
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:      ptrFloat32(0),
		ResponseMIMEType: "application/json",
	}

	mime := util.PickMIME(img.MediaType, "", img.Data)
	resp, err := m.GenerateContent(ctx,
		genai.Text(e.Prompt),
		genai.Blob{MIMEType: mime, Data: img.Data},
	)
	if err != nil {
		return analysis.Result{}, e.classify(err)
	}
	txt := firstText(resp)
	if txt == "" {
		return analysis.Result{}, analysis.Unavailable(e.Name(), analysis.ReasonNoCandidates, errors.New("empty response"))
	}
	return analysis.FromText(txt, e.Now()), nil
}

func (e *SDKEngine) classify(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		reason := analysis.ReasonHTTPStatus
		if gerr.Message != "" && gerr.Code != http.StatusInternalServerError {
			reason = analysis.ReasonAPIError
		}
		return &analysis.UnavailableError{
			Provider: e.Name(),
			Reason:   reason,
			Status:   gerr.Code,
			Message:  gerr.Message,
			Err:      err,
		}
	}
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return analysis.Unavailable(e.Name(), analysis.ReasonNoCandidates, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return analysis.Unavailable(e.Name(), analysis.ReasonTimeout, err)
	}
	return analysis.Unavailable(e.Name(), analysis.ReasonTransport, err)
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, c := range resp.Candidates {
		if c == nil || c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				if s := strings.TrimSpace(string(t)); s != "" {
					return s
				}
			}
		}
	}
	return ""
}

func ptrFloat32(f float32) *float32 { return &f }
