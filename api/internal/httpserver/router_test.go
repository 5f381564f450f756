package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"ecovision/api/internal/analysis"
	"ecovision/api/internal/analysis/stub"
	"ecovision/api/internal/app"
	"ecovision/api/internal/logging"
	"ecovision/api/internal/metrics"
	"ecovision/api/internal/store"
)

type gatedProvider struct {
	started chan struct{}
	release chan struct{}
}

func (g *gatedProvider) Name() string  { return "gated" }
func (g *gatedProvider) Model() string { return "" }
func (g *gatedProvider) Analyze(ctx context.Context, _ analysis.Image) (analysis.Result, error) {
	close(g.started)
	select {
	case <-g.release:
	case <-ctx.Done():
		return analysis.Result{}, ctx.Err()
	}
	return analysis.NewResult([]analysis.Category{analysis.Air}, analysis.RiskHigh, 90, nil, "", time.Now()), nil
}

type failingProvider struct{ reason analysis.Reason }

func (f failingProvider) Name() string  { return "failing" }
func (f failingProvider) Model() string { return "" }
func (f failingProvider) Analyze(context.Context, analysis.Image) (analysis.Result, error) {
	return analysis.Result{}, &analysis.UnavailableError{Provider: "failing", Reason: f.reason, Message: "API key not valid"}
}

func newServer(t *testing.T, p analysis.Provider, others ...analysis.Provider) *httptest.Server {
	t.Helper()
	sessions := app.NewSessions(app.Options{
		Registry: analysis.NewRegistry(p, others...),
		Timeout:  5 * time.Second,
		Logger:   logging.Discard(),
	}, store.NewMemoryKV())
	srv := httptest.NewServer(NewRouter(Deps{
		Sessions: sessions,
		Metrics:  metrics.New("test"),
		Log:      logging.Discard(),
	}))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, contentType string, body io.Reader) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatal(err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp, b
}

func createSession(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	resp, body := do(t, http.MethodPost, srv.URL+"/v1/sessions", "", nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create session: %d %s", resp.StatusCode, body)
	}
	var out struct {
		SessionID string `json:"session_id"`
	}
	_ = json.Unmarshal(body, &out)
	if out.SessionID == "" {
		t.Fatalf("no session id in %s", body)
	}
	return srv.URL + "/v1/sessions/" + out.SessionID
}

func jpeg(size int) []byte {
	b := make([]byte, size)
	copy(b, []byte{0xFF, 0xD8, 0xFF, 0xE0})
	return b
}

func TestUploadAnalyzeHistory(t *testing.T) {
	srv := newServer(t, stub.New(0, nil))
	base := createSession(t, srv)

	resp, body := do(t, http.MethodPost, base+"/image", "image/jpeg", bytes.NewReader(jpeg(2<<20)))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload: %d %s", resp.StatusCode, body)
	}
	resp, body = do(t, http.MethodPost, base+"/analyze", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("analyze: %d %s", resp.StatusCode, body)
	}
	var v app.View
	if err := json.Unmarshal(body, &v); err != nil {
		t.Fatal(err)
	}
	if v.Page != "dashboard" || v.Dashboard == nil || v.Dashboard.Result == nil {
		t.Fatalf("unexpected view %s", body)
	}

	resp, body = do(t, http.MethodGet, base+"/history", "", nil)
	var h struct {
		History []struct {
			ID    string `json:"id"`
			Image string `json:"image"`
		} `json:"history"`
	}
	_ = json.Unmarshal(body, &h)
	if resp.StatusCode != http.StatusOK || len(h.History) != 1 || !strings.HasPrefix(h.History[0].Image, "data:image/jpeg;base64,") {
		t.Fatalf("unexpected history %d %.200s", resp.StatusCode, body)
	}

	resp, _ = do(t, http.MethodGet, base+"/history?format=xlsx", "", nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(resp.Header.Get("Content-Type"), "spreadsheetml") {
		t.Fatalf("xlsx export: %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}

	resp, body = do(t, http.MethodGet, base+"/poster", "", nil)
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/png" || len(body) == 0 {
		t.Fatalf("poster: %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}

	resp, _ = do(t, http.MethodDelete, base+"/history/"+h.History[0].ID, "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete: %d", resp.StatusCode)
	}
	resp, _ = do(t, http.MethodPost, base+"/history/"+h.History[0].ID+"/view", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("view deleted entry: expected 404, got %d", resp.StatusCode)
	}
}

func TestMultipartUpload(t *testing.T) {
	srv := newServer(t, stub.New(0, nil))
	base := createSession(t, srv)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="image"; filename="river.png"`)
	hdr.Set("Content-Type", "image/png")
	part, _ := mw.CreatePart(hdr)
	_, _ = part.Write([]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A})
	_ = mw.Close()

	resp, body := do(t, http.MethodPost, base+"/image", mw.FormDataContentType(), &buf)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"mediaType":"image/png"`) {
		t.Fatalf("multipart upload: %d %s", resp.StatusCode, body)
	}
}

func TestUploadValidation(t *testing.T) {
	srv := newServer(t, stub.New(0, nil))
	base := createSession(t, srv)

	resp, _ := do(t, http.MethodPost, base+"/image", "image/jpeg", bytes.NewReader(jpeg(15<<20)))
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("15MB: expected 413, got %d", resp.StatusCode)
	}
	resp, _ = do(t, http.MethodPost, base+"/image", "image/jpeg", bytes.NewReader(jpeg(10<<20+10)))
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("just over 10MiB: expected 413, got %d", resp.StatusCode)
	}
	resp, _ = do(t, http.MethodPost, base+"/image", "application/pdf", strings.NewReader("%PDF-1.7"))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("pdf: expected 400, got %d", resp.StatusCode)
	}
	resp, body := do(t, http.MethodGet, base, "", nil)
	if resp.StatusCode != http.StatusOK || strings.Contains(string(body), `"image"`) {
		t.Fatalf("rejected uploads must not set an image: %s", body)
	}
	resp, _ = do(t, http.MethodPost, base+"/analyze", "", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("analyze without image: expected 400, got %d", resp.StatusCode)
	}
}

func TestNavigate(t *testing.T) {
	srv := newServer(t, stub.New(0, nil))
	base := createSession(t, srv)

	resp, body := do(t, http.MethodPost, base+"/navigate", "application/json", strings.NewReader(`{"page":"tips"}`))
	if resp.StatusCode != http.StatusOK || strings.Count(string(body), `"title"`) != 6 {
		t.Fatalf("tips: %d %s", resp.StatusCode, body)
	}
	resp, body = do(t, http.MethodPost, base+"/navigate", "application/json", strings.NewReader(`{"page":"settings"}`))
	if resp.StatusCode != http.StatusNotFound || !strings.Contains(string(body), "unknown_page") {
		t.Fatalf("unknown page: %d %s", resp.StatusCode, body)
	}
	resp, _ = do(t, http.MethodGet, srv.URL+"/v1/sessions/nope", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown session: expected 404, got %d", resp.StatusCode)
	}
}

func TestConcurrentAnalyzeConflict(t *testing.T) {
	g := &gatedProvider{started: make(chan struct{}), release: make(chan struct{})}
	srv := newServer(t, g)
	base := createSession(t, srv)
	do(t, http.MethodPost, base+"/image", "image/jpeg", bytes.NewReader(jpeg(64)))

	done := make(chan int, 1)
	go func() {
		resp, err := http.Post(base+"/analyze", "", nil)
		if err != nil {
			done <- 0
			return
		}
		resp.Body.Close()
		done <- resp.StatusCode
	}()
	<-g.started

	resp, _ := do(t, http.MethodPost, base+"/analyze", "", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
	close(g.release)
	if code := <-done; code != http.StatusOK {
		t.Fatalf("first analysis: expected 200, got %d", code)
	}
}

func TestAnalysisUnavailable(t *testing.T) {
	srv := newServer(t, failingProvider{reason: analysis.ReasonAPIError})
	base := createSession(t, srv)
	do(t, http.MethodPost, base+"/image", "image/jpeg", bytes.NewReader(jpeg(64)))

	resp, body := do(t, http.MethodPost, base+"/analyze", "", nil)
	if resp.StatusCode != http.StatusBadGateway || !strings.Contains(string(body), "API key not valid") {
		t.Fatalf("expected 502 with the provider message, got %d %s", resp.StatusCode, body)
	}
	resp, body = do(t, http.MethodGet, base+"/history", "", nil)
	if resp.StatusCode != http.StatusOK || strings.Contains(string(body), `"id"`) {
		t.Fatalf("failed analysis must not add history: %s", body)
	}
}

func TestAnalysisTimeoutMapsTo504(t *testing.T) {
	srv := newServer(t, failingProvider{reason: analysis.ReasonTimeout})
	base := createSession(t, srv)
	do(t, http.MethodPost, base+"/image", "image/jpeg", bytes.NewReader(jpeg(64)))
	if resp, _ := do(t, http.MethodPost, base+"/analyze", "", nil); resp.StatusCode != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %d", resp.StatusCode)
	}
}

func TestProviderSwitch(t *testing.T) {
	srv := newServer(t, stub.New(0, nil), failingProvider{})
	base := createSession(t, srv)
	resp, body := do(t, http.MethodPost, base+"/provider", "application/json", strings.NewReader(`{"name":"failing"}`))
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"provider":"failing"`) {
		t.Fatalf("switch: %d %s", resp.StatusCode, body)
	}
	resp, _ = do(t, http.MethodPost, base+"/provider", "application/json", strings.NewReader(`{"name":"nope"}`))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown provider: expected 404, got %d", resp.StatusCode)
	}
	resp, _ = do(t, http.MethodPost, base+"/provider", "application/json", strings.NewReader(`{"name":"failing","model":"m2"}`))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("model on a fixed-model provider: expected 400, got %d", resp.StatusCode)
	}
}

func TestTipsEndpoint(t *testing.T) {
	srv := newServer(t, stub.New(0, nil))
	resp, body := do(t, http.MethodGet, srv.URL+"/v1/tips?n=3", "", nil)
	if resp.StatusCode != http.StatusOK || strings.Count(string(body), `"title"`) != 3 {
		t.Fatalf("tips: %d %s", resp.StatusCode, body)
	}
	if resp, _ := do(t, http.MethodGet, srv.URL+"/v1/tips?n=zero", "", nil); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad n: expected 400, got %d", resp.StatusCode)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newServer(t, stub.New(0, nil))
	if resp, body := do(t, http.MethodGet, srv.URL+"/healthz", "", nil); resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Fatalf("healthz: %d %s", resp.StatusCode, body)
	}
	do(t, http.MethodGet, srv.URL+"/v1/tips", "", nil)
	resp, body := do(t, http.MethodGet, srv.URL+"/metrics", "", nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `route="/v1/tips"`) {
		t.Fatalf("metrics: %d %.500s", resp.StatusCode, body)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("request id header missing")
	}
}

func TestRateLimit(t *testing.T) {
	l := newClientLimiter(1, 2)
	now := time.Now()
	if !l.allow("a", now) || !l.allow("a", now) {
		t.Fatal("burst must be allowed")
	}
	if l.allow("a", now) {
		t.Fatal("third request in the same instant must be limited")
	}
	if !l.allow("b", now) {
		t.Fatal("clients are limited independently")
	}
	if !l.allow("a", now.Add(time.Second)) {
		t.Fatal("token must refill after a second")
	}
}

func TestDataURIUpload(t *testing.T) {
	srv := newServer(t, stub.New(0, nil))
	base := createSession(t, srv)

	body := `{"image":"data:image/png;base64,iVBORw0KGgo="}`
	resp, out := do(t, http.MethodPost, base+"/image", "application/json", strings.NewReader(body))
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(out), `"mediaType":"image/png"`) {
		t.Fatalf("data uri upload: %d %s", resp.StatusCode, out)
	}
	resp, _ = do(t, http.MethodPost, base+"/image", "application/json", strings.NewReader(`{"image":"hello"}`))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("plain string: expected 400, got %d", resp.StatusCode)
	}
	resp, _ = do(t, http.MethodPost, base+"/image", "application/json",
		strings.NewReader(`{"image":"data:text/plain;base64,aGVsbG8="}`))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("text data uri: expected 400, got %d", resp.StatusCode)
	}
}
