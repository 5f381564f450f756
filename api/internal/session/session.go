package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"ecovision/api/internal/analysis"
	"ecovision/api/internal/history"
	"ecovision/api/internal/util"
)

type Page string

const (
	PageHome      Page = "home"
	PageUpload    Page = "upload"
	PageDashboard Page = "dashboard"
	PageTips      Page = "tips"
	PageHistory   Page = "history"
)

var Pages = []Page{PageHome, PageUpload, PageDashboard, PageTips, PageHistory}

// ParsePage: регистр и пробелы не важны.
func ParsePage(s string) (Page, bool) {
	p := Page(strings.ToLower(strings.TrimSpace(s)))
	for _, x := range Pages {
		if x == p {
			return p, true
		}
	}
	return "", false
}

const MaxImageBytes = 10 << 20

var (
	ErrValidation         = errors.New("invalid image")
	ErrNotImage           = fmt.Errorf("%w: please upload an image file", ErrValidation)
	ErrTooLarge           = fmt.Errorf("%w: file size must be less than 10MB", ErrValidation)
	ErrNoImage            = errors.New("no image uploaded")
	ErrAnalysisInProgress = errors.New("analysis already in progress")
)

type State struct {
	Page      Page             `json:"page"`
	Image     *analysis.Image  `json:"image,omitempty"`
	Result    *analysis.Result `json:"result,omitempty"`
	Analyzing bool             `json:"analyzing"`
}

// Session: состояние одного чата/клиента. Вызовы приходят из разных горутин.
type Session struct {
	mu      sync.Mutex
	st      State
	pending *analysis.Image
	history *history.Store
}

func New(h *history.Store) *Session {
	return &Session{st: State{Page: PageHome}, history: h}
}

func (s *Session) History() *history.Store { return s.history }

// SetImage проверяет тип (по заявленному MIME) и размер; при ошибке состояние не меняется.
// Пустой MIME определяется по байтам.
func (s *Session) SetImage(data []byte, mediaType string) (analysis.Image, error) {
	mt := util.BaseMediaType(mediaType)
	if mt == "" {
		mt = util.BaseMediaType(util.SniffMimeHTTP(data))
	}
	if !strings.HasPrefix(mt, "image/") {
		return analysis.Image{}, ErrNotImage
	}
	if len(data) > MaxImageBytes {
		return analysis.Image{}, ErrTooLarge
	}
	img := analysis.Image{
		Data:      append([]byte(nil), data...),
		MediaType: mt,
		DataURI:   util.EncodeDataURL(mt, data),
	}

	s.mu.Lock()
	s.st.Image = &img
	s.mu.Unlock()
	return img, nil
}

func (s *Session) ClearImage() {
	s.mu.Lock()
	s.st.Image = nil
	s.mu.Unlock()
}

// BeginAnalysis захватывает текущее изображение; второй запуск до EndAnalysis отклоняется.
func (s *Session) BeginAnalysis() (analysis.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st.Analyzing {
		return analysis.Image{}, ErrAnalysisInProgress
	}
	if s.st.Image == nil {
		return analysis.Image{}, ErrNoImage
	}
	img := *s.st.Image
	s.pending = &img
	s.st.Analyzing = true
	return img, nil
}

func (s *Session) EndAnalysis() {
	s.mu.Lock()
	s.st.Analyzing = false
	s.pending = nil
	s.mu.Unlock()
}

// RecordResult делает результат текущим и добавляет запись в историю
// с изображением, захваченным в BeginAnalysis.
func (s *Session) RecordResult(ctx context.Context, r analysis.Result) (history.Entry, error) {
	s.mu.Lock()
	var dataURI string
	switch {
	case s.pending != nil:
		dataURI = s.pending.DataURI
	case s.st.Image != nil:
		dataURI = s.st.Image.DataURI
	}
	res := r
	s.st.Result = &res
	s.mu.Unlock()

	at := r.Timestamp
	if at.IsZero() {
		at = time.Now()
	}
	e := history.NewEntry(dataURI, r, at)
	if s.history == nil {
		return e, nil
	}
	return e, s.history.Append(ctx, e)
}

// ShowResult делает текущим результат из истории, без новой записи.
func (s *Session) ShowResult(r analysis.Result) {
	s.mu.Lock()
	res := r
	s.st.Result = &res
	s.mu.Unlock()
}

func (s *Session) SetPage(p Page) {
	s.mu.Lock()
	s.st.Page = p
	s.mu.Unlock()
}

// Snapshot: копия для чтения без блокировки.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.st
	if st.Image != nil {
		img := *st.Image
		st.Image = &img
	}
	if st.Result != nil {
		r := *st.Result
		st.Result = &r
	}
	return st
}
