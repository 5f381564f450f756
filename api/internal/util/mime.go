package util

import (
	"encoding/base64"
	"errors"
	"mime"
	"net/http"
	"strings"
)

var ErrNotDataURL = errors.New("not a base64 data URL")

var (
	sigJPEG = []byte{0xFF, 0xD8}
	sigPNG  = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}
)

// SniffMimeHTTP определяет тип по сигнатуре; JPEG и PNG сами,
// остальное через http.DetectContentType.
func SniffMimeHTTP(b []byte) string {
	switch {
	case len(b) == 0:
		return "application/octet-stream"
	case hasPrefix(b, sigJPEG):
		return "image/jpeg"
	case hasPrefix(b, sigPNG):
		return "image/png"
	}
	return http.DetectContentType(b)
}

func hasPrefix(b, sig []byte) bool {
	if len(b) < len(sig) {
		return false
	}
	for i := range sig {
		if b[i] != sig[i] {
			return false
		}
	}
	return true
}

// EncodeDataURL: data:<mime>;base64,<payload>, формат поля image в истории.
func EncodeDataURL(mediaType string, data []byte) string {
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURL разбирает data:<mime>;base64,<payload>. Принимает и URL-safe base64.
func DecodeDataURL(s string) ([]byte, string, error) {
	s = strings.TrimSpace(s)
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return nil, "", ErrNotDataURL
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok || !strings.HasSuffix(meta, ";base64") {
		return nil, "", ErrNotDataURL
	}
	mediaType := BaseMediaType(strings.TrimSuffix(meta, ";base64"))

	b, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		b2, err2 := base64.URLEncoding.DecodeString(payload)
		if err2 != nil {
			return nil, "", err
		}
		b = b2
	}
	return b, mediaType, nil
}

// PickMIME: явный тип, затем подсказка (из data URI), иначе по байтам.
func PickMIME(explicit, hint string, data []byte) string {
	for _, s := range []string{explicit, hint} {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	if len(data) == 0 {
		return "image/jpeg"
	}
	return SniffMimeHTTP(data)
}

// BaseMediaType отрезает параметры: "image/JPEG; q=1" -> "image/jpeg".
func BaseMediaType(s string) string {
	s = strings.TrimSpace(s)
	if mt, _, err := mime.ParseMediaType(s); err == nil {
		return mt
	}
	if i := strings.IndexByte(s, ';'); i >= 0 {
		s = s[:i]
	}
	return strings.ToLower(strings.TrimSpace(s))
}
