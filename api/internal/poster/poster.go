package poster

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"ecovision/api/internal/analysis"
)

const (
	Width  = 800
	Height = 600
)

var (
	background = color.RGBA{R: 0xf0, G: 0xf8, B: 0xff, A: 0xff}
	titleColor = color.RGBA{R: 0x2d, G: 0x5a, B: 0x27, A: 0xff}
	textColor  = color.RGBA{R: 0x33, G: 0x33, B: 0x33, A: 0xff}
)

const title = "EcoVision AI Analysis Report"

// Render рисует PNG-отчёт 800x600 по результату анализа.
func Render(r analysis.Result) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, Width, Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)

	drawScaled(img, title, Width/2, 60, 3, titleColor, true)

	cats := make([]string, 0, len(r.Categories))
	for _, c := range r.Categories {
		cats = append(cats, string(c))
	}
	lines := []string{
		"Risk Level: " + strings.ToUpper(string(r.RiskLevel)),
		"Pollution Types: " + strings.Join(cats, ", "),
		fmt.Sprintf("Confidence: %d%%", r.Confidence),
	}
	for i, l := range lines {
		drawScaled(img, l, 50, 120+i*30, 2, textColor, false)
	}

	drawScaled(img, "Recommendations:", 50, 220, 2, textColor, false)
	y := 250
	for _, rec := range r.Recommendations {
		if y > Height-20 {
			break
		}
		drawScaled(img, "- "+truncate(rec, 48), 70, y, 2, textColor, false)
		y += 25
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("poster: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// drawScaled: basicfont один размер, поэтому текст рисуется на маленьком холсте
// и масштабируется. y: базовая линия.
func drawScaled(dst *image.RGBA, text string, x, y, scale int, col color.Color, centered bool) {
	face := basicfont.Face7x13
	d := &font.Drawer{Src: image.NewUniform(col), Face: face}
	w := d.MeasureString(text).Ceil()
	h := face.Metrics().Height.Ceil()
	if w == 0 {
		return
	}

	small := image.NewRGBA(image.Rect(0, 0, w, h))
	d.Dst = small
	d.Dot = fixed.Point26_6{X: 0, Y: face.Metrics().Ascent}
	d.DrawString(text)

	sw, sh := w*scale, h*scale
	if centered {
		x -= sw / 2
	}
	top := y - face.Metrics().Ascent.Ceil()*scale
	rect := image.Rect(x, top, x+sw, top+sh)
	draw.NearestNeighbor.Scale(dst, rect, small, small.Bounds(), draw.Over, nil)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
