package analysis

import (
	"context"
	"time"
)

type Category string

const (
	Air   Category = "air"
	Water Category = "water"
	Land  Category = "land"
)

// Categories: фиксированный порядок категорий (влияет на порядок рекомендаций).
var Categories = []Category{Air, Water, Land}

func (c Category) Valid() bool {
	switch c {
	case Air, Water, Land:
		return true
	}
	return false
}

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

var RiskLevels = []RiskLevel{RiskLow, RiskMedium, RiskHigh}

func (r RiskLevel) Valid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh:
		return true
	}
	return false
}

// Result: нормализованный результат анализа. JSON-ключи совпадают
// с форматом истории, который уже лежит в хранилищах.
type Result struct {
	Categories      []Category `json:"pollutionTypes"`
	RiskLevel       RiskLevel  `json:"riskLevel"`
	Confidence      int        `json:"confidence"` // 0..100
	Recommendations []string   `json:"recommendations"`
	Summary         string     `json:"summary"`
	Timestamp       time.Time  `json:"timestamp"`
}

// NewResult копирует срезы, чтобы результат не менялся после создания.
func NewResult(cats []Category, risk RiskLevel, confidence int, recs []string, summary string, ts time.Time) Result {
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 100 {
		confidence = 100
	}
	return Result{
		Categories:      append([]Category{}, cats...),
		RiskLevel:       risk,
		Confidence:      confidence,
		Recommendations: append([]string{}, recs...),
		Summary:         summary,
		Timestamp:       ts.UTC(),
	}
}

func (r Result) Has(c Category) bool {
	for _, x := range r.Categories {
		if x == c {
			return true
		}
	}
	return false
}

// Image: загруженное изображение текущей сессии.
type Image struct {
	Data      []byte `json:"-"`
	MediaType string `json:"mediaType"`
	DataURI   string `json:"dataUri"`
}

func (i Image) Size() int { return len(i.Data) }

// Provider анализирует изображение: заглушка или внешний vision-API.
type Provider interface {
	Name() string
	Model() string
	Analyze(ctx context.Context, img Image) (Result, error)
}

// ModelSelector: провайдер отдаёт копию с другой моделью, сам инстанс не меняется.
// Инстансы из реестра общие для всех сессий.
type ModelSelector interface {
	WithModel(model string) Provider
}
