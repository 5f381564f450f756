package app

import (
	"ecovision/api/internal/analysis"
	"ecovision/api/internal/history"
	"ecovision/api/internal/session"
	"ecovision/api/internal/tips"
)

// View: то, что биндинг (бот, HTTP, CLI) показывает пользователю.
// Заполнены только поля текущей страницы.
type View struct {
	Page      session.Page    `json:"page"`
	Loading   bool            `json:"loading"`
	Provider  string          `json:"provider"`
	Image     *analysis.Image `json:"image,omitempty"`
	Dashboard *DashboardView  `json:"dashboard,omitempty"`
	Tips      []tips.Tip      `json:"tips,omitempty"`
	History   []history.Entry `json:"history,omitempty"`
}

type DashboardView struct {
	Empty  bool             `json:"empty"`
	Result *analysis.Result `json:"result,omitempty"`
	Cards  []ResultCard     `json:"cards,omitempty"`
}

// ResultCard: карточка найденного типа загрязнения.
type ResultCard struct {
	Category   analysis.Category  `json:"category"`
	Name       string             `json:"name"`
	Icon       string             `json:"icon"`
	Color      string             `json:"color"`
	RiskLevel  analysis.RiskLevel `json:"riskLevel"`
	Confidence int                `json:"confidence"`
	Summary    string             `json:"summary"`
}

func NewDashboardView(r *analysis.Result) *DashboardView {
	if r == nil {
		return &DashboardView{Empty: true}
	}
	res := *r
	cards := make([]ResultCard, 0, len(res.Categories))
	for _, c := range res.Categories {
		d := analysis.DisplayOf(c)
		cards = append(cards, ResultCard{
			Category:   c,
			Name:       d.Name,
			Icon:       d.Icon,
			Color:      d.Color,
			RiskLevel:  res.RiskLevel,
			Confidence: res.Confidence,
			Summary:    res.Summary,
		})
	}
	return &DashboardView{Result: &res, Cards: cards}
}
