package telegram

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"ecovision/api/internal/analysis"
	"ecovision/api/internal/app"
	"ecovision/api/internal/history"
	"ecovision/api/internal/session"
	"ecovision/api/internal/tips"
)

const historyPageSize = 10

const homeText = `🌍 EcoVision AI
Upload a photo of your surroundings and get a pollution analysis with practical recommendations.

/upload — send an image (JPEG/PNG, up to 10MB)
/analyze — analyze the uploaded image
/dashboard — latest results
/tips — eco tips
/history — previous analyses
/poster — awareness poster of the current result
/engine — analysis engine`

func (r *Router) sendView(chatID int64, v app.View) {
	switch v.Page {
	case session.PageHome:
		kb := navKeyboard()
		r.sendMarkup(chatID, homeText, &kb)
	case session.PageUpload:
		text := "📤 Send a photo or an image file (up to 10MB)."
		if v.Image != nil {
			text = fmt.Sprintf("📷 Current image: %s, %s. Send another one to replace it, or press Analyze.",
				v.Image.MediaType, humanSize(v.Image.Size()))
		}
		kb := uploadKeyboard()
		r.sendMarkup(chatID, text, &kb)
	case session.PageDashboard:
		kb := dashboardKeyboard(v.Dashboard)
		r.sendMarkup(chatID, formatDashboard(v.Dashboard), &kb)
	case session.PageTips:
		kb := tipsKeyboard()
		r.sendMarkup(chatID, formatTips(v.Tips), &kb)
	case session.PageHistory:
		r.sendHistory(chatID, v.History)
	}
}

func (r *Router) sendHistory(chatID int64, entries []history.Entry) {
	if len(entries) == 0 {
		r.send(chatID, "📜 No Analysis History\nYour analysis history will appear here after uploading images.")
		return
	}
	head := fmt.Sprintf("📜 History: %d analyses", len(entries))
	if len(entries) > historyPageSize {
		head += fmt.Sprintf(" (showing the latest %d)", historyPageSize)
		entries = entries[:historyPageSize]
	}
	r.send(chatID, head)
	for _, e := range entries {
		kb := historyItemKeyboard(e.ID)
		r.sendMarkup(chatID, formatHistoryEntry(e), &kb)
	}
}

func formatDashboard(d *app.DashboardView) string {
	if d == nil || d.Empty {
		return "📊 No Analysis Yet\nUpload an image to see pollution analysis results."
	}
	res := d.Result
	var b strings.Builder
	b.WriteString("📊 Analysis results\n\n")
	if len(d.Cards) == 0 {
		b.WriteString("✅ No pollution detected\n")
	}
	for _, c := range d.Cards {
		fmt.Fprintf(&b, "%s %s — %s RISK\n", categoryEmoji(c.Category), c.Name, strings.ToUpper(string(c.RiskLevel)))
	}
	fmt.Fprintf(&b, "\nConfidence: %d%%\n%s\n", res.Confidence, res.Summary)
	if len(res.Recommendations) > 0 {
		b.WriteString("\n💡 Actionable Recommendations\n")
		for _, rec := range res.Recommendations {
			b.WriteString("✔️ " + rec + "\n")
		}
	}
	return b.String()
}

func formatTips(ts []tips.Tip) string {
	var b strings.Builder
	b.WriteString("🌱 Eco tips\n")
	for _, t := range ts {
		fmt.Fprintf(&b, "\n• %s\n%s\n", t.Title, t.Description)
	}
	return b.String()
}

func formatHistoryEntry(e history.Entry) string {
	cats := make([]string, 0, len(e.Result.Categories))
	for _, c := range e.Result.Categories {
		cats = append(cats, string(c))
	}
	types := strings.Join(cats, ", ")
	if types == "" {
		types = "none"
	}
	return fmt.Sprintf("Analysis %s\n%s\nRisk: %s | Types: %s",
		e.ID, e.Date.Format("2006-01-02 15:04"), strings.ToUpper(string(e.Result.RiskLevel)), types)
}

func categoryEmoji(c analysis.Category) string {
	switch c {
	case analysis.Air:
		return "🌫"
	case analysis.Water:
		return "💧"
	case analysis.Land:
		return "🌱"
	}
	return "•"
}

func navKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📤 Upload", "nav:upload"),
			tgbotapi.NewInlineKeyboardButtonData("📊 Dashboard", "nav:dashboard"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🌱 Tips", "nav:tips"),
			tgbotapi.NewInlineKeyboardButtonData("📜 History", "nav:history"),
		),
	)
}

func uploadKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔍 Analyze", "analyze"),
			tgbotapi.NewInlineKeyboardButtonData("🏠 Home", "nav:home"),
		),
	)
}

func dashboardKeyboard(d *app.DashboardView) tgbotapi.InlineKeyboardMarkup {
	if d == nil || d.Empty {
		return tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("📤 Upload", "nav:upload")),
		)
	}
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🖼 Awareness poster", "poster"),
			tgbotapi.NewInlineKeyboardButtonData("📜 History", "nav:history"),
		),
	)
}

func tipsKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🔄 More tips", "tips_refresh")),
	)
}

func historyItemKeyboard(id history.ID) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("👁 View", "view:"+string(id)),
			tgbotapi.NewInlineKeyboardButtonData("🗑 Delete", "del:"+string(id)),
		),
	)
}
