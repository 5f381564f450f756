package analysis

import "fmt"

// Рекомендации по категориям; заглушка берёт первые две для каждой найденной категории.
var categoryTips = map[Category][]string{
	Air: {
		"Wear a mask when outdoors in polluted areas",
		"Use air purifiers in your home",
		"Avoid outdoor exercise during high pollution days",
		"Plant air-purifying plants like spider plants and peace lilies",
	},
	Water: {
		"Use water filters for drinking water",
		"Avoid swimming in contaminated water",
		"Report water pollution to local authorities",
		"Support clean water initiatives in your community",
	},
	Land: {
		"Avoid contact with contaminated soil",
		"Wash hands thoroughly after outdoor activities",
		"Support soil remediation efforts",
		"Choose organic produce when possible",
	},
}

// TipsFor возвращает копию списка рекомендаций категории.
func TipsFor(c Category) []string {
	return append([]string(nil), categoryTips[c]...)
}

// Recommend: первые perCategory советов для каждой категории в порядке Categories.
func Recommend(cats []Category, perCategory int) []string {
	out := []string{}
	for _, c := range Categories {
		if !contains(cats, c) {
			continue
		}
		tips := categoryTips[c]
		n := perCategory
		if n > len(tips) {
			n = len(tips)
		}
		out = append(out, tips[:n]...)
	}
	return out
}

func Summarize(cats []Category, risk RiskLevel) string {
	return fmt.Sprintf("Analysis detected %d type(s) of pollution with %s risk level.", len(cats), risk)
}

// Display: подписи/иконки/цвета карточек дашборда.
type Display struct {
	Name  string `json:"name"`
	Icon  string `json:"icon"`
	Color string `json:"color"`
}

var displays = map[Category]Display{
	Air:   {Name: "Air Pollution", Icon: "fas fa-smog", Color: "#ff6b6b"},
	Water: {Name: "Water Contamination", Icon: "fas fa-tint", Color: "#4ecdc4"},
	Land:  {Name: "Land Contamination", Icon: "fas fa-seedling", Color: "#45b7d1"},
}

func DisplayOf(c Category) Display { return displays[c] }

func contains(cats []Category, c Category) bool {
	for _, x := range cats {
		if x == c {
			return true
		}
	}
	return false
}
