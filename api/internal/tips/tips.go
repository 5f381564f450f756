package tips

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os"

	"gopkg.in/yaml.v3"
)

const DefaultCount = 6

type Tip struct {
	Icon        string `yaml:"icon" json:"icon"`
	Title       string `yaml:"title" json:"title"`
	Description string `yaml:"description" json:"description"`
}

var defaultCatalog = []Tip{
	{Icon: "fas fa-recycle", Title: "Reduce Single-Use Plastics", Description: "Carry reusable water bottles, shopping bags, and containers to minimize plastic waste."},
	{Icon: "fas fa-bicycle", Title: "Choose Sustainable Transportation", Description: "Walk, bike, or use public transport instead of driving when possible to reduce carbon emissions."},
	{Icon: "fas fa-leaf", Title: "Plant Native Trees", Description: "Plant trees native to your region to improve air quality and support local ecosystems."},
	{Icon: "fas fa-solar-panel", Title: "Switch to Renewable Energy", Description: "Consider solar panels or choose energy providers that use renewable sources."},
	{Icon: "fas fa-seedling", Title: "Start a Compost Pile", Description: "Compost organic waste to reduce landfill contributions and create nutrient-rich soil."},
	{Icon: "fas fa-tint", Title: "Conserve Water", Description: "Fix leaks, use water-efficient appliances, and collect rainwater for gardening."},
	{Icon: "fas fa-lightbulb", Title: "Use LED Light Bulbs", Description: "Replace incandescent bulbs with energy-efficient LEDs to reduce electricity consumption."},
	{Icon: "fas fa-shopping-bag", Title: "Buy Local and Seasonal", Description: "Purchase locally grown, seasonal produce to reduce transportation emissions."},
	{Icon: "fas fa-wind", Title: "Reduce Air Conditioning", Description: "Use fans, natural ventilation, and proper insulation to reduce energy consumption."},
	{Icon: "fas fa-heart", Title: "Support Eco-Friendly Brands", Description: "Choose products from companies committed to sustainable and ethical practices."},
}

// DefaultCatalog: встроенные 10 советов; каждый вызов отдаёт копию.
func DefaultCatalog() []Tip {
	return append([]Tip(nil), defaultCatalog...)
}

type catalogFile struct {
	Tips []Tip `yaml:"tips"`
}

// LoadCatalog читает YAML вида `tips: [{icon, title, description}]`.
func LoadCatalog(path string) ([]Tip, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("tips: read %s: %w", path, err)
	}
	var f catalogFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("tips: parse %s: %w", path, err)
	}
	out := make([]Tip, 0, len(f.Tips))
	for _, t := range f.Tips {
		if t.Title == "" {
			continue
		}
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil, errors.New("tips: catalog is empty")
	}
	return out, nil
}

// Pick: первые n элементов равномерной перестановки каталога.
// n <= 0 значит DefaultCount; n больше каталога обрезается.
func Pick(catalog []Tip, n int, rng *rand.Rand) []Tip {
	if n <= 0 {
		n = DefaultCount
	}
	if n > len(catalog) {
		n = len(catalog)
	}
	var perm []int
	if rng != nil {
		perm = rng.Perm(len(catalog))
	} else {
		perm = rand.Perm(len(catalog))
	}
	out := make([]Tip, n)
	for i := 0; i < n; i++ {
		out[i] = catalog[perm[i]]
	}
	return out
}
