package analysis

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"ecovision/api/internal/util"
)

const defaultTextConfidence = 75

type rawResult struct {
	PollutionTypes  []string `json:"pollutionTypes"`
	RiskLevel       string   `json:"riskLevel"`
	Confidence      *float64 `json:"confidence"`
	Recommendations []string `json:"recommendations"`
	Summary         string   `json:"summary"`
}

var (
	reBullet = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s+(.+)$`)
	reAir    = regexp.MustCompile(`(?i)\b(air|smog|smoke|haze|emission|exhaust)`)
	reWater  = regexp.MustCompile(`(?i)\b(water|river|lake|sea|ocean|sewage|oil spill)`)
	reLand   = regexp.MustCompile(`(?i)\b(land|soil|litter|garbage|trash|waste|landfill|debris|plastic)`)
	reHigh   = regexp.MustCompile(`(?i)\b(high|severe|critical|heavy|significant)\b`)
	reLow    = regexp.MustCompile(`(?i)\b(low|minimal|minor|slight|clean)\b`)
)

// FromText нормализует свободный текст модели в Result.
// Сначала строгий JSON (промпт его просит), иначе: мягкий фоллбэк по ключевым словам.
func FromText(text string, now time.Time) Result {
	text = strings.TrimSpace(text)
	if r, ok := fromJSON(text, now); ok {
		return r
	}

	var cats []Category
	for _, c := range []struct {
		cat Category
		re  *regexp.Regexp
	}{{Air, reAir}, {Water, reWater}, {Land, reLand}} {
		if c.re.MatchString(text) {
			cats = append(cats, c.cat)
		}
	}

	risk := RiskMedium
	switch {
	case reHigh.MatchString(text):
		risk = RiskHigh
	case reLow.MatchString(text):
		risk = RiskLow
	}

	var recs []string
	for _, line := range strings.Split(text, "\n") {
		if m := reBullet.FindStringSubmatch(line); m != nil {
			if s := strings.TrimSpace(strings.Trim(m[1], "*")); s != "" {
				recs = append(recs, s)
			}
		}
	}
	if len(recs) == 0 {
		recs = Recommend(cats, 2)
	}

	summary := text
	if summary == "" {
		summary = Summarize(cats, risk)
	}
	return NewResult(cats, risk, defaultTextConfidence, recs, summary, now)
}

func fromJSON(text string, now time.Time) (Result, bool) {
	s := util.StripCodeFences(text)
	if !strings.HasPrefix(s, "{") {
		return Result{}, false
	}
	var raw rawResult
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return Result{}, false
	}

	seen := map[Category]bool{}
	for _, p := range raw.PollutionTypes {
		c := Category(strings.ToLower(strings.TrimSpace(p)))
		if c.Valid() {
			seen[c] = true
		}
	}
	var cats []Category
	for _, c := range Categories {
		if seen[c] {
			cats = append(cats, c)
		}
	}

	risk := RiskLevel(strings.ToLower(strings.TrimSpace(raw.RiskLevel)))
	if !risk.Valid() {
		risk = RiskMedium
	}

	conf := defaultTextConfidence
	if raw.Confidence != nil {
		v := *raw.Confidence
		// некоторые модели отвечают долей 0..1
		if v > 0 && v <= 1 {
			v *= 100
		}
		conf = int(v + 0.5)
	}

	recs := raw.Recommendations
	if len(recs) == 0 {
		recs = Recommend(cats, 2)
	}
	summary := strings.TrimSpace(raw.Summary)
	if summary == "" {
		summary = Summarize(cats, risk)
	}
	return NewResult(cats, risk, conf, recs, summary, now), true
}
