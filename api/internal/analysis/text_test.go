package analysis

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestFromTextStrictJSON(t *testing.T) {
	text := "```json\n" + `{"pollutionTypes":["water","air","fire"],"riskLevel":"HIGH","confidence":0.91,"recommendations":["Report the spill"],"summary":"Oil on the river."}` + "\n```"
	r := FromText(text, fixedNow)

	if len(r.Categories) != 2 || r.Categories[0] != Air || r.Categories[1] != Water {
		t.Fatalf("expected [air water], got %v", r.Categories)
	}
	if r.RiskLevel != RiskHigh {
		t.Errorf("expected high risk, got %s", r.RiskLevel)
	}
	if r.Confidence != 91 {
		t.Errorf("expected confidence 91, got %d", r.Confidence)
	}
	if len(r.Recommendations) != 1 || r.Recommendations[0] != "Report the spill" {
		t.Errorf("unexpected recommendations %v", r.Recommendations)
	}
	if !r.Timestamp.Equal(fixedNow) {
		t.Errorf("unexpected timestamp %v", r.Timestamp)
	}
}

func TestFromTextFreeFormFallback(t *testing.T) {
	text := "The photo shows heavy smog over a city and plastic litter along the road.\n- Avoid outdoor exercise\n- Join a cleanup"
	r := FromText(text, fixedNow)

	if !r.Has(Air) || !r.Has(Land) || r.Has(Water) {
		t.Fatalf("unexpected categories %v", r.Categories)
	}
	if r.RiskLevel != RiskHigh {
		t.Errorf("expected high risk from 'heavy', got %s", r.RiskLevel)
	}
	if len(r.Recommendations) != 2 || r.Recommendations[1] != "Join a cleanup" {
		t.Errorf("expected bullet recommendations, got %v", r.Recommendations)
	}
	if r.Summary != text {
		t.Errorf("summary should keep the model text")
	}
}

func TestFromTextNothingDetected(t *testing.T) {
	r := FromText("A cat sleeping on a sofa.", fixedNow)
	if r.Categories == nil || len(r.Categories) != 0 {
		t.Fatalf("expected empty non-nil categories, got %#v", r.Categories)
	}
	if r.RiskLevel != RiskMedium {
		t.Errorf("expected default medium risk, got %s", r.RiskLevel)
	}
}

func TestRecommendKeepsCategoryOrder(t *testing.T) {
	recs := Recommend([]Category{Land, Air}, 2)
	want := []string{
		"Wear a mask when outdoors in polluted areas",
		"Use air purifiers in your home",
		"Avoid contact with contaminated soil",
		"Wash hands thoroughly after outdoor activities",
	}
	if strings.Join(recs, "|") != strings.Join(want, "|") {
		t.Fatalf("got %v", recs)
	}
}

func TestSummarizeZeroDetections(t *testing.T) {
	if got := Summarize(nil, RiskLow); got != "Analysis detected 0 type(s) of pollution with low risk level." {
		t.Fatalf("got %q", got)
	}
}

func TestUnavailableErrorIs(t *testing.T) {
	err := fmt.Errorf("wrap: %w", Unavailable("gemini", ReasonNoCandidates, nil))
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable")
	}
	if ReasonOf(err) != ReasonNoCandidates {
		t.Fatalf("expected no_candidates, got %s", ReasonOf(err))
	}
	if ReasonOf(errors.New("x")) != "unknown" {
		t.Fatalf("expected unknown reason")
	}
}

func TestRegistry(t *testing.T) {
	a := fakeProvider{name: "stub"}
	b := fakeProvider{name: "gemini"}
	r := NewRegistry(a, b)
	if r.Default().Name() != "stub" {
		t.Fatalf("unexpected default %s", r.Default().Name())
	}
	p, err := r.Get(" Gemini ")
	if err != nil || p.Name() != "gemini" {
		t.Fatalf("Get() = %v, %v", p, err)
	}
	if _, err := r.Get("nope"); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
	if got := strings.Join(r.Names(), ","); got != "gemini,stub" {
		t.Fatalf("Names() = %s", got)
	}
}
