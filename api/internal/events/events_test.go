package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"ecovision/api/internal/analysis"
	"ecovision/api/internal/history"
)

func TestAnalysisCompletedOmitsImage(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r := analysis.NewResult([]analysis.Category{analysis.Air}, analysis.RiskLow, 77, nil, "s", now)
	e := history.NewEntry("data:image/png;base64,SECRET", r, now)

	b, err := json.Marshal(NewAnalysisCompleted("chat-42", e))
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	_ = json.Unmarshal(b, &got)
	if got["scope"] != "chat-42" || got["entry_id"] != string(e.ID) {
		t.Fatalf("unexpected event %s", b)
	}
	if _, ok := got["image"]; ok {
		t.Fatalf("event must not carry the image: %s", b)
	}
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = Nop{}
	if err := p.PublishAnalysis(context.Background(), "", history.Entry{}); err != nil {
		t.Fatal(err)
	}
}
