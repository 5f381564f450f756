package history

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"ecovision/api/internal/analysis"
	"ecovision/api/internal/store"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func sampleResult(now time.Time) analysis.Result {
	return analysis.NewResult(
		[]analysis.Category{analysis.Air, analysis.Land},
		analysis.RiskHigh, 88,
		[]string{"Use public transportation", "Participate in community cleanup events"},
		"Analysis detected 2 type(s) of pollution with high risk level.",
		now,
	)
}

func TestAppendKeepsMostRecentFirst(t *testing.T) {
	ctx := context.Background()
	s := NewStore(store.NewMemoryKV(), "", quiet)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	first := NewEntry("data:image/png;base64,AA==", sampleResult(now), now)
	second := NewEntry("data:image/jpeg;base64,BB==", sampleResult(now.Add(time.Minute)), now.Add(time.Minute))
	for _, e := range []Entry{first, second} {
		if err := s.Append(ctx, e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got := s.Load(ctx)
	if len(got) != 2 || got[0].ID != second.ID || got[1].ID != first.ID {
		t.Fatalf("unexpected order: %+v", got)
	}
	if got[0].Image != second.Image {
		t.Fatalf("image not persisted: %q", got[0].Image)
	}
	if got[0].Result.RiskLevel != analysis.RiskHigh || got[0].Result.Confidence != 88 {
		t.Fatalf("result not persisted: %+v", got[0].Result)
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewStore(store.NewMemoryKV(), "", quiet)
	now := time.Now()
	a, b := NewEntry("a", sampleResult(now), now), NewEntry("b", sampleResult(now), now)
	_ = s.Save(ctx, []Entry{a, b})

	if err := s.Remove(ctx, a.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := s.Remove(ctx, a.ID); err != nil {
		t.Fatalf("second Remove: %v", err)
	}
	if err := s.Remove(ctx, "never-existed"); err != nil {
		t.Fatalf("Remove unknown: %v", err)
	}
	got := s.Load(ctx)
	if len(got) != 1 || got[0].ID != b.ID {
		t.Fatalf("unexpected history: %+v", got)
	}
}

func TestLoadMalformedIsEmpty(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()
	_ = kv.Set(ctx, DefaultKey, "{not json")

	got := NewStore(kv, "", quiet).Load(ctx)
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil history, got %#v", got)
	}
}

func TestLoadAbsentIsEmpty(t *testing.T) {
	got := NewStore(store.NewMemoryKV(), "", quiet).Load(context.Background())
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil history, got %#v", got)
	}
}

type failingKV struct{ store.KV }

func (failingKV) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("disk on fire")
}

func TestLoadReadFailureIsEmpty(t *testing.T) {
	got := NewStore(failingKV{store.NewMemoryKV()}, "", quiet).Load(context.Background())
	if len(got) != 0 {
		t.Fatalf("expected empty history, got %+v", got)
	}
}

// flakyKV отказывает в чтении, пока failReads > 0.
type flakyKV struct {
	store.KV
	failReads int
}

func (f *flakyKV) Get(ctx context.Context, key string) (string, bool, error) {
	if f.failReads > 0 {
		f.failReads--
		return "", false, errors.New("connection reset")
	}
	return f.KV.Get(ctx, key)
}

func TestWritesAbortOnReadFailure(t *testing.T) {
	ctx := context.Background()
	kv := &flakyKV{KV: store.NewMemoryKV()}
	s := NewStore(kv, "", quiet)
	now := time.Now()
	var before []Entry
	for i := 0; i < 5; i++ {
		before = append(before, NewEntry("img", sampleResult(now), now))
	}
	if err := s.Save(ctx, before); err != nil {
		t.Fatal(err)
	}

	kv.failReads = 1
	if err := s.Append(ctx, NewEntry("new", sampleResult(now), now)); err == nil {
		t.Fatal("Append must fail when the history cannot be read")
	}
	kv.failReads = 1
	if err := s.Remove(ctx, before[0].ID); err == nil {
		t.Fatal("Remove must fail when the history cannot be read")
	}

	got := s.Load(ctx)
	if len(got) != len(before) {
		t.Fatalf("history lost after failed writes: %d entries, want %d", len(got), len(before))
	}
	for i := range before {
		if got[i].ID != before[i].ID {
			t.Fatalf("entry %d changed: %s != %s", i, got[i].ID, before[i].ID)
		}
	}
}

func TestAppendOverMalformedStartsFresh(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()
	_ = kv.Set(ctx, DefaultKey, "{not json")
	s := NewStore(kv, "", quiet)
	e := NewEntry("img", sampleResult(time.Now()), time.Now())
	if err := s.Append(ctx, e); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if got := s.Load(ctx); len(got) != 1 || got[0].ID != e.ID {
		t.Fatalf("unexpected history: %+v", got)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewStore(store.NewMemoryKV(), "", quiet)
	now := time.Date(2026, 4, 2, 8, 30, 0, 0, time.UTC)
	list := []Entry{
		NewEntry("data:image/png;base64,AA==", sampleResult(now), now),
		{ID: LegacyID(1717171717171), Image: "data:image/jpeg;base64,BB==", Result: sampleResult(now.Add(-time.Hour)), Date: now.Add(-time.Hour)},
	}
	if err := s.Save(ctx, list); err != nil {
		t.Fatal(err)
	}
	got := s.Load(ctx)
	if len(got) != len(list) {
		t.Fatalf("len = %d", len(got))
	}
	for i := range list {
		w, g := list[i], got[i]
		if g.ID != w.ID || g.Image != w.Image || !g.Date.Equal(w.Date) ||
			g.Result.RiskLevel != w.Result.RiskLevel || g.Result.Confidence != w.Result.Confidence ||
			g.Result.Summary != w.Result.Summary || len(g.Result.Categories) != len(w.Result.Categories) ||
			len(g.Result.Recommendations) != len(w.Result.Recommendations) {
			t.Fatalf("entry %d differs:\n got %+v\nwant %+v", i, g, w)
		}
	}
}

func TestLegacyNumericIDs(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()
	doc := `[{"id":1717171717171,"image":"data:image/png;base64,AA==","results":{"pollutionTypes":["water"],"riskLevel":"low","confidence":71,"recommendations":["Reduce plastic usage"],"summary":"s","timestamp":"2024-05-31T16:08:37.171Z"},"date":"2024-05-31T16:08:37.171Z"}]`
	_ = kv.Set(ctx, DefaultKey, doc)
	s := NewStore(kv, "", quiet)

	e, ok := s.Find(ctx, LegacyID(1717171717171))
	if !ok {
		t.Fatalf("legacy entry not found: %+v", s.Load(ctx))
	}
	if !e.Result.Has(analysis.Water) || e.Result.Confidence != 71 {
		t.Fatalf("unexpected legacy result: %+v", e.Result)
	}
	if err := s.Remove(ctx, e.ID); err != nil {
		t.Fatalf("Remove legacy: %v", err)
	}
	if len(s.Load(ctx)) != 0 {
		t.Fatal("legacy entry not removed")
	}
}

func TestScopedKeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()
	a := NewStore(kv, KeyFor("chat-1"), quiet)
	b := NewStore(kv, KeyFor("chat-2"), quiet)
	now := time.Now()
	_ = a.Append(ctx, NewEntry("x", sampleResult(now), now))

	if len(a.Load(ctx)) != 1 || len(b.Load(ctx)) != 0 {
		t.Fatal("scopes must not share a document")
	}
	if KeyFor("") != DefaultKey {
		t.Fatalf("empty scope must use %q", DefaultKey)
	}
}

func TestNewEntryIDsAreUnique(t *testing.T) {
	now := time.Now()
	seen := map[ID]bool{}
	for i := 0; i < 1000; i++ {
		id := NewEntry("", analysis.Result{}, now).ID
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}

func TestWriteXLSX(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	e := NewEntry("img", sampleResult(now), now)

	var buf bytes.Buffer
	if err := WriteXLSX(&buf, []Entry{e}); err != nil {
		t.Fatalf("WriteXLSX: %v", err)
	}
	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected header + 1 row, got %d", len(rows))
	}
	if rows[1][0] != string(e.ID) || rows[1][2] != "air, land" || rows[1][3] != "high" || rows[1][4] != "88" {
		t.Fatalf("unexpected row: %v", rows[1])
	}
}
